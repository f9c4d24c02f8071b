// internal/game/table.go
package game

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/erilali/gameroom/internal/chat"
	"github.com/erilali/gameroom/internal/logger"
	"github.com/erilali/gameroom/internal/message"
	"github.com/erilali/gameroom/internal/room"
)

// Table implements Engine for any game by handling seats, spectators, chat and teardown, and
// delegating gameplay to Rules.
type Table struct {
	rules  Rules
	rooms  *room.Registry
	chat   *chat.Service
	logger *logger.Logger
	now    func() time.Time
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithTableClock replaces time.Now for game durations.
func WithTableClock(now func() time.Time) TableOption {
	return func(t *Table) { t.now = now }
}

// NewTable builds the engine of one game.
func NewTable(rules Rules, rooms *room.Registry, comments *chat.Service, log *logger.Logger, opts ...TableOption) *Table {
	if log == nil {
		log = logger.NewNop()
	}
	t := &Table{
		rules:  rules,
		rooms:  rooms,
		chat:   comments,
		logger: log.WithField("game", string(rules.Game())),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Game returns the game type served by this table.
func (t *Table) Game() room.GameType { return t.rules.Game() }

// Create opens a room and seats the creator in seat 0.
func (t *Table) Create(session string, out *Outbox) error {
	t.releaseFinished(session, "", out)
	if id, ok := t.rooms.PlayerRoom(session); ok {
		return message.Reject(message.CodeAlreadyInRoom, "already seated in room %s", id)
	}
	snap, err := t.rooms.Create(t.rules.Game(), t.rules.NewState())
	if err != nil {
		return Translate(err)
	}

	err = t.rooms.With(snap.ID, func(r *room.Room) error {
		seat, err := r.AddPlayer(session)
		if err != nil {
			r.Close()
			return err
		}
		out.To(session, message.EventRoomCreated, t.seatData(r, seat))
		return nil
	})
	if err != nil {
		return Translate(err)
	}
	t.logger.Infof("Room %s created by %s", snap.ID, session)
	return nil
}

// Join seats session in the room, or adds it as a spectator. The game starts when the last
// seat fills.
func (t *Table) Join(session, roomID string, spectator bool, out *Outbox) error {
	if spectator {
		return t.joinSpectator(session, roomID, out)
	}
	t.releaseFinished(session, roomID, out)
	err := t.rooms.With(roomID, func(r *room.Room) error {
		if seat := r.Seat(session); seat >= 0 {
			out.To(session, message.EventRoomJoined, t.seatData(r, seat))
			return nil
		}
		if r.Status() == room.StatusFinished {
			return message.Reject(message.CodeGameFinished, "game already finished")
		}
		seat, err := r.AddPlayer(session)
		if err != nil {
			return err
		}
		out.To(session, message.EventRoomJoined, t.seatData(r, seat))
		out.Others(r, session, message.EventPlayerJoined, map[string]interface{}{
			"session":      session,
			"position":     seat,
			"player_count": r.PlayerCount(),
		})
		if r.Full() && r.Status() == room.StatusWaiting {
			t.start(r, out)
		}
		return nil
	})
	return Translate(err)
}

func (t *Table) joinSpectator(session, roomID string, out *Outbox) error {
	err := t.rooms.With(roomID, func(r *room.Room) error {
		if err := r.AddSpectator(session); err != nil {
			return err
		}
		out.To(session, message.EventRoomJoined, map[string]interface{}{
			"room_id":   r.ID,
			"game":      r.Game,
			"spectator": true,
			"players":   r.Players(),
			"status":    r.Status(),
			"state":     t.rules.Describe(r),
		})
		out.Others(r, session, message.EventSpectatorJoined, map[string]interface{}{
			"session":         session,
			"spectator_count": r.SpectatorCount(),
		})
		t.spectatorList(r, out)
		return nil
	})
	return Translate(err)
}

// Rejoin resubscribes a reconnecting session and replays the state it needs.
func (t *Table) Rejoin(session, roomID string, out *Outbox) error {
	err := t.rooms.With(roomID, func(r *room.Room) error {
		if r.IsSpectator(session) {
			out.To(session, message.EventRoomJoined, map[string]interface{}{
				"room_id":   r.ID,
				"game":      r.Game,
				"spectator": true,
				"players":   r.Players(),
				"status":    r.Status(),
				"state":     t.rules.Describe(r),
			})
			return nil
		}
		seat := r.Seat(session)
		if seat < 0 {
			return message.Reject(message.CodeNotInRoom, "not a member of room %s", roomID)
		}
		st := room.PlayerConnected
		if r.Status() == room.StatusPlaying {
			st = room.PlayerPlaying
		}
		r.SetPlayerStatus(session, st)
		r.Touch()

		data := t.seatData(r, seat)
		data["rejoined"] = true
		out.To(session, message.EventRoomJoined, data)
		t.rules.Resync(r, seat, out)
		return nil
	})
	return Translate(err)
}

// Leave removes a spectator from the room.
func (t *Table) Leave(session, roomID string, out *Outbox) error {
	err := t.rooms.With(roomID, func(r *room.Room) error {
		if !r.RemoveSpectator(session) {
			return message.Reject(message.CodeNotInRoom, "not spectating room %s", roomID)
		}
		t.spectatorList(r, out)
		return nil
	})
	return Translate(err)
}

// Handle applies a game action of a seated player.
func (t *Table) Handle(session, roomID, action string, payload json.RawMessage, out *Outbox) error {
	err := t.rooms.With(roomID, func(r *room.Room) error {
		if r.IsSpectator(session) {
			return message.Reject(message.CodeSpectatorAction, "spectators cannot play")
		}
		seat := r.Seat(session)
		if seat < 0 {
			return message.Reject(message.CodeNotInRoom, "not a member of room %s", roomID)
		}
		switch r.Status() {
		case room.StatusWaiting:
			return message.Reject(message.CodeGameNotStarted, "game has not started")
		case room.StatusFinished:
			return message.Reject(message.CodeGameFinished, "game already finished")
		}

		outcome, err := t.rules.Act(r, seat, action, payload, out)
		if err != nil {
			return err
		}
		r.Touch()
		if outcome != nil {
			t.finish(r, outcome, out)
		}
		return nil
	})
	return Translate(err)
}

// Comment runs text through the chat pipeline and broadcasts it to the room. The pipeline
// runs outside the room lock since the rate window may live in redis.
func (t *Table) Comment(ctx context.Context, session, roomID, text string, out *Outbox) error {
	err := t.rooms.With(roomID, func(r *room.Room) error {
		if r.Seat(session) < 0 && !r.IsSpectator(session) {
			return message.Reject(message.CodeNotInRoom, "not a member of room %s", roomID)
		}
		return nil
	})
	if err != nil {
		return Translate(err)
	}

	c, err := t.chat.Send(ctx, roomID, session, text)
	if err != nil {
		return err
	}

	err = t.rooms.With(roomID, func(r *room.Room) error {
		r.Touch()
		out.Room(r, message.EventNewComment, c)
		return nil
	})
	if errors.Is(err, room.ErrRoomNotFound) {
		// torn down while the comment was in flight, after its history was cleared
		t.chat.ClearRoom(roomID)
	}
	return Translate(err)
}

// Disconnect handles a dropped connection. A seated player tears the room down, a spectator
// only loses its membership.
func (t *Table) Disconnect(session, roomID string, out *Outbox) {
	err := t.rooms.With(roomID, func(r *room.Room) error {
		if seat := r.Seat(session); seat >= 0 {
			r.SetPlayerStatus(session, room.PlayerDisconnected)
			out.Others(r, session, message.EventPlayerLeft, map[string]interface{}{
				"session":     session,
				"position":    seat,
				"room_closed": true,
			})
			r.Close()
			out.Closed(r.ID)
			t.logger.Infof("Room %s closed, player %s disconnected", r.ID, session)
			return nil
		}
		if r.RemoveSpectator(session) {
			t.spectatorList(r, out)
		}
		return nil
	})
	if err != nil {
		t.logger.Debugf("Disconnect of %s from room %s: %v", session, roomID, err)
	}
}

// Describe returns the public view of a room and its game.
func (t *Table) Describe(roomID string) (interface{}, bool) {
	var view map[string]interface{}
	err := t.rooms.With(roomID, func(r *room.Room) error {
		view = map[string]interface{}{
			"room":  r.Snapshot(),
			"state": t.rules.Describe(r),
		}
		return nil
	})
	return view, err == nil
}

// releaseFinished drops the claim session still holds on a finished room other than keep, so
// the player can sit down elsewhere. Seating of the finished game is left intact for replays.
// The room closes once no seat holds a claim.
func (t *Table) releaseFinished(session, keep string, out *Outbox) {
	id, ok := t.rooms.PlayerRoom(session)
	if !ok || id == keep {
		return
	}
	err := t.rooms.With(id, func(r *room.Room) error {
		if r.Status() != room.StatusFinished {
			return nil
		}
		seat := r.Seat(session)
		held := r.ReleaseSeat(session)
		out.Others(r, session, message.EventPlayerLeft, map[string]interface{}{
			"room_id":     r.ID,
			"session":     session,
			"position":    seat,
			"room_closed": held == 0,
		})
		if held == 0 {
			r.Close()
			out.Closed(r.ID)
		}
		return nil
	})
	if err != nil {
		t.logger.Debugf("Release of %s from room %s: %v", session, id, err)
	}
}

func (t *Table) start(r *room.Room, out *Outbox) {
	r.SetStatus(room.StatusPlaying)
	for _, p := range r.Players() {
		r.SetPlayerStatus(p, room.PlayerPlaying)
	}
	t.rules.Start(r, out)
	t.logger.Infof("Game started in room %s", r.ID)
}

func (t *Table) finish(r *room.Room, outcome *Outcome, out *Outbox) {
	r.SetStatus(room.StatusFinished)

	moves, err := json.Marshal(outcome.Moves)
	if err != nil {
		t.logger.Errorf("Failed to encode moves of room %s: %v", r.ID, err)
		moves = json.RawMessage("null")
	}
	now := t.now()
	out.Finished(Finish{
		Game:           r.Game,
		RoomID:         r.ID,
		Moves:          moves,
		Winner:         outcome.Winner,
		PlayerCount:    r.PlayerCount(),
		SpectatorCount: r.SpectatorCount(),
		Duration:       now.Sub(r.CreatedAt),
		EndedAt:        now,
	})
	t.logger.Infof("Game finished in room %s, winner %q", r.ID, outcome.Winner)
}

func (t *Table) seatData(r *room.Room, seat int) map[string]interface{} {
	data := map[string]interface{}{
		"room_id":  r.ID,
		"game":     r.Game,
		"position": seat,
		"players":  r.Players(),
		"status":   r.Status(),
	}
	for k, v := range t.rules.SeatInfo(seat) {
		data[k] = v
	}
	return data
}

func (t *Table) spectatorList(r *room.Room, out *Outbox) {
	out.Room(r, message.EventSpectatorListUpdated, map[string]interface{}{
		"spectators":      r.Spectators(),
		"spectator_count": r.SpectatorCount(),
	})
}
