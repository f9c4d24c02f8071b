// internal/hub/dispatch.go
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/erilali/gameroom/internal/chat"
	"github.com/erilali/gameroom/internal/game"
	"github.com/erilali/gameroom/internal/message"
	"github.com/erilali/gameroom/internal/records"
	"github.com/erilali/gameroom/internal/room"
)

const commentTimeout = 2 * time.Second

// gameActions are forwarded to the engine of the room named in the payload.
var gameActions = map[string]bool{
	message.TypeMakeMove:    true,
	message.TypeBid:         true,
	message.TypePlayCards:   true,
	message.TypePass:        true,
	message.TypeUpdateScore: true,
	message.TypeGameOver:    true,
}

var knownTypes = map[string]bool{
	message.TypePing:          true,
	message.TypeCreateRoom:    true,
	message.TypeJoinRoom:      true,
	message.TypeRejoinRoom:    true,
	message.TypeLeaveSpectate: true,
	message.TypeSendComment:   true,
}

// PingPayload is the optional payload of ping.
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// HandleFrame decodes one client frame, routes it and delivers what it produced. A rule
// violation is answered with an error event to session only.
func (h *Hub) HandleFrame(session string, frame []byte) {
	start := time.Now()
	in, err := message.DecodeInbound(frame)
	if err != nil {
		h.metrics.Inbound.WithLabelValues("invalid").Inc()
		h.rejectOnly(session, err)
		return
	}

	label := in.Type
	if !knownTypes[label] && !gameActions[label] {
		label = "unknown"
	}
	h.metrics.Inbound.WithLabelValues(label).Inc()
	defer func() {
		h.metrics.HandleSeconds.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	out := &game.Outbox{}
	if err := h.safeRoute(session, in, out); err != nil {
		rej, known := message.AsRejection(err)
		if !known {
			h.logger.WithError(err).Errorf("Handling %s from %s failed", in.Type, session)
		}
		out.Reject(session, rej)
	}
	h.flush(out)
}

// safeRoute recovers a panicking handler. Whatever the handler emitted before panicking is
// dropped.
func (h *Hub) safeRoute(session string, in message.Inbound, out *game.Outbox) (err error) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.WithFields(map[string]interface{}{
				"session": session,
				"type":    in.Type,
				"stack":   string(debug.Stack()),
			}).Errorf("Handler panic: %v", p)
			out.Reset()
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h.route(session, in, out)
}

func (h *Hub) route(session string, in message.Inbound, out *game.Outbox) error {
	switch in.Type {
	case message.TypePing:
		var p PingPayload
		_ = json.Unmarshal(in.Data, &p)
		out.To(session, message.EventPong, map[string]interface{}{
			"timestamp":   p.Timestamp,
			"server_time": time.Now().UnixMilli(),
		})
		return nil

	case message.TypeCreateRoom:
		name := in.Game
		if name == "" {
			name = string(room.Gomoku)
		}
		gt, ok := room.ParseGameType(name)
		if !ok {
			return message.Reject(message.CodeUnknownGame, "unknown game type %q", name)
		}
		eng, ok := h.engines.Lookup(gt)
		if !ok {
			return message.Reject(message.CodeUnknownGame, "game %s is not served", gt)
		}
		return eng.Create(session, out)

	case message.TypeJoinRoom:
		var p message.JoinPayload
		if err := message.Decode(in.Data, &p); err != nil {
			return err
		}
		eng, err := h.engineFor(in.Game, p.RoomID)
		if err != nil {
			return err
		}
		return eng.Join(session, p.RoomID, p.Spectator, out)

	case message.TypeRejoinRoom:
		var p message.RoomRef
		if err := message.Decode(in.Data, &p); err != nil {
			return err
		}
		eng, err := h.engineFor(in.Game, p.RoomID)
		if err != nil {
			return err
		}
		return eng.Rejoin(session, p.RoomID, out)

	case message.TypeLeaveSpectate:
		var p message.RoomRef
		if err := message.Decode(in.Data, &p); err != nil {
			return err
		}
		eng, err := h.engineFor(in.Game, p.RoomID)
		if err != nil {
			return err
		}
		return eng.Leave(session, p.RoomID, out)

	case message.TypeSendComment:
		var p message.CommentPayload
		if err := message.Decode(in.Data, &p); err != nil {
			return err
		}
		eng, err := h.engineFor(in.Game, p.RoomID)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), commentTimeout)
		defer cancel()
		err = eng.Comment(ctx, session, p.RoomID, p.Comment, out)
		h.countComment(err)
		return err
	}

	if !gameActions[in.Type] {
		return message.Reject(message.CodeUnknownType, "unknown message type %q", in.Type)
	}
	var ref message.RoomRef
	if err := message.Decode(in.Data, &ref); err != nil {
		return err
	}
	eng, err := h.engineFor(in.Game, ref.RoomID)
	if err != nil {
		return err
	}
	return eng.Handle(session, ref.RoomID, in.Type, in.Data, out)
}

// engineFor resolves the engine of a room. A game named by the client must match the room's.
func (h *Hub) engineFor(name, roomID string) (game.Engine, error) {
	gt, ok := h.rooms.GameOf(roomID)
	if !ok {
		return nil, message.Reject(message.CodeRoomNotFound, "room %s not found", roomID)
	}
	if name != "" {
		want, ok := room.ParseGameType(name)
		if !ok {
			return nil, message.Reject(message.CodeUnknownGame, "unknown game type %q", name)
		}
		if want != gt {
			return nil, message.Reject(message.CodeWrongGame, "room %s is a %s room", roomID, gt)
		}
	}
	eng, ok := h.engines.Lookup(gt)
	if !ok {
		return nil, message.Reject(message.CodeUnknownGame, "game %s is not served", gt)
	}
	return eng, nil
}

func (h *Hub) countComment(err error) {
	if err == nil {
		h.metrics.Comments.WithLabelValues("accepted").Inc()
		return
	}
	if rej, ok := message.AsRejection(err); ok {
		h.metrics.Comments.WithLabelValues(rej.Code).Inc()
	}
}

// disconnect routes a lost session to the engines of the rooms it sits or watches in.
func (h *Hub) disconnect(session string) {
	out := &game.Outbox{}
	func() {
		defer func() {
			if p := recover(); p != nil {
				h.logger.Errorf("Disconnect panic for %s: %v", session, p)
			}
		}()
		if id, ok := h.rooms.PlayerRoom(session); ok {
			if eng, err := h.engineFor("", id); err == nil {
				eng.Disconnect(session, id, out)
			}
		}
		if id, ok := h.rooms.SpectatorRoom(session); ok {
			if eng, err := h.engineFor("", id); err == nil {
				eng.Disconnect(session, id, out)
			}
		}
	}()
	h.flush(out)

	if h.chat != nil {
		go h.forget(session)
	}
}

// forget drops the session's rate window. It runs off the Run loop since the window may live
// in redis.
func (h *Hub) forget(session string) {
	ctx, cancel := context.WithTimeout(context.Background(), commentTimeout)
	defer cancel()
	h.chat.Forget(ctx, session)
}

// flush delivers the outbox and hands finished and closed rooms to recording, publishing and
// chat cleanup. It runs with no room lock held.
func (h *Hub) flush(out *game.Outbox) {
	roomsChanged := false
	for _, d := range out.Deliveries() {
		h.deliverEvent(d.Sessions, d.Event)
		switch d.Event.Type {
		case message.EventError:
			if data, ok := d.Event.Data.(message.ErrorData); ok {
				h.metrics.Rejections.WithLabelValues(data.Code).Inc()
			}
		case message.EventNewComment:
			if c, ok := d.Event.Data.(chat.Comment); ok {
				h.events.PublishComment(c)
			}
		case message.EventRoomCreated:
			roomsChanged = true
			if data, ok := d.Event.Data.(map[string]interface{}); ok {
				if id, ok := data["room_id"].(string); ok {
					h.events.PublishRoom(id, "created")
				}
			}
		}
	}

	for _, f := range out.Finishes() {
		h.metrics.GamesFinished.WithLabelValues(string(f.Game)).Inc()
		h.events.PublishGame(f)
		if h.recorder != nil {
			h.recorder.Submit(recordOf(f))
		}
		h.logger.Infof("Game %s finished in room %s, winner %q", f.Game, f.RoomID, f.Winner)
	}

	for _, id := range out.ClosedRooms() {
		roomsChanged = true
		if h.chat != nil {
			h.chat.ClearRoom(id)
		}
		h.events.PublishRoom(id, "closed")
	}
	if roomsChanged {
		h.refreshRoomGauge()
	}
}

func recordOf(f game.Finish) records.Record {
	return records.Record{
		GameType:       string(f.Game),
		RoomID:         f.RoomID,
		Moves:          f.Moves,
		Winner:         f.Winner,
		PlayerCount:    f.PlayerCount,
		SpectatorCount: f.SpectatorCount,
		Duration:       int(f.Duration / time.Second),
		CreatedAt:      f.EndedAt,
	}
}

func (h *Hub) refreshRoomGauge() {
	byGame := h.rooms.Stats().ByGame
	for _, gt := range []room.GameType{room.Gomoku, room.Landlord, room.Racing} {
		h.metrics.Rooms.WithLabelValues(string(gt)).Set(float64(byGame[gt]))
	}
}

// rejectOnly answers session with an error event outside any outbox.
func (h *Hub) rejectOnly(session string, err error) {
	rej, _ := message.AsRejection(err)
	h.metrics.Rejections.WithLabelValues(rej.Code).Inc()
	h.sendEvent(session, message.ErrorEvent(rej))
}

func (h *Hub) sendEvent(session string, ev message.Event) {
	h.deliverEvent([]string{session}, ev)
}

// deliverEvent encodes ev once and queues it for every session without blocking. A client
// whose buffer is full is disconnected.
func (h *Hub) deliverEvent(sessions []string, ev message.Event) {
	if len(sessions) == 0 {
		return
	}
	data, err := ev.Encode()
	if err != nil {
		h.logger.WithError(err).Error("Dropping undeliverable event")
		return
	}
	for _, session := range sessions {
		client := h.client(session)
		if client == nil {
			continue
		}
		if !client.enqueue(data) {
			h.logger.Warnf("Send buffer full for %s, closing connection", session)
			client.closeSend()
		}
	}
}
