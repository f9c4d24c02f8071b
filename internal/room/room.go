// internal/room/room.go
// Room membership and lifecycle. A *Room is only handed out inside Registry.With, which holds
// the room's lock for the duration of the callback.
package room

import (
	"errors"
	"sync"
	"time"
)

// GameType tags which game a room runs.
type GameType string

const (
	Gomoku   GameType = "gomoku"
	Landlord GameType = "landlord"
	Racing   GameType = "racing"
)

var seatCounts = map[GameType]int{
	Gomoku:   2,
	Landlord: 3,
	Racing:   2,
}

// Seats returns the fixed seat count of the game, zero for unknown games.
func (g GameType) Seats() int {
	return seatCounts[g]
}

// ParseGameType validates a client supplied game name.
func ParseGameType(s string) (GameType, bool) {
	g := GameType(s)
	_, ok := seatCounts[g]
	return g, ok
}

// Status is the lifecycle state of a room.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// PlayerState tracks a seated session.
type PlayerState string

const (
	PlayerConnected    PlayerState = "connected"
	PlayerReady        PlayerState = "ready"
	PlayerPlaying      PlayerState = "playing"
	PlayerDisconnected PlayerState = "disconnected"
)

// State is the game specific payload of a room. Each game has one concrete implementation.
type State interface {
	Game() GameType
}

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room is full")
	ErrSessionBusy   = errors.New("session already belongs to another room")
	ErrSpectating    = errors.New("session is spectating this room")
	ErrSeated        = errors.New("session is seated in this room")
	ErrUnknownGame   = errors.New("unknown game type")
	ErrStateMismatch = errors.New("state does not match game type")
)

// Room is one game session with its seats, spectators and state.
type Room struct {
	ID        string
	Game      GameType
	CreatedAt time.Time
	// State is owned by the game engine and only touched inside Registry.With.
	State State

	players      []string
	spectators   []string
	status       Status
	lastActivity time.Time

	mu     sync.Mutex
	closed bool
	index  *sessionIndex
	now    func() time.Time
}

// Players returns the seated sessions in seat order.
func (r *Room) Players() []string {
	return append([]string(nil), r.players...)
}

// Spectators returns the watching sessions in join order.
func (r *Room) Spectators() []string {
	return append([]string(nil), r.spectators...)
}

// Members returns players then spectators.
func (r *Room) Members() []string {
	out := make([]string, 0, len(r.players)+len(r.spectators))
	out = append(out, r.players...)
	return append(out, r.spectators...)
}

func (r *Room) PlayerCount() int    { return len(r.players) }
func (r *Room) SpectatorCount() int { return len(r.spectators) }
func (r *Room) Status() Status      { return r.status }

// Full reports whether every seat is taken.
func (r *Room) Full() bool {
	return len(r.players) >= r.Game.Seats()
}

// Seat returns the seat index of session, or -1 when it is not seated.
func (r *Room) Seat(session string) int {
	for i, p := range r.players {
		if p == session {
			return i
		}
	}
	return -1
}

// IsSpectator reports whether session watches this room.
func (r *Room) IsSpectator(session string) bool {
	return indexOf(r.spectators, session) >= 0
}

// Touch records activity on the room.
func (r *Room) Touch() {
	r.lastActivity = r.now()
}

// SetStatus moves the room to a new lifecycle state.
func (r *Room) SetStatus(s Status) {
	r.status = s
	r.Touch()
}

// AddPlayer seats session in the next free seat and returns it. Seating an already seated
// session returns its existing seat.
func (r *Room) AddPlayer(session string) (int, error) {
	if seat := r.Seat(session); seat >= 0 {
		r.Touch()
		return seat, nil
	}
	if r.IsSpectator(session) {
		return -1, ErrSpectating
	}
	if r.Full() {
		return -1, ErrRoomFull
	}
	if err := r.index.claimPlayer(session, r.ID, r.now()); err != nil {
		return -1, err
	}
	r.players = append(r.players, session)
	r.Touch()
	return len(r.players) - 1, nil
}

// RemovePlayer frees the session's seat and deletes its status record. Kicking a player is
// the same operation.
func (r *Room) RemovePlayer(session string) bool {
	i := indexOf(r.players, session)
	if i < 0 {
		return false
	}
	r.players = append(r.players[:i], r.players[i+1:]...)
	r.index.releasePlayer(session, r.ID)
	r.Touch()
	return true
}

// ReleaseSeat deletes the session's status record but keeps its seat, so a finished game keeps
// its seating. It returns how many seated players still hold a record for the room.
func (r *Room) ReleaseSeat(session string) int {
	r.index.releasePlayer(session, r.ID)
	held := 0
	for _, p := range r.players {
		if r.index.holds(p, r.ID) {
			held++
		}
	}
	return held
}

// AddSpectator adds session to the watchers. Adding twice is a no-op.
func (r *Room) AddSpectator(session string) error {
	if r.IsSpectator(session) {
		return nil
	}
	if r.Seat(session) >= 0 {
		return ErrSeated
	}
	if err := r.index.claimSpectator(session, r.ID); err != nil {
		return err
	}
	r.spectators = append(r.spectators, session)
	r.Touch()
	return nil
}

// RemoveSpectator drops session from the watchers.
func (r *Room) RemoveSpectator(session string) bool {
	i := indexOf(r.spectators, session)
	if i < 0 {
		return false
	}
	r.spectators = append(r.spectators[:i], r.spectators[i+1:]...)
	r.index.releaseSpectator(session, r.ID)
	r.Touch()
	return true
}

// SetPlayerStatus updates the status record of a seated session.
func (r *Room) SetPlayerStatus(session string, st PlayerState) bool {
	if r.Seat(session) < 0 {
		return false
	}
	return r.index.setStatus(session, r.ID, st)
}

// Close tears the room down: every membership is released and the registry unlinks the room
// once the current With callback returns.
func (r *Room) Close() {
	if r.closed {
		return
	}
	for _, p := range r.players {
		r.index.releasePlayer(p, r.ID)
	}
	for _, s := range r.spectators {
		r.index.releaseSpectator(s, r.ID)
	}
	r.closed = true
}

// Closed reports whether Close was called.
func (r *Room) Closed() bool {
	return r.closed
}

// Snapshot is a copy of a room's bookkeeping, safe to use without the room lock.
type Snapshot struct {
	ID             string    `json:"room_id"`
	Game           GameType  `json:"game_type"`
	Status         Status    `json:"status"`
	Players        []string  `json:"players"`
	Spectators     []string  `json:"spectators"`
	PlayerCount    int       `json:"player_count"`
	SpectatorCount int       `json:"spectator_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
}

// Snapshot copies the room's bookkeeping.
func (r *Room) Snapshot() Snapshot {
	return Snapshot{
		ID:             r.ID,
		Game:           r.Game,
		Status:         r.status,
		Players:        r.Players(),
		Spectators:     r.Spectators(),
		PlayerCount:    len(r.players),
		SpectatorCount: len(r.spectators),
		CreatedAt:      r.CreatedAt,
		LastActivity:   r.lastActivity,
	}
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
