// internal/room/registry.go
package room

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout is how long a room may stay idle before the sweep removes it.
const DefaultTimeout = 1800 * time.Second

// PlayerStatus is the tracking record of a seated session.
type PlayerStatus struct {
	Session  string      `json:"session"`
	RoomID   string      `json:"room_id"`
	Status   PlayerState `json:"status"`
	JoinedAt time.Time   `json:"joined_at"`
}

// sessionIndex maps sessions to the room they sit or watch in. Its mutex is a leaf: it is
// taken while a room lock may be held, and nothing else is ever acquired under it.
type sessionIndex struct {
	mu         sync.Mutex
	players    map[string]*PlayerStatus
	spectators map[string]string
}

func newSessionIndex() *sessionIndex {
	return &sessionIndex{
		players:    make(map[string]*PlayerStatus),
		spectators: make(map[string]string),
	}
}

func (ix *sessionIndex) claimPlayer(session, roomID string, now time.Time) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ps, ok := ix.players[session]; ok && ps.RoomID != roomID {
		return ErrSessionBusy
	}
	ix.players[session] = &PlayerStatus{Session: session, RoomID: roomID, Status: PlayerConnected, JoinedAt: now}
	return nil
}

func (ix *sessionIndex) releasePlayer(session, roomID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ps, ok := ix.players[session]; ok && ps.RoomID == roomID {
		delete(ix.players, session)
	}
}

func (ix *sessionIndex) holds(session, roomID string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ps, ok := ix.players[session]
	return ok && ps.RoomID == roomID
}

func (ix *sessionIndex) setStatus(session, roomID string, st PlayerState) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ps, ok := ix.players[session]
	if !ok || ps.RoomID != roomID {
		return false
	}
	ps.Status = st
	return true
}

func (ix *sessionIndex) claimSpectator(session, roomID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if cur, ok := ix.spectators[session]; ok && cur != roomID {
		return ErrSessionBusy
	}
	ix.spectators[session] = roomID
	return nil
}

func (ix *sessionIndex) releaseSpectator(session, roomID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.spectators[session] == roomID {
		delete(ix.spectators, session)
	}
}

// Registry owns every live room.
//
// Lock order: mu guards only the id to room map and is never acquired while a room lock
// is held. Room locks serialize everything that reads or writes one room.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	index   *sessionIndex
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout sets the inactivity timeout used by Sweep.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator replaces the room id generator.
func WithIDGenerator(f func() string) Option {
	return func(r *Registry) { r.newID = f }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:   make(map[string]*Room),
		index:   newSessionIndex(),
		timeout: DefaultTimeout,
		now:     time.Now,
		newID:   func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Timeout returns the inactivity timeout.
func (reg *Registry) Timeout() time.Duration {
	return reg.timeout
}

// Create registers a new waiting room for game with its initial state.
func (reg *Registry) Create(game GameType, state State) (Snapshot, error) {
	if game.Seats() == 0 {
		return Snapshot{}, ErrUnknownGame
	}
	if state == nil || state.Game() != game {
		return Snapshot{}, ErrStateMismatch
	}

	now := reg.now()
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for attempt := 0; attempt < 16; attempt++ {
		id := reg.newID()
		if _, taken := reg.rooms[id]; taken {
			continue
		}
		r := &Room{
			ID:           id,
			Game:         game,
			CreatedAt:    now,
			State:        state,
			status:       StatusWaiting,
			lastActivity: now,
			index:        reg.index,
			now:          reg.now,
		}
		reg.rooms[id] = r
		return r.Snapshot(), nil
	}
	return Snapshot{}, fmt.Errorf("create room: no free id after 16 attempts")
}

func (reg *Registry) lookup(id string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[id]
}

func (reg *Registry) unlink(r *Room) {
	reg.mu.Lock()
	if reg.rooms[r.ID] == r {
		delete(reg.rooms, r.ID)
	}
	reg.mu.Unlock()
}

// With runs fn with exclusive access to the room. A room closed by fn is removed from the
// registry after its lock is released. Returns ErrRoomNotFound for unknown or closed rooms,
// otherwise fn's error.
func (reg *Registry) With(id string, fn func(r *Room) error) error {
	r := reg.lookup(id)
	if r == nil {
		return ErrRoomNotFound
	}

	closed, err := r.locked(fn)
	if closed {
		reg.unlink(r)
	}
	return err
}

// locked runs fn under the room lock and reports whether the room ended up closed. The lock
// is released even when fn panics.
func (r *Room) locked(fn func(r *Room) error) (closed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, ErrRoomNotFound
	}
	err = fn(r)
	return r.closed, err
}

// Get returns a snapshot of the room.
func (reg *Registry) Get(id string) (Snapshot, bool) {
	var snap Snapshot
	err := reg.With(id, func(r *Room) error {
		snap = r.Snapshot()
		return nil
	})
	return snap, err == nil
}

// GameOf returns the game type of a room without taking its lock.
func (reg *Registry) GameOf(id string) (GameType, bool) {
	r := reg.lookup(id)
	if r == nil {
		return "", false
	}
	return r.Game, true
}

// AddPlayer seats session in the room. Seating an already seated session is a no-op.
func (reg *Registry) AddPlayer(id, session string) (int, error) {
	seat := -1
	err := reg.With(id, func(r *Room) error {
		var err error
		seat, err = r.AddPlayer(session)
		return err
	})
	return seat, err
}

// RemovePlayer frees the session's seat and deletes its status record.
func (reg *Registry) RemovePlayer(id, session string) bool {
	removed := false
	_ = reg.With(id, func(r *Room) error {
		removed = r.RemovePlayer(session)
		return nil
	})
	return removed
}

// AddSpectator adds session to the room's watchers.
func (reg *Registry) AddSpectator(id, session string) error {
	return reg.With(id, func(r *Room) error {
		return r.AddSpectator(session)
	})
}

// RemoveSpectator drops session from the room's watchers.
func (reg *Registry) RemoveSpectator(id, session string) bool {
	removed := false
	_ = reg.With(id, func(r *Room) error {
		removed = r.RemoveSpectator(session)
		return nil
	})
	return removed
}

// UpdateStatus sets the room's lifecycle status.
func (reg *Registry) UpdateStatus(id string, s Status) bool {
	return reg.With(id, func(r *Room) error {
		r.SetStatus(s)
		return nil
	}) == nil
}

// Touch records activity on the room.
func (reg *Registry) Touch(id string) bool {
	return reg.With(id, func(r *Room) error {
		r.Touch()
		return nil
	}) == nil
}

// Delete tears the room down immediately.
func (reg *Registry) Delete(id string) bool {
	return reg.With(id, func(r *Room) error {
		r.Close()
		return nil
	}) == nil
}

// Sweep removes every room idle for longer than the timeout and returns their snapshots,
// taken just before removal.
func (reg *Registry) Sweep() []Snapshot {
	reg.mu.RLock()
	candidates := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		candidates = append(candidates, r)
	}
	reg.mu.RUnlock()

	now := reg.now()
	var removed []*Room
	var snaps []Snapshot
	for _, r := range candidates {
		r.mu.Lock()
		if !r.closed && now.Sub(r.lastActivity) > reg.timeout {
			snaps = append(snaps, r.Snapshot())
			r.Close()
			removed = append(removed, r)
		}
		r.mu.Unlock()
	}

	for _, r := range removed {
		reg.unlink(r)
	}
	return snaps
}

// List returns snapshots of every room, or only rooms of game when it is not empty, oldest
// first.
func (reg *Registry) List(game GameType) []Snapshot {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		if game == "" || r.Game == game {
			rooms = append(rooms, r)
		}
	}
	reg.mu.RUnlock()

	out := make([]Snapshot, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.closed {
			out = append(out, r.Snapshot())
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// PlayerRoom returns the room a session is seated in.
func (reg *Registry) PlayerRoom(session string) (string, bool) {
	reg.index.mu.Lock()
	defer reg.index.mu.Unlock()
	ps, ok := reg.index.players[session]
	if !ok {
		return "", false
	}
	return ps.RoomID, true
}

// SpectatorRoom returns the room a session is watching.
func (reg *Registry) SpectatorRoom(session string) (string, bool) {
	reg.index.mu.Lock()
	defer reg.index.mu.Unlock()
	id, ok := reg.index.spectators[session]
	return id, ok
}

// PlayerStatus returns a copy of the session's tracking record.
func (reg *Registry) PlayerStatus(session string) (PlayerStatus, bool) {
	reg.index.mu.Lock()
	defer reg.index.mu.Unlock()
	ps, ok := reg.index.players[session]
	if !ok {
		return PlayerStatus{}, false
	}
	return *ps, true
}

// UpdatePlayerStatus changes the status of a seated session.
func (reg *Registry) UpdatePlayerStatus(session string, st PlayerState) bool {
	reg.index.mu.Lock()
	defer reg.index.mu.Unlock()
	ps, ok := reg.index.players[session]
	if !ok {
		return false
	}
	ps.Status = st
	return true
}

// Stats summarizes the registry.
type Stats struct {
	Rooms      int              `json:"total_rooms"`
	ByGame     map[GameType]int `json:"rooms_by_game"`
	Players    int              `json:"total_players"`
	Spectators int              `json:"total_spectators"`
}

// Stats counts rooms per game and tracked sessions.
func (reg *Registry) Stats() Stats {
	reg.mu.RLock()
	st := Stats{Rooms: len(reg.rooms), ByGame: make(map[GameType]int)}
	for _, r := range reg.rooms {
		st.ByGame[r.Game]++
	}
	reg.mu.RUnlock()

	reg.index.mu.Lock()
	st.Players = len(reg.index.players)
	st.Spectators = len(reg.index.spectators)
	reg.index.mu.Unlock()
	return st
}
