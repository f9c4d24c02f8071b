// internal/game/outbox.go
package game

import (
	"encoding/json"
	"time"

	"github.com/erilali/gameroom/internal/message"
	"github.com/erilali/gameroom/internal/room"
)

// Delivery is one event addressed to a fixed set of sessions. Recipients are resolved when the
// event is emitted, under the room lock, so later membership changes do not affect it.
type Delivery struct {
	Sessions []string
	Event    message.Event
}

// Finish describes a game that just ended and should be recorded.
type Finish struct {
	Game           room.GameType
	RoomID         string
	Moves          json.RawMessage
	Winner         string
	PlayerCount    int
	SpectatorCount int
	Duration       time.Duration
	EndedAt        time.Time
}

// Outbox collects what an engine call produced. The dispatcher drains it after the room lock
// is released.
type Outbox struct {
	deliveries []Delivery
	finished   []Finish
	closed     []string
}

// To sends an event to one session.
func (o *Outbox) To(session, typ string, data interface{}) {
	o.ToMany([]string{session}, typ, data)
}

// ToMany sends an event to the given sessions.
func (o *Outbox) ToMany(sessions []string, typ string, data interface{}) {
	if len(sessions) == 0 {
		return
	}
	o.deliveries = append(o.deliveries, Delivery{
		Sessions: append([]string(nil), sessions...),
		Event:    message.Event{Type: typ, Data: data},
	})
}

// Room sends an event to every player and spectator of r.
func (o *Outbox) Room(r *room.Room, typ string, data interface{}) {
	o.ToMany(r.Members(), typ, data)
}

// Others sends an event to every member of r except one session.
func (o *Outbox) Others(r *room.Room, except, typ string, data interface{}) {
	members := r.Members()
	out := members[:0]
	for _, s := range members {
		if s != except {
			out = append(out, s)
		}
	}
	o.ToMany(out, typ, data)
}

// Spectators sends an event to the watchers of r only.
func (o *Outbox) Spectators(r *room.Room, typ string, data interface{}) {
	o.ToMany(r.Spectators(), typ, data)
}

// Reject sends an error event to the acting session.
func (o *Outbox) Reject(session string, rej *message.Rejection) {
	o.deliveries = append(o.deliveries, Delivery{
		Sessions: []string{session},
		Event:    message.ErrorEvent(rej),
	})
}

// Finished records a game that ended during this call.
func (o *Outbox) Finished(f Finish) {
	o.finished = append(o.finished, f)
}

// Closed records a room that was torn down during this call.
func (o *Outbox) Closed(roomID string) {
	o.closed = append(o.closed, roomID)
}

// Deliveries returns the queued events in emit order.
func (o *Outbox) Deliveries() []Delivery { return o.deliveries }

// Finishes returns the games that ended.
func (o *Outbox) Finishes() []Finish { return o.finished }

// ClosedRooms returns the ids of rooms torn down.
func (o *Outbox) ClosedRooms() []string { return o.closed }

// Events returns the types of every event delivered to session, in order. Used by tests.
func (o *Outbox) Events(session string) []string {
	var types []string
	for _, d := range o.deliveries {
		for _, s := range d.Sessions {
			if s == session {
				types = append(types, d.Event.Type)
				break
			}
		}
	}
	return types
}

// Last returns the newest event of type typ delivered to session.
func (o *Outbox) Last(session, typ string) (message.Event, bool) {
	for i := len(o.deliveries) - 1; i >= 0; i-- {
		d := o.deliveries[i]
		if d.Event.Type != typ {
			continue
		}
		for _, s := range d.Sessions {
			if s == session {
				return d.Event, true
			}
		}
	}
	return message.Event{}, false
}

// Reset empties the outbox.
func (o *Outbox) Reset() {
	o.deliveries = nil
	o.finished = nil
	o.closed = nil
}
