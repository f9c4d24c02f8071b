// internal/game/engine.go
// Package game holds the contract shared by every game protocol engine and the table that
// implements membership handling on top of game specific rules.
package game

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/erilali/gameroom/internal/message"
	"github.com/erilali/gameroom/internal/room"
)

// Engine is the capability every game exposes to the dispatcher. Every method reports rule
// violations as a *message.Rejection and leaves the room untouched in that case.
type Engine interface {
	Game() room.GameType
	Create(session string, out *Outbox) error
	Join(session, roomID string, spectator bool, out *Outbox) error
	Rejoin(session, roomID string, out *Outbox) error
	Leave(session, roomID string, out *Outbox) error
	Handle(session, roomID, action string, payload json.RawMessage, out *Outbox) error
	Comment(ctx context.Context, session, roomID, text string, out *Outbox) error
	Disconnect(session, roomID string, out *Outbox)
	Describe(roomID string) (interface{}, bool)
}

// Outcome is returned by Rules.Act when the action ended the game.
type Outcome struct {
	Winner string
	Moves  interface{}
}

// Rules is the game specific part of an engine. Every method runs under the room lock and
// must not block.
type Rules interface {
	Game() room.GameType
	NewState() room.State
	// SeatInfo returns extra fields merged into room_created and room_joined for a seat.
	SeatInfo(seat int) map[string]interface{}
	// Start runs once when the last seat fills.
	Start(r *room.Room, out *Outbox)
	// Act applies one client action by a seated player in a playing room.
	Act(r *room.Room, seat int, action string, payload json.RawMessage, out *Outbox) (*Outcome, error)
	// Resync replays the state a reconnecting seat needs.
	Resync(r *room.Room, seat int, out *Outbox)
	// Describe returns the spectator safe view of the state.
	Describe(r *room.Room) interface{}
}

// Registry maps game types to engines.
type Registry map[room.GameType]Engine

// NewRegistry indexes engines by their game type.
func NewRegistry(engines ...Engine) Registry {
	reg := make(Registry, len(engines))
	for _, e := range engines {
		reg[e.Game()] = e
	}
	return reg
}

// Lookup returns the engine for game.
func (r Registry) Lookup(game room.GameType) (Engine, bool) {
	e, ok := r[game]
	return e, ok
}

// Translate maps registry errors to client rejections. Rejections pass through unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var rej *message.Rejection
	if errors.As(err, &rej) {
		return rej
	}
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return message.Reject(message.CodeRoomNotFound, "room not found")
	case errors.Is(err, room.ErrRoomFull):
		return message.Reject(message.CodeRoomFull, "room is full")
	case errors.Is(err, room.ErrSessionBusy):
		return message.Reject(message.CodeAlreadyInRoom, "already in another room")
	case errors.Is(err, room.ErrSpectating):
		return message.Reject(message.CodeAlreadyInRoom, "already spectating this room")
	case errors.Is(err, room.ErrSeated):
		return message.Reject(message.CodeAlreadyInRoom, "already seated in this room")
	case errors.Is(err, room.ErrUnknownGame):
		return message.Reject(message.CodeUnknownGame, "unknown game type")
	}
	return err
}
