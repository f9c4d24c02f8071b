// internal/message/message.go
// Contains data structures for messages exchanged between clients and server.
package message

import (
	"encoding/json"
	"fmt"
)

// Version is stamped on every outbound envelope.
const Version = "1.0"

// Inbound message types.
const (
	TypePing          = "ping"
	TypeCreateRoom    = "create_room"
	TypeJoinRoom      = "join_room"
	TypeRejoinRoom    = "rejoin_room"
	TypeLeaveSpectate = "leave_spectate"
	TypeSendComment   = "send_comment"
	TypeMakeMove      = "make_move"
	TypeBid           = "bid"
	TypePlayCards     = "play_cards"
	TypePass          = "pass"
	TypeUpdateScore   = "update_score"
	TypeGameOver      = "game_over"
)

// Outbound event types.
const (
	EventError                = "error"
	EventPong                 = "pong"
	EventRoomCreated          = "room_created"
	EventRoomJoined           = "room_joined"
	EventRoomClosed           = "room_closed"
	EventPlayerJoined         = "player_joined"
	EventPlayerLeft           = "player_left"
	EventSpectatorJoined      = "spectator_joined"
	EventSpectatorListUpdated = "spectator_list_updated"
	EventGameStart            = "game_start"
	EventGameState            = "game_state"
	EventGameOver             = "game_over"
	EventNewComment           = "new_comment"
	EventMoveMade             = "move_made"
	EventBidTurn              = "bid_turn"
	EventBidMade              = "bid_made"
	EventNoLandlord           = "no_landlord"
	EventLandlordDecided      = "landlord_decided"
	EventPlayTurn             = "play_turn"
	EventCardsPlayed          = "cards_played"
	EventPassed               = "passed"
	EventScoreUpdate          = "score_update"
	EventPlayerFinished       = "player_finished"
)

// Inbound is the envelope every client message arrives in.
type Inbound struct {
	Version string          `json:"version,omitempty"`
	Type    string          `json:"type"`
	Game    string          `json:"game,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Event is one outbound message before it is wrapped for the wire.
type Event struct {
	Type string
	Data interface{}
}

// Outbound is the wire form of an Event.
type Outbound struct {
	Version string      `json:"version"`
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
}

// Encode wraps the event in the versioned envelope and marshals it.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(Outbound{Version: Version, Type: e.Type, Data: e.Data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Type, err)
	}
	return data, nil
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Cooldown int    `json:"cooldown,omitempty"`
}

// ErrorEvent builds the error event sent back to an offending session.
func ErrorEvent(r *Rejection) Event {
	return Event{Type: EventError, Data: ErrorData{Code: r.Code, Message: r.Message, Cooldown: r.Cooldown}}
}

// DecodeInbound parses the envelope of a raw client frame.
func DecodeInbound(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, Reject(CodeInvalidInput, "invalid message format")
	}
	if in.Type == "" {
		return in, Reject(CodeInvalidInput, "message type is required")
	}
	return in, nil
}
