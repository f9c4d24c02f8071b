// internal/message/rejection.go
package message

import (
	"errors"
	"fmt"
)

// Rejection codes sent to clients in error events.
const (
	CodeInvalidInput     = "invalid_input"
	CodeUnknownType      = "unknown_type"
	CodeUnknownGame      = "unknown_game"
	CodeWrongGame        = "wrong_game"
	CodeRoomNotFound     = "room_not_found"
	CodeRoomFull         = "room_full"
	CodeAlreadyInRoom    = "already_in_room"
	CodeNotInRoom        = "not_in_room"
	CodeSpectatorAction  = "spectator_action"
	CodeNotYourTurn      = "not_your_turn"
	CodeGameNotStarted   = "game_not_started"
	CodeGameFinished     = "game_finished"
	CodeCellOccupied     = "cell_occupied"
	CodeWrongPhase       = "wrong_phase"
	CodeIllegalCombo     = "illegal_combination"
	CodeCannotBeat       = "cannot_beat"
	CodeCardsNotInHand   = "cards_not_in_hand"
	CodeNothingToPass    = "nothing_to_pass"
	CodeRateLimited      = "rate_limited"
	CodeCommentFiltered  = "comment_filtered"
	CodeDuplicateComment = "duplicate_comment"
	CodeInternal         = "internal_error"
)

// Rejection is an error that is reported to the acting session only. It never changes state.
type Rejection struct {
	Code     string
	Message  string
	Cooldown int // seconds, rate limiting only
}

func (r *Rejection) Error() string {
	return r.Code + ": " + r.Message
}

// Reject builds a Rejection with a formatted message.
func Reject(code, format string, args ...interface{}) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRejection extracts a Rejection from err. Any other error becomes a generic internal error.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return &Rejection{Code: CodeInternal, Message: "internal server error"}, false
}
