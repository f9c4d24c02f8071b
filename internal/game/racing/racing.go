// internal/game/racing/racing.go
// Package racing implements the two seat score race. Scores are client reported and the game
// ends once both seats declare they are done.
package racing

import (
	"encoding/json"

	"github.com/erilali/gameroom/internal/game"
	"github.com/erilali/gameroom/internal/message"
	"github.com/erilali/gameroom/internal/room"
)

const seats = 2

// State is the race state of a room.
type State struct {
	Scores   [seats]int
	Finished [seats]bool
	Started  bool
	Updates  []Update
}

func (*State) Game() room.GameType { return room.Racing }

// Update is one reported score, kept for the record.
type Update struct {
	Position int  `json:"position"`
	Score    int  `json:"score"`
	Final    bool `json:"final,omitempty"`
}

// ScorePayload is the payload of update_score and game_over.
type ScorePayload struct {
	RoomID string `json:"room_id" validate:"required,max=64,roomid"`
	Score  *int   `json:"score" validate:"required,min=0,max=1000000"`
}

// Rules plays the race.
type Rules struct{}

// New returns the racing rules.
func New() Rules { return Rules{} }

func (Rules) Game() room.GameType { return room.Racing }

func (Rules) NewState() room.State { return &State{} }

func (Rules) SeatInfo(int) map[string]interface{} { return nil }

func (Rules) Start(r *room.Room, out *game.Outbox) {
	state(r).Started = true
	out.Room(r, message.EventGameStart, map[string]interface{}{"room_id": r.ID})
}

func (Rules) Act(r *room.Room, seat int, action string, payload json.RawMessage, out *game.Outbox) (*game.Outcome, error) {
	if action != message.TypeUpdateScore && action != message.TypeGameOver {
		return nil, message.Reject(message.CodeUnknownType, "racing does not support %s", action)
	}
	var p ScorePayload
	if err := message.Decode(payload, &p); err != nil {
		return nil, err
	}
	st := state(r)
	if st.Finished[seat] {
		return nil, message.Reject(message.CodeWrongPhase, "you already finished the race")
	}

	final := action == message.TypeGameOver
	st.Scores[seat] = *p.Score
	st.Updates = append(st.Updates, Update{Position: seat, Score: *p.Score, Final: final})
	out.Room(r, message.EventScoreUpdate, map[string]interface{}{"position": seat, "score": *p.Score})
	if !final {
		return nil, nil
	}

	st.Finished[seat] = true
	out.Room(r, message.EventPlayerFinished, map[string]interface{}{"position": seat, "score": *p.Score})
	for _, done := range st.Finished {
		if !done {
			return nil, nil
		}
	}

	scores := append([]int(nil), st.Scores[:]...)
	out.Room(r, message.EventGameOver, map[string]interface{}{"scores": scores})
	return &game.Outcome{
		Moves: map[string]interface{}{
			"scores":  scores,
			"updates": append([]Update(nil), st.Updates...),
		},
	}, nil
}

// Resync replays the start notice and one score update per seat.
func (Rules) Resync(r *room.Room, seat int, out *game.Outbox) {
	st := state(r)
	session := r.Players()[seat]
	if st.Started {
		out.To(session, message.EventGameStart, map[string]interface{}{"room_id": r.ID})
	}
	for i, score := range st.Scores {
		out.To(session, message.EventScoreUpdate, map[string]interface{}{"position": i, "score": score})
	}
}

func (Rules) Describe(r *room.Room) interface{} {
	st := state(r)
	return map[string]interface{}{
		"scores":   append([]int(nil), st.Scores[:]...),
		"finished": append([]bool(nil), st.Finished[:]...),
		"started":  st.Started,
		"status":   r.Status(),
	}
}

func state(r *room.Room) *State {
	return r.State.(*State)
}
