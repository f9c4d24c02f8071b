// internal/game/gomoku/gomoku.go
// Package gomoku implements five-in-a-row on a 15x15 board.
package gomoku

import (
	"encoding/json"

	"github.com/erilali/gameroom/internal/game"
	"github.com/erilali/gameroom/internal/message"
	"github.com/erilali/gameroom/internal/room"
)

// BoardSize is the width and height of the board.
const BoardSize = 15

// Cell values. A stone's color is its seat plus one.
const (
	Empty = 0
	Black = 1
	White = 2
)

var colorNames = map[int]string{Black: "black", White: "white"}

// Move is one placed stone.
type Move struct {
	Row   int `json:"row"`
	Col   int `json:"col"`
	Color int `json:"color"`
}

// State is the board game state of a room.
type State struct {
	Board   [BoardSize][BoardSize]int
	Current int
	Moves   []Move
	Winner  int
}

func (*State) Game() room.GameType { return room.Gomoku }

// MovePayload is the payload of make_move.
type MovePayload struct {
	RoomID string `json:"room_id" validate:"required,max=64,roomid"`
	Row    *int   `json:"row" validate:"required,min=0,max=14"`
	Col    *int   `json:"col" validate:"required,min=0,max=14"`
}

// Rules plays gomoku.
type Rules struct{}

// New returns the gomoku rules.
func New() Rules { return Rules{} }

func (Rules) Game() room.GameType { return room.Gomoku }

func (Rules) NewState() room.State { return &State{Current: Black} }

// SeatInfo tells each seat its stone color.
func (Rules) SeatInfo(seat int) map[string]interface{} {
	return map[string]interface{}{"color": seat + 1}
}

func (Rules) Start(r *room.Room, out *game.Outbox) {
	st := state(r)
	out.Room(r, message.EventGameStart, map[string]interface{}{
		"room_id": r.ID,
		"current": st.Current,
	})
}

func (Rules) Act(r *room.Room, seat int, action string, payload json.RawMessage, out *game.Outbox) (*game.Outcome, error) {
	if action != message.TypeMakeMove {
		return nil, message.Reject(message.CodeUnknownType, "gomoku does not support %s", action)
	}
	var p MovePayload
	if err := message.Decode(payload, &p); err != nil {
		return nil, err
	}

	st := state(r)
	color := seat + 1
	row, col := *p.Row, *p.Col
	if st.Current != color {
		return nil, message.Reject(message.CodeNotYourTurn, "not your turn")
	}
	if st.Board[row][col] != Empty {
		return nil, message.Reject(message.CodeCellOccupied, "cell (%d, %d) is occupied", row, col)
	}

	st.Board[row][col] = color
	st.Moves = append(st.Moves, Move{Row: row, Col: col, Color: color})
	st.Current = 3 - color
	out.Room(r, message.EventMoveMade, Move{Row: row, Col: col, Color: color})

	switch {
	case st.wins(row, col, color):
		st.Winner = color
	case len(st.Moves) == BoardSize*BoardSize:
		st.Winner = Empty
	default:
		return nil, nil
	}

	out.Room(r, message.EventGameOver, map[string]interface{}{
		"winner":       st.Winner,
		"winner_color": colorNames[st.Winner],
	})
	winner := "draw"
	if st.Winner != Empty {
		winner = colorNames[st.Winner]
	}
	return &game.Outcome{Winner: winner, Moves: st.record()}, nil
}

func (Rules) Resync(r *room.Room, seat int, out *game.Outbox) {
	out.To(r.Players()[seat], message.EventGameState, view(r))
}

func (Rules) Describe(r *room.Room) interface{} {
	return view(r)
}

func view(r *room.Room) map[string]interface{} {
	st := state(r)
	board := make([][]int, BoardSize)
	for i := range st.Board {
		board[i] = append([]int(nil), st.Board[i][:]...)
	}
	return map[string]interface{}{
		"board":   board,
		"current": st.Current,
		"moves":   append([]Move(nil), st.Moves...),
		"status":  r.Status(),
	}
}

var axes = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// wins reports whether the stone at (row, col) completes five or more in a line.
func (st *State) wins(row, col, color int) bool {
	for _, axis := range axes {
		n := 1 + st.run(row, col, axis[0], axis[1], color) + st.run(row, col, -axis[0], -axis[1], color)
		if n >= 5 {
			return true
		}
	}
	return false
}

func (st *State) run(row, col, dr, dc, color int) int {
	n := 0
	for r, c := row+dr, col+dc; r >= 0 && r < BoardSize && c >= 0 && c < BoardSize; r, c = r+dr, c+dc {
		if st.Board[r][c] != color {
			break
		}
		n++
	}
	return n
}

type recordedMove struct {
	Row   int    `json:"row"`
	Col   int    `json:"col"`
	Color string `json:"color"`
}

func (st *State) record() []recordedMove {
	out := make([]recordedMove, len(st.Moves))
	for i, m := range st.Moves {
		out[i] = recordedMove{Row: m.Row, Col: m.Col, Color: colorNames[m.Color]}
	}
	return out
}

func state(r *room.Room) *State {
	return r.State.(*State)
}
