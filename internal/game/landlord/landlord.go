// internal/game/landlord/landlord.go
// Package landlord implements the three seat trick trading card game: deal, bidding for the
// landlord role, then playing combinations until one hand is empty.
package landlord

import (
	"encoding/json"
	"math/rand"
	"time"

	"github.com/erilali/gameroom/internal/cards"
	"github.com/erilali/gameroom/internal/game"
	"github.com/erilali/gameroom/internal/message"
	"github.com/erilali/gameroom/internal/room"
)

const (
	seats    = 3
	handSize = 17
	maxBid   = 3
	noSeat   = -1
)

// Phase is the stage of one deal.
type Phase string

const (
	PhaseDealing  Phase = "dealing"
	PhaseBidding  Phase = "bidding"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// Play is one accepted play, kept for the record.
type Play struct {
	Position    int               `json:"position"`
	Cards       []cards.Card      `json:"cards"`
	Combination cards.Combination `json:"combination"`
}

// State is the card game state of a room.
type State struct {
	Phase      Phase
	Hands      [seats][]cards.Card
	Bottom     []cards.Card
	Landlord   int
	Turn       int
	Bids       [seats]int
	BidCount   int
	Multiplier int
	LastPlay   *cards.Combination
	LastCards  []cards.Card
	LastSeat   int
	Passes     int
	Played     [seats]int
	Plays      []Play
	Deals      int

	rng *rand.Rand
}

func (*State) Game() room.GameType { return room.Landlord }

// BidPayload is the payload of bid.
type BidPayload struct {
	RoomID string `json:"room_id" validate:"required,max=64,roomid"`
	Bid    *int   `json:"bid" validate:"required,min=0,max=3"`
}

// PlayPayload is the payload of play_cards.
type PlayPayload struct {
	RoomID string       `json:"room_id" validate:"required,max=64,roomid"`
	Cards  []cards.Card `json:"cards" validate:"required,min=1,max=20"`
}

// Rules plays the landlord game.
type Rules struct {
	newRand func() *rand.Rand
}

// Option configures Rules.
type Option func(*Rules)

// WithSeed makes every new room shuffle from the same seed, for tests.
func WithSeed(seed int64) Option {
	return func(r *Rules) {
		r.newRand = func() *rand.Rand { return rand.New(rand.NewSource(seed)) }
	}
}

// New returns the landlord rules.
func New(opts ...Option) Rules {
	r := Rules{newRand: func() *rand.Rand {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func (Rules) Game() room.GameType { return room.Landlord }

func (r Rules) NewState() room.State {
	return &State{Phase: PhaseDealing, Landlord: noSeat, LastSeat: noSeat, Multiplier: 1, rng: r.newRand()}
}

func (Rules) SeatInfo(int) map[string]interface{} { return nil }

// Start deals the first hand once the third seat fills.
func (Rules) Start(r *room.Room, out *game.Outbox) {
	st := state(r)
	st.deal()
	announceDeal(r, st, out)
}

func (Rules) Act(r *room.Room, seat int, action string, payload json.RawMessage, out *game.Outbox) (*game.Outcome, error) {
	st := state(r)
	switch action {
	case message.TypeBid:
		var p BidPayload
		if err := message.Decode(payload, &p); err != nil {
			return nil, err
		}
		if err := st.expect(PhaseBidding, seat); err != nil {
			return nil, err
		}
		st.bid(r, seat, *p.Bid, out)
		return nil, nil

	case message.TypePlayCards:
		var p PlayPayload
		if err := message.Decode(payload, &p); err != nil {
			return nil, err
		}
		if err := st.expect(PhasePlaying, seat); err != nil {
			return nil, err
		}
		return st.play(r, seat, p.Cards, out)

	case message.TypePass:
		var p message.RoomRef
		if err := message.Decode(payload, &p); err != nil {
			return nil, err
		}
		if err := st.expect(PhasePlaying, seat); err != nil {
			return nil, err
		}
		return nil, st.pass(r, seat, out)
	}
	return nil, message.Reject(message.CodeUnknownType, "landlord does not support %s", action)
}

// Resync sends the seat its private view: hand, turn and the standing play.
func (Rules) Resync(r *room.Room, seat int, out *game.Outbox) {
	st := state(r)
	view := st.view(r)
	view["position"] = seat
	view["cards"] = append([]cards.Card(nil), st.Hands[seat]...)
	out.To(r.Players()[seat], message.EventGameState, view)
}

// Describe never exposes hands, only per seat card counts.
func (Rules) Describe(r *room.Room) interface{} {
	return state(r).view(r)
}

func (st *State) expect(phase Phase, seat int) error {
	if st.Phase != phase {
		return message.Reject(message.CodeWrongPhase, "not allowed during %s", st.Phase)
	}
	if st.Turn != seat {
		return message.Reject(message.CodeNotYourTurn, "not your turn")
	}
	return nil
}

// deal shuffles a fresh deck, sets the first three cards aside and gives every seat 17.
func (st *State) deal() {
	deck := cards.NewDeck()
	cards.Shuffle(deck, st.rng)

	st.Bottom = append([]cards.Card(nil), deck[:3]...)
	for i := 0; i < seats; i++ {
		start := 3 + i*handSize
		st.Hands[i] = append([]cards.Card(nil), deck[start:start+handSize]...)
		cards.Sort(st.Hands[i])
	}
	st.Phase = PhaseBidding
	st.Landlord = noSeat
	st.Turn = 0
	st.Bids = [seats]int{noSeat, noSeat, noSeat}
	st.BidCount = 0
	st.Multiplier = 1
	st.LastPlay = nil
	st.LastCards = nil
	st.LastSeat = noSeat
	st.Passes = 0
	st.Played = [seats]int{}
	st.Plays = nil
	st.Deals++
}

func announceDeal(r *room.Room, st *State, out *game.Outbox) {
	for i, p := range r.Players() {
		out.To(p, message.EventGameStart, map[string]interface{}{
			"room_id":  r.ID,
			"cards":    append([]cards.Card(nil), st.Hands[i]...),
			"position": i,
		})
	}
	out.Room(r, message.EventBidTurn, map[string]interface{}{"position": st.Turn})
}

func (st *State) bid(r *room.Room, seat, value int, out *game.Outbox) {
	st.Bids[seat] = value
	st.BidCount++
	out.Room(r, message.EventBidMade, map[string]interface{}{"position": seat, "bid": value})

	if st.BidCount < seats {
		st.Turn = next(seat)
		out.Room(r, message.EventBidTurn, map[string]interface{}{"position": st.Turn})
		return
	}

	// Highest bid wins, ties go to the earliest bidder.
	winner, best := noSeat, 0
	for i, b := range st.Bids {
		if b > best {
			winner, best = i, b
		}
	}
	if winner == noSeat {
		out.Room(r, message.EventNoLandlord, map[string]interface{}{"room_id": r.ID, "redeal": true, "deal": st.Deals + 1})
		st.deal()
		announceDeal(r, st, out)
		return
	}

	st.Landlord = winner
	st.Multiplier = best
	st.Hands[winner] = append(st.Hands[winner], st.Bottom...)
	cards.Sort(st.Hands[winner])
	st.Phase = PhasePlaying
	st.Turn = winner

	out.Room(r, message.EventLandlordDecided, map[string]interface{}{
		"landlord":     winner,
		"bottom_cards": append([]cards.Card(nil), st.Bottom...),
		"multiplier":   st.Multiplier,
	})
	out.Room(r, message.EventPlayTurn, map[string]interface{}{"position": st.Turn})
}

func (st *State) play(r *room.Room, seat int, played []cards.Card, out *game.Outbox) (*game.Outcome, error) {
	remaining, ok := cards.Remove(st.Hands[seat], played)
	if !ok {
		return nil, message.Reject(message.CodeCardsNotInHand, "cards are not in your hand")
	}
	combo := cards.Classify(played)
	if !combo.Valid() {
		return nil, message.Reject(message.CodeIllegalCombo, "cards do not form a valid combination")
	}
	if !cards.CanBeat(combo, st.LastPlay) {
		return nil, message.Reject(message.CodeCannotBeat, "%s does not beat the standing %s", combo.Type, st.LastPlay.Type)
	}

	st.Hands[seat] = remaining
	st.LastPlay = &combo
	st.LastCards = append([]cards.Card(nil), played...)
	st.LastSeat = seat
	st.Passes = 0
	st.Played[seat] += len(played)
	st.Plays = append(st.Plays, Play{Position: seat, Cards: st.LastCards, Combination: combo})

	out.Room(r, message.EventCardsPlayed, map[string]interface{}{
		"position":    seat,
		"cards":       st.LastCards,
		"remaining":   len(remaining),
		"combination": combo,
	})

	if len(remaining) == 0 {
		return st.finish(r, seat, out), nil
	}
	st.Turn = next(seat)
	out.Room(r, message.EventPlayTurn, map[string]interface{}{"position": st.Turn})
	return nil, nil
}

func (st *State) pass(r *room.Room, seat int, out *game.Outbox) error {
	if st.LastPlay == nil {
		return message.Reject(message.CodeNothingToPass, "nothing to pass on, lead a combination")
	}
	st.Passes++
	out.Room(r, message.EventPassed, map[string]interface{}{"position": seat})

	// Two passes in a row return the lead to whoever played last.
	if st.Passes >= seats-1 {
		st.LastPlay = nil
		st.LastCards = nil
		st.Passes = 0
	}
	st.Turn = next(seat)
	out.Room(r, message.EventPlayTurn, map[string]interface{}{
		"position": st.Turn,
		"lead":     st.LastPlay == nil,
	})
	return nil
}

type record struct {
	Bids       []int        `json:"bids"`
	Landlord   int          `json:"landlord"`
	Bottom     []cards.Card `json:"bottom_cards"`
	Plays      []Play       `json:"plays"`
	Multiplier int          `json:"multiplier"`
	Spring     bool         `json:"spring"`
	Scores     []int        `json:"scores"`
}

func (st *State) finish(r *room.Room, winner int, out *game.Outbox) *game.Outcome {
	st.Phase = PhaseFinished

	spring := true
	for i := 0; i < seats; i++ {
		if i != winner && st.Played[i] > 0 {
			spring = false
		}
	}
	if spring {
		st.Multiplier *= 2
	}

	side := "farmers"
	if winner == st.Landlord {
		side = "landlord"
	}
	scores := make([]int, seats)
	for i := range scores {
		stake := st.Multiplier
		if i == st.Landlord {
			stake *= 2
		}
		landlordWon := side == "landlord"
		if (i == st.Landlord) == landlordWon {
			scores[i] = stake
		} else {
			scores[i] = -stake
		}
	}

	out.Room(r, message.EventGameOver, map[string]interface{}{
		"winner":       winner,
		"landlord":     st.Landlord,
		"winning_side": side,
		"spring":       spring,
		"multiplier":   st.Multiplier,
		"scores":       scores,
	})

	return &game.Outcome{
		Winner: side,
		Moves: record{
			Bids:       append([]int(nil), st.Bids[:]...),
			Landlord:   st.Landlord,
			Bottom:     st.Bottom,
			Plays:      st.Plays,
			Multiplier: st.Multiplier,
			Spring:     spring,
			Scores:     scores,
		},
	}
}

func (st *State) view(r *room.Room) map[string]interface{} {
	counts := make([]int, seats)
	for i, h := range st.Hands {
		counts[i] = len(h)
	}
	v := map[string]interface{}{
		"phase":       st.Phase,
		"status":      r.Status(),
		"turn":        st.Turn,
		"landlord":    st.Landlord,
		"bids":        append([]int(nil), st.Bids[:]...),
		"multiplier":  st.Multiplier,
		"card_counts": counts,
	}
	if st.Landlord != noSeat {
		v["bottom_cards"] = append([]cards.Card(nil), st.Bottom...)
	}
	if st.LastPlay != nil {
		v["last_play"] = map[string]interface{}{
			"position":    st.LastSeat,
			"cards":       st.LastCards,
			"combination": *st.LastPlay,
		}
	}
	return v
}

func next(seat int) int {
	return (seat + 1) % seats
}

func state(r *room.Room) *State {
	return r.State.(*State)
}
