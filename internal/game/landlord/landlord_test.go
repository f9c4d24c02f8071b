package landlord

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/erilali/gameroom/internal/cards"
	"github.com/erilali/gameroom/internal/chat"
	"github.com/erilali/gameroom/internal/game"
	"github.com/erilali/gameroom/internal/message"
	"github.com/erilali/gameroom/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var players = []string{"p0", "p1", "p2"}

type fixture struct {
	t     *testing.T
	tbl   *game.Table
	rooms *room.Registry
	id    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rooms := room.NewRegistry()
	comments := chat.NewService(chat.Config{}, chat.NewMemoryLimiter(3, 10*time.Second, nil), nil, nil)
	f := &fixture{t: t, tbl: game.NewTable(New(WithSeed(42)), rooms, comments, nil), rooms: rooms}

	out := &game.Outbox{}
	require.NoError(t, f.tbl.Create("p0", out))
	ev, ok := out.Last("p0", message.EventRoomCreated)
	require.True(t, ok)
	f.id = ev.Data.(map[string]interface{})["room_id"].(string)
	return f
}

func (f *fixture) fill() *game.Outbox {
	f.t.Helper()
	out := &game.Outbox{}
	require.NoError(f.t, f.tbl.Join("p1", f.id, false, out))
	out.Reset()
	require.NoError(f.t, f.tbl.Join("p2", f.id, false, out))
	return out
}

func (f *fixture) state(fn func(st *State)) {
	f.t.Helper()
	require.NoError(f.t, f.rooms.With(f.id, func(r *room.Room) error {
		fn(state(r))
		return nil
	}))
}

func (f *fixture) act(session, action string, data map[string]interface{}) (*game.Outbox, error) {
	f.t.Helper()
	if data == nil {
		data = map[string]interface{}{}
	}
	data["room_id"] = f.id
	raw, err := json.Marshal(data)
	require.NoError(f.t, err)
	out := &game.Outbox{}
	return out, f.tbl.Handle(session, f.id, action, raw, out)
}

func (f *fixture) bid(session string, v int) (*game.Outbox, error) {
	return f.act(session, message.TypeBid, map[string]interface{}{"bid": v})
}

func (f *fixture) playCards(session, list string) (*game.Outbox, error) {
	return f.act(session, message.TypePlayCards, map[string]interface{}{"cards": hand(f.t, list)})
}

// hand parses space separated ranks, giving repeated ranks successive suits.
func hand(t *testing.T, list string) []cards.Card {
	t.Helper()
	suits := []string{"♠", "♥", "♣", "♦"}
	seen := map[string]int{}
	var out []cards.Card
	for _, v := range strings.Fields(list) {
		suit := suits[seen[v]%4]
		if v == "joker" || v == "JOKER" {
			suit = ""
		}
		seen[v]++
		c, err := cards.ParseCard(suit, v)
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	rej, ok := message.AsRejection(err)
	require.True(t, ok, "expected a rejection, got %v", err)
	assert.Equal(t, code, rej.Code)
}

// landlordAtSeat0 runs bidding so that p0 becomes landlord with multiplier 3.
func (f *fixture) landlordAtSeat0() {
	f.t.Helper()
	f.fill()
	_, err := f.bid("p0", 3)
	require.NoError(f.t, err)
	_, err = f.bid("p1", 0)
	require.NoError(f.t, err)
	_, err = f.bid("p2", 0)
	require.NoError(f.t, err)
}

func TestDealInvariant(t *testing.T) {
	f := newFixture(t)
	out := f.fill()

	seen := map[cards.Card]bool{}
	for i, p := range players {
		ev, ok := out.Last(p, message.EventGameStart)
		require.True(t, ok, p)
		data := ev.Data.(map[string]interface{})
		assert.Equal(t, i, data["position"])
		dealt := data["cards"].([]cards.Card)
		assert.Len(t, dealt, 17)
		for _, c := range dealt {
			assert.False(t, seen[c], "duplicate %s", c)
			seen[c] = true
		}
		assert.Contains(t, out.Events(p), message.EventBidTurn)
	}

	// every hand is private
	for _, d := range out.Deliveries() {
		if d.Event.Type == message.EventGameStart {
			assert.Len(t, d.Sessions, 1)
		}
	}

	f.state(func(st *State) {
		require.Len(t, st.Bottom, 3)
		for _, c := range st.Bottom {
			assert.False(t, seen[c], "duplicate %s", c)
			seen[c] = true
		}
		assert.Equal(t, PhaseBidding, st.Phase)
		assert.Equal(t, 0, st.Turn)
	})
	assert.Len(t, seen, 54)
}

func TestBidding(t *testing.T) {
	f := newFixture(t)
	f.fill()

	_, err := f.bid("p0", 1)
	require.NoError(t, err)
	_, err = f.bid("p1", 3)
	require.NoError(t, err)
	out, err := f.bid("p2", 2)
	require.NoError(t, err)

	ev, ok := out.Last("p0", message.EventLandlordDecided)
	require.True(t, ok)
	data := ev.Data.(map[string]interface{})
	assert.Equal(t, 1, data["landlord"])
	assert.Equal(t, 3, data["multiplier"])
	assert.Len(t, data["bottom_cards"], 3)

	turn, _ := out.Last("p2", message.EventPlayTurn)
	assert.Equal(t, 1, turn.Data.(map[string]interface{})["position"])

	f.state(func(st *State) {
		assert.Equal(t, PhasePlaying, st.Phase)
		assert.Len(t, st.Hands[1], 20)
		assert.Len(t, st.Hands[0], 17)
	})
}

func TestBidTieGoesToEarliest(t *testing.T) {
	f := newFixture(t)
	f.fill()
	for i, v := range []int{2, 2, 0} {
		_, err := f.bid(players[i], v)
		require.NoError(t, err)
	}
	f.state(func(st *State) {
		assert.Equal(t, 0, st.Landlord)
		assert.Equal(t, 2, st.Multiplier)
	})
}

func TestAllZeroBidsRedeal(t *testing.T) {
	f := newFixture(t)
	f.fill()
	var first []cards.Card
	f.state(func(st *State) { first = append(first, st.Hands[0]...) })

	for _, p := range players {
		out, err := f.bid(p, 0)
		require.NoError(t, err)
		if p == "p2" {
			ev, ok := out.Last("p0", message.EventNoLandlord)
			require.True(t, ok)
			data := ev.Data.(map[string]interface{})
			assert.Equal(t, true, data["redeal"])
			assert.Equal(t, 2, data["deal"])
			assert.Contains(t, out.Events("p0"), message.EventGameStart)
			turn, ok := out.Last("p1", message.EventBidTurn)
			require.True(t, ok)
			assert.Equal(t, 0, turn.Data.(map[string]interface{})["position"])
		}
	}

	f.state(func(st *State) {
		assert.Equal(t, 2, st.Deals)
		assert.Equal(t, PhaseBidding, st.Phase)
		assert.Equal(t, noSeat, st.Landlord)
		assert.Equal(t, [3]int{noSeat, noSeat, noSeat}, st.Bids)
		assert.Len(t, st.Hands[0], 17)
		assert.NotEqual(t, first, st.Hands[0])
	})
}

func TestBidRejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.bid("p0", 1)
	requireCode(t, err, message.CodeGameNotStarted)

	f.fill()
	_, err = f.bid("p1", 1)
	requireCode(t, err, message.CodeNotYourTurn)
	_, err = f.bid("p0", 4)
	requireCode(t, err, message.CodeInvalidInput)
	_, err = f.act("p0", message.TypeBid, nil)
	requireCode(t, err, message.CodeInvalidInput)
	_, err = f.playCards("p0", "3")
	requireCode(t, err, message.CodeWrongPhase)
	_, err = f.act("p0", message.TypeMakeMove, nil)
	requireCode(t, err, message.CodeUnknownType)
}

func TestPlayAndPass(t *testing.T) {
	f := newFixture(t)
	f.landlordAtSeat0()
	f.state(func(st *State) {
		st.Hands[0] = hand(t, "5 5 9 K")
		st.Hands[1] = hand(t, "3 4 6 6 A")
		st.Hands[2] = hand(t, "7 8 Q")
	})

	out, err := f.playCards("p0", "5 5")
	require.NoError(t, err)
	ev, ok := out.Last("p2", message.EventCardsPlayed)
	require.True(t, ok)
	data := ev.Data.(map[string]interface{})
	assert.Equal(t, 2, data["remaining"])
	assert.Equal(t, cards.Pair, data["combination"].(cards.Combination).Type)

	_, err = f.playCards("p1", "3")
	requireCode(t, err, message.CodeCannotBeat)
	_, err = f.playCards("p1", "7")
	requireCode(t, err, message.CodeCardsNotInHand)
	_, err = f.playCards("p1", "3 4")
	requireCode(t, err, message.CodeIllegalCombo)
	_, err = f.playCards("p2", "7")
	requireCode(t, err, message.CodeNotYourTurn)

	_, err = f.playCards("p1", "6 6")
	require.NoError(t, err)

	_, err = f.act("p2", message.TypePass, nil)
	require.NoError(t, err)
	out, err = f.act("p0", message.TypePass, nil)
	require.NoError(t, err)
	turn, ok := out.Last("p1", message.EventPlayTurn)
	require.True(t, ok)
	assert.Equal(t, 1, turn.Data.(map[string]interface{})["position"])
	assert.Equal(t, true, turn.Data.(map[string]interface{})["lead"])

	_, err = f.act("p1", message.TypePass, nil)
	requireCode(t, err, message.CodeNothingToPass)

	_, err = f.playCards("p1", "A")
	require.NoError(t, err)
	f.state(func(st *State) {
		assert.Equal(t, 2, st.Turn)
		assert.Equal(t, hand(t, "3 4"), st.Hands[1])
		assert.Len(t, st.Plays, 3)
	})
}

func TestLandlordSpring(t *testing.T) {
	f := newFixture(t)
	f.landlordAtSeat0()
	f.state(func(st *State) { st.Hands[0] = hand(t, "K") })

	out, err := f.playCards("p0", "K")
	require.NoError(t, err)

	ev, ok := out.Last("p1", message.EventGameOver)
	require.True(t, ok)
	data := ev.Data.(map[string]interface{})
	assert.Equal(t, 0, data["winner"])
	assert.Equal(t, "landlord", data["winning_side"])
	assert.Equal(t, true, data["spring"])
	assert.Equal(t, 6, data["multiplier"])
	assert.Equal(t, []int{12, -6, -6}, data["scores"])

	require.Len(t, out.Finishes(), 1)
	assert.Equal(t, "landlord", out.Finishes()[0].Winner)
	assert.Equal(t, 3, out.Finishes()[0].PlayerCount)

	snap, _ := f.rooms.Get(f.id)
	assert.Equal(t, room.StatusFinished, snap.Status)
	_, err = f.act("p1", message.TypePass, nil)
	requireCode(t, err, message.CodeGameFinished)
}

func TestFarmersWin(t *testing.T) {
	f := newFixture(t)
	f.landlordAtSeat0()
	f.state(func(st *State) {
		st.Hands[0] = hand(t, "3 9")
		st.Hands[1] = hand(t, "4")
		st.Hands[2] = hand(t, "5 5")
	})

	_, err := f.playCards("p0", "3")
	require.NoError(t, err)
	out, err := f.playCards("p1", "4")
	require.NoError(t, err)

	ev, ok := out.Last("p0", message.EventGameOver)
	require.True(t, ok)
	data := ev.Data.(map[string]interface{})
	assert.Equal(t, "farmers", data["winning_side"])
	assert.Equal(t, false, data["spring"])
	assert.Equal(t, 3, data["multiplier"])
	assert.Equal(t, []int{-6, 3, 3}, data["scores"])

	var rec struct {
		Plays []json.RawMessage `json:"plays"`
	}
	require.NoError(t, json.Unmarshal(out.Finishes()[0].Moves, &rec))
	assert.Len(t, rec.Plays, 2)
}

func TestDescribeHidesHands(t *testing.T) {
	f := newFixture(t)
	f.fill()

	view, ok := f.tbl.Describe(f.id)
	require.True(t, ok)
	public := view.(map[string]interface{})["state"].(map[string]interface{})
	assert.NotContains(t, public, "cards")
	assert.Equal(t, []int{17, 17, 17}, public["card_counts"])

	out := &game.Outbox{}
	require.NoError(t, f.tbl.Rejoin("p1", f.id, out))
	ev, ok := out.Last("p1", message.EventGameState)
	require.True(t, ok)
	assert.Len(t, ev.Data.(map[string]interface{})["cards"], 17)
	assert.Empty(t, out.Events("p0"), fmt.Sprint(out.Deliveries()))
}
