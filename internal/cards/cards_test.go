package cards

import (
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hand builds cards from compact rank notation such as "3 3 4 4 5 5" or "joker JOKER".
// Suits rotate so repeated ranks stay distinct cards.
func hand(t *testing.T, list string) []Card {
	t.Helper()
	var out []Card
	seen := map[Rank]int{}
	for _, v := range strings.Fields(list) {
		suit := ""
		if v != "joker" && v != "JOKER" {
			r := namedRanks[v]
			suit = Suits[seen[r]%len(Suits)]
			seen[r]++
		}
		c, err := ParseCard(suit, v)
		require.NoError(t, err, v)
		out = append(out, c)
	}
	return out
}

func TestNewDeck(t *testing.T) {
	deck := NewDeck()
	require.Len(t, deck, 54)

	unique := map[Card]bool{}
	for _, c := range deck {
		unique[c] = true
	}
	assert.Len(t, unique, 54)
	assert.Equal(t, Card{Rank: RankBigJoker}, deck[53])
}

func TestShuffleKeepsCards(t *testing.T) {
	deck := NewDeck()
	Shuffle(deck, rand.New(rand.NewSource(7)))

	unique := map[Card]bool{}
	for _, c := range deck {
		unique[c] = true
	}
	assert.Len(t, unique, 54)
	assert.NotEqual(t, NewDeck(), deck)
}

func TestCardJSON(t *testing.T) {
	data, err := json.Marshal([]Card{{Suit: "♠", Rank: Rank10}, {Rank: RankSmallJoker}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"suit":"♠","value":"10"},{"suit":"","value":"joker"}]`, string(data))

	var back []Card
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []Card{{Suit: "♠", Rank: Rank10}, {Rank: RankSmallJoker}}, back)

	var bad Card
	assert.Error(t, json.Unmarshal([]byte(`{"suit":"♠","value":"1"}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"suit":"x","value":"5"}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"suit":"♠","value":"JOKER"}`), &bad))
}

func TestRemove(t *testing.T) {
	h := hand(t, "3 4 5 5 K")

	rest, ok := Remove(h, []Card{h[2], h[4]})
	require.True(t, ok)
	assert.Equal(t, []Card{h[0], h[1], h[3]}, rest)

	_, ok = Remove(h, []Card{{Suit: "♦", Rank: RankA}})
	assert.False(t, ok)

	_, ok = Remove(h, []Card{h[0], h[0]})
	assert.False(t, ok, "a card cannot be played twice")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		cards  string
		typ    Type
		value  Rank
		length int
	}{
		{"single", "7", Single, Rank7, 0},
		{"single joker", "JOKER", Single, RankBigJoker, 0},
		{"pair", "9 9", Pair, Rank9, 0},
		{"jokers are a rocket not a pair", "joker JOKER", Rocket, RankBigJoker, 0},
		{"triple", "Q Q Q", Triple, RankQ, 0},
		{"bomb", "8 8 8 8", Bomb, Rank8, 0},
		{"triple single", "5 5 5 9", TripleSingle, Rank5, 0},
		{"triple pair", "5 5 5 9 9", TriplePair, Rank5, 0},
		{"straight", "3 4 5 6 7", Straight, Rank3, 5},
		{"long straight to ace", "10 J Q K A 9 8", Straight, Rank8, 7},
		{"consecutive pairs", "3 3 4 4 5 5", ConsecutivePairs, Rank3, 3},
		{"plane", "7 7 7 8 8 8", Plane, Rank7, 2},
		{"plane with singles", "7 7 7 8 8 8 3 K", PlaneSingle, Rank7, 2},
		{"plane with pairs", "7 7 7 8 8 8 3 3 K K", PlanePair, Rank7, 2},
		{"four with two singles", "6 6 6 6 3 9", FourTwoSingle, Rank6, 0},
		{"four with a pair as singles", "6 6 6 6 3 3", FourTwoSingle, Rank6, 0},
		{"four with two pairs", "6 6 6 6 3 3 9 9", FourTwoPair, Rank6, 0},
		{"straight crossing 2", "J Q K A 2", Invalid, 0, 0},
		{"straight with joker", "10 J Q K A joker", Invalid, 0, 0},
		{"short straight", "3 4 5 6", Invalid, 0, 0},
		{"broken straight", "3 4 5 6 8", Invalid, 0, 0},
		{"two pairs only", "3 3 4 4", Invalid, 0, 0},
		{"pairs crossing 2", "K K A A 2 2", Invalid, 0, 0},
		{"plane with 2", "A A A 2 2 2", Invalid, 0, 0},
		{"non consecutive triples", "3 3 3 5 5 5", Invalid, 0, 0},
		{"mismatched pair", "3 4", Invalid, 0, 0},
		{"plane singles wrong count", "7 7 7 8 8 8 3", Invalid, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(hand(t, tt.cards))
			assert.Equal(t, tt.typ, got.Type, got.Type.String())
			if tt.typ != Invalid {
				assert.Equal(t, tt.value, got.Value)
				assert.Equal(t, tt.length, got.Length)
			}
		})
	}
}

func TestClassify_Total(t *testing.T) {
	assert.False(t, Classify(nil).Valid())
	assert.False(t, Classify([]Card{{Rank: 99}}).Valid())

	// every 1..6 card prefix of a shuffled deck classifies without panicking and the same way twice
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		deck := NewDeck()
		Shuffle(deck, rng)
		for n := 1; n <= 8; n++ {
			assert.Equal(t, Classify(deck[:n]), Classify(deck[:n]))
		}
	}
}

func TestClassify_BombNeverFourWithTwo(t *testing.T) {
	for r := Rank3; r <= Rank2; r++ {
		quad := []Card{{"♠", r}, {"♥", r}, {"♣", r}, {"♦", r}}
		assert.Equal(t, Bomb, Classify(quad).Type, r.String())
	}
}

func TestCanBeat(t *testing.T) {
	c := func(list string) Combination { return Classify(hand(t, list)) }
	ptr := func(cb Combination) *Combination { return &cb }

	tests := []struct {
		name     string
		proposed Combination
		standing *Combination
		want     bool
	}{
		{"lead anything", c("3"), nil, true},
		{"invalid never beats", c("3 4"), nil, false},
		{"higher single", c("K"), ptr(c("Q")), true},
		{"lower single", c("Q"), ptr(c("K")), false},
		{"equal single", c("Q"), ptr(c("Q")), false},
		{"higher pair", c("2 2"), ptr(c("A A")), true},
		{"type mismatch", c("K K"), ptr(c("3")), false},
		{"straight length mismatch", c("4 5 6 7 8 9"), ptr(c("3 4 5 6 7")), false},
		{"straight same length higher", c("4 5 6 7 8"), ptr(c("3 4 5 6 7")), true},
		{"bomb beats straight", c("3 3 3 3"), ptr(c("3 4 5 6 7")), true},
		{"higher bomb", c("4 4 4 4"), ptr(c("3 3 3 3")), true},
		{"lower bomb", c("3 3 3 3"), ptr(c("4 4 4 4")), false},
		{"single cannot beat bomb", c("JOKER"), ptr(c("3 3 3 3")), false},
		{"rocket beats bomb", c("joker JOKER"), ptr(c("2 2 2 2")), true},
		{"bomb cannot beat rocket", c("2 2 2 2"), ptr(c("joker JOKER")), false},
		{"four two is not a bomb", c("9 9 9 9 3 4"), ptr(c("5 5 5 5")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanBeat(tt.proposed, tt.standing))
		})
	}
}

func TestCombinationJSON(t *testing.T) {
	data, err := json.Marshal(Classify(hand(t, "3 4 5 6 7")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"straight","value":"3","length":5}`, string(data))
}
