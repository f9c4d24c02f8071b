// internal/cards/card.go
// Card model, deck construction and hand bookkeeping for the landlord game.
package cards

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
)

// Rank orders cards from 3 (lowest) to the big joker (highest).
type Rank int

const (
	Rank3 Rank = iota + 3
	Rank4
	Rank5
	Rank6
	Rank7
	Rank8
	Rank9
	Rank10
	RankJ
	RankQ
	RankK
	RankA
	Rank2
	RankSmallJoker
	RankBigJoker
)

var rankNames = map[Rank]string{
	Rank3: "3", Rank4: "4", Rank5: "5", Rank6: "6", Rank7: "7", Rank8: "8", Rank9: "9",
	Rank10: "10", RankJ: "J", RankQ: "Q", RankK: "K", RankA: "A", Rank2: "2",
	RankSmallJoker: "joker", RankBigJoker: "JOKER",
}

var namedRanks = func() map[string]Rank {
	m := make(map[string]Rank, len(rankNames))
	for r, n := range rankNames {
		m[n] = r
	}
	return m
}()

func (r Rank) String() string {
	if n, ok := rankNames[r]; ok {
		return n
	}
	return fmt.Sprintf("Rank(%d)", int(r))
}

// Valid reports whether r is one of the 15 ranks.
func (r Rank) Valid() bool {
	return r >= Rank3 && r <= RankBigJoker
}

// Suits in deal order. Jokers carry no suit.
var Suits = []string{"♠", "♥", "♣", "♦"}

// Card is a single playing card.
type Card struct {
	Suit string
	Rank Rank
}

func (c Card) String() string {
	return c.Suit + c.Rank.String()
}

// IsJoker reports whether c is one of the two jokers.
func (c Card) IsJoker() bool {
	return c.Rank == RankSmallJoker || c.Rank == RankBigJoker
}

type wireCard struct {
	Suit  string `json:"suit"`
	Value string `json:"value"`
}

func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireCard{Suit: c.Suit, Value: c.Rank.String()})
}

func (c *Card) UnmarshalJSON(data []byte) error {
	var w wireCard
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := ParseCard(w.Suit, w.Value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCard builds a card from its wire suit and value, rejecting anything outside the deck.
func ParseCard(suit, value string) (Card, error) {
	rank, ok := namedRanks[value]
	if !ok {
		return Card{}, fmt.Errorf("unknown card value %q", value)
	}
	if rank == RankSmallJoker || rank == RankBigJoker {
		if suit != "" {
			return Card{}, fmt.Errorf("joker cannot have suit %q", suit)
		}
		return Card{Rank: rank}, nil
	}
	for _, s := range Suits {
		if s == suit {
			return Card{Suit: suit, Rank: rank}, nil
		}
	}
	return Card{}, fmt.Errorf("unknown suit %q", suit)
}

// NewDeck returns the 54 card deck in a fixed order.
func NewDeck() []Card {
	deck := make([]Card, 0, 54)
	for _, s := range Suits {
		for r := Rank3; r <= Rank2; r++ {
			deck = append(deck, Card{Suit: s, Rank: r})
		}
	}
	return append(deck, Card{Rank: RankSmallJoker}, Card{Rank: RankBigJoker})
}

// Shuffle permutes cards uniformly using rng.
func Shuffle(cards []Card, rng *rand.Rand) {
	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

// Sort orders cards by rank, then by suit order, lowest first.
func Sort(cards []Card) {
	suitOrder := map[string]int{"♠": 0, "♥": 1, "♣": 2, "♦": 3, "": 4}
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].Rank != cards[j].Rank {
			return cards[i].Rank < cards[j].Rank
		}
		return suitOrder[cards[i].Suit] < suitOrder[cards[j].Suit]
	})
}

// Remove takes played out of hand. It returns the remaining hand and false, leaving hand
// untouched, when any played card is missing or appears more often than it is held.
func Remove(hand, played []Card) ([]Card, bool) {
	counts := make(map[Card]int, len(hand))
	for _, c := range hand {
		counts[c]++
	}
	for _, c := range played {
		if counts[c] == 0 {
			return hand, false
		}
		counts[c]--
	}

	remaining := make([]Card, 0, len(hand)-len(played))
	for _, c := range hand {
		if counts[c] > 0 {
			remaining = append(remaining, c)
			counts[c]--
		}
	}
	return remaining, true
}
