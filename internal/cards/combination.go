// internal/cards/combination.go
package cards

import (
	"encoding/json"
	"sort"
)

// Type is the shape of a played set of cards.
type Type int

const (
	Invalid Type = iota
	Single
	Pair
	Triple
	TripleSingle
	TriplePair
	Straight
	ConsecutivePairs
	Plane
	PlaneSingle
	PlanePair
	FourTwoSingle
	FourTwoPair
	Bomb
	Rocket
)

var typeNames = [...]string{
	Invalid:          "invalid",
	Single:           "single",
	Pair:             "pair",
	Triple:           "triple",
	TripleSingle:     "triple_single",
	TriplePair:       "triple_pair",
	Straight:         "straight",
	ConsecutivePairs: "consecutive_pairs",
	Plane:            "plane",
	PlaneSingle:      "plane_single",
	PlanePair:        "plane_pair",
	FourTwoSingle:    "four_two_single",
	FourTwoPair:      "four_two_pair",
	Bomb:             "bomb",
	Rocket:           "rocket",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "invalid"
	}
	return typeNames[t]
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Combination is the classification of a set of cards.
type Combination struct {
	Type Type
	// Value is the rank of the defining group. Runs use their lowest rank.
	Value Rank
	// Length is the run length: singles for straights, pairs for consecutive pairs and
	// triples for planes. Zero for every other type.
	Length int
}

// Valid reports whether the cards formed any legal shape.
func (c Combination) Valid() bool {
	return c.Type != Invalid
}

func (c Combination) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   Type   `json:"type"`
		Value  string `json:"value"`
		Length int    `json:"length,omitempty"`
	}{c.Type, c.Value.String(), c.Length})
}

// group is one distinct rank and how many cards of it were played.
type group struct {
	rank  Rank
	count int
}

// groupsOf returns the rank groups ordered by count descending, then rank ascending.
func groupsOf(cards []Card) []group {
	counts := make(map[Rank]int, len(cards))
	for _, c := range cards {
		counts[c.Rank]++
	}
	groups := make([]group, 0, len(counts))
	for r, n := range counts {
		groups = append(groups, group{rank: r, count: n})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].rank < groups[j].rank
	})
	return groups
}

// consecutive reports whether ascending ranks form an unbroken run that stays below the 2.
func consecutive(ranks []Rank) bool {
	if len(ranks) < 2 || ranks[len(ranks)-1] > RankA {
		return false
	}
	for i := 1; i < len(ranks); i++ {
		if ranks[i] != ranks[i-1]+1 {
			return false
		}
	}
	return true
}

func ranksWithCount(groups []group, n int) []Rank {
	var ranks []Rank
	for _, g := range groups {
		if g.count == n {
			ranks = append(ranks, g.rank)
		}
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i] < ranks[j] })
	return ranks
}

// Classify determines the combination formed by cards. It is total: any input that is not a
// legal shape, including unknown ranks, yields an Invalid combination.
func Classify(cards []Card) Combination {
	n := len(cards)
	if n == 0 {
		return Combination{}
	}
	for _, c := range cards {
		if !c.Rank.Valid() {
			return Combination{}
		}
	}
	groups := groupsOf(cards)
	top := groups[0]

	// rocket and bomb first so a quad is never read as four-with-two
	if n == 2 && len(groups) == 2 && groups[0].rank >= RankSmallJoker && groups[1].rank >= RankSmallJoker {
		return Combination{Type: Rocket, Value: RankBigJoker}
	}
	if n == 4 && top.count == 4 {
		return Combination{Type: Bomb, Value: top.rank}
	}

	switch {
	case n == 1:
		return Combination{Type: Single, Value: top.rank}
	case n == 2 && top.count == 2:
		return Combination{Type: Pair, Value: top.rank}
	case n == 3 && top.count == 3:
		return Combination{Type: Triple, Value: top.rank}
	case n == 4 && top.count == 3:
		return Combination{Type: TripleSingle, Value: top.rank}
	case n == 5 && top.count == 3 && groups[1].count == 2:
		return Combination{Type: TriplePair, Value: top.rank}
	}

	if n >= 5 && top.count == 1 {
		ranks := ranksWithCount(groups, 1)
		if consecutive(ranks) {
			return Combination{Type: Straight, Value: ranks[0], Length: n}
		}
	}
	if n >= 6 && n%2 == 0 && top.count == 2 && len(groups) == n/2 {
		ranks := ranksWithCount(groups, 2)
		if len(ranks) == n/2 && consecutive(ranks) {
			return Combination{Type: ConsecutivePairs, Value: ranks[0], Length: n / 2}
		}
	}
	if c, ok := classifyPlane(groups, n); ok {
		return c
	}

	switch {
	case n == 6 && top.count == 4:
		return Combination{Type: FourTwoSingle, Value: top.rank}
	case n == 8 && top.count == 4 && len(groups) == 3 && groups[1].count == 2 && groups[2].count == 2:
		return Combination{Type: FourTwoPair, Value: top.rank}
	}
	return Combination{}
}

func classifyPlane(groups []group, n int) (Combination, bool) {
	triples := ranksWithCount(groups, 3)
	k := len(triples)
	if k < 2 || !consecutive(triples) {
		return Combination{}, false
	}
	plane := Combination{Value: triples[0], Length: k}
	var rest []group
	for _, g := range groups {
		if g.count != 3 {
			rest = append(rest, g)
		}
	}

	switch {
	case n == 3*k && len(rest) == 0:
		plane.Type = Plane
	case n == 4*k && len(rest) == k && allCount(rest, 1):
		plane.Type = PlaneSingle
	case n == 5*k && len(rest) == k && allCount(rest, 2):
		plane.Type = PlanePair
	default:
		return Combination{}, false
	}
	return plane, true
}

func allCount(groups []group, n int) bool {
	for _, g := range groups {
		if g.count != n {
			return false
		}
	}
	return true
}

// CanBeat reports whether proposed may be played over standing. A nil or invalid standing
// combination means the player leads and any valid combination is accepted.
func CanBeat(proposed Combination, standing *Combination) bool {
	if !proposed.Valid() {
		return false
	}
	if standing == nil || !standing.Valid() {
		return true
	}
	switch {
	case proposed.Type == Rocket:
		return true
	case standing.Type == Rocket:
		return false
	case proposed.Type == Bomb && standing.Type == Bomb:
		return proposed.Value > standing.Value
	case proposed.Type == Bomb:
		return true
	case standing.Type == Bomb:
		return false
	}
	return proposed.Type == standing.Type &&
		proposed.Length == standing.Length &&
		proposed.Value > standing.Value
}
