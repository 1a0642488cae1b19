// Package ranking orders players for the leaderboard and results screens.
package ranking

import "sort"

// Entry is the input for one player.
type Entry struct {
	PlayerID                 string `json:"playerId"`
	Name                     string `json:"name"`
	TotalScore               int    `json:"totalScore"`
	CumulativeResponseTimeMs int64  `json:"cumulativeResponseTimeMs"`
}

// Change describes how a player's rank moved since the previous computation.
type Change string

const (
	ChangeNone Change = ""
	ChangeNew  Change = "new"
	ChangeUp   Change = "up"
	ChangeDown Change = "down"
	ChangeSame Change = "same"
)

// Standing is an Entry with its computed rank.
type Standing struct {
	Entry
	Rank   int    `json:"rank"`
	Change Change `json:"change,omitempty"`
	// Delta is the number of places moved; positive means up.
	Delta int `json:"delta,omitempty"`
}

// Rank sorts by score descending, then cumulative response time ascending.
// Ranks are dense; only entries equal on both keys share a rank.
func Rank(entries []Entry) []Standing {
	out := make([]Standing, len(entries))
	for i, e := range entries {
		out[i] = Standing{Entry: e}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.CumulativeResponseTimeMs != b.CumulativeResponseTimeMs {
			return a.CumulativeResponseTimeMs < b.CumulativeResponseTimeMs
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.PlayerID < b.PlayerID
	})

	rank := 0
	for i := range out {
		if i == 0 || !tied(out[i-1].Entry, out[i].Entry) {
			rank++
		}
		out[i].Rank = rank
	}
	return out
}

func tied(a, b Entry) bool {
	return a.TotalScore == b.TotalScore && a.CumulativeResponseTimeMs == b.CumulativeResponseTimeMs
}

// Tracker remembers the last rank of each player to derive rank changes.
// It is not safe for concurrent use.
type Tracker struct {
	previous map[string]int
}

func NewTracker() *Tracker {
	return &Tracker{previous: make(map[string]int)}
}

// Update annotates standings with their change against the last call and stores the new ranks.
func (t *Tracker) Update(standings []Standing) []Standing {
	out := make([]Standing, len(standings))
	next := make(map[string]int, len(standings))
	for i, s := range standings {
		prev, seen := t.previous[s.PlayerID]
		switch {
		case !seen:
			s.Change, s.Delta = ChangeNew, 0
		case s.Rank < prev:
			s.Change, s.Delta = ChangeUp, prev-s.Rank
		case s.Rank > prev:
			s.Change, s.Delta = ChangeDown, prev-s.Rank
		default:
			s.Change, s.Delta = ChangeSame, 0
		}
		out[i] = s
		next[s.PlayerID] = s.Rank
	}
	t.previous = next
	return out
}

// Reset forgets previous ranks.
func (t *Tracker) Reset() {
	t.previous = make(map[string]int)
}
