package standings

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Standing is one entry's input to the ranker.
type Standing struct {
	EntryID      uuid.UUID
	CorrectCount int
	// TiebreakAt orders entries inside a tie group; earlier wins. Entries
	// without a timestamp go last.
	TiebreakAt *time.Time
}

type Ranked struct {
	EntryID      uuid.UUID
	CorrectCount int
	Rank         int
}

// Rank applies competition ranking (1,1,3,4,4,4,7): entries with the same
// correct count share a rank, and the next rank skips by the size of the
// group. The returned slice is in display order.
func Rank(entries []Standing) []Ranked {
	if len(entries) == 0 {
		return []Ranked{}
	}

	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, compareStandings)

	ranked := make([]Ranked, len(sorted))
	for i, s := range sorted {
		rank := i + 1
		if i > 0 && s.CorrectCount == sorted[i-1].CorrectCount {
			rank = ranked[i-1].Rank
		}
		ranked[i] = Ranked{
			EntryID:      s.EntryID,
			CorrectCount: s.CorrectCount,
			Rank:         rank,
		}
	}
	return ranked
}

func compareStandings(a, b Standing) int {
	if c := cmp.Compare(b.CorrectCount, a.CorrectCount); c != 0 {
		return c
	}
	switch {
	case a.TiebreakAt != nil && b.TiebreakAt != nil:
		if c := a.TiebreakAt.Compare(*b.TiebreakAt); c != 0 {
			return c
		}
	case a.TiebreakAt != nil:
		return -1
	case b.TiebreakAt != nil:
		return 1
	}
	return strings.Compare(a.EntryID.String(), b.EntryID.String())
}

// Groups splits ranked entries into tie groups keyed by rank, keeping
// display order inside each group.
func Groups(ranked []Ranked) map[int][]Ranked {
	groups := make(map[int][]Ranked)
	for _, r := range ranked {
		groups[r.Rank] = append(groups[r.Rank], r)
	}
	return groups
}
