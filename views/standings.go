package views

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/AdamBeresnev/quiniela/internal/service"
	"github.com/a-h/templ"
)

// TieGroup is a run of standings rows sharing one rank. Label is the rank
// as shown, "T" prefixed for ties.
type TieGroup struct {
	Rank  int
	Label string
	Rows  []service.StandingRow
}

type StandingsData struct {
	Title  string
	Label  string
	Groups []TieGroup
}

// PrepareStandingsData splits the table into tie groups in rank order,
// keeping the row order inside each group.
func PrepareStandingsData(st *service.Standings) StandingsData {
	byRank := make(map[int][]service.StandingRow)
	var ranks []int
	for _, row := range st.Rows {
		if _, exists := byRank[row.Rank]; !exists {
			ranks = append(ranks, row.Rank)
		}
		byRank[row.Rank] = append(byRank[row.Rank], row)
	}
	slices.Sort(ranks)

	groups := make([]TieGroup, 0, len(ranks))
	for _, r := range ranks {
		label := strconv.Itoa(r)
		if len(byRank[r]) > 1 {
			label = "T" + label
		}
		groups = append(groups, TieGroup{Rank: r, Label: label, Rows: byRank[r]})
	}

	label := "Live standings, not final"
	if st.Official {
		label = "Final standings"
	}
	return StandingsData{
		Title:  fmt.Sprintf("Standings (%d of %d matches decided)", st.Decided, st.Matches),
		Label:  label,
		Groups: groups,
	}
}

// StandingsPage renders a pool's table as an HTML page.
func StandingsPage(st *service.Standings) templ.Component {
	return standingsPage(PrepareStandingsData(st))
}
