package standings

import (
	"github.com/AdamBeresnev/quiniela/internal/apperr"
	"github.com/AdamBeresnev/quiniela/internal/quiniela"
	"github.com/google/uuid"
)

// PickDetail is the scored view of a single pick. Actual and Correct are nil
// when the match has no outcome yet.
type PickDetail struct {
	PickID     uuid.UUID         `json:"pick_id"`
	MatchID    uuid.UUID         `json:"match_id"`
	Prediction quiniela.Outcome  `json:"prediction"`
	Actual     *quiniela.Outcome `json:"actual,omitempty"`
	Correct    *bool             `json:"correct,omitempty"`
}

type Score struct {
	CorrectCount int
	// Decided is the number of picks whose match has an outcome.
	Decided int
	Details []PickDetail
}

// Outcomes maps every match of a pool to its outcome. A nil value means the
// match exists but is not decided yet; a missing key means the match is not
// part of the pool at all.
type Outcomes map[uuid.UUID]*quiniela.Outcome

// OutcomesOf builds the outcome map for a pool from its stored matches.
func OutcomesOf(matches []quiniela.Match) Outcomes {
	out := make(Outcomes, len(matches))
	for _, m := range matches {
		if m.IsCompleted() {
			o := *m.Outcome
			out[m.ID] = &o
		} else {
			out[m.ID] = nil
		}
	}
	return out
}

// ScorePicks checks each pick against its match outcome. Undecided matches
// are skipped rather than counted as misses. A pick pointing at a match that
// is not in outcomes, or carrying an unknown prediction, is a DataIntegrity
// error.
func ScorePicks(picks []quiniela.Pick, outcomes Outcomes) (Score, error) {
	score := Score{Details: make([]PickDetail, 0, len(picks))}

	for _, p := range picks {
		actual, ok := outcomes[p.MatchID]
		if !ok {
			return Score{}, apperr.DataIntegrity("pick %s references match %s outside the pool", p.ID, p.MatchID)
		}
		if !p.Prediction.Valid() {
			return Score{}, apperr.DataIntegrity("pick %s has unknown prediction %q", p.ID, p.Prediction)
		}

		d := PickDetail{
			PickID:     p.ID,
			MatchID:    p.MatchID,
			Prediction: p.Prediction,
		}
		if actual != nil {
			a := *actual
			correct := p.Prediction == a
			d.Actual = &a
			d.Correct = &correct

			score.Decided++
			if correct {
				score.CorrectCount++
			}
		}
		score.Details = append(score.Details, d)
	}

	return score, nil
}

// Apply copies the scored fields back onto the picks, keyed by pick ID.
func (s Score) Apply(picks []quiniela.Pick) {
	byID := make(map[uuid.UUID]PickDetail, len(s.Details))
	for _, d := range s.Details {
		byID[d.PickID] = d
	}
	for i := range picks {
		if d, ok := byID[picks[i].ID]; ok {
			picks[i].ActualOutcome = d.Actual
			picks[i].IsCorrect = d.Correct
		}
	}
}
