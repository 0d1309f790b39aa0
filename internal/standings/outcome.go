// Package standings holds the pure scoring, ranking and prize-split logic
// used when a pool is settled. Nothing in here touches storage.
package standings

import "github.com/AdamBeresnev/quiniela/internal/quiniela"

// Resolve derives a match outcome from its two scores. It returns nil while
// either score is missing.
func Resolve(homeScore, awayScore *int) *quiniela.Outcome {
	if homeScore == nil || awayScore == nil {
		return nil
	}

	var o quiniela.Outcome
	switch {
	case *homeScore > *awayScore:
		o = quiniela.OutcomeHome
	case *awayScore > *homeScore:
		o = quiniela.OutcomeAway
	default:
		o = quiniela.OutcomeDraw
	}
	return &o
}
