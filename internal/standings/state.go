package standings

import "github.com/AdamBeresnev/quiniela/internal/quiniela"

type SettlementState string

const (
	AwaitingResults SettlementState = "awaiting_results"
	Ready           SettlementState = "ready"
	Settled         SettlementState = "settled"
)

// StateOf reports where a pool stands with respect to settlement. A pool
// without matches is never ready.
func StateOf(pool *quiniela.Pool, matches []quiniela.Match) SettlementState {
	if pool.IsSettled() {
		return Settled
	}
	if len(matches) == 0 {
		return AwaitingResults
	}
	for i := range matches {
		if !matches[i].IsCompleted() {
			return AwaitingResults
		}
	}
	return Ready
}

// PendingMatches counts matches that have no final outcome yet.
func PendingMatches(matches []quiniela.Match) int {
	n := 0
	for i := range matches {
		if !matches[i].IsCompleted() {
			n++
		}
	}
	return n
}
