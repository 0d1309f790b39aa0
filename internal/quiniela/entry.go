package quiniela

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EntryStatus string

const (
	EntryPending     EntryStatus = "pending"
	EntryPicksFilled EntryStatus = "picks_filled"
	EntryInProgress  EntryStatus = "in_progress"
	EntryCompleted   EntryStatus = "completed"
	EntryWinner      EntryStatus = "winner"
	EntryLoser       EntryStatus = "loser"
)

type Entry struct {
	ID     uuid.UUID   `db:"id" json:"id"`
	PoolID uuid.UUID   `db:"pool_id" json:"pool_id"`
	UserID uuid.UUID   `db:"user_id" json:"user_id"`
	Status EntryStatus `db:"status" json:"status"`

	AmountPaid   decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	CorrectCount int             `db:"correct_count" json:"correct_count"`
	FinalRank    *int            `db:"final_rank" json:"final_rank,omitempty"`
	Prize        decimal.Decimal `db:"prize" json:"prize"`

	PicksFilled      int        `db:"picks_filled" json:"picks_filled"`
	TotalPicks       int        `db:"total_picks" json:"total_picks"`
	PicksCompletedAt *time.Time `db:"picks_completed_at" json:"picks_completed_at,omitempty"`

	PurchasedAt time.Time `db:"purchased_at" json:"purchased_at"`
}

func (e *Entry) PicksComplete() bool {
	return e.TotalPicks > 0 && e.PicksFilled >= e.TotalPicks
}

// ROI is the percentage return on the amount paid.
func (e *Entry) ROI() decimal.Decimal {
	if e.AmountPaid.IsZero() {
		return decimal.Zero
	}
	return e.Prize.Sub(e.AmountPaid).Div(e.AmountPaid).Mul(decimal.NewFromInt(100)).Round(2)
}
