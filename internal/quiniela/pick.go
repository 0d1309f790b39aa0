package quiniela

import (
	"time"

	"github.com/google/uuid"
)

type Pick struct {
	ID         uuid.UUID `db:"id" json:"id"`
	EntryID    uuid.UUID `db:"entry_id" json:"entry_id"`
	MatchID    uuid.UUID `db:"match_id" json:"match_id"`
	Prediction Outcome   `db:"prediction" json:"prediction"`

	// Both stay nil until the referenced match completes.
	ActualOutcome *Outcome `db:"actual_outcome" json:"actual_outcome,omitempty"`
	IsCorrect     *bool    `db:"is_correct" json:"is_correct,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
