package quiniela

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PoolStatus string

const (
	PoolDraft      PoolStatus = "draft"
	PoolActive     PoolStatus = "active"
	PoolInProgress PoolStatus = "in_progress"
	PoolCompleted  PoolStatus = "completed"
	PoolCancelled  PoolStatus = "cancelled"
)

// PrizeTier is one row of a pool's prize schedule. Rank 1 is first place.
type PrizeTier struct {
	PoolID uuid.UUID       `db:"pool_id" json:"-"`
	Rank   int             `db:"rank" json:"rank"`
	Amount decimal.Decimal `db:"amount" json:"amount"`
}

type Pool struct {
	ID          uuid.UUID `db:"id" json:"id"`
	OwnerID     uuid.UUID `db:"owner_id" json:"owner_id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Sport       string    `db:"sport" json:"sport"`

	EntryPrice       decimal.Decimal `db:"entry_price" json:"entry_price"`
	PrizeTotal       decimal.Decimal `db:"prize_total" json:"prize_total"`
	MaxEntries       *int            `db:"max_entries" json:"max_entries,omitempty"`
	ParticipantCount int             `db:"participant_count" json:"participant_count"`

	Status   PoolStatus `db:"status" json:"status"`
	OpensAt  time.Time  `db:"opens_at" json:"opens_at"`
	ClosesAt time.Time  `db:"closes_at" json:"closes_at"`
	StartsAt time.Time  `db:"starts_at" json:"starts_at"`

	TotalCollected decimal.Decimal `db:"total_collected" json:"total_collected"`
	TotalPaid      decimal.Decimal `db:"total_paid" json:"total_paid"`

	IsPublic         bool `db:"is_public" json:"is_public"`
	AllowPickChanges bool `db:"allow_pick_changes" json:"allow_pick_changes"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	SettledAt *time.Time `db:"settled_at" json:"settled_at,omitempty"`
}

func (p *Pool) IsClosed(now time.Time) bool {
	return !now.Before(p.ClosesAt)
}

func (p *Pool) HasStarted(now time.Time) bool {
	return !now.Before(p.StartsAt)
}

func (p *Pool) HasCapacity() bool {
	return p.MaxEntries == nil || p.ParticipantCount < *p.MaxEntries
}

func (p *Pool) OpenForPurchase(now time.Time) bool {
	return p.Status == PoolActive && !p.IsClosed(now) && p.HasCapacity()
}

func (p *Pool) IsSettled() bool {
	return p.Status == PoolCompleted
}

func (p *Pool) Profit() decimal.Decimal {
	return p.TotalCollected.Sub(p.TotalPaid)
}

// Margin is the profit as a percentage of collected revenue.
func (p *Pool) Margin() decimal.Decimal {
	if p.TotalCollected.IsZero() {
		return decimal.Zero
	}
	return p.Profit().Div(p.TotalCollected).Mul(decimal.NewFromInt(100)).Round(2)
}
