package quiniela

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchPending    MatchStatus = "pending"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	MatchPostponed  MatchStatus = "postponed"
	MatchCancelled  MatchStatus = "cancelled"
)

type Match struct {
	ID     uuid.UUID `db:"id" json:"id"`
	PoolID uuid.UUID `db:"pool_id" json:"pool_id"`

	HomeTeam    string    `db:"home_team" json:"home_team"`
	AwayTeam    string    `db:"away_team" json:"away_team"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	SortOrder   int       `db:"sort_order" json:"sort_order"`

	Status    MatchStatus `db:"status" json:"status"`
	HomeScore *int        `db:"home_score" json:"home_score,omitempty"`
	AwayScore *int        `db:"away_score" json:"away_score,omitempty"`

	// Set only together with Status == MatchCompleted.
	Outcome *Outcome `db:"outcome" json:"outcome,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (m *Match) IsCompleted() bool {
	return m.Status == MatchCompleted && m.Outcome != nil
}

func (m *Match) HasStarted(now time.Time) bool {
	return !now.Before(m.ScheduledAt)
}
