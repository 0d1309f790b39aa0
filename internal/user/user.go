package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ContextKey string

const UserKey ContextKey = "user"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type User struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Email      string    `db:"email" json:"email"`
	Username   string    `db:"username" json:"username"`
	Role       Role      `db:"role" json:"role"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	Provider   *string   `db:"provider" json:"-"`
	ProviderID *string   `db:"provider_id" json:"-"`
	AvatarURL  *string   `db:"avatar_url" json:"avatar_url,omitempty"`

	TotalEntries  int             `db:"total_entries" json:"total_entries"`
	TotalInvested decimal.Decimal `db:"total_invested" json:"total_invested"`
	TotalWon      decimal.Decimal `db:"total_won" json:"total_won"`
	TotalWins     int             `db:"total_wins" json:"total_wins"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// CanManage reports whether u may administer something owned by ownerID.
func (u *User) CanManage(ownerID uuid.UUID) bool {
	return u != nil && (u.IsAdmin() || u.ID == ownerID)
}
