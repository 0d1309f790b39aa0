package store

import (
	"context"
	"time"

	users "github.com/AdamBeresnev/quiniela/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type UserStore struct {
	db *sqlx.DB
}

const (
	getUserQuery           = "SELECT * FROM users WHERE id = ?"
	getUserByProviderQuery = `
        SELECT * FROM users
        WHERE provider = ?
        AND provider_id = ?
    `
	createUserQuery = `
		INSERT INTO users (id, email, username, role, provider, provider_id, avatar_url, created_at) VALUES
		(:id, :email, :username, :role, :provider, :provider_id, :avatar_url, :created_at)
	`
	updateUserNameAndAvatarQuery = `
		UPDATE users SET
		username = :username,
		avatar_url = :avatar_url
		WHERE id = :id
	`
	updateUserRoleQuery   = "UPDATE users SET role = ? WHERE id = ?"
	updateUserTotalsQuery = `
		UPDATE users SET
		total_entries = :total_entries,
		total_invested = :total_invested,
		total_won = :total_won,
		total_wins = :total_wins
		WHERE id = :id
	`
)

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetUserByProvider(ctx context.Context, provider string, providerID string) (*users.User, error) {
	var user users.User
	err := s.db.GetContext(ctx, &user, getUserByProviderQuery, provider, providerID)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *UserStore) GetUser(ctx context.Context, id uuid.UUID) (*users.User, error) {
	var user users.User
	err := s.db.GetContext(ctx, &user, getUserQuery, id)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) GetUserTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*users.User, error) {
	var user users.User
	err := tx.GetContext(ctx, &user, getUserQuery, id)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) CreateUser(ctx context.Context, user *users.User) error {
	if user.Role == "" {
		user.Role = users.RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, createUserQuery, user)
	return err
}

func (s *UserStore) UpdateUserNameAndAvatar(ctx context.Context, user *users.User) error {
	_, err := s.db.NamedExecContext(ctx, updateUserNameAndAvatarQuery, user)
	return err
}

func (s *UserStore) UpdateUserRole(ctx context.Context, id uuid.UUID, role users.Role) error {
	_, err := s.db.ExecContext(ctx, updateUserRoleQuery, role, id)
	return err
}

// AddPurchaseTx records one entry bought for amount.
func (s *UserStore) AddPurchaseTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	user, err := s.GetUserTx(ctx, tx, userID)
	if err != nil {
		return err
	}
	user.TotalEntries++
	user.TotalInvested = user.TotalInvested.Add(amount)
	_, err = tx.NamedExecContext(ctx, updateUserTotalsQuery, user)
	return err
}

// AddWinningsTx credits a settled prize to the user.
func (s *UserStore) AddWinningsTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, prize decimal.Decimal) error {
	user, err := s.GetUserTx(ctx, tx, userID)
	if err != nil {
		return err
	}
	user.TotalWins++
	user.TotalWon = user.TotalWon.Add(prize)
	_, err = tx.NamedExecContext(ctx, updateUserTotalsQuery, user)
	return err
}

// GetUsersByIDs returns the users with the given ids keyed by id. Unknown ids
// are left out.
func (s *UserStore) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]users.User, error) {
	out := make(map[uuid.UUID]users.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In("SELECT * FROM users WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	var list []users.User
	if err := s.db.SelectContext(ctx, &list, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, u := range list {
		out[u.ID] = u
	}
	return out, nil
}
