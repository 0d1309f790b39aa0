package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AdamBeresnev/quiniela/internal/store"
	users "github.com/AdamBeresnev/quiniela/internal/user"
	"github.com/AdamBeresnev/quiniela/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/markbates/goth"
	"github.com/shopspring/decimal"
)

// GuestUserID is the fixed id of the shared guest account. The guest is an
// ordinary player.
var GuestUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type UserService struct {
	db          *sqlx.DB
	store       *store.UserStore
	adminEmails map[string]bool
}

// NewUserService creates the service. Users logging in through OAuth with one
// of adminEmails are given the admin role.
func NewUserService(db *sqlx.DB, store *store.UserStore, adminEmails []string) *UserService {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		admins[strings.ToLower(e)] = true
	}
	return &UserService{db: db, store: store, adminEmails: admins}
}

func (s *UserService) roleFor(email string) users.Role {
	if email != "" && s.adminEmails[strings.ToLower(email)] {
		return users.RoleAdmin
	}
	return users.RoleUser
}

func (s *UserService) FindOrCreateUserByProvider(ctx context.Context, gothUser goth.User) (*users.User, error) {
	user, err := s.store.GetUserByProvider(ctx, gothUser.Provider, gothUser.UserID)

	if err == nil {
		name := displayName(gothUser)
		if utils.OrDefault(user.AvatarURL, "") != gothUser.AvatarURL || user.Username != name {
			user.AvatarURL = utils.StringOrNil(gothUser.AvatarURL)
			user.Username = name
			if err := s.store.UpdateUserNameAndAvatar(ctx, user); err != nil {
				return nil, fmt.Errorf("failed to update user: %w", err)
			}
		}
		// Promotion only; demoting is done by removing the address and
		// editing the row.
		if user.Role != users.RoleAdmin && s.roleFor(user.Email) == users.RoleAdmin {
			if err := s.store.UpdateUserRole(ctx, user.ID, users.RoleAdmin); err != nil {
				return nil, fmt.Errorf("failed to promote user: %w", err)
			}
			user.Role = users.RoleAdmin
			slog.Info("user promoted to admin", "user_id", user.ID)
		}
		return user, nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		newUser := &users.User{
			ID:         uuid.New(),
			Email:      gothUser.Email,
			Username:   displayName(gothUser),
			Role:       s.roleFor(gothUser.Email),
			Provider:   &gothUser.Provider,
			ProviderID: &gothUser.UserID,
			AvatarURL:  utils.StringOrNil(gothUser.AvatarURL),
		}
		err := s.store.CreateUser(ctx, newUser)
		return newUser, err
	}

	return nil, err
}

func displayName(u goth.User) string {
	switch {
	case u.NickName != "":
		return u.NickName
	case u.Name != "":
		return u.Name
	default:
		return u.Email
	}
}

func (s *UserService) EnsureGuestUser(ctx context.Context) (*users.User, error) {
	user, err := s.store.GetUser(ctx, GuestUserID)
	if err == nil {
		// Older databases created the guest as an admin.
		if user.Role != users.RoleUser {
			if err := s.store.UpdateUserRole(ctx, user.ID, users.RoleUser); err != nil {
				return nil, fmt.Errorf("failed to demote guest: %w", err)
			}
			user.Role = users.RoleUser
		}
		return user, nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		guestUser := &users.User{
			ID:       GuestUserID,
			Email:    "guest@quiniela.local",
			Username: "Guest",
			Role:     users.RoleUser,
		}
		err := s.store.CreateUser(ctx, guestUser)
		return guestUser, err
	}
	return nil, err
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*users.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, lookup(err, "user")
	}
	return user, nil
}

// Profile is a user's account with their running totals.
type Profile struct {
	*users.User
	Net decimal.Decimal `json:"net"`
}

// GetProfile returns the user with what they have won minus what they have
// spent on entries.
func (s *UserService) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Net: user.TotalWon.Sub(user.TotalInvested)}, nil
}
