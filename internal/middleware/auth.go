package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/AdamBeresnev/quiniela/internal/apperr"
	"github.com/AdamBeresnev/quiniela/internal/config"
	"github.com/AdamBeresnev/quiniela/internal/httputil"
	users "github.com/AdamBeresnev/quiniela/internal/user"
	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/markbates/goth"
	"github.com/markbates/goth/providers/discord"
	"github.com/markbates/goth/providers/google"
)

type ContextKey string

const UserIDKey ContextKey = "userID"

// SessionUserKey is the session field holding the logged in user's id.
const SessionUserKey = "userID"

// UserLoader fetches the user behind a session.
type UserLoader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*users.User, error)
}

// InitAuth registers the OAuth providers that have credentials configured.
func InitAuth(cfg *config.Config) {
	var providers []goth.Provider
	if cfg.Discord.Key != "" {
		providers = append(providers, discord.New(cfg.Discord.Key, cfg.Discord.Secret, cfg.Discord.CallbackURL,
			discord.ScopeIdentify, discord.ScopeEmail))
	}
	if cfg.Google.Key != "" {
		providers = append(providers, google.New(cfg.Google.Key, cfg.Google.Secret, cfg.Google.CallbackURL,
			"email", "profile"))
	}
	if len(providers) == 0 {
		slog.Warn("no OAuth providers configured; only guest login is available")
		return
	}
	goth.UseProviders(providers...)
}

// LoadAuthenticatedUser puts the session's user, if any, on the request
// context. It never rejects a request.
func LoadAuthenticatedUser(sessionManager *scs.SessionManager, loader UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userIDStr := sessionManager.GetString(r.Context(), SessionUserKey)
			if userIDStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := uuid.Parse(userIDStr)
			if err != nil {
				sessionManager.Remove(r.Context(), SessionUserKey)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)

			// Add the user to context so that we can easily get it whenever we want
			user, err := loader.GetUser(ctx, userID)
			if err == nil {
				ctx = context.WithValue(ctx, users.UserKey, user)
			} else {
				slog.Warn("session user not found", "user_id", userID, "error", err)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests without a logged in user.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetAuthenticatedUser(r.Context()) == nil {
			httputil.JSON(w, http.StatusUnauthorized, map[string]string{"error": "login required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests from anyone but an admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetAuthenticatedUser(r.Context()).IsAdmin() {
			httputil.Error(w, r, apperr.Forbidden("admin only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	val := ctx.Value(UserIDKey)
	if val == nil {
		return uuid.Nil, false
	}

	id, ok := val.(uuid.UUID)
	return id, ok
}

func GetAuthenticatedUser(ctx context.Context) *users.User {
	val := ctx.Value(users.UserKey)
	if val == nil {
		return nil
	}
	user, ok := val.(*users.User)
	if !ok {
		return nil
	}
	return user
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *users.User) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, user.ID)
	return context.WithValue(ctx, users.UserKey, user)
}
