package main

import (
	"context"
	"net/http"

	"github.com/AdamBeresnev/quiniela/internal/apperr"
	"github.com/AdamBeresnev/quiniela/internal/httputil"
	"github.com/AdamBeresnev/quiniela/internal/middleware"
	"github.com/AdamBeresnev/quiniela/internal/service"
	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/markbates/goth/gothic"
)

type application struct {
	sessions   *scs.SessionManager
	users      *service.UserService
	pools      *service.PoolService
	entries    *service.EntryService
	matches    *service.MatchService
	settlement *service.SettlementService
}

func (app *application) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(app.sessions.LoadAndSave)
	r.Use(middleware.LoadAuthenticatedUser(app.sessions, app.users))

	r.Get("/auth/{provider}", func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		r = r.WithContext(context.WithValue(r.Context(), gothic.ProviderParamKey, provider))

		gothic.BeginAuthHandler(w, r)
	})

	r.Get("/auth/{provider}/callback", func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		r = r.WithContext(context.WithValue(r.Context(), gothic.ProviderParamKey, provider))

		gothUser, err := gothic.CompleteUserAuth(w, r)
		if err != nil {
			httputil.BadRequest(w, "Authentication failure", err)
			return
		}

		user, err := app.users.FindOrCreateUserByProvider(r.Context(), gothUser)
		if err != nil {
			httputil.InternalServerError(w, "Failed to find or create user", err)
			return
		}

		if err := app.login(r, user.ID); err != nil {
			httputil.InternalServerError(w, "Failed to start session", err)
			return
		}
		http.Redirect(w, r, "/pools", http.StatusFound)
	})

	r.Post("/auth/guest", func(w http.ResponseWriter, r *http.Request) {
		user, err := app.users.EnsureGuestUser(r.Context())
		if err != nil {
			httputil.InternalServerError(w, "Failed to login as guest", err)
			return
		}

		if err := app.login(r, user.ID); err != nil {
			httputil.InternalServerError(w, "Failed to start session", err)
			return
		}
		httputil.JSON(w, http.StatusOK, user)
	})

	r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
		if err := app.sessions.Destroy(r.Context()); err != nil {
			httputil.InternalServerError(w, "Failed to destroy session", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "no such route", nil)
	})

	r.Get("/pools", app.listPools)
	r.Get("/pools/{id}", app.getPool)
	r.Get("/pools/{id}/standings", app.getStandings)
	r.Get("/pools/{id}/standings/view", app.viewStandings)
	r.Get("/pools/{id}/stats", app.getPoolStats)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Post("/pools/{id}/entries", app.purchaseEntry)
		r.Post("/pools/{id}/picks", app.savePicks)
		r.Get("/entries/{id}/stats", app.getEntryStats)
		r.Get("/me", app.getProfile)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Post("/pools", app.createPool)
			r.Put("/pools/{id}", app.updatePool)
			r.Delete("/pools/{id}", app.deletePool)
			r.Post("/pools/{id}/matches", app.addMatches)
			r.Post("/pools/{id}/activate", app.activatePool)
			r.Post("/pools/{id}/cancel", app.cancelPool)
			r.Post("/pools/{id}/settle", app.settlePool)
			r.Put("/matches/{id}/result", app.recordResult)
			r.Put("/matches/{id}/status", app.updateMatchStatus)
			r.Put("/matches/{id}", app.updateMatch)
			r.Delete("/matches/{id}", app.deleteMatch)

			r.Get("/admin/pools", app.listAllPools)
			r.Get("/admin/cache", app.getCacheStats)
			r.Delete("/admin/cache", app.clearCache)
			r.Delete("/pools/{id}/standings/cache", app.invalidateStandings)
		})
	})

	return r
}

func (app *application) login(r *http.Request, userID uuid.UUID) error {
	// New token on privilege change.
	if err := app.sessions.RenewToken(r.Context()); err != nil {
		return err
	}
	app.sessions.Put(r.Context(), middleware.SessionUserKey, userID.String())
	return nil
}

// idParam parses the {id} route parameter.
func idParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	if err := httputil.DecodeJSON(r, v); err != nil {
		return apperr.Wrap(apperr.KindValidation, err, "invalid request body")
	}
	return nil
}
