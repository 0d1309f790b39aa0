package main

import (
	"net/http"
	"strconv"

	"github.com/AdamBeresnev/quiniela/internal/apperr"
	"github.com/AdamBeresnev/quiniela/internal/httputil"
	"github.com/AdamBeresnev/quiniela/internal/middleware"
	"github.com/AdamBeresnev/quiniela/internal/quiniela"
	"github.com/AdamBeresnev/quiniela/internal/service"
	"github.com/AdamBeresnev/quiniela/views"
)

func (app *application) listPools(w http.ResponseWriter, r *http.Request) {
	pools, err := app.pools.ListAvailable(r.Context())
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, pools)
}

func (app *application) getPool(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	data, err := app.pools.GetPoolData(r.Context(), id)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, data)
}

func (app *application) getPoolStats(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	stats, err := app.pools.GetPoolStats(r.Context(), id)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, stats)
}

func (app *application) createPool(w http.ResponseWriter, r *http.Request) {
	var in service.PoolInput
	if err := decode(r, &in); err != nil {
		httputil.Error(w, r, err)
		return
	}
	id, err := app.pools.CreatePool(r.Context(), middleware.GetAuthenticatedUser(r.Context()), in)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (app *application) updatePool(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	var in service.PoolInput
	if err := decode(r, &in); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := app.pools.UpdatePool(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id, in); err != nil {
		httputil.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) deletePool(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := app.pools.DeletePool(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id); err != nil {
		httputil.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) addMatches(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	var in []service.MatchInput
	if err := decode(r, &in); err != nil {
		httputil.Error(w, r, err)
		return
	}
	matches, err := app.pools.AddMatches(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id, in)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, matches)
}

func (app *application) activatePool(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := app.pools.ActivatePool(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id); err != nil {
		httputil.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) cancelPool(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := app.pools.CancelPool(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id); err != nil {
		httputil.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) purchaseEntry(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	entry, err := app.entries.PurchaseEntry(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, entry)
}

func (app *application) savePicks(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	var in []service.PickInput
	if err := decode(r, &in); err != nil {
		httputil.Error(w, r, err)
		return
	}
	entry, err := app.entries.SavePicks(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id, in)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, entry)
}

func (app *application) getEntryStats(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	stats, err := app.entries.GetEntryStats(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, stats)
}

func (app *application) recordResult(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	var in service.ResultInput
	if err := decode(r, &in); err != nil {
		httputil.Error(w, r, err)
		return
	}
	match, err := app.matches.RecordResult(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id, in)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, match)
}

func (app *application) updateMatchStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	var in service.StatusInput
	if err := decode(r, &in); err != nil {
		httputil.Error(w, r, err)
		return
	}
	match, err := app.matches.UpdateStatus(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id, in)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, match)
}

func (app *application) getStandings(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	st, err := app.settlement.Standings(r.Context(), id)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, st)
}

func (app *application) viewStandings(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	st, err := app.settlement.Standings(r.Context(), id)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := views.Render(w, r, views.StandingsPage(st)); err != nil {
		httputil.InternalServerError(w, "Failed to render standings", err)
	}
}

func (app *application) settlePool(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	result, err := app.settlement.Settle(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

func (app *application) listAllPools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intQuery(q.Get("page"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	limit, err := intQuery(q.Get("limit"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	result, err := app.pools.ListPools(r.Context(), service.ListPoolsInput{
		Status: quiniela.PoolStatus(q.Get("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

func intQuery(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Validation("%q is not a number", v)
	}
	return n, nil
}

func (app *application) updateMatch(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	var in service.MatchInput
	if err := decode(r, &in); err != nil {
		httputil.Error(w, r, err)
		return
	}
	match, err := app.matches.UpdateMatch(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id, in)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, match)
}

func (app *application) deleteMatch(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := app.matches.DeleteMatch(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id); err != nil {
		httputil.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := app.users.GetProfile(r.Context(), middleware.GetAuthenticatedUser(r.Context()).ID)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, profile)
}

func (app *application) getCacheStats(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, app.settlement.CacheStats())
}

func (app *application) clearCache(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]int{"cleared": app.settlement.ClearCache()})
}

func (app *application) invalidateStandings(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	app.settlement.Invalidate(id)
	w.WriteHeader(http.StatusNoContent)
}
