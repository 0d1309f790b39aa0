package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AdamBeresnev/quiniela/internal/config"
	"github.com/AdamBeresnev/quiniela/internal/db"
	"github.com/AdamBeresnev/quiniela/internal/quiniela"
	"github.com/AdamBeresnev/quiniela/internal/store"
	users "github.com/AdamBeresnev/quiniela/internal/user"
	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	*httptest.Server
	userStore *store.UserStore
	poolStore *store.PoolStore
}

// newTestServer serves app.routes() over a fresh database. It also mounts
// POST /test/login/{id}, which starts a session for an existing user the way
// the OAuth callback does.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	database, err := db.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(database.DB, "../../migrations"))

	sessionManager := scs.New()
	cfg := &config.Config{StandingsCacheTTL: time.Minute}
	app, _ := newApplication(cfg, database, sessionManager, clockwork.NewFakeClockAt(testStart))

	mux := chi.NewRouter()
	mux.Method(http.MethodPost, "/test/login/{id}", sessionManager.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := app.login(r, uuid.MustParse(chi.URLParam(r, "id"))); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})))
	mux.Mount("/", app.routes())

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServer{
		Server:    srv,
		userStore: store.NewUserStore(database),
		poolStore: store.NewPoolStore(database),
	}
}

// client returns an HTTP client with its own cookie jar, i.e. its own session.
func (ts *testServer) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

// loggedIn creates a user with role and returns a client logged in as them.
func (ts *testServer) loggedIn(t *testing.T, name string, role users.Role) (*http.Client, *users.User) {
	t.Helper()

	u := &users.User{ID: uuid.New(), Email: name + "@example.com", Username: name, Role: role}
	require.NoError(t, ts.userStore.CreateUser(context.Background(), u))

	c := ts.client(t)
	code, _ := ts.do(t, c, http.MethodPost, "/test/login/"+u.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, code)
	return c, u
}

// do sends body as JSON (raw if it is a string) and returns the status and
// response body.
func (ts *testServer) do(t *testing.T, c *http.Client, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (ts *testServer) expect(t *testing.T, c *http.Client, method, path string, body any, want int) []byte {
	t.Helper()
	code, out := ts.do(t, c, method, path, body)
	require.Equal(t, want, code, "%s %s: %s", method, path, out)
	return out
}

func poolBody(matches int) map[string]any {
	body := map[string]any{
		"name":        "Matchday 1",
		"sport":       "football",
		"entry_price": "10",
		"prize_total": "100",
		"opens_at":    testStart.Add(-time.Hour),
		"closes_at":   testStart.Add(24 * time.Hour),
		"starts_at":   testStart.Add(48 * time.Hour),
		"prize_tiers": []map[string]any{{"rank": 1, "amount": "100"}},
	}
	var list []map[string]any
	for i := 0; i < matches; i++ {
		list = append(list, map[string]any{
			"home_team":    "Home " + string(rune('A'+i)),
			"away_team":    "Away " + string(rune('A'+i)),
			"scheduled_at": testStart.Add(48*time.Hour + time.Duration(i)*time.Hour),
		})
	}
	body["matches"] = list
	return body
}

// activePool creates and activates a pool through the API as admin.
func (ts *testServer) activePool(t *testing.T, admin *http.Client, matches int) (uuid.UUID, []quiniela.Match) {
	t.Helper()

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	out := ts.expect(t, admin, http.MethodPost, "/pools", poolBody(matches), http.StatusCreated)
	require.NoError(t, json.Unmarshal(out, &created))
	ts.expect(t, admin, http.MethodPost, "/pools/"+created.ID.String()+"/activate", nil, http.StatusNoContent)

	var data struct {
		Matches []quiniela.Match `json:"matches"`
	}
	out = ts.expect(t, admin, http.MethodGet, "/pools/"+created.ID.String(), nil, http.StatusOK)
	require.NoError(t, json.Unmarshal(out, &data))
	require.Len(t, data.Matches, matches)
	return created.ID, data.Matches
}

func TestGuestLoginIsNotAdmin(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.loggedIn(t, "admin", users.RoleAdmin)
	poolID, matches := ts.activePool(t, admin, 1)

	guest := ts.client(t)
	out := ts.expect(t, guest, http.MethodPost, "/auth/guest", nil, http.StatusOK)
	var user users.User
	require.NoError(t, json.Unmarshal(out, &user))
	assert.Equal(t, users.RoleUser, user.Role)

	pool := "/pools/" + poolID.String()
	ts.expect(t, guest, http.MethodPut, "/matches/"+matches[0].ID.String()+"/result",
		map[string]int{"home_score": 3, "away_score": 0}, http.StatusForbidden)
	ts.expect(t, guest, http.MethodPost, pool+"/settle", nil, http.StatusForbidden)
	ts.expect(t, guest, http.MethodPost, pool+"/cancel", nil, http.StatusForbidden)
	ts.expect(t, guest, http.MethodDelete, pool, nil, http.StatusForbidden)
	ts.expect(t, guest, http.MethodPost, "/pools", poolBody(1), http.StatusForbidden)

	stored, err := ts.poolStore.GetPool(context.Background(), poolID)
	require.NoError(t, err)
	assert.Equal(t, quiniela.PoolActive, stored.Status)
	match, err := ts.poolStore.GetMatch(context.Background(), matches[0].ID)
	require.NoError(t, err)
	assert.Nil(t, match.Outcome)
}

func TestRouteAccess(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.loggedIn(t, "admin", users.RoleAdmin)
	player, _ := ts.loggedIn(t, "player", users.RoleUser)
	anonymous := ts.client(t)
	poolID, matches := ts.activePool(t, admin, 1)

	pool := "/pools/" + poolID.String()
	match := "/matches/" + matches[0].ID.String()
	result := map[string]int{"home_score": 1, "away_score": 1}

	testCases := []struct {
		name   string
		method string
		path   string
		body   any
		anon   int
		player int
	}{
		{"buy entry", http.MethodPost, pool + "/entries", nil, http.StatusUnauthorized, http.StatusCreated},
		{"profile", http.MethodGet, "/me", nil, http.StatusUnauthorized, http.StatusOK},
		{"settle", http.MethodPost, pool + "/settle", nil, http.StatusUnauthorized, http.StatusForbidden},
		{"record result", http.MethodPut, match + "/result", result, http.StatusUnauthorized, http.StatusForbidden},
		{"edit match", http.MethodPut, match, map[string]any{}, http.StatusUnauthorized, http.StatusForbidden},
		{"list all pools", http.MethodGet, "/admin/pools", nil, http.StatusUnauthorized, http.StatusForbidden},
		{"clear cache", http.MethodDelete, "/admin/cache", nil, http.StatusUnauthorized, http.StatusForbidden},
		{"public standings", http.MethodGet, pool + "/standings", nil, http.StatusOK, http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts.expect(t, anonymous, tc.method, tc.path, tc.body, tc.anon)
			ts.expect(t, player, tc.method, tc.path, tc.body, tc.player)
		})
	}
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.loggedIn(t, "admin", users.RoleAdmin)
	poolID, _ := ts.activePool(t, admin, 1)

	out := ts.expect(t, admin, http.MethodGet, "/pools/not-an-id", nil, http.StatusBadRequest)
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(out, &body))
	assert.Equal(t, "validation", body.Kind)

	ts.expect(t, admin, http.MethodPost, "/pools", `{"name":`, http.StatusBadRequest)
	ts.expect(t, admin, http.MethodPost, "/pools", `{"unknown": 1}`, http.StatusBadRequest)
	ts.expect(t, admin, http.MethodGet, "/pools/"+uuid.NewString(), nil, http.StatusNotFound)
	ts.expect(t, admin, http.MethodGet, "/admin/pools?page=two", nil, http.StatusBadRequest)
	ts.expect(t, admin, http.MethodPost, "/pools/"+poolID.String()+"/settle", nil, http.StatusPreconditionFailed)
	ts.expect(t, admin, http.MethodGet, "/no/such/route", nil, http.StatusNotFound)
}

func TestSettleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.loggedIn(t, "admin", users.RoleAdmin)
	poolID, matches := ts.activePool(t, admin, 2)
	pool := "/pools/" + poolID.String()

	guest := ts.client(t)
	ts.expect(t, guest, http.MethodPost, "/auth/guest", nil, http.StatusOK)
	ts.expect(t, guest, http.MethodPost, pool+"/entries", nil, http.StatusCreated)
	ts.expect(t, guest, http.MethodPost, pool+"/picks", []map[string]any{
		{"match_id": matches[0].ID, "prediction": "home"},
		{"match_id": matches[1].ID, "prediction": "draw"},
	}, http.StatusOK)

	player, _ := ts.loggedIn(t, "player", users.RoleUser)
	ts.expect(t, player, http.MethodPost, pool+"/entries", nil, http.StatusCreated)
	ts.expect(t, player, http.MethodPost, pool+"/picks", []map[string]any{
		{"match_id": matches[0].ID, "prediction": "away"},
		{"match_id": matches[1].ID, "prediction": "away"},
	}, http.StatusOK)

	ts.expect(t, admin, http.MethodPut, "/matches/"+matches[0].ID.String()+"/result",
		map[string]int{"home_score": 2, "away_score": 0}, http.StatusOK)
	ts.expect(t, admin, http.MethodPut, "/matches/"+matches[1].ID.String()+"/result",
		map[string]int{"home_score": 1, "away_score": 1}, http.StatusOK)

	out := ts.expect(t, admin, http.MethodPost, pool+"/settle", nil, http.StatusOK)
	var result struct {
		TotalPaid decimal.Decimal `json:"total_paid"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, "100.00", result.TotalPaid.StringFixed(2))
	ts.expect(t, admin, http.MethodPost, pool+"/settle", nil, http.StatusConflict)

	out = ts.expect(t, guest, http.MethodGet, "/me", nil, http.StatusOK)
	var profile struct {
		Username  string          `json:"username"`
		TotalWins int             `json:"total_wins"`
		TotalWon  decimal.Decimal `json:"total_won"`
		Net       decimal.Decimal `json:"net"`
	}
	require.NoError(t, json.Unmarshal(out, &profile))
	assert.Equal(t, "Guest", profile.Username)
	assert.Equal(t, 1, profile.TotalWins)
	assert.Equal(t, "100.00", profile.TotalWon.StringFixed(2))
	assert.Equal(t, "90.00", profile.Net.StringFixed(2))

	out = ts.expect(t, guest, http.MethodGet, pool+"/standings/view", nil, http.StatusOK)
	assert.Contains(t, string(out), "Final standings")
	assert.Contains(t, string(out), "Signed in as Guest")

	out = ts.expect(t, admin, http.MethodGet, "/admin/cache", nil, http.StatusOK)
	assert.JSONEq(t, `{"entries": 1}`, string(out))
	ts.expect(t, admin, http.MethodDelete, pool+"/standings/cache", nil, http.StatusNoContent)
	out = ts.expect(t, admin, http.MethodDelete, "/admin/cache", nil, http.StatusOK)
	assert.JSONEq(t, `{"cleared": 0}`, string(out))

	out = ts.expect(t, admin, http.MethodGet, "/admin/pools?status=completed", nil, http.StatusOK)
	var page struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(out, &page))
	assert.Equal(t, 1, page.Total)
}

func TestEditMatchesOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	admin, _ := ts.loggedIn(t, "admin", users.RoleAdmin)

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	out := ts.expect(t, admin, http.MethodPost, "/pools", poolBody(2), http.StatusCreated)
	require.NoError(t, json.Unmarshal(out, &created))

	matches, err := ts.poolStore.GetMatches(context.Background(), created.ID)
	require.NoError(t, err)

	ts.expect(t, admin, http.MethodPut, "/matches/"+matches[0].ID.String(), map[string]any{
		"home_team":    "Brazil",
		"away_team":    "Norway",
		"scheduled_at": testStart.Add(50 * time.Hour),
	}, http.StatusOK)
	ts.expect(t, admin, http.MethodDelete, "/matches/"+matches[1].ID.String(), nil, http.StatusNoContent)

	remaining, err := ts.poolStore.GetMatches(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "Brazil", remaining[0].HomeTeam)
}
