package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdamBeresnev/quiniela/internal/apperr"
	"github.com/AdamBeresnev/quiniela/internal/cache"
	dbpkg "github.com/AdamBeresnev/quiniela/internal/db"
	"github.com/AdamBeresnev/quiniela/internal/quiniela"
	"github.com/AdamBeresnev/quiniela/internal/store"
	users "github.com/AdamBeresnev/quiniela/internal/user"
	"github.com/AdamBeresnev/quiniela/internal/utils"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a SQLite database in a temp dir and applies migrations.
// A file is used instead of :memory: so every pooled connection sees the same
// data, which the concurrency tests rely on.
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", dbpkg.DSN(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err, "Failed to connect to test DB")

	driver, err := sqlite3.WithInstance(database.DB, &sqlite3.Config{})
	require.NoError(t, err, "Failed to create migrate driver instance")

	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"sqlite3",
		driver,
	)
	require.NoError(t, err, "Failed to create migrate instance")

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to apply migrations")
	}

	t.Cleanup(func() { database.Close() })
	return database
}

var testStart = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db         *sqlx.DB
	clock      *clockwork.FakeClock
	poolStore  *store.PoolStore
	userStore  *store.UserStore
	pools      *PoolService
	entries    *EntryService
	matches    *MatchService
	settlement *SettlementService
	admin      *users.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database := setupTestDB(t)
	clock := clockwork.NewFakeClockAt(testStart)
	poolStore := store.NewPoolStore(database)
	userStore := store.NewUserStore(database)
	standingsCache := cache.New[uuid.UUID, *Standings](time.Minute, clock)

	f := &fixture{
		db:         database,
		clock:      clock,
		poolStore:  poolStore,
		userStore:  userStore,
		pools:      NewPoolService(database, poolStore, clock),
		entries:    NewEntryService(database, poolStore, userStore, standingsCache, clock),
		matches:    NewMatchService(database, poolStore, standingsCache),
		settlement: NewSettlementService(database, poolStore, userStore, standingsCache, clock),
	}
	f.admin = f.newUser(t, "admin", users.RoleAdmin)
	return f
}

func (f *fixture) newUser(t *testing.T, name string, role users.Role) *users.User {
	t.Helper()

	u := &users.User{
		ID:       uuid.New(),
		Email:    name + "@example.com",
		Username: name,
		Role:     role,
	}
	require.NoError(t, f.userStore.CreateUser(context.Background(), u))
	return u
}

// poolInput describes a pool that opens before testStart, closes a day later
// and kicks off the day after that.
func poolInput(matchCount int, tiers ...PrizeTierInput) PoolInput {
	in := PoolInput{
		Name:       "Matchday 1",
		Sport:      "football",
		EntryPrice: decimal.NewFromInt(10),
		PrizeTotal: decimal.NewFromInt(500),
		OpensAt:    testStart.Add(-time.Hour),
		ClosesAt:   testStart.Add(24 * time.Hour),
		StartsAt:   testStart.Add(48 * time.Hour),
		PrizeTiers: tiers,
	}
	for i := 0; i < matchCount; i++ {
		in.Matches = append(in.Matches, MatchInput{
			HomeTeam:    "Home " + string(rune('A'+i)),
			AwayTeam:    "Away " + string(rune('A'+i)),
			ScheduledAt: testStart.Add(48*time.Hour + time.Duration(i)*time.Hour),
		})
	}
	return in
}

func tier(rank int, amount int64) PrizeTierInput {
	return PrizeTierInput{Rank: rank, Amount: decimal.NewFromInt(amount)}
}

// activePool creates and activates a pool and returns it with its matches.
func (f *fixture) activePool(t *testing.T, in PoolInput) (uuid.UUID, []quiniela.Match) {
	t.Helper()
	ctx := context.Background()

	id, err := f.pools.CreatePool(ctx, f.admin, in)
	require.NoError(t, err)
	require.NoError(t, f.pools.ActivatePool(ctx, f.admin, id))

	matches, err := f.poolStore.GetMatches(ctx, id)
	require.NoError(t, err)
	return id, matches
}

// join buys an entry for a new user and fills in their picks, one per match.
func (f *fixture) join(t *testing.T, name string, poolID uuid.UUID, matches []quiniela.Match, predictions ...quiniela.Outcome) (*users.User, *quiniela.Entry) {
	t.Helper()
	ctx := context.Background()

	u := f.newUser(t, name, users.RoleUser)
	_, err := f.entries.PurchaseEntry(ctx, u, poolID)
	require.NoError(t, err)

	inputs := make([]PickInput, len(predictions))
	for i, p := range predictions {
		inputs[i] = PickInput{MatchID: matches[i].ID, Prediction: p}
	}
	entry, err := f.entries.SavePicks(ctx, u, poolID, inputs)
	require.NoError(t, err)

	// Spread pick completion times so display order is deterministic.
	f.clock.Advance(time.Minute)
	return u, entry
}

func (f *fixture) recordResult(t *testing.T, matchID uuid.UUID, home, away int) {
	t.Helper()
	_, err := f.matches.RecordResult(context.Background(), f.admin, matchID, ResultInput{
		HomeScore: utils.Ptr(home),
		AwayScore: utils.Ptr(away),
	})
	require.NoError(t, err)
}

func assertKind(t *testing.T, kind apperr.Kind, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperr.KindOf(err), "unexpected error: %v", err)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}
