package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AdamBeresnev/quiniela/internal/apperr"
	"github.com/AdamBeresnev/quiniela/internal/quiniela"
	users "github.com/AdamBeresnev/quiniela/internal/user"
	"github.com/AdamBeresnev/quiniela/internal/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poolID, _ := f.activePool(t, poolInput(3, tier(1, 100)))
	buyer := f.newUser(t, "buyer", users.RoleUser)

	entry, err := f.entries.PurchaseEntry(ctx, buyer, poolID)
	require.NoError(t, err)
	assert.Equal(t, quiniela.EntryPending, entry.Status)
	assert.Equal(t, 3, entry.TotalPicks)
	assertMoney(t, "10.00", entry.AmountPaid)

	pool, err := f.poolStore.GetPool(ctx, poolID)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.ParticipantCount)
	assertMoney(t, "10.00", pool.TotalCollected)

	u, err := f.userStore.GetUser(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, u.TotalEntries)
	assertMoney(t, "10.00", u.TotalInvested)

	_, err = f.entries.PurchaseEntry(ctx, buyer, poolID)
	assertKind(t, apperr.KindConflict, err)
}

func TestPurchaseEntryRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testCases := []struct {
		name  string
		setup func(t *testing.T) uuid.UUID
		kind  apperr.Kind
	}{
		{
			name: "unknown pool",
			setup: func(t *testing.T) uuid.UUID {
				return uuid.New()
			},
			kind: apperr.KindNotFound,
		},
		{
			name: "draft pool",
			setup: func(t *testing.T) uuid.UUID {
				id, err := f.pools.CreatePool(ctx, f.admin, poolInput(1))
				require.NoError(t, err)
				return id
			},
			kind: apperr.KindPreconditionFailed,
		},
		{
			name: "not open yet",
			setup: func(t *testing.T) uuid.UUID {
				in := poolInput(1)
				in.OpensAt = testStart.Add(time.Hour)
				id, _ := f.activePool(t, in)
				return id
			},
			kind: apperr.KindPreconditionFailed,
		},
		{
			name: "closed",
			setup: func(t *testing.T) uuid.UUID {
				in := poolInput(1)
				in.OpensAt = testStart.Add(-48 * time.Hour)
				in.ClosesAt = testStart.Add(-time.Hour)
				id, _ := f.activePool(t, in)
				return id
			},
			kind: apperr.KindPreconditionFailed,
		},
		{
			name: "cancelled",
			setup: func(t *testing.T) uuid.UUID {
				id, _ := f.activePool(t, poolInput(1))
				require.NoError(t, f.pools.CancelPool(ctx, f.admin, id))
				return id
			},
			kind: apperr.KindPreconditionFailed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buyer := f.newUser(t, "buyer-"+tc.name, users.RoleUser)
			_, err := f.entries.PurchaseEntry(ctx, buyer, tc.setup(t))
			assertKind(t, tc.kind, err)
		})
	}
}

func TestPurchaseEntryRespectsCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := poolInput(1)
	in.MaxEntries = utils.Ptr(2)
	poolID, _ := f.activePool(t, in)

	const buyers = 6
	people := make([]*users.User, buyers)
	for i := range people {
		people[i] = f.newUser(t, fmt.Sprintf("buyer%d", i), users.RoleUser)
	}

	errs := make([]error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.entries.PurchaseEntry(ctx, people[i], poolID)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperr.KindPreconditionFailed, apperr.KindOf(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 2, succeeded)

	pool, err := f.poolStore.GetPool(ctx, poolID)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.ParticipantCount)
	assertMoney(t, "20.00", pool.TotalCollected)

	entries, err := f.poolStore.GetEntries(ctx, poolID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSavePicks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	poolID, matches := f.activePool(t, poolInput(2))

	player := f.newUser(t, "player", users.RoleUser)
	_, err := f.entries.SavePicks(ctx, player, poolID, []PickInput{{MatchID: matches[0].ID, Prediction: home}})
	assertKind(t, apperr.KindNotFound, err)

	_, err = f.entries.PurchaseEntry(ctx, player, poolID)
	require.NoError(t, err)

	entry, err := f.entries.SavePicks(ctx, player, poolID, []PickInput{{MatchID: matches[0].ID, Prediction: home}})
	require.NoError(t, err)
	assert.Equal(t, quiniela.EntryPending, entry.Status)
	assert.Equal(t, 1, entry.PicksFilled)
	assert.Nil(t, entry.PicksCompletedAt)

	f.clock.Advance(time.Hour)
	entry, err = f.entries.SavePicks(ctx, player, poolID, []PickInput{
		{MatchID: matches[0].ID, Prediction: draw},
		{MatchID: matches[1].ID, Prediction: away},
	})
	require.NoError(t, err)
	assert.Equal(t, quiniela.EntryPicksFilled, entry.Status)
	assert.Equal(t, 2, entry.PicksFilled)
	require.NotNil(t, entry.PicksCompletedAt)
	assert.True(t, entry.PicksCompletedAt.Equal(f.clock.Now()))

	picks, err := f.poolStore.GetPicksByEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, picks, 2)
	byMatch := map[uuid.UUID]quiniela.Outcome{}
	for _, p := range picks {
		byMatch[p.MatchID] = p.Prediction
	}
	assert.Equal(t, draw, byMatch[matches[0].ID])
	assert.Equal(t, away, byMatch[matches[1].ID])
}

func TestSavePicksRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := poolInput(2)
	in.AllowPickChanges = utils.Ptr(false)
	// The second match kicks off before the pool closes.
	in.Matches[1].ScheduledAt = testStart.Add(time.Hour)
	poolID, matches := f.activePool(t, in)

	player := f.newUser(t, "player", users.RoleUser)
	_, err := f.entries.PurchaseEntry(ctx, player, poolID)
	require.NoError(t, err)
	_, err = f.entries.SavePicks(ctx, player, poolID, []PickInput{{MatchID: matches[0].ID, Prediction: home}})
	require.NoError(t, err)

	testCases := []struct {
		name  string
		picks []PickInput
		kind  apperr.Kind
	}{
		{"empty", nil, apperr.KindValidation},
		{"bad prediction", []PickInput{{MatchID: matches[0].ID, Prediction: "win"}}, apperr.KindValidation},
		{"foreign match", []PickInput{{MatchID: uuid.New(), Prediction: home}}, apperr.KindValidation},
		{"same match twice", []PickInput{
			{MatchID: matches[1].ID, Prediction: home},
			{MatchID: matches[1].ID, Prediction: away},
		}, apperr.KindValidation},
		{"changed pick", []PickInput{{MatchID: matches[0].ID, Prediction: away}}, apperr.KindConflict},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.entries.SavePicks(ctx, player, poolID, tc.picks)
			assertKind(t, tc.kind, err)
		})
	}

	t.Run("unchanged pick is accepted", func(t *testing.T) {
		_, err := f.entries.SavePicks(ctx, player, poolID, []PickInput{{MatchID: matches[0].ID, Prediction: home}})
		require.NoError(t, err)
	})

	t.Run("match already started", func(t *testing.T) {
		f.clock.Advance(2 * time.Hour)
		_, err := f.entries.SavePicks(ctx, player, poolID, []PickInput{{MatchID: matches[1].ID, Prediction: home}})
		assertKind(t, apperr.KindPreconditionFailed, err)
	})

	t.Run("pool closed", func(t *testing.T) {
		f.clock.Advance(48 * time.Hour)
		_, err := f.entries.SavePicks(ctx, player, poolID, []PickInput{{MatchID: matches[0].ID, Prediction: home}})
		assertKind(t, apperr.KindPreconditionFailed, err)
	})
}

func TestSavePicksRejectsDecidedMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	poolID, matches := f.activePool(t, poolInput(2))
	// Result entered ahead of the scheduled kickoff while the pool is open.
	f.recordResult(t, matches[0].ID, 3, 0)

	player := f.newUser(t, "player", users.RoleUser)
	_, err := f.entries.PurchaseEntry(ctx, player, poolID)
	require.NoError(t, err)

	_, err = f.entries.SavePicks(ctx, player, poolID, []PickInput{{MatchID: matches[0].ID, Prediction: home}})
	assertKind(t, apperr.KindPreconditionFailed, err)

	_, err = f.matches.UpdateStatus(ctx, f.admin, matches[1].ID, StatusInput{Status: quiniela.MatchCancelled})
	require.NoError(t, err)
	_, err = f.entries.SavePicks(ctx, player, poolID, []PickInput{{MatchID: matches[1].ID, Prediction: away}})
	assertKind(t, apperr.KindPreconditionFailed, err)

	picks, err := f.poolStore.GetPicksByEntry(ctx, mustEntry(t, f, poolID, player.ID).ID)
	require.NoError(t, err)
	assert.Empty(t, picks)
}

func mustEntry(t *testing.T, f *fixture, poolID, userID uuid.UUID) *quiniela.Entry {
	t.Helper()
	entries, err := f.poolStore.GetEntries(context.Background(), poolID)
	require.NoError(t, err)
	for i := range entries {
		if entries[i].UserID == userID {
			return &entries[i]
		}
	}
	t.Fatalf("no entry for user %s", userID)
	return nil
}

func TestGetEntryStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	poolID, matches := f.activePool(t, poolInput(3, tier(1, 300), tier(2, 100)))
	player, entry := f.join(t, "player", poolID, matches, home, home, draw)
	f.clock.Advance(72 * time.Hour)
	f.recordResult(t, matches[0].ID, 1, 0)
	f.recordResult(t, matches[1].ID, 0, 1)

	stats, err := f.entries.GetEntryStats(ctx, player, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CorrectCount)
	assert.Equal(t, 2, stats.Decided)
	assertMoney(t, "50.00", stats.Accuracy)
	assertMoney(t, "300.00", stats.PotentialPrize)
	assert.Equal(t, 0, stats.RemainingPicks)
	require.Len(t, stats.Picks, 3)

	_, err = f.entries.GetEntryStats(ctx, f.admin, entry.ID)
	require.NoError(t, err, "admins can see any entry")

	other := f.newUser(t, "other", users.RoleUser)
	_, err = f.entries.GetEntryStats(ctx, other, entry.ID)
	assertKind(t, apperr.KindForbidden, err)
}
