package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdamBeresnev/quiniela/internal/apperr"
	"github.com/AdamBeresnev/quiniela/internal/cache"
	"github.com/AdamBeresnev/quiniela/internal/quiniela"
	"github.com/AdamBeresnev/quiniela/internal/standings"
	"github.com/AdamBeresnev/quiniela/internal/store"
	users "github.com/AdamBeresnev/quiniela/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// StandingsCache holds computed standings per pool until a result or a
// settlement invalidates them.
type StandingsCache = cache.Cache[uuid.UUID, *Standings]

type StandingRow struct {
	EntryID      uuid.UUID            `json:"entry_id"`
	UserID       uuid.UUID            `json:"user_id"`
	Username     string               `json:"username,omitempty"`
	Rank         int                  `json:"rank"`
	CorrectCount int                  `json:"correct_count"`
	Prize        decimal.Decimal      `json:"prize"`
	Status       quiniela.EntryStatus `json:"status"`
}

// Standings is a pool's table. Official is true only once the pool is
// settled; before that the rows are a live snapshot and prizes are
// projections.
type Standings struct {
	PoolID     uuid.UUID                 `json:"pool_id"`
	Official   bool                      `json:"official"`
	State      standings.SettlementState `json:"state"`
	Decided    int                       `json:"decided_matches"`
	Matches    int                       `json:"matches"`
	Rows       []StandingRow             `json:"rows"`
	ComputedAt time.Time                 `json:"computed_at"`
}

// SettlementResult reports a settlement. Unpaid lists schedule tiers nobody
// held, e.g. second place after a tie for first.
type SettlementResult struct {
	PoolID    uuid.UUID            `json:"pool_id"`
	Payouts   []standings.Payout   `json:"payouts"`
	TotalPaid decimal.Decimal      `json:"total_paid"`
	Unpaid    []quiniela.PrizeTier `json:"unpaid,omitempty"`
	SettledAt time.Time            `json:"settled_at"`
}

type SettlementService struct {
	db        *sqlx.DB
	store     *store.PoolStore
	userStore *store.UserStore
	cache     *StandingsCache
	clock     clockwork.Clock
}

func NewSettlementService(db *sqlx.DB, store *store.PoolStore, userStore *store.UserStore, cache *StandingsCache, clock clockwork.Clock) *SettlementService {
	return &SettlementService{db: db, store: store, userStore: userStore, cache: cache, clock: clock}
}

// Settle scores, ranks and pays out a pool in a single transaction. It
// succeeds at most once per pool; every later call gets a Conflict.
func (s *SettlementService) Settle(ctx context.Context, actor *users.User, poolID uuid.UUID) (*SettlementResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	pool, err := s.store.GetPoolTx(ctx, tx, poolID)
	if err != nil {
		return nil, lookup(err, "pool")
	}
	if !actor.CanManage(pool.OwnerID) {
		return nil, apperr.Forbidden("only the pool owner can settle it")
	}

	switch pool.Status {
	case quiniela.PoolCompleted:
		return nil, apperr.Conflict("pool %s is already settled", poolID)
	case quiniela.PoolDraft, quiniela.PoolCancelled:
		return nil, apperr.PreconditionFailed("pool is %s", pool.Status)
	}

	matches, err := s.store.GetMatchesTx(ctx, tx, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to get matches: %w", err)
	}
	if state := standings.StateOf(pool, matches); state != standings.Ready {
		return nil, apperr.PreconditionFailed("%d of %d matches still have no result",
			standings.PendingMatches(matches), len(matches))
	}

	claimed, err := s.store.TransitionPoolStatusTx(ctx, tx, poolID, quiniela.PoolCompleted,
		quiniela.PoolActive, quiniela.PoolInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pool: %w", err)
	}
	if !claimed {
		return nil, apperr.Conflict("pool %s is already settled", poolID)
	}

	entries, err := s.store.GetEntriesTx(ctx, tx, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries: %w", err)
	}

	outcomes := standings.OutcomesOf(matches)
	rows := make([]standings.Standing, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		correct, err := s.scoreEntryTx(ctx, tx, e.ID, outcomes)
		if err != nil {
			return nil, err
		}
		e.CorrectCount = correct
		rows = append(rows, standings.Standing{
			EntryID:      e.ID,
			CorrectCount: correct,
			TiebreakAt:   e.PicksCompletedAt,
		})
	}

	tiers, err := s.store.GetPrizeTiersTx(ctx, tx, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to get prize tiers: %w", err)
	}

	ranked := standings.Rank(rows)
	dist := standings.Distribute(ranked, tiers)

	byID := make(map[uuid.UUID]*quiniela.Entry, len(entries))
	for i := range entries {
		byID[entries[i].ID] = &entries[i]
	}
	for _, p := range dist.Payouts {
		e := byID[p.EntryID]
		rank := p.Rank
		e.FinalRank = &rank
		e.Prize = p.Prize
		e.Status = quiniela.EntryLoser
		if p.Winner {
			e.Status = quiniela.EntryWinner
		}
		if err := s.store.UpdateEntryResultTx(ctx, tx, e); err != nil {
			return nil, fmt.Errorf("failed to update entry %s: %w", e.ID, err)
		}
		if p.Winner {
			if err := s.userStore.AddWinningsTx(ctx, tx, e.UserID, p.Prize); err != nil {
				return nil, fmt.Errorf("failed to credit user %s: %w", e.UserID, err)
			}
		}
	}

	settledAt := s.clock.Now().UTC()
	if err := s.store.MarkPoolSettledTx(ctx, tx, poolID, dist.TotalPaid, settledAt); err != nil {
		return nil, fmt.Errorf("failed to mark pool settled: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.cache.Delete(poolID)

	slog.Info("pool settled",
		"pool_id", poolID,
		"entries", len(entries),
		"total_paid", dist.TotalPaid.StringFixed(2),
		"unpaid_tiers", len(dist.Unpaid))

	return &SettlementResult{
		PoolID:    poolID,
		Payouts:   dist.Payouts,
		TotalPaid: dist.TotalPaid,
		Unpaid:    dist.Unpaid,
		SettledAt: settledAt,
	}, nil
}

// scoreEntryTx rescores one entry's picks, writing the per-pick results and
// the entry's correct count.
func (s *SettlementService) scoreEntryTx(ctx context.Context, tx *sqlx.Tx, entryID uuid.UUID, outcomes standings.Outcomes) (int, error) {
	picks, err := s.store.GetPicksByEntryTx(ctx, tx, entryID)
	if err != nil {
		return 0, fmt.Errorf("failed to get picks for entry %s: %w", entryID, err)
	}

	score, err := standings.ScorePicks(picks, outcomes)
	if err != nil {
		return 0, err
	}
	score.Apply(picks)

	for i := range picks {
		if err := s.store.UpdatePickResultTx(ctx, tx, &picks[i]); err != nil {
			return 0, fmt.Errorf("failed to update pick %s: %w", picks[i].ID, err)
		}
	}
	if err := s.store.UpdateEntryCorrectCountTx(ctx, tx, entryID, score.CorrectCount); err != nil {
		return 0, fmt.Errorf("failed to update entry %s: %w", entryID, err)
	}
	return score.CorrectCount, nil
}

// Standings returns the pool's table. Settled pools report the stored final
// ranks and prizes; any other pool gets a live ranking over the results so
// far.
func (s *SettlementService) Standings(ctx context.Context, poolID uuid.UUID) (*Standings, error) {
	if st, ok := s.cache.Get(poolID); ok {
		return st, nil
	}
	version := s.cache.Version()

	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, lookup(err, "pool")
	}
	matches, err := s.store.GetMatches(ctx, poolID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.GetEntries(ctx, poolID)
	if err != nil {
		return nil, err
	}

	st := &Standings{
		PoolID:     poolID,
		Official:   pool.IsSettled(),
		State:      standings.StateOf(pool, matches),
		Matches:    len(matches),
		Decided:    len(matches) - standings.PendingMatches(matches),
		ComputedAt: s.clock.Now().UTC(),
	}

	if st.Official {
		st.Rows = settledRows(entries)
	} else {
		st.Rows, err = s.liveRows(ctx, poolID, entries, matches)
		if err != nil {
			return nil, err
		}
	}

	if err := s.attachUsernames(ctx, st.Rows); err != nil {
		return nil, err
	}

	// A settlement or result that committed while this snapshot was being
	// built has already invalidated it; serve it but don't keep it.
	s.cache.SetIfVersion(poolID, st, version)
	return st, nil
}

func settledRows(entries []quiniela.Entry) []StandingRow {
	ranked := make([]standings.Standing, len(entries))
	byID := make(map[uuid.UUID]*quiniela.Entry, len(entries))
	for i := range entries {
		byID[entries[i].ID] = &entries[i]
		ranked[i] = standings.Standing{
			EntryID:      entries[i].ID,
			CorrectCount: entries[i].CorrectCount,
			TiebreakAt:   entries[i].PicksCompletedAt,
		}
	}

	// Rank only supplies display order here; the stored rank is authoritative.
	rows := make([]StandingRow, 0, len(entries))
	for _, r := range standings.Rank(ranked) {
		e := byID[r.EntryID]
		rank := r.Rank
		if e.FinalRank != nil {
			rank = *e.FinalRank
		}
		rows = append(rows, StandingRow{
			EntryID:      e.ID,
			UserID:       e.UserID,
			Rank:         rank,
			CorrectCount: e.CorrectCount,
			Prize:        e.Prize,
			Status:       e.Status,
		})
	}
	return rows
}

func (s *SettlementService) liveRows(ctx context.Context, poolID uuid.UUID, entries []quiniela.Entry, matches []quiniela.Match) ([]StandingRow, error) {
	outcomes := standings.OutcomesOf(matches)
	input := make([]standings.Standing, 0, len(entries))
	byID := make(map[uuid.UUID]*quiniela.Entry, len(entries))
	correct := make(map[uuid.UUID]int, len(entries))

	for i := range entries {
		e := &entries[i]
		picks, err := s.store.GetPicksByEntry(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		score, err := standings.ScorePicks(picks, outcomes)
		if err != nil {
			return nil, err
		}
		byID[e.ID] = e
		correct[e.ID] = score.CorrectCount
		input = append(input, standings.Standing{
			EntryID:      e.ID,
			CorrectCount: score.CorrectCount,
			TiebreakAt:   e.PicksCompletedAt,
		})
	}

	tiers, err := s.store.GetPrizeTiers(ctx, poolID)
	if err != nil {
		return nil, err
	}
	dist := standings.Distribute(standings.Rank(input), tiers)

	rows := make([]StandingRow, 0, len(dist.Payouts))
	for _, p := range dist.Payouts {
		e := byID[p.EntryID]
		rows = append(rows, StandingRow{
			EntryID:      e.ID,
			UserID:       e.UserID,
			Rank:         p.Rank,
			CorrectCount: correct[e.ID],
			Prize:        p.Prize,
			Status:       e.Status,
		})
	}
	return rows, nil
}

func (s *SettlementService) attachUsernames(ctx context.Context, rows []StandingRow) error {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	byID, err := s.userStore.GetUsersByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to get users: %w", err)
	}
	for i := range rows {
		if u, ok := byID[rows[i].UserID]; ok {
			rows[i].Username = u.Username
		}
	}
	return nil
}

// Invalidate drops the cached standings of a pool.
func (s *SettlementService) Invalidate(poolID uuid.UUID) {
	s.cache.Delete(poolID)
	slog.Info("standings cache invalidated", "pool_id", poolID)
}

type CacheStats struct {
	Entries int `json:"entries"`
}

func (s *SettlementService) CacheStats() CacheStats {
	return CacheStats{Entries: s.cache.Len()}
}

// ClearCache drops every cached standings table and returns how many there
// were.
func (s *SettlementService) ClearCache() int {
	n := s.cache.Clear()
	slog.Info("standings cache cleared", "entries", n)
	return n
}
