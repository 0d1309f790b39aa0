package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdamBeresnev/quiniela/internal/apperr"
	"github.com/AdamBeresnev/quiniela/internal/quiniela"
	"github.com/AdamBeresnev/quiniela/internal/standings"
	"github.com/AdamBeresnev/quiniela/internal/store"
	users "github.com/AdamBeresnev/quiniela/internal/user"
	"github.com/AdamBeresnev/quiniela/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

type PoolService struct {
	db    *sqlx.DB
	store *store.PoolStore
	clock clockwork.Clock
}

func NewPoolService(db *sqlx.DB, store *store.PoolStore, clock clockwork.Clock) *PoolService {
	return &PoolService{db: db, store: store, clock: clock}
}

type MatchInput struct {
	HomeTeam    string    `json:"home_team" validate:"required,max=100"`
	AwayTeam    string    `json:"away_team" validate:"required,max=100,nefield=HomeTeam"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	SortOrder   *int      `json:"sort_order" validate:"omitempty,gte=0"`
}

type PrizeTierInput struct {
	Rank   int             `json:"rank" validate:"min=1"`
	Amount decimal.Decimal `json:"amount"`
}

type PoolInput struct {
	Name             string           `json:"name" validate:"required,min=3,max=100"`
	Description      string           `json:"description" validate:"max=500"`
	Sport            string           `json:"sport" validate:"required,max=50"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	PrizeTotal       decimal.Decimal  `json:"prize_total"`
	MaxEntries       *int             `json:"max_entries" validate:"omitempty,min=2,max=10000"`
	OpensAt          time.Time        `json:"opens_at" validate:"required"`
	ClosesAt         time.Time        `json:"closes_at" validate:"required,gtfield=OpensAt"`
	StartsAt         time.Time        `json:"starts_at" validate:"required"`
	IsPublic         *bool            `json:"is_public"`
	AllowPickChanges *bool            `json:"allow_pick_changes"`
	Matches          []MatchInput     `json:"matches" validate:"max=50,dive"`
	PrizeTiers       []PrizeTierInput `json:"prize_tiers" validate:"dive"`
}

func (in *PoolInput) check() error {
	if err := validateInput(in); err != nil {
		return err
	}
	if in.EntryPrice.IsNegative() {
		return apperr.Validation("entry price must not be negative")
	}
	if in.PrizeTotal.IsNegative() {
		return apperr.Validation("prize total must not be negative")
	}

	seen := make(map[int]bool, len(in.PrizeTiers))
	sum := decimal.Zero
	for _, t := range in.PrizeTiers {
		if seen[t.Rank] {
			return apperr.Validation("prize rank %d listed twice", t.Rank)
		}
		seen[t.Rank] = true
		if t.Amount.IsNegative() {
			return apperr.Validation("prize for rank %d must not be negative", t.Rank)
		}
		if !t.Amount.Equal(t.Amount.Truncate(2)) {
			return apperr.Validation("prize for rank %d has more than two decimals", t.Rank)
		}
		sum = sum.Add(t.Amount)
	}
	if sum.GreaterThan(in.PrizeTotal) {
		return apperr.Validation("prize schedule (%s) exceeds prize total (%s)", sum, in.PrizeTotal)
	}
	return nil
}

func (in *PoolInput) tiers() []quiniela.PrizeTier {
	tiers := make([]quiniela.PrizeTier, len(in.PrizeTiers))
	for i, t := range in.PrizeTiers {
		tiers[i] = quiniela.PrizeTier{Rank: t.Rank, Amount: t.Amount}
	}
	return tiers
}

func (in *PoolInput) applyTo(pool *quiniela.Pool) {
	pool.Name = in.Name
	pool.Description = utils.StringOrNil(in.Description)
	pool.Sport = in.Sport
	pool.EntryPrice = in.EntryPrice
	pool.PrizeTotal = in.PrizeTotal
	pool.MaxEntries = in.MaxEntries
	pool.OpensAt = in.OpensAt.UTC()
	pool.ClosesAt = in.ClosesAt.UTC()
	pool.StartsAt = in.StartsAt.UTC()
	pool.IsPublic = utils.OrDefault(in.IsPublic, true)
	pool.AllowPickChanges = utils.OrDefault(in.AllowPickChanges, true)
}

func buildMatches(poolID uuid.UUID, inputs []MatchInput, firstOrder int, now time.Time) []quiniela.Match {
	matches := make([]quiniela.Match, 0, len(inputs))
	for i, in := range inputs {
		order := firstOrder + i
		if in.SortOrder != nil {
			order = *in.SortOrder
		}
		matches = append(matches, quiniela.Match{
			ID:          uuid.New(),
			PoolID:      poolID,
			HomeTeam:    in.HomeTeam,
			AwayTeam:    in.AwayTeam,
			ScheduledAt: in.ScheduledAt.UTC(),
			SortOrder:   order,
			Status:      quiniela.MatchPending,
			CreatedAt:   now,
		})
	}
	return matches
}

type PoolData struct {
	Pool            *quiniela.Pool            `json:"pool"`
	Matches         []quiniela.Match          `json:"matches"`
	PrizeTiers      []quiniela.PrizeTier      `json:"prize_tiers"`
	State           standings.SettlementState `json:"settlement_state"`
	OpenForPurchase bool                      `json:"open_for_purchase"`
}

// CreatePool stores a new draft pool with its matches and prize schedule.
// Only admins may create pools.
func (s *PoolService) CreatePool(ctx context.Context, actor *users.User, in PoolInput) (uuid.UUID, error) {
	if !actor.IsAdmin() {
		return uuid.Nil, apperr.Forbidden("only admins can create pools")
	}
	if err := in.check(); err != nil {
		return uuid.Nil, err
	}

	now := s.clock.Now().UTC()
	pool := quiniela.Pool{
		ID:             uuid.New(),
		OwnerID:        actor.ID,
		Status:         quiniela.PoolDraft,
		TotalCollected: decimal.Zero,
		TotalPaid:      decimal.Zero,
		CreatedAt:      now,
	}
	in.applyTo(&pool)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback()

	if err := s.store.CreatePool(ctx, tx, &pool); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := s.store.ReplacePrizeTiersTx(ctx, tx, pool.ID, in.tiers()); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create prize tiers: %w", err)
	}
	if err := s.store.CreateMatches(ctx, tx, buildMatches(pool.ID, in.Matches, 0, now)); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create matches: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, err
	}
	slog.Info("pool created", "pool_id", pool.ID, "owner_id", actor.ID, "matches", len(in.Matches))
	return pool.ID, nil
}

func (s *PoolService) GetPoolData(ctx context.Context, id uuid.UUID) (*PoolData, error) {
	pool, err := s.store.GetPool(ctx, id)
	if err != nil {
		return nil, lookup(err, "pool")
	}

	matches, err := s.store.GetMatches(ctx, id)
	if err != nil {
		return nil, err
	}

	tiers, err := s.store.GetPrizeTiers(ctx, id)
	if err != nil {
		return nil, err
	}

	return &PoolData{
		Pool:            pool,
		Matches:         matches,
		PrizeTiers:      tiers,
		State:           standings.StateOf(pool, matches),
		OpenForPurchase: pool.OpenForPurchase(s.clock.Now()),
	}, nil
}

// ListAvailable returns public pools that can still be bought into.
func (s *PoolService) ListAvailable(ctx context.Context) ([]quiniela.Pool, error) {
	pools, err := s.store.GetPublicPools(ctx, quiniela.PoolActive)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	available := make([]quiniela.Pool, 0, len(pools))
	for _, p := range pools {
		if !p.IsClosed(now) {
			available = append(available, p)
		}
	}
	return available, nil
}

type ListPoolsInput struct {
	Status quiniela.PoolStatus `validate:"omitempty,oneof=draft active in_progress completed cancelled"`
	Page   int                 `validate:"gte=0"`
	Limit  int                 `validate:"gte=0,lte=100"`
}

type PoolPage struct {
	Pools []quiniela.Pool `json:"pools"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// ListPools pages through every pool, newest first. Page counts from 1; zero
// values default to the first page of 20.
func (s *PoolService) ListPools(ctx context.Context, in ListPoolsInput) (*PoolPage, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	page := max(in.Page, 1)
	limit := in.Limit
	if limit == 0 {
		limit = 20
	}

	pools, err := s.store.ListPools(ctx, in.Status, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountPools(ctx, in.Status)
	if err != nil {
		return nil, err
	}
	if pools == nil {
		pools = []quiniela.Pool{}
	}
	return &PoolPage{Pools: pools, Total: total, Page: page, Limit: limit}, nil
}

// getOwnedPoolTx loads a pool inside tx and checks the actor may manage it.
func (s *PoolService) getOwnedPoolTx(ctx context.Context, tx *sqlx.Tx, actor *users.User, id uuid.UUID) (*quiniela.Pool, error) {
	pool, err := s.store.GetPoolTx(ctx, tx, id)
	if err != nil {
		return nil, lookup(err, "pool")
	}
	if !actor.CanManage(pool.OwnerID) {
		return nil, apperr.Forbidden("only the pool owner can do that")
	}
	return pool, nil
}

// UpdatePool edits a pool that has not started yet. Matches and entries are
// left alone; the prize schedule is replaced.
func (s *PoolService) UpdatePool(ctx context.Context, actor *users.User, id uuid.UUID, in PoolInput) error {
	if err := in.check(); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pool, err := s.getOwnedPoolTx(ctx, tx, actor, id)
	if err != nil {
		return err
	}
	if pool.HasStarted(s.clock.Now()) {
		return apperr.PreconditionFailed("pool has already started")
	}
	if pool.Status != quiniela.PoolDraft && pool.Status != quiniela.PoolActive {
		return apperr.PreconditionFailed("pool is %s and can no longer be edited", pool.Status)
	}

	in.applyTo(pool)
	if err := s.store.UpdatePoolDetailsTx(ctx, tx, pool); err != nil {
		return fmt.Errorf("failed to update pool: %w", err)
	}
	if err := s.store.ReplacePrizeTiersTx(ctx, tx, pool.ID, in.tiers()); err != nil {
		return fmt.Errorf("failed to update prize tiers: %w", err)
	}

	return tx.Commit()
}

// AddMatches appends matches to a draft pool.
func (s *PoolService) AddMatches(ctx context.Context, actor *users.User, id uuid.UUID, inputs []MatchInput) ([]quiniela.Match, error) {
	if len(inputs) == 0 {
		return nil, apperr.Validation("no matches given")
	}
	for i := range inputs {
		if err := validateInput(&inputs[i]); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	pool, err := s.getOwnedPoolTx(ctx, tx, actor, id)
	if err != nil {
		return nil, err
	}
	if pool.Status != quiniela.PoolDraft {
		return nil, apperr.PreconditionFailed("matches can only be added to a draft pool")
	}

	count, err := s.store.CountMatchesTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	matches := buildMatches(id, inputs, count, s.clock.Now().UTC())
	if err := s.store.CreateMatches(ctx, tx, matches); err != nil {
		return nil, fmt.Errorf("failed to create matches: %w", err)
	}

	return matches, tx.Commit()
}

// ActivatePool opens a draft pool for entries. It needs at least one match.
func (s *PoolService) ActivatePool(ctx context.Context, actor *users.User, id uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pool, err := s.getOwnedPoolTx(ctx, tx, actor, id)
	if err != nil {
		return err
	}
	if pool.Status != quiniela.PoolDraft {
		return apperr.Conflict("pool is already %s", pool.Status)
	}

	count, err := s.store.CountMatchesTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if count == 0 {
		return apperr.PreconditionFailed("pool needs at least one match")
	}

	ok, err := s.store.TransitionPoolStatusTx(ctx, tx, id, quiniela.PoolActive, quiniela.PoolDraft)
	if err != nil {
		return fmt.Errorf("failed to activate pool: %w", err)
	}
	if !ok {
		return apperr.Conflict("pool changed state concurrently")
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("pool activated", "pool_id", id)
	return nil
}

// CancelPool stops a pool that has not been settled.
func (s *PoolService) CancelPool(ctx context.Context, actor *users.User, id uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := s.getOwnedPoolTx(ctx, tx, actor, id); err != nil {
		return err
	}

	ok, err := s.store.TransitionPoolStatusTx(ctx, tx, id, quiniela.PoolCancelled,
		quiniela.PoolDraft, quiniela.PoolActive, quiniela.PoolInProgress)
	if err != nil {
		return fmt.Errorf("failed to cancel pool: %w", err)
	}
	if !ok {
		return apperr.Conflict("pool can no longer be cancelled")
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("pool cancelled", "pool_id", id)
	return nil
}

// DeletePool removes a pool nobody has bought into.
func (s *PoolService) DeletePool(ctx context.Context, actor *users.User, id uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pool, err := s.getOwnedPoolTx(ctx, tx, actor, id)
	if err != nil {
		return err
	}
	if pool.ParticipantCount > 0 {
		return apperr.PreconditionFailed("a pool with participants cannot be deleted")
	}

	if err := s.store.DeletePoolTx(ctx, tx, id); err != nil {
		return fmt.Errorf("failed to delete pool: %w", err)
	}
	return tx.Commit()
}

type PoolStats struct {
	PoolID           uuid.UUID       `json:"pool_id"`
	Entries          int             `json:"entries"`
	Matches          int             `json:"matches"`
	CompletedMatches int             `json:"completed_matches"`
	Winners          int             `json:"winners"`
	TotalCollected   decimal.Decimal `json:"total_collected"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	Profit           decimal.Decimal `json:"profit"`
	Margin           decimal.Decimal `json:"margin"`
}

func (s *PoolService) GetPoolStats(ctx context.Context, id uuid.UUID) (*PoolStats, error) {
	pool, err := s.store.GetPool(ctx, id)
	if err != nil {
		return nil, lookup(err, "pool")
	}
	matches, err := s.store.GetMatches(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.GetEntries(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := &PoolStats{
		PoolID:           id,
		Entries:          len(entries),
		Matches:          len(matches),
		CompletedMatches: len(matches) - standings.PendingMatches(matches),
		TotalCollected:   pool.TotalCollected,
		TotalPaid:        pool.TotalPaid,
		Profit:           pool.Profit(),
		Margin:           pool.Margin(),
	}
	for _, e := range entries {
		if e.Status == quiniela.EntryWinner {
			stats.Winners++
		}
	}
	return stats, nil
}

// StartDuePools moves active pools whose start time has passed to
// in-progress, along with their entries that have complete picks.
func (s *PoolService) StartDuePools(ctx context.Context) (int, error) {
	pools, err := s.store.GetPoolsByStatus(ctx, quiniela.PoolActive)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	started := 0
	for _, p := range pools {
		if !p.HasStarted(now) {
			continue
		}
		if err := s.startPool(ctx, p.ID); err != nil {
			return started, fmt.Errorf("failed to start pool %s: %w", p.ID, err)
		}
		started++
	}
	return started, nil
}

func (s *PoolService) startPool(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ok, err := s.store.TransitionPoolStatusTx(ctx, tx, id, quiniela.PoolInProgress, quiniela.PoolActive)
	if err != nil || !ok {
		return err
	}
	if _, err := s.store.UpdateEntriesStatusTx(ctx, tx, id, quiniela.EntryInProgress, quiniela.EntryPicksFilled); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("pool started", "pool_id", id)
	return nil
}
