package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AdamBeresnev/quiniela/internal/apperr"
	"github.com/AdamBeresnev/quiniela/internal/quiniela"
	"github.com/AdamBeresnev/quiniela/internal/standings"
	"github.com/AdamBeresnev/quiniela/internal/store"
	users "github.com/AdamBeresnev/quiniela/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

type EntryService struct {
	db        *sqlx.DB
	store     *store.PoolStore
	userStore *store.UserStore
	cache     *StandingsCache
	clock     clockwork.Clock
}

func NewEntryService(db *sqlx.DB, store *store.PoolStore, userStore *store.UserStore, cache *StandingsCache, clock clockwork.Clock) *EntryService {
	return &EntryService{db: db, store: store, userStore: userStore, cache: cache, clock: clock}
}

// PurchaseEntry buys the actor a single entry into an active pool. Capacity
// is claimed with a conditional update so concurrent buyers can never push
// the pool past its cap.
func (s *EntryService) PurchaseEntry(ctx context.Context, actor *users.User, poolID uuid.UUID) (*quiniela.Entry, error) {
	if actor == nil {
		return nil, apperr.Forbidden("login required")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	pool, err := s.store.GetPoolTx(ctx, tx, poolID)
	if err != nil {
		return nil, lookup(err, "pool")
	}

	now := s.clock.Now().UTC()
	if pool.Status != quiniela.PoolActive {
		return nil, apperr.PreconditionFailed("pool is %s", pool.Status)
	}
	if now.Before(pool.OpensAt) {
		return nil, apperr.PreconditionFailed("pool is not open yet")
	}
	if pool.IsClosed(now) {
		return nil, apperr.PreconditionFailed("pool is closed for entries")
	}

	if _, err := s.store.GetEntryForUserTx(ctx, tx, poolID, actor.ID); err == nil {
		return nil, apperr.Conflict("you already have an entry in this pool")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check existing entry: %w", err)
	}

	ok, err := s.store.AddParticipantTx(ctx, tx, poolID, pool.TotalCollected.Add(pool.EntryPrice))
	if err != nil {
		return nil, fmt.Errorf("failed to reserve seat: %w", err)
	}
	if !ok {
		return nil, apperr.PreconditionFailed("pool is full")
	}

	total, err := s.store.CountMatchesTx(ctx, tx, poolID)
	if err != nil {
		return nil, err
	}

	entry := &quiniela.Entry{
		ID:          uuid.New(),
		PoolID:      poolID,
		UserID:      actor.ID,
		Status:      quiniela.EntryPending,
		AmountPaid:  pool.EntryPrice,
		Prize:       decimal.Zero,
		TotalPicks:  total,
		PurchasedAt: now,
	}
	if err := s.store.CreateEntryTx(ctx, tx, entry); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperr.Conflict("you already have an entry in this pool")
		}
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}
	if err := s.userStore.AddPurchaseTx(ctx, tx, actor.ID, pool.EntryPrice); err != nil {
		return nil, fmt.Errorf("failed to update user totals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.cache.Delete(poolID)
	slog.Info("entry purchased", "pool_id", poolID, "entry_id", entry.ID, "user_id", actor.ID)
	return entry, nil
}

type PickInput struct {
	MatchID    uuid.UUID        `json:"match_id" validate:"required"`
	Prediction quiniela.Outcome `json:"prediction" validate:"required,oneof=home away draw"`
}

// SavePicks records predictions for the actor's entry. Picks can be placed
// until the pool closes and only for pending matches that have not kicked
// off.
func (s *EntryService) SavePicks(ctx context.Context, actor *users.User, poolID uuid.UUID, inputs []PickInput) (*quiniela.Entry, error) {
	if actor == nil {
		return nil, apperr.Forbidden("login required")
	}
	if len(inputs) == 0 {
		return nil, apperr.Validation("no picks given")
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

	pool, err := s.store.GetPoolTx(ctx, tx, poolID)
	if err != nil {
		return nil, lookup(err, "pool")
	}
	now := s.clock.Now().UTC()
	if pool.Status != quiniela.PoolActive || pool.IsClosed(now) {
		return nil, apperr.PreconditionFailed("picks are closed for this pool")
	}

	entry, err := s.store.GetEntryForUserTx(ctx, tx, poolID, actor.ID)
	if err != nil {
		return nil, lookup(err, "entry")
	}

	matches, err := s.store.GetMatchesTx(ctx, tx, poolID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*quiniela.Match, len(matches))
	for i := range matches {
		byID[matches[i].ID] = &matches[i]
	}

	existing, err := s.store.GetPicksByEntryTx(ctx, tx, entry.ID)
	if err != nil {
		return nil, err
	}
	picked := make(map[uuid.UUID]*quiniela.Pick, len(existing))
	for i := range existing {
		picked[existing[i].MatchID] = &existing[i]
	}

	seen := make(map[uuid.UUID]bool, len(inputs))
	for _, in := range inputs {
		if seen[in.MatchID] {
			return nil, apperr.Validation("match %s picked twice", in.MatchID)
		}
		seen[in.MatchID] = true

		match, ok := byID[in.MatchID]
		if !ok {
			return nil, apperr.Validation("match %s is not part of this pool", in.MatchID)
		}
		if match.HasStarted(now) {
			return nil, apperr.PreconditionFailed("%s vs %s has already started", match.HomeTeam, match.AwayTeam)
		}
		// A result or status change can land before the scheduled kickoff.
		if match.Status != quiniela.MatchPending {
			return nil, apperr.PreconditionFailed("%s vs %s is %s", match.HomeTeam, match.AwayTeam, match.Status)
		}

		if p, ok := picked[in.MatchID]; ok {
			if p.Prediction == in.Prediction {
				continue
			}
			if !pool.AllowPickChanges {
				return nil, apperr.Conflict("picks cannot be changed in this pool")
			}
			p.Prediction = in.Prediction
			p.UpdatedAt = now
			if err := s.store.UpdatePickPredictionTx(ctx, tx, p); err != nil {
				return nil, fmt.Errorf("failed to update pick: %w", err)
			}
			continue
		}

		p := &quiniela.Pick{
			ID:         uuid.New(),
			EntryID:    entry.ID,
			MatchID:    in.MatchID,
			Prediction: in.Prediction,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.CreatePickTx(ctx, tx, p); err != nil {
			return nil, fmt.Errorf("failed to create pick: %w", err)
		}
		picked[in.MatchID] = p
	}

	entry.TotalPicks = len(matches)
	entry.PicksFilled = len(picked)
	if entry.PicksComplete() && entry.Status == quiniela.EntryPending {
		entry.Status = quiniela.EntryPicksFilled
		entry.PicksCompletedAt = &now
	}
	if err := s.store.UpdateEntryProgressTx(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("failed to update entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.cache.Delete(poolID)
	return entry, nil
}

type EntryStats struct {
	Entry          *quiniela.Entry        `json:"entry"`
	Picks          []standings.PickDetail `json:"picks"`
	CorrectCount   int                    `json:"correct_count"`
	Decided        int                    `json:"decided"`
	Accuracy       decimal.Decimal        `json:"accuracy"`
	PotentialPrize decimal.Decimal        `json:"potential_prize"`
	ROI            decimal.Decimal        `json:"roi"`
	RemainingPicks int                    `json:"remaining_picks"`
}

// GetEntryStats scores an entry against the current match results. Only the
// entry's owner or an admin can see it.
func (s *EntryService) GetEntryStats(ctx context.Context, actor *users.User, entryID uuid.UUID) (*EntryStats, error) {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, lookup(err, "entry")
	}
	if !actor.CanManage(entry.UserID) {
		return nil, apperr.Forbidden("not your entry")
	}

	matches, err := s.store.GetMatches(ctx, entry.PoolID)
	if err != nil {
		return nil, err
	}
	picks, err := s.store.GetPicksByEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	score, err := standings.ScorePicks(picks, standings.OutcomesOf(matches))
	if err != nil {
		return nil, err
	}

	tiers, err := s.store.GetPrizeTiers(ctx, entry.PoolID)
	if err != nil {
		return nil, err
	}

	stats := &EntryStats{
		Entry:          entry,
		Picks:          score.Details,
		CorrectCount:   score.CorrectCount,
		Decided:        score.Decided,
		Accuracy:       decimal.Zero,
		PotentialPrize: decimal.Zero,
		ROI:            entry.ROI(),
		RemainingPicks: max(len(matches)-len(picks), 0),
	}
	if score.Decided > 0 {
		stats.Accuracy = decimal.NewFromInt(int64(score.CorrectCount)).
			Div(decimal.NewFromInt(int64(score.Decided))).
			Mul(decimal.NewFromInt(100)).Round(2)
	}
	if len(tiers) > 0 {
		stats.PotentialPrize = tiers[0].Amount
	}
	return stats, nil
}
