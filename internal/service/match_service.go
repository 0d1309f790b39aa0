package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AdamBeresnev/quiniela/internal/apperr"
	"github.com/AdamBeresnev/quiniela/internal/quiniela"
	"github.com/AdamBeresnev/quiniela/internal/standings"
	"github.com/AdamBeresnev/quiniela/internal/store"
	users "github.com/AdamBeresnev/quiniela/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type MatchService struct {
	db    *sqlx.DB
	store *store.PoolStore
	cache *StandingsCache
}

func NewMatchService(db *sqlx.DB, store *store.PoolStore, cache *StandingsCache) *MatchService {
	return &MatchService{db: db, store: store, cache: cache}
}

type ResultInput struct {
	HomeScore *int `json:"home_score" validate:"required,gte=0"`
	AwayScore *int `json:"away_score" validate:"required,gte=0"`
}

type StatusInput struct {
	Status quiniela.MatchStatus `json:"status" validate:"required,oneof=pending in_progress postponed cancelled"`
}

// matchForUpdateTx loads a match and its pool and checks the pool can still
// take result changes.
func (s *MatchService) matchForUpdateTx(ctx context.Context, tx *sqlx.Tx, actor *users.User, matchID uuid.UUID) (*quiniela.Match, *quiniela.Pool, error) {
	match, err := s.store.GetMatchTx(ctx, tx, matchID)
	if err != nil {
		return nil, nil, lookup(err, "match")
	}
	pool, err := s.store.GetPoolTx(ctx, tx, match.PoolID)
	if err != nil {
		return nil, nil, lookup(err, "pool")
	}
	if !actor.CanManage(pool.OwnerID) {
		return nil, nil, apperr.Forbidden("only the pool owner can record results")
	}

	switch pool.Status {
	case quiniela.PoolCompleted:
		return nil, nil, apperr.Conflict("pool is settled; results are final")
	case quiniela.PoolDraft, quiniela.PoolCancelled:
		return nil, nil, apperr.PreconditionFailed("pool is %s", pool.Status)
	}
	return match, pool, nil
}

// RecordResult stores the final score of a match, derives its outcome and
// rescores every pick placed on it.
func (s *MatchService) RecordResult(ctx context.Context, actor *users.User, matchID uuid.UUID, in ResultInput) (*quiniela.Match, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	match, pool, err := s.matchForUpdateTx(ctx, tx, actor, matchID)
	if err != nil {
		return nil, err
	}

	match.HomeScore = in.HomeScore
	match.AwayScore = in.AwayScore
	match.Outcome = standings.Resolve(in.HomeScore, in.AwayScore)
	match.Status = quiniela.MatchCompleted

	if err := s.store.UpdateMatchTx(ctx, tx, match); err != nil {
		return nil, fmt.Errorf("failed to update match: %w", err)
	}
	if err := s.rescorePicksTx(ctx, tx, match); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.cache.Delete(pool.ID)

	slog.Info("match result recorded",
		"match_id", match.ID,
		"pool_id", pool.ID,
		"score", fmt.Sprintf("%d-%d", *in.HomeScore, *in.AwayScore),
		"outcome", *match.Outcome)
	return match, nil
}

// UpdateStatus moves a match to a non-final state. Any recorded result is
// cleared, and the picks on the match become undecided again.
func (s *MatchService) UpdateStatus(ctx context.Context, actor *users.User, matchID uuid.UUID, in StatusInput) (*quiniela.Match, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	match, pool, err := s.matchForUpdateTx(ctx, tx, actor, matchID)
	if err != nil {
		return nil, err
	}

	match.Status = in.Status
	match.HomeScore = nil
	match.AwayScore = nil
	match.Outcome = nil

	if err := s.store.UpdateMatchTx(ctx, tx, match); err != nil {
		return nil, fmt.Errorf("failed to update match: %w", err)
	}
	if err := s.rescorePicksTx(ctx, tx, match); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.cache.Delete(pool.ID)
	return match, nil
}

// rescorePicksTx brings the stored result of every pick on match in line
// with the match's outcome and refreshes the affected entries' counts.
func (s *MatchService) rescorePicksTx(ctx context.Context, tx *sqlx.Tx, match *quiniela.Match) error {
	picks, err := s.store.GetPicksByMatchTx(ctx, tx, match.ID)
	if err != nil {
		return fmt.Errorf("failed to get picks: %w", err)
	}

	score, err := standings.ScorePicks(picks, standings.OutcomesOf([]quiniela.Match{*match}))
	if err != nil {
		return err
	}
	score.Apply(picks)

	for i := range picks {
		if err := s.store.UpdatePickResultTx(ctx, tx, &picks[i]); err != nil {
			return fmt.Errorf("failed to update pick %s: %w", picks[i].ID, err)
		}
		correct, err := s.store.CountCorrectPicksTx(ctx, tx, picks[i].EntryID)
		if err != nil {
			return err
		}
		if err := s.store.UpdateEntryCorrectCountTx(ctx, tx, picks[i].EntryID, correct); err != nil {
			return fmt.Errorf("failed to update entry %s: %w", picks[i].EntryID, err)
		}
	}
	return nil
}

// draftMatchTx loads a match whose pool is still a draft the actor manages.
func (s *MatchService) draftMatchTx(ctx context.Context, tx *sqlx.Tx, actor *users.User, matchID uuid.UUID) (*quiniela.Match, error) {
	match, err := s.store.GetMatchTx(ctx, tx, matchID)
	if err != nil {
		return nil, lookup(err, "match")
	}
	pool, err := s.store.GetPoolTx(ctx, tx, match.PoolID)
	if err != nil {
		return nil, lookup(err, "pool")
	}
	if !actor.CanManage(pool.OwnerID) {
		return nil, apperr.Forbidden("only the pool owner can edit matches")
	}
	if pool.Status != quiniela.PoolDraft {
		return nil, apperr.PreconditionFailed("matches can only be changed while the pool is a draft")
	}
	return match, nil
}

// UpdateMatch changes the teams, kickoff or order of a match in a draft pool.
func (s *MatchService) UpdateMatch(ctx context.Context, actor *users.User, matchID uuid.UUID, in MatchInput) (*quiniela.Match, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	match, err := s.draftMatchTx(ctx, tx, actor, matchID)
	if err != nil {
		return nil, err
	}

	match.HomeTeam = in.HomeTeam
	match.AwayTeam = in.AwayTeam
	match.ScheduledAt = in.ScheduledAt.UTC()
	if in.SortOrder != nil {
		match.SortOrder = *in.SortOrder
	}
	if err := s.store.UpdateMatchDetailsTx(ctx, tx, match); err != nil {
		return nil, fmt.Errorf("failed to update match: %w", err)
	}

	return match, tx.Commit()
}

// DeleteMatch removes a match from a draft pool.
func (s *MatchService) DeleteMatch(ctx context.Context, actor *users.User, matchID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	match, err := s.draftMatchTx(ctx, tx, actor, matchID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMatchTx(ctx, tx, match.ID); err != nil {
		return fmt.Errorf("failed to delete match: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("match deleted", "match_id", match.ID, "pool_id", match.PoolID)
	return nil
}
