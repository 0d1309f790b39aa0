package store

import (
	"context"
	"errors"
	"time"

	"github.com/AdamBeresnev/quiniela/internal/quiniela"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

type PoolStore struct {
	db *sqlx.DB
}

func NewPoolStore(db *sqlx.DB) *PoolStore {
	return &PoolStore{db: db}
}

// IsUniqueViolation reports whether err comes from a UNIQUE or PRIMARY KEY
// constraint.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Pools

func (s *PoolStore) CreatePool(ctx context.Context, tx *sqlx.Tx, pool *quiniela.Pool) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO pools (id, owner_id, name, description, sport, entry_price, prize_total, max_entries,
			status, opens_at, closes_at, starts_at, is_public, allow_pick_changes, created_at)
		VALUES (:id, :owner_id, :name, :description, :sport, :entry_price, :prize_total, :max_entries,
			:status, :opens_at, :closes_at, :starts_at, :is_public, :allow_pick_changes, :created_at)`, pool)
	return err
}

func getPool(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*quiniela.Pool, error) {
	var pool quiniela.Pool
	if err := sqlx.GetContext(ctx, q, &pool, "SELECT * FROM pools WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &pool, nil
}

func (s *PoolStore) GetPool(ctx context.Context, id uuid.UUID) (*quiniela.Pool, error) {
	return getPool(ctx, s.db, id)
}

func (s *PoolStore) GetPoolTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*quiniela.Pool, error) {
	return getPool(ctx, tx, id)
}

func (s *PoolStore) GetPoolsByStatus(ctx context.Context, status quiniela.PoolStatus) ([]quiniela.Pool, error) {
	var pools []quiniela.Pool
	err := s.db.SelectContext(ctx, &pools, "SELECT * FROM pools WHERE status = ? ORDER BY starts_at ASC", status)
	return pools, err
}

func (s *PoolStore) GetPublicPools(ctx context.Context, status quiniela.PoolStatus) ([]quiniela.Pool, error) {
	var pools []quiniela.Pool
	err := s.db.SelectContext(ctx, &pools, "SELECT * FROM pools WHERE status = ? AND is_public = 1 ORDER BY starts_at ASC", status)
	return pools, err
}

// ListPools returns one page of pools, newest first. An empty status lists
// every status.
func (s *PoolStore) ListPools(ctx context.Context, status quiniela.PoolStatus, limit, offset int) ([]quiniela.Pool, error) {
	var pools []quiniela.Pool
	err := s.db.SelectContext(ctx, &pools, `SELECT * FROM pools
		WHERE (? = '' OR status = ?)
		ORDER BY created_at DESC, id ASC
		LIMIT ? OFFSET ?`, status, status, limit, offset)
	return pools, err
}

func (s *PoolStore) CountPools(ctx context.Context, status quiniela.PoolStatus) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM pools WHERE (? = '' OR status = ?)", status, status)
	return n, err
}

func (s *PoolStore) UpdatePoolDetailsTx(ctx context.Context, tx *sqlx.Tx, pool *quiniela.Pool) error {
	_, err := tx.NamedExecContext(ctx, `UPDATE pools SET
		name = :name,
		description = :description,
		sport = :sport,
		entry_price = :entry_price,
		prize_total = :prize_total,
		max_entries = :max_entries,
		opens_at = :opens_at,
		closes_at = :closes_at,
		starts_at = :starts_at,
		is_public = :is_public,
		allow_pick_changes = :allow_pick_changes
		WHERE id = :id`, pool)
	return err
}

// TransitionPoolStatusTx moves the pool to `to` only if its current status is
// one of `from`. It reports whether the row changed.
func (s *PoolStore) TransitionPoolStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, to quiniela.PoolStatus, from ...quiniela.PoolStatus) (bool, error) {
	query, args, err := sqlx.In("UPDATE pools SET status = ? WHERE id = ? AND status IN (?)", to, id, from)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// AddParticipantTx counts one more entry against the pool, as long as the
// pool is active and below its cap. It reports whether a seat was taken.
func (s *PoolStore) AddParticipantTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, collected decimal.Decimal) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE pools SET
		participant_count = participant_count + 1,
		total_collected = ?
		WHERE id = ? AND status = ? AND (max_entries IS NULL OR participant_count < max_entries)`,
		collected, id, quiniela.PoolActive)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *PoolStore) MarkPoolSettledTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, totalPaid decimal.Decimal, settledAt time.Time) error {
	_, err := tx.ExecContext(ctx, "UPDATE pools SET total_paid = ?, settled_at = ? WHERE id = ?", totalPaid, settledAt, id)
	return err
}

func (s *PoolStore) DeletePoolTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM pools WHERE id = ?", id)
	return err
}

// Prize tiers

func (s *PoolStore) ReplacePrizeTiersTx(ctx context.Context, tx *sqlx.Tx, poolID uuid.UUID, tiers []quiniela.PrizeTier) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM prize_tiers WHERE pool_id = ?", poolID); err != nil {
		return err
	}
	if len(tiers) == 0 {
		return nil
	}
	for i := range tiers {
		tiers[i].PoolID = poolID
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO prize_tiers (pool_id, rank, amount) VALUES (:pool_id, :rank, :amount)`, tiers)
	return err
}

func getPrizeTiers(ctx context.Context, q sqlx.QueryerContext, poolID uuid.UUID) ([]quiniela.PrizeTier, error) {
	var tiers []quiniela.PrizeTier
	err := sqlx.SelectContext(ctx, q, &tiers, "SELECT * FROM prize_tiers WHERE pool_id = ? ORDER BY rank ASC", poolID)
	return tiers, err
}

func (s *PoolStore) GetPrizeTiers(ctx context.Context, poolID uuid.UUID) ([]quiniela.PrizeTier, error) {
	return getPrizeTiers(ctx, s.db, poolID)
}

func (s *PoolStore) GetPrizeTiersTx(ctx context.Context, tx *sqlx.Tx, poolID uuid.UUID) ([]quiniela.PrizeTier, error) {
	return getPrizeTiers(ctx, tx, poolID)
}

// Matches

func (s *PoolStore) CreateMatches(ctx context.Context, tx *sqlx.Tx, matches []quiniela.Match) error {
	if len(matches) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO matches (id, pool_id, home_team, away_team, scheduled_at, sort_order, status, created_at)
		VALUES (:id, :pool_id, :home_team, :away_team, :scheduled_at, :sort_order, :status, :created_at)`, matches)
	return err
}

func getMatch(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*quiniela.Match, error) {
	var match quiniela.Match
	if err := sqlx.GetContext(ctx, q, &match, "SELECT * FROM matches WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &match, nil
}

func (s *PoolStore) GetMatch(ctx context.Context, id uuid.UUID) (*quiniela.Match, error) {
	return getMatch(ctx, s.db, id)
}

func (s *PoolStore) GetMatchTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*quiniela.Match, error) {
	return getMatch(ctx, tx, id)
}

func getMatches(ctx context.Context, q sqlx.QueryerContext, poolID uuid.UUID) ([]quiniela.Match, error) {
	var matches []quiniela.Match
	err := sqlx.SelectContext(ctx, q, &matches, "SELECT * FROM matches WHERE pool_id = ? ORDER BY sort_order ASC, scheduled_at ASC", poolID)
	return matches, err
}

func (s *PoolStore) GetMatches(ctx context.Context, poolID uuid.UUID) ([]quiniela.Match, error) {
	return getMatches(ctx, s.db, poolID)
}

func (s *PoolStore) GetMatchesTx(ctx context.Context, tx *sqlx.Tx, poolID uuid.UUID) ([]quiniela.Match, error) {
	return getMatches(ctx, tx, poolID)
}

func (s *PoolStore) CountMatchesTx(ctx context.Context, tx *sqlx.Tx, poolID uuid.UUID) (int, error) {
	var n int
	err := tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM matches WHERE pool_id = ?", poolID)
	return n, err
}

func (s *PoolStore) UpdateMatchTx(ctx context.Context, tx *sqlx.Tx, match *quiniela.Match) error {
	_, err := tx.NamedExecContext(ctx, `UPDATE matches SET
		status = :status,
		home_score = :home_score,
		away_score = :away_score,
		outcome = :outcome
		WHERE id = :id`, match)
	return err
}

func (s *PoolStore) UpdateMatchDetailsTx(ctx context.Context, tx *sqlx.Tx, match *quiniela.Match) error {
	_, err := tx.NamedExecContext(ctx, `UPDATE matches SET
		home_team = :home_team,
		away_team = :away_team,
		scheduled_at = :scheduled_at,
		sort_order = :sort_order
		WHERE id = :id`, match)
	return err
}

func (s *PoolStore) DeleteMatchTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM matches WHERE id = ?", id)
	return err
}

// Entries

func (s *PoolStore) CreateEntryTx(ctx context.Context, tx *sqlx.Tx, entry *quiniela.Entry) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO entries (id, pool_id, user_id, status, amount_paid, prize, total_picks, purchased_at)
		VALUES (:id, :pool_id, :user_id, :status, :amount_paid, :prize, :total_picks, :purchased_at)`, entry)
	return err
}

func getEntry(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*quiniela.Entry, error) {
	var entry quiniela.Entry
	if err := sqlx.GetContext(ctx, q, &entry, "SELECT * FROM entries WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *PoolStore) GetEntry(ctx context.Context, id uuid.UUID) (*quiniela.Entry, error) {
	return getEntry(ctx, s.db, id)
}

func (s *PoolStore) GetEntryForUserTx(ctx context.Context, tx *sqlx.Tx, poolID, userID uuid.UUID) (*quiniela.Entry, error) {
	var entry quiniela.Entry
	if err := tx.GetContext(ctx, &entry, "SELECT * FROM entries WHERE pool_id = ? AND user_id = ?", poolID, userID); err != nil {
		return nil, err
	}
	return &entry, nil
}

func getEntries(ctx context.Context, q sqlx.QueryerContext, poolID uuid.UUID) ([]quiniela.Entry, error) {
	var entries []quiniela.Entry
	err := sqlx.SelectContext(ctx, q, &entries, "SELECT * FROM entries WHERE pool_id = ? ORDER BY purchased_at ASC", poolID)
	return entries, err
}

func (s *PoolStore) GetEntries(ctx context.Context, poolID uuid.UUID) ([]quiniela.Entry, error) {
	return getEntries(ctx, s.db, poolID)
}

func (s *PoolStore) GetEntriesTx(ctx context.Context, tx *sqlx.Tx, poolID uuid.UUID) ([]quiniela.Entry, error) {
	return getEntries(ctx, tx, poolID)
}

func (s *PoolStore) UpdateEntryProgressTx(ctx context.Context, tx *sqlx.Tx, entry *quiniela.Entry) error {
	_, err := tx.NamedExecContext(ctx, `UPDATE entries SET
		status = :status,
		picks_filled = :picks_filled,
		picks_completed_at = :picks_completed_at
		WHERE id = :id`, entry)
	return err
}

func (s *PoolStore) UpdateEntryCorrectCountTx(ctx context.Context, tx *sqlx.Tx, entryID uuid.UUID, correct int) error {
	_, err := tx.ExecContext(ctx, "UPDATE entries SET correct_count = ? WHERE id = ?", correct, entryID)
	return err
}

func (s *PoolStore) UpdateEntryResultTx(ctx context.Context, tx *sqlx.Tx, entry *quiniela.Entry) error {
	_, err := tx.NamedExecContext(ctx, `UPDATE entries SET
		correct_count = :correct_count,
		final_rank = :final_rank,
		prize = :prize,
		status = :status
		WHERE id = :id`, entry)
	return err
}

func (s *PoolStore) UpdateEntriesStatusTx(ctx context.Context, tx *sqlx.Tx, poolID uuid.UUID, to quiniela.EntryStatus, from ...quiniela.EntryStatus) (int64, error) {
	query, args, err := sqlx.In("UPDATE entries SET status = ? WHERE pool_id = ? AND status IN (?)", to, poolID, from)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Picks

func (s *PoolStore) CreatePickTx(ctx context.Context, tx *sqlx.Tx, pick *quiniela.Pick) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO picks (id, entry_id, match_id, prediction, created_at, updated_at)
		VALUES (:id, :entry_id, :match_id, :prediction, :created_at, :updated_at)`, pick)
	return err
}

func (s *PoolStore) UpdatePickPredictionTx(ctx context.Context, tx *sqlx.Tx, pick *quiniela.Pick) error {
	_, err := tx.NamedExecContext(ctx, "UPDATE picks SET prediction = :prediction, updated_at = :updated_at WHERE id = :id", pick)
	return err
}

func (s *PoolStore) UpdatePickResultTx(ctx context.Context, tx *sqlx.Tx, pick *quiniela.Pick) error {
	_, err := tx.NamedExecContext(ctx, "UPDATE picks SET actual_outcome = :actual_outcome, is_correct = :is_correct WHERE id = :id", pick)
	return err
}

func getPicksByEntry(ctx context.Context, q sqlx.QueryerContext, entryID uuid.UUID) ([]quiniela.Pick, error) {
	var picks []quiniela.Pick
	err := sqlx.SelectContext(ctx, q, &picks, "SELECT * FROM picks WHERE entry_id = ? ORDER BY created_at ASC", entryID)
	return picks, err
}

func (s *PoolStore) GetPicksByEntry(ctx context.Context, entryID uuid.UUID) ([]quiniela.Pick, error) {
	return getPicksByEntry(ctx, s.db, entryID)
}

func (s *PoolStore) GetPicksByEntryTx(ctx context.Context, tx *sqlx.Tx, entryID uuid.UUID) ([]quiniela.Pick, error) {
	return getPicksByEntry(ctx, tx, entryID)
}

func (s *PoolStore) GetPicksByMatchTx(ctx context.Context, tx *sqlx.Tx, matchID uuid.UUID) ([]quiniela.Pick, error) {
	var picks []quiniela.Pick
	err := tx.SelectContext(ctx, &picks, "SELECT * FROM picks WHERE match_id = ?", matchID)
	return picks, err
}

func (s *PoolStore) CountCorrectPicksTx(ctx context.Context, tx *sqlx.Tx, entryID uuid.UUID) (int, error) {
	var n int
	err := tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM picks WHERE entry_id = ? AND is_correct = 1", entryID)
	return n, err
}
