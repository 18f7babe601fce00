package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stratalabs/vestflow/internal/vesting"
)

const poolColumns = `id, name, total_size, token_mint, start_time, end_time, cliff_seconds,
	mode, status, snapshot_taken, escrow_id, escrow_tx_ref, created_at, updated_at`

// CreatePool inserts a new pool.
func (s *Store) CreatePool(ctx context.Context, p *vesting.Pool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (id, name, total_size, token_mint, start_time, end_time, cliff_seconds,
			mode, status, snapshot_taken, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.Name, p.TotalSize, p.TokenMint, p.StartTime, p.EndTime, p.CliffSeconds,
		p.Mode, p.Status, p.SnapshotTaken, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert pool: %w", err)
	}
	return nil
}

// GetPool fetches a pool by id.
func (s *Store) GetPool(ctx context.Context, id uuid.UUID) (*vesting.Pool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id)
	p, err := scanPool(row)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return p, nil
}

// ListPools returns all pools, newest first.
func (s *Store) ListPools(ctx context.Context) ([]*vesting.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	defer rows.Close()
	return scanPools(rows)
}

// ListPoolsByStatus returns pools in the given lifecycle state.
func (s *Store) ListPoolsByStatus(ctx context.Context, status vesting.PoolStatus) ([]*vesting.Pool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+poolColumns+` FROM pools WHERE status = $1 ORDER BY created_at DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	defer rows.Close()
	return scanPools(rows)
}

// UpdatePoolStatus transitions a pool's lifecycle state.
func (s *Store) UpdatePoolStatus(ctx context.Context, id uuid.UUID, status vesting.PoolStatus, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pools SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return fmt.Errorf("failed to update pool status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vesting.ErrNotFound
	}
	return nil
}

func (s *Store) RenamePool(ctx context.Context, id uuid.UUID, name string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pools SET name = $2, updated_at = $3 WHERE id = $1`, id, name, at)
	if err != nil {
		return fmt.Errorf("failed to rename pool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vesting.ErrNotFound
	}
	return nil
}

// MarkSnapshotTaken flips the snapshot_taken flag and reports whether this
// call was the one that flipped it. Concurrent snapshot commits serialize on
// this conditional update.
func (s *Store) MarkSnapshotTaken(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pools SET snapshot_taken = TRUE, updated_at = NOW()
		WHERE id = $1 AND snapshot_taken = FALSE
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark snapshot taken: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetPoolEscrow stores the deployed escrow reference on a pool.
func (s *Store) SetPoolEscrow(ctx context.Context, id uuid.UUID, escrowID, txRef string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pools SET escrow_id = $2, escrow_tx_ref = $3, updated_at = NOW() WHERE id = $1`,
		id, escrowID, txRef)
	if err != nil {
		return fmt.Errorf("failed to set pool escrow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vesting.ErrNotFound
	}
	return nil
}

// AddRule inserts an eligibility rule.
func (s *Store) AddRule(ctx context.Context, r *vesting.Rule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rules (id, pool_id, collection_id, min_held, alloc_type, alloc_value, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.PoolID, r.CollectionID, r.MinHeld, r.AllocType, r.AllocValue, r.Enabled, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// ListRules returns a pool's rules in insertion order.
func (s *Store) ListRules(ctx context.Context, poolID uuid.UUID) ([]vesting.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, pool_id, collection_id, min_held, alloc_type, alloc_value, enabled, created_at
		FROM rules WHERE pool_id = $1 ORDER BY created_at ASC, id ASC
	`, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rules := []vesting.Rule{}
	for rows.Next() {
		var r vesting.Rule
		if err := rows.Scan(&r.ID, &r.PoolID, &r.CollectionID, &r.MinHeld, &r.AllocType, &r.AllocValue, &r.Enabled, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// SetRuleEnabled toggles a rule.
func (s *Store) SetRuleEnabled(ctx context.Context, poolID, ruleID uuid.UUID, enabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rules SET enabled = $3 WHERE id = $2 AND pool_id = $1`, poolID, ruleID, enabled)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vesting.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPool(row rowScanner) (*vesting.Pool, error) {
	var p vesting.Pool
	err := row.Scan(&p.ID, &p.Name, &p.TotalSize, &p.TokenMint, &p.StartTime, &p.EndTime,
		&p.CliffSeconds, &p.Mode, &p.Status, &p.SnapshotTaken, &p.EscrowID, &p.EscrowTxRef,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPools(rows rowIterator) ([]*vesting.Pool, error) {
	pools := []*vesting.Pool{}
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}
