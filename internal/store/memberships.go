package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stratalabs/vestflow/internal/vesting"
)

const membershipColumns = `id, pool_id, wallet, amount, share_pct, tier, nft_count, sources,
	is_active, is_cancelled, snapshot_locked, cancel_reason, cancelled_at, created_at, updated_at`

// InsertMembership inserts a membership record. The partial unique index on
// active (pool, wallet) pairs makes the idempotency check atomic; a
// violation maps to ErrDuplicateActive.
func (s *Store) InsertMembership(ctx context.Context, m *vesting.Membership) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memberships (id, pool_id, wallet, amount, share_pct, tier, nft_count, sources,
			is_active, is_cancelled, snapshot_locked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, m.ID, m.PoolID, m.Wallet, m.Amount, m.SharePct, m.Tier, m.NFTCount, m.Sources,
		m.IsActive, m.IsCancelled, m.SnapshotLocked, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return vesting.ErrDuplicateActive
		}
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

// ListActiveMemberships returns a pool's active memberships.
func (s *Store) ListActiveMemberships(ctx context.Context, poolID uuid.UUID) ([]vesting.Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+membershipColumns+`
		FROM memberships
		WHERE pool_id = $1 AND is_active
		ORDER BY created_at ASC, wallet ASC
	`, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	memberships := []vesting.Membership{}
	for rows.Next() {
		var m vesting.Membership
		if err := rows.Scan(&m.ID, &m.PoolID, &m.Wallet, &m.Amount, &m.SharePct, &m.Tier,
			&m.NFTCount, &m.Sources, &m.IsActive, &m.IsCancelled, &m.SnapshotLocked,
			&m.CancelReason, &m.CancelledAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// GetMembership fetches a membership by id.
func (s *Store) GetMembership(ctx context.Context, id uuid.UUID) (*vesting.Membership, error) {
	var m vesting.Membership
	err := s.pool.QueryRow(ctx, `
		SELECT `+membershipColumns+` FROM memberships WHERE id = $1
	`, id).Scan(&m.ID, &m.PoolID, &m.Wallet, &m.Amount, &m.SharePct, &m.Tier,
		&m.NFTCount, &m.Sources, &m.IsActive, &m.IsCancelled, &m.SnapshotLocked,
		&m.CancelReason, &m.CancelledAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &m, nil
}

// CancelMembership logically removes one wallet's active membership from a
// pool. The record stays behind, flagged cancelled, for audit.
func (s *Store) CancelMembership(ctx context.Context, poolID uuid.UUID, wallet, reason string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE memberships
		SET is_active = FALSE, is_cancelled = TRUE, cancel_reason = $3, cancelled_at = $4, updated_at = $4
		WHERE pool_id = $1 AND wallet = $2 AND is_active
	`, poolID, wallet, reason, at)
	if err != nil {
		return fmt.Errorf("failed to cancel membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vesting.ErrNotFound
	}
	return nil
}

// CancelPoolMemberships logically removes every active membership in a pool
// and returns how many were affected.
func (s *Store) CancelPoolMemberships(ctx context.Context, poolID uuid.UUID, reason string, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE memberships
		SET is_active = FALSE, is_cancelled = TRUE, cancel_reason = $2, cancelled_at = $3, updated_at = $3
		WHERE pool_id = $1 AND is_active
	`, poolID, reason, at)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pool memberships: %w", err)
	}
	return tag.RowsAffected(), nil
}

// HasLockedMemberships reports whether any membership in the pool is
// snapshot-locked.
func (s *Store) HasLockedMemberships(ctx context.Context, poolID uuid.UUID) (bool, error) {
	var locked bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM memberships WHERE pool_id = $1 AND snapshot_locked)
	`, poolID).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("failed to check locked memberships: %w", err)
	}
	return locked, nil
}

// LockPoolMemberships marks every active membership in the pool as
// snapshot-locked and returns how many were locked.
func (s *Store) LockPoolMemberships(ctx context.Context, poolID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE memberships SET snapshot_locked = TRUE, updated_at = NOW()
		WHERE pool_id = $1 AND is_active AND NOT snapshot_locked
	`, poolID)
	if err != nil {
		return 0, fmt.Errorf("failed to lock pool memberships: %w", err)
	}
	return tag.RowsAffected(), nil
}
