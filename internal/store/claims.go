package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/stratalabs/vestflow/internal/treasury"
	"github.com/stratalabs/vestflow/internal/vesting"
)

// InsertClaim appends a claim record. Claims are never mutated.
func (s *Store) InsertClaim(ctx context.Context, c *vesting.Claim) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO claims (id, membership_id, wallet, amount_base, tx_ref, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.MembershipID, c.Wallet, int64(c.AmountBase), c.TxRef, c.ClaimedAt)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

// SumClaimsBase sums a membership's claims in base units.
func (s *Store) SumClaimsBase(ctx context.Context, membershipID uuid.UUID) (uint64, error) {
	var sum int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_base), 0)::BIGINT FROM claims WHERE membership_id = $1
	`, membershipID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum claims: %w", err)
	}
	return uint64(sum), nil
}

// ListClaims returns a membership's claim history, oldest first.
func (s *Store) ListClaims(ctx context.Context, membershipID uuid.UUID) ([]vesting.Claim, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, membership_id, wallet, amount_base, tx_ref, claimed_at
		FROM claims WHERE membership_id = $1 ORDER BY claimed_at ASC
	`, membershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	claims := []vesting.Claim{}
	for rows.Next() {
		var c vesting.Claim
		var amountBase int64
		if err := rows.Scan(&c.ID, &c.MembershipID, &c.Wallet, &amountBase, &c.TxRef, &c.ClaimedAt); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		c.AmountBase = uint64(amountBase)
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// TotalAllocated sums active memberships' amounts across all non-cancelled
// pools, in human units. Derived on read, never stored; a stored counter
// would drift.
func (s *Store) TotalAllocated(ctx context.Context) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(m.amount), 0)
		FROM memberships m
		JOIN pools p ON p.id = m.pool_id
		WHERE m.is_active AND p.status != 'cancelled'
	`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum allocations: %w", err)
	}
	return total, nil
}

// TotalClaimedBase sums every claim record, in base units.
func (s *Store) TotalClaimedBase(ctx context.Context) (uint64, error) {
	var sum int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount_base), 0)::BIGINT FROM claims`).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum claims: %w", err)
	}
	return uint64(sum), nil
}

// PoolBreakdown aggregates allocated and claimed amounts per non-cancelled
// pool.
func (s *Store) PoolBreakdown(ctx context.Context) ([]treasury.PoolBreakdown, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name,
			COALESCE(SUM(m.amount) FILTER (WHERE m.is_active), 0) AS allocated,
			COALESCE((
				SELECT SUM(c.amount_base)
				FROM claims c
				JOIN memberships cm ON cm.id = c.membership_id
				WHERE cm.pool_id = p.id
			), 0)::BIGINT AS claimed_base
		FROM pools p
		LEFT JOIN memberships m ON m.pool_id = p.id
		WHERE p.status != 'cancelled'
		GROUP BY p.id, p.name
		ORDER BY p.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to compute pool breakdown: %w", err)
	}
	defer rows.Close()

	breakdown := []treasury.PoolBreakdown{}
	for rows.Next() {
		var b treasury.PoolBreakdown
		var claimedBase int64
		if err := rows.Scan(&b.PoolID, &b.PoolName, &b.Allocated, &claimedBase); err != nil {
			return nil, fmt.Errorf("failed to scan pool breakdown: %w", err)
		}
		b.ClaimedBase = uint64(claimedBase)
		breakdown = append(breakdown, b)
	}
	return breakdown, rows.Err()
}

// RecordAdminAction appends an entry to the admin audit log.
func (s *Store) RecordAdminAction(ctx context.Context, wallet, action string, detail map[string]any) error {
	if detail == nil {
		detail = map[string]any{}
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to marshal action detail: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO admin_actions (wallet, action, detail) VALUES ($1, $2, $3)
	`, wallet, action, payload)
	if err != nil {
		return fmt.Errorf("failed to record admin action: %w", err)
	}
	return nil
}
