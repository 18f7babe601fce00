package vesting

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stratalabs/vestflow/internal/metrics"
)

// SyncResult is the itemized outcome of a dynamic reconciliation run.
type SyncResult struct {
	PoolID         uuid.UUID       `json:"pool_id"`
	NewMembers     []string        `json:"new_members"`
	AlreadyMembers []string        `json:"already_members"`
	Failed         []CommitFailure `json:"failed,omitempty"`
	SkippedRules   []RuleFailure   `json:"skipped_rules,omitempty"`
}

// Sync re-evaluates a dynamic pool's rules against current holder sets and
// commits memberships for newly qualifying wallets. Wallets that no longer
// qualify keep their memberships: allocations already granted are sticky,
// and a dynamic pool's membership only grows unless an admin explicitly
// removes a member. Re-running against an unchanged holder set is a no-op.
func (e *Engine) Sync(ctx context.Context, poolID uuid.UUID) (*SyncResult, error) {
	pool, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.Mode != ModeDynamic {
		return nil, fmt.Errorf("%w: sync requires a dynamic pool, pool is %s", ErrPreconditionFailed, pool.Mode)
	}
	if pool.Status != StatusActive {
		return nil, fmt.Errorf("%w: pool is %s", ErrPreconditionFailed, pool.Status)
	}

	rules, err := e.store.ListRules(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	calc, err := e.Calculate(ctx, pool, rules)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	commit, err := e.Commit(ctx, pool, calc.Allocations)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.SyncRunsTotal.WithLabelValues("ok").Inc()
	result := &SyncResult{
		PoolID:         poolID,
		NewMembers:     commit.Succeeded,
		AlreadyMembers: commit.AlreadyMembers,
		Failed:         commit.Failed,
		SkippedRules:   calc.SkippedRules,
	}
	e.log.Info("dynamic sync finished",
		"pool", poolID,
		"new", len(result.NewMembers),
		"existing", len(result.AlreadyMembers),
		"failed", len(result.Failed))
	return result, nil
}
