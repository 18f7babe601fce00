package vesting

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stratalabs/vestflow/internal/metrics"
)

// Pause moves a pool from active to paused. Memberships are untouched.
func (e *Engine) Pause(ctx context.Context, poolID uuid.UUID) (*Pool, error) {
	return e.transition(ctx, poolID, StatusPaused)
}

// Resume moves a paused pool back to active.
func (e *Engine) Resume(ctx context.Context, poolID uuid.UUID) (*Pool, error) {
	return e.transition(ctx, poolID, StatusActive)
}

func (e *Engine) transition(ctx context.Context, poolID uuid.UUID, target PoolStatus) (*Pool, error) {
	pool, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: pool is cancelled", ErrPreconditionFailed)
	}
	if pool.Status == target {
		return pool, nil
	}
	now := e.clock.Now().UTC()
	if err := e.store.UpdatePoolStatus(ctx, poolID, target, now); err != nil {
		return nil, fmt.Errorf("failed to update pool status: %w", err)
	}
	pool.Status = target
	pool.UpdatedAt = now
	e.log.Info("pool status changed", "pool", poolID, "status", target)
	return pool, nil
}

// Cancel terminally cancels a pool. Every active membership is flagged
// inactive and cancelled with the given reason, and any deployed escrow gets
// a best-effort cancellation request. Local state is the source of truth for
// claim eligibility, so a failed escrow call never blocks the transition.
//
// A snapshot pool whose memberships are locked holds a commitment to its
// recipients and cannot be cancelled.
func (e *Engine) Cancel(ctx context.Context, poolID uuid.UUID, reason string) (*Pool, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: cancellation reason is required", ErrValidation)
	}
	pool, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: pool is already cancelled", ErrPreconditionFailed)
	}
	if pool.Mode == ModeSnapshot {
		locked, err := e.store.HasLockedMemberships(ctx, poolID)
		if err != nil {
			return nil, fmt.Errorf("failed to check locked memberships: %w", err)
		}
		if locked {
			return nil, fmt.Errorf("%w: snapshot pool has locked memberships", ErrPreconditionFailed)
		}
	}

	now := e.clock.Now().UTC()
	if err := e.store.UpdatePoolStatus(ctx, poolID, StatusCancelled, now); err != nil {
		return nil, fmt.Errorf("failed to cancel pool: %w", err)
	}
	cancelled, err := e.store.CancelPoolMemberships(ctx, poolID, reason, now)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel memberships: %w", err)
	}

	if pool.EscrowID != nil {
		e.cancelEscrowBestEffort(poolID, *pool.EscrowID)
	}

	pool.Status = StatusCancelled
	pool.UpdatedAt = now
	e.log.Info("pool cancelled", "pool", poolID, "reason", reason, "memberships_cancelled", cancelled)
	return pool, nil
}

// escrowOutcome is the result of a best-effort escrow call. It is consumed
// by the logger only; the caller's local transition proceeds regardless.
type escrowOutcome struct {
	ok          bool
	err         error
	recoverable bool
}

func (e *Engine) cancelEscrowBestEffort(poolID uuid.UUID, escrowID string) {
	if e.escrow == nil {
		return
	}
	// Detached from the request context: the local cancellation has already
	// committed and must not be tied to the caller's deadline.
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	outcome := escrowOutcome{ok: true}
	if err := e.escrow.Cancel(ctx, escrowID); err != nil {
		outcome = escrowOutcome{err: err, recoverable: ctx.Err() != nil}
	}

	if outcome.ok {
		metrics.EscrowCallsTotal.WithLabelValues("cancel", "ok").Inc()
		e.log.Info("escrow cancelled", "pool", poolID, "escrow", escrowID)
		return
	}
	metrics.EscrowCallsTotal.WithLabelValues("cancel", "failed").Inc()
	e.log.Error("escrow cancellation failed, local cancellation stands",
		"pool", poolID, "escrow", escrowID, "recoverable", outcome.recoverable, "error", outcome.err)
}
