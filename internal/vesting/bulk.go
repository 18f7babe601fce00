package vesting

import (
	"context"

	"github.com/google/uuid"
)

// BulkFailure records one pool that a bulk operation could not transition.
type BulkFailure struct {
	PoolID uuid.UUID `json:"pool_id"`
	Reason string    `json:"reason"`
}

// BulkResult is the per-item outcome of a bulk lifecycle operation. Bulk
// operations are not atomic across pools; partial completion is expected and
// reported, never raised as an error.
type BulkResult struct {
	Succeeded []uuid.UUID   `json:"succeeded"`
	Failed    []BulkFailure `json:"failed,omitempty"`
}

// PauseAll pauses every active pool.
func (e *Engine) PauseAll(ctx context.Context) (*BulkResult, error) {
	pools, err := e.store.ListPoolsByStatus(ctx, StatusActive)
	if err != nil {
		return nil, err
	}
	result := &BulkResult{}
	for _, p := range pools {
		if _, err := e.Pause(ctx, p.ID); err != nil {
			result.Failed = append(result.Failed, BulkFailure{PoolID: p.ID, Reason: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, p.ID)
	}
	e.log.Info("bulk pause finished", "paused", len(result.Succeeded), "failed", len(result.Failed))
	return result, nil
}

// ResumeAll resumes every paused pool.
func (e *Engine) ResumeAll(ctx context.Context) (*BulkResult, error) {
	pools, err := e.store.ListPoolsByStatus(ctx, StatusPaused)
	if err != nil {
		return nil, err
	}
	result := &BulkResult{}
	for _, p := range pools {
		if _, err := e.Resume(ctx, p.ID); err != nil {
			result.Failed = append(result.Failed, BulkFailure{PoolID: p.ID, Reason: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, p.ID)
	}
	e.log.Info("bulk resume finished", "resumed", len(result.Succeeded), "failed", len(result.Failed))
	return result, nil
}

// EmergencyStop cancels every non-cancelled pool with the given reason.
// Pools protected by the locked-snapshot guard land in the failure list.
func (e *Engine) EmergencyStop(ctx context.Context, reason string) (*BulkResult, error) {
	if reason == "" {
		reason = "emergency stop"
	}
	active, err := e.store.ListPoolsByStatus(ctx, StatusActive)
	if err != nil {
		return nil, err
	}
	paused, err := e.store.ListPoolsByStatus(ctx, StatusPaused)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{}
	for _, p := range append(active, paused...) {
		if _, err := e.Cancel(ctx, p.ID, reason); err != nil {
			result.Failed = append(result.Failed, BulkFailure{PoolID: p.ID, Reason: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, p.ID)
	}
	e.log.Warn("emergency stop finished", "cancelled", len(result.Succeeded), "failed", len(result.Failed), "reason", reason)
	return result, nil
}
