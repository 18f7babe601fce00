package vesting

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stratalabs/vestflow/internal/metrics"
)

// CommitFailure records one wallet whose membership insert failed.
type CommitFailure struct {
	Wallet string `json:"wallet"`
	Reason string `json:"reason"`
}

// CommitResult is the itemized outcome of a commit batch. A partially
// failed batch is not an error; every wallet appears in exactly one list.
type CommitResult struct {
	Succeeded      []string        `json:"succeeded"`
	AlreadyMembers []string        `json:"already_members"`
	Failed         []CommitFailure `json:"failed,omitempty"`
}

// Commit persists a batch of computed allocations as membership records.
// Each insert is attempted independently; one wallet's failure never aborts
// the rest. A wallet that already has an active membership in the pool is a
// no-op success, which makes retried commits idempotent.
func (e *Engine) Commit(ctx context.Context, pool *Pool, allocs map[string]*Allocation) (*CommitResult, error) {
	if pool.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: pool is cancelled", ErrPreconditionFailed)
	}

	now := e.clock.Now().UTC()
	result := &CommitResult{}
	wallets := make([]string, 0, len(allocs))
	for w := range allocs {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	for _, wallet := range wallets {
		a := allocs[wallet]
		m := &Membership{
			ID:        uuid.New(),
			PoolID:    pool.ID,
			Wallet:    wallet,
			Amount:    a.Amount,
			SharePct:  a.SharePct,
			Tier:      a.Tier,
			NFTCount:  a.NFTCount,
			Sources:   a.Sources,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := e.store.InsertMembership(ctx, m)
		switch {
		case err == nil:
			result.Succeeded = append(result.Succeeded, wallet)
			metrics.CommitsTotal.WithLabelValues("created").Inc()
		case errors.Is(err, ErrDuplicateActive):
			result.AlreadyMembers = append(result.AlreadyMembers, wallet)
			metrics.CommitsTotal.WithLabelValues("noop").Inc()
		default:
			result.Failed = append(result.Failed, CommitFailure{Wallet: wallet, Reason: err.Error()})
			metrics.CommitsTotal.WithLabelValues("failed").Inc()
			e.log.Warn("membership insert failed", "pool", pool.ID, "wallet", wallet, "error", err)
		}
	}

	e.log.Info("commit batch finished",
		"pool", pool.ID,
		"created", len(result.Succeeded),
		"noop", len(result.AlreadyMembers),
		"failed", len(result.Failed))
	return result, nil
}

// SnapshotResult is the outcome of committing a snapshot pool.
type SnapshotResult struct {
	Commit       *CommitResult `json:"commit"`
	SkippedRules []RuleFailure `json:"skipped_rules,omitempty"`
	Locked       int64         `json:"locked"`
	EscrowID     *string       `json:"escrow_id,omitempty"`
	EscrowTxRef  *string       `json:"escrow_tx_ref,omitempty"`
	EscrowError  string        `json:"escrow_error,omitempty"`
}

// CommitSnapshot computes and persists a snapshot pool's allocations, marks
// the snapshot as taken, and locks the resulting memberships. The snapshot
// can be taken exactly once; a second attempt fails the precondition before
// any computation runs. With deployEscrow set, an escrow is deployed for the
// pool total after a successful commit; deployment failure is reported but
// does not undo the local commit.
func (e *Engine) CommitSnapshot(ctx context.Context, poolID uuid.UUID, deployEscrow bool) (*SnapshotResult, error) {
	pool, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.Mode != ModeSnapshot {
		return nil, fmt.Errorf("%w: pool mode is %s, snapshot commit requires a snapshot pool", ErrPreconditionFailed, pool.Mode)
	}
	if pool.Status != StatusActive {
		return nil, fmt.Errorf("%w: pool is %s", ErrPreconditionFailed, pool.Status)
	}
	if pool.SnapshotTaken {
		return nil, fmt.Errorf("%w: snapshot already taken", ErrPreconditionFailed)
	}

	rules, err := e.store.ListRules(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	calc, err := e.Calculate(ctx, pool, rules)
	if err != nil {
		return nil, err
	}

	commit, err := e.Commit(ctx, pool, calc.Allocations)
	if err != nil {
		return nil, err
	}

	// Concurrent snapshot commits race here; only the request that flips
	// the flag proceeds to lock.
	took, err := e.store.MarkSnapshotTaken(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark snapshot taken: %w", err)
	}
	if !took {
		return nil, fmt.Errorf("%w: snapshot already taken", ErrPreconditionFailed)
	}

	locked, err := e.store.LockPoolMemberships(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock memberships: %w", err)
	}

	result := &SnapshotResult{Commit: commit, SkippedRules: calc.SkippedRules, Locked: locked}

	if deployEscrow && e.escrow != nil {
		escrowID, txRef, err := e.escrow.Deploy(ctx, pool.TotalSize, pool.StartTime, pool.EndTime, pool.Name)
		if err != nil {
			metrics.EscrowCallsTotal.WithLabelValues("deploy", "failed").Inc()
			e.log.Error("escrow deployment failed after snapshot commit", "pool", poolID, "error", err)
			result.EscrowError = err.Error()
		} else {
			metrics.EscrowCallsTotal.WithLabelValues("deploy", "ok").Inc()
			if err := e.store.SetPoolEscrow(ctx, poolID, escrowID, txRef); err != nil {
				return nil, fmt.Errorf("failed to store escrow reference: %w", err)
			}
			result.EscrowID = &escrowID
			result.EscrowTxRef = &txRef
			e.log.Info("escrow deployed", "pool", poolID, "escrow", escrowID, "tx", txRef)
		}
	}

	e.log.Info("snapshot committed", "pool", poolID, "members", len(commit.Succeeded), "locked", locked)
	return result, nil
}

// AddManualMembership records an operator-entered allocation. Used for
// manual pools, and for admin adjustments on live pools.
func (e *Engine) AddManualMembership(ctx context.Context, poolID uuid.UUID, wallet string, amount float64, nftCount int) (*Membership, error) {
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet is required", ErrValidation)
	}
	if err := validateWallet(wallet); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	pool, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: pool is cancelled", ErrPreconditionFailed)
	}
	if pool.Mode == ModeSnapshot && pool.SnapshotTaken {
		return nil, fmt.Errorf("%w: snapshot pool is locked", ErrPreconditionFailed)
	}

	now := e.clock.Now().UTC()
	sharePct := 0.0
	if pool.TotalSize > 0 {
		sharePct = amount / pool.TotalSize * 100
	}
	m := &Membership{
		ID:        uuid.New(),
		PoolID:    poolID,
		Wallet:    wallet,
		Amount:    amount,
		SharePct:  sharePct,
		Tier:      TierForCount(nftCount),
		NFTCount:  nftCount,
		Sources:   []string{"manual"},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.InsertMembership(ctx, m); err != nil {
		return nil, err
	}
	e.log.Info("manual membership added", "pool", poolID, "wallet", wallet, "amount", amount)
	return m, nil
}

// RemoveMembership logically removes a wallet's active membership from a
// pool. The record stays behind, flagged cancelled, for audit.
func (e *Engine) RemoveMembership(ctx context.Context, poolID uuid.UUID, wallet, reason string) error {
	if reason == "" {
		reason = "removed by admin"
	}
	return e.store.CancelMembership(ctx, poolID, wallet, reason, e.clock.Now().UTC())
}

func validateWallet(wallet string) error {
	if _, err := solana.PublicKeyFromBase58(wallet); err != nil {
		return fmt.Errorf("%w: invalid wallet address: %v", ErrValidation, err)
	}
	return nil
}
