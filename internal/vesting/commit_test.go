package vesting_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratalabs/vestflow/internal/vesting"
)

func TestCommit_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.holders.Sets["col"] = []vesting.Holder{
		{Wallet: "w1", HeldCount: 1},
		{Wallet: "w2", HeldCount: 1},
	}
	pool := env.createPool(t, vesting.ModeDynamic, 1000, fixedRule("col", 1, 10))

	calc, err := env.engine.Preview(ctx, pool.ID)
	require.NoError(t, err)

	first, err := env.engine.Commit(ctx, pool, calc.Allocations)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"w1", "w2"}, first.Succeeded)
	require.Empty(t, first.AlreadyMembers)
	require.Empty(t, first.Failed)

	// Replaying the identical batch creates nothing and fails nothing.
	second, err := env.engine.Commit(ctx, pool, calc.Allocations)
	require.NoError(t, err)
	require.Empty(t, second.Succeeded)
	require.ElementsMatch(t, []string{"w1", "w2"}, second.AlreadyMembers)
	require.Empty(t, second.Failed)

	members, err := env.store.ListActiveMemberships(ctx, pool.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
}

func TestCommit_PerRecordIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.holders.Sets["col"] = []vesting.Holder{
		{Wallet: "good", HeldCount: 1},
		{Wallet: "bad", HeldCount: 1},
	}
	env.store.InsertErr["bad"] = errors.New("disk is on fire")
	pool := env.createPool(t, vesting.ModeDynamic, 1000, fixedRule("col", 1, 10))

	calc, err := env.engine.Preview(ctx, pool.ID)
	require.NoError(t, err)
	result, err := env.engine.Commit(ctx, pool, calc.Allocations)
	require.NoError(t, err)
	require.Equal(t, []string{"good"}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	require.Equal(t, "bad", result.Failed[0].Wallet)
	require.Contains(t, result.Failed[0].Reason, "disk is on fire")
}

func TestCommit_CancelledPoolRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pool := env.createPool(t, vesting.ModeDynamic, 1000)
	_, err := env.engine.Cancel(ctx, pool.ID, "done")
	require.NoError(t, err)

	pool, err = env.store.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	_, err = env.engine.Commit(ctx, pool, map[string]*vesting.Allocation{
		"w": {Wallet: "w", Amount: 1},
	})
	require.ErrorIs(t, err, vesting.ErrPreconditionFailed)
}

func TestCommitSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.holders.Sets["col"] = []vesting.Holder{
		{Wallet: "w1", HeldCount: 1},
		{Wallet: "w2", HeldCount: 4},
	}
	pool := env.createPool(t, vesting.ModeSnapshot, 1000, percentageRule("col", 1, 10))

	result, err := env.engine.CommitSnapshot(ctx, pool.ID, false)
	require.NoError(t, err)
	require.Len(t, result.Commit.Succeeded, 2)
	require.EqualValues(t, 2, result.Locked)
	require.Nil(t, result.EscrowID)

	stored, err := env.store.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	require.True(t, stored.SnapshotTaken)

	members, err := env.store.ListActiveMemberships(ctx, pool.ID)
	require.NoError(t, err)
	for _, m := range members {
		require.True(t, m.SnapshotLocked)
		require.Equal(t, 100.0, m.Amount)
	}

	// The snapshot can be taken exactly once.
	_, err = env.engine.CommitSnapshot(ctx, pool.ID, false)
	require.ErrorIs(t, err, vesting.ErrPreconditionFailed)
}

func TestCommitSnapshot_WithEscrow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.holders.Sets["col"] = []vesting.Holder{{Wallet: "w1", HeldCount: 1}}
	pool := env.createPool(t, vesting.ModeSnapshot, 1000, percentageRule("col", 1, 10))
	env.escrow.NextEscrow = "esc-123"

	result, err := env.engine.CommitSnapshot(ctx, pool.ID, true)
	require.NoError(t, err)
	require.NotNil(t, result.EscrowID)
	require.Equal(t, "esc-123", *result.EscrowID)
	require.Empty(t, result.EscrowError)

	stored, err := env.store.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EscrowID)
	require.Equal(t, "esc-123", *stored.EscrowID)
}

func TestCommitSnapshot_EscrowFailureNonFatal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.holders.Sets["col"] = []vesting.Holder{{Wallet: "w1", HeldCount: 1}}
	pool := env.createPool(t, vesting.ModeSnapshot, 1000, percentageRule("col", 1, 10))
	env.escrow.DeployErr = errors.New("rpc timeout")

	result, err := env.engine.CommitSnapshot(ctx, pool.ID, true)
	require.NoError(t, err)
	require.Contains(t, result.EscrowError, "rpc timeout")
	require.Nil(t, result.EscrowID)

	// The local commit stands even though escrow deployment failed.
	stored, err := env.store.GetPool(ctx, pool.ID)
	require.NoError(t, err)
	require.True(t, stored.SnapshotTaken)
	members, err := env.store.ListActiveMemberships(ctx, pool.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestCommitSnapshot_Preconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dynamic := env.createPool(t, vesting.ModeDynamic, 1000)
	_, err := env.engine.CommitSnapshot(ctx, dynamic.ID, false)
	require.ErrorIs(t, err, vesting.ErrPreconditionFailed)

	paused := env.createPool(t, vesting.ModeSnapshot, 1000, fixedRule("col", 1, 1))
	_, err = env.engine.Pause(ctx, paused.ID)
	require.NoError(t, err)
	_, err = env.engine.CommitSnapshot(ctx, paused.ID, false)
	require.ErrorIs(t, err, vesting.ErrPreconditionFailed)
}

func TestAddManualMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pool := env.createPool(t, vesting.ModeManual, 1000)

	m, err := env.engine.AddManualMembership(ctx, pool.ID, walletA, 250, 0)
	require.NoError(t, err)
	require.Equal(t, 250.0, m.Amount)
	require.Equal(t, 25.0, m.SharePct)
	require.Equal(t, []string{"manual"}, m.Sources)
	require.Equal(t, 0, m.Tier)

	// Duplicate active membership is a store-level conflict.
	_, err = env.engine.AddManualMembership(ctx, pool.ID, walletA, 100, 0)
	require.ErrorIs(t, err, vesting.ErrDuplicateActive)

	_, err = env.engine.AddManualMembership(ctx, pool.ID, "not-a-wallet", 100, 0)
	require.ErrorIs(t, err, vesting.ErrValidation)

	_, err = env.engine.AddManualMembership(ctx, pool.ID, walletB, -5, 0)
	require.ErrorIs(t, err, vesting.ErrValidation)
}

func TestAddManualMembership_LockedSnapshotRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.holders.Sets["col"] = []vesting.Holder{{Wallet: "w1", HeldCount: 1}}
	pool := env.createPool(t, vesting.ModeSnapshot, 1000, fixedRule("col", 1, 10))

	_, err := env.engine.CommitSnapshot(ctx, pool.ID, false)
	require.NoError(t, err)

	_, err = env.engine.AddManualMembership(ctx, pool.ID, walletA, 100, 0)
	require.ErrorIs(t, err, vesting.ErrPreconditionFailed)
}

func TestRemoveMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pool := env.createPool(t, vesting.ModeManual, 1000)
	_, err := env.engine.AddManualMembership(ctx, pool.ID, walletA, 100, 0)
	require.NoError(t, err)

	require.NoError(t, env.engine.RemoveMembership(ctx, pool.ID, walletA, "mistake"))
	members, err := env.store.ListActiveMemberships(ctx, pool.ID)
	require.NoError(t, err)
	require.Empty(t, members)

	// The record survives for audit, flagged cancelled.
	all := env.store.AllMemberships()
	require.Len(t, all, 1)
	require.True(t, all[0].IsCancelled)
	require.Equal(t, "mistake", *all[0].CancelReason)

	// A removed wallet can rejoin.
	_, err = env.engine.AddManualMembership(ctx, pool.ID, walletA, 50, 0)
	require.NoError(t, err)
}
