package vesting_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/stratalabs/vestflow/internal/vesting"
	"github.com/stratalabs/vestflow/internal/vesting/vestingtest"
)

const (
	walletA = "So11111111111111111111111111111111111111112"
	walletB = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
	walletC = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
)

type testEnv struct {
	store   *vestingtest.MemStore
	holders *vestingtest.FakeHolders
	escrow  *vestingtest.FakeEscrow
	clock   *clockwork.FakeClock
	engine  *vesting.Engine
}

func newTestEnv(t *testing.T, opts ...func(*vesting.Config)) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   vestingtest.NewMemStore(),
		holders: vestingtest.NewFakeHolders(nil),
		escrow:  &vestingtest.FakeEscrow{},
		clock:   clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	cfg := vesting.Config{
		Store:   env.store,
		Holders: env.holders,
		Escrow:  env.escrow,
		Clock:   env.clock,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	engine, err := vesting.NewEngine(cfg)
	require.NoError(t, err)
	env.engine = engine
	return env
}

func (env *testEnv) createPool(t *testing.T, mode vesting.PoolMode, totalSize float64, rules ...vesting.NewRuleParams) *vesting.Pool {
	t.Helper()
	pool, err := env.engine.CreatePool(context.Background(), vesting.CreatePoolParams{
		Name:      "test-pool",
		TotalSize: totalSize,
		StartTime: env.clock.Now(),
		EndTime:   env.clock.Now().Add(365 * 24 * time.Hour),
		Mode:      mode,
		Rules:     rules,
	})
	require.NoError(t, err)
	return pool
}

func percentageRule(collection string, minHeld int, pct float64) vesting.NewRuleParams {
	return vesting.NewRuleParams{
		CollectionID: collection,
		MinHeld:      minHeld,
		AllocType:    vesting.AllocPercentage,
		AllocValue:   pct,
	}
}

func fixedRule(collection string, minHeld int, amount float64) vesting.NewRuleParams {
	return vesting.NewRuleParams{
		CollectionID: collection,
		MinHeld:      minHeld,
		AllocType:    vesting.AllocFixed,
		AllocValue:   amount,
	}
}

func TestCreatePool_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		params vesting.CreatePoolParams
	}{
		{"missing name", vesting.CreatePoolParams{
			TotalSize: 100, Mode: vesting.ModeDynamic,
			StartTime: env.clock.Now(), EndTime: env.clock.Now().Add(time.Hour),
		}},
		{"non-positive size", vesting.CreatePoolParams{
			Name: "p", TotalSize: 0, Mode: vesting.ModeDynamic,
			StartTime: env.clock.Now(), EndTime: env.clock.Now().Add(time.Hour),
		}},
		{"unknown mode", vesting.CreatePoolParams{
			Name: "p", TotalSize: 100, Mode: "weird",
			StartTime: env.clock.Now(), EndTime: env.clock.Now().Add(time.Hour),
		}},
		{"end before start", vesting.CreatePoolParams{
			Name: "p", TotalSize: 100, Mode: vesting.ModeDynamic,
			StartTime: env.clock.Now().Add(time.Hour), EndTime: env.clock.Now(),
		}},
		{"negative cliff", vesting.CreatePoolParams{
			Name: "p", TotalSize: 100, Mode: vesting.ModeDynamic, CliffSeconds: -1,
			StartTime: env.clock.Now(), EndTime: env.clock.Now().Add(time.Hour),
		}},
		{"bad token mint", vesting.CreatePoolParams{
			Name: "p", TotalSize: 100, Mode: vesting.ModeDynamic, TokenMint: "not-base58!",
			StartTime: env.clock.Now(), EndTime: env.clock.Now().Add(time.Hour),
		}},
		{"manual pool with rules", vesting.CreatePoolParams{
			Name: "p", TotalSize: 100, Mode: vesting.ModeManual,
			StartTime: env.clock.Now(), EndTime: env.clock.Now().Add(time.Hour),
			Rules: []vesting.NewRuleParams{percentageRule("col", 1, 10)},
		}},
		{"percentage over 100", vesting.CreatePoolParams{
			Name: "p", TotalSize: 100, Mode: vesting.ModeDynamic,
			StartTime: env.clock.Now(), EndTime: env.clock.Now().Add(time.Hour),
			Rules: []vesting.NewRuleParams{percentageRule("col", 1, 120)},
		}},
		{"zero min_held", vesting.CreatePoolParams{
			Name: "p", TotalSize: 100, Mode: vesting.ModeDynamic,
			StartTime: env.clock.Now(), EndTime: env.clock.Now().Add(time.Hour),
			Rules: []vesting.NewRuleParams{percentageRule("col", 0, 10)},
		}},
		{"unknown alloc type", vesting.CreatePoolParams{
			Name: "p", TotalSize: 100, Mode: vesting.ModeDynamic,
			StartTime: env.clock.Now(), EndTime: env.clock.Now().Add(time.Hour),
			Rules: []vesting.NewRuleParams{{
				CollectionID: "col", MinHeld: 1, AllocType: "LINEAR", AllocValue: 5,
			}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.CreatePool(ctx, tc.params)
			require.ErrorIs(t, err, vesting.ErrValidation)
		})
	}
}

func TestCreatePool_ValidMint(t *testing.T) {
	env := newTestEnv(t)
	pool, err := env.engine.CreatePool(context.Background(), vesting.CreatePoolParams{
		Name:      "mint-pool",
		TotalSize: 1000,
		TokenMint: walletA,
		StartTime: env.clock.Now(),
		EndTime:   env.clock.Now().Add(time.Hour),
		Mode:      vesting.ModeSnapshot,
		Rules:     []vesting.NewRuleParams{percentageRule("col", 1, 5)},
	})
	require.NoError(t, err)
	require.Equal(t, vesting.StatusActive, pool.Status)
	require.False(t, pool.SnapshotTaken)

	rules, err := env.store.ListRules(context.Background(), pool.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.True(t, rules[0].Enabled)
}

func TestAddRule_OnlyDynamicPools(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	snapshot := env.createPool(t, vesting.ModeSnapshot, 1000, percentageRule("col", 1, 5))
	_, err := env.engine.AddRule(ctx, snapshot.ID, percentageRule("col2", 1, 5))
	require.ErrorIs(t, err, vesting.ErrPreconditionFailed)

	dynamic := env.createPool(t, vesting.ModeDynamic, 1000)
	rule, err := env.engine.AddRule(ctx, dynamic.ID, fixedRule("col", 2, 50))
	require.NoError(t, err)
	require.Equal(t, dynamic.ID, rule.PoolID)
	require.Equal(t, 2, rule.MinHeld)

	rules, err := env.store.ListRules(ctx, dynamic.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
}

func TestSetRuleEnabled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.createPool(t, vesting.ModeDynamic, 1000, percentageRule("col", 1, 5))
	rules, err := env.store.ListRules(ctx, pool.ID)
	require.NoError(t, err)

	require.NoError(t, env.engine.SetRuleEnabled(ctx, pool.ID, rules[0].ID, false))
	rules, err = env.store.ListRules(ctx, pool.ID)
	require.NoError(t, err)
	require.False(t, rules[0].Enabled)
}

func TestTierForCount(t *testing.T) {
	require.Equal(t, 0, vesting.TierForCount(0))
	require.Equal(t, 1, vesting.TierForCount(1))
	require.Equal(t, 1, vesting.TierForCount(2))
	require.Equal(t, 2, vesting.TierForCount(3))
	require.Equal(t, 2, vesting.TierForCount(9))
	require.Equal(t, 3, vesting.TierForCount(10))
	require.Equal(t, 3, vesting.TierForCount(250))
}
