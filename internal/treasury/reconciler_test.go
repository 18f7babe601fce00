package treasury_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stratalabs/vestflow/internal/treasury"
	"github.com/stratalabs/vestflow/internal/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	allocated   float64
	claimedBase uint64
	pools       []treasury.PoolBreakdown
	err         error
}

func (s *fakeStore) TotalAllocated(ctx context.Context) (float64, error) {
	return s.allocated, s.err
}

func (s *fakeStore) TotalClaimedBase(ctx context.Context) (uint64, error) {
	return s.claimedBase, s.err
}

func (s *fakeStore) PoolBreakdown(ctx context.Context) ([]treasury.PoolBreakdown, error) {
	return s.pools, s.err
}

type fakeBalance struct {
	base uint64
	err  error
}

func (b *fakeBalance) TreasuryBalanceBase(ctx context.Context) (uint64, error) {
	return b.base, b.err
}

type fakeAlerter struct {
	critical int
}

func (a *fakeAlerter) Critical(ctx context.Context, r *treasury.Report) { a.critical++ }

func human(v float64) uint64 { return units.ToBase(v, 9) }

func TestStatus_WarningAtZeroBuffer(t *testing.T) {
	// balance=100, allocated=150, claimed=50: remaining=100, buffer=0.
	// Buffer exactly zero is warning, not critical.
	store := &fakeStore{allocated: 150, claimedBase: human(50)}
	r := treasury.New(store, &fakeBalance{base: human(100)}, nil, 9, nil)

	report, err := r.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, report.RemainingNeeded)
	assert.Equal(t, 0.0, report.Buffer)
	assert.Equal(t, 0.0, report.BufferPct)
	assert.Equal(t, treasury.StatusWarning, report.Status)
}

func TestStatus_Healthy(t *testing.T) {
	// remaining=100, buffer=25 >= 20% of remaining.
	store := &fakeStore{allocated: 100}
	r := treasury.New(store, &fakeBalance{base: human(125)}, nil, 9, nil)

	report, err := r.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, treasury.StatusHealthy, report.Status)
	assert.InDelta(t, 25.0, report.BufferPct, 1e-9)
}

func TestStatus_CriticalFiresAlert(t *testing.T) {
	store := &fakeStore{allocated: 200}
	alerter := &fakeAlerter{}
	r := treasury.New(store, &fakeBalance{base: human(100)}, alerter, 9, nil)

	report, err := r.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, treasury.StatusCritical, report.Status)
	assert.Equal(t, 1, alerter.critical)
}

func TestStatus_NothingOwedIsHealthy(t *testing.T) {
	report, err := treasury.New(&fakeStore{}, &fakeBalance{}, nil, 9, nil).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, treasury.StatusHealthy, report.Status)
	assert.Equal(t, 0.0, report.BufferPct)
}

func TestStatus_OverClaimedIsHealthy(t *testing.T) {
	// More claimed than allocated leaves nothing owed.
	store := &fakeStore{allocated: 50, claimedBase: human(80)}
	report, err := treasury.New(store, &fakeBalance{}, nil, 9, nil).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, treasury.StatusHealthy, report.Status)
	assert.Equal(t, 0.0, report.BufferPct)
}

func TestStatus_BalanceLookupFailure(t *testing.T) {
	r := treasury.New(&fakeStore{}, &fakeBalance{err: errors.New("rpc down")}, nil, 9, nil)
	_, err := r.Status(context.Background())
	assert.Error(t, err)
}

func TestBreakdown(t *testing.T) {
	store := &fakeStore{
		allocated:   150,
		claimedBase: human(50),
		pools: []treasury.PoolBreakdown{
			{PoolName: "alpha", Allocated: 100, ClaimedBase: human(50)},
			{PoolName: "beta", Allocated: 50},
		},
	}
	r := treasury.New(store, &fakeBalance{base: human(100)}, nil, 9, nil)

	breakdown, err := r.Breakdown(context.Background())
	require.NoError(t, err)
	require.Len(t, breakdown.Pools, 2)
	assert.Equal(t, 50.0, breakdown.Pools[0].Claimed)
	assert.Equal(t, 50.0, breakdown.Pools[0].Outstanding)
	assert.Equal(t, 50.0, breakdown.Pools[1].Outstanding)
	assert.Equal(t, treasury.StatusWarning, breakdown.Report.Status)
}
