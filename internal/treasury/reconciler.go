// Package treasury computes the treasury's solvency against outstanding
// vesting allocations.
package treasury

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stratalabs/vestflow/internal/metrics"
	"github.com/stratalabs/vestflow/internal/units"
)

// Status classifies the treasury's ability to honor outstanding claims.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// healthyBufferRatio is the buffer, as a fraction of the amount still owed,
// above which the treasury counts as healthy.
const healthyBufferRatio = 0.2

// BalanceSource reports the treasury token account's on-chain balance in
// base units. An absent account reads as zero.
type BalanceSource interface {
	TreasuryBalanceBase(ctx context.Context) (uint64, error)
}

// Store aggregates allocation and claim data for solvency computation.
type Store interface {
	// TotalAllocated sums active memberships' token amounts across all
	// non-cancelled pools, in human units. Derived on read, never cached.
	TotalAllocated(ctx context.Context) (float64, error)
	// TotalClaimedBase sums all claim records, in base units.
	TotalClaimedBase(ctx context.Context) (uint64, error)
	PoolBreakdown(ctx context.Context) ([]PoolBreakdown, error)
}

// Alerter delivers critical-solvency notifications. Delivery is best
// effort; implementations log their own failures.
type Alerter interface {
	Critical(ctx context.Context, r *Report)
}

// Report is one solvency computation. All amounts are human units.
type Report struct {
	Balance         float64 `json:"balance"`
	TotalAllocated  float64 `json:"total_allocated"`
	TotalClaimed    float64 `json:"total_claimed"`
	RemainingNeeded float64 `json:"remaining_needed"`
	Buffer          float64 `json:"buffer"`
	BufferPct       float64 `json:"buffer_pct"`
	Status          Status  `json:"status"`
}

// PoolBreakdown is one pool's share of the outstanding obligation.
type PoolBreakdown struct {
	PoolID      uuid.UUID `json:"pool_id"`
	PoolName    string    `json:"pool_name"`
	Allocated   float64   `json:"allocated"`
	ClaimedBase uint64    `json:"claimed_base"`
	Claimed     float64   `json:"claimed"`
	Outstanding float64   `json:"outstanding"`
}

// BreakdownReport is the per-pool view of the treasury's obligations.
type BreakdownReport struct {
	Report *Report         `json:"report"`
	Pools  []PoolBreakdown `json:"pools"`
}

// Reconciler aggregates on-chain balance, allocations, and claims into a
// solvency verdict.
type Reconciler struct {
	store    Store
	balances BalanceSource
	alerter  Alerter
	decimals uint8
	log      *slog.Logger
}

// New creates a reconciler. The alerter may be nil.
func New(store Store, balances BalanceSource, alerter Alerter, decimals uint8, log *slog.Logger) *Reconciler {
	if decimals == 0 {
		decimals = units.DefaultDecimals
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: store, balances: balances, alerter: alerter, decimals: decimals, log: log}
}

// Status computes the current solvency report. The classification gates
// urgent operational decisions, so it is recomputed on every call and never
// cached.
func (r *Reconciler) Status(ctx context.Context) (*Report, error) {
	balanceBase, err := r.balances.TreasuryBalanceBase(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch treasury balance: %w", err)
	}
	totalAllocated, err := r.store.TotalAllocated(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sum allocations: %w", err)
	}
	claimedBase, err := r.store.TotalClaimedBase(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sum claims: %w", err)
	}

	report := classify(units.ToHuman(balanceBase, r.decimals), totalAllocated, units.ToHuman(claimedBase, r.decimals))

	switch report.Status {
	case StatusHealthy:
		metrics.TreasuryStatus.Set(0)
	case StatusWarning:
		metrics.TreasuryStatus.Set(1)
	case StatusCritical:
		metrics.TreasuryStatus.Set(2)
		if r.alerter != nil {
			r.alerter.Critical(ctx, report)
		}
	}
	metrics.TreasuryBuffer.Set(report.Buffer)

	return report, nil
}

// Breakdown computes the solvency report plus per-pool obligations.
func (r *Reconciler) Breakdown(ctx context.Context) (*BreakdownReport, error) {
	report, err := r.Status(ctx)
	if err != nil {
		return nil, err
	}
	pools, err := r.store.PoolBreakdown(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute pool breakdown: %w", err)
	}
	for i := range pools {
		pools[i].Claimed = units.ToHuman(pools[i].ClaimedBase, r.decimals)
		pools[i].Outstanding = pools[i].Allocated - pools[i].Claimed
	}
	return &BreakdownReport{Report: report, Pools: pools}, nil
}

func classify(balance, totalAllocated, totalClaimed float64) *Report {
	remaining := totalAllocated - totalClaimed
	buffer := balance - remaining

	report := &Report{
		Balance:         balance,
		TotalAllocated:  totalAllocated,
		TotalClaimed:    totalClaimed,
		RemainingNeeded: remaining,
		Buffer:          buffer,
	}
	if remaining > 0 {
		report.BufferPct = buffer / remaining * 100
	}

	switch {
	case buffer < 0:
		report.Status = StatusCritical
	case buffer >= healthyBufferRatio*remaining:
		report.Status = StatusHealthy
	default:
		report.Status = StatusWarning
	}
	return report
}
