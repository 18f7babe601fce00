package vesting

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Allocation is one wallet's computed entitlement before persistence.
type Allocation struct {
	Wallet   string   `json:"wallet"`
	Amount   float64  `json:"amount"`
	SharePct float64  `json:"share_pct"`
	Tier     int      `json:"tier"`
	NFTCount int      `json:"nft_count"`
	Sources  []string `json:"sources"`
}

// RuleFailure records a rule whose holder enumeration failed and was skipped.
type RuleFailure struct {
	RuleID       string `json:"rule_id"`
	CollectionID string `json:"collection_id"`
	Reason       string `json:"reason"`
}

// CalcResult is the output of an allocation computation.
type CalcResult struct {
	Allocations  map[string]*Allocation `json:"allocations"`
	SkippedRules []RuleFailure          `json:"skipped_rules,omitempty"`
}

// Wallets returns the allocated wallets in deterministic order.
func (r *CalcResult) Wallets() []string {
	wallets := make([]string, 0, len(r.Allocations))
	for w := range r.Allocations {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)
	return wallets
}

// Calculate evaluates the pool's rules against current holder sets and
// returns per-wallet allocations. Rules are independent: each enabled rule
// enumerates its collection's holders, drops wallets below the rule's
// threshold, and grants its amount to every remaining wallet.
//
// PERCENTAGE values are per-wallet shares of the pool size, not a split
// across the qualifying cohort. A pool can therefore be over-allocated; the
// treasury reconciler surfaces that rather than the calculator normalizing
// it away.
//
// A wallet satisfying several rules gets one allocation whose Sources lists
// every satisfied rule; amounts combine per the engine's merge policy.
func (e *Engine) Calculate(ctx context.Context, pool *Pool, rules []Rule) (*CalcResult, error) {
	if pool.Mode == ModeManual {
		return nil, fmt.Errorf("%w: manual pools do not run allocation computation", ErrPreconditionFailed)
	}
	if e.holders == nil {
		return nil, fmt.Errorf("%w: no holder enumeration service configured", ErrExternal)
	}

	result := &CalcResult{Allocations: make(map[string]*Allocation)}
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		holders, err := e.holders.GetHolders(ctx, rule.CollectionID)
		if err != nil {
			if e.skipped {
				e.log.Warn("skipping rule, holder enumeration failed",
					"pool", pool.ID, "rule", rule.ID, "collection", rule.CollectionID, "error", err)
				result.SkippedRules = append(result.SkippedRules, RuleFailure{
					RuleID:       rule.ID.String(),
					CollectionID: rule.CollectionID,
					Reason:       err.Error(),
				})
				continue
			}
			return nil, fmt.Errorf("%w: holder enumeration for collection %s: %v", ErrExternal, rule.CollectionID, err)
		}

		amount, sharePct, err := rule.amountFor(pool.TotalSize)
		if err != nil {
			return nil, err
		}

		for _, h := range holders {
			if h.HeldCount < rule.MinHeld {
				continue
			}
			e.mergeAllocation(result.Allocations, rule, h, amount, sharePct)
		}
	}
	return result, nil
}

func (e *Engine) mergeAllocation(allocs map[string]*Allocation, rule Rule, h Holder, amount, sharePct float64) {
	existing, ok := allocs[h.Wallet]
	if !ok {
		allocs[h.Wallet] = &Allocation{
			Wallet:   h.Wallet,
			Amount:   amount,
			SharePct: sharePct,
			Tier:     TierForCount(h.HeldCount),
			NFTCount: h.HeldCount,
			Sources:  []string{rule.ID.String()},
		}
		return
	}

	existing.Sources = append(existing.Sources, rule.ID.String())
	if h.HeldCount > existing.NFTCount {
		existing.NFTCount = h.HeldCount
		existing.Tier = TierForCount(h.HeldCount)
	}
	switch e.merge {
	case MergeHighest:
		if amount > existing.Amount {
			existing.Amount = amount
			existing.SharePct = sharePct
		}
	default: // MergeSum
		existing.Amount += amount
		existing.SharePct += sharePct
	}
}

// Preview runs the allocation computation for a pool without persisting
// anything. Operators use it to inspect a snapshot before committing.
func (e *Engine) Preview(ctx context.Context, poolID uuid.UUID) (*CalcResult, error) {
	pool, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	rules, err := e.store.ListRules(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return e.Calculate(ctx, pool, rules)
}
