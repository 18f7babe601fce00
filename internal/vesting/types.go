// Package vesting implements the vesting pool lifecycle and allocation
// reconciliation engine: pool state transitions, rule-based allocation
// computation, the idempotent commit pipeline, and dynamic membership
// reconciliation.
package vesting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PoolMode determines how a pool's memberships are produced.
type PoolMode string

const (
	// ModeManual pools have operator-entered allocations only.
	ModeManual PoolMode = "manual"
	// ModeSnapshot pools compute allocations once from holder data and lock.
	ModeSnapshot PoolMode = "snapshot"
	// ModeDynamic pools grow membership as new holders qualify.
	ModeDynamic PoolMode = "dynamic"
)

// Valid reports whether the mode is one of the known pool modes.
func (m PoolMode) Valid() bool {
	switch m {
	case ModeManual, ModeSnapshot, ModeDynamic:
		return true
	}
	return false
}

// PoolStatus is the lifecycle state of a pool.
type PoolStatus string

const (
	StatusActive    PoolStatus = "active"
	StatusPaused    PoolStatus = "paused"
	StatusCancelled PoolStatus = "cancelled"
)

// AllocationType tags how a rule's value translates into a per-wallet amount.
type AllocationType string

const (
	// AllocPercentage allocates poolSize * value / 100 to each qualifying
	// wallet. The value is a per-wallet share, not a cohort-wide split.
	AllocPercentage AllocationType = "PERCENTAGE"
	// AllocFixed allocates the value itself to each qualifying wallet.
	AllocFixed AllocationType = "FIXED"
)

// Pool is a vesting campaign with a fixed total size and time window.
type Pool struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	TotalSize     float64    `json:"total_size"`
	TokenMint     string     `json:"token_mint"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	CliffSeconds  int64      `json:"cliff_seconds"`
	Mode          PoolMode   `json:"mode"`
	Status        PoolStatus `json:"status"`
	SnapshotTaken bool       `json:"snapshot_taken"`
	EscrowID      *string    `json:"escrow_id,omitempty"`
	EscrowTxRef   *string    `json:"escrow_tx_ref,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Rule is one eligibility criterion inside a pool. Rules are independent;
// order within the pool does not affect evaluation.
type Rule struct {
	ID           uuid.UUID      `json:"id"`
	PoolID       uuid.UUID      `json:"pool_id"`
	CollectionID string         `json:"collection_id"`
	MinHeld      int            `json:"min_held"`
	AllocType    AllocationType `json:"alloc_type"`
	AllocValue   float64        `json:"alloc_value"`
	Enabled      bool           `json:"enabled"`
	CreatedAt    time.Time      `json:"created_at"`
}

// amountFor computes the per-wallet amount and share percentage this rule
// grants against the given pool size. Unknown allocation types are an error
// rather than a silent fallthrough.
func (r Rule) amountFor(poolSize float64) (amount, sharePct float64, err error) {
	switch r.AllocType {
	case AllocPercentage:
		amount = poolSize * r.AllocValue / 100
		sharePct = r.AllocValue
	case AllocFixed:
		amount = r.AllocValue
		if poolSize > 0 {
			sharePct = r.AllocValue / poolSize * 100
		}
	default:
		return 0, 0, fmt.Errorf("%w: unknown allocation type %q", ErrValidation, r.AllocType)
	}
	return amount, sharePct, nil
}

// Membership is one wallet's allocation within one pool. Memberships are
// never physically deleted; cancellation flips flags and records a reason.
type Membership struct {
	ID             uuid.UUID  `json:"id"`
	PoolID         uuid.UUID  `json:"pool_id"`
	Wallet         string     `json:"wallet"`
	Amount         float64    `json:"amount"`
	SharePct       float64    `json:"share_pct"`
	Tier           int        `json:"tier"`
	NFTCount       int        `json:"nft_count"`
	Sources        []string   `json:"sources"`
	IsActive       bool       `json:"is_active"`
	IsCancelled    bool       `json:"is_cancelled"`
	SnapshotLocked bool       `json:"snapshot_locked"`
	CancelReason   *string    `json:"cancel_reason,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Claim is an append-only ledger entry recording a settled claim against a
// membership. Amounts are in base units.
type Claim struct {
	ID           uuid.UUID `json:"id"`
	MembershipID uuid.UUID `json:"membership_id"`
	Wallet       string    `json:"wallet"`
	AmountBase   uint64    `json:"amount_base"`
	TxRef        string    `json:"tx_ref"`
	ClaimedAt    time.Time `json:"claimed_at"`
}

// Holder is one wallet's holding count within an NFT collection, as reported
// by the holder-enumeration service.
type Holder struct {
	Wallet    string `json:"wallet"`
	HeldCount int    `json:"held_count"`
}

// TierForCount derives a reporting tier from the NFT count backing an
// allocation.
func TierForCount(n int) int {
	switch {
	case n >= 10:
		return 3
	case n >= 3:
		return 2
	case n >= 1:
		return 1
	}
	return 0
}
