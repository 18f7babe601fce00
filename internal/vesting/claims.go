package vesting

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stratalabs/vestflow/internal/units"
)

// RecordClaim appends a claim settlement to a membership's ledger. Amounts
// are base units. The claimed total may never exceed the membership's
// allocation, compared in base units so the check is exact.
func (e *Engine) RecordClaim(ctx context.Context, membershipID uuid.UUID, amountBase uint64, txRef string) (*Claim, error) {
	if amountBase == 0 {
		return nil, fmt.Errorf("%w: amount_base must be positive", ErrValidation)
	}
	if txRef == "" {
		return nil, fmt.Errorf("%w: tx_ref is required", ErrValidation)
	}

	m, err := e.store.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if !m.IsActive {
		return nil, fmt.Errorf("%w: membership is not active", ErrPreconditionFailed)
	}

	claimed, err := e.store.SumClaimsBase(ctx, membershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum claims: %w", err)
	}
	entitlement := units.ToBase(m.Amount, e.decimals)
	if claimed+amountBase > entitlement {
		return nil, fmt.Errorf("%w: claim of %d base units exceeds remaining entitlement of %d",
			ErrPreconditionFailed, amountBase, entitlement-claimed)
	}

	claim := &Claim{
		ID:           uuid.New(),
		MembershipID: membershipID,
		Wallet:       m.Wallet,
		AmountBase:   amountBase,
		TxRef:        txRef,
		ClaimedAt:    e.clock.Now().UTC(),
	}
	if err := e.store.InsertClaim(ctx, claim); err != nil {
		return nil, fmt.Errorf("failed to insert claim: %w", err)
	}
	e.log.Info("claim recorded", "membership", membershipID, "wallet", m.Wallet, "amount_base", amountBase, "tx", txRef)
	return claim, nil
}
