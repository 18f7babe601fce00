// Package vestingtest provides in-memory fakes for engine tests. The memory
// store mirrors the Postgres store's contract, including the active
// (pool, wallet) uniqueness that backs commit idempotency.
package vestingtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratalabs/vestflow/internal/treasury"
	"github.com/stratalabs/vestflow/internal/vesting"
)

// MemStore is an in-memory vesting.Store.
type MemStore struct {
	mu          sync.Mutex
	pools       map[uuid.UUID]*vesting.Pool
	rules       map[uuid.UUID][]vesting.Rule
	memberships map[uuid.UUID]*vesting.Membership
	claims      []vesting.Claim
	actions     []AdminAction

	// InsertErr, keyed by wallet, injects membership insert failures.
	InsertErr map[string]error
}

// AdminAction is one recorded audit entry.
type AdminAction struct {
	Wallet string
	Action string
	Detail map[string]any
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		pools:       make(map[uuid.UUID]*vesting.Pool),
		rules:       make(map[uuid.UUID][]vesting.Rule),
		memberships: make(map[uuid.UUID]*vesting.Membership),
		InsertErr:   make(map[string]error),
	}
}

func (s *MemStore) CreatePool(ctx context.Context, p *vesting.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.pools[p.ID] = &cp
	return nil
}

func (s *MemStore) GetPool(ctx context.Context, id uuid.UUID) (*vesting.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok {
		return nil, vesting.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemStore) ListPools(ctx context.Context) ([]*vesting.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pools := []*vesting.Pool{}
	for _, p := range s.pools {
		cp := *p
		pools = append(pools, &cp)
	}
	return pools, nil
}

func (s *MemStore) ListPoolsByStatus(ctx context.Context, status vesting.PoolStatus) ([]*vesting.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pools := []*vesting.Pool{}
	for _, p := range s.pools {
		if p.Status == status {
			cp := *p
			pools = append(pools, &cp)
		}
	}
	return pools, nil
}

func (s *MemStore) UpdatePoolStatus(ctx context.Context, id uuid.UUID, status vesting.PoolStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok {
		return vesting.ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = at
	return nil
}

func (s *MemStore) RenamePool(ctx context.Context, id uuid.UUID, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok {
		return vesting.ErrNotFound
	}
	p.Name = name
	p.UpdatedAt = at
	return nil
}

func (s *MemStore) MarkSnapshotTaken(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok {
		return false, vesting.ErrNotFound
	}
	if p.SnapshotTaken {
		return false, nil
	}
	p.SnapshotTaken = true
	return true, nil
}

func (s *MemStore) SetPoolEscrow(ctx context.Context, id uuid.UUID, escrowID, txRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok {
		return vesting.ErrNotFound
	}
	p.EscrowID = &escrowID
	p.EscrowTxRef = &txRef
	return nil
}

func (s *MemStore) AddRule(ctx context.Context, r *vesting.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.PoolID] = append(s.rules[r.PoolID], *r)
	return nil
}

func (s *MemStore) ListRules(ctx context.Context, poolID uuid.UUID) ([]vesting.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]vesting.Rule{}, s.rules[poolID]...), nil
}

func (s *MemStore) SetRuleEnabled(ctx context.Context, poolID, ruleID uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rules := s.rules[poolID]
	for i := range rules {
		if rules[i].ID == ruleID {
			rules[i].Enabled = enabled
			return nil
		}
	}
	return vesting.ErrNotFound
}

func (s *MemStore) InsertMembership(ctx context.Context, m *vesting.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.InsertErr[m.Wallet]; ok {
		return err
	}
	for _, existing := range s.memberships {
		if existing.PoolID == m.PoolID && existing.Wallet == m.Wallet && existing.IsActive {
			return vesting.ErrDuplicateActive
		}
	}
	cp := *m
	s.memberships[m.ID] = &cp
	return nil
}

func (s *MemStore) ListActiveMemberships(ctx context.Context, poolID uuid.UUID) ([]vesting.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	memberships := []vesting.Membership{}
	for _, m := range s.memberships {
		if m.PoolID == poolID && m.IsActive {
			memberships = append(memberships, *m)
		}
	}
	return memberships, nil
}

func (s *MemStore) GetMembership(ctx context.Context, id uuid.UUID) (*vesting.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[id]
	if !ok {
		return nil, vesting.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemStore) CancelMembership(ctx context.Context, poolID uuid.UUID, wallet, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.PoolID == poolID && m.Wallet == wallet && m.IsActive {
			m.IsActive = false
			m.IsCancelled = true
			m.CancelReason = &reason
			m.CancelledAt = &at
			m.UpdatedAt = at
			return nil
		}
	}
	return vesting.ErrNotFound
}

func (s *MemStore) CancelPoolMemberships(ctx context.Context, poolID uuid.UUID, reason string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.memberships {
		if m.PoolID == poolID && m.IsActive {
			m.IsActive = false
			m.IsCancelled = true
			m.CancelReason = &reason
			m.CancelledAt = &at
			m.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (s *MemStore) HasLockedMemberships(ctx context.Context, poolID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.PoolID == poolID && m.SnapshotLocked {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) LockPoolMemberships(ctx context.Context, poolID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.memberships {
		if m.PoolID == poolID && m.IsActive && !m.SnapshotLocked {
			m.SnapshotLocked = true
			n++
		}
	}
	return n, nil
}

func (s *MemStore) InsertClaim(ctx context.Context, c *vesting.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims = append(s.claims, *c)
	return nil
}

func (s *MemStore) SumClaimsBase(ctx context.Context, membershipID uuid.UUID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum uint64
	for _, c := range s.claims {
		if c.MembershipID == membershipID {
			sum += c.AmountBase
		}
	}
	return sum, nil
}

func (s *MemStore) RecordAdminAction(ctx context.Context, wallet, action string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, AdminAction{Wallet: wallet, Action: action, Detail: detail})
	return nil
}

// TotalAllocated implements the treasury aggregate: active memberships of
// non-cancelled pools, in human units.
func (s *MemStore) TotalAllocated(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, m := range s.memberships {
		if !m.IsActive {
			continue
		}
		if p, ok := s.pools[m.PoolID]; ok && p.Status != vesting.StatusCancelled {
			total += m.Amount
		}
	}
	return total, nil
}

// TotalClaimedBase sums every claim record, in base units.
func (s *MemStore) TotalClaimedBase(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum uint64
	for _, c := range s.claims {
		sum += c.AmountBase
	}
	return sum, nil
}

// PoolBreakdown aggregates obligations per non-cancelled pool.
func (s *MemStore) PoolBreakdown(ctx context.Context) ([]treasury.PoolBreakdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPool := make(map[uuid.UUID]*treasury.PoolBreakdown)
	out := []treasury.PoolBreakdown{}
	for _, p := range s.pools {
		if p.Status == vesting.StatusCancelled {
			continue
		}
		byPool[p.ID] = &treasury.PoolBreakdown{PoolID: p.ID, PoolName: p.Name}
	}
	for _, m := range s.memberships {
		if b, ok := byPool[m.PoolID]; ok && m.IsActive {
			b.Allocated += m.Amount
		}
	}
	claimPool := make(map[uuid.UUID]uuid.UUID)
	for _, m := range s.memberships {
		claimPool[m.ID] = m.PoolID
	}
	for _, c := range s.claims {
		if b, ok := byPool[claimPool[c.MembershipID]]; ok {
			b.ClaimedBase += c.AmountBase
		}
	}
	for _, b := range byPool {
		out = append(out, *b)
	}
	return out, nil
}

// AdminActions returns the recorded audit entries.
func (s *MemStore) AdminActions() []AdminAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AdminAction{}, s.actions...)
}

// Claims returns all recorded claims.
func (s *MemStore) Claims() []vesting.Claim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]vesting.Claim{}, s.claims...)
}

// MembershipByWallet finds a pool's active membership for a wallet.
func (s *MemStore) MembershipByWallet(poolID uuid.UUID, wallet string) (*vesting.Membership, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.PoolID == poolID && m.Wallet == wallet && m.IsActive {
			cp := *m
			return &cp, true
		}
	}
	return nil, false
}

// AllMemberships returns every membership record, active or not.
func (s *MemStore) AllMemberships() []vesting.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	memberships := []vesting.Membership{}
	for _, m := range s.memberships {
		memberships = append(memberships, *m)
	}
	return memberships
}

// FakeHolders is an in-memory vesting.HolderSource.
type FakeHolders struct {
	mu       sync.Mutex
	Sets     map[string][]vesting.Holder
	Failures map[string]error
}

// NewFakeHolders creates a holder source from collection to holder sets.
func NewFakeHolders(sets map[string][]vesting.Holder) *FakeHolders {
	if sets == nil {
		sets = make(map[string][]vesting.Holder)
	}
	return &FakeHolders{Sets: sets, Failures: make(map[string]error)}
}

func (f *FakeHolders) GetHolders(ctx context.Context, collectionID string) ([]vesting.Holder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.Failures[collectionID]; ok {
		return nil, err
	}
	holders, ok := f.Sets[collectionID]
	if !ok {
		return nil, fmt.Errorf("unknown collection %s", collectionID)
	}
	return append([]vesting.Holder{}, holders...), nil
}

// FakeEscrow records escrow calls and can be told to fail.
type FakeEscrow struct {
	mu         sync.Mutex
	DeployErr  error
	CancelErr  error
	Deployed   []string
	Cancelled  []string
	NextEscrow string
}

func (f *FakeEscrow) Deploy(ctx context.Context, totalAmount float64, start, end time.Time, name string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeployErr != nil {
		return "", "", f.DeployErr
	}
	id := f.NextEscrow
	if id == "" {
		id = "esc-" + name
	}
	f.Deployed = append(f.Deployed, id)
	return id, "tx-" + id, nil
}

func (f *FakeEscrow) Cancel(ctx context.Context, escrowID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CancelErr != nil {
		return f.CancelErr
	}
	f.Cancelled = append(f.Cancelled, escrowID)
	return nil
}

// CancelledEscrows returns the escrow ids cancelled so far.
func (f *FakeEscrow) CancelledEscrows() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.Cancelled...)
}
