package vesting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Store is the engine's persistence port. The Postgres implementation lives
// in internal/store; tests use an in-memory implementation. InsertMembership
// must enforce at-most-one active membership per (pool, wallet) atomically
// and return ErrDuplicateActive on violation.
type Store interface {
	CreatePool(ctx context.Context, p *Pool) error
	GetPool(ctx context.Context, id uuid.UUID) (*Pool, error)
	ListPools(ctx context.Context) ([]*Pool, error)
	ListPoolsByStatus(ctx context.Context, status PoolStatus) ([]*Pool, error)
	UpdatePoolStatus(ctx context.Context, id uuid.UUID, status PoolStatus, at time.Time) error
	RenamePool(ctx context.Context, id uuid.UUID, name string, at time.Time) error
	// MarkSnapshotTaken flips snapshot_taken and reports whether this call
	// was the one that flipped it.
	MarkSnapshotTaken(ctx context.Context, id uuid.UUID) (bool, error)
	SetPoolEscrow(ctx context.Context, id uuid.UUID, escrowID, txRef string) error

	AddRule(ctx context.Context, r *Rule) error
	ListRules(ctx context.Context, poolID uuid.UUID) ([]Rule, error)
	SetRuleEnabled(ctx context.Context, poolID, ruleID uuid.UUID, enabled bool) error

	InsertMembership(ctx context.Context, m *Membership) error
	ListActiveMemberships(ctx context.Context, poolID uuid.UUID) ([]Membership, error)
	GetMembership(ctx context.Context, id uuid.UUID) (*Membership, error)
	CancelMembership(ctx context.Context, poolID uuid.UUID, wallet, reason string, at time.Time) error
	CancelPoolMemberships(ctx context.Context, poolID uuid.UUID, reason string, at time.Time) (int64, error)
	HasLockedMemberships(ctx context.Context, poolID uuid.UUID) (bool, error)
	LockPoolMemberships(ctx context.Context, poolID uuid.UUID) (int64, error)

	InsertClaim(ctx context.Context, c *Claim) error
	SumClaimsBase(ctx context.Context, membershipID uuid.UUID) (uint64, error)

	RecordAdminAction(ctx context.Context, wallet, action string, detail map[string]any) error
}

// HolderSource enumerates NFT holders of a collection.
type HolderSource interface {
	GetHolders(ctx context.Context, collectionID string) ([]Holder, error)
}

// EscrowProvider deploys and cancels on-chain vesting escrows.
type EscrowProvider interface {
	Deploy(ctx context.Context, totalAmount float64, start, end time.Time, name string) (escrowID, txRef string, err error)
	Cancel(ctx context.Context, escrowID string) error
}

// MergePolicy decides how amounts combine when a wallet qualifies under
// multiple rules in the same pool.
type MergePolicy string

const (
	// MergeSum adds amounts from every satisfied rule. Default.
	MergeSum MergePolicy = "sum"
	// MergeHighest keeps only the richest satisfied rule's amount.
	MergeHighest MergePolicy = "highest"
)

// Config configures the engine.
type Config struct {
	Store   Store
	Holders HolderSource
	Escrow  EscrowProvider // nil disables escrow integration
	Clock   clockwork.Clock
	Logger  *slog.Logger

	// Merge is the multi-rule merge policy. Defaults to MergeSum.
	Merge MergePolicy
	// SkipFailedRules makes holder-enumeration failures skip the failing
	// rule instead of aborting the whole computation.
	SkipFailedRules bool
	// EscrowTimeout bounds best-effort escrow calls during cancellation.
	EscrowTimeout time.Duration
	// Decimals of the vested token mint.
	Decimals uint8
}

func (cfg *Config) validate() error {
	if cfg.Store == nil {
		return fmt.Errorf("store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Merge == "" {
		cfg.Merge = MergeSum
	}
	if cfg.Merge != MergeSum && cfg.Merge != MergeHighest {
		return fmt.Errorf("unknown merge policy %q", cfg.Merge)
	}
	if cfg.EscrowTimeout <= 0 {
		cfg.EscrowTimeout = 10 * time.Second
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = 9
	}
	return nil
}

// Engine owns pool lifecycle transitions, allocation computation, the commit
// pipeline, and dynamic reconciliation.
type Engine struct {
	store    Store
	holders  HolderSource
	escrow   EscrowProvider
	clock    clockwork.Clock
	log      *slog.Logger
	merge    MergePolicy
	skipped  bool
	timeout  time.Duration
	decimals uint8
}

// NewEngine creates an engine from the given config.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	return &Engine{
		store:    cfg.Store,
		holders:  cfg.Holders,
		escrow:   cfg.Escrow,
		clock:    cfg.Clock,
		log:      cfg.Logger,
		merge:    cfg.Merge,
		skipped:  cfg.SkipFailedRules,
		timeout:  cfg.EscrowTimeout,
		decimals: cfg.Decimals,
	}, nil
}

// CreatePoolParams are the operator-supplied attributes of a new pool.
type CreatePoolParams struct {
	Name         string          `json:"name"`
	TotalSize    float64         `json:"total_size"`
	TokenMint    string          `json:"token_mint"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	CliffSeconds int64           `json:"cliff_seconds"`
	Mode         PoolMode        `json:"mode"`
	Rules        []NewRuleParams `json:"rules,omitempty"`
}

// NewRuleParams are the operator-supplied attributes of a new rule.
type NewRuleParams struct {
	CollectionID string         `json:"collection_id"`
	MinHeld      int            `json:"min_held"`
	AllocType    AllocationType `json:"alloc_type"`
	AllocValue   float64        `json:"alloc_value"`
	Enabled      *bool          `json:"enabled,omitempty"`
}

func (p NewRuleParams) validate() error {
	if p.CollectionID == "" {
		return fmt.Errorf("%w: rule collection_id is required", ErrValidation)
	}
	if p.MinHeld < 1 {
		return fmt.Errorf("%w: rule min_held must be at least 1", ErrValidation)
	}
	switch p.AllocType {
	case AllocPercentage:
		if p.AllocValue <= 0 || p.AllocValue > 100 {
			return fmt.Errorf("%w: percentage alloc_value must be in (0, 100]", ErrValidation)
		}
	case AllocFixed:
		if p.AllocValue <= 0 {
			return fmt.Errorf("%w: fixed alloc_value must be positive", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown allocation type %q", ErrValidation, p.AllocType)
	}
	return nil
}

// CreatePool validates and persists a new pool with its initial rules. Pools
// start active. Snapshot and manual pools accept rules only here; dynamic
// pools also accept them later via AddRule.
func (e *Engine) CreatePool(ctx context.Context, params CreatePoolParams) (*Pool, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if params.TotalSize <= 0 {
		return nil, fmt.Errorf("%w: total_size must be positive", ErrValidation)
	}
	if !params.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown pool mode %q", ErrValidation, params.Mode)
	}
	if params.TokenMint != "" {
		if _, err := solana.PublicKeyFromBase58(params.TokenMint); err != nil {
			return nil, fmt.Errorf("%w: invalid token mint: %v", ErrValidation, err)
		}
	}
	if !params.EndTime.After(params.StartTime) {
		return nil, fmt.Errorf("%w: end_time must be after start_time", ErrValidation)
	}
	if params.CliffSeconds < 0 {
		return nil, fmt.Errorf("%w: cliff_seconds must not be negative", ErrValidation)
	}
	if params.Mode == ModeManual && len(params.Rules) > 0 {
		return nil, fmt.Errorf("%w: manual pools do not take eligibility rules", ErrValidation)
	}
	for _, r := range params.Rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}

	now := e.clock.Now().UTC()
	pool := &Pool{
		ID:           uuid.New(),
		Name:         params.Name,
		TotalSize:    params.TotalSize,
		TokenMint:    params.TokenMint,
		StartTime:    params.StartTime.UTC(),
		EndTime:      params.EndTime.UTC(),
		CliffSeconds: params.CliffSeconds,
		Mode:         params.Mode,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreatePool(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	for _, rp := range params.Rules {
		rule := newRule(pool.ID, rp, now)
		if err := e.store.AddRule(ctx, &rule); err != nil {
			return nil, fmt.Errorf("failed to add rule: %w", err)
		}
	}
	e.log.Info("pool created", "pool", pool.ID, "mode", pool.Mode, "total_size", pool.TotalSize, "rules", len(params.Rules))
	return pool, nil
}

func newRule(poolID uuid.UUID, p NewRuleParams, now time.Time) Rule {
	enabled := true
	if p.Enabled != nil {
		enabled = *p.Enabled
	}
	return Rule{
		ID:           uuid.New(),
		PoolID:       poolID,
		CollectionID: p.CollectionID,
		MinHeld:      p.MinHeld,
		AllocType:    p.AllocType,
		AllocValue:   p.AllocValue,
		Enabled:      enabled,
		CreatedAt:    now,
	}
}

// AddRule appends an eligibility rule to a live pool. Only dynamic pools
// accept rule mutation after creation; snapshot and manual pool rules are
// fixed at creation.
func (e *Engine) AddRule(ctx context.Context, poolID uuid.UUID, params NewRuleParams) (*Rule, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	pool, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.Mode != ModeDynamic {
		return nil, fmt.Errorf("%w: rules may only be added to dynamic pools, pool is %s", ErrPreconditionFailed, pool.Mode)
	}
	if pool.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: pool is cancelled", ErrPreconditionFailed)
	}
	rule := newRule(poolID, params, e.clock.Now().UTC())
	if err := e.store.AddRule(ctx, &rule); err != nil {
		return nil, fmt.Errorf("failed to add rule: %w", err)
	}
	e.log.Info("rule added", "pool", poolID, "rule", rule.ID, "collection", rule.CollectionID, "type", rule.AllocType)
	return &rule, nil
}

// Rename changes a pool's display name. Cancelled pools stay frozen.
func (e *Engine) Rename(ctx context.Context, poolID uuid.UUID, name string) (*Pool, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	pool, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if pool.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: pool is cancelled", ErrPreconditionFailed)
	}
	now := e.clock.Now().UTC()
	if err := e.store.RenamePool(ctx, poolID, name, now); err != nil {
		return nil, fmt.Errorf("failed to rename pool: %w", err)
	}
	pool.Name = name
	pool.UpdatedAt = now
	return pool, nil
}

// SetRuleEnabled toggles a rule on a dynamic pool.
func (e *Engine) SetRuleEnabled(ctx context.Context, poolID, ruleID uuid.UUID, enabled bool) error {
	pool, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	if pool.Mode != ModeDynamic {
		return fmt.Errorf("%w: rules may only be mutated on dynamic pools, pool is %s", ErrPreconditionFailed, pool.Mode)
	}
	return e.store.SetRuleEnabled(ctx, poolID, ruleID, enabled)
}
