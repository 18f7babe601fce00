package vesting

import "errors"

// Error categories surfaced by the engine. Callers match with errors.Is; the
// HTTP layer maps each category to a stable status code and error body.
// Batch operations that can partially succeed never return an error for the
// partial case; they return itemized success/failure breakdowns instead.
var (
	// ErrValidation marks missing or malformed input, rejected before any
	// side effect.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a referenced pool, rule, or membership that does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrPreconditionFailed marks a state-machine guard violation, e.g.
	// cancelling a locked snapshot pool or adding a rule to a non-dynamic
	// pool.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrDuplicateActive is returned by stores when an insert would create
	// a second active membership for the same (pool, wallet). The commit
	// pipeline treats it as a no-op success.
	ErrDuplicateActive = errors.New("wallet already has an active membership")

	// ErrExternal marks a failed holder-enumeration, escrow, or balance
	// lookup call.
	ErrExternal = errors.New("external collaborator error")
)
