package types

import "errors"

// Error taxonomy. Validation and state-precondition failures are terminal for
// the call that raised them; ErrNotClaimable is the one "try again later"
// case and callers are expected to discriminate with errors.Is.
var (
	// Validation errors. Rejected before any state change.
	ErrZeroAmount         = errors.New("amount must be positive")
	ErrZeroAddress        = errors.New("account must not be empty")
	ErrLossOutOfRange     = errors.New("max loss exceeds 10000 bps")
	ErrInvalidConfig      = errors.New("invalid vault config")
	ErrInvalidRate        = errors.New("rate must be positive")
	ErrWithdrawFeeTooHigh = errors.New("withdraw fee exceeds configured maximum")

	// State-precondition errors.
	ErrPaused           = errors.New("vault is paused")
	ErrUnauthorized     = errors.New("caller not authorized")
	ErrNotStrategist    = errors.New("caller is not the strategist")
	ErrNotOwner         = errors.New("caller is not the vault owner")
	ErrRequestNotFound  = errors.New("withdraw request not found")
	ErrNotClaimable     = errors.New("withdraw request not claimable yet")
	ErrSolverNotAllowed = errors.New("solver completion not enabled for request")
	ErrTooManyRequests  = errors.New("pending request limit reached for owner")
	ErrUpdateNotFound   = errors.New("update record not found")

	// Invariant violations.
	ErrSameBlockUpdate = errors.New("update already recorded for this timestamp")

	// Resource errors.
	ErrDepositCapExceeded = errors.New("deposit cap exceeded")
)
