package vault

import "errors"

// Operation errors. These are returned verbatim to the caller — the
// routing layer maps them to response codes and must never collapse
// them into a generic failure.
var (
	// ErrInvalidAmount rejects zero amounts and registry configurations
	// exceeding their bound. Caller must correct input.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnauthorized rejects privileged operations (lock/unlock/transfer)
	// from callers outside the registry.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientAvailableBalance rejects operations asking for more
	// than is currently available (or locked, for unlock).
	ErrInsufficientAvailableBalance = errors.New("insufficient available balance")

	// ErrOpenPositionsExist rejects a full withdrawal while collateral is
	// still locked — it would orphan the lock.
	ErrOpenPositionsExist = errors.New("open positions exist")

	// ErrMathOverflow means a checked add/sub would leave the uint64 range.
	// Treated as a logic/config error; the operation aborts with no
	// partial mutation.
	ErrMathOverflow = errors.New("math overflow")

	// ErrAlreadyExists rejects duplicate vault creation or duplicate
	// registry initialization.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound is returned for queries against a missing record.
	ErrNotFound = errors.New("not found")
)
