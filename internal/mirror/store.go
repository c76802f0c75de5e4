// Package mirror implements the fast-read secondary copy of vault
// balances. The mirror is best-effort and non-authoritative: writes to
// it never gate a ledger commit, and the reconciler detects any drift
// between it and the authoritative store.
package mirror

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Read when the owner has no mirrored record.
var ErrMiss = errors.New("mirror: owner not mirrored")

// Record is the mirrored balance state for one owner.
type Record struct {
	Owner             string    `json:"owner"`
	TotalBalance      uint64    `json:"total_balance"`
	LockedBalance     uint64    `json:"locked_balance"`
	AvailableBalance  uint64    `json:"available_balance"`
	LifetimeDeposited uint64    `json:"lifetime_deposited"`
	LifetimeWithdrawn uint64    `json:"lifetime_withdrawn"`
	LastUpdated       time.Time `json:"last_updated"`
}

// Store is the mirror backend. Upsert overwrites the full record for an
// owner and Read returns it, or ErrMiss.
type Store interface {
	Upsert(ctx context.Context, rec Record) error
	Read(ctx context.Context, owner string) (Record, error)
	Owners(ctx context.Context) ([]string, error)
}
