package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const addressSeed = "CollateralVault:vault:v1"

// Record is the per-owner ledger state. It is the authoritative source of
// truth for an owner's collateral; the mirror store only caches it.
type Record struct {
	// Owner is the stable identity key (unique per record).
	Owner string

	// BackingAccount identifies the external custody account holding the
	// actual asset. Set once at creation, immutable afterwards.
	BackingAccount string

	TotalBalance     uint64
	LockedBalance    uint64
	AvailableBalance uint64

	// Lifetime monotonic counters.
	LifetimeDeposited uint64
	LifetimeWithdrawn uint64

	CreatedAt time.Time

	// Nonce makes the derived vault address reproducible from Owner alone.
	Nonce uint8
}

// DeriveAddress deterministically derives the vault address and nonce for
// an owner. Anyone holding only the owner identity can re-derive the same
// address at any time.
func DeriveAddress(owner string) (string, uint8) {
	seed := sha256.Sum256([]byte(addressSeed + ":" + owner))
	nonce := seed[len(seed)-1]

	h := sha256.New()
	h.Write([]byte(addressSeed))
	h.Write([]byte(owner))
	h.Write([]byte{nonce})

	return hex.EncodeToString(h.Sum(nil)), nonce
}

// Address returns the record's derived vault address.
func (r *Record) Address() string {
	addr, _ := DeriveAddress(r.Owner)
	return addr
}

// CheckInvariants verifies the record's balance invariants. Violations
// indicate a bug in the ledger, never a bad request.
func (r *Record) CheckInvariants() error {
	if r.LockedBalance > r.TotalBalance {
		return fmt.Errorf("vault %s: locked %d exceeds total %d",
			r.Owner, r.LockedBalance, r.TotalBalance)
	}
	if r.AvailableBalance != r.TotalBalance-r.LockedBalance {
		return fmt.Errorf("vault %s: available %d != total %d - locked %d",
			r.Owner, r.AvailableBalance, r.TotalBalance, r.LockedBalance)
	}
	// Lifetime counters are not cross-checked against the balances here:
	// transfers move balance between vaults without touching either
	// counter, so a receiver can legitimately withdraw more than it ever
	// deposited.
	return nil
}

// Clone returns a detached copy safe to hand outside the ledger's locks.
func (r *Record) Clone() Record {
	return *r
}
