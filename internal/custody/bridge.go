// Package custody models the external asset-custody collaborator: the
// account that actually holds the asset backing each vault. The ledger
// never commits a deposit or withdrawal unless the custody effect
// succeeded.
package custody

import (
	"context"
	"fmt"
	"sync"
)

// Bridge moves the external asset between owners and backing accounts.
type Bridge interface {
	// TransferIn moves amount of the external asset from the owner into
	// the backing account.
	TransferIn(ctx context.Context, backingAccount, owner string, amount uint64) error

	// TransferOut moves amount from the backing account back to the owner.
	TransferOut(ctx context.Context, backingAccount, owner string, amount uint64) error
}

// MemoryBridge is an in-process Bridge tracking backing-account totals.
// Used by tests and by single-process deployments where custody is
// co-located with the ledger.
type MemoryBridge struct {
	mu       sync.Mutex
	holdings map[string]uint64
}

func NewMemoryBridge() *MemoryBridge {
	return &MemoryBridge{holdings: make(map[string]uint64)}
}

func (b *MemoryBridge) TransferIn(ctx context.Context, backingAccount, owner string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.holdings[backingAccount] += amount
	return nil
}

func (b *MemoryBridge) TransferOut(ctx context.Context, backingAccount, owner string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	held := b.holdings[backingAccount]
	if held < amount {
		return fmt.Errorf("backing account %s holds %d, cannot release %d", backingAccount, held, amount)
	}
	b.holdings[backingAccount] = held - amount
	return nil
}

// Held returns the backing account's current holdings.
func (b *MemoryBridge) Held(backingAccount string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.holdings[backingAccount]
}
