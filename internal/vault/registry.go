package vault

import "sync"

// MaxAuthorizedCallers bounds the registry. The cap is enforced at
// initialization and on every replacement — the set can never grow
// open-ended.
const MaxAuthorizedCallers = 16

// Registry is the allow-list of caller identities permitted to invoke the
// privileged operations (lock, unlock, transfer). There is at most one
// instance per ledger. The set is written whole — readers never observe a
// partially written caller set.
type Registry struct {
	mu          sync.RWMutex
	initialized bool
	admin       string
	callers     map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Initialize stores the caller set once. A second initialization fails with
// ErrAlreadyExists; more than MaxAuthorizedCallers fails with
// ErrInvalidAmount.
func (r *Registry) Initialize(admin string, callers []string) error {
	if len(callers) > MaxAuthorizedCallers {
		return ErrInvalidAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return ErrAlreadyExists
	}

	r.admin = admin
	r.callers = make(map[string]struct{}, len(callers))
	for _, c := range callers {
		r.callers[c] = struct{}{}
	}
	r.initialized = true
	return nil
}

// Replace swaps the full caller set. Mutation is modeled as whole-set
// replacement requiring the initializing admin, so membership changes carry
// the same authority as creation.
func (r *Registry) Replace(admin string, callers []string) error {
	if len(callers) > MaxAuthorizedCallers {
		return ErrInvalidAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return ErrNotFound
	}
	if admin != r.admin {
		return ErrUnauthorized
	}

	next := make(map[string]struct{}, len(callers))
	for _, c := range callers {
		next[c] = struct{}{}
	}
	r.callers = next
	return nil
}

// IsAuthorized reports whether caller may invoke privileged operations.
func (r *Registry) IsAuthorized(caller string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.callers[caller]
	return ok
}

// Size returns the current caller count.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.callers)
}
