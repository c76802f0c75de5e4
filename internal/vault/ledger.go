package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CollateralVault/internal/custody"
	"CollateralVault/internal/event"
	"CollateralVault/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Update carries a committed record state toward the persistence worker.
type Update struct {
	Record Record
	Event  event.Event
}

// Ledger applies operations to Balance Records, enforcing invariants and
// authorization. Operations on the same owner are serialized; operations on
// different owners proceed in parallel. Transfer acquires both records in
// lexicographic owner order to avoid deadlock between opposing transfers.
//
// Every committed operation is pushed onto the updates channel with a
// BLOCKING send — the ledger stalls rather than lose an authoritative
// write. Event emission toward the outbound stream is best-effort
// (non-blocking, dropped with a metric when the publisher falls behind).
type Ledger struct {
	registry *Registry
	bridge   custody.Bridge
	updates  chan<- Update
	events   chan<- event.Event
	metrics  *observability.Metrics
	log      zerolog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu  sync.Mutex
	rec Record
}

func NewLedger(
	registry *Registry,
	bridge custody.Bridge,
	updates chan<- Update,
	events chan<- event.Event,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Ledger {
	return &Ledger{
		registry: registry,
		bridge:   bridge,
		updates:  updates,
		events:   events,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
		entries:  make(map[string]*entry),
	}
}

// Create makes a zeroed Balance Record for owner, tied to backingAccount.
// Re-creation for an existing owner fails with ErrAlreadyExists.
func (l *Ledger) Create(ctx context.Context, owner, backingAccount string) (Record, error) {
	start := time.Now()

	if owner == "" || backingAccount == "" {
		return Record{}, l.reject("create", ErrInvalidAmount, "invalid_input")
	}

	_, nonce := DeriveAddress(owner)

	l.mu.Lock()
	if _, ok := l.entries[owner]; ok {
		l.mu.Unlock()
		return Record{}, l.reject("create", ErrAlreadyExists, "already_exists")
	}
	e := &entry{rec: Record{
		Owner:          owner,
		BackingAccount: backingAccount,
		CreatedAt:      l.now(),
		Nonce:          nonce,
	}}
	l.entries[owner] = e
	l.mu.Unlock()

	l.commit("create", start, e.rec, nil)
	return e.rec.Clone(), nil
}

// Deposit moves amount of the external asset into the backing account and
// credits the vault. The custody effect and the balance mutation commit
// together or not at all: overflow is detected before the custody transfer,
// and a failed custody transfer leaves the record untouched.
func (l *Ledger) Deposit(ctx context.Context, owner string, amount uint64) (Record, error) {
	start := time.Now()

	if amount == 0 {
		return Record{}, l.reject("deposit", ErrInvalidAmount, "invalid_amount")
	}

	e, err := l.lookup(owner)
	if err != nil {
		return Record{}, l.reject("deposit", err, "not_found")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	newTotal, err := CheckedAdd(e.rec.TotalBalance, amount)
	if err != nil {
		return Record{}, l.reject("deposit", err, "overflow")
	}
	newAvailable, err := CheckedAdd(e.rec.AvailableBalance, amount)
	if err != nil {
		return Record{}, l.reject("deposit", err, "overflow")
	}
	newDeposited, err := CheckedAdd(e.rec.LifetimeDeposited, amount)
	if err != nil {
		return Record{}, l.reject("deposit", err, "overflow")
	}

	if err := l.bridge.TransferIn(ctx, e.rec.BackingAccount, owner, amount); err != nil {
		l.countReject("deposit", "custody")
		return Record{}, fmt.Errorf("custody transfer in: %w", err)
	}

	e.rec.TotalBalance = newTotal
	e.rec.AvailableBalance = newAvailable
	e.rec.LifetimeDeposited = newDeposited
	l.postCheck(&e.rec)

	evt := &event.Deposited{
		EventID:   uuid.New(),
		Account:   owner,
		Amount:    amount,
		NewTotal:  newTotal,
		Timestamp: l.now(),
	}
	l.commit("deposit", start, e.rec, evt)
	return e.rec.Clone(), nil
}

// Withdraw releases amount from available balance back to the owner.
// Locked funds are never withdrawable, and a full withdrawal is rejected
// while any collateral is locked — it would leave an orphaned lock.
func (l *Ledger) Withdraw(ctx context.Context, owner string, amount uint64) (Record, error) {
	start := time.Now()

	if amount == 0 {
		return Record{}, l.reject("withdraw", ErrInvalidAmount, "invalid_amount")
	}

	e, err := l.lookup(owner)
	if err != nil {
		return Record{}, l.reject("withdraw", err, "not_found")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec.AvailableBalance < amount {
		return Record{}, l.reject("withdraw", ErrInsufficientAvailableBalance, "insufficient_available")
	}
	if amount == e.rec.TotalBalance && e.rec.LockedBalance > 0 {
		return Record{}, l.reject("withdraw", ErrOpenPositionsExist, "open_positions")
	}

	newTotal, err := CheckedSub(e.rec.TotalBalance, amount)
	if err != nil {
		return Record{}, l.reject("withdraw", err, "overflow")
	}
	newAvailable, err := CheckedSub(e.rec.AvailableBalance, amount)
	if err != nil {
		return Record{}, l.reject("withdraw", err, "overflow")
	}
	newWithdrawn, err := CheckedAdd(e.rec.LifetimeWithdrawn, amount)
	if err != nil {
		return Record{}, l.reject("withdraw", err, "overflow")
	}

	if err := l.bridge.TransferOut(ctx, e.rec.BackingAccount, owner, amount); err != nil {
		l.countReject("withdraw", "custody")
		return Record{}, fmt.Errorf("custody transfer out: %w", err)
	}

	e.rec.TotalBalance = newTotal
	e.rec.AvailableBalance = newAvailable
	e.rec.LifetimeWithdrawn = newWithdrawn
	l.postCheck(&e.rec)

	evt := &event.Withdrawn{
		EventID:   uuid.New(),
		Account:   owner,
		Amount:    amount,
		NewTotal:  newTotal,
		Timestamp: l.now(),
	}
	l.commit("withdraw", start, e.rec, evt)
	return e.rec.Clone(), nil
}

// Lock moves amount from available to locked. Privileged: the caller must
// be in the registry, and the authorization check runs before any balance
// state is consulted so a rejected caller learns nothing about the vault.
func (l *Ledger) Lock(ctx context.Context, caller, owner string, amount uint64) (Record, error) {
	start := time.Now()

	if !l.registry.IsAuthorized(caller) {
		return Record{}, l.reject("lock", ErrUnauthorized, "unauthorized")
	}
	if amount == 0 {
		return Record{}, l.reject("lock", ErrInvalidAmount, "invalid_amount")
	}

	e, err := l.lookup(owner)
	if err != nil {
		return Record{}, l.reject("lock", err, "not_found")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec.AvailableBalance < amount {
		return Record{}, l.reject("lock", ErrInsufficientAvailableBalance, "insufficient_available")
	}

	newAvailable, err := CheckedSub(e.rec.AvailableBalance, amount)
	if err != nil {
		return Record{}, l.reject("lock", err, "overflow")
	}
	newLocked, err := CheckedAdd(e.rec.LockedBalance, amount)
	if err != nil {
		return Record{}, l.reject("lock", err, "overflow")
	}

	e.rec.AvailableBalance = newAvailable
	e.rec.LockedBalance = newLocked
	l.postCheck(&e.rec)

	evt := &event.Locked{
		EventID:   uuid.New(),
		Caller:    caller,
		Account:   owner,
		Amount:    amount,
		NewLocked: newLocked,
		Timestamp: l.now(),
	}
	l.commit("lock", start, e.rec, evt)
	return e.rec.Clone(), nil
}

// Unlock releases amount of locked collateral back to available.
// Privileged. Over-release surfaces as ErrInsufficientAvailableBalance.
func (l *Ledger) Unlock(ctx context.Context, caller, owner string, amount uint64) (Record, error) {
	start := time.Now()

	if !l.registry.IsAuthorized(caller) {
		return Record{}, l.reject("unlock", ErrUnauthorized, "unauthorized")
	}
	if amount == 0 {
		return Record{}, l.reject("unlock", ErrInvalidAmount, "invalid_amount")
	}

	e, err := l.lookup(owner)
	if err != nil {
		return Record{}, l.reject("unlock", err, "not_found")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec.LockedBalance < amount {
		return Record{}, l.reject("unlock", ErrInsufficientAvailableBalance, "insufficient_locked")
	}

	newLocked, err := CheckedSub(e.rec.LockedBalance, amount)
	if err != nil {
		return Record{}, l.reject("unlock", err, "overflow")
	}
	newAvailable, err := CheckedAdd(e.rec.AvailableBalance, amount)
	if err != nil {
		return Record{}, l.reject("unlock", err, "overflow")
	}

	e.rec.LockedBalance = newLocked
	e.rec.AvailableBalance = newAvailable
	l.postCheck(&e.rec)

	evt := &event.Unlocked{
		EventID:   uuid.New(),
		Caller:    caller,
		Account:   owner,
		Amount:    amount,
		NewLocked: newLocked,
		Timestamp: l.now(),
	}
	l.commit("unlock", start, e.rec, evt)
	return e.rec.Clone(), nil
}

// Transfer moves amount between two vaults' available balances.
// Privileged. Locked collateral never moves, and the sum of the two totals
// is conserved exactly. Both records mutate together or not at all.
func (l *Ledger) Transfer(ctx context.Context, caller, fromOwner, toOwner string, amount uint64) error {
	start := time.Now()

	if !l.registry.IsAuthorized(caller) {
		return l.reject("transfer", ErrUnauthorized, "unauthorized")
	}
	if amount == 0 || fromOwner == toOwner {
		return l.reject("transfer", ErrInvalidAmount, "invalid_amount")
	}

	from, err := l.lookup(fromOwner)
	if err != nil {
		return l.reject("transfer", err, "not_found")
	}
	to, err := l.lookup(toOwner)
	if err != nil {
		return l.reject("transfer", err, "not_found")
	}

	// Fixed lock order prevents deadlock when two transfers reference the
	// same pair of owners in opposite directions.
	first, second := from, to
	if toOwner < fromOwner {
		first, second = to, from
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if from.rec.AvailableBalance < amount {
		return l.reject("transfer", ErrInsufficientAvailableBalance, "insufficient_available")
	}

	fromTotal, err := CheckedSub(from.rec.TotalBalance, amount)
	if err != nil {
		return l.reject("transfer", err, "overflow")
	}
	fromAvailable, err := CheckedSub(from.rec.AvailableBalance, amount)
	if err != nil {
		return l.reject("transfer", err, "overflow")
	}
	toTotal, err := CheckedAdd(to.rec.TotalBalance, amount)
	if err != nil {
		return l.reject("transfer", err, "overflow")
	}
	toAvailable, err := CheckedAdd(to.rec.AvailableBalance, amount)
	if err != nil {
		return l.reject("transfer", err, "overflow")
	}

	from.rec.TotalBalance = fromTotal
	from.rec.AvailableBalance = fromAvailable
	to.rec.TotalBalance = toTotal
	to.rec.AvailableBalance = toAvailable
	l.postCheck(&from.rec)
	l.postCheck(&to.rec)

	evt := &event.Transferred{
		EventID:   uuid.New(),
		Caller:    caller,
		From:      fromOwner,
		To:        toOwner,
		Amount:    amount,
		Timestamp: l.now(),
	}
	// Both sides persist; the operation is counted once.
	l.sendUpdate(Update{Record: to.rec.Clone()})
	l.commit("transfer", start, from.rec, evt)
	return nil
}

// Restore loads persisted records into the ledger at startup, before any
// operation is served. Each record must satisfy the invariants.
func (l *Ledger) Restore(recs []Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range recs {
		if err := rec.CheckInvariants(); err != nil {
			return fmt.Errorf("restore %s: %w", rec.Owner, err)
		}
		l.entries[rec.Owner] = &entry{rec: rec}
	}
	return nil
}

// GetRecord returns a snapshot copy of the owner's record.
func (l *Ledger) GetRecord(owner string) (Record, error) {
	e, err := l.lookup(owner)
	if err != nil {
		return Record{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), nil
}

// Owners returns all owners known to the ledger.
func (l *Ledger) Owners() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	owners := make([]string, 0, len(l.entries))
	for owner := range l.entries {
		owners = append(owners, owner)
	}
	return owners
}

func (l *Ledger) lookup(owner string) (*entry, error) {
	l.mu.RLock()
	e, ok := l.entries[owner]
	l.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// postCheck runs after every mutation. An invariant violation here is a
// ledger bug, never bad input — halting beats corrupting balances.
func (l *Ledger) postCheck(rec *Record) {
	if err := rec.CheckInvariants(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}
}

func (l *Ledger) sendUpdate(u Update) {
	if l.updates != nil {
		l.updates <- u
	}
}

// commit records a successful operation: authoritative update (blocking),
// outbound event (best-effort), metrics.
func (l *Ledger) commit(op string, start time.Time, rec Record, evt event.Event) {
	l.sendUpdate(Update{Record: rec, Event: evt})

	if evt != nil && l.events != nil {
		select {
		case l.events <- evt:
		default:
			if l.metrics != nil {
				l.metrics.PublishDrops.Inc()
			}
			l.log.Warn().Str("op", op).Str("owner", rec.Owner).Msg("event dropped, publish channel full")
		}
	}

	if l.metrics != nil {
		l.metrics.OpsApplied.WithLabelValues(op).Inc()
		l.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (l *Ledger) reject(op string, err error, reason string) error {
	l.countReject(op, reason)
	return err
}

func (l *Ledger) countReject(op, reason string) {
	if l.metrics != nil {
		l.metrics.OpsRejected.WithLabelValues(op, reason).Inc()
	}
}
