package vault_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"CollateralVault/internal/custody"
	"CollateralVault/internal/event"
	"CollateralVault/internal/vault"

	"github.com/rs/zerolog"
)

func newTestLedger(t *testing.T, callers ...string) (*vault.Ledger, *custody.MemoryBridge) {
	t.Helper()

	reg := vault.NewRegistry()
	if err := reg.Initialize("admin", callers); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	bridge := custody.NewMemoryBridge()
	l := vault.NewLedger(reg, bridge, nil, nil, nil, zerolog.Nop())
	return l, bridge
}

func mustCreate(t *testing.T, l *vault.Ledger, owner string) {
	t.Helper()
	if _, err := l.Create(context.Background(), owner, "backing-"+owner); err != nil {
		t.Fatalf("create %s: %v", owner, err)
	}
}

func mustDeposit(t *testing.T, l *vault.Ledger, owner string, amount uint64) {
	t.Helper()
	if _, err := l.Deposit(context.Background(), owner, amount); err != nil {
		t.Fatalf("deposit %d to %s: %v", amount, owner, err)
	}
}

func checkRecord(t *testing.T, l *vault.Ledger, owner string) vault.Record {
	t.Helper()
	rec, err := l.GetRecord(owner)
	if err != nil {
		t.Fatalf("get record %s: %v", owner, err)
	}
	if err := rec.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	return rec
}

// ============================================================================
// Test: Create
// ============================================================================

func TestCreate_ZeroedRecord(t *testing.T) {
	l, _ := newTestLedger(t)
	mustCreate(t, l, "alice")

	rec := checkRecord(t, l, "alice")
	if rec.TotalBalance != 0 || rec.LockedBalance != 0 || rec.AvailableBalance != 0 {
		t.Errorf("new record not zeroed: %+v", rec)
	}
	if rec.BackingAccount != "backing-alice" {
		t.Errorf("backing account got %q", rec.BackingAccount)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}

	_, wantNonce := vault.DeriveAddress("alice")
	if rec.Nonce != wantNonce {
		t.Errorf("nonce got %d, want %d", rec.Nonce, wantNonce)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	l, _ := newTestLedger(t)
	mustCreate(t, l, "alice")

	_, err := l.Create(context.Background(), "alice", "other-backing")
	if !errors.Is(err, vault.ErrAlreadyExists) {
		t.Errorf("got %v, want ErrAlreadyExists", err)
	}
}

// ============================================================================
// Test: Deposit
// ============================================================================

func TestDeposit_CreditsBalances(t *testing.T) {
	l, bridge := newTestLedger(t)
	mustCreate(t, l, "alice")
	mustDeposit(t, l, "alice", 100)

	rec := checkRecord(t, l, "alice")
	if rec.TotalBalance != 100 || rec.AvailableBalance != 100 {
		t.Errorf("balances got total=%d available=%d, want 100/100", rec.TotalBalance, rec.AvailableBalance)
	}
	if rec.LifetimeDeposited != 100 {
		t.Errorf("lifetime deposited got %d, want 100", rec.LifetimeDeposited)
	}
	if held := bridge.Held("backing-alice"); held != 100 {
		t.Errorf("custody holds %d, want 100", held)
	}
}

func TestDeposit_ZeroAmount(t *testing.T) {
	l, _ := newTestLedger(t)
	mustCreate(t, l, "alice")

	_, err := l.Deposit(context.Background(), "alice", 0)
	if !errors.Is(err, vault.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

func TestDeposit_UnknownOwner(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Deposit(context.Background(), "ghost", 10)
	if !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestDeposit_Overflow(t *testing.T) {
	l, bridge := newTestLedger(t)
	mustCreate(t, l, "alice")
	mustDeposit(t, l, "alice", math.MaxUint64)

	_, err := l.Deposit(context.Background(), "alice", 1)
	if !errors.Is(err, vault.ErrMathOverflow) {
		t.Fatalf("got %v, want ErrMathOverflow", err)
	}

	// Rejection must leave both the record and custody untouched.
	rec := checkRecord(t, l, "alice")
	if rec.TotalBalance != math.MaxUint64 {
		t.Errorf("total changed by rejected deposit: %d", rec.TotalBalance)
	}
	if held := bridge.Held("backing-alice"); held != math.MaxUint64 {
		t.Errorf("custody changed by rejected deposit: %d", held)
	}
}

// ============================================================================
// Test: Withdraw
// ============================================================================

func TestWithdraw_DebitsBalances(t *testing.T) {
	l, bridge := newTestLedger(t)
	mustCreate(t, l, "alice")
	mustDeposit(t, l, "alice", 100)

	if _, err := l.Withdraw(context.Background(), "alice", 40); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	rec := checkRecord(t, l, "alice")
	if rec.TotalBalance != 60 || rec.AvailableBalance != 60 {
		t.Errorf("balances got total=%d available=%d, want 60/60", rec.TotalBalance, rec.AvailableBalance)
	}
	if rec.LifetimeWithdrawn != 40 {
		t.Errorf("lifetime withdrawn got %d, want 40", rec.LifetimeWithdrawn)
	}
	if held := bridge.Held("backing-alice"); held != 60 {
		t.Errorf("custody holds %d, want 60", held)
	}
}

func TestWithdraw_InsufficientAvailable(t *testing.T) {
	l, _ := newTestLedger(t, "engine")
	mustCreate(t, l, "alice")
	mustDeposit(t, l, "alice", 100)
	if _, err := l.Lock(context.Background(), "engine", "alice", 80); err != nil {
		t.Fatalf("lock: %v", err)
	}

	// 20 available, locked funds are not withdrawable.
	_, err := l.Withdraw(context.Background(), "alice", 21)
	if !errors.Is(err, vault.ErrInsufficientAvailableBalance) {
		t.Errorf("got %v, want ErrInsufficientAvailableBalance", err)
	}
}

func TestWithdraw_FullWithLockedCollateral(t *testing.T) {
	l, _ := newTestLedger(t, "engine")
	mustCreate(t, l, "alice")
	mustDeposit(t, l, "alice", 100)
	if _, err := l.Lock(context.Background(), "engine", "alice", 1); err != nil {
		t.Fatalf("lock: %v", err)
	}

	_, err := l.Withdraw(context.Background(), "alice", 100)
	if !errors.Is(err, vault.ErrOpenPositionsExist) {
		t.Errorf("got %v, want ErrOpenPositionsExist", err)
	}
}

func TestWithdraw_FullWhenNothingLocked(t *testing.T) {
	l, _ := newTestLedger(t)
	mustCreate(t, l, "alice")
	mustDeposit(t, l, "alice", 100)

	if _, err := l.Withdraw(context.Background(), "alice", 100); err != nil {
		t.Fatalf("full withdrawal: %v", err)
	}

	rec := checkRecord(t, l, "alice")
	if rec.TotalBalance != 0 {
		t.Errorf("total got %d, want 0", rec.TotalBalance)
	}
}

func TestWithdraw_CustodyFailureLeavesRecordUntouched(t *testing.T) {
	l, _ := newTestLedger(t)

	// Restored balance with no custody backing: the transfer out fails
	// and the commit must not happen.
	if err := l.Restore([]vault.Record{{
		Owner:            "alice",
		BackingAccount:   "backing-alice",
		TotalBalance:     50,
		AvailableBalance: 50,
		CreatedAt:        time.Now(),
	}}); err != nil {
		t.Fatalf("restore: %v", err)
	}

	_, err := l.Withdraw(context.Background(), "alice", 50)
	if err == nil {
		t.Fatal("expected custody error")
	}

	rec := checkRecord(t, l, "alice")
	if rec.TotalBalance != 50 || rec.LifetimeWithdrawn != 0 {
		t.Errorf("failed withdrawal mutated record: %+v", rec)
	}
}

// ============================================================================
// Test: Lock / Unlock
// ============================================================================

func TestLock_MovesAvailableToLocked(t *testing.T) {
	l, _ := newTestLedger(t, "engine")
	mustCreate(t, l, "alice")
	mustDeposit(t, l, "alice", 100)

	if _, err := l.Lock(context.Background(), "engine", "alice", 30); err != nil {
		t.Fatalf("lock: %v", err)
	}

	rec := checkRecord(t, l, "alice")
	if rec.TotalBalance != 100 || rec.LockedBalance != 30 || rec.AvailableBalance != 70 {
		t.Errorf("got total=%d locked=%d available=%d, want 100/30/70",
			rec.TotalBalance, rec.LockedBalance, rec.AvailableBalance)
	}
}

func TestLock_Unauthorized(t *testing.T) {
	l, _ := newTestLedger(t, "engine")
	mustCreate(t, l, "alice")
	mustDeposit(t, l, "alice", 100)

	_, err := l.Lock(context.Background(), "stranger", "alice", 10)
	if !errors.Is(err, vault.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestLock_UnauthorizedBeforeLookup(t *testing.T) {
	l, _ := newTestLedger(t, "engine")

	// The caller check runs first: an unauthorized caller gets
	// ErrUnauthorized even for an owner that does not exist.
	_, err := l.Lock(context.Background(), "stranger", "ghost", 10)
	if !errors.Is(err, vault.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestLock_InsufficientAvailable(t *testing.T) {
	l, _ := newTestLedger(t, "engine")
	mustCreate(t, l, "alice")
	mustDeposit(t, l, "alice", 20)

	_, err := l.Lock(context.Background(), "engine", "alice", 21)
	if !errors.Is(err, vault.ErrInsufficientAvailableBalance) {
		t.Errorf("got %v, want ErrInsufficientAvailableBalance", err)
	}
}

func TestUnlock_ReleasesLocked(t *testing.T) {
	l, _ := newTestLedger(t, "engine")
	mustCreate(t, l, "alice")
	mustDeposit(t, l, "alice", 100)
	if _, err := l.Lock(context.Background(), "engine", "alice", 30); err != nil {
		t.Fatalf("lock: %v", err)
	}

	if _, err := l.Unlock(context.Background(), "engine", "alice", 30); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	rec := checkRecord(t, l, "alice")
	if rec.LockedBalance != 0 || rec.AvailableBalance != 100 {
		t.Errorf("got locked=%d available=%d, want 0/100", rec.LockedBalance, rec.AvailableBalance)
	}
}

func TestUnlock_OverRelease(t *testing.T) {
	l, _ := newTestLedger(t, "engine")
	mustCreate(t, l, "alice")
	mustDeposit(t, l, "alice", 100)
	if _, err := l.Lock(context.Background(), "engine", "alice", 30); err != nil {
		t.Fatalf("lock: %v", err)
	}

	_, err := l.Unlock(context.Background(), "engine", "alice", 31)
	if !errors.Is(err, vault.ErrInsufficientAvailableBalance) {
		t.Errorf("got %v, want ErrInsufficientAvailableBalance", err)
	}
}

// ============================================================================
// Test: Transfer
// ============================================================================

func TestTransfer_Conservation(t *testing.T) {
	l, _ := newTestLedger(t, "engine")
	mustCreate(t, l, "alice")
	mustCreate(t, l, "bob")
	mustDeposit(t, l, "alice", 100)
	mustDeposit(t, l, "bob", 50)

	if err := l.Transfer(context.Background(), "engine", "alice", "bob", 40); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	a := checkRecord(t, l, "alice")
	b := checkRecord(t, l, "bob")
	if a.TotalBalance != 60 || b.TotalBalance != 90 {
		t.Errorf("got alice=%d bob=%d, want 60/90", a.TotalBalance, b.TotalBalance)
	}
	if a.TotalBalance+b.TotalBalance != 150 {
		t.Errorf("conservation broken: sum=%d, want 150", a.TotalBalance+b.TotalBalance)
	}
}

func TestTransfer_LockedDoesNotMove(t *testing.T) {
	l, _ := newTestLedger(t, "engine")
	mustCreate(t, l, "alice")
	mustCreate(t, l, "bob")
	mustDeposit(t, l, "alice", 100)
	if _, err := l.Lock(context.Background(), "engine", "alice", 70); err != nil {
		t.Fatalf("lock: %v", err)
	}

	err := l.Transfer(context.Background(), "engine", "alice", "bob", 31)
	if !errors.Is(err, vault.ErrInsufficientAvailableBalance) {
		t.Fatalf("got %v, want ErrInsufficientAvailableBalance", err)
	}

	a := checkRecord(t, l, "alice")
	if a.LockedBalance != 70 {
		t.Errorf("locked got %d, want 70", a.LockedBalance)
	}
}

func TestTransfer_Unauthorized(t *testing.T) {
	l, _ := newTestLedger(t, "engine")
	mustCreate(t, l, "alice")
	mustCreate(t, l, "bob")
	mustDeposit(t, l, "alice", 100)

	err := l.Transfer(context.Background(), "stranger", "alice", "bob", 10)
	if !errors.Is(err, vault.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestTransfer_SelfTransfer(t *testing.T) {
	l, _ := newTestLedger(t, "engine")
	mustCreate(t, l, "alice")
	mustDeposit(t, l, "alice", 100)

	err := l.Transfer(context.Background(), "engine", "alice", "alice", 10)
	if !errors.Is(err, vault.ErrInvalidAmount) {
		t.Errorf("got %v, want ErrInvalidAmount", err)
	}
}

func TestTransfer_OpposingDirectionsNoDeadlock(t *testing.T) {
	l, _ := newTestLedger(t, "engine")
	mustCreate(t, l, "alice")
	mustCreate(t, l, "bob")
	mustDeposit(t, l, "alice", 10_000)
	mustDeposit(t, l, "bob", 10_000)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		from, to := "alice", "bob"
		if i == 1 {
			from, to = "bob", "alice"
		}
		wg.Add(1)
		go func(from, to string) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				l.Transfer(context.Background(), "engine", from, to, 1)
			}
		}(from, to)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("opposing transfers deadlocked")
	}

	a := checkRecord(t, l, "alice")
	b := checkRecord(t, l, "bob")
	if a.TotalBalance+b.TotalBalance != 20_000 {
		t.Errorf("conservation broken: sum=%d, want 20000", a.TotalBalance+b.TotalBalance)
	}
}

// ============================================================================
// Test: Event emission and updates
// ============================================================================

func TestDeposit_EmitsEventAndUpdate(t *testing.T) {
	reg := vault.NewRegistry()
	if err := reg.Initialize("admin", nil); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	updates := make(chan vault.Update, 16)
	events := make(chan event.Event, 16)
	l := vault.NewLedger(reg, custody.NewMemoryBridge(), updates, events, nil, zerolog.Nop())

	mustCreate(t, l, "alice")
	<-updates // creation update
	mustDeposit(t, l, "alice", 100)

	update := <-updates
	if update.Record.TotalBalance != 100 {
		t.Errorf("update total got %d, want 100", update.Record.TotalBalance)
	}

	evt := <-events
	dep, ok := evt.(*event.Deposited)
	if !ok {
		t.Fatalf("got %T, want *event.Deposited", evt)
	}
	if dep.Account != "alice" || dep.Amount != 100 || dep.NewTotal != 100 {
		t.Errorf("unexpected event: %+v", dep)
	}
	if dep.IdempotencyKey() == "" {
		t.Error("event missing idempotency key")
	}
}

func TestRejectedOperation_EmitsNothing(t *testing.T) {
	reg := vault.NewRegistry()
	if err := reg.Initialize("admin", nil); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	updates := make(chan vault.Update, 16)
	events := make(chan event.Event, 16)
	l := vault.NewLedger(reg, custody.NewMemoryBridge(), updates, events, nil, zerolog.Nop())

	mustCreate(t, l, "alice")
	<-updates

	if _, err := l.Withdraw(context.Background(), "alice", 10); err == nil {
		t.Fatal("expected rejection")
	}

	select {
	case u := <-updates:
		t.Errorf("rejected op produced update: %+v", u)
	case e := <-events:
		t.Errorf("rejected op produced event: %+v", e)
	default:
	}
}
