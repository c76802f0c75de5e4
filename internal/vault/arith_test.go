package vault_test

import (
	"errors"
	"math"
	"testing"

	"CollateralVault/internal/vault"
)

func TestCheckedAdd(t *testing.T) {
	sum, err := vault.CheckedAdd(40, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum != 42 {
		t.Errorf("got %d, want 42", sum)
	}
}

func TestCheckedAdd_Overflow(t *testing.T) {
	_, err := vault.CheckedAdd(math.MaxUint64, 1)
	if !errors.Is(err, vault.ErrMathOverflow) {
		t.Errorf("got %v, want ErrMathOverflow", err)
	}
}

func TestCheckedAdd_MaxBoundary(t *testing.T) {
	sum, err := vault.CheckedAdd(math.MaxUint64, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum != math.MaxUint64 {
		t.Errorf("got %d, want MaxUint64", sum)
	}
}

func TestCheckedSub(t *testing.T) {
	diff, err := vault.CheckedSub(44, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff != 42 {
		t.Errorf("got %d, want 42", diff)
	}
}

func TestCheckedSub_Underflow(t *testing.T) {
	_, err := vault.CheckedSub(1, 2)
	if !errors.Is(err, vault.ErrMathOverflow) {
		t.Errorf("got %v, want ErrMathOverflow", err)
	}
}

func TestCheckedSub_ZeroBoundary(t *testing.T) {
	diff, err := vault.CheckedSub(7, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff != 0 {
		t.Errorf("got %d, want 0", diff)
	}
}
