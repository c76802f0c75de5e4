package vault_test

import (
	"testing"

	"CollateralVault/internal/vault"
)

func TestDeriveAddress_Deterministic(t *testing.T) {
	addr1, nonce1 := vault.DeriveAddress("alice")
	addr2, nonce2 := vault.DeriveAddress("alice")

	if addr1 != addr2 {
		t.Errorf("address not stable: %q vs %q", addr1, addr2)
	}
	if nonce1 != nonce2 {
		t.Errorf("nonce not stable: %d vs %d", nonce1, nonce2)
	}
}

func TestDeriveAddress_DistinctOwners(t *testing.T) {
	addrA, _ := vault.DeriveAddress("alice")
	addrB, _ := vault.DeriveAddress("bob")

	if addrA == addrB {
		t.Error("distinct owners derived the same address")
	}
}

func TestCheckInvariants_Consistent(t *testing.T) {
	rec := vault.Record{
		Owner:            "alice",
		TotalBalance:     100,
		LockedBalance:    30,
		AvailableBalance: 70,
	}
	if err := rec.CheckInvariants(); err != nil {
		t.Errorf("unexpected violation: %v", err)
	}
}

func TestCheckInvariants_LockedExceedsTotal(t *testing.T) {
	rec := vault.Record{
		Owner:            "alice",
		TotalBalance:     10,
		LockedBalance:    20,
		AvailableBalance: 0,
	}
	if err := rec.CheckInvariants(); err == nil {
		t.Error("expected violation, got nil")
	}
}

func TestCheckInvariants_AvailableInconsistent(t *testing.T) {
	rec := vault.Record{
		Owner:            "alice",
		TotalBalance:     100,
		LockedBalance:    30,
		AvailableBalance: 71,
	}
	if err := rec.CheckInvariants(); err == nil {
		t.Error("expected violation, got nil")
	}
}
