package mirror_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"CollateralVault/internal/mirror"
)

func TestMemoryStore_UpsertAndRead(t *testing.T) {
	s := mirror.NewMemoryStore()
	ctx := context.Background()

	rec := mirror.Record{
		Owner:            "alice",
		TotalBalance:     100,
		LockedBalance:    30,
		AvailableBalance: 70,
		LastUpdated:      time.Now(),
	}
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.Read(ctx, "alice")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.TotalBalance != 100 || got.LockedBalance != 30 || got.AvailableBalance != 70 {
		t.Errorf("got %+v", got)
	}
}

func TestMemoryStore_ReadMiss(t *testing.T) {
	s := mirror.NewMemoryStore()

	_, err := s.Read(context.Background(), "ghost")
	if !errors.Is(err, mirror.ErrMiss) {
		t.Errorf("got %v, want ErrMiss", err)
	}
}

func TestMemoryStore_UpsertOverwrites(t *testing.T) {
	s := mirror.NewMemoryStore()
	ctx := context.Background()

	s.Upsert(ctx, mirror.Record{Owner: "alice", TotalBalance: 1})
	s.Upsert(ctx, mirror.Record{Owner: "alice", TotalBalance: 2})

	got, err := s.Read(ctx, "alice")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.TotalBalance != 2 {
		t.Errorf("total got %d, want 2", got.TotalBalance)
	}
}

func TestMemoryStore_Owners(t *testing.T) {
	s := mirror.NewMemoryStore()
	ctx := context.Background()

	s.Upsert(ctx, mirror.Record{Owner: "bob"})
	s.Upsert(ctx, mirror.Record{Owner: "alice"})

	owners, err := s.Owners(ctx)
	if err != nil {
		t.Fatalf("owners: %v", err)
	}
	if len(owners) != 2 || owners[0] != "alice" || owners[1] != "bob" {
		t.Errorf("got %v, want [alice bob]", owners)
	}
}
