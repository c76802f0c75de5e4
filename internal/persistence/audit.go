package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CollateralVault/internal/vault"
)

// AuditStore writes the reconciler's append-only audit trail: one table
// for detected drift, one for per-pass balance snapshots. Rows are never
// updated or deleted.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// LogDrift records a mirror discrepancy for one owner.
func (s *AuditStore) LogDrift(ctx context.Context, owner, discrepancy string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_log (owner, discrepancy, logged_at)
		VALUES ($1, $2, $3)`,
		owner, discrepancy, at)
	if err != nil {
		return fmt.Errorf("log drift for %s: %w", owner, err)
	}
	return nil
}

// SnapshotBalance appends the authoritative balances observed for one
// owner during a reconciliation pass.
func (s *AuditStore) SnapshotBalance(ctx context.Context, rec vault.Record, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balance_snapshots (owner, total_balance, locked_balance, available_balance, snapshot_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.Owner, u64(rec.TotalBalance), u64(rec.LockedBalance), u64(rec.AvailableBalance), at)
	if err != nil {
		return fmt.Errorf("snapshot balance for %s: %w", rec.Owner, err)
	}
	return nil
}

// DriftCount returns the number of drift rows logged for an owner.
// Used by operational tooling and tests.
func (s *AuditStore) DriftCount(ctx context.Context, owner string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reconciliation_log WHERE owner = $1`, owner).Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return n, nil
}
