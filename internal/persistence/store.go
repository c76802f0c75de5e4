// Package persistence owns the authoritative Postgres copy of vault
// records plus the reconciliation audit tables. Balances are stored as
// NUMERIC(20,0) and moved through database/sql as decimal strings, since
// the driver has no unsigned 64-bit type.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"CollateralVault/internal/vault"
)

// VaultStore reads and writes the vault_records table.
type VaultStore struct {
	db *sql.DB
}

func NewVaultStore(db *sql.DB) *VaultStore {
	return &VaultStore{db: db}
}

// UpsertBatch writes a batch of records using a multi-row INSERT.
// The batch must hold at most one row per owner; ON CONFLICT DO UPDATE
// rejects a statement touching the same row twice.
func (s *VaultStore) UpsertBatch(ctx context.Context, recs []vault.Record) error {
	if len(recs) == 0 {
		return nil
	}

	query := `INSERT INTO vault_records
		(owner, backing_account, total_balance, locked_balance, available_balance,
		 lifetime_deposited, lifetime_withdrawn, created_at, nonce, updated_at)
		VALUES `

	values := make([]string, 0, len(recs))
	args := make([]interface{}, 0, len(recs)*10)

	for i, r := range recs {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			r.Owner, r.BackingAccount,
			u64(r.TotalBalance), u64(r.LockedBalance), u64(r.AvailableBalance),
			u64(r.LifetimeDeposited), u64(r.LifetimeWithdrawn),
			r.CreatedAt, int16(r.Nonce), time.Now(),
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (owner) DO UPDATE SET
		total_balance = EXCLUDED.total_balance,
		locked_balance = EXCLUDED.locked_balance,
		available_balance = EXCLUDED.available_balance,
		lifetime_deposited = EXCLUDED.lifetime_deposited,
		lifetime_withdrawn = EXCLUDED.lifetime_withdrawn,
		updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// FetchRecord loads one owner's record. Returns vault.ErrNotFound when the
// owner has never been persisted.
func (s *VaultStore) FetchRecord(ctx context.Context, owner string) (vault.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT owner, backing_account, total_balance, locked_balance, available_balance,
		       lifetime_deposited, lifetime_withdrawn, created_at, nonce
		FROM vault_records WHERE owner = $1`, owner)

	var (
		rec                                            vault.Record
		total, locked, available, deposited, withdrawn string
		nonce                                          int16
	)
	err := row.Scan(&rec.Owner, &rec.BackingAccount,
		&total, &locked, &available, &deposited, &withdrawn,
		&rec.CreatedAt, &nonce)
	if err == sql.ErrNoRows {
		return vault.Record{}, vault.ErrNotFound
	}
	if err != nil {
		return vault.Record{}, fmt.Errorf("fetch record %s: %w", owner, err)
	}

	rec.Nonce = uint8(nonce)
	if rec.TotalBalance, err = parseU64(total); err != nil {
		return vault.Record{}, err
	}
	if rec.LockedBalance, err = parseU64(locked); err != nil {
		return vault.Record{}, err
	}
	if rec.AvailableBalance, err = parseU64(available); err != nil {
		return vault.Record{}, err
	}
	if rec.LifetimeDeposited, err = parseU64(deposited); err != nil {
		return vault.Record{}, err
	}
	if rec.LifetimeWithdrawn, err = parseU64(withdrawn); err != nil {
		return vault.Record{}, err
	}
	return rec, nil
}

// FetchAll loads every persisted record, used to rebuild the in-memory
// ledger on startup.
func (s *VaultStore) FetchAll(ctx context.Context) ([]vault.Record, error) {
	owners, err := s.ListOwners(ctx)
	if err != nil {
		return nil, err
	}

	recs := make([]vault.Record, 0, len(owners))
	for _, owner := range owners {
		rec, err := s.FetchRecord(ctx, owner)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// ListOwners returns every persisted owner.
func (s *VaultStore) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner FROM vault_records ORDER BY owner`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", s, err)
	}
	return v, nil
}
