// Package reconciler periodically compares the fast-read mirror against
// the authoritative store, logging drift and appending balance snapshots.
// A pass is read-only against balances: detection is recorded, healing
// happens on the query read path.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"CollateralVault/internal/mirror"
	"CollateralVault/internal/observability"
	"CollateralVault/internal/vault"

	"github.com/rs/zerolog"
)

const (
	DefaultInterval      = 60 * time.Second
	DefaultFetchAttempts = 4
	DefaultFetchBackoff  = 250 * time.Millisecond
)

// Source is the authoritative balance store the reconciler trusts.
type Source interface {
	ListOwners(ctx context.Context) ([]string, error)
	FetchRecord(ctx context.Context, owner string) (vault.Record, error)
}

// Auditor receives the reconciler's findings.
type Auditor interface {
	LogDrift(ctx context.Context, owner, discrepancy string, at time.Time) error
	SnapshotBalance(ctx context.Context, rec vault.Record, at time.Time) error
}

// Reconciler walks every known owner on a fixed interval. Owners are
// processed independently: a fetch failure for one owner is logged and
// skipped without touching the rest of the pass.
type Reconciler struct {
	source        Source
	auditor       Auditor
	mirror        mirror.Store
	interval      time.Duration
	fetchAttempts int
	fetchBackoff  time.Duration
	metrics       *observability.Metrics
	log           zerolog.Logger
	now           func() time.Time

	mu         sync.Mutex
	ownerLocks map[string]*sync.Mutex
}

func New(
	source Source,
	auditor Auditor,
	mirrorStore mirror.Store,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		source:        source,
		auditor:       auditor,
		mirror:        mirrorStore,
		interval:      DefaultInterval,
		fetchAttempts: DefaultFetchAttempts,
		fetchBackoff:  DefaultFetchBackoff,
		metrics:       metrics,
		log:           log,
		now:           time.Now,
		ownerLocks:    make(map[string]*sync.Mutex),
	}
}

// SetInterval overrides the pass interval. Must be called before Run.
func (r *Reconciler) SetInterval(d time.Duration) { r.interval = d }

// SetFetchPolicy overrides the per-owner fetch retry budget.
func (r *Reconciler) SetFetchPolicy(attempts int, backoff time.Duration) {
	r.fetchAttempts = attempts
	r.fetchBackoff = backoff
}

// Run executes a pass immediately, then on every interval tick until ctx
// is cancelled. Pass errors are logged, never fatal.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.Pass(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.log.Error().Err(err).Msg("reconciliation pass failed")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Pass(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error().Err(err).Msg("reconciliation pass failed")
			}
		}
	}
}

// Pass reconciles every owner once. Reconciling an already consistent
// pair finds no drift and only appends one more snapshot per owner, so
// back-to-back passes are harmless.
func (r *Reconciler) Pass(ctx context.Context) error {
	start := time.Now()

	owners, err := r.source.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("enumerate owners: %w", err)
	}

	var drifted, skipped int
	for _, owner := range owners {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		found, err := r.reconcileOwner(ctx, owner)
		if err != nil {
			skipped++
			if r.metrics != nil {
				r.metrics.ReconcileOwnerErrors.Inc()
			}
			r.log.Error().Err(err).Str("owner", owner).Msg("owner skipped")
			continue
		}
		if found {
			drifted++
		}
	}

	if r.metrics != nil {
		r.metrics.ReconcilePasses.Inc()
		r.metrics.ReconcilePassDuration.Observe(time.Since(start).Seconds())
	}
	r.log.Info().
		Int("owners", len(owners)).
		Int("drifted", drifted).
		Int("skipped", skipped).
		Dur("took", time.Since(start)).
		Msg("reconciliation pass complete")
	return nil
}

// reconcileOwner compares one owner's mirror entry against the
// authoritative record. Returns whether drift was found.
func (r *Reconciler) reconcileOwner(ctx context.Context, owner string) (bool, error) {
	lock := r.lockFor(owner)
	lock.Lock()
	defer lock.Unlock()

	authoritative, err := r.fetchWithRetry(ctx, owner)
	if err != nil {
		return false, err
	}

	drift := ""
	mirrored, err := r.mirror.Read(ctx, owner)
	switch {
	case errors.Is(err, mirror.ErrMiss):
		drift = "mirror entry missing"
	case err != nil:
		return false, fmt.Errorf("mirror read: %w", err)
	default:
		drift = describeDrift(authoritative, mirrored)
	}

	// Exactly one audit row per owner per pass: a drift log when the two
	// disagree, a snapshot only when they agree. A snapshot is a
	// confirmation of consistency, never written alongside a drift entry.
	now := r.now()
	if drift != "" {
		if r.metrics != nil {
			r.metrics.ReconcileDrift.Inc()
		}
		r.log.Warn().Str("owner", owner).Str("discrepancy", drift).Msg("mirror drift detected")
		if err := r.auditor.LogDrift(ctx, owner, drift, now); err != nil {
			return true, fmt.Errorf("log drift: %w", err)
		}
		return true, nil
	}

	if err := r.auditor.SnapshotBalance(ctx, authoritative, now); err != nil {
		return false, fmt.Errorf("snapshot balance: %w", err)
	}
	if r.metrics != nil {
		r.metrics.ReconcileSnapshots.Inc()
	}
	return false, nil
}

func (r *Reconciler) lockFor(owner string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.ownerLocks[owner]
	if !ok {
		lock = &sync.Mutex{}
		r.ownerLocks[owner] = lock
	}
	return lock
}

// describeDrift returns an empty string when the three live balances
// match, otherwise a field-by-field description.
func describeDrift(authoritative vault.Record, mirrored mirror.Record) string {
	var parts []string
	if authoritative.TotalBalance != mirrored.TotalBalance {
		parts = append(parts, fmt.Sprintf("total %d != mirror %d",
			authoritative.TotalBalance, mirrored.TotalBalance))
	}
	if authoritative.LockedBalance != mirrored.LockedBalance {
		parts = append(parts, fmt.Sprintf("locked %d != mirror %d",
			authoritative.LockedBalance, mirrored.LockedBalance))
	}
	if authoritative.AvailableBalance != mirrored.AvailableBalance {
		parts = append(parts, fmt.Sprintf("available %d != mirror %d",
			authoritative.AvailableBalance, mirrored.AvailableBalance))
	}
	return strings.Join(parts, "; ")
}
