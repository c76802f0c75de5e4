package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CollateralVault/internal/vault"
)

// ErrFetchFailed marks an authoritative fetch that did not succeed within
// the retry budget. Per-owner processing treats it as a skip, never as a
// reason to abort the pass.
var ErrFetchFailed = errors.New("reconciler: authoritative fetch failed")

// fetchWithRetry calls fetch up to attempts times with linearly growing
// backoff between tries. vault.ErrNotFound is terminal, not retryable.
func (r *Reconciler) fetchWithRetry(ctx context.Context, owner string) (vault.Record, error) {
	var lastErr error

	for attempt := 0; attempt < r.fetchAttempts; attempt++ {
		if attempt > 0 {
			if r.metrics != nil {
				r.metrics.ReconcileFetchRetries.Inc()
			}
			select {
			case <-ctx.Done():
				return vault.Record{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * r.fetchBackoff):
			}
		}

		rec, err := r.source.FetchRecord(ctx, owner)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, vault.ErrNotFound) {
			return vault.Record{}, err
		}
		lastErr = err
	}

	return vault.Record{}, fmt.Errorf("%w: owner %s after %d attempts: %v",
		ErrFetchFailed, owner, r.fetchAttempts, lastErr)
}
