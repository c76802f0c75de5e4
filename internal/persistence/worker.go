package persistence

import (
	"context"
	"fmt"
	"time"

	"CollateralVault/internal/observability"
	"CollateralVault/internal/vault"

	"github.com/rs/zerolog"
)

// Worker drains the ledger's update channel and batch-upserts records to
// Postgres. The channel uses BLOCKING sends from the ledger, so if this
// worker falls behind, the ledger stalls rather than losing a write.
type Worker struct {
	store        *VaultStore
	input        <-chan vault.Update
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(
	store *VaultStore,
	input <-chan vault.Update,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		store:        store,
		input:        input,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// Run starts the worker loop. It batches incoming updates and flushes
// either when the batch is full or the flush timeout expires. Blocks
// until ctx is cancelled or the input channel closes.
func (w *Worker) Run(ctx context.Context) error {
	// Keyed by owner so one flush never carries two rows for the same
	// vault; a later update simply replaces the earlier one.
	batch := make(map[string]vault.Record, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case update, ok := <-w.input:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			batch[update.Record.Owner] = update.Record

			if len(batch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("batch flush failed after retries")
				}
				batch = make(map[string]vault.Record, w.batchSize)
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("timeout flush failed after retries")
				}
				batch = make(map[string]vault.Record, w.batchSize)
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry attempts to flush with exponential backoff. The worker
// never drops records: it retries until the write succeeds or the context
// is cancelled, then makes one final attempt with a background context so
// shutdown does not lose the batch.
func (w *Worker) flushWithRetry(ctx context.Context, batch map[string]vault.Record) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("records", len(batch)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), batch); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("persistence flush succeeded after retries")
			}
			return nil
		}

		if w.metrics != nil {
			w.metrics.PersistRetry.Inc()
			w.metrics.PersistErrors.WithLabelValues("flush").Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, batch map[string]vault.Record) error {
	start := time.Now()

	recs := make([]vault.Record, 0, len(batch))
	for _, r := range batch {
		recs = append(recs, r)
	}

	if err := w.store.UpsertBatch(ctx, recs); err != nil {
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(recs)))
		w.metrics.PersistRecordsWritten.Add(float64(len(recs)))
	}
	return nil
}
