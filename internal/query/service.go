// Package query serves balance reads. A successful read refreshes the
// owner's mirror entry, so the read path doubles as the mirror's healer.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CollateralVault/internal/mirror"
	"CollateralVault/internal/observability"
	"CollateralVault/internal/vault"

	"github.com/rs/zerolog"
)

const (
	defaultFetchAttempts = 4
	defaultFetchBackoff  = 100 * time.Millisecond
)

// ErrFetchFailed marks a read that exhausted its retry budget against the
// authoritative source. Retryable by the caller.
var ErrFetchFailed = errors.New("query: authoritative fetch failed")

// Source yields the authoritative record for an owner.
type Source interface {
	FetchRecord(ctx context.Context, owner string) (vault.Record, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, owner string) (vault.Record, error)

func (f SourceFunc) FetchRecord(ctx context.Context, owner string) (vault.Record, error) {
	return f(ctx, owner)
}

// BalanceResponse is the read model returned by GetBalance.
type BalanceResponse struct {
	Owner             string    `json:"owner"`
	Address           string    `json:"address"`
	TotalBalance      uint64    `json:"total_balance"`
	LockedBalance     uint64    `json:"locked_balance"`
	AvailableBalance  uint64    `json:"available_balance"`
	LifetimeDeposited uint64    `json:"lifetime_deposited"`
	LifetimeWithdrawn uint64    `json:"lifetime_withdrawn"`
	CreatedAt         time.Time `json:"created_at"`
}

// Service answers balance queries from the authoritative source with a
// bounded retry, then upserts the mirror as a side effect. Mirror write
// failures never fail the read.
type Service struct {
	source        Source
	mirror        mirror.Store
	fetchAttempts int
	fetchBackoff  time.Duration
	metrics       *observability.Metrics
	log           zerolog.Logger
	now           func() time.Time
}

func NewService(source Source, mirrorStore mirror.Store, metrics *observability.Metrics, log zerolog.Logger) *Service {
	return &Service{
		source:        source,
		mirror:        mirrorStore,
		fetchAttempts: defaultFetchAttempts,
		fetchBackoff:  defaultFetchBackoff,
		metrics:       metrics,
		log:           log,
		now:           time.Now,
	}
}

// GetBalance returns the owner's current balances.
func (s *Service) GetBalance(ctx context.Context, owner string) (BalanceResponse, error) {
	start := time.Now()

	rec, err := s.fetchWithRetry(ctx, owner)
	if err != nil {
		s.observe("get_balance", "error", start)
		return BalanceResponse{}, err
	}

	if s.mirror != nil {
		s.refreshMirror(ctx, rec)
	}

	s.observe("get_balance", "ok", start)
	return BalanceResponse{
		Owner:             rec.Owner,
		Address:           rec.Address(),
		TotalBalance:      rec.TotalBalance,
		LockedBalance:     rec.LockedBalance,
		AvailableBalance:  rec.AvailableBalance,
		LifetimeDeposited: rec.LifetimeDeposited,
		LifetimeWithdrawn: rec.LifetimeWithdrawn,
		CreatedAt:         rec.CreatedAt,
	}, nil
}

func (s *Service) fetchWithRetry(ctx context.Context, owner string) (vault.Record, error) {
	var lastErr error

	for attempt := 0; attempt < s.fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return vault.Record{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * s.fetchBackoff):
			}
		}

		rec, err := s.source.FetchRecord(ctx, owner)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, vault.ErrNotFound) {
			return vault.Record{}, err
		}
		lastErr = err
	}

	return vault.Record{}, fmt.Errorf("%w: owner %s after %d attempts: %v",
		ErrFetchFailed, owner, s.fetchAttempts, lastErr)
}

func (s *Service) refreshMirror(ctx context.Context, rec vault.Record) {
	err := s.mirror.Upsert(ctx, mirror.Record{
		Owner:             rec.Owner,
		TotalBalance:      rec.TotalBalance,
		LockedBalance:     rec.LockedBalance,
		AvailableBalance:  rec.AvailableBalance,
		LifetimeDeposited: rec.LifetimeDeposited,
		LifetimeWithdrawn: rec.LifetimeWithdrawn,
		LastUpdated:       s.now(),
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.MirrorErrors.Inc()
		}
		s.log.Warn().Err(err).Str("owner", rec.Owner).Msg("mirror refresh failed")
		return
	}
	if s.metrics != nil {
		s.metrics.MirrorUpserts.WithLabelValues("query").Inc()
	}
}

func (s *Service) observe(endpoint, status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
	s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
