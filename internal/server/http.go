// Package server exposes the read API, the signing-intent endpoints, and
// the operational probes over one HTTP listener.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"CollateralVault/internal/intent"
	"CollateralVault/internal/observability"
	"CollateralVault/internal/query"
	"CollateralVault/internal/vault"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Server struct {
	addr    string
	queries *query.Service
	health  *observability.HealthChecker
	log     zerolog.Logger
}

func New(addr string, queries *query.Service, health *observability.HealthChecker, log zerolog.Logger) *Server {
	return &Server{addr: addr, queries: queries, health: health, log: log}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.health.LivenessHandler)
	mux.HandleFunc("/readyz", s.health.ReadinessHandler)

	mux.HandleFunc("GET /v1/vaults/{owner}/balance", s.handleGetBalance)

	mux.HandleFunc("POST /v1/tx/initialize", s.handleIntent(func(r txRequest) intent.Intent {
		return intent.Initialize(r.Owner, r.BackingAccount)
	}))
	mux.HandleFunc("POST /v1/tx/deposit", s.handleIntent(func(r txRequest) intent.Intent {
		return intent.Deposit(r.Owner, r.Amount)
	}))
	mux.HandleFunc("POST /v1/tx/withdraw", s.handleIntent(func(r txRequest) intent.Intent {
		return intent.Withdraw(r.Owner, r.Amount)
	}))
	mux.HandleFunc("POST /v1/tx/lock", s.handleIntent(func(r txRequest) intent.Intent {
		return intent.Lock(r.Owner, r.Amount)
	}))
	mux.HandleFunc("POST /v1/tx/unlock", s.handleIntent(func(r txRequest) intent.Intent {
		return intent.Unlock(r.Owner, r.Amount)
	}))
	mux.HandleFunc("POST /v1/tx/transfer", s.handleIntent(func(r txRequest) intent.Intent {
		return intent.Transfer(r.From, r.To, r.Amount)
	}))

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("http server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")

	resp, err := s.queries.GetBalance(r.Context(), owner)
	if errors.Is(err, vault.ErrNotFound) {
		writeError(w, http.StatusNotFound, "vault not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("owner", owner).Msg("balance query failed")
		writeError(w, http.StatusBadGateway, "balance unavailable")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// txRequest is the shared request body for the intent endpoints. Each
// endpoint reads only the fields it needs.
type txRequest struct {
	Owner          string `json:"owner"`
	BackingAccount string `json:"backing_account"`
	From           string `json:"from"`
	To             string `json:"to"`
	Amount         uint64 `json:"amount"`
}

func (s *Server) handleIntent(build func(txRequest) intent.Intent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req txRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		writeJSON(w, http.StatusOK, build(req))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
