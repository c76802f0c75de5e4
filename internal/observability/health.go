package observability

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HealthChecker backs the /healthz and /readyz probe endpoints. Readiness
// requires every registered dependency (postgres, redis, nats) to be
// marked ready AND the final serving gate to be open; the readiness body
// reports each dependency plus the number of restored vault records so an
// operator can tell a cold start from a wedged dependency.
type HealthChecker struct {
	serving   atomic.Bool
	vaults    atomic.Int64
	startTime time.Time

	mu   sync.RWMutex
	deps map[string]bool
}

// NewHealthChecker registers the named dependencies as not ready.
func NewHealthChecker(deps ...string) *HealthChecker {
	h := &HealthChecker{
		startTime: time.Now(),
		deps:      make(map[string]bool, len(deps)),
	}
	for _, d := range deps {
		h.deps[d] = false
	}
	return h
}

// SetDependencyReady records the connection state of one dependency.
func (h *HealthChecker) SetDependencyReady(name string, ready bool) {
	h.mu.Lock()
	h.deps[name] = ready
	h.mu.Unlock()
}

// SetReady opens or closes the serving gate. The gate opens last during
// startup and closes first during shutdown.
func (h *HealthChecker) SetReady(ready bool) {
	h.serving.Store(ready)
}

// SetVaultCount records how many vault records the ledger currently holds.
func (h *HealthChecker) SetVaultCount(n int) {
	h.vaults.Store(int64(n))
}

// IsReady reports whether the gate is open and every dependency is ready.
func (h *HealthChecker) IsReady() bool {
	if !h.serving.Load() {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ok := range h.deps {
		if !ok {
			return false
		}
	}
	return true
}

// LivenessHandler returns HTTP 200 if the process is alive.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"service": "collateralvault",
		"status":  "alive",
		"uptime":  time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns HTTP 200 once every dependency is connected and
// the serving gate is open, 503 before that and during shutdown.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status := "ready"
	code := http.StatusOK
	if !h.IsReady() {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"service":      "collateralvault",
		"status":       status,
		"dependencies": h.dependencyStates(),
		"vaults":       h.vaults.Load(),
	})
}

func (h *HealthChecker) dependencyStates() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	states := make(map[string]string, len(names))
	for _, name := range names {
		if h.deps[name] {
			states[name] = "connected"
		} else {
			states[name] = "down"
		}
	}
	return states
}
