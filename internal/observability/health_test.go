package observability_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"CollateralVault/internal/observability"
)

func readinessBody(t *testing.T, h *observability.HealthChecker) (int, map[string]interface{}) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode readiness body: %v", err)
	}
	return rec.Code, body
}

func TestReadiness_RequiresAllDependencies(t *testing.T) {
	h := observability.NewHealthChecker("postgres", "redis", "nats")
	h.SetReady(true)
	h.SetDependencyReady("postgres", true)
	h.SetDependencyReady("redis", true)

	code, body := readinessBody(t, h)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status got %d, want 503", code)
	}

	deps, ok := body["dependencies"].(map[string]interface{})
	if !ok {
		t.Fatalf("dependencies missing from body %v", body)
	}
	if deps["nats"] != "down" || deps["postgres"] != "connected" {
		t.Errorf("dependency states got %v", deps)
	}

	h.SetDependencyReady("nats", true)
	code, body = readinessBody(t, h)
	if code != http.StatusOK {
		t.Fatalf("status got %d, want 200", code)
	}
	if body["status"] != "ready" {
		t.Errorf("status field got %v, want ready", body["status"])
	}
}

func TestReadiness_GateClosesOnShutdown(t *testing.T) {
	h := observability.NewHealthChecker("postgres")
	h.SetDependencyReady("postgres", true)
	h.SetReady(true)
	if !h.IsReady() {
		t.Fatal("expected ready after gate opened")
	}

	h.SetReady(false)
	code, _ := readinessBody(t, h)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status got %d, want 503 after gate closed", code)
	}
}

func TestReadiness_ReportsVaultCount(t *testing.T) {
	h := observability.NewHealthChecker()
	h.SetReady(true)
	h.SetVaultCount(7)

	_, body := readinessBody(t, h)
	// encoding/json decodes numbers into float64.
	if got, ok := body["vaults"].(float64); !ok || got != 7 {
		t.Errorf("vaults got %v, want 7", body["vaults"])
	}
}

func TestLiveness_AlwaysAlive(t *testing.T) {
	h := observability.NewHealthChecker("postgres")

	rec := httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status got %d, want 200", rec.Code)
	}
}
