package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthServer_AllHealthy(t *testing.T) {
	s := NewHealthServer(&HealthConfig{Version: "1.0.0"})
	s.RegisterCheck("store", func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusHealthy, Message: "ok"}
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != HealthStatusHealthy {
		t.Errorf("expected healthy, got %s", resp.Status)
	}
	if resp.Version != "1.0.0" {
		t.Errorf("expected version, got %q", resp.Version)
	}
	if len(resp.Checks) != 1 || resp.Checks[0].Name != "store" {
		t.Errorf("unexpected checks: %+v", resp.Checks)
	}
}

func TestHealthServer_UnhealthyCheck(t *testing.T) {
	s := NewHealthServer(nil)
	s.RegisterCheck("store", func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusUnhealthy, Message: "connection refused"}
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	var resp HealthResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != HealthStatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", resp.Status)
	}
}

func TestHealthServer_DegradedKeeps200(t *testing.T) {
	s := NewHealthServer(nil)
	s.RegisterCheck("llm", func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusDegraded}
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("degraded should still return 200, got %d", rec.Code)
	}
	var resp HealthResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != HealthStatusDegraded {
		t.Errorf("expected degraded, got %s", resp.Status)
	}
}

func TestHealthServer_ReadyProbe(t *testing.T) {
	s := NewHealthServer(nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before SetReady, got %d", rec.Code)
	}

	s.SetReady(true)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 after SetReady, got %d", rec.Code)
	}
}

func TestHealthServer_LiveProbe(t *testing.T) {
	s := NewHealthServer(nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected live by default, got %d", rec.Code)
	}

	s.SetLive(false)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after SetLive(false), got %d", rec.Code)
	}
}

func TestVectorStoreHealthChecker(t *testing.T) {
	ctx := context.Background()

	t.Run("unreachable", func(t *testing.T) {
		check := VectorStoreHealthChecker("qdrant", func(ctx context.Context) (int, error) {
			return 0, errors.New("dial tcp: connection refused")
		})(ctx)
		if check.Status != HealthStatusUnhealthy {
			t.Errorf("expected unhealthy, got %s", check.Status)
		}
		if check.Details["backend"] != "qdrant" {
			t.Errorf("backend detail missing: %v", check.Details)
		}
	})

	t.Run("empty store", func(t *testing.T) {
		check := VectorStoreHealthChecker("chromem", func(ctx context.Context) (int, error) {
			return 0, nil
		})(ctx)
		if check.Status != HealthStatusDegraded {
			t.Errorf("expected degraded for empty store, got %s", check.Status)
		}
	})

	t.Run("populated", func(t *testing.T) {
		check := VectorStoreHealthChecker("chromem", func(ctx context.Context) (int, error) {
			return 57, nil
		})(ctx)
		if check.Status != HealthStatusHealthy {
			t.Errorf("expected healthy, got %s", check.Status)
		}
		if check.Details["chunks"] != "57" {
			t.Errorf("chunk count missing: %v", check.Details)
		}
	})
}

func TestLLMHealthChecker(t *testing.T) {
	ctx := context.Background()

	t.Run("no check function", func(t *testing.T) {
		check := LLMHealthChecker("groq", nil)(ctx)
		if check.Status != HealthStatusHealthy {
			t.Errorf("expected healthy, got %s", check.Status)
		}
	})

	t.Run("provider failing", func(t *testing.T) {
		check := LLMHealthChecker("groq", func(ctx context.Context) error {
			return errors.New("429 rate limited")
		})(ctx)
		if check.Status != HealthStatusDegraded {
			t.Errorf("expected degraded, got %s", check.Status)
		}
	})

	t.Run("provider ok", func(t *testing.T) {
		check := LLMHealthChecker("groq", func(ctx context.Context) error {
			return nil
		})(ctx)
		if check.Status != HealthStatusHealthy {
			t.Errorf("expected healthy, got %s", check.Status)
		}
		if check.Details["provider"] != "groq" {
			t.Errorf("provider detail missing: %v", check.Details)
		}
	})
}
