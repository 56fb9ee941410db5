package metrics

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"
)

func getHealth(t *testing.T, h *HealthStatus) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health payload: %v", err)
	}
	return rec.Code, body
}

func TestHealthStatus_Unhealthy_WhenBothStoresDown(t *testing.T) {
	h := NewHealthStatus()

	code, body := getHealth(t, h)
	if code != 503 {
		t.Errorf("code = %d, want 503", code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("status = %v, want unhealthy", body["status"])
	}
}

func TestHealthStatus_Degraded_WhenOneStoreDown(t *testing.T) {
	h := NewHealthStatus()
	h.SetRedisConnected(true)
	h.SetEngineOK(true)

	code, body := getHealth(t, h)
	if code != 503 {
		t.Errorf("code = %d, want 503", code)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

func TestHealthStatus_Healthy(t *testing.T) {
	h := NewHealthStatus()
	h.SetRedisConnected(true)
	h.SetSQLiteOK(true)
	h.SetEngineOK(true)
	h.SetLastBarTime(time.Now())
	h.SetScope("mean_reversion", []string{"BTCUSDT"}, []string{"1m", "5m"})

	code, body := getHealth(t, h)
	if code != 200 {
		t.Errorf("code = %d, want 200", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["rule"] != "mean_reversion" {
		t.Errorf("rule = %v", body["rule"])
	}
	if body["bar_age"] == "" {
		t.Error("bar_age empty with a recorded bar time")
	}
}

func TestHealthStatus_FeedDoesNotGate(t *testing.T) {
	h := NewHealthStatus()
	h.SetRedisConnected(true)
	h.SetSQLiteOK(true)
	h.SetEngineOK(true)
	h.SetWSConnected(false) // replay and stream sources run without a socket

	code, body := getHealth(t, h)
	if code != 200 || body["status"] != "healthy" {
		t.Errorf("code=%d status=%v, want 200 healthy", code, body["status"])
	}
}
