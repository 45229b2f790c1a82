package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func getReady(h *Health) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return rec
}

func TestHealth_LivenessAlwaysOK(t *testing.T) {
	h := NewHealth("1.0")
	rec := httptest.NewRecorder()
	h.handleLive(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	var res healthResponse
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Status != StatusHealthy || res.Version != "1.0" {
		t.Errorf("response = %+v", res)
	}
}

func TestHealth_NotReadyUntilFlipped(t *testing.T) {
	h := NewHealth("")
	if rec := getReady(h); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("fresh instance must not be ready: %d", rec.Code)
	}
	h.SetReady(true)
	if rec := getReady(h); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHealth_ChecksAggregate(t *testing.T) {
	h := NewHealth("")
	h.SetReady(true)
	h.Register("vector", PingChecker(func(context.Context) error { return nil }))
	h.Register("keyword", PingChecker(func(context.Context) error { return errors.New("connection refused") }))

	rec := getReady(h)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("one failing check must fail readiness: %d", rec.Code)
	}
	var res healthResponse
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Status != StatusUnhealthy || len(res.Checks) != 2 {
		t.Errorf("response = %+v", res)
	}
}

func TestHealth_DegradedDoesNotFailReadiness(t *testing.T) {
	h := NewHealth("")
	h.SetReady(true)
	h.Register("cache", func(context.Context) Check {
		return Check{Status: StatusDegraded, Message: "cold"}
	})

	rec := getReady(h)
	if rec.Code != http.StatusOK {
		t.Errorf("degraded should stay routable: %d", rec.Code)
	}
	var res healthResponse
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Status != StatusDegraded {
		t.Errorf("status = %s", res.Status)
	}
}
