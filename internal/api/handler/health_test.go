package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler(func() bool { return true }, nil)
	e := echo.New()
	rec := httptest.NewRecorder()
	if err := h.Liveness(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/health", nil), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp livenessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if rec.Code != http.StatusOK || resp.Status != "healthy" || resp.Service != "email-receipts" || !resp.ProviderConfigured {
		t.Fatalf("unexpected response %d %+v", rec.Code, resp)
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	cases := []struct {
		name       string
		deps       map[string]Pinger
		wantCode   int
		wantStatus string
	}{
		{"no dependencies", nil, http.StatusOK, "ok"},
		{"all healthy", map[string]Pinger{"postgres": ok, "redis": ok}, http.StatusOK, "ok"},
		{"one down", map[string]Pinger{"postgres": ok, "redis": down}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(func() bool { return false }, tc.deps)
			e := echo.New()
			rec := httptest.NewRecorder()
			if err := h.Readiness(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/health/ready", nil), rec)); err != nil {
				t.Fatalf("handler error: %v", err)
			}

			var resp readinessResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if rec.Code != tc.wantCode || resp.Status != tc.wantStatus {
				t.Fatalf("unexpected response %d %+v", rec.Code, resp)
			}
			if tc.wantStatus == "degraded" && resp.Dependencies["redis"].Error != "connection refused" {
				t.Fatalf("expected failing dependency to be reported: %+v", resp.Dependencies)
			}
		})
	}
}
