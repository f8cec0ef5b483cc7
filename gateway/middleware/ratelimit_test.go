package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"tranches": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("tranches")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/tranches/aa/price", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesRoutes(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"tranches": {RatePerSecond: 1, Burst: 1},
		"admin":    {RatePerSecond: 1, Burst: 1},
	}, nil)
	trancheHandler := limiter.Middleware("tranches")(okHandler())
	adminHandler := limiter.Middleware("admin")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/tranches/bb/apr", nil)
	req.Header.Set("X-API-Key", "tenant-A")
	res := httptest.NewRecorder()
	trancheHandler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected tranche request to succeed, got %d", res.Code)
	}

	adminReq := httptest.NewRequest(http.MethodPost, "/v1/admin/pause", nil)
	adminReq.Header.Set("X-API-Key", "tenant-A")
	adminRes := httptest.NewRecorder()
	adminHandler.ServeHTTP(adminRes, adminReq)
	if adminRes.Code != http.StatusOK {
		t.Fatalf("expected first admin request to succeed, got %d", adminRes.Code)
	}

	adminRes = httptest.NewRecorder()
	adminHandler.ServeHTTP(adminRes, adminReq)
	if adminRes.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second admin request to hit limit, got %d", adminRes.Code)
	}
}

func TestRateLimiterAppliesRouteTokens(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"tranches": {
			RatePerSecond: 5,
			Burst:         5,
			DefaultTokens: 1,
			Tokens: map[string]int{
				"POST /v1/harvest": 3,
			},
		},
	}, nil)
	handler := limiter.Middleware("tranches")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/harvest", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first harvest request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second harvest request to exhaust the burst, got %d", res.Code)
	}

	// Reads only cost the default token.
	priceReq := httptest.NewRequest(http.MethodGet, "/v1/tranches/aa/price", nil)
	priceRes := httptest.NewRecorder()
	handler.ServeHTTP(priceRes, priceReq)
	if priceRes.Code != http.StatusOK {
		t.Fatalf("expected price read to succeed with default token cost, got %d", priceRes.Code)
	}
}

func TestRateLimiterPrefersAPIKeyOverIP(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"tranches": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("tranches")(okHandler())

	for _, key := range []string{"tenant-A", "tenant-B"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/ledger", nil)
		req.Header.Set("X-API-Key", key)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected %s request to succeed, got %d", key, res.Code)
		}
	}
}
