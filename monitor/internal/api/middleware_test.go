package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		key    string
		header string
		want   int
	}{
		{"mode none passes", "none", "secret", "", http.StatusOK},
		{"empty key passes", "apikey", "", "", http.StatusOK},
		{"missing header", "apikey", "secret", "", http.StatusUnauthorized},
		{"wrong key", "apikey", "secret", "nope", http.StatusUnauthorized},
		{"right key", "apikey", "secret", "secret", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := APIKey(tc.mode, "x-api-key", tc.key)(okHandler)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
			if tc.header != "" {
				req.Header.Set("X-Api-Key", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Errorf("status: got %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d within burst rejected", i)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third request should exceed the burst")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("a different client has its own bucket")
	}

	now = now.Add(time.Second)
	if !rl.Allow("10.0.0.1") {
		t.Error("bucket should refill after one second")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(time.Hour)
	rl.Allow("b")

	if n := rl.Cleanup(30 * time.Minute); n != 1 {
		t.Errorf("removed: got %d, want 1", n)
	}
	if _, ok := rl.limiters["b"]; !ok {
		t.Error("recent client should be kept")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimit(1)(okHandler)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes: got %v, want [200 200 429]", codes)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(0)(okHandler)
	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i, rr.Code)
		}
	}
}
