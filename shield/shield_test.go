package shield

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(APIHeaders())(ok).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = r.Body.Read(make([]byte, 64))
		for readErr == nil {
			_, readErr = r.Body.Read(make([]byte, 64))
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 100))))
	if readErr == nil || !strings.Contains(readErr.Error(), "too large") {
		t.Errorf("read error = %v", readErr)
	}
}

func TestRateLimiter(t *testing.T) {
	// WHAT: A client over its burst gets 429 with Retry-After; other clients and excluded paths pass.
	// WHY: Each resolution fans out to several fetches; one caller must not monopolize them.
	rl := NewRateLimiter(RateConfig{Rate: 1, Burst: 2}, "/healthz")
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	h := rl.Middleware(ok)

	do := func(path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", path, nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := range 2 {
		if rec := do("/v1/canonical", "10.0.0.1"); rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
	rec := do("/v1/canonical", "10.0.0.1")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "1" {
		t.Errorf("over burst: %d Retry-After=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if rec := do("/v1/canonical", "10.0.0.2"); rec.Code != http.StatusNoContent {
		t.Errorf("other client: %d", rec.Code)
	}
	if rec := do("/healthz", "10.0.0.1"); rec.Code != http.StatusNoContent {
		t.Errorf("excluded path: %d", rec.Code)
	}

	now = now.Add(time.Second)
	if rec := do("/v1/canonical", "10.0.0.1"); rec.Code != http.StatusNoContent {
		t.Errorf("after refill: %d", rec.Code)
	}
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(RateConfig{Rate: 1})
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	rl.allow("10.0.0.1")
	now = now.Add(2 * idleTTL)
	rl.allow("10.0.0.2")
	if _, ok := rl.clients["10.0.0.1"]; ok {
		t.Error("idle client not swept")
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := ExtractIP(req); got != "192.0.2.1" {
		t.Errorf("remote: %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ExtractIP(req); got != "203.0.113.9" {
		t.Errorf("xff: %q", got)
	}
}
