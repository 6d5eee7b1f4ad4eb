package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newLimiter(t *testing.T, rpm, burst int) *Limiter {
	t.Helper()
	l := New(Config{
		RequestsPerMinute: rpm,
		BurstSize:         burst,
		CleanupInterval:   time.Minute,
	})
	t.Cleanup(l.Stop)
	return l
}

func TestAllowBurstThenDeny(t *testing.T) {
	l := newLimiter(t, 60, 5)

	for i := 0; i < 5; i++ {
		if !l.Allow("key") {
			t.Errorf("request %d within burst should be allowed", i)
		}
	}
	if l.Allow("key") {
		t.Error("request after burst should be denied")
	}
}

func TestAllowKeysIndependent(t *testing.T) {
	l := newLimiter(t, 60, 3)

	for i := 0; i < 3; i++ {
		l.Allow("drained")
	}
	if l.Allow("drained") {
		t.Error("drained key should be limited")
	}
	if !l.Allow("fresh") {
		t.Error("fresh key should have its own bucket")
	}
}

func TestAllowReplenishes(t *testing.T) {
	l := newLimiter(t, 600, 1) // 10 tokens/sec

	if !l.Allow("key") {
		t.Fatal("first request should be allowed")
	}
	if l.Allow("key") {
		t.Fatal("second immediate request should be denied")
	}

	time.Sleep(110 * time.Millisecond)
	if !l.Allow("key") {
		t.Error("request after refill window should be allowed")
	}
}

func TestMiddlewareLimits(t *testing.T) {
	l := newLimiter(t, 60, 2)

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/v1/agents", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := []int{}
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/v1/agents", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst requests got %v, want 200s", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request got %d, want 429", codes[2])
	}
}

func TestMiddlewareExemptsOperationalPaths(t *testing.T) {
	l := newLimiter(t, 60, 1)

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 10; i++ {
		for _, path := range []string{"/health", "/metrics"} {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", path, nil)
			req.RemoteAddr = "203.0.113.9:1234"
			r.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Fatalf("%s hit %d should not be limited, got %d", path, i, w.Code)
			}
		}
	}
}

func TestMiddlewareKeysByToken(t *testing.T) {
	l := newLimiter(t, 60, 1)

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/v1/agents", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(token string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/v1/agents", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	// Two different tokens behind the same IP each get a bucket.
	if code := do("agt_aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"); code != http.StatusOK {
		t.Errorf("first token got %d", code)
	}
	if code := do("agt_bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"); code != http.StatusOK {
		t.Errorf("second token got %d", code)
	}
	if code := do("agt_aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"); code != http.StatusTooManyRequests {
		t.Errorf("reused token got %d, want 429", code)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RequestsPerMinute != 60 || cfg.BurstSize != 10 || cfg.CleanupInterval != time.Minute {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
