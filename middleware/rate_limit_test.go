package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestID())
	router.Use(RateLimit(5, time.Minute))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Request %d: Expected status 200, got %d", i+1, w.Code)
		}
	}

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
}

func TestRateLimitDifferentIPs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RateLimit(2, time.Minute))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.2")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Different IP should not be rate limited, got %d", w.Code)
	}
}

func TestRateLimitPerDevice(t *testing.T) {
	cfg := testSessionConfig()
	router := gin.New()
	router.Use(Session(cfg))
	router.Use(RateLimit(1, time.Minute))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tokenA, _, _ := IssueSessionToken("ses_a_1", cfg, time.Now())
	tokenB, _, _ := IssueSessionToken("ses_b_1", cfg, time.Now())

	send := func(token string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := send(tokenA); code != http.StatusOK {
		t.Errorf("Expected first request allowed, got %d", code)
	}
	if code := send(tokenA); code != http.StatusTooManyRequests {
		t.Errorf("Expected second request for same device limited, got %d", code)
	}
	if code := send(tokenB); code != http.StatusOK {
		t.Errorf("Expected other device on same IP allowed, got %d", code)
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	if ok, _ := limiter.Allow("k"); !ok {
		t.Fatal("Expected first request allowed")
	}
	if ok, _ := limiter.Allow("k"); ok {
		t.Fatal("Expected second request limited")
	}

	now = now.Add(time.Minute)
	if ok, _ := limiter.Allow("k"); !ok {
		t.Error("Expected request allowed after window reset")
	}
	if len(limiter.windows) != 1 {
		t.Errorf("Expected expired windows swept, have %d", len(limiter.windows))
	}
}
