package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Kapo179/docuseal3/pkg/logger"
	"github.com/gin-gonic/gin"
)

type rateWindow struct {
	count int
	start time.Time
}

// RateLimiter is a fixed-window counter per client key.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	rate    int
	window  time.Duration
	now     func() time.Time
}

func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		rate:    rate,
		window:  window,
		now:     time.Now,
	}
}

// Allow counts one request for key and reports whether it fits the window,
// plus the time left until the window resets.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.sweep(now)
		w = &rateWindow{start: now}
		l.windows[key] = w
	}

	retry := l.window - now.Sub(w.start)
	if w.count >= l.rate {
		return false, retry
	}
	w.count++
	return true, retry
}

// sweep drops expired windows so idle clients do not accumulate.
func (l *RateLimiter) sweep(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, key)
		}
	}
}

// RateLimit limits requests per device, falling back to the client IP when
// no session has been resolved yet.
func RateLimit(rate int, window time.Duration) gin.HandlerFunc {
	limiter := NewRateLimiter(rate, window)

	return func(c *gin.Context) {
		key := GetDeviceID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		allowed, retry := limiter.Allow(key)
		if !allowed {
			logger.Warn(c.Request.Context(), "rate limit exceeded", "client_ip", c.ClientIP())

			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
