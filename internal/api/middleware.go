// internal/api/middleware.go
package api

import (
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/senushidinara/DreamStruct/internal/utils"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"

	// visitors are swept once the table grows past this size
	rateLimitSweepSize = 1024
)

// RateLimiter is a fixed-window limiter keyed by client.
type RateLimiter struct {
	visitors map[string]*Visitor
	mu       sync.Mutex
	now      func() time.Time
}

// Visitor represents a client with rate limiting data
type Visitor struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*Visitor),
		now:      time.Now,
	}
}

// sweep drops visitors whose window has expired; mu must be held.
func (rl *RateLimiter) sweep(now time.Time) {
	for key, visitor := range rl.visitors {
		if now.After(visitor.Reset) {
			delete(rl.visitors, key)
		}
	}
}

// Allow consumes one request for key and reports whether it fits the window.
// The returned visitor is a copy for response headers.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) (bool, Visitor) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.visitors) > rateLimitSweepSize {
		rl.sweep(now)
	}

	visitor, exists := rl.visitors[key]
	if !exists || now.After(visitor.Reset) {
		visitor = &Visitor{
			Limit:     limit,
			Remaining: limit - 1,
			Reset:     now.Add(window),
		}
		rl.visitors[key] = visitor
		return true, *visitor
	}

	if visitor.Remaining <= 0 {
		return false, *visitor
	}

	visitor.Remaining--
	return true, *visitor
}

// RateLimitMiddleware limits requests per key. A non-positive limit disables it.
func RateLimitMiddleware(rl *RateLimiter, limit int, window time.Duration, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	rh := NewResponseHelper()

	return func(c *gin.Context) {
		allowed, visitor := rl.Allow(keyFunc(c), limit, window)

		c.Header("X-RateLimit-Limit", strconv.Itoa(visitor.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(visitor.Remaining, 0)))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(visitor.Reset.Unix(), 10))

		if !allowed {
			rh.Error(c, http.StatusTooManyRequests, ErrorRateLimited, "Rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimitByIP applies rate limiting based on client IP address
func RateLimitByIP(rl *RateLimiter, limit int, window time.Duration) gin.HandlerFunc {
	return RateLimitMiddleware(rl, limit, window, func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// requestIDMiddleware tags each request with an id, reusing the caller's when given.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// metricsMiddleware records every routed request.
func metricsMiddleware(metrics *utils.DesignMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordAPIRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))

		if c.Writer.Status() >= http.StatusInternalServerError {
			utils.GetLogger().Error("Request failed", map[string]interface{}{
				"route":      route,
				"method":     c.Request.Method,
				"status":     c.Writer.Status(),
				"request_id": c.GetString(requestIDKey),
			})
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)
		c.Header("Access-Control-Expose-Headers", requestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// sameOriginOnly rejects browser requests whose Origin is not this host.
// Requests without an Origin header (curl, the CLI) pass.
func sameOriginOnly() gin.HandlerFunc {
	rh := NewResponseHelper()
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host != c.Request.Host {
			rh.Error(c, http.StatusForbidden, ErrorForbidden, "cross-origin request rejected")
			c.Abort()
			return
		}
		c.Next()
	}
}
