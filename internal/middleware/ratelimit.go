package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"pharmacare-backend/pkg/utils"
)

// IPRateLimiter manages rate limiters per IP
type IPRateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates a new IP-based rate limiter
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     r,
		burst:    b,
	}
}

// GetLimiter returns the rate limiter for an IP
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	entry, exists := i.limiters[ip]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(i.rate, i.burst)}
		i.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter
}

func (i *IPRateLimiter) cleanupExpired(cutoff time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for ip, entry := range i.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(i.limiters, ip)
		}
	}
}

// Admin migration endpoints allow 10 requests per 15 minutes per IP.
// Execute and rollback are stricter: 3 per hour.
var (
	generalLimiter   = NewIPRateLimiter(rate.Every(time.Second), 30)
	migrationLimiter = NewIPRateLimiter(rate.Every(15*time.Minute/10), 10)
	executeLimiter   = NewIPRateLimiter(rate.Every(time.Hour/3), 3)
)

func limitWith(l *IPRateLimiter, retryAfter string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := getClientIP(c)
		if !l.GetLimiter(ip).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"error":       "Too many requests. Please try again later.",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GeneralRateLimit protects the whole API surface at a coarse grain.
func GeneralRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" || path == "/api/v1/health" {
			c.Next()
			return
		}

		ip := getClientIP(c)
		if !generalLimiter.GetLimiter(ip).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"error":       "Too many requests. Please slow down.",
				"retry_after": "1 second",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// MigrationRateLimit applies the 10 req / 15 min budget for migration
// admin endpoints.
func MigrationRateLimit() gin.HandlerFunc {
	return limitWith(migrationLimiter, fmt.Sprintf("%.0f seconds", (15*time.Minute).Seconds()))
}

// MigrationExecuteRateLimit applies the 3 req / hour budget for the
// mutating execute and rollback endpoints.
func MigrationExecuteRateLimit() gin.HandlerFunc {
	return limitWith(executeLimiter, fmt.Sprintf("%.0f seconds", time.Hour.Seconds()))
}

// StartCleanup starts the cleanup routine for stale per-IP limiters
func StartCleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				utils.CaptureSentryPanic("middleware.StartCleanup", r)
			}
		}()
		for range ticker.C {
			cutoff := time.Now().Add(-24 * time.Hour)
			generalLimiter.cleanupExpired(cutoff)
			migrationLimiter.cleanupExpired(cutoff)
			executeLimiter.cleanupExpired(cutoff)
		}
	}()
}

func getClientIP(c *gin.Context) string {
	// Try CF-Connecting-IP header first (Cloudflare)
	if cfIP := c.GetHeader("CF-Connecting-IP"); cfIP != "" {
		return strings.TrimSpace(cfIP)
	}

	// Try X-Forwarded-For header
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Try X-Real-IP header
	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr
	return c.ClientIP()
}
