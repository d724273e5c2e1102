package middleware

import (
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pharmacare-backend/internal/config"
)

const contentSecurityPolicy = "default-src 'self'; " +
	"img-src 'self' data: https:; " +
	"frame-ancestors 'none'; " +
	"base-uri 'self'; " +
	"form-action 'self'; " +
	"object-src 'none';"

var staticSecurityHeaders = map[string]string{
	"X-Frame-Options":              "DENY",
	"X-Content-Type-Options":       "nosniff",
	"X-XSS-Protection":             "0",
	"Referrer-Policy":              "strict-origin-when-cross-origin",
	"Cross-Origin-Opener-Policy":   "same-origin",
	"Cross-Origin-Resource-Policy": "same-origin",
	"Server":                       "",
	"X-Powered-By":                 "",
}

// SecurityHeaders sets the standard response hardening headers. API
// responses carry patient-adjacent data and are never cacheable.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.IsDevelopment() {
			c.Header("Content-Security-Policy-Report-Only", contentSecurityPolicy)
		} else {
			c.Header("Content-Security-Policy", contentSecurityPolicy)
		}

		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}

		for name, value := range staticSecurityHeaders {
			c.Header(name, value)
		}

		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
		}

		c.Next()
	}
}

// RequestSizeLimit limits request body size to prevent DoS
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IPWhitelist restricts the admin surface to specific IPs
func IPWhitelist(allowedIPs []string, enforce bool) gin.HandlerFunc {
	normalized := make([]string, 0, len(allowedIPs))
	for _, entry := range allowedIPs {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}

	if !enforce || len(normalized) == 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	ipSet, networks := buildIPWhitelist(normalized)

	return func(c *gin.Context) {
		clientIP := getClientIP(c)
		if clientIP == "" {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "Access denied from this IP"})
			c.Abort()
			return
		}

		if _, ok := ipSet[clientIP]; ok {
			c.Next()
			return
		}

		parsedIP := net.ParseIP(clientIP)
		if parsedIP != nil {
			if ipv4 := parsedIP.To4(); ipv4 != nil {
				parsedIP = ipv4
			}

			for _, network := range networks {
				if network.Contains(parsedIP) {
					c.Next()
					return
				}
			}
		}

		log.Printf("Access denied by IP whitelist: client_ip=%s", clientIP)
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "Access denied from this IP"})
		c.Abort()
	}
}

// SecurityMonitoring logs slow requests and error responses
func SecurityMonitoring() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		if duration > 5*time.Second {
			log.Printf("⚠️ Slow request: %s %s took %v from IP: %s",
				c.Request.Method, c.Request.URL.Path, duration, getClientIP(c))
		}

		if c.Writer.Status() >= 400 {
			log.Printf("🚨 Error response: %d %s %s from IP: %s",
				c.Writer.Status(), c.Request.Method, c.Request.URL.Path, getClientIP(c))
		}
	}
}

func buildIPWhitelist(entries []string) (map[string]struct{}, []*net.IPNet) {
	ipSet := make(map[string]struct{})
	var networks []*net.IPNet

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		switch {
		case entry == "localhost":
			ipSet["127.0.0.1"] = struct{}{}
			ipSet["::1"] = struct{}{}
		case strings.Contains(entry, "/"):
			if _, network, err := net.ParseCIDR(entry); err == nil {
				networks = append(networks, network)
			}
		default:
			if ip := net.ParseIP(entry); ip != nil {
				ipSet[ip.String()] = struct{}{}
			}
		}
	}

	// Always allow loopback
	ipSet["127.0.0.1"] = struct{}{}
	ipSet["::1"] = struct{}{}

	return ipSet, networks
}

// SecurityConfig holds security settings read from environment
type SecurityConfig struct {
	MaxRequestSize     int64
	AllowedIPs         []string
	EnforceIPWhitelist bool
}

func GetSecurityConfig() SecurityConfig {
	cfg := SecurityConfig{
		MaxRequestSize:     1 * 1024 * 1024, // 1MB default
		EnforceIPWhitelist: config.GetEnvBool("ENFORCE_IP_WHITELIST", false),
	}

	if maxSize := os.Getenv("MAX_REQUEST_SIZE"); maxSize != "" {
		if size, err := strconv.ParseInt(maxSize, 10, 64); err == nil {
			cfg.MaxRequestSize = size
		}
	}

	if allowedIPs := os.Getenv("ALLOWED_IPS"); allowedIPs != "" {
		cfg.AllowedIPs = strings.FieldsFunc(allowedIPs, func(r rune) bool {
			return r == ',' || r == '\n' || r == ' '
		})
	}

	return cfg
}
