package middleware

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"

	"pharmacare-backend/internal/config"
)

// devOrigins are the local frontend dev servers allowed automatically
// outside production.
var devOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://localhost:8080",
}

// SecureCORSConfig builds the CORS policy from CORS_ORIGINS. Invalid
// origins are skipped with a warning; a wildcard origin in production
// aborts startup.
func SecureCORSConfig() cors.Config {
	allowed := parseOrigins(os.Getenv("CORS_ORIGINS"))

	if config.IsDevelopment() {
		for _, origin := range devOrigins {
			if !slices.Contains(allowed, origin) {
				allowed = append(allowed, origin)
			}
		}
		log.Printf("Development mode: Added default localhost origins to CORS")
	}

	if len(allowed) == 0 {
		log.Println("⚠️  No CORS origins configured, CORS will be restrictive")
		allowed = []string{"https://example.com"}
	}

	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if slices.Contains(allowed, "*") && (env == "production" || env == "prod") {
		log.Fatal("CRITICAL: Wildcard CORS origin (*) is not allowed in production")
	}

	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = allowed
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		"X-Requested-With",
	}
	cfg.ExposeHeaders = []string{
		"Content-Length", "Content-Type",
		"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
	}
	cfg.AllowCredentials = true
	cfg.MaxAge = 12 * time.Hour

	log.Printf("✅ CORS configured with %d allowed origins", len(allowed))
	return cfg
}

func parseOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if err := validateOrigin(origin); err != nil {
			log.Printf("Warning: Invalid CORS origin '%s': %v", origin, err)
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}

func validateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid scheme: %s (must be http or https)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host in origin")
	}
	return nil
}
