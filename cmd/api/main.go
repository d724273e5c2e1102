package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pharmacare-backend/internal/auth"
	"pharmacare-backend/internal/bootstrap"
	"pharmacare-backend/internal/config"
	"pharmacare-backend/internal/database"
	"pharmacare-backend/internal/health"
	"pharmacare-backend/internal/middleware"
	"pharmacare-backend/internal/migration"
	"pharmacare-backend/internal/models"
	"pharmacare-backend/pkg/utils"
)

func main() {
	log.Println("🚀 Starting PharmaCare API Server")

	// Initialize Sentry before other subsystems so we capture initialization errors
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		env := os.Getenv("SENTRY_ENVIRONMENT")
		release := os.Getenv("SENTRY_RELEASE")
		if release == "" {
			release = os.Getenv("GIT_COMMIT")
		}
		host, _ := os.Hostname()

		opts := sentry.ClientOptions{
			Dsn:         dsn,
			Environment: env,
			Release:     release,
		}
		if host != "" {
			opts.ServerName = host
		}

		if err := sentry.Init(opts); err != nil {
			log.Printf("Sentry initialization failed: %v", err)
		} else {
			sentry.ConfigureScope(func(scope *sentry.Scope) {
				scope.SetTag("service", "pharmacare-backend")
			})
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Run database migrations
	if database.DB != nil {
		log.Println("Running database migrations...")
		schema := []interface{}{
			&models.User{},
			&models.Workplace{},
			&models.Subscription{},
			&models.SubscriptionPlan{},
		}
		schema = append(schema, migration.Models()...)
		if err := database.RunMigrations(schema...); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("✅ Database migrations completed")
		bootstrap.Run(database.DB)
	}

	auth.InitJWT()

	// Start background tasks
	middleware.StartCleanup()

	// Migration services share one orchestrator and monitor per process
	runLock := migration.NewRunLock(migration.MigrationName)
	orchestrator := migration.NewOrchestrator(database.DB, runLock)
	monitor := migration.NewMonitor(database.DB)
	migrationAPI := migration.NewAPI(database.DB, orchestrator, monitor)

	if interval := config.GetEnvDuration("MIGRATION_MONITOR_INTERVAL", 0); interval > 0 {
		go monitor.Run(context.Background(), interval)
		log.Printf("✅ Migration monitor sampling every %s", interval)
	}

	// Set up router
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	}))
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	if os.Getenv("ENABLE_SENTRY_DEBUG_ENDPOINT") == "true" {
		router.GET("/internal/sentry-test", func(c *gin.Context) {
			const msg = "Sentry debug endpoint hit"
			utils.CaptureSentryError(c, nil, msg, nil)
			_ = sentry.Flush(2 * time.Second)
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	// CORS - MUST be first to handle OPTIONS requests
	corsConfig := middleware.SecureCORSConfig()
	router.Use(cors.New(corsConfig))

	// Security middleware - after CORS
	securityConfig := middleware.GetSecurityConfig()
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(securityConfig.MaxRequestSize))
	router.Use(middleware.SecurityMonitoring())
	router.Use(middleware.GeneralRateLimit())
	router.Use(middleware.IPWhitelist(securityConfig.AllowedIPs, securityConfig.EnforceIPWhitelist))

	// Health check and Prometheus endpoints
	router.GET("/health", health.HandleHealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		api.GET("/health", health.HandleHealthCheck)
		api.GET("/ready", health.HandleSystemReady)

		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/login", auth.HandleLogin)
		}

		// Super-admin-only migration administration
		admin := api.Group("/admin")
		admin.Use(auth.Middleware(database.DB))
		admin.Use(auth.SuperAdminMiddleware())
		{
			migrationGroup := admin.Group("/migration")
			migrationGroup.Use(middleware.MigrationRateLimit())
			migrationAPI.RegisterRoutes(migrationGroup, middleware.MigrationExecuteRateLimit())
		}
	}

	port := config.GetEnv("PORT", "8080")

	log.Printf("✅ PharmaCare API listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
