package migration

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	apperrors "pharmacare-backend/internal/errors"
	"pharmacare-backend/internal/models"
	"pharmacare-backend/pkg/utils"
)

// API exposes the migration services over HTTP. One instance is
// constructed at process start and shared across handlers so the
// monitor's in-memory state survives between requests.
type API struct {
	db           *gorm.DB
	orchestrator *Orchestrator
	monitor      *Monitor
}

// NewAPI builds the HTTP surface around a shared orchestrator and
// monitor.
func NewAPI(db *gorm.DB, orchestrator *Orchestrator, monitor *Monitor) *API {
	return &API{db: db, orchestrator: orchestrator, monitor: monitor}
}

// RegisterRoutes mounts the migration admin endpoints on the given
// (already super-admin-guarded, rate-limited) group.
func (a *API) RegisterRoutes(rg *gin.RouterGroup, executeLimiter gin.HandlerFunc) {
	rg.GET("/status", a.HandleGetStatus)
	rg.GET("/metrics", a.HandleGetMetrics)
	rg.GET("/progress", a.HandleGetProgress)
	rg.GET("/health", a.HandleGetHealth)
	rg.GET("/alerts", a.HandleGetAlerts)
	rg.POST("/alerts/:alertId/resolve", a.HandleResolveAlert)
	rg.POST("/validate", a.HandleValidate)
	rg.POST("/report", a.HandleGenerateReport)
	rg.POST("/dry-run", a.HandleDryRun)
	rg.POST("/execute", executeLimiter, a.HandleExecute)
	rg.POST("/rollback", executeLimiter, a.HandleRollback)
}

func respond(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// HandleGetStatus returns the monitor's coarse status summary.
func (a *API) HandleGetStatus(c *gin.Context) {
	respond(c, a.monitor.GetStatusSummary())
}

// HandleGetMetrics collects and returns a fresh metrics sample.
func (a *API) HandleGetMetrics(c *gin.Context) {
	metrics, err := a.monitor.CollectMetrics(c.Request.Context())
	if err != nil {
		utils.SendErrorResponse(c, http.StatusInternalServerError,
			apperrors.Wrap(err, "METRICS_FAILED", "Failed to collect migration metrics"))
		return
	}
	respond(c, gin.H{
		"metrics": metrics,
		"trends":  a.monitor.GetTrendAnalysis(),
	})
}

// HandleGetProgress returns the persisted progress row, if any.
func (a *API) HandleGetProgress(c *gin.Context) {
	progress, err := a.orchestrator.Progress().LoadProgress(c.Request.Context())
	if err != nil {
		utils.SendErrorResponse(c, http.StatusInternalServerError,
			apperrors.Wrap(err, "PROGRESS_FAILED", "Failed to load migration progress"))
		return
	}
	respond(c, gin.H{"progress": progress})
}

// HandleGetHealth reports database reachability and orchestrator state.
func (a *API) HandleGetHealth(c *gin.Context) {
	dbHealthy := false
	if sqlDB, err := a.db.DB(); err == nil {
		dbHealthy = sqlDB.Ping() == nil
	}

	status := http.StatusOK
	if !dbHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"success": dbHealthy,
		"data": gin.H{
			"database": dbHealthy,
			"state":    a.orchestrator.State(),
		},
	})
}

// HandleGetAlerts returns all retained alerts.
func (a *API) HandleGetAlerts(c *gin.Context) {
	respond(c, gin.H{"alerts": a.monitor.Alerts()})
}

// HandleResolveAlert marks an alert resolved.
func (a *API) HandleResolveAlert(c *gin.Context) {
	id := c.Param("alertId")
	if !a.monitor.ResolveAlert(id) {
		utils.SendErrorResponse(c, http.StatusNotFound, apperrors.ErrAlertNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Alert resolved"})
}

// HandleValidate runs the complete validation battery.
func (a *API) HandleValidate(c *gin.Context) {
	report, err := a.orchestrator.Validator().RunCompleteValidation(c.Request.Context())
	if err != nil {
		utils.SendErrorResponse(c, http.StatusInternalServerError,
			apperrors.Wrap(err, "VALIDATION_FAILED", "Migration validation failed"))
		return
	}
	respond(c, report)
}

// HandleGenerateReport builds a monitoring report.
func (a *API) HandleGenerateReport(c *gin.Context) {
	var body struct {
		Type string `json:"type"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if body.Type == "" {
		body.Type = "on_demand"
	}

	report, err := a.monitor.GenerateReport(c.Request.Context(), body.Type)
	if err != nil {
		utils.SendErrorResponse(c, http.StatusInternalServerError,
			apperrors.Wrap(err, "REPORT_FAILED", "Failed to generate migration report"))
		return
	}
	respond(c, report)
}

// HandleDryRun projects a migration run without mutating anything.
func (a *API) HandleDryRun(c *gin.Context) {
	result, err := a.orchestrator.DryRun(c.Request.Context())
	if err != nil {
		utils.SendErrorResponse(c, http.StatusInternalServerError,
			apperrors.Wrap(err, "DRY_RUN_FAILED", "Migration dry run failed"))
		return
	}
	respond(c, result)
}

// HandleExecute runs the orchestrated migration.
func (a *API) HandleExecute(c *gin.Context) {
	opts := DefaultOptions()
	if err := c.ShouldBindJSON(&opts); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	result, err := a.orchestrator.ExecuteMigration(c.Request.Context(), opts)
	if err != nil {
		if err == ErrLockHeld {
			utils.SendErrorResponse(c, http.StatusConflict, apperrors.ErrMigrationRunning)
			return
		}
		utils.SendErrorResponse(c, http.StatusInternalServerError,
			apperrors.Wrap(err, "MIGRATION_FAILED", "Workspace migration failed"))
		return
	}
	respond(c, result)
}

// HandleRollback reverts subscription ownership to individual users.
func (a *API) HandleRollback(c *gin.Context) {
	result, err := a.orchestrator.ExecuteRollback(c.Request.Context())
	if err != nil {
		if err == ErrLockHeld {
			utils.SendErrorResponse(c, http.StatusConflict, apperrors.ErrMigrationRunning)
			return
		}
		utils.SendErrorResponse(c, http.StatusInternalServerError,
			apperrors.Wrap(err, "ROLLBACK_FAILED", "Workspace migration rollback failed"))
		return
	}
	respond(c, result)
}

// Models returns the GORM models the migration subsystem persists,
// for AutoMigrate wiring in main.
func Models() []interface{} {
	return []interface{}{
		&models.MigrationProgress{},
		&models.MigrationBackup{},
	}
}
