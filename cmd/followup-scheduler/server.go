// cmd/followup-scheduler/server.go
package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "followup-orchestrator/internal/common/errors"
	"followup-orchestrator/internal/common/logger"
	quotamanager "followup-orchestrator/internal/followup/quota-manager"
	"followup-orchestrator/internal/followup/scheduler"
)

type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

type jobRunner interface {
	GetStatus() scheduler.Status
	RunJob(ctx context.Context, name string) error
}

type quotaReporter interface {
	Status(ctx context.Context, accountID string) (*quotamanager.Status, error)
}

// opsHandler serves health, status and quota endpoints for operators.
type opsHandler struct {
	jobs   jobRunner
	quota  quotaReporter
	checks []readinessCheck
	logger logger.Logger
}

func newOpsRouter(h *opsHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	r.GET("/health", h.health)
	r.GET("/ready", h.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/status", h.status)
	r.GET("/quota/:accountId", h.quotaStatus)
	r.POST("/jobs/:name/run", h.runJob)
	return r
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/metrics" || c.Request.URL.Path == "/health" {
			return
		}
		log.Debug("ops request", map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
}

// health is liveness. A degraded scheduler is still alive.
func (h *opsHandler) health(c *gin.Context) {
	st := h.jobs.GetStatus()
	c.JSON(http.StatusOK, gin.H{
		"status":  st.Health,
		"running": st.Running,
		"reasons": st.HealthReasons,
	})
}

func (h *opsHandler) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for _, rc := range h.checks {
		if err := rc.check(ctx); err != nil {
			failed[rc.name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "failed": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *opsHandler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.GetStatus())
}

func (h *opsHandler) quotaStatus(c *gin.Context) {
	accountID := c.Param("accountId")
	st, err := h.quota.Status(c.Request.Context(), accountID)
	if err != nil {
		h.logger.Error("quota status failed", map[string]interface{}{"accountId": accountID, "error": err})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
			"code":  apperrors.CodeOf(err),
		})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *opsHandler) runJob(c *gin.Context) {
	name := c.Param("name")
	// a manual run finishes even if the caller hangs up
	err := h.jobs.RunJob(context.WithoutCancel(c.Request.Context()), name)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"job": name, "status": "completed"})
	case errors.Is(err, scheduler.ErrJobRunning):
		c.JSON(http.StatusConflict, gin.H{"job": name, "error": err.Error()})
	case !knownJob(name):
		c.JSON(http.StatusNotFound, gin.H{"job": name, "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"job": name, "error": err.Error()})
	}
}

func knownJob(name string) bool {
	switch name {
	case scheduler.JobProcessDueTasks, scheduler.JobDeadLeadSweep, scheduler.JobPerformanceAnalytics,
		scheduler.JobHealthCheck, scheduler.JobTemplatePerformance:
		return true
	}
	return false
}
