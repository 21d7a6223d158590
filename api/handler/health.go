package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/jobsnap/models"
)

// StatsProvider reports browser session activity.
type StatsProvider interface {
	Stats() models.SessionStats
}

// RunHistory exposes the most recent run.
type RunHistory interface {
	LastRun() *models.RunReport
}

// Health returns a handler for GET /health.
//
// Status degrades when the last run failed outright or lost any site.
func Health(sp StatsProvider, rh RunHistory, version string, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		last := rh.LastRun()

		status := "healthy"
		if last != nil && (last.Error != nil || last.Failed() > 0) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:   status,
			Uptime:   time.Since(startTime).Round(time.Second).String(),
			Version:  version,
			Sessions: sp.Stats(),
			LastRun:  last,
		})
	}
}
