package handler

import (
	"net/http"

	"LanChat/internal/model"

	"github.com/gin-gonic/gin"
)

// StatsProvider is satisfied by hub.MonitorService.
type StatsProvider interface {
	GetStats() model.MonitorResponse
}

// MonitorHandler handles monitoring API endpoints
type MonitorHandler interface {
	GetHubStats(c *gin.Context)
}

type monitorHandler struct {
	monitorService StatsProvider
}

// NewMonitorHandler creates a new monitor handler
func NewMonitorHandler(monitorService StatsProvider) MonitorHandler {
	return &monitorHandler{
		monitorService: monitorService,
	}
}

// GetHubStats returns connections, channels and active calls.
func (h *monitorHandler) GetHubStats(c *gin.Context) {
	ok(c, http.StatusOK, "Hub statistics retrieved successfully", h.monitorService.GetStats())
}
