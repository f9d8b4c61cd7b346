package approuters

import (
	"LanChat/internal/auth"
	"LanChat/internal/configuration"

	"github.com/gin-gonic/gin"
)

// MonitorRouters sets up monitoring API routes. Admins only.
func MonitorRouters(api *gin.RouterGroup, container *configuration.Container) {
	monitorGroup := api.Group("/monitor", auth.RequireAdmin())
	{
		// GET /api/monitor/stats - Get hub statistics
		monitorGroup.GET("/stats", container.MonitorHandler.GetHubStats)
	}
}
