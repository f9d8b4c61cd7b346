package hub

import (
	"time"

	"LanChat/internal/model"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub   *Hub
	calls *CallRelay
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub, calls *CallRelay) *MonitorService {
	return &MonitorService{hub: hub, calls: calls}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	connections, channels, clients := ms.hub.Stats()
	calls := ms.getCallStats()

	// Determine overall health status
	status := "healthy"
	if connections.TotalConnected == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: connections,
		Channels:    channels,
		Calls:       calls,
		Clients:     clients,
	}
}

// getCallStats returns active call statistics
func (ms *MonitorService) getCallStats() model.CallStats {
	stats := model.CallStats{
		CallDetails: make([]model.CallInfo, 0),
	}

	if ms.calls == nil {
		return stats
	}

	for _, s := range ms.calls.Sessions() {
		stats.CallDetails = append(stats.CallDetails, model.CallInfo{
			CallerID:  s.CallerID,
			CalleeID:  s.CalleeID,
			IsVideo:   s.IsVideo,
			State:     string(s.StateOf(s.CallerID)),
			StartedAt: s.StartedAt.Format(time.RFC3339),
		})
		stats.TotalActiveCalls++
	}

	return stats
}
