package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheStatus reports which cache backend is serving calls.
type CacheStatus interface {
	Pinger
	Backend() string
	Degraded() bool
}

type healthReport struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Cache  string `json:"cache"`
}

type HealthHandler struct {
	store   Pinger
	cache   CacheStatus
	timeout time.Duration
	logger  *zap.Logger
}

func NewHealthHandler(store Pinger, cache CacheStatus, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{store: store, cache: cache, timeout: 2 * time.Second, logger: logger}
}

// Health reports 200 while the store answers. A cache running on its
// fallback only marks the service degraded.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	report := healthReport{Status: "ok", Store: "up", Cache: h.cache.Backend()}
	status := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("store health check failed", zap.Error(err))
		report.Store = "down"
		report.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	if err := h.cache.Ping(ctx); err != nil || h.cache.Degraded() {
		report.Status = "degraded"
	}

	c.JSON(status, report)
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }
