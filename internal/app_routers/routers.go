package approuters

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"LanChat/internal/auth"
	"LanChat/internal/configuration"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StartServer runs the socket and application servers until a signal or a
// server error, then shuts everything down gracefully.
func StartServer(container *configuration.Container) {
	logger := container.Logger
	cfg := container.Config.Server

	socketServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.SocketPort),
		Handler:     NewSocketHandler(container),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	appServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AppPort),
		Handler:      NewAppRouter(container),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors from servers
	serverErrors := make(chan error, 2)

	go func() {
		logger.Info("socket server starting", zap.String("addr", fmt.Sprintf("ws://localhost:%d/%s", cfg.SocketPort, cfg.SocketRoute)))
		if err := socketServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- errors.Wrap(err, "socket server")
		}
	}()

	go func() {
		logger.Info("application server starting", zap.String("addr", fmt.Sprintf("http://localhost:%d", cfg.AppPort)))
		if err := appServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- errors.Wrap(err, "app server")
		}
	}()

	if container.Reaper != nil {
		container.Reaper.Start(context.Background())
	}

	// Listen for shutdown signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("initiating graceful shutdown", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	logger.Info("stopping hub and closing all websocket connections")
	container.Hub.Stop()

	if err := socketServer.Shutdown(ctx); err != nil {
		logger.Warn("socket server shutdown", zap.Error(err))
	}
	if err := appServer.Shutdown(ctx); err != nil {
		logger.Warn("app server shutdown", zap.Error(err))
	}

	logger.Info("graceful shutdown complete")
}

// NewSocketHandler serves the event channel at /{socket_route}.
func NewSocketHandler(container *configuration.Container) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/"+container.Config.Server.SocketRoute, container.Hub.ServeWS)
	return mux
}

// NewAppRouter builds the REST surface.
func NewAppRouter(container *configuration.Container) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(container.Logger.Named("http")))

	router.Use(cors.New(corsConfig(container.Config.Server.AllowedOrigins)))

	router.GET("/health", container.HealthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(container.Metrics.Registry, promhttp.HandlerOpts{})))

	api := router.Group("/api",
		RateLimit(container.Config.Server.RateLimitPerMinute),
		auth.Middleware(container.Verifier),
	)
	ChatRouters(api, container)
	MonitorRouters(api, container)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
