package main

import (
	"context"
	"log"

	approuters "LanChat/internal/app_routers"
	"LanChat/internal/configuration"

	"go.uber.org/zap"
)

func main() {
	config, err := configuration.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := configuration.NewLogger(config.Logger)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}

	container, err := configuration.BuildContainer(context.Background(), *config, logger)
	if err != nil {
		logger.Fatal("Failed to build container", zap.Error(err))
	}

	// Ensure cleanup on shutdown
	defer func() {
		if err := container.Close(); err != nil {
			logger.Warn("cleanup failed", zap.Error(err))
		}
	}()

	approuters.StartServer(container)
}
