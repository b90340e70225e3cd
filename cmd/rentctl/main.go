package main

import (
	"log"

	"rentflow-system/config"
	"rentflow-system/internal/logger"
)

func main() {
	cfg := config.LoadConfig()
	if err := logger.Setup(cfg.Log); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	appConfig = cfg

	Execute()
}
