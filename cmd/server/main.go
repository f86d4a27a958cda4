package main

import (
	"proteinshake/internal/config"
	"proteinshake/internal/server"
	"proteinshake/pkg/logger"
	"proteinshake/pkg/logger/console"
)

func main() {
	cfg, err := config.Load()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  cfg != nil && cfg.Debug,
		Prefix: "server",
	})
	logger.Init(consoleLogger)

	if err != nil {
		logger.Fatal("Failed to load configuration", "err", err)
	}

	server.Init(cfg)
}
