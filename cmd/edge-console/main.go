package main

import (
	"log/slog"
	"os"

	"github.com/dwizi/edge-console/internal/cli"
	"github.com/dwizi/edge-console/internal/config"
)

func main() {
	level := cli.LogLevel(config.FromEnv().LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if err := cli.NewRoot(logger).Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
