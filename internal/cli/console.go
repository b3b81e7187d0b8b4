package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dwizi/edge-console/internal/app"
	"github.com/dwizi/edge-console/internal/config"
	"github.com/dwizi/edge-console/internal/tui"
)

func newConsoleCommand(flags *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run the interactive console (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd, flags)
		},
	}
}

// runConsole runs the pollers and the terminal UI side by side. Leaving the
// UI stops the pollers; a runtime failure closes the UI.
func runConsole(cmd *cobra.Command, flags *globals) error {
	cfg := flags.config()
	logger, closeLog, err := fileLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	runtime, err := app.New(cfg, logger, app.Options{Version: version, Token: flags.token})
	if err != nil {
		return err
	}
	defer runtime.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	consoleCtx, stopConsole := context.WithCancel(groupCtx)
	defer stopConsole()
	group.Go(func() error {
		return runtime.Run(consoleCtx)
	})
	group.Go(func() error {
		defer stopConsole()
		return tui.Run(consoleCtx, tui.Dependencies{
			Config:    cfg,
			Version:   version,
			Logger:    logger.With("component", "tui"),
			Backend:   runtime.Client(),
			Mutator:   runtime.Mutator(),
			LogLevels: runtime.Mutator(),
			Bus:       runtime.Bus(),
			Activity:  runtime.Activity(),
			History:   runtime.Store(),
		})
	})
	return group.Wait()
}

func newRunCommand(logger *slog.Logger, flags *globals) *cobra.Command {
	var noServe bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pollers headless with the local status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime, err := app.New(flags.config(), logger, app.Options{
				Version: version,
				Token:   flags.token,
				Serve:   !noServe,
			})
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&noServe, "no-serve", false, "poll without starting the status API")
	return cmd
}

// fileLogger sends console-mode logs to a rotating file; the terminal
// belongs to the UI.
func fileLogger(cfg config.Config) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}
	logger := slog.New(slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: LogLevel(cfg.LogLevel)}))
	return logger, func() { _ = rotator.Close() }, nil
}

// LogLevel maps a configured level name to a slog level, defaulting to info.
func LogLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
