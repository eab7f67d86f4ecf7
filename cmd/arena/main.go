// Command arena runs a single AMM strategy backtest. It loads configuration,
// validates it, sets up signal handling, and executes the run on a fresh local
// chain.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/anthias-labs/arena/internal/app"
	"github.com/anthias-labs/arena/internal/config"
	"github.com/anthias-labs/arena/internal/domain"
)

func main() {
	configPath := flag.String("config", "", "path to a .toml or .yaml configuration file (defaults only when empty)")
	steps := flag.Int("steps", -1, "override run.steps")
	saveData := flag.String("save", "", `override run.save_data, e.g. "csv:results.csv"`)
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath, *steps, *saveData)
	if err != nil {
		logger.Error("invalid configuration",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(exitCode(err))
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Debug("configuration loaded", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger)

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = application.Run(ctx)
	stop()
	application.Close()

	switch {
	case err == nil:
		logger.Info("backtest completed")
	case errors.Is(err, context.Canceled):
		logger.Info("backtest interrupted", slog.String("error", err.Error()))
		os.Exit(130)
	default:
		logger.Error("backtest failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// loadConfig loads path, applies the flag overrides and validates the result.
// Every error matches domain.ErrConfig.
func loadConfig(path string, steps int, saveData string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfig, err)
	}
	if steps >= 0 {
		cfg.Run.Steps = steps
	}
	if saveData != "" {
		cfg.Run.SaveData = saveData
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfig, err)
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	exitFailure = 1
	exitConfig  = 2
)

// exitCode distinguishes configuration mistakes from run failures.
func exitCode(err error) int {
	if errors.Is(err, domain.ErrConfig) {
		return exitConfig
	}
	return exitFailure
}
