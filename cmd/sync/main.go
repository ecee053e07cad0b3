// Command sync runs one orchestration pass and exits non-zero on failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/marathon/internal/app"
	"example.com/marathon/internal/config"
	"example.com/marathon/internal/logging"
	"example.com/marathon/internal/scheduler"
)

func main() {
	date := flag.String("date", "", "sync a single date (YYYY-MM-DD) instead of the trailing window")
	flag.Parse()

	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger := logging.Component("sync")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logging.Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise service")
	}
	defer application.Close()

	if err := application.SeedAthletes(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed athletes")
	}

	var result scheduler.RunResult
	if *date != "" {
		target, parseErr := time.Parse("2006-01-02", *date)
		if parseErr != nil {
			logger.Fatal().Err(parseErr).Msg("date must be YYYY-MM-DD")
		}
		result, err = application.Orchestrator.RunForDate(ctx, target)
	} else {
		result, err = application.Orchestrator.RunWindow(ctx)
	}

	fmt.Printf("%s: %s\n", result.Status, result.Message)
	for _, warning := range result.Warnings {
		fmt.Printf("  WARNING: %s\n", warning)
	}
	for _, failure := range result.Errors {
		fmt.Printf("  ERROR: %s\n", failure)
	}
	if err != nil || !result.Success {
		if err != nil {
			logger.Error().Err(err).Msg("sync run failed")
		}
		application.Close()
		os.Exit(1)
	}
}
