package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/marathon/internal/config"
	"example.com/marathon/internal/logging"
	"example.com/marathon/internal/outbox"
	"example.com/marathon/internal/supervisor"
	httptransport "example.com/marathon/internal/transport/http"
)

const defaultDLQBatchSize = 50

func main() {
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger := logging.Component("dlqmanager")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.MetricsAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, mux)

	sup := supervisor.New("dlqmanager", supervisor.Config{FailureThreshold: cfg.SupervisorFailureThreshold}, logging.Component("supervisor"))
	sup.Add(httptransport.NewService(metricsSrv, 10*time.Second, logger))
	sup.Add(outbox.NewDLQService(manager, cfg.DLQPollInterval, defaultDLQBatchSize, logger))

	logger.Info().Dur("interval", cfg.DLQPollInterval).Int("max_retries", cfg.DLQMaxRetries).Msg("dlq manager started")
	if err := sup.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("supervisor stopped")
	}
}
