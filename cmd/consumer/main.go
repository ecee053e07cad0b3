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
	"github.com/segmentio/kafka-go"

	"example.com/marathon/internal/config"
	"example.com/marathon/internal/consumer"
	"example.com/marathon/internal/logging"
	"example.com/marathon/internal/persistence/postgres"
	"example.com/marathon/internal/supervisor"
	httptransport "example.com/marathon/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger := logging.Component("consumer")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	handler := consumer.NewPersistenceHandler(pool, logger)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.MetricsAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, mux)

	sup := supervisor.New("consumer", supervisor.Config{FailureThreshold: cfg.SupervisorFailureThreshold}, logging.Component("supervisor"))
	sup.Add(httptransport.NewService(metricsSrv, 10*time.Second, logger))

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})
		defer reader.Close()

		sup.Add(consumer.NewProcessor(topic, reader, handler, consumer.WithLogger(logger.With().Str("topic", topic).Logger())))
		logger.Info().Str("topic", topic).Str("group", cfg.ConsumerGroupID).Msg("consumer registered")
	}

	if err := sup.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("supervisor stopped")
	}
	logger.Info().Msg("consumer shutdown complete")
}
