package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"example.com/marathon/internal/api"
	"example.com/marathon/internal/app"
	"example.com/marathon/internal/auth"
	"example.com/marathon/internal/config"
	"example.com/marathon/internal/logging"
	"example.com/marathon/internal/outbox"
	"example.com/marathon/internal/scheduler"
	"example.com/marathon/internal/supervisor"
	httptransport "example.com/marathon/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger := logging.Component("api")

	if err := cfg.Validate(); err != nil {
		logger.Warn().Err(err).Msg("configuration incomplete; syncs will fail until it is fixed")
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

	hour, minute, err := config.ParseClock(cfg.Schedule.DailyExecutionTime)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid daily execution time")
	}

	handler := api.NewHandler(api.Dependencies{
		Runner:    application.Orchestrator,
		Dashboard: application.Dashboard,
		Trends:    application.Team,
		Plans:     application.Importer,
		Strava:    application.Strava,
		Store:     application.Store,
		Logger:    logging.Component("http"),
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(requestLogger(logging.Component("http"), mux)))

	sup := supervisor.New("marathon", supervisor.Config{FailureThreshold: cfg.SupervisorFailureThreshold}, logging.Component("supervisor"))
	sup.Add(httptransport.NewService(server, 0, logging.Component("http")))
	sup.Add(scheduler.NewDailyTrigger(application.Orchestrator, hour, minute, application.Location,
		scheduler.WithTriggerLogger(logging.Component("trigger"))))

	if cfg.OutboxEnabled && application.Pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, 0)
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Warn().Err(err).Msg("kafka producer close failed")
			}
		}()
		sup.Add(outbox.NewDispatcher(application.Pool, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logging.Component("outbox")))
	}

	logger.Info().
		Str("addr", cfg.HTTPAddress).
		Str("daily_execution_time", cfg.Schedule.DailyExecutionTime).
		Str("timezone", application.Location.String()).
		Str("store", cfg.StoreBackend).
		Msg("marathon service starting")

	if err := sup.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("supervisor stopped")
	}
	logger.Info().Msg("marathon service stopped")
}

// requestLogger logs each request after it is served.
func requestLogger(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Int("status", rec.status).Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
