// Package app wires configuration into the collaborators shared by the binaries.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"example.com/marathon/internal/config"
	"example.com/marathon/internal/domain"
	"example.com/marathon/internal/notify"
	"example.com/marathon/internal/persistence/memory"
	"example.com/marathon/internal/persistence/postgres"
	"example.com/marathon/internal/plan"
	"example.com/marathon/internal/report"
	"example.com/marathon/internal/scheduler"
	"example.com/marathon/internal/strava"
)

// fetchPages bounds one athlete-date fetch in units of the per-request timeout.
const fetchPages = 4

// App holds the wired service graph.
type App struct {
	Config       config.Config
	Store        domain.Store
	Pool         *pgxpool.Pool // nil with the memory backend
	Strava       *strava.Client
	Orchestrator *scheduler.Orchestrator
	Dashboard    *report.Builder
	Team         *domain.TeamService
	Importer     *plan.Importer
	Location     *time.Location
	logger       zerolog.Logger
}

// New connects storage and builds every collaborator from cfg.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	a := &App{Config: cfg, Location: loc, logger: logger}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	budget := strava.NewBudget(a.Store, cfg.Strava.Limit15Min, 15*time.Minute, cfg.Strava.LimitDaily)
	a.Strava = strava.NewClient(strava.Config{
		ClientID:       cfg.Strava.ClientID,
		ClientSecret:   cfg.Strava.ClientSecret,
		RedirectURL:    cfg.Strava.RedirectURL,
		APIBaseURL:     cfg.Strava.APIBaseURL,
		AuthURL:        cfg.Strava.AuthURL,
		TokenURL:       cfg.Strava.TokenURL,
		RequestTimeout: cfg.Strava.RequestTimeout,
	}, strava.WithBudget(budget), strava.WithLogger(logger.With().Str("component", "strava").Logger()))

	whatsapp := notify.NewWhatsAppChannel(notify.WhatsAppConfig{
		APIURL:        cfg.WhatsApp.APIURL,
		AccessToken:   cfg.WhatsApp.AccessToken,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		Recipient:     cfg.WhatsApp.Recipient,
		Timeout:       cfg.WhatsApp.Timeout,
	}, &http.Client{})
	email := notify.NewEmailChannel(notify.EmailConfig{
		Host:       cfg.Email.SMTPHost,
		Port:       cfg.Email.SMTPPort,
		Username:   cfg.Email.Username,
		Password:   cfg.Email.Password,
		From:       cfg.Email.From,
		Recipients: cfg.Email.Recipients,
		Timeout:    cfg.Email.Timeout,
	})
	dispatcher := notify.NewDispatcher(whatsapp, email, a.Store, logger.With().Str("component", "notify").Logger())

	planLogger := logger.With().Str("component", "plan").Logger()
	reader := plan.NewReader(cfg.PlanFile, plan.WithSheet(cfg.PlanSheet), plan.WithLogger(planLogger))

	a.Orchestrator = scheduler.NewOrchestrator(a.Store, a.Strava,
		scheduler.WithPlanSource(reader),
		scheduler.WithNotifier(dispatcher),
		scheduler.WithLogger(logger.With().Str("component", "orchestrator").Logger()),
		scheduler.WithLocation(loc),
		scheduler.WithWindowDays(cfg.Schedule.SyncWindowDays),
		scheduler.WithCallTimeout(fetchPages*cfg.Strava.RequestTimeout),
	)
	a.Dashboard = report.NewBuilder(a.Store, a.Store, a.Store)
	a.Team = domain.NewTeamService(a.Store)
	a.Importer = plan.NewImporter(a.Store, a.Store, planLogger)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	if a.Config.StoreBackend == "memory" {
		a.logger.Warn().Msg("using in-memory store; data is lost on restart")
		a.Store = memory.NewStore()
		return nil
	}

	pool, err := pgxpool.New(ctx, a.Config.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	a.Pool = pool
	a.Store = postgres.NewStore(pool, postgres.WithOutboxTopic(a.Config.OutboxTopic))
	return nil
}

// SeedAthletes registers athletes configured through the environment. A
// stored refresh token is kept, since Strava may have rotated it.
func (a *App) SeedAthletes(ctx context.Context) error {
	for _, seed := range a.Config.Athletes {
		athlete, err := a.Store.EnsureAthlete(ctx, seed.Name)
		if err != nil {
			return fmt.Errorf("seed athlete %q: %w", seed.Name, err)
		}
		if athlete.RefreshToken != "" {
			continue
		}
		if err := a.Store.UpdateTokens(ctx, athlete.ID, domain.Token{RefreshToken: seed.RefreshToken}); err != nil {
			return fmt.Errorf("seed athlete %q token: %w", seed.Name, err)
		}
		a.logger.Info().Str("athlete", seed.Name).Msg("seeded athlete refresh token")
	}
	return nil
}

// Close releases storage connections.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}
