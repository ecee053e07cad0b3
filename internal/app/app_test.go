package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"example.com/marathon/internal/config"
	"example.com/marathon/internal/domain"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("SCHEDULE_TIMEZONE", "Europe/London")
	t.Setenv("ATHLETE_1_NAME", "Alice")
	t.Setenv("ATHLETE_1_REFRESH_TOKEN", "seed-r1")
	return config.Load()
}

func TestNewWithMemoryBackend(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.Nil(t, a.Pool)
	require.NotNil(t, a.Orchestrator)
	require.Equal(t, "Europe/London", a.Location.String())
}

func TestSeedAthletesKeepsRotatedToken(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, a.SeedAthletes(ctx))
	athletes, err := a.Store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, athletes, 1)
	require.Equal(t, "seed-r1", athletes[0].RefreshToken)

	require.NoError(t, a.Store.UpdateTokens(ctx, athletes[0].ID, domainToken("rotated")))
	require.NoError(t, a.SeedAthletes(ctx))
	athlete, err := a.Store.GetAthlete(ctx, athletes[0].ID)
	require.NoError(t, err)
	require.Equal(t, "rotated", athlete.RefreshToken)
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Schedule.Timezone = "Mars/Olympus"
	_, err := New(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}

func domainToken(refresh string) domain.Token {
	return domain.Token{AccessToken: "a", RefreshToken: refresh}
}
