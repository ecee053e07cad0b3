package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestComponentLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { Init(Config{}) })

	log := Component("scheduler")
	log.Info().Int("athletes", 3).Msg("sync started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "scheduler", entry["component"])
	require.Equal(t, "sync started", entry["message"])
	require.Equal(t, float64(3), entry["athletes"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.WarnLevel, ParseLevel("WARNING"))
	require.Equal(t, zerolog.DebugLevel, ParseLevel(" debug "))
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.Disabled, ParseLevel("disabled"))
}
