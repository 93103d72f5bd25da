package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"", zerolog.InfoLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestInitFile(t *testing.T) {
	prev := zlog.Logger
	t.Cleanup(func() {
		zlog.Logger = prev
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	path := filepath.Join(t.TempDir(), "logs", "player.log")
	closer, err := Init(Config{Output: "file", Level: "info", File: path})
	require.NoError(t, err)
	require.NotNil(t, closer)

	l := Component("scheduler")
	l.Info().Msg("State changed")
	zlog.Debug().Msg("hidden")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "State changed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry["time"], "T")
}

func TestInitFileRequiresPath(t *testing.T) {
	_, err := Init(Config{Output: "file"})
	assert.Error(t, err)
}

func TestInitStdout(t *testing.T) {
	prev := zlog.Logger
	t.Cleanup(func() { zlog.Logger = prev })

	closer, err := Init(Config{Output: "stdout", Level: "warn"})
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
