package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "player.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"KIOSK_BACKEND_URL", "KIOSK_BACKEND_TOKEN", "KIOSK_PLAYER_ID", "KIOSK_ACCESS_CODE", "KIOSK_CHANNEL_URL"} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
player:
  id: lobby-1
backend:
  url: https://signage.example.com/api
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "lobby-1", cfg.Player.ID)
	assert.True(t, cfg.Kiosk())
	assert.Equal(t, 5*time.Second, cfg.Resilience.ReconnectDelay())
	assert.Equal(t, 5, cfg.Resilience.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, cfg.Resilience.CircuitCooldown())
	assert.Equal(t, 15*time.Second, cfg.Resilience.KeepaliveRetryDelay())
	assert.Equal(t, "constant", cfg.Resilience.Backoff)
	assert.Equal(t, time.Minute, cfg.Refresh.PlaylistCheckInterval())
	assert.Equal(t, time.Minute, cfg.Refresh.KeepaliveInterval())
	assert.Equal(t, time.Duration(0), cfg.Playback.TransitionTime())
	assert.Equal(t, 10*time.Second, cfg.Playback.DefaultImageDuration())
	assert.Equal(t, 3*time.Second, cfg.Playback.MediaErrorAdvance())
	assert.Equal(t, 3*time.Second, cfg.Playback.CursorHideDelay())
	assert.Equal(t, 1.0, cfg.VolumeLevel())
	assert.Equal(t, 30*time.Second, cfg.Telemetry.HeartbeatInterval())
	assert.Equal(t, RendererSimulated, cfg.Media.Renderer)
	assert.False(t, cfg.Debug)
}

func TestLoad_FileValues(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
player:
  access_code: ABC123
  presentation: preview
backend:
  url: https://signage.example.com/api
resilience:
  max_reconnect_attempts: 3
  backoff: exponential
playback:
  transition_time_ms: 500
  volume: 0.25
debug: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ABC123", cfg.Player.AccessCode)
	assert.False(t, cfg.Kiosk())
	assert.Equal(t, 3, cfg.Resilience.MaxReconnectAttempts)
	assert.Equal(t, "exponential", cfg.Resilience.Backoff)
	assert.Equal(t, 500*time.Millisecond, cfg.Playback.TransitionTime())
	assert.Equal(t, 0.25, cfg.VolumeLevel())
	assert.True(t, cfg.Debug)
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("KIOSK_BACKEND_URL", "https://env.example.com")
	t.Setenv("KIOSK_BACKEND_TOKEN", "secret")
	t.Setenv("KIOSK_PLAYER_ID", "env-player")
	t.Setenv("KIOSK_CHANNEL_URL", "wss://env.example.com/ws")

	path := writeConfig(t, `
player:
  id: file-player
backend:
  url: https://file.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Backend.URL)
	assert.Equal(t, "secret", cfg.Backend.Token)
	assert.Equal(t, "env-player", cfg.Player.ID)
	assert.Equal(t, "wss://env.example.com/ws", cfg.Channel.URL)
}

func TestLoad_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("KIOSK_BACKEND_URL", "https://env.example.com")
	t.Setenv("KIOSK_ACCESS_CODE", "XYZ")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", cfg.Player.AccessCode)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "player: [unterminated"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			Player:  PlayerConfig{ID: "p-1"},
			Backend: BackendConfig{URL: "https://signage.example.com"},
		}
		require.NoError(t, defaults.Set(&cfg))
		return cfg
	}
	volume := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing player identity",
			mutate:  func(c *Config) { c.Player.ID = "" },
			wantErr: true,
			errMsg:  "ID",
		},
		{
			name:   "access code instead of id",
			mutate: func(c *Config) { c.Player.ID = ""; c.Player.AccessCode = "ABC" },
		},
		{
			name:    "missing backend url",
			mutate:  func(c *Config) { c.Backend.URL = "" },
			wantErr: true,
			errMsg:  "URL",
		},
		{
			name:    "unknown backoff",
			mutate:  func(c *Config) { c.Resilience.Backoff = "fibonacci" },
			wantErr: true,
			errMsg:  "Backoff",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Resilience.MaxReconnectAttempts = 0 },
			wantErr: true,
			errMsg:  "MaxReconnectAttempts",
		},
		{
			name:    "volume out of range",
			mutate:  func(c *Config) { c.Playback.Volume = volume(1.5) },
			wantErr: true,
			errMsg:  "Volume",
		},
		{
			name:    "unknown presentation",
			mutate:  func(c *Config) { c.Player.Presentation = "fullscreen" },
			wantErr: true,
			errMsg:  "Presentation",
		},
		{
			name:    "command renderer without args",
			mutate:  func(c *Config) { c.Media.Renderer = RendererCommand },
			wantErr: true,
			errMsg:  "media.video.args",
		},
		{
			name: "command renderer with args",
			mutate: func(c *Config) {
				c.Media.Renderer = RendererCommand
				c.Media.Video.Args = []string{"mpv", "{url}"}
				c.Media.Image.Args = []string{"feh", "{url}"}
			},
		},
		{
			name:    "bad metrics addr",
			mutate:  func(c *Config) { c.Metrics.Addr = "not an addr" },
			wantErr: true,
			errMsg:  "Addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problematic field")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}
