// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Presentation modes.
const (
	PresentationKiosk   = "kiosk"
	PresentationPreview = "preview"
)

// Renderers.
const (
	RendererSimulated = "simulated"
	RendererCommand   = "command"
)

// Config represents the application configuration.
type Config struct {
	Player     PlayerConfig     `yaml:"player"`
	Backend    BackendConfig    `yaml:"backend"`
	Channel    ChannelConfig    `yaml:"channel"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Media      MediaConfig      `yaml:"media"`
	Hooks      HooksConfig      `yaml:"hooks"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Debug      bool             `yaml:"debug"`
}

// PlayerConfig identifies the display.
// Either an id or an access code is required.
type PlayerConfig struct {
	ID           string `yaml:"id" validate:"required_without=AccessCode"`
	AccessCode   string `yaml:"access_code"`
	Presentation string `yaml:"presentation" default:"kiosk" validate:"oneof=kiosk preview"`
}

// BackendConfig represents backend REST API configuration.
type BackendConfig struct {
	URL       string `yaml:"url" validate:"required,url"`
	Token     string `yaml:"token"`
	TimeoutMs int    `yaml:"timeout_ms" default:"15000" validate:"gte=1000,lte=120000"`
}

// ChannelConfig represents the duplex channel configuration.
// An empty URL disables the channel.
type ChannelConfig struct {
	URL              string `yaml:"url" validate:"omitempty,url"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms" default:"5000" validate:"gte=100"`
	PingIntervalMs   int    `yaml:"ping_interval_ms" default:"25000" validate:"gte=1000"`
}

// ResilienceConfig represents retry and circuit-breaker configuration.
type ResilienceConfig struct {
	ReconnectDelayMs      int    `yaml:"reconnect_delay_ms" default:"5000" validate:"gte=0"`
	MaxReconnectAttempts  int    `yaml:"max_reconnect_attempts" default:"5" validate:"gte=1,lte=100"`
	CircuitCooldownMs     int    `yaml:"circuit_cooldown_ms" default:"30000" validate:"gte=0"`
	KeepaliveRetryDelayMs int    `yaml:"keepalive_retry_delay_ms" default:"15000" validate:"gte=0"`
	Backoff               string `yaml:"backoff" default:"constant" validate:"oneof=constant exponential"`
}

// RefreshConfig represents polling configuration.
type RefreshConfig struct {
	PlaylistCheckIntervalMs int `yaml:"playlist_check_interval_ms" default:"60000" validate:"gte=1000"`
	KeepaliveIntervalMs     int `yaml:"keepalive_interval_ms" default:"60000" validate:"gte=1000"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	TransitionTimeMs        int      `yaml:"transition_time_ms" validate:"gte=0,lte=60000"`
	DefaultImageDurationSec int      `yaml:"default_image_duration_sec" default:"10" validate:"gte=1"`
	MediaErrorAdvanceMs     int      `yaml:"media_error_advance_ms" default:"3000" validate:"gte=0"`
	CursorHideDelayMs       int      `yaml:"cursor_hide_delay_ms" default:"3000" validate:"gte=0"`
	ErrorBannerMs           int      `yaml:"error_banner_ms" default:"5000" validate:"gte=0"`
	Volume                  *float64 `yaml:"volume" default:"1.0" validate:"omitempty,gte=0,lte=1"`
}

// TelemetryConfig represents telemetry configuration.
type TelemetryConfig struct {
	HeartbeatIntervalMs int `yaml:"heartbeat_interval_ms" default:"30000" validate:"gte=1000"`
	QueueSize           int `yaml:"queue_size" default:"64" validate:"gte=1"`
	SendTimeoutMs       int `yaml:"send_timeout_ms" default:"10000" validate:"gte=100"`
}

// MediaConfig selects how content is rendered.
type MediaConfig struct {
	Renderer string        `yaml:"renderer" default:"simulated" validate:"oneof=simulated command"`
	Ambient  string        `yaml:"ambient" default:"beep" validate:"oneof=beep none"`
	Video    CommandConfig `yaml:"video"`
	Image    CommandConfig `yaml:"image"`
}

// CommandConfig describes an external renderer process.
type CommandConfig struct {
	Args      []string `yaml:"args"`
	LoopArgs  []string `yaml:"loop_args"`
	MuteArgs  []string `yaml:"mute_args"`
	Continues bool     `yaml:"continues"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// MetricsConfig represents the metrics endpoint configuration.
type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Load loads configuration from a YAML file.
// An empty path loads from the environment only.
// Environment variables take precedence over file values for identity and secrets.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("KIOSK_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("KIOSK_BACKEND_TOKEN"); v != "" {
		c.Backend.Token = v
	}
	if v := os.Getenv("KIOSK_PLAYER_ID"); v != "" {
		c.Player.ID = v
	}
	if v := os.Getenv("KIOSK_ACCESS_CODE"); v != "" {
		c.Player.AccessCode = v
	}
	if v := os.Getenv("KIOSK_CHANNEL_URL"); v != "" {
		c.Channel.URL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validateRenderer(); err != nil {
		return err
	}

	return nil
}

// validateRenderer checks that the command renderer has commands to run.
func (c *Config) validateRenderer() error {
	if c.Media.Renderer != RendererCommand {
		return nil
	}
	if len(c.Media.Video.Args) == 0 {
		return errors.New("media.video.args is required for the command renderer")
	}
	if len(c.Media.Image.Args) == 0 {
		return errors.New("media.image.args is required for the command renderer")
	}
	return nil
}

// Kiosk reports whether the player runs in kiosk presentation.
func (c *Config) Kiosk() bool {
	return c.Player.Presentation == PresentationKiosk
}

// VolumeLevel returns the volume applied on activation.
func (c *Config) VolumeLevel() float64 {
	if c.Playback.Volume == nil {
		return 1.0
	}
	return *c.Playback.Volume
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// ReconnectDelay returns the delay before retrying a failed fetch.
func (r ResilienceConfig) ReconnectDelay() time.Duration { return ms(r.ReconnectDelayMs) }

// CircuitCooldown returns the circuit-open cooldown.
func (r ResilienceConfig) CircuitCooldown() time.Duration { return ms(r.CircuitCooldownMs) }

// KeepaliveRetryDelay returns the delay before retrying a failed connect.
func (r ResilienceConfig) KeepaliveRetryDelay() time.Duration { return ms(r.KeepaliveRetryDelayMs) }

// PlaylistCheckInterval returns the refresh cadence.
func (r RefreshConfig) PlaylistCheckInterval() time.Duration { return ms(r.PlaylistCheckIntervalMs) }

// KeepaliveInterval returns the presence cadence.
func (r RefreshConfig) KeepaliveInterval() time.Duration { return ms(r.KeepaliveIntervalMs) }

// TransitionTime returns the transition override, zero when unset.
func (p PlaybackConfig) TransitionTime() time.Duration { return ms(p.TransitionTimeMs) }

// DefaultImageDuration returns the fallback image dwell.
func (p PlaybackConfig) DefaultImageDuration() time.Duration {
	return time.Duration(p.DefaultImageDurationSec) * time.Second
}

// MediaErrorAdvance returns the delay before skipping a failed asset.
func (p PlaybackConfig) MediaErrorAdvance() time.Duration { return ms(p.MediaErrorAdvanceMs) }

// CursorHideDelay returns the idle time before the pointer is hidden.
func (p PlaybackConfig) CursorHideDelay() time.Duration { return ms(p.CursorHideDelayMs) }

// ErrorBanner returns how long an error banner stays up.
func (p PlaybackConfig) ErrorBanner() time.Duration { return ms(p.ErrorBannerMs) }

// HeartbeatInterval returns the heartbeat cadence.
func (t TelemetryConfig) HeartbeatInterval() time.Duration { return ms(t.HeartbeatIntervalMs) }

// SendTimeout returns the per-event delivery timeout.
func (t TelemetryConfig) SendTimeout() time.Duration { return ms(t.SendTimeoutMs) }

// Timeout returns the HTTP client timeout.
func (b BackendConfig) Timeout() time.Duration { return ms(b.TimeoutMs) }

// ReconnectDelay returns the initial reconnect delay of the channel.
func (c ChannelConfig) ReconnectDelay() time.Duration { return ms(c.ReconnectDelayMs) }

// PingInterval returns the channel ping cadence.
func (c ChannelConfig) PingInterval() time.Duration { return ms(c.PingIntervalMs) }
