// Package main provides the signage player entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/kioskbox/internal/app/ambient"
	"github.com/osa030/kioskbox/internal/app/media"
	"github.com/osa030/kioskbox/internal/app/player"
	"github.com/osa030/kioskbox/internal/app/playback"
	"github.com/osa030/kioskbox/internal/app/resilience"
	"github.com/osa030/kioskbox/internal/app/telemetry"
	"github.com/osa030/kioskbox/internal/app/timers"
	"github.com/osa030/kioskbox/internal/domain/content"
	"github.com/osa030/kioskbox/internal/domain/playlist"
	"github.com/osa030/kioskbox/internal/infra/backend"
	"github.com/osa030/kioskbox/internal/infra/config"
	"github.com/osa030/kioskbox/internal/infra/duplex"
	"github.com/osa030/kioskbox/internal/infra/logger"
	"github.com/osa030/kioskbox/internal/infra/metrics"
)

var version = "dev"

var (
	app        = kingpin.New("kioskbox", "kioskbox digital signage player")
	configPath = app.Flag("config", "Path to config file (empty: environment only)").Default("config/player.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	runCmd         = app.Command("run", "Run the player (default)").Default()
	playerID       = runCmd.Flag("player-id", "Display ID (overrides config)").String()
	accessCode     = runCmd.Flag("access-code", "Access code to pair the display with (overrides config)").String()
	metricsAddr    = runCmd.Flag("metrics-addr", "Address for the Prometheus endpoint (overrides config)").String()
	requireGesture = runCmd.Flag("require-gesture", "Start muted and wait for a gesture (kiosk presentation)").Bool()
	stdinGestures  = runCmd.Flag("stdin-gestures", "Treat each line on stdin as a user gesture").Bool()

	resolveCmd  = app.Command("resolve", "Resolve an access code to a display ID and exit")
	resolveCode = resolveCmd.Arg("code", "Access code").Required().String()

	infoCmd = app.Command("info", "Print the display metadata and current playlist and exit")
	infoID  = infoCmd.Arg("player-id", "Display ID (default: from config)").String()

	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	if closer != nil {
		defer closer.Close()
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Error().Msgf("Failed to load config: %v", err)
		os.Exit(1)
	}
	if cfg.Debug && !*verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	switch command {
	case checkConfigCmd.FullCommand():
		fmt.Println("Config OK")
		return
	case resolveCmd.FullCommand():
		err = resolve(cfg, *resolveCode)
	case infoCmd.FullCommand():
		err = info(cfg, *infoID)
	default:
		applyFlags(cfg)
		err = run(cfg)
	}
	if err != nil {
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

// applyFlags overrides config values with command-line flags.
func applyFlags(cfg *config.Config) {
	if *playerID != "" {
		cfg.Player.ID = *playerID
	}
	if *accessCode != "" {
		cfg.Player.AccessCode = *accessCode
		if *playerID == "" {
			cfg.Player.ID = ""
		}
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *requireGesture {
		cfg.Player.Presentation = config.PresentationKiosk
	}
}

func newBackend(ctx context.Context, cfg *config.Config) (*backend.Client, error) {
	return backend.New(ctx, backend.Config{
		BaseURL:   cfg.Backend.URL,
		Token:     cfg.Backend.Token,
		Timeout:   cfg.Backend.Timeout(),
		UserAgent: "kioskbox/" + version,
	})
}

// run executes the player. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	if cfg.Player.ID == "" && cfg.Player.AccessCode == "" {
		return errors.New("player id or access code is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := newBackend(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create backend client")
	}

	m := metrics.New()
	clock := timers.Real()

	var channel *duplex.Channel
	if cfg.Channel.URL != "" {
		channel, err = duplex.New(duplex.Config{
			URL:            cfg.Channel.URL,
			Token:          cfg.Backend.Token,
			ReconnectDelay: cfg.Channel.ReconnectDelay(),
			PingInterval:   cfg.Channel.PingInterval(),
		})
		if err != nil {
			return errors.Wrap(err, "failed to create channel")
		}
		channel.OnState(m.ChannelConnected)
	}

	telemetryGate := resilience.NewGate(resilience.Config{
		Name:        "telemetry",
		MaxAttempts: cfg.Resilience.MaxReconnectAttempts,
		RetryDelay:  cfg.Resilience.ReconnectDelay(),
		Cooldown:    cfg.Resilience.CircuitCooldown(),
		Backoff:     cfg.Resilience.Backoff,
	}, clock)
	reporter := telemetry.NewReporter(telemetry.Config{
		PlayerID:    cfg.Player.ID,
		QueueSize:   cfg.Telemetry.QueueSize,
		SendTimeout: cfg.Telemetry.SendTimeout(),
	}, player.HTTPTelemetry{Client: client}, player.ChannelTelemetry{Channel: channel}, telemetryGate, clock)
	reporter.OnDrop(m.TelemetryDropped)

	hostname, _ := os.Hostname()

	var startChannel sync.Once
	p, err := player.New(player.Config{
		PlayerID:              cfg.Player.ID,
		AccessCode:            cfg.Player.AccessCode,
		Kiosk:                 cfg.Kiosk(),
		Volume:                cfg.VolumeLevel(),
		Version:               version,
		Hostname:              hostname,
		PlaylistCheckInterval: cfg.Refresh.PlaylistCheckInterval(),
		KeepaliveInterval:     cfg.Refresh.KeepaliveInterval(),
		HeartbeatInterval:     cfg.Telemetry.HeartbeatInterval(),
		CursorHideDelay:       cfg.Playback.CursorHideDelay(),
		ErrorBanner:           cfg.Playback.ErrorBanner(),
		Scheduler: playback.Config{
			DefaultImageDuration: cfg.Playback.DefaultImageDuration(),
			TransitionOverride:   cfg.Playback.TransitionTime(),
			MediaErrorAdvance:    cfg.Playback.MediaErrorAdvance(),
		},
		Playlist: resilience.Config{
			Name:        "playlist",
			MaxAttempts: cfg.Resilience.MaxReconnectAttempts,
			RetryDelay:  cfg.Resilience.ReconnectDelay(),
			Cooldown:    cfg.Resilience.CircuitCooldown(),
			Backoff:     cfg.Resilience.Backoff,
		},
		Keepalive: resilience.Config{
			Name:        "keepalive",
			MaxAttempts: cfg.Resilience.MaxReconnectAttempts,
			RetryDelay:  cfg.Resilience.KeepaliveRetryDelay(),
			Cooldown:    cfg.Resilience.CircuitCooldown(),
			Backoff:     cfg.Resilience.Backoff,
		},
	}, player.Deps{
		Source:   client,
		Adapters: newAdapters(cfg, clock),
		Ambient:  newAmbient(cfg),
		Reporter: reporter,
		Recorder: m,
		Clock:    clock,
		Identified: func(id string) {
			if channel == nil {
				return
			}
			startChannel.Do(func() {
				go channel.Run(ctx, id)
			})
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create player")
	}
	if channel != nil {
		channel.Handle(duplex.EventRemoteCommand, p.Remote().HandleRaw)
	}

	var server *http.Server
	serverErrCh := make(chan error, 1)
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		server = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			zlog.Info().Msgf("Starting metrics server: addr=%s", cfg.Metrics.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrCh <- err
			}
		}()
	}

	if *stdinGestures {
		go readGestures(p)
	}

	go func() {
		if err := p.Run(ctx); err != nil {
			zlog.Error().Msgf("Player failed: %v", err)
		}
	}()

	executeHooks(cfg.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-p.Done():
		zlog.Info().Msg("Player ended, shutting down...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "metrics server error")
	}

	cancel()
	select {
	case <-p.Done():
	case <-time.After(15 * time.Second):
		zlog.Warn().Msg("Player did not stop in time")
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to shutdown metrics server: %v", err)
		}
	}

	executeHooks(cfg.Hooks.OnStopped, "on_stopped")
	return runErr
}

// newAdapters builds the media adapters selected by the config.
func newAdapters(cfg *config.Config, clock timers.Clock) *media.Set {
	set := media.NewSet()
	if cfg.Media.Renderer == config.RendererCommand {
		set.Register(content.TypeVideo, media.NewCommandAdapter(commandConfig(cfg.Media.Video)))
		set.Register(content.TypeImage, media.NewCommandAdapter(commandConfig(cfg.Media.Image)))
		return set
	}
	set.Register(content.TypeVideo, media.NewSimulatedAdapter(clock, cfg.Playback.DefaultImageDuration()))
	set.Register(content.TypeImage, media.NewSimulatedAdapter(clock, cfg.Playback.DefaultImageDuration()))
	return set
}

func commandConfig(c config.CommandConfig) media.CommandConfig {
	return media.CommandConfig{
		Args:      c.Args,
		LoopArgs:  c.LoopArgs,
		MuteArgs:  c.MuteArgs,
		Continues: c.Continues,
	}
}

func newAmbient(cfg *config.Config) ambient.Sink {
	if cfg.Media.Ambient == "none" {
		return ambient.NullSink{}
	}
	return ambient.NewBeepSink(nil)
}

// readGestures forwards each line read from stdin as a gesture.
func readGestures(p *player.Player) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		p.Gesture()
	}
}

// resolve prints the display ID for an access code.
func resolve(cfg *config.Config, code string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.Timeout())
	defer cancel()

	client, err := newBackend(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create backend client")
	}
	id, err := client.ResolveAccessCode(ctx, code)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

// info prints the display metadata and its current playlist.
func info(cfg *config.Config, id string) error {
	if id == "" {
		id = cfg.Player.ID
	}
	if id == "" {
		return errors.New("player id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.Timeout())
	defer cancel()

	client, err := newBackend(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create backend client")
	}

	meta, err := client.PlayerInfo(ctx, id)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		fmt.Printf("Display: %s (no metadata)\n", id)
	case err != nil:
		return err
	default:
		fmt.Printf("Display: %s\n", meta)
	}

	snap, err := client.FetchPlaylist(ctx, id)
	if err != nil {
		return err
	}
	printPlaylist(os.Stdout, snap)
	return nil
}

// printPlaylist writes a human-readable listing of snap.
// Items of a type the player cannot render are flagged.
func printPlaylist(w io.Writer, snap playlist.Snapshot) {
	fmt.Fprintf(w, "Mode: %s, loop: %s, shuffle: %v\n", snap.Config.Mode, snap.Config.LoopBehavior, snap.Config.ShuffleEnabled)
	if snap.Playlist.AmbientAudioURL != "" {
		fmt.Fprintf(w, "Ambient audio: %s\n", snap.Playlist.AmbientAudioURL)
	}
	fmt.Fprintf(w, "Items (%d, total %s):\n", snap.Playlist.Len(), snap.Playlist.TotalDuration())
	for i, item := range snap.Playlist.Items {
		mark := ""
		if !item.Type.IsSupported() {
			mark = "  (unsupported)"
		}
		fmt.Fprintf(w, "  %2d. %-6s %-30s %8s  %s%s\n", i+1, item.Type, item.Title, item.Duration, item.ID, mark)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
