// Package player runs the signage engine: one event loop that owns the
// scheduler, the timers and every piece of session state.
//
// Network calls, media adapters and timers never touch that state directly;
// they post closures to the loop's inbox.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/osa030/kioskbox/internal/app/activation"
	"github.com/osa030/kioskbox/internal/app/ambient"
	"github.com/osa030/kioskbox/internal/app/media"
	"github.com/osa030/kioskbox/internal/app/playback"
	"github.com/osa030/kioskbox/internal/app/remote"
	"github.com/osa030/kioskbox/internal/app/resilience"
	"github.com/osa030/kioskbox/internal/app/telemetry"
	"github.com/osa030/kioskbox/internal/app/timers"
	"github.com/osa030/kioskbox/internal/domain/playlist"
	"github.com/osa030/kioskbox/internal/infra/backend"
	"github.com/osa030/kioskbox/internal/infra/logger"
)

// Timer purposes owned by the engine.
const (
	PurposeRefresh     timers.Purpose = "playlist_refresh"
	PurposeKeepalive   timers.Purpose = "keepalive"
	PurposeHeartbeat   timers.Purpose = "heartbeat"
	PurposeCountdown   timers.Purpose = "countdown"
	PurposeErrorBanner timers.Purpose = "error_banner"
	PurposeCursor      timers.Purpose = "cursor"
)

// Source is the backend surface used by the engine.
type Source interface {
	FetchPlaylist(ctx context.Context, playerID string) (playlist.Snapshot, error)
	ResolveAccessCode(ctx context.Context, code string) (string, error)
	PlayerInfo(ctx context.Context, playerID string) (*backend.PlayerInfo, error)
	Connect(ctx context.Context, playerID string, p backend.Presence) error
}

// Recorder receives engine instruments. *metrics.Metrics implements it.
type Recorder interface {
	playback.Observer
	GateChanged(gate string, t resilience.Transition)
	FetchFailed()
}

// Config holds engine configuration.
type Config struct {
	PlayerID   string
	AccessCode string
	Kiosk      bool
	Volume     float64
	Version    string
	Hostname   string

	PlaylistCheckInterval time.Duration
	KeepaliveInterval     time.Duration
	HeartbeatInterval     time.Duration
	CursorHideDelay       time.Duration
	ErrorBanner           time.Duration

	Scheduler playback.Config
	Playlist  resilience.Config
	Keepalive resilience.Config
}

func (c *Config) setDefaults() {
	if c.PlaylistCheckInterval <= 0 {
		c.PlaylistCheckInterval = time.Minute
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.ErrorBanner <= 0 {
		c.ErrorBanner = 5 * time.Second
	}
	if c.Playlist.Name == "" {
		c.Playlist.Name = "playlist"
	}
	if c.Keepalive.Name == "" {
		c.Keepalive.Name = "keepalive"
	}
	if c.Keepalive.RetryDelay <= 0 {
		c.Keepalive.RetryDelay = 15 * time.Second
	}
}

// Deps are the engine's collaborators. Only Source and Adapters are required.
type Deps struct {
	Source    Source
	Adapters  playback.Adapters
	Ambient   ambient.Sink
	Presenter Presenter
	Reporter  *telemetry.Reporter
	Recorder  Recorder
	Clock     timers.Clock

	// Identified is called on the loop whenever the display identity is known.
	Identified func(playerID string)
}

// Player is the signage engine.
type Player struct {
	cfg   Config
	log   zerolog.Logger
	clock timers.Clock

	source    Source
	adapters  playback.Adapters
	presenter Presenter
	reporter  *telemetry.Reporter
	recorder  Recorder
	onIdent   func(string)

	inbox     *inbox
	timers    *timers.Registry
	sched     *playback.Scheduler
	ambient   *ambient.Controller
	gesture   *activation.Gate
	remote    *remote.Listener
	playlistG *resilience.Gate
	keepalive *resilience.Gate

	spawn func(func())
	wg    sync.WaitGroup

	// Loop-owned state
	playerID   string
	epoch      uint64
	netCtx     context.Context
	netCancel  context.CancelFunc
	fetching   bool
	connecting bool
	stopped    bool
	muted      bool
	volume     float64
	startedAt  time.Time

	snapMu sync.RWMutex
	snap   Snapshot

	done chan struct{}
}

// New creates an engine. Run starts it.
func New(cfg Config, deps Deps) (*Player, error) {
	if deps.Source == nil {
		return nil, errors.New("playlist source is required")
	}
	if deps.Adapters == nil {
		return nil, errors.New("media adapters are required")
	}
	if cfg.PlayerID == "" && cfg.AccessCode == "" {
		return nil, errors.New("player id or access code is required")
	}
	cfg.setDefaults()
	if deps.Clock == nil {
		deps.Clock = timers.Real()
	}
	if deps.Presenter == nil {
		deps.Presenter = NewLogPresenter()
	}

	p := &Player{
		cfg:       cfg,
		log:       logger.Component("player"),
		clock:     deps.Clock,
		source:    deps.Source,
		adapters:  deps.Adapters,
		presenter: deps.Presenter,
		reporter:  deps.Reporter,
		recorder:  deps.Recorder,
		onIdent:   deps.Identified,
		inbox:     newInbox(),
		playerID:  cfg.PlayerID,
		volume:    cfg.Volume,
		done:      make(chan struct{}),
	}
	p.spawn = func(fn func()) {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			fn()
		}()
	}
	p.netCtx, p.netCancel = context.WithCancel(context.Background())

	p.timers = timers.NewRegistry(deps.Clock, func(f timers.Fired) {
		p.post(func() { p.timers.Fire(f) })
	})
	p.sched = playback.NewScheduler(cfg.Scheduler, deps.Adapters, p.timers, func(ev media.Event) {
		p.post(func() { p.sched.HandleMedia(ev) })
	})

	p.gesture = activation.NewGate(cfg.Kiosk, cfg.Volume, activation.Actions{
		Unmute:            p.unmute,
		ApplyVolume:       p.applyVolume,
		RequestFullscreen: p.presenter.RequestFullscreen,
		ResumeAmbient:     func() { p.ambient.Gesture() },
		Dismiss:           p.presenter.HideActivation,
	})
	p.muted = p.gesture.Muted()
	p.ambient = ambient.NewController(deps.Ambient, p.muted)
	p.ambient.SetVolume(cfg.Volume)
	p.sched.SetAmbient(p.ambient)
	p.sched.SetAudio(p.muted, cfg.Volume)

	p.playlistG = resilience.NewGate(cfg.Playlist, deps.Clock)
	p.keepalive = resilience.NewGate(cfg.Keepalive, deps.Clock)
	for _, g := range []*resilience.Gate{p.playlistG, p.keepalive} {
		g := g
		g.OnChange(func(t resilience.Transition, st resilience.State) {
			p.post(func() { p.gateChanged(g, t, st) })
		})
	}

	p.remote = remote.NewListener(func(req remote.Request) {
		p.post(func() { p.command(req) })
	})

	p.sched.AddObserver(playback.ObserverFunc(p.onPlaybackEvent))
	if p.reporter != nil {
		p.reporter.SetPlayerID(p.playerID)
		p.sched.AddObserver(p.reporter)
	}
	if p.recorder != nil {
		p.sched.AddObserver(p.recorder)
	}

	p.publish()
	return p, nil
}

// Remote returns the listener that accepts remote_command payloads.
func (p *Player) Remote() *remote.Listener {
	return p.remote
}

// Done is closed when Run returns.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

// Gesture reports a click, key press or touch.
func (p *Player) Gesture() {
	p.post(p.onGesture)
}

// Activity reports pointer movement; it shows the cursor until it idles again.
func (p *Player) Activity() {
	p.post(p.showCursor)
}

// Run starts the engine and blocks until ctx is cancelled.
// A panic in a handler is logged and the loop restarts.
func (p *Player) Run(ctx context.Context) error {
	defer close(p.done)

	p.startedAt = p.clock.Now()
	p.log.Info().Msgf("Player starting: player_id=%s, kiosk=%v, version=%s", p.playerID, p.cfg.Kiosk, p.cfg.Version)

	if p.reporter != nil {
		p.reporter.Start(ctx)
	}
	p.post(p.start)

	for !p.loop(ctx) {
		p.log.Info().Msg("Restarting engine loop")
	}

	p.teardown()
	p.netCancel()
	p.wg.Wait()
	if p.reporter != nil {
		p.reporter.Stop()
	}
	p.ambient.Close()
	p.publish()
	p.log.Info().Msg("Player stopped")
	return nil
}

// loop runs handlers until ctx is done. It returns false after a recovered panic.
func (p *Player) loop(ctx context.Context) (finished bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Msgf("Engine loop panicked: %v", r)
			finished = false
		}
	}()

	p.inbox.rewake()
	for {
		select {
		case <-ctx.Done():
			return true
		case <-p.inbox.wake:
			for {
				fn, ok := p.inbox.pop()
				if !ok {
					break
				}
				fn()
				p.publish()
			}
		}
	}
}

// pump runs queued handlers on the caller's goroutine until the inbox is empty.
func (p *Player) pump() {
	for {
		fn, ok := p.inbox.pop()
		if !ok {
			return
		}
		fn()
		p.publish()
	}
}

func (p *Player) post(fn func()) {
	p.inbox.push(fn)
}

// start runs the first bootstrap and arms the presentation timers.
func (p *Player) start() {
	if p.gesture.Required() {
		p.presenter.ShowActivation()
	}
	p.showCursor()
	p.bootstrap()
}

// teardown cancels every task, unmounts media and forgets in-flight calls.
func (p *Player) teardown() {
	n := p.timers.CancelAll()
	p.sched.Stop()
	p.adapters.UnmountAll()
	p.ambient.Stop()

	p.epoch++
	p.netCancel()
	p.netCtx, p.netCancel = context.WithCancel(context.Background())
	p.fetching = false
	p.connecting = false

	p.presenter.HideReconnecting()
	p.presenter.HideError()
	p.log.Debug().Msgf("Engine torn down: cancelled_tasks=%d", n)
}

func (p *Player) unmute() {
	p.muted = false
	p.sched.SetAudio(false, p.volume)
	p.ambient.SetMuted(false)
}

func (p *Player) applyVolume(level float64) {
	p.volume = level
	p.sched.SetAudio(p.muted, level)
	p.ambient.SetVolume(level)
}

func (p *Player) onGesture() {
	p.showCursor()
	if !p.gesture.Gesture() {
		// Already activated: only a rejected ambient track may still need it.
		p.ambient.Gesture()
	}
}

func (p *Player) showCursor() {
	p.presenter.SetCursorHidden(false)
	if p.cfg.CursorHideDelay <= 0 {
		return
	}
	p.timers.Schedule(PurposeCursor, p.cfg.CursorHideDelay, func() {
		p.presenter.SetCursorHidden(true)
	})
}

func (p *Player) showError(msg string) {
	p.presenter.ShowError(msg)
	p.timers.Schedule(PurposeErrorBanner, p.cfg.ErrorBanner, p.presenter.HideError)
}

// onPlaybackEvent keeps the overlays in step with the scheduler.
func (p *Player) onPlaybackEvent(e playback.Event) {
	switch e.Type {
	case playback.EventStateChanged:
		switch e.State {
		case playback.StatePlaying:
			p.presenter.HideWaiting()
		case playback.StateIdle:
			if !p.stopped {
				p.presenter.ShowWaiting("Waiting for content")
			}
		case playback.StateError:
			p.showError("Content cannot be played")
		}
	case playback.EventMediaError:
		title := ""
		if e.Item != nil {
			title = e.Item.Title
		}
		p.showError("Media failed to play: " + title)
	case playback.EventHalted:
		p.log.Info().Msg("End of playlist reached")
	}
}

func (p *Player) heartbeat() {
	if p.reporter != nil {
		if s, ok := p.sched.Session(); ok {
			p.reporter.Heartbeat(s, p.sched.Playlist().Playlist.Len())
		}
	}
	p.timers.Schedule(PurposeHeartbeat, p.cfg.HeartbeatInterval, p.heartbeat)
}

// inbox is an unbounded FIFO of handlers. push never blocks, so adapters
// may emit from inside a handler.
type inbox struct {
	mu    sync.Mutex
	items []func()
	wake  chan struct{}
}

func newInbox() *inbox {
	return &inbox{wake: make(chan struct{}, 1)}
}

func (q *inbox) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// rewake re-arms the wake signal when handlers are still queued.
func (q *inbox) rewake() {
	q.mu.Lock()
	pending := len(q.items) > 0
	q.mu.Unlock()
	if pending {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
}

func (q *inbox) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	fn := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return fn, true
}
