package media

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/kioskbox/internal/app/timers"
	"github.com/osa030/kioskbox/internal/domain/content"
)

// SimulatedAdapter renders nothing. Videos "end" after their advertised
// duration (or Fallback), which makes it usable for headless dry runs.
type SimulatedAdapter struct {
	mu       sync.Mutex
	clock    timers.Clock
	fallback time.Duration

	item      content.Item
	opts      MountOptions
	emit      func(Event)
	timer     timers.Timer
	remaining time.Duration
	startedAt time.Time
	mounted   bool
}

// NewSimulatedAdapter creates a simulated adapter.
func NewSimulatedAdapter(clock timers.Clock, fallback time.Duration) *SimulatedAdapter {
	if fallback <= 0 {
		fallback = 30 * time.Second
	}
	return &SimulatedAdapter{clock: clock, fallback: fallback}
}

func (a *SimulatedAdapter) Mount(item content.Item, opts MountOptions, emit func(Event)) error {
	a.Unmount()

	a.mu.Lock()
	a.item = item
	a.opts = opts
	a.emit = emit
	a.mounted = true
	a.remaining = item.Duration
	if a.remaining <= 0 {
		a.remaining = a.fallback
	}
	a.mu.Unlock()

	zlog.Info().Msgf("[simulated] mount: type=%s, id=%s, title=%q", item.Type, item.ID, item.Title)
	emit(Event{Type: EventReady, Token: opts.Token, ItemID: item.ID})
	return nil
}

func (a *SimulatedAdapter) Play() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mounted {
		return ErrMedia
	}
	a.emit(Event{Type: EventStarted, Token: a.opts.Token, ItemID: a.item.ID})
	a.startLocked()
	return nil
}

func (a *SimulatedAdapter) startLocked() {
	if !a.item.IsVideo() {
		return
	}
	a.startedAt = a.clock.Now()
	token := a.opts.Token
	a.timer = a.clock.AfterFunc(a.remaining, func() { a.finish(token) })
}

func (a *SimulatedAdapter) finish(token uint64) {
	a.mu.Lock()
	if !a.mounted || a.opts.Token != token {
		a.mu.Unlock()
		return
	}
	if a.opts.Loop {
		a.remaining = a.item.Duration
		if a.remaining <= 0 {
			a.remaining = a.fallback
		}
		a.startLocked()
		a.mu.Unlock()
		return
	}
	a.timer = nil
	emit, itemID := a.emit, a.item.ID
	a.mu.Unlock()

	emit(Event{Type: EventEnded, Token: token, ItemID: itemID})
}

func (a *SimulatedAdapter) Pause() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
		a.remaining -= a.clock.Now().Sub(a.startedAt)
	}
	return nil
}

func (a *SimulatedAdapter) Resume() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mounted && a.timer == nil {
		a.startLocked()
	}
	return nil
}

func (a *SimulatedAdapter) SetAudio(muted bool, volume float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts.Muted = muted
	a.opts.Volume = volume
}

func (a *SimulatedAdapter) Unmount() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mounted = false
}
