package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/osa030/kioskbox/internal/app/playback"
	"github.com/osa030/kioskbox/internal/app/resilience"
	"github.com/osa030/kioskbox/internal/app/timers"
	"github.com/osa030/kioskbox/internal/infra/logger"
)

// HTTPSink posts telemetry to the backend REST API.
type HTTPSink interface {
	PostTelemetry(ctx context.Context, playerID string, ev Event) error
}

// ChannelSink publishes telemetry over the persistent duplex channel.
type ChannelSink interface {
	Connected() bool
	PublishPlaybackEvent(ctx context.Context, ev Event) error
}

// Config holds reporter configuration.
type Config struct {
	PlayerID    string
	QueueSize   int
	SendTimeout time.Duration
}

// Reporter queues telemetry and delivers it from a worker goroutine.
// Delivery failures are logged and swallowed.
type Reporter struct {
	cfg     Config
	http    HTTPSink
	channel ChannelSink
	gate    *resilience.Gate
	clock   timers.Clock
	log     zerolog.Logger

	queue   chan Event
	dropped atomic.Int64
	sent    atomic.Int64
	onDrop  func(reason string)

	mu       sync.Mutex
	playerID string

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewReporter creates a reporter. Either sink may be nil.
func NewReporter(cfg Config, http HTTPSink, channel ChannelSink, gate *resilience.Gate, clock timers.Clock) *Reporter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if clock == nil {
		clock = timers.Real()
	}
	return &Reporter{
		cfg:      cfg,
		http:     http,
		channel:  channel,
		gate:     gate,
		clock:    clock,
		log:      logger.Component("telemetry"),
		queue:    make(chan Event, cfg.QueueSize),
		playerID: cfg.PlayerID,
	}
}

// OnDrop registers a hook called whenever an event is discarded.
func (r *Reporter) OnDrop(fn func(reason string)) {
	r.onDrop = fn
}

// SetPlayerID changes the player identity stamped on events.
func (r *Reporter) SetPlayerID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playerID = id
}

func (r *Reporter) currentPlayerID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playerID
}

// Start runs the delivery worker until ctx is cancelled or Stop is called.
func (r *Reporter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-r.queue:
				r.deliver(ctx, ev)
			}
		}
	}()
}

// Stop stops the worker. Queued events are discarded.
func (r *Reporter) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// OnPlaybackEvent implements playback.Observer.
func (r *Reporter) OnPlaybackEvent(e playback.Event) {
	now := r.clock.Now()
	id := r.currentPlayerID()

	switch e.Type {
	case playback.EventItemStarted:
		r.enqueue(Event{Type: EventPlaybackStart, Data: newPayload(id, e.Session, e.Item, e.Length, now)})
	case playback.EventItemEnded:
		p := newPayload(id, e.Session, e.Item, e.Length, now)
		p.Elapsed = e.Elapsed.Seconds()
		r.enqueue(Event{Type: EventPlaybackEnd, Data: p})
	case playback.EventContentChanged:
		p := newPayload(id, e.Session, e.Item, e.Length, now)
		if e.Previous != nil {
			p.PreviousContentID = e.Previous.ID
		}
		if e.Item != nil {
			p.NextContentID = e.Item.ID
		}
		r.enqueue(Event{Type: EventContentChange, Data: p})
	}
}

// Heartbeat reports that the session is still playing. Idle sessions are not reported.
func (r *Reporter) Heartbeat(s playback.Session, length int) {
	if !s.Playing {
		return
	}
	now := r.clock.Now()
	item := s.Item
	p := newPayload(r.currentPlayerID(), s, &item, length, now)
	p.Elapsed = s.ItemElapsed(now).Seconds()
	r.enqueue(Event{Type: EventPlaybackHeartbeat, Data: p})
}

// Dropped returns the number of discarded events.
func (r *Reporter) Dropped() int64 {
	return r.dropped.Load()
}

// Sent returns the number of delivered events.
func (r *Reporter) Sent() int64 {
	return r.sent.Load()
}

func (r *Reporter) enqueue(ev Event) {
	select {
	case r.queue <- ev:
	default:
		r.drop(ev, "queue_full")
	}
}

func (r *Reporter) drop(ev Event, reason string) {
	r.dropped.Add(1)
	r.log.Debug().Msgf("Telemetry dropped: type=%s, reason=%s", ev.Type, reason)
	if r.onDrop != nil {
		r.onDrop(reason)
	}
}

// drainPending delivers everything queued without waiting for more.
func (r *Reporter) drainPending(ctx context.Context) {
	for {
		select {
		case ev := <-r.queue:
			r.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (r *Reporter) deliver(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	defer cancel()

	send, ok := r.route(ev)
	if !ok {
		r.drop(ev, "no_route")
		return
	}

	var err error
	if r.gate != nil {
		err = r.gate.Attempt(ctx, send)
	} else {
		err = send(ctx)
	}
	if err != nil {
		r.log.Debug().Msgf("Telemetry not delivered: type=%s, err=%v", ev.Type, err)
		r.drop(ev, "send_failed")
		return
	}
	r.sent.Add(1)
}

// route prefers the duplex channel and falls back to HTTP.
func (r *Reporter) route(ev Event) (func(context.Context) error, bool) {
	if r.channel != nil && r.channel.Connected() {
		return func(ctx context.Context) error {
			return r.channel.PublishPlaybackEvent(ctx, ev)
		}, true
	}
	if r.http == nil || ev.Type.HTTPPath() == "" {
		return nil, false
	}
	id := ev.Data.PlayerID
	return func(ctx context.Context) error {
		return r.http.PostTelemetry(ctx, id, ev)
	}, true
}
