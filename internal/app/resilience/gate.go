// Package resilience wraps network operations with failure counting,
// per-failure retry delays and a circuit breaker.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/kioskbox/internal/app/timers"
)

// ErrCircuitOpen is returned while the circuit suppresses attempts.
var ErrCircuitOpen = errors.New("system temporarily unavailable")

// Backoff policies for per-failure retry delays.
const (
	BackoffConstant    = "constant"
	BackoffExponential = "exponential"
)

// Config configures a Gate.
type Config struct {
	Name        string
	MaxAttempts int           // consecutive failures before the circuit opens
	RetryDelay  time.Duration // delay before retrying after a failure
	Cooldown    time.Duration // how long the circuit stays open
	Backoff     string        // BackoffConstant or BackoffExponential
}

// State is a snapshot of the gate's connection state.
type State struct {
	Attempts    int
	CircuitOpen bool
	HalfOpen    bool
	Connected   bool
	OpenedAt    time.Time
	ReopensAt   time.Time
}

// Transition is a change of circuit state.
type Transition int

const (
	TransitionOpened   Transition = iota // K consecutive failures reached
	TransitionHalfOpen                   // cooldown elapsed, one trial permitted
	TransitionClosed                     // trial succeeded
)

// String returns the string representation of the transition.
func (t Transition) String() string {
	switch t {
	case TransitionOpened:
		return "opened"
	case TransitionHalfOpen:
		return "half_open"
	case TransitionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Gate counts consecutive failures of one class of network operation.
type Gate struct {
	mu sync.Mutex

	cfg   Config
	clock timers.Clock
	state State

	trialInFlight bool
	cooldownTimer timers.Timer
	generation    uint64
	delays        backoff.BackOff

	onChange func(Transition, State)
}

// NewGate creates a closed gate.
func NewGate(cfg Config, clock timers.Clock) *Gate {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if clock == nil {
		clock = timers.Real()
	}
	return &Gate{
		cfg:    cfg,
		clock:  clock,
		delays: newDelayPolicy(cfg),
	}
}

func newDelayPolicy(cfg Config) backoff.BackOff {
	if cfg.Backoff != BackoffExponential {
		return backoff.NewConstantBackOff(cfg.RetryDelay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.RetryDelay
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxInterval = cfg.Cooldown
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Name returns the gate's name.
func (g *Gate) Name() string {
	return g.cfg.Name
}

// OnChange registers fn to be called on circuit transitions.
// fn runs outside the gate's lock, possibly on a timer goroutine.
func (g *Gate) OnChange(fn func(Transition, State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = fn
}

// Attempt runs fn unless the circuit is open.
// Cancellation of ctx is not counted as a failure.
func (g *Gate) Attempt(ctx context.Context, fn func(context.Context) error) error {
	if err := g.acquire(); err != nil {
		return err
	}

	err := fn(ctx)
	switch {
	case err == nil:
		g.recordSuccess()
	case ctx.Err() != nil:
		g.release()
	default:
		g.recordFailure()
	}
	return err
}

func (g *Gate) acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.CircuitOpen {
		return errors.WithDetailf(ErrCircuitOpen, "gate=%s", g.cfg.Name)
	}
	if g.state.HalfOpen {
		if g.trialInFlight {
			return errors.WithDetailf(ErrCircuitOpen, "gate=%s", g.cfg.Name)
		}
		g.trialInFlight = true
	}
	return nil
}

func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trialInFlight = false
}

func (g *Gate) recordSuccess() {
	g.mu.Lock()
	wasHalfOpen := g.state.HalfOpen
	g.trialInFlight = false
	g.state.Attempts = 0
	g.state.HalfOpen = false
	g.state.Connected = true
	g.delays.Reset()
	state := g.state
	notify := g.onChange
	g.mu.Unlock()

	if wasHalfOpen {
		zlog.Info().Msgf("circuit closed: gate=%s", g.cfg.Name)
		if notify != nil {
			notify(TransitionClosed, state)
		}
	}
}

func (g *Gate) recordFailure() {
	g.mu.Lock()
	g.trialInFlight = false
	g.state.Connected = false
	g.state.Attempts++

	if !g.state.HalfOpen && g.state.Attempts < g.cfg.MaxAttempts {
		g.mu.Unlock()
		return
	}

	g.openLocked()
	state := g.state
	notify := g.onChange
	g.mu.Unlock()

	zlog.Warn().Msgf("circuit opened: gate=%s, attempts=%d, cooldown=%v", g.cfg.Name, state.Attempts, g.cfg.Cooldown)
	if notify != nil {
		notify(TransitionOpened, state)
	}
}

func (g *Gate) openLocked() {
	now := g.clock.Now()
	g.state.CircuitOpen = true
	g.state.HalfOpen = false
	g.state.OpenedAt = now
	g.state.ReopensAt = now.Add(g.cfg.Cooldown)

	if g.cooldownTimer != nil {
		g.cooldownTimer.Stop()
	}
	g.generation++
	gen := g.generation
	g.cooldownTimer = g.clock.AfterFunc(g.cfg.Cooldown, func() {
		g.halfOpen(gen)
	})
}

func (g *Gate) halfOpen(gen uint64) {
	g.mu.Lock()
	if gen != g.generation || !g.state.CircuitOpen {
		g.mu.Unlock()
		return
	}
	g.cooldownTimer = nil
	g.state.CircuitOpen = false
	g.state.HalfOpen = true
	g.state.Attempts = 0
	g.state.ReopensAt = time.Time{}
	g.delays.Reset()
	state := g.state
	notify := g.onChange
	g.mu.Unlock()

	zlog.Info().Msgf("circuit half-open: gate=%s", g.cfg.Name)
	if notify != nil {
		notify(TransitionHalfOpen, state)
	}
}

// RetryDelay returns the delay to wait before retrying after a failure.
func (g *Gate) RetryDelay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	d := g.delays.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		return g.cfg.RetryDelay
	}
	return d
}

// Remaining returns the time left until the circuit half-opens, or zero.
func (g *Gate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.state.CircuitOpen {
		return 0
	}
	left := g.state.ReopensAt.Sub(g.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Open reports whether attempts are currently suppressed.
func (g *Gate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.CircuitOpen
}

// State returns a copy of the gate's state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Reset closes the circuit and forgets all failures. Pending cooldowns are cancelled.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cooldownTimer != nil {
		g.cooldownTimer.Stop()
		g.cooldownTimer = nil
	}
	g.generation++
	g.trialInFlight = false
	g.state = State{}
	g.delays.Reset()
}
