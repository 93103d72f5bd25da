// Package activation holds back unmuted audio and fullscreen until the
// first user gesture, as required by autoplay policies.
package activation

import (
	"sync"

	zlog "github.com/rs/zerolog/log"
)

// Actions are applied once, in order, on the first gesture.
type Actions struct {
	Unmute            func()
	ApplyVolume       func(level float64)
	RequestFullscreen func()
	ResumeAmbient     func()
	Dismiss           func()
}

// Gate tracks whether playback has been authorized by a gesture.
type Gate struct {
	mu        sync.Mutex
	kiosk     bool
	satisfied bool
	volume    float64
	actions   Actions
}

// NewGate creates a gate. Outside kiosk presentation the gate never applies.
func NewGate(kiosk bool, volume float64, actions Actions) *Gate {
	return &Gate{
		kiosk:     kiosk,
		satisfied: !kiosk,
		volume:    volume,
		actions:   actions,
	}
}

// Required reports whether the activation affordance must be shown.
func (g *Gate) Required() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.satisfied
}

// Gesture handles a click, key or touch. Only the first call has any effect.
// It returns true when this call activated the gate.
func (g *Gate) Gesture() bool {
	g.mu.Lock()
	if g.satisfied {
		g.mu.Unlock()
		return false
	}
	g.satisfied = true
	g.mu.Unlock()

	zlog.Info().Msgf("Playback activated by gesture: volume=%.2f", g.volume)
	call(g.actions.Unmute)
	if g.actions.ApplyVolume != nil {
		g.actions.ApplyVolume(g.volume)
	}
	if g.kiosk {
		call(g.actions.RequestFullscreen)
	}
	call(g.actions.ResumeAmbient)
	call(g.actions.Dismiss)
	return true
}

// Muted reports whether playback must stay muted.
func (g *Gate) Muted() bool {
	return g.Required()
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
