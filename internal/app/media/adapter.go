// Package media renders content items and reports their lifecycle.
package media

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/kioskbox/internal/domain/content"
)

// Errors
var (
	ErrMedia                  = errors.New("media failed to load or play")
	ErrUnsupportedContentType = errors.New("unsupported content type")
)

// EventType represents a media lifecycle event type.
type EventType int

const (
	EventReady   EventType = iota // Item is loaded and can start
	EventStarted                  // Playback has begun
	EventEnded                    // Playback finished naturally
	EventErrored                  // Item failed to load or play
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventStarted:
		return "started"
	case EventEnded:
		return "ended"
	case EventErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Event is emitted by an adapter for the item mounted with Token.
type Event struct {
	Type   EventType
	Token  uint64
	ItemID string
	Err    error
}

// MountOptions configures a single mount.
type MountOptions struct {
	Token  uint64  // identifies this mount; echoed on every event
	Loop   bool    // restart in place on end instead of emitting EventEnded
	Muted  bool
	Volume float64 // 0.0 - 1.0
}

// Adapter renders one content type.
//
// Events are delivered through emit and may be sent from any goroutine.
// Adapters must not block in emit.
type Adapter interface {
	Mount(item content.Item, opts MountOptions, emit func(Event)) error
	Play() error
	Pause() error
	Resume() error
	SetAudio(muted bool, volume float64)
	Unmount()
}

// Set holds one adapter per content type.
type Set struct {
	adapters map[content.Type]Adapter
	order    []content.Type
}

// NewSet creates an empty adapter set.
func NewSet() *Set {
	return &Set{adapters: make(map[content.Type]Adapter)}
}

// Register sets the adapter for a content type.
func (s *Set) Register(t content.Type, a Adapter) {
	if _, ok := s.adapters[t]; !ok {
		s.order = append(s.order, t)
	}
	s.adapters[t] = a
}

// For returns the adapter for a content type.
func (s *Set) For(t content.Type) (Adapter, error) {
	a, ok := s.adapters[t]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedContentType, "type=%q", string(t))
	}
	return a, nil
}

// SetAudio applies audio settings to every adapter.
func (s *Set) SetAudio(muted bool, volume float64) {
	for _, t := range s.order {
		s.adapters[t].SetAudio(muted, volume)
	}
}

// UnmountAll unmounts every adapter.
func (s *Set) UnmountAll() {
	for _, t := range s.order {
		s.adapters[t].Unmount()
	}
}
