// Package ambient drives the looping background audio track that plays
// while image content is on screen.
package ambient

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/kioskbox/internal/domain/content"
)

// ErrPlaybackRejected is returned by a Sink that refuses to start playback
// until the user has interacted with the device.
var ErrPlaybackRejected = errors.New("audio playback rejected")

// Sink is an audio output for one looping track.
type Sink interface {
	// Load replaces the current track. Loading may complete asynchronously.
	Load(url string) error
	Play() error
	Pause()
	Rewind()
	SetMuted(muted bool)
	SetVolume(level float64)
	Close()
}

// State is a snapshot of the controller.
type State struct {
	URL     string
	Loaded  bool
	Muted   bool
	Playing bool
}

// Controller decides when the ambient track plays.
// It is owned by the engine loop and is not safe for concurrent use.
type Controller struct {
	sink  Sink
	state State

	imageActive bool
	blocked     bool // last play was rejected, waiting for a gesture
	retried     bool // the gesture retry has been spent
}

// NewController creates a controller. The track starts muted when muted is true.
func NewController(sink Sink, muted bool) *Controller {
	if sink == nil {
		sink = NullSink{}
	}
	sink.SetMuted(muted)
	return &Controller{
		sink:  sink,
		state: State{Muted: muted},
	}
}

// SetURL loads url if it differs from the current one. An empty url unloads.
func (c *Controller) SetURL(url string) {
	if url == c.state.URL {
		return
	}

	if c.state.Playing {
		c.sink.Pause()
		c.state.Playing = false
	}
	c.state.URL = url
	c.state.Loaded = false
	c.blocked = false
	c.retried = false

	if url == "" {
		c.sink.Close()
		zlog.Debug().Msg("Ambient audio unloaded")
		return
	}

	if err := c.sink.Load(url); err != nil {
		zlog.Warn().Msgf("Failed to load ambient audio: url=%s, err=%v", url, err)
		return
	}
	c.state.Loaded = true
	zlog.Info().Msgf("Ambient audio loaded: url=%s", url)
	c.sync()
}

// SetItem tells the controller which item is on screen. nil means nothing is.
func (c *Controller) SetItem(item *content.Item) {
	c.imageActive = item != nil && item.IsImage()
	c.sync()
}

// Rewind moves the playhead back to the start of the track.
func (c *Controller) Rewind() {
	if !c.state.Loaded {
		return
	}
	c.sink.Rewind()
}

// SetMuted mirrors the global mute flag.
func (c *Controller) SetMuted(muted bool) {
	c.state.Muted = muted
	c.sink.SetMuted(muted)
}

// SetVolume applies a 0.0 - 1.0 volume level.
func (c *Controller) SetVolume(level float64) {
	c.sink.SetVolume(level)
}

// Gesture retries a rejected playback, once.
func (c *Controller) Gesture() {
	if !c.blocked || c.retried {
		return
	}
	c.blocked = false
	c.retried = true
	c.sync()
}

// Stop pauses playback and forgets the active item.
func (c *Controller) Stop() {
	c.imageActive = false
	c.sync()
}

// Close releases the sink.
func (c *Controller) Close() {
	c.Stop()
	c.sink.Close()
}

// State returns a copy of the controller state.
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) sync() {
	want := c.imageActive && c.state.Loaded

	switch {
	case want && !c.state.Playing:
		if c.blocked {
			return
		}
		if err := c.sink.Play(); err != nil {
			if c.retried {
				zlog.Warn().Msgf("Ambient audio rejected again, giving up: err=%v", err)
			} else {
				zlog.Info().Msgf("Ambient audio rejected, waiting for a gesture: err=%v", err)
			}
			c.blocked = true
			return
		}
		c.state.Playing = true
	case !want && c.state.Playing:
		c.sink.Pause()
		c.state.Playing = false
	}
}
