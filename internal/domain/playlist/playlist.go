// Package playlist provides the Playlist and PlaybackConfig domain entities.
package playlist

import (
	"time"

	"github.com/osa030/kioskbox/internal/domain/content"
)

// Mode is the policy that chooses the next content index.
type Mode string

const (
	ModeSequential   Mode = "sequential"
	ModeRandom       Mode = "random"
	ModeSingle       Mode = "single"
	ModeLoopInfinite Mode = "loop_infinite"
)

// LoopBehavior decides what happens at the end of the list.
type LoopBehavior string

const (
	LoopUntilNext LoopBehavior = "until_next"
	LoopInfinite  LoopBehavior = "infinite"
)

// Config governs the scheduler's next-index algorithm.
// Mode and LoopBehavior are always read together.
type Config struct {
	Mode               Mode
	LoopBehavior       LoopBehavior
	ShuffleEnabled     bool
	ContentDuration    time.Duration // Default dwell for items lacking one
	TransitionDuration time.Duration // Blank delay between items
}

// DefaultConfig returns the configuration used when the backend sends none.
func DefaultConfig() Config {
	return Config{
		Mode:         ModeSequential,
		LoopBehavior: LoopUntilNext,
	}
}

// Normalize fills unset values with defaults and maps unknown modes to sequential.
func (c Config) Normalize() Config {
	switch c.Mode {
	case ModeSequential, ModeRandom, ModeSingle, ModeLoopInfinite:
	default:
		c.Mode = ModeSequential
	}
	// Unknown behaviors are kept: they mean "halt at the end of the list".
	if c.LoopBehavior == "" {
		c.LoopBehavior = LoopUntilNext
	}
	if c.ContentDuration < 0 {
		c.ContentDuration = 0
	}
	if c.TransitionDuration < 0 {
		c.TransitionDuration = 0
	}
	return c
}

// Wraps reports whether the end of the list wraps back to index 0.
// loop_infinite wraps regardless of loop behavior.
func (c Config) Wraps() bool {
	if c.Mode == ModeLoopInfinite {
		return true
	}
	return c.LoopBehavior == LoopInfinite || c.LoopBehavior == LoopUntilNext
}

// Randomized reports whether the next index is a random draw.
func (c Config) Randomized() bool {
	return c.Mode == ModeRandom || c.ShuffleEnabled
}

// Playlist is an ordered, immutable set of content items.
// It is replaced wholesale on refresh and never mutated in place.
type Playlist struct {
	Items           []content.Item
	AmbientAudioURL string
}

// Len returns the number of items.
func (p Playlist) Len() int {
	return len(p.Items)
}

// IsEmpty reports whether there is nothing to play.
func (p Playlist) IsEmpty() bool {
	return p.Len() == 0
}

// At returns the item at index i.
func (p Playlist) At(i int) (content.Item, bool) {
	if i < 0 || i >= p.Len() {
		return content.Item{}, false
	}
	return p.Items[i], true
}

// ItemIDs returns all item IDs in order.
func (p Playlist) ItemIDs() []string {
	ids := make([]string, p.Len())
	for i, item := range p.Items {
		ids[i] = item.ID
	}
	return ids
}

// TotalDuration returns the sum of the declared item durations.
func (p Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, item := range p.Items {
		total += item.Duration
	}
	return total
}

// Snapshot is what the playlist source hands to the engine.
type Snapshot struct {
	Playlist Playlist
	Config   Config
}
