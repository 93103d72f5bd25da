package playback

import "github.com/osa030/kioskbox/internal/domain/playlist"

// NextIndex picks the index to play after current.
//
// ok is false when auto-advance must stop: single mode without infinite
// looping, or the end of a non-wrapping list. wrapped is true when the
// sequence restarts at 0.
func NextIndex(cfg playlist.Config, current, length int, draw func(n int) int) (next int, wrapped, ok bool) {
	if length <= 0 {
		return 0, false, false
	}

	if cfg.Mode == playlist.ModeSingle && cfg.LoopBehavior != playlist.LoopInfinite {
		return current, false, false
	}

	if cfg.Randomized() {
		return draw(length), false, true
	}

	if current < length-1 {
		return current + 1, false, true
	}
	if cfg.Wraps() {
		return 0, true, true
	}
	return current, false, false
}
