package playback

import (
	"time"

	"github.com/osa030/kioskbox/internal/domain/content"
)

// EventType represents a playback event type.
type EventType int

const (
	EventStateChanged    EventType = iota // Scheduler state changed
	EventItemStarted                      // Item became ready and started playing
	EventItemEnded                        // Item finished, was skipped or was torn down
	EventContentChanged                   // A different item was mounted
	EventWrapped                          // Playlist wrapped back to index 0
	EventHalted                           // No further auto-advance until the next load
	EventMediaError                       // Item failed to load or play
	EventUnsupported                      // Item skipped because its type cannot be rendered
	EventPlaylistLoaded                   // A new playlist replaced the old one
	EventPlaylistCleared                  // Playlist was emptied or stopped
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStateChanged:
		return "state_changed"
	case EventItemStarted:
		return "item_started"
	case EventItemEnded:
		return "item_ended"
	case EventContentChanged:
		return "content_changed"
	case EventWrapped:
		return "wrapped"
	case EventHalted:
		return "halted"
	case EventMediaError:
		return "media_error"
	case EventUnsupported:
		return "unsupported"
	case EventPlaylistLoaded:
		return "playlist_loaded"
	case EventPlaylistCleared:
		return "playlist_cleared"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type     EventType
	State    State
	Session  Session       // copy at the time of the event
	Item     *content.Item // current item (nil for some events)
	Previous *content.Item // EventContentChanged only
	Elapsed  time.Duration // EventItemEnded only
	Length   int           // playlist length
	Err      error         // EventMediaError / EventUnsupported
}

// Observer is notified synchronously of every playback event.
// Implementations must not block and must not call back into the scheduler.
type Observer interface {
	OnPlaybackEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnPlaybackEvent(e Event) { f(e) }
