package playback

import (
	"time"

	"github.com/google/uuid"

	"github.com/osa030/kioskbox/internal/domain/content"
)

// Session is the run-time state of the current playlist.
// A new session begins whenever the playlist is replaced or stopped.
type Session struct {
	ID        string
	Index     int
	Item      content.Item
	Playing   bool
	StartedAt time.Time     // when the current run of the item started
	Elapsed   time.Duration // item play time accumulated before StartedAt
}

func newSession() *Session {
	return &Session{ID: uuid.NewString()}
}

// rotate gives the session a new ID while keeping its position.
func (s *Session) rotate() {
	s.ID = uuid.NewString()
}

// ItemElapsed returns how long the current item has played as of now.
func (s Session) ItemElapsed(now time.Time) time.Duration {
	if !s.Playing || s.StartedAt.IsZero() {
		return s.Elapsed
	}
	return s.Elapsed + now.Sub(s.StartedAt)
}
