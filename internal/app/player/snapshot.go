package player

import (
	"github.com/osa030/kioskbox/internal/app/ambient"
	"github.com/osa030/kioskbox/internal/app/playback"
	"github.com/osa030/kioskbox/internal/app/resilience"
)

// Snapshot is a copy of the engine state for diagnostics.
type Snapshot struct {
	PlayerID   string
	State      playback.State
	Session    *playback.Session
	Length     int
	Halted     bool
	Fetching   bool
	Connecting bool
	Stopped    bool
	Muted      bool
	Volume     float64

	ActivationRequired bool
	Playlist           resilience.State
	Keepalive          resilience.State
	Ambient            ambient.State
	PendingTasks       int
}

// Snapshot returns the state as of the last handled message.
// It is safe to call from any goroutine.
func (p *Player) Snapshot() Snapshot {
	p.snapMu.RLock()
	defer p.snapMu.RUnlock()
	s := p.snap
	if s.Session != nil {
		cp := *s.Session
		s.Session = &cp
	}
	return s
}

// publish copies loop-owned state for Snapshot. It runs on the loop.
func (p *Player) publish() {
	s := Snapshot{
		PlayerID:           p.playerID,
		State:              p.sched.State(),
		Length:             p.sched.Playlist().Playlist.Len(),
		Halted:             p.sched.Halted(),
		Fetching:           p.fetching,
		Connecting:         p.connecting,
		Stopped:            p.stopped,
		Muted:              p.muted,
		Volume:             p.volume,
		ActivationRequired: p.gesture.Required(),
		Playlist:           p.playlistG.State(),
		Keepalive:          p.keepalive.State(),
		Ambient:            p.ambient.State(),
		PendingTasks:       p.timers.Len(),
	}
	if session, ok := p.sched.Session(); ok {
		s.Session = &session
	}

	p.snapMu.Lock()
	p.snap = s
	p.snapMu.Unlock()
}
