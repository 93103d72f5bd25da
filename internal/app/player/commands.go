package player

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/kioskbox/internal/app/playback"
	"github.com/osa030/kioskbox/internal/app/remote"
)

// command applies a validated remote command. It runs on the loop.
func (p *Player) command(req remote.Request) {
	var err error
	switch req.Command {
	case remote.CommandStop:
		p.stop()
	case remote.CommandPause:
		err = p.sched.Pause()
	case remote.CommandPlay, remote.CommandStart:
		err = p.play()
	case remote.CommandRestart:
		p.restart()
	case remote.CommandSkip:
		err = p.sched.Skip()
	case remote.CommandActivate:
		p.onGesture()
		if req.Data.Volume != nil {
			p.applyVolume(*req.Data.Volume)
		}
	}

	if err != nil {
		p.log.Warn().Msgf("Remote command not applied: command=%s, state=%s, err=%v", req.Command, p.sched.State(), err)
	}
}

// stop tears everything down and clears the playlist until play or restart.
func (p *Player) stop() {
	p.stopped = true
	p.teardown()
	p.presenter.ShowWaiting("Stopped")
}

// play resumes a paused scheduler, or bootstraps again after a stop.
func (p *Player) play() error {
	if p.stopped {
		p.bootstrap()
		return nil
	}
	if p.sched.State() == playback.StatePaused {
		return p.sched.Resume()
	}
	if _, ok := p.sched.Session(); !ok {
		p.refresh()
		return nil
	}
	return errors.Wrapf(playback.ErrNotPaused, "state=%s", p.sched.State())
}

// restart tears down and bootstraps from scratch, forgetting network failures.
func (p *Player) restart() {
	p.log.Info().Msg("Restarting player")
	p.teardown()
	p.playlistG.Reset()
	p.keepalive.Reset()
	if p.cfg.AccessCode != "" && p.cfg.PlayerID == "" {
		p.playerID = ""
	}
	p.showCursor()
	p.bootstrap()
}
