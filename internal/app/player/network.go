package player

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/kioskbox/internal/app/resilience"
	"github.com/osa030/kioskbox/internal/domain/playlist"
	"github.com/osa030/kioskbox/internal/infra/backend"
)

// bootstrap resolves the display identity when needed, then fetches the
// playlist, registers presence and loads display metadata.
func (p *Player) bootstrap() {
	p.stopped = false
	if _, ok := p.sched.Session(); !ok {
		p.presenter.ShowWaiting("Connecting")
	}
	p.timers.Schedule(PurposeHeartbeat, p.cfg.HeartbeatInterval, p.heartbeat)

	if p.playerID == "" {
		p.resolve()
		return
	}
	p.identified()
}

func (p *Player) identified() {
	if p.onIdent != nil {
		p.onIdent(p.playerID)
	}
	p.fetch()
	p.connect()
	p.loadInfo()
}

// refresh polls the playlist, resolving the access code first if it has not succeeded yet.
func (p *Player) refresh() {
	if p.stopped {
		return
	}
	if p.playerID == "" {
		p.resolve()
		return
	}
	p.fetch()
}

func (p *Player) resolve() {
	if p.fetching {
		return
	}
	p.fetching = true
	p.sched.MarkLoading()

	epoch, ctx, code := p.epoch, p.netCtx, p.cfg.AccessCode
	p.spawn(func() {
		var id string
		err := p.playlistG.Attempt(ctx, func(ctx context.Context) error {
			var err error
			id, err = p.source.ResolveAccessCode(ctx, code)
			return err
		})
		p.post(func() { p.resolved(epoch, id, err) })
	})
}

func (p *Player) resolved(epoch uint64, id string, err error) {
	if epoch != p.epoch {
		return
	}
	p.fetching = false

	if err != nil {
		if errors.Is(err, backend.ErrInvalidCode) {
			p.showError("Unknown access code")
		}
		p.playlistFailed("resolve", err)
		return
	}

	p.log.Info().Msgf("Display identified: player_id=%s", id)
	p.playerID = id
	if p.reporter != nil {
		p.reporter.SetPlayerID(id)
	}
	p.identified()
}

func (p *Player) fetch() {
	if p.fetching {
		return
	}
	p.fetching = true
	p.sched.MarkLoading()

	epoch, ctx, id := p.epoch, p.netCtx, p.playerID
	p.spawn(func() {
		var snap playlist.Snapshot
		err := p.playlistG.Attempt(ctx, func(ctx context.Context) error {
			var err error
			snap, err = p.source.FetchPlaylist(ctx, id)
			return err
		})
		p.post(func() { p.fetched(epoch, snap, err) })
	})
}

func (p *Player) fetched(epoch uint64, snap playlist.Snapshot, err error) {
	if epoch != p.epoch {
		return
	}
	p.fetching = false

	if err != nil {
		if p.recorder != nil {
			p.recorder.FetchFailed()
		}
		p.playlistFailed("fetch", err)
		return
	}

	p.refreshCountdown()
	p.sched.Load(snap)
	if snap.Playlist.IsEmpty() {
		p.log.Info().Msgf("No content assigned, checking again in %s", p.cfg.PlaylistCheckInterval)
		p.presenter.ShowWaiting("Waiting for content")
	}
	p.timers.Schedule(PurposeRefresh, p.cfg.PlaylistCheckInterval, p.refresh)
}

// playlistFailed schedules the next resolve or fetch. While the circuit is
// open nothing is scheduled: the half-open transition triggers the retry.
func (p *Player) playlistFailed(op string, err error) {
	if errors.Is(err, resilience.ErrCircuitOpen) || p.playlistG.Open() {
		p.log.Warn().Msgf("Playlist %s suppressed, circuit open: reopens_in=%s", op, p.playlistG.Remaining())
		p.sched.MarkCircuitOpen()
		p.refreshCountdown()
		return
	}

	delay := p.playlistG.RetryDelay()
	p.log.Warn().Msgf("Playlist %s failed: err=%v, retry_in=%s", op, err, delay)
	p.sched.MarkIdle()
	p.timers.Schedule(PurposeRefresh, delay, p.refresh)
}

// connect registers presence. It reschedules itself at the keepalive interval.
func (p *Player) connect() {
	if p.connecting || p.stopped || p.playerID == "" {
		return
	}
	p.connecting = true

	presence := backend.Presence{
		Version:   p.cfg.Version,
		Hostname:  p.cfg.Hostname,
		StartedAt: p.startedAt.UTC(),
		State:     p.sched.State().String(),
	}
	if s, ok := p.sched.Session(); ok {
		presence.ContentID = s.Item.ID
	}

	epoch, ctx, id := p.epoch, p.netCtx, p.playerID
	p.spawn(func() {
		err := p.keepalive.Attempt(ctx, func(ctx context.Context) error {
			return p.source.Connect(ctx, id, presence)
		})
		p.post(func() { p.connected(epoch, err) })
	})
}

func (p *Player) connected(epoch uint64, err error) {
	if epoch != p.epoch {
		return
	}
	p.connecting = false

	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) || p.keepalive.Open() {
			p.log.Warn().Msgf("Keepalive suppressed, circuit open: reopens_in=%s", p.keepalive.Remaining())
			p.refreshCountdown()
			return
		}
		delay := p.keepalive.RetryDelay()
		p.log.Warn().Msgf("Keepalive failed: err=%v, retry_in=%s", err, delay)
		p.timers.Schedule(PurposeKeepalive, delay, p.connect)
		return
	}

	p.log.Debug().Msg("Keepalive registered")
	p.refreshCountdown()
	p.timers.Schedule(PurposeKeepalive, p.cfg.KeepaliveInterval, p.connect)
}

// loadInfo fetches display metadata once. Failures are tolerated.
func (p *Player) loadInfo() {
	epoch, ctx, id := p.epoch, p.netCtx, p.playerID
	p.spawn(func() {
		info, err := p.source.PlayerInfo(ctx, id)
		p.post(func() {
			if epoch != p.epoch {
				return
			}
			switch {
			case errors.Is(err, backend.ErrNotFound):
				p.log.Debug().Msgf("No display metadata: player_id=%s", id)
			case err != nil:
				p.log.Warn().Msgf("Failed to load display metadata: err=%v", err)
			case info != nil:
				p.log.Info().Msgf("Display: %s", info)
				p.presenter.SetTitle(info.String())
			}
		})
	})
}

// gateChanged reacts to circuit transitions. It runs on the loop.
func (p *Player) gateChanged(g *resilience.Gate, t resilience.Transition, st resilience.State) {
	if p.recorder != nil {
		p.recorder.GateChanged(g.Name(), t)
	}

	switch t {
	case resilience.TransitionOpened:
		p.log.Warn().Msgf("Temporarily unavailable: gate=%s, attempts=%d, reopens_at=%s",
			g.Name(), st.Attempts, st.ReopensAt.Format(time.TimeOnly))
		if g == p.playlistG {
			p.sched.MarkCircuitOpen()
		}
	case resilience.TransitionHalfOpen:
		if !p.stopped {
			if g == p.playlistG {
				p.refresh()
			} else {
				p.connect()
			}
		}
	}
	p.refreshCountdown()
}

// refreshCountdown shows "reconnecting in Ns" while any circuit is open.
func (p *Player) refreshCountdown() {
	var remaining time.Duration
	open := false
	for _, g := range []*resilience.Gate{p.playlistG, p.keepalive} {
		if !g.Open() {
			continue
		}
		open = true
		if r := g.Remaining(); r > remaining {
			remaining = r
		}
	}

	if !open {
		p.timers.Cancel(PurposeCountdown)
		p.presenter.HideReconnecting()
		return
	}
	p.presenter.ShowReconnecting(remaining)
	p.timers.Schedule(PurposeCountdown, time.Second, p.refreshCountdown)
}
