package media

import (
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/kioskbox/internal/domain/content"
)

// CommandConfig describes an external renderer process.
// "{url}" in Args is replaced with the item URL.
type CommandConfig struct {
	Args      []string
	LoopArgs  []string // appended when the mount loops in place
	MuteArgs  []string // appended when the mount is muted
	Continues bool     // process runs until killed (image viewers); exit is not an end
}

// CommandAdapter renders items by running an external player process.
type CommandAdapter struct {
	mu  sync.Mutex
	cfg CommandConfig

	cmd      *exec.Cmd
	item     content.Item
	opts     MountOptions
	emit     func(Event)
	stopped  bool
	launched bool // Play was called for this mount
	paused   bool
}

// NewCommandAdapter creates a command adapter.
func NewCommandAdapter(cfg CommandConfig) *CommandAdapter {
	return &CommandAdapter{cfg: cfg}
}

// Mount prepares the renderer command for item.
func (a *CommandAdapter) Mount(item content.Item, opts MountOptions, emit func(Event)) error {
	if len(a.cfg.Args) == 0 {
		return errors.Wrap(ErrMedia, "renderer command not configured")
	}

	a.Unmount()

	a.mu.Lock()
	a.item = item
	a.opts = opts
	a.emit = emit
	a.stopped = false
	a.launched = false
	a.paused = false
	a.cmd = a.buildLocked()
	a.mu.Unlock()

	emit(Event{Type: EventReady, Token: opts.Token, ItemID: item.ID})
	return nil
}

func (a *CommandAdapter) buildLocked() *exec.Cmd {
	args := make([]string, 0, len(a.cfg.Args)+len(a.cfg.LoopArgs)+len(a.cfg.MuteArgs))
	for _, arg := range a.cfg.Args[1:] {
		args = append(args, strings.ReplaceAll(arg, "{url}", a.item.URL))
	}
	if a.opts.Loop {
		args = append(args, a.cfg.LoopArgs...)
	}
	if a.opts.Muted {
		args = append(args, a.cfg.MuteArgs...)
	}

	cmd := exec.Command(a.cfg.Args[0], args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// Play starts the renderer process.
func (a *CommandAdapter) Play() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cmd == nil {
		return errors.Wrap(ErrMedia, "nothing mounted")
	}
	a.launched = true
	a.paused = false
	if a.cmd.Process != nil {
		return nil
	}
	return a.startLocked()
}

func (a *CommandAdapter) startLocked() error {
	zlog.Debug().Msgf("Starting renderer: cmd=%s, item=%s", a.cmd.String(), a.item.ID)
	if err := a.cmd.Start(); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to start renderer for %s", a.item.ID), ErrMedia)
	}

	cmd, token, itemID, emit := a.cmd, a.opts.Token, a.item.ID, a.emit
	emit(Event{Type: EventStarted, Token: token, ItemID: itemID})
	go a.wait(cmd, token, itemID, emit)
	return nil
}

func (a *CommandAdapter) wait(cmd *exec.Cmd, token uint64, itemID string, emit func(Event)) {
	err := cmd.Wait()

	a.mu.Lock()
	current := a.cmd == cmd && !a.stopped
	a.mu.Unlock()
	if !current {
		return
	}

	switch {
	case err != nil:
		emit(Event{
			Type:   EventErrored,
			Token:  token,
			ItemID: itemID,
			Err:    errors.Mark(errors.Wrap(err, "renderer exited"), ErrMedia),
		})
	case a.cfg.Continues:
		zlog.Debug().Msgf("Renderer exited early: item=%s", itemID)
	default:
		emit(Event{Type: EventEnded, Token: token, ItemID: itemID})
	}
}

// Pause suspends the renderer process.
func (a *CommandAdapter) Pause() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paused = true
	if a.cmd == nil || a.cmd.Process == nil {
		return nil
	}
	return suspend(a.cmd.Process)
}

// Resume continues a suspended renderer process. A renderer relaunched
// while paused is started here.
func (a *CommandAdapter) Resume() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paused = false
	if a.cmd == nil {
		return nil
	}
	if a.cmd.Process == nil {
		if a.launched {
			return a.startLocked()
		}
		return nil
	}
	return resume(a.cmd.Process)
}

// SetAudio applies audio settings. Mute is a launch flag of the renderer, so
// a renderer that is already running is relaunched when the mute state changes.
// Volume is not forwarded to renderers.
func (a *CommandAdapter) SetAudio(muted bool, volume float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	changed := a.opts.Muted != muted
	a.opts.Muted = muted
	a.opts.Volume = volume
	if !changed || a.cmd == nil || len(a.cfg.MuteArgs) == 0 {
		return
	}

	running := a.cmd.Process != nil
	a.killLocked()
	a.cmd = a.buildLocked()
	if !running || a.paused {
		return
	}

	zlog.Info().Msgf("Relaunching renderer with new audio settings: item=%s, muted=%v", a.item.ID, muted)
	if err := a.startLocked(); err != nil {
		a.emit(Event{Type: EventErrored, Token: a.opts.Token, ItemID: a.item.ID, Err: err})
	}
}

// Unmount kills the renderer process, if any.
func (a *CommandAdapter) Unmount() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	a.killLocked()
	a.cmd = nil
}

func (a *CommandAdapter) killLocked() {
	if a.cmd == nil || a.cmd.Process == nil {
		return
	}
	if err := a.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		zlog.Warn().Msgf("Failed to kill renderer: item=%s, err=%v", a.item.ID, err)
	}
}
