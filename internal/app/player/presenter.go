package player

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/osa030/kioskbox/internal/infra/logger"
)

// Presenter renders the engine's overlays. Calls come from the engine loop
// and may repeat; implementations must be idempotent and must not block.
type Presenter interface {
	ShowWaiting(msg string)
	HideWaiting()
	ShowError(msg string)
	HideError()
	ShowReconnecting(remaining time.Duration)
	HideReconnecting()
	ShowActivation()
	HideActivation()
	RequestFullscreen()
	SetCursorHidden(hidden bool)
	SetTitle(title string)
}

// LogPresenter writes overlay changes to the log. It is used by the headless CLI.
type LogPresenter struct {
	log zerolog.Logger

	waiting      string
	banner       string
	reconnecting int // whole seconds last shown, -1 when hidden
	activation   bool
	cursorHidden bool
}

// NewLogPresenter creates a presenter logging under component=presenter.
func NewLogPresenter() *LogPresenter {
	return &LogPresenter{
		log:          logger.Component("presenter"),
		reconnecting: -1,
	}
}

func (l *LogPresenter) ShowWaiting(msg string) {
	if l.waiting == msg {
		return
	}
	l.waiting = msg
	l.log.Info().Msgf("[overlay] %s", msg)
}

func (l *LogPresenter) HideWaiting() {
	if l.waiting == "" {
		return
	}
	l.waiting = ""
	l.log.Debug().Msg("[overlay] hidden")
}

func (l *LogPresenter) ShowError(msg string) {
	l.banner = msg
	l.log.Warn().Msgf("[banner] %s", msg)
}

func (l *LogPresenter) HideError() {
	if l.banner == "" {
		return
	}
	l.banner = ""
	l.log.Debug().Msg("[banner] dismissed")
}

func (l *LogPresenter) ShowReconnecting(remaining time.Duration) {
	secs := int((remaining + time.Second - 1) / time.Second)
	if secs == l.reconnecting {
		return
	}
	// Log every 10s to keep long outages readable.
	if l.reconnecting < 0 || secs%10 == 0 {
		l.log.Warn().Msgf("[overlay] Temporarily unavailable, reconnecting in %ds", secs)
	}
	l.reconnecting = secs
}

func (l *LogPresenter) HideReconnecting() {
	if l.reconnecting < 0 {
		return
	}
	l.reconnecting = -1
	l.log.Info().Msg("[overlay] Reconnected")
}

func (l *LogPresenter) ShowActivation() {
	if l.activation {
		return
	}
	l.activation = true
	l.log.Info().Msg("[overlay] Press Enter to start playback with sound")
}

func (l *LogPresenter) HideActivation() {
	if !l.activation {
		return
	}
	l.activation = false
	l.log.Info().Msg("[overlay] Activated")
}

func (l *LogPresenter) RequestFullscreen() {
	l.log.Debug().Msg("Fullscreen requested")
}

func (l *LogPresenter) SetCursorHidden(hidden bool) {
	if l.cursorHidden == hidden {
		return
	}
	l.cursorHidden = hidden
	l.log.Debug().Msgf("Cursor hidden: %v", hidden)
}

func (l *LogPresenter) SetTitle(title string) {
	l.log.Info().Msgf("Now showing on: %s", title)
}
