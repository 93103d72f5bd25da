// Package remote decodes out-of-band commands sent by the backend.
package remote

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

// ErrUnknownCommand is returned for commands outside the supported set.
var ErrUnknownCommand = errors.New("unknown remote command")

// Command is a remote command name.
type Command string

const (
	CommandStop     Command = "stop"
	CommandPause    Command = "pause"
	CommandPlay     Command = "play"
	CommandStart    Command = "start"
	CommandRestart  Command = "restart"
	CommandSkip     Command = "skip"
	CommandActivate Command = "activate"
)

// Envelope is the payload of an inbound remote_command event.
type Envelope struct {
	Command string         `json:"command"`
	Data    map[string]any `json:"data,omitempty"`
}

// Data holds the optional command arguments.
type Data struct {
	CommandID string   `mapstructure:"command_id"`
	IssuedBy  string   `mapstructure:"issued_by"`
	Reason    string   `mapstructure:"reason"`
	Volume    *float64 `mapstructure:"volume" validate:"omitempty,gte=0,lte=1"`
	Source    string   `mapstructure:"source" default:"backend"`
}

// Request is a validated command ready to be applied.
type Request struct {
	Command Command `validate:"oneof=stop pause play start restart skip activate"`
	Data    Data
}

// Listener turns envelopes into requests and hands them to dispatch.
type Listener struct {
	dispatch func(Request)
	validate *validator.Validate
}

// NewListener creates a listener.
func NewListener(dispatch func(Request)) *Listener {
	return &Listener{
		dispatch: dispatch,
		validate: validator.New(),
	}
}

// HandleRaw decodes a JSON envelope and dispatches it.
func (l *Listener) HandleRaw(raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.Wrap(err, "failed to decode remote command")
	}
	return l.Handle(env)
}

// Handle validates env and dispatches it. Invalid commands are logged and dropped.
func (l *Listener) Handle(env Envelope) error {
	req, err := l.Parse(env)
	if err != nil {
		zlog.Warn().Msgf("Dropping remote command: command=%q, err=%v", env.Command, err)
		return err
	}

	zlog.Info().Msgf("Remote command received: command=%s, source=%s, id=%s", req.Command, req.Data.Source, req.Data.CommandID)
	l.dispatch(req)
	return nil
}

// Parse converts an envelope into a validated request.
func (l *Listener) Parse(env Envelope) (Request, error) {
	req := Request{Command: Command(env.Command)}

	if len(env.Data) > 0 {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &req.Data,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return Request{}, errors.Wrap(err, "failed to create decoder")
		}
		if err := decoder.Decode(env.Data); err != nil {
			return Request{}, errors.Wrap(err, "failed to decode command data")
		}
	}
	if err := defaults.Set(&req.Data); err != nil {
		return Request{}, errors.Wrap(err, "failed to set defaults")
	}

	if err := l.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Field() == "Command" {
					return Request{}, errors.Wrapf(ErrUnknownCommand, "command=%q", env.Command)
				}
			}
		}
		return Request{}, errors.Wrap(err, "validation failed")
	}
	return req, nil
}
