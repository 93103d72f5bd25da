package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListener_Parse(t *testing.T) {
	half := 0.5

	tests := []struct {
		name    string
		env     Envelope
		want    Request
		wantErr error
		errText string
	}{
		{
			name: "bare stop",
			env:  Envelope{Command: "stop"},
			want: Request{Command: CommandStop, Data: Data{Source: "backend"}},
		},
		{
			name: "restart with metadata",
			env: Envelope{Command: "restart", Data: map[string]any{
				"command_id": "cmd-42",
				"issued_by":  "ops@example.com",
				"reason":     "new schedule",
			}},
			want: Request{Command: CommandRestart, Data: Data{
				CommandID: "cmd-42",
				IssuedBy:  "ops@example.com",
				Reason:    "new schedule",
				Source:    "backend",
			}},
		},
		{
			name: "activate with string volume",
			env:  Envelope{Command: "activate", Data: map[string]any{"volume": "0.5", "source": "dashboard"}},
			want: Request{Command: CommandActivate, Data: Data{Volume: &half, Source: "dashboard"}},
		},
		{
			name:    "unknown command",
			env:     Envelope{Command: "reboot"},
			wantErr: ErrUnknownCommand,
		},
		{
			name:    "empty command",
			env:     Envelope{},
			wantErr: ErrUnknownCommand,
		},
		{
			name:    "volume out of range",
			env:     Envelope{Command: "activate", Data: map[string]any{"volume": 3}},
			errText: "validation failed",
		},
	}

	l := NewListener(func(Request) {})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Parse(tt.env)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestListener_HandleRaw(t *testing.T) {
	var got []Request
	l := NewListener(func(r Request) { got = append(got, r) })

	require.NoError(t, l.HandleRaw([]byte(`{"command":"pause"}`)))
	require.NoError(t, l.HandleRaw([]byte(`{"command":"skip","data":{"reason":"bad asset"}}`)))
	assert.Error(t, l.HandleRaw([]byte(`{"command":"format_disk"}`)))
	assert.Error(t, l.HandleRaw([]byte(`not json`)))

	require.Len(t, got, 2)
	assert.Equal(t, CommandPause, got[0].Command)
	assert.Equal(t, CommandSkip, got[1].Command)
	assert.Equal(t, "bad asset", got[1].Data.Reason)
}
