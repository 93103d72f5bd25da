package media_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/kioskbox/internal/app/media"
	"github.com/osa030/kioskbox/internal/domain/content"
)

func TestCommandAdapter_ProcessExit(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	tests := []struct {
		name     string
		script   string
		wantType media.EventType
	}{
		{name: "clean exit ends item", script: "exit 0", wantType: media.EventEnded},
		{name: "failing exit errors item", script: "exit 3", wantType: media.EventErrored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := media.NewCommandAdapter(media.CommandConfig{Args: []string{"sh", "-c", tt.script, "{url}"}})

			events := make(chan media.Event, 4)
			item := content.Item{ID: "v1", Type: content.TypeVideo, URL: "file:///tmp/v1.mp4"}
			require.NoError(t, a.Mount(item, media.MountOptions{Token: 3}, func(e media.Event) { events <- e }))
			require.NoError(t, a.Play())

			var got []media.Event
			timeout := time.After(5 * time.Second)
			for len(got) < 3 {
				select {
				case e := <-events:
					got = append(got, e)
				case <-timeout:
					t.Fatalf("timed out, got %v", got)
				}
			}

			assert.Equal(t, media.EventReady, got[0].Type)
			assert.Equal(t, media.EventStarted, got[1].Type)
			assert.Equal(t, tt.wantType, got[2].Type)
			assert.Equal(t, uint64(3), got[2].Token)
			if tt.wantType == media.EventErrored {
				assert.True(t, errors.Is(got[2].Err, media.ErrMedia))
			}
		})
	}
}

func TestCommandAdapter_UnmountSuppressesExitEvent(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	a := media.NewCommandAdapter(media.CommandConfig{Args: []string{"sleep", "30"}})
	events := make(chan media.Event, 4)
	require.NoError(t, a.Mount(content.Item{ID: "i1", Type: content.TypeImage}, media.MountOptions{Token: 1}, func(e media.Event) { events <- e }))
	require.NoError(t, a.Play())
	a.Unmount()

	assert.Equal(t, media.EventReady, (<-events).Type)
	assert.Equal(t, media.EventStarted, (<-events).Type)
	select {
	case e := <-events:
		t.Fatalf("unexpected event after unmount: %v", e.Type)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCommandAdapter_UnmuteRelaunchesRenderer(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	log := filepath.Join(t.TempDir(), "launches")
	a := media.NewCommandAdapter(media.CommandConfig{
		Args:     []string{"sh", "-c", `echo "$@" >> ` + log + `; exec sleep 30`, "renderer", "{url}"},
		MuteArgs: []string{"--mute"},
	})
	t.Cleanup(a.Unmount)

	events := make(chan media.Event, 8)
	item := content.Item{ID: "v1", Type: content.TypeVideo, URL: "file:///tmp/v1.mp4"}
	require.NoError(t, a.Mount(item, media.MountOptions{Token: 7, Muted: true}, func(e media.Event) { events <- e }))
	require.NoError(t, a.Play())

	launches := func() []string {
		data, err := os.ReadFile(log)
		if err != nil {
			return nil
		}
		return strings.Split(strings.TrimSpace(string(data)), "\n")
	}
	require.Eventually(t, func() bool { return len(launches()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "file:///tmp/v1.mp4 --mute", launches()[0])

	a.SetAudio(false, 0.5)
	require.Eventually(t, func() bool { return len(launches()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "file:///tmp/v1.mp4", launches()[1])

	// Volume alone does not relaunch.
	a.SetAudio(false, 0.8)

	var got []media.EventType
	timeout := time.After(300 * time.Millisecond)
	for done := false; !done; {
		select {
		case e := <-events:
			assert.Equal(t, uint64(7), e.Token)
			got = append(got, e.Type)
		case <-timeout:
			done = true
		}
	}
	assert.Equal(t, []media.EventType{media.EventReady, media.EventStarted, media.EventStarted}, got,
		"the replaced renderer's exit is not reported")
	assert.Len(t, launches(), 2)
}

func TestCommandAdapter_MuteChangeBeforePlayUsesNewArgs(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	log := filepath.Join(t.TempDir(), "launches")
	a := media.NewCommandAdapter(media.CommandConfig{
		Args:     []string{"sh", "-c", `echo "$@" >> ` + log, "renderer", "{url}"},
		MuteArgs: []string{"--mute"},
	})
	t.Cleanup(a.Unmount)

	events := make(chan media.Event, 8)
	require.NoError(t, a.Mount(content.Item{ID: "v1", URL: "u"}, media.MountOptions{Token: 1, Muted: true}, func(e media.Event) { events <- e }))
	a.SetAudio(false, 1)
	require.NoError(t, a.Play())

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(log)
		return err == nil && strings.TrimSpace(string(data)) == "u"
	}, 5*time.Second, 10*time.Millisecond)
}
