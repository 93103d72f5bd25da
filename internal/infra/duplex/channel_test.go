package duplex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ws "nhooyr.io/websocket"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "empty", url: "", wantErr: true},
		{name: "bad scheme", url: "ftp://example.com/ws", wantErr: true},
		{name: "ws", url: "ws://example.com/ws"},
		{name: "https", url: "https://example.com/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{URL: tt.url})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDialURL(t *testing.T) {
	ch, err := New(Config{URL: "https://api.example.com/ws?v=2"})
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/ws?player_id=p+1&v=2", ch.dialURL("p 1"))
}

func TestPublishNotConnected(t *testing.T) {
	ch, err := New(Config{URL: "ws://example.com/ws"})
	require.NoError(t, err)

	assert.False(t, ch.Connected())
	err = ch.Publish(context.Background(), EventPlaybackEvent, map[string]string{"type": "playback_start"})
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestChannelRoundTrip(t *testing.T) {
	received := make(chan Message, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "p-1", r.URL.Query().Get("player_id"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		conn, err := ws.Accept(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close(ws.StatusNormalClosure, "")

		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg Message
			if assert.NoError(t, json.Unmarshal(data, &msg)) {
				received <- msg
			}
			if msg.Event == EventHello {
				cmd := `{"event":"remote_command","data":{"command":"skip"},"id":"c-1"}`
				_ = conn.Write(ctx, ws.MessageText, []byte(cmd))
			}
		}
	}))
	defer server.Close()

	ch, err := New(Config{URL: server.URL, Token: "tok"})
	require.NoError(t, err)

	commands := make(chan string, 1)
	ch.Handle(EventRemoteCommand, func(data []byte) error {
		commands <- string(data)
		return nil
	})
	var transitions atomic.Int32
	ch.OnState(func(bool) { transitions.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.Run(ctx, "p-1")
	}()

	select {
	case msg := <-received:
		assert.Equal(t, EventHello, msg.Event)
		assert.JSONEq(t, `{"player_id":"p-1"}`, string(msg.Data))
		assert.NotEmpty(t, msg.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("hello not received")
	}

	select {
	case data := <-commands:
		assert.JSONEq(t, `{"command":"skip"}`, data)
	case <-time.After(5 * time.Second):
		t.Fatal("remote command not dispatched")
	}

	require.True(t, ch.Connected())
	require.NoError(t, ch.Publish(ctx, EventPlaybackEvent, map[string]string{"type": "playback_start"}))

	select {
	case msg := <-received:
		assert.Equal(t, EventPlaybackEvent, msg.Event)
		assert.JSONEq(t, `{"type":"playback_start"}`, string(msg.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("playback event not received")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, ch.Connected())
	assert.Equal(t, int32(2), transitions.Load())
}

func TestChannelReconnects(t *testing.T) {
	var accepted atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			return
		}
		accepted.Add(1)
		_, _, _ = conn.Read(r.Context())
		conn.Close(ws.StatusGoingAway, "restarting")
	}))
	defer server.Close()

	ch, err := New(Config{URL: server.URL, ReconnectDelay: 10 * time.Millisecond, MaxReconnect: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx, "p-1")

	assert.Eventually(t, func() bool { return accepted.Load() >= 3 }, 5*time.Second, 10*time.Millisecond)
}

func TestDispatchIgnoresGarbage(t *testing.T) {
	ch, err := New(Config{URL: "ws://example.com/ws"})
	require.NoError(t, err)

	calls := 0
	ch.Handle(EventRemoteCommand, func([]byte) error {
		calls++
		return errors.New("boom")
	})

	ch.dispatch([]byte("not json"))
	ch.dispatch([]byte(`{"event":"other"}`))
	ch.dispatch([]byte(`{"event":"remote_command","data":{}}`))
	assert.Equal(t, 1, calls)
}
