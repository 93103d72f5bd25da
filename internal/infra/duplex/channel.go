// Package duplex maintains the persistent WebSocket channel to the backend.
//
// Frames are JSON text messages of the form
//
//	{"event": "playback_event", "data": {...}, "id": "<uuid>"}
//
// Outbound playback events are published only while connected; inbound frames
// are routed to handlers registered per event name.
package duplex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/osa030/kioskbox/internal/infra/logger"
)

// Errors
var (
	ErrNotConnected = errors.New("duplex channel not connected")
)

// Event names used on the wire.
const (
	EventPlaybackEvent = "playback_event"
	EventRemoteCommand = "remote_command"
	EventHello         = "player_hello"
)

// Message is one frame on the channel.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    string          `json:"id,omitempty"`
}

// Handler processes the data of an inbound frame.
type Handler func(data []byte) error

// Config represents duplex channel configuration.
type Config struct {
	URL            string
	Token          string
	ReconnectDelay time.Duration
	MaxReconnect   time.Duration
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
}

func (c *Config) setDefaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.MaxReconnect <= 0 {
		c.MaxReconnect = time.Minute
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
}

// Channel is a reconnecting WebSocket client.
type Channel struct {
	cfg Config
	log zerolog.Logger

	mu       sync.RWMutex
	conn     *ws.Conn
	handlers map[string]Handler
	onState  func(connected bool)
}

// New creates a channel. Run must be called to connect.
func New(cfg Config) (*Channel, error) {
	if cfg.URL == "" {
		return nil, errors.New("channel URL is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid channel URL")
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, errors.Newf("unsupported channel URL scheme: %s", u.Scheme)
	}
	cfg.setDefaults()

	return &Channel{
		cfg:      cfg,
		log:      logger.Component("duplex"),
		handlers: make(map[string]Handler),
	}, nil
}

// Handle registers fn for inbound frames named event.
func (c *Channel) Handle(event string, fn Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = fn
}

// OnState registers a callback for connect and disconnect.
func (c *Channel) OnState(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// Connected reports whether a connection is currently open.
func (c *Channel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Publish sends one frame. It fails fast with ErrNotConnected.
func (c *Channel) Publish(ctx context.Context, event string, data any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "failed to encode frame data")
	}
	frame, err := json.Marshal(Message{Event: event, Data: raw, ID: uuid.NewString()})
	if err != nil {
		return errors.Wrap(err, "failed to encode frame")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, ws.MessageText, frame); err != nil {
		return errors.Wrapf(err, "failed to write frame: event=%s", event)
	}
	return nil
}

// Run connects and reconnects until ctx is done.
func (c *Channel) Run(ctx context.Context, playerID string) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.ReconnectDelay
	b.MaxInterval = c.cfg.MaxReconnect
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		connected, err := c.session(ctx, playerID)
		if ctx.Err() != nil {
			return
		}
		if connected {
			b.Reset()
		}

		delay := b.NextBackOff()
		c.log.Warn().Msgf("Channel disconnected: err=%v, retry_in=%s", err, delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Channel) dialURL(playerID string) string {
	u, _ := url.Parse(c.cfg.URL)
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("player_id", playerID)
	u.RawQuery = q.Encode()
	return u.String()
}

// session runs one connection until it fails. connected reports whether the
// dial succeeded.
func (c *Channel) session(ctx context.Context, playerID string) (connected bool, err error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	conn, _, err := ws.Dial(dialCtx, c.dialURL(playerID), &ws.DialOptions{HTTPHeader: header})
	cancel()
	if err != nil {
		return false, errors.Wrap(err, "failed to dial channel")
	}
	conn.SetReadLimit(c.cfg.ReadLimit)
	defer conn.Close(ws.StatusNormalClosure, "")

	sctx, stop := context.WithCancel(ctx)
	defer stop()

	c.setConn(conn)
	defer c.setConn(nil)
	c.log.Info().Msgf("Channel connected: player_id=%s", playerID)

	if err := c.Publish(sctx, EventHello, map[string]string{"player_id": playerID}); err != nil {
		return true, err
	}

	go c.pingLoop(sctx, conn, stop)

	for {
		_, data, err := conn.Read(sctx)
		if err != nil {
			if ws.CloseStatus(err) == ws.StatusNormalClosure {
				return true, nil
			}
			return true, errors.Wrap(err, "failed to read frame")
		}
		c.dispatch(data)
	}
}

func (c *Channel) pingLoop(ctx context.Context, conn *ws.Conn, stop context.CancelFunc) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				c.log.Debug().Msgf("Ping failed: err=%v", err)
				stop()
				return
			}
		}
	}
}

func (c *Channel) setConn(conn *ws.Conn) {
	c.mu.Lock()
	c.conn = conn
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(conn != nil)
	}
}

func (c *Channel) dispatch(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn().Msgf("Invalid frame: err=%v", err)
		return
	}

	c.mu.RLock()
	fn, ok := c.handlers[msg.Event]
	c.mu.RUnlock()
	if !ok {
		c.log.Debug().Msgf("Unhandled frame: event=%s", msg.Event)
		return
	}
	if err := fn(msg.Data); err != nil {
		c.log.Warn().Msgf("Frame handler failed: event=%s, id=%s, err=%v", msg.Event, msg.ID, err)
	}
}
