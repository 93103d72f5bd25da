package player

import (
	"context"

	"github.com/osa030/kioskbox/internal/app/telemetry"
	"github.com/osa030/kioskbox/internal/infra/backend"
	"github.com/osa030/kioskbox/internal/infra/duplex"
)

// HTTPTelemetry posts telemetry through the backend REST API.
type HTTPTelemetry struct {
	Client *backend.Client
}

// PostTelemetry implements telemetry.HTTPSink.
func (h HTTPTelemetry) PostTelemetry(ctx context.Context, playerID string, ev telemetry.Event) error {
	return h.Client.PostEvent(ctx, playerID, ev.Type.HTTPPath(), ev.Data)
}

// ChannelTelemetry publishes telemetry as playback_event frames.
type ChannelTelemetry struct {
	Channel *duplex.Channel
}

// Connected implements telemetry.ChannelSink.
func (c ChannelTelemetry) Connected() bool {
	return c.Channel != nil && c.Channel.Connected()
}

// PublishPlaybackEvent implements telemetry.ChannelSink.
func (c ChannelTelemetry) PublishPlaybackEvent(ctx context.Context, ev telemetry.Event) error {
	if c.Channel == nil {
		return duplex.ErrNotConnected
	}
	return c.Channel.Publish(ctx, duplex.EventPlaybackEvent, ev)
}
