// Package telemetry reports playback activity to the backend.
// It only observes playback and never blocks it.
package telemetry

import (
	"time"

	"github.com/osa030/kioskbox/internal/app/playback"
	"github.com/osa030/kioskbox/internal/domain/content"
)

// EventType is the wire name of a telemetry event.
type EventType string

const (
	EventPlaybackStart     EventType = "playback_start"
	EventPlaybackHeartbeat EventType = "playback_heartbeat"
	EventContentChange     EventType = "content_change"
	EventPlaybackEnd       EventType = "playback_end"
)

// HTTPPath returns the per-player HTTP endpoint for the event, or "" when
// the event is only carried by the duplex channel.
func (t EventType) HTTPPath() string {
	switch t {
	case EventPlaybackStart:
		return "playback_start"
	case EventPlaybackEnd:
		return "playback_end"
	case EventPlaybackHeartbeat:
		return "heartbeat"
	default:
		return ""
	}
}

// Payload is the body of a telemetry event.
type Payload struct {
	PlayerID          string    `json:"player_id"`
	SessionID         string    `json:"session_id"`
	ContentID         string    `json:"content_id,omitempty"`
	ContentType       string    `json:"content_type,omitempty"`
	Title             string    `json:"title,omitempty"`
	CampaignID        string    `json:"campaign_id,omitempty"`
	CampaignName      string    `json:"campaign_name,omitempty"`
	Position          int       `json:"position"`
	PlaylistLength    int       `json:"playlist_length"`
	ExpectedDuration  float64   `json:"expected_duration,omitempty"`
	Elapsed           float64   `json:"elapsed,omitempty"`
	PreviousContentID string    `json:"previous_content_id,omitempty"`
	NextContentID     string    `json:"next_content_id,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Event is one telemetry message.
type Event struct {
	Type EventType `json:"type"`
	Data Payload   `json:"data"`
}

func newPayload(playerID string, s playback.Session, item *content.Item, length int, now time.Time) Payload {
	p := Payload{
		PlayerID:       playerID,
		SessionID:      s.ID,
		Position:       s.Index,
		PlaylistLength: length,
		Timestamp:      now.UTC(),
	}
	if item != nil {
		p.ContentID = item.ID
		p.ContentType = string(item.Type)
		p.Title = item.Title
		p.CampaignID = item.CampaignID
		p.CampaignName = item.CampaignName
		p.ExpectedDuration = item.Duration.Seconds()
	}
	return p
}
