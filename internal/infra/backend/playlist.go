package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/osa030/kioskbox/internal/domain/content"
	"github.com/osa030/kioskbox/internal/domain/playlist"
)

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// seconds converts a JSON number of seconds to a duration.
func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

type contentItemResponse struct {
	ID           flexString `json:"id"`
	Type         string     `json:"type"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Duration     float64    `json:"duration"`
	CampaignID   flexString `json:"campaign_id"`
	CampaignName string     `json:"campaign_name"`
}

type playbackConfigResponse struct {
	PlaybackMode       string  `json:"playback_mode"`
	LoopBehavior       string  `json:"loop_behavior"`
	ShuffleEnabled     bool    `json:"shuffle_enabled"`
	ContentDuration    float64 `json:"content_duration"`
	TransitionDuration float64 `json:"transition_duration"`
}

type playlistResponse struct {
	Contents           []contentItemResponse  `json:"contents"`
	PlaybackConfig     playbackConfigResponse `json:"playback_config"`
	BackgroundAudioURL string                 `json:"background_audio_url"`
}

func (r playlistResponse) toSnapshot() playlist.Snapshot {
	items := make([]content.Item, 0, len(r.Contents))
	for _, c := range r.Contents {
		items = append(items, content.Item{
			ID:           string(c.ID),
			Type:         content.Type(c.Type),
			URL:          c.URL,
			Title:        c.Title,
			Duration:     seconds(c.Duration),
			CampaignID:   string(c.CampaignID),
			CampaignName: c.CampaignName,
		})
	}

	cfg := playlist.Config{
		Mode:               playlist.Mode(r.PlaybackConfig.PlaybackMode),
		LoopBehavior:       playlist.LoopBehavior(r.PlaybackConfig.LoopBehavior),
		ShuffleEnabled:     r.PlaybackConfig.ShuffleEnabled,
		ContentDuration:    seconds(r.PlaybackConfig.ContentDuration),
		TransitionDuration: seconds(r.PlaybackConfig.TransitionDuration),
	}

	return playlist.Snapshot{
		Playlist: playlist.Playlist{Items: items, AmbientAudioURL: r.BackgroundAudioURL},
		Config:   cfg.Normalize(),
	}
}

type resolveCodeResponse struct {
	PlayerID flexString `json:"player_id"`
}

// PlayerInfo is display metadata.
type PlayerInfo struct {
	ID          string
	Name        string
	Location    string
	Timezone    string
	Orientation string
}

type playerInfoResponse struct {
	ID          flexString `json:"id"`
	Name        string     `json:"name"`
	Location    string     `json:"location"`
	Timezone    string     `json:"timezone"`
	Orientation string     `json:"orientation"`
}

func (r playerInfoResponse) toPlayerInfo() *PlayerInfo {
	return &PlayerInfo{
		ID:          string(r.ID),
		Name:        r.Name,
		Location:    r.Location,
		Timezone:    r.Timezone,
		Orientation: r.Orientation,
	}
}

// Presence is the body of a keepalive registration.
type Presence struct {
	Version   string    `json:"version"`
	Hostname  string    `json:"hostname,omitempty"`
	StartedAt time.Time `json:"started_at"`
	State     string    `json:"state"`
	ContentID string    `json:"content_id,omitempty"`
}

// FetchPlaylist retrieves the current playlist and playback configuration.
// An empty playlist is a valid result, not an error.
func (c *Client) FetchPlaylist(ctx context.Context, playerID string) (playlist.Snapshot, error) {
	var resp playlistResponse
	if err := c.do(ctx, http.MethodGet, playerPath(playerID, "playlist"), nil, &resp); err != nil {
		return playlist.Snapshot{}, err
	}
	return resp.toSnapshot(), nil
}

// String implements fmt.Stringer for logging.
func (p PlayerInfo) String() string {
	s := p.Name
	if s == "" {
		s = p.ID
	}
	if p.Location != "" {
		s += " @ " + p.Location
	}
	if p.Orientation != "" {
		s += " (" + p.Orientation + ")"
	}
	return s
}
