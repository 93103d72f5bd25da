// Package content provides the ContentItem domain entity.
package content

import "time"

// Type is the media kind of a content item.
type Type string

const (
	TypeVideo Type = "video"
	TypeImage Type = "image"
)

// IsSupported reports whether the engine knows how to render the type.
func (t Type) IsSupported() bool {
	return t == TypeVideo || t == TypeImage
}

// Item is one playable unit of a playlist.
// Items are immutable once fetched.
type Item struct {
	ID           string        // Content ID
	Type         Type          // video or image (anything else is skipped)
	URL          string        // Media URL
	Title        string        // Display title
	Duration     time.Duration // Authoritative for images, advisory for video
	CampaignID   string        // Campaign provenance (telemetry only)
	CampaignName string        // Campaign name (telemetry only)
}

// IsVideo returns true if the item is a video.
func (i *Item) IsVideo() bool {
	return i.Type == TypeVideo
}

// IsImage returns true if the item is an image.
func (i *Item) IsImage() bool {
	return i.Type == TypeImage
}

// DwellTime returns how long an image stays on screen.
// The larger of the item duration and the playlist default wins; fallback
// applies when both are unset.
func (i *Item) DwellTime(configured, fallback time.Duration) time.Duration {
	d := i.Duration
	if configured > d {
		d = configured
	}
	if d <= 0 {
		d = fallback
	}
	return d
}
