package content

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestType_IsSupported(t *testing.T) {
	assert.True(t, TypeVideo.IsSupported())
	assert.True(t, TypeImage.IsSupported())
	assert.False(t, Type("html").IsSupported())
	assert.False(t, Type("").IsSupported())
}

func TestItem_DwellTime(t *testing.T) {
	tests := []struct {
		name       string
		duration   time.Duration
		configured time.Duration
		fallback   time.Duration
		expected   time.Duration
	}{
		{
			name:       "item duration wins when longer",
			duration:   12 * time.Second,
			configured: 5 * time.Second,
			fallback:   10 * time.Second,
			expected:   12 * time.Second,
		},
		{
			name:       "playlist default wins when longer",
			duration:   3 * time.Second,
			configured: 8 * time.Second,
			fallback:   10 * time.Second,
			expected:   8 * time.Second,
		},
		{
			name:     "fallback when nothing is set",
			fallback: 10 * time.Second,
			expected: 10 * time.Second,
		},
		{
			name:     "item duration without playlist default",
			duration: 5 * time.Second,
			fallback: 10 * time.Second,
			expected: 5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &Item{ID: "c-1", Type: TypeImage, Duration: tt.duration}
			assert.Equal(t, tt.expected, item.DwellTime(tt.configured, tt.fallback))
		})
	}
}

func TestItem_Kind(t *testing.T) {
	video := &Item{Type: TypeVideo}
	image := &Item{Type: TypeImage}

	assert.True(t, video.IsVideo())
	assert.False(t, video.IsImage())
	assert.True(t, image.IsImage())
	assert.False(t, image.IsVideo())
}
