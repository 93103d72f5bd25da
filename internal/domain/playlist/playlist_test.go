package playlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/kioskbox/internal/domain/content"
)

func TestPlaylist_ItemIDs(t *testing.T) {
	tests := []struct {
		name     string
		items    []content.Item
		expected []string
	}{
		{
			name:     "empty playlist",
			items:    []content.Item{},
			expected: []string{},
		},
		{
			name:     "single item",
			items:    []content.Item{{ID: "c-1"}},
			expected: []string{"c-1"},
		},
		{
			name: "multiple items",
			items: []content.Item{
				{ID: "c-1"},
				{ID: "c-2"},
				{ID: "c-3"},
			},
			expected: []string{"c-1", "c-2", "c-3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Playlist{Items: tt.items}
			assert.Equal(t, tt.expected, p.ItemIDs())
		})
	}
}

func TestPlaylist_TotalDuration(t *testing.T) {
	p := &Playlist{
		Items: []content.Item{
			{ID: "c-1", Duration: 5 * time.Second},
			{ID: "c-2", Duration: 30 * time.Second},
			{ID: "c-3"},
		},
	}
	assert.Equal(t, 35*time.Second, p.TotalDuration())
}

func TestPlaylist_At(t *testing.T) {
	p := &Playlist{Items: []content.Item{{ID: "c-1"}, {ID: "c-2"}}}

	item, ok := p.At(1)
	assert.True(t, ok)
	assert.Equal(t, "c-2", item.ID)

	_, ok = p.At(2)
	assert.False(t, ok)
	_, ok = p.At(-1)
	assert.False(t, ok)

	var empty Playlist
	assert.True(t, empty.IsEmpty())
	_, ok = empty.At(0)
	assert.False(t, ok)
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected Config
	}{
		{
			name:     "zero value gets defaults",
			config:   Config{},
			expected: Config{Mode: ModeSequential, LoopBehavior: LoopUntilNext},
		},
		{
			name:     "unknown mode falls back to sequential",
			config:   Config{Mode: "ping_pong", LoopBehavior: LoopInfinite},
			expected: Config{Mode: ModeSequential, LoopBehavior: LoopInfinite},
		},
		{
			name:     "unknown loop behavior is kept",
			config:   Config{Mode: ModeSequential, LoopBehavior: "once"},
			expected: Config{Mode: ModeSequential, LoopBehavior: "once"},
		},
		{
			name:     "negative durations are clamped",
			config:   Config{Mode: ModeRandom, LoopBehavior: LoopInfinite, ContentDuration: -1, TransitionDuration: -time.Second},
			expected: Config{Mode: ModeRandom, LoopBehavior: LoopInfinite},
		},
		{
			name:     "valid config is kept",
			config:   Config{Mode: ModeSingle, LoopBehavior: LoopInfinite, ShuffleEnabled: true, ContentDuration: 5 * time.Second},
			expected: Config{Mode: ModeSingle, LoopBehavior: LoopInfinite, ShuffleEnabled: true, ContentDuration: 5 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.Normalize())
		})
	}
}

func TestConfig_Wraps(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{"sequential until_next", Config{Mode: ModeSequential, LoopBehavior: LoopUntilNext}, true},
		{"sequential infinite", Config{Mode: ModeSequential, LoopBehavior: LoopInfinite}, true},
		{"sequential unknown behavior", Config{Mode: ModeSequential, LoopBehavior: "once"}, false},
		{"loop_infinite ignores behavior", Config{Mode: ModeLoopInfinite, LoopBehavior: "once"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.Wraps())
		})
	}
}

func TestConfig_Randomized(t *testing.T) {
	assert.True(t, Config{Mode: ModeRandom}.Randomized())
	assert.True(t, Config{Mode: ModeSequential, ShuffleEnabled: true}.Randomized())
	assert.False(t, Config{Mode: ModeSequential}.Randomized())
}
