package ambient_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/kioskbox/internal/app/ambient"
	"github.com/osa030/kioskbox/internal/app/ambient/ambienttest"
	"github.com/osa030/kioskbox/internal/domain/content"
)

var (
	image = &content.Item{ID: "img", Type: content.TypeImage}
	video = &content.Item{ID: "vid", Type: content.TypeVideo}
)

func TestController_PlaysOnlyForImages(t *testing.T) {
	tests := []struct {
		name string
		url  string
		item *content.Item
		want bool
	}{
		{name: "image with url", url: "http://a/1.mp3", item: image, want: true},
		{name: "video with url", url: "http://a/1.mp3", item: video, want: false},
		{name: "cleared with url", url: "http://a/1.mp3", item: nil, want: false},
		{name: "image without url", url: "", item: image, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &ambienttest.Sink{}
			c := ambient.NewController(sink, false)
			c.SetURL(tt.url)
			c.SetItem(tt.item)

			assert.Equal(t, tt.want, c.State().Playing)
			assert.Equal(t, tt.want, sink.IsPlaying())
		})
	}
}

func TestController_PausesWhenVideoBecomesActive(t *testing.T) {
	sink := &ambienttest.Sink{}
	c := ambient.NewController(sink, false)
	c.SetURL("http://a/1.mp3")

	c.SetItem(image)
	assert.True(t, sink.IsPlaying())

	c.SetItem(video)
	assert.False(t, sink.IsPlaying())
	assert.Equal(t, 1, sink.Pauses)

	c.SetItem(image)
	assert.True(t, sink.IsPlaying())
	assert.Equal(t, 2, sink.Plays)
}

func TestController_ReloadsOnlyOnURLChange(t *testing.T) {
	sink := &ambienttest.Sink{}
	c := ambient.NewController(sink, false)

	c.SetURL("http://a/1.mp3")
	c.SetURL("http://a/1.mp3")
	c.SetURL("http://a/1.mp3")
	assert.Equal(t, []string{"http://a/1.mp3"}, sink.Loads)

	c.SetURL("http://a/2.mp3")
	assert.Equal(t, []string{"http://a/1.mp3", "http://a/2.mp3"}, sink.Loads)

	c.SetURL("")
	assert.False(t, c.State().Loaded)
	assert.Equal(t, 1, sink.Closes)
}

func TestController_GestureRetriesRejectedPlaybackOnce(t *testing.T) {
	sink := &ambienttest.Sink{PlayErrs: []error{ambient.ErrPlaybackRejected, ambient.ErrPlaybackRejected}}
	c := ambient.NewController(sink, true)
	c.SetURL("http://a/1.mp3")

	c.SetItem(image)
	assert.Equal(t, 1, sink.Plays)
	assert.False(t, c.State().Playing)

	// Item changes do not hammer a rejected sink.
	c.SetItem(video)
	c.SetItem(image)
	assert.Equal(t, 1, sink.Plays)

	c.Gesture()
	assert.Equal(t, 2, sink.Plays)
	assert.False(t, c.State().Playing)

	// Retry is spent.
	c.Gesture()
	c.SetItem(image)
	assert.Equal(t, 2, sink.Plays)
}

func TestController_GestureRetrySucceeds(t *testing.T) {
	sink := &ambienttest.Sink{PlayErrs: []error{ambient.ErrPlaybackRejected}}
	c := ambient.NewController(sink, true)
	c.SetURL("http://a/1.mp3")
	c.SetItem(image)

	c.Gesture()
	assert.True(t, c.State().Playing)
	assert.True(t, sink.IsPlaying())
}

func TestController_MuteAndRewind(t *testing.T) {
	sink := &ambienttest.Sink{}
	c := ambient.NewController(sink, true)
	assert.True(t, sink.Muted)

	c.Rewind()
	assert.Equal(t, 0, sink.Rewinds, "nothing loaded")

	c.SetURL("http://a/1.mp3")
	c.Rewind()
	assert.Equal(t, 1, sink.Rewinds)

	c.SetMuted(false)
	c.SetVolume(0.5)
	assert.False(t, sink.Muted)
	assert.False(t, c.State().Muted)
	assert.InDelta(t, 0.5, sink.Volume, 0.0001)
}
