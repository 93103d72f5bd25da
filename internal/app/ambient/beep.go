package ambient

import (
	"context"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	zlog "github.com/rs/zerolog/log"
)

const maxTrackBytes = 64 << 20

var (
	speakerMu   sync.Mutex
	speakerRate beep.SampleRate
	speakerErr  error
	speakerInit bool
)

// initSpeaker opens the audio device once per process.
func initSpeaker(rate beep.SampleRate) (beep.SampleRate, error) {
	speakerMu.Lock()
	defer speakerMu.Unlock()

	if !speakerInit {
		speakerRate = rate
		speakerErr = speaker.Init(rate, rate.N(time.Second/10))
		speakerInit = true
	}
	return speakerRate, speakerErr
}

// track is one decoded, loopable ambient track.
type track struct {
	url    string
	buffer *beep.Buffer
	pos    beep.StreamSeeker
	ctrl   *beep.Ctrl
	volume *effects.Volume
}

// BeepSink plays the ambient track on the local audio device.
type BeepSink struct {
	mu     sync.Mutex
	client *http.Client

	gen      uint64
	current  *track
	cancel   context.CancelFunc
	wantPlay bool
	muted    bool
	level    float64
	devErr   error
}

// NewBeepSink creates a sink that downloads tracks with client.
func NewBeepSink(client *http.Client) *BeepSink {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &BeepSink{client: client, level: 1}
}

// Load starts downloading and decoding url in the background.
func (s *BeepSink) Load(url string) error {
	if url == "" {
		return errors.New("empty ambient audio url")
	}

	s.mu.Lock()
	s.stopLocked()
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		t, err := s.fetch(ctx, url)
		if err != nil {
			if ctx.Err() == nil {
				zlog.Warn().Msgf("Failed to fetch ambient audio: url=%s, err=%v", url, err)
			}
			return
		}
		s.install(gen, t)
	}()
	return nil
}

func (s *BeepSink) fetch(ctx context.Context, url string) (*track, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to download track")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("unexpected status code: %d", resp.StatusCode)
	}

	return decodeTrack(url, io.LimitReader(resp.Body, maxTrackBytes))
}

// decodeTrack decodes an mp3 stream fully into memory so it can loop and rewind.
func decodeTrack(url string, r io.Reader) (*track, error) {
	streamer, format, err := mp3.Decode(io.NopCloser(r))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode mp3")
	}
	defer streamer.Close()

	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)
	if err := streamer.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read mp3")
	}
	if buffer.Len() == 0 {
		return nil, errors.New("empty audio track")
	}

	return &track{
		url:    url,
		buffer: buffer,
		pos:    buffer.Streamer(0, buffer.Len()),
	}, nil
}

func (s *BeepSink) install(gen uint64, t *track) {
	rate, err := initSpeaker(t.buffer.Format().SampleRate)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}
	if err != nil {
		s.devErr = err
		zlog.Warn().Msgf("Audio device unavailable: err=%v", err)
		return
	}

	var stream beep.Streamer = beep.Loop(-1, t.pos)
	if t.buffer.Format().SampleRate != rate {
		stream = beep.Resample(4, t.buffer.Format().SampleRate, rate, stream)
	}
	t.ctrl = &beep.Ctrl{Streamer: stream, Paused: !s.wantPlay}
	t.volume = &effects.Volume{Streamer: t.ctrl, Base: 2, Volume: levelToVolume(s.level), Silent: s.muted}
	s.current = t

	speaker.Play(t.volume)
	zlog.Debug().Msgf("Ambient track ready: url=%s, length=%v", t.url, t.buffer.Format().SampleRate.D(t.buffer.Len()))
}

// Play starts or resumes the track. Before loading completes the request is remembered.
func (s *BeepSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.devErr != nil {
		return errors.Mark(errors.Wrap(s.devErr, "audio device"), ErrPlaybackRejected)
	}
	s.wantPlay = true
	s.setPausedLocked(false)
	return nil
}

func (s *BeepSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wantPlay = false
	s.setPausedLocked(true)
}

func (s *BeepSink) setPausedLocked(paused bool) {
	if s.current == nil {
		return
	}
	speaker.Lock()
	s.current.ctrl.Paused = paused
	speaker.Unlock()
}

func (s *BeepSink) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return
	}
	speaker.Lock()
	if err := s.current.pos.Seek(0); err != nil {
		zlog.Warn().Msgf("Failed to rewind ambient track: err=%v", err)
	}
	speaker.Unlock()
}

func (s *BeepSink) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
	if s.current == nil {
		return
	}
	speaker.Lock()
	s.current.volume.Silent = muted
	speaker.Unlock()
}

func (s *BeepSink) SetVolume(level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = clampLevel(level)
	if s.current == nil {
		return
	}
	speaker.Lock()
	s.current.volume.Volume = levelToVolume(s.level)
	speaker.Unlock()
}

// Close stops playback and abandons any download in flight.
func (s *BeepSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.stopLocked()
}

func (s *BeepSink) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.current != nil {
		speaker.Lock()
		s.current.ctrl.Streamer = nil
		speaker.Unlock()
		s.current = nil
	}
}

func clampLevel(level float64) float64 {
	if level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}

// levelToVolume maps a 0.0 - 1.0 level onto beep's base-2 volume scale:
// 1.0 -> 0, 0.5 -> -1, 0.25 -> -2, 0 -> -10.
func levelToVolume(level float64) float64 {
	if level <= 0 {
		return -10
	}
	if level >= 1 {
		return 0
	}
	return math.Log2(level)
}
