// Package ambienttest provides a recording ambient audio sink for tests.
package ambienttest

import "sync"

// Sink records calls. PlayErrs are returned by successive Play calls.
type Sink struct {
	mu sync.Mutex

	Loads    []string
	Plays    int
	Pauses   int
	Rewinds  int
	Closes   int
	Muted    bool
	Volume   float64
	Playing  bool
	PlayErrs []error
}

func (s *Sink) Load(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Loads = append(s.Loads, url)
	s.Playing = false
	return nil
}

func (s *Sink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Plays++
	if len(s.PlayErrs) > 0 {
		err := s.PlayErrs[0]
		s.PlayErrs = s.PlayErrs[1:]
		if err != nil {
			return err
		}
	}
	s.Playing = true
	return nil
}

func (s *Sink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Pauses++
	s.Playing = false
}

func (s *Sink) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rewinds++
}

func (s *Sink) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Muted = muted
}

func (s *Sink) SetVolume(level float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Volume = level
}

func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closes++
	s.Playing = false
}

// IsPlaying reports whether the sink is currently playing.
func (s *Sink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Playing
}
