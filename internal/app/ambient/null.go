package ambient

// NullSink discards audio. Used when no output device is configured.
type NullSink struct{}

func (NullSink) Load(string) error { return nil }
func (NullSink) Play() error       { return nil }
func (NullSink) Pause()            {}
func (NullSink) Rewind()           {}
func (NullSink) SetMuted(bool)     {}
func (NullSink) SetVolume(float64) {}
func (NullSink) Close()            {}
