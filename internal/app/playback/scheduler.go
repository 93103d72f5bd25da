package playback

import (
	"math/rand"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/kioskbox/internal/app/media"
	"github.com/osa030/kioskbox/internal/app/timers"
	"github.com/osa030/kioskbox/internal/domain/content"
	"github.com/osa030/kioskbox/internal/domain/playlist"
)

// Errors
var (
	ErrNoSession  = errors.New("no playlist loaded")
	ErrNotPlaying = errors.New("not playing")
	ErrNotPaused  = errors.New("not paused")
)

// Timer purposes owned by the scheduler.
const (
	PurposeImageDuration timers.Purpose = "image_duration"
	PurposeTransition    timers.Purpose = "transition"
	PurposeMediaError    timers.Purpose = "media_error"
)

var schedulerPurposes = []timers.Purpose{PurposeImageDuration, PurposeTransition, PurposeMediaError}

// Config holds scheduler configuration.
type Config struct {
	DefaultImageDuration time.Duration // image dwell when neither item nor playlist gives one
	TransitionOverride   time.Duration // replaces the playlist's transition duration when > 0
	MediaErrorAdvance    time.Duration // delay before moving past a failed item
}

// Adapters looks up the media adapter for a content type.
type Adapters interface {
	For(t content.Type) (media.Adapter, error)
	SetAudio(muted bool, volume float64)
	UnmountAll()
}

// Ambient is the ambient audio channel driven by the scheduler.
type Ambient interface {
	SetURL(url string)
	SetItem(item *content.Item)
	Rewind()
	Stop()
}

// Scheduler owns the playlist, the current session and every item timer.
// It is driven from a single goroutine and is not safe for concurrent use.
type Scheduler struct {
	cfg      Config
	adapters Adapters
	timers   *timers.Registry
	emit     func(media.Event)
	ambient  Ambient
	draw     func(n int) int

	state    State
	snapshot playlist.Snapshot
	session  *Session

	token   uint64
	mounted media.Adapter
	ready   bool // current mount reported ready

	halted         bool
	pendingMount   bool // playlist replaced while paused
	pausedFrom     State
	pendingNext    int           // index mounted when the transition timer fires
	pausedDwell    time.Duration // image dwell left when paused
	pausedDelay    time.Duration // transition delay left when paused
	pausedErrDelay time.Duration // media error delay left when paused
	unsupportedRun int
	errorRun       int

	muted  bool
	volume float64

	observers []Observer
}

// NewScheduler creates an idle scheduler.
// emit receives adapter events; the owner must hand them back through HandleMedia.
func NewScheduler(cfg Config, adapters Adapters, reg *timers.Registry, emit func(media.Event)) *Scheduler {
	if cfg.DefaultImageDuration <= 0 {
		cfg.DefaultImageDuration = 10 * time.Second
	}
	if cfg.MediaErrorAdvance <= 0 {
		cfg.MediaErrorAdvance = 3 * time.Second
	}
	return &Scheduler{
		cfg:      cfg,
		adapters: adapters,
		timers:   reg,
		emit:     emit,
		draw:     rand.Intn,
		state:    StateIdle,
		volume:   1,
	}
}

// SetAmbient attaches the ambient audio channel.
func (s *Scheduler) SetAmbient(a Ambient) {
	s.ambient = a
}

// SetRand replaces the random source used by random and shuffle modes.
func (s *Scheduler) SetRand(draw func(n int) int) {
	s.draw = draw
}

// AddObserver registers an observer.
func (s *Scheduler) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// State returns the current state.
func (s *Scheduler) State() State {
	return s.state
}

// Session returns a copy of the current session.
func (s *Scheduler) Session() (Session, bool) {
	if s.session == nil {
		return Session{}, false
	}
	return *s.session, true
}

// Playlist returns the active playlist and configuration.
func (s *Scheduler) Playlist() playlist.Snapshot {
	return s.snapshot
}

// Halted reports whether auto-advance has stopped until the next load.
func (s *Scheduler) Halted() bool {
	return s.halted
}

// SetAudio applies mute and volume to adapters now and to future mounts.
func (s *Scheduler) SetAudio(muted bool, volume float64) {
	s.muted = muted
	s.volume = volume
	s.adapters.SetAudio(muted, volume)
}

// MarkLoading records a fetch in flight. It only shows while nothing plays.
func (s *Scheduler) MarkLoading() {
	if s.session == nil {
		s.setState(StateLoading)
	}
}

// MarkCircuitOpen records that the network is suppressed. It only shows while nothing plays.
func (s *Scheduler) MarkCircuitOpen() {
	if s.session == nil {
		s.setState(StateCircuitOpen)
	}
}

// MarkIdle returns to Idle after a failed or empty fetch when nothing plays.
func (s *Scheduler) MarkIdle() {
	if s.session == nil {
		s.setState(StateIdle)
	}
}

// Load replaces the playlist wholesale.
//
// If the active item is still at the same position it keeps playing;
// otherwise the session is reset and index 0 is mounted.
func (s *Scheduler) Load(snap playlist.Snapshot) {
	snap.Config = snap.Config.Normalize()
	if s.ambient != nil {
		s.ambient.SetURL(snap.Playlist.AmbientAudioURL)
	}

	if snap.Playlist.IsEmpty() {
		s.clear(snap)
		return
	}

	prev := s.snapshot
	s.snapshot = snap

	if s.keepsCurrent(snap) {
		if slices.Equal(prev.Playlist.ItemIDs(), snap.Playlist.ItemIDs()) {
			zlog.Debug().Msgf("Playlist refreshed, keeping current item: id=%s, index=%d", s.session.Item.ID, s.session.Index)
		} else {
			// Different content around the current item is a new session.
			s.session.rotate()
			s.unsupportedRun = 0
			s.errorRun = 0
			zlog.Info().Msgf("Playlist replaced, keeping current item: id=%s, index=%d, items=%d, session=%s",
				s.session.Item.ID, s.session.Index, snap.Playlist.Len(), s.session.ID)
		}
		s.notify(Event{Type: EventPlaylistLoaded})
		return
	}

	zlog.Info().Msgf("Playlist loaded: items=%d, mode=%s, loop=%s, previous=%d",
		snap.Playlist.Len(), snap.Config.Mode, snap.Config.LoopBehavior, prev.Playlist.Len())

	paused := s.state == StatePaused
	s.endItem()
	s.cancelItemTimers()
	s.unmount()
	s.session = newSession()
	s.halted = false
	s.unsupportedRun = 0
	s.errorRun = 0
	s.notify(Event{Type: EventPlaylistLoaded})

	if paused {
		s.pendingMount = true
		s.pausedFrom = StatePlaying
		s.pausedDwell, s.pausedDelay, s.pausedErrDelay = 0, 0, 0
		return
	}
	s.mountIndex(0)
}

func (s *Scheduler) keepsCurrent(snap playlist.Snapshot) bool {
	if s.session == nil || s.halted || s.pendingMount {
		return false
	}
	if s.state == StateError || s.state == StateTransitioning {
		return false
	}
	item, ok := snap.Playlist.At(s.session.Index)
	if !ok || item.ID != s.session.Item.ID {
		return false
	}
	s.session.Item = item
	return true
}

func (s *Scheduler) clear(snap playlist.Snapshot) {
	s.endItem()
	s.cancelItemTimers()
	s.unmount()
	if s.ambient != nil {
		s.ambient.Stop()
	}

	hadPlaylist := !s.snapshot.Playlist.IsEmpty()
	s.snapshot = snap
	s.session = nil
	s.halted = false
	s.pendingMount = false
	s.unsupportedRun = 0
	s.errorRun = 0
	s.setState(StateIdle)
	if hadPlaylist {
		s.notify(Event{Type: EventPlaylistCleared})
	}
}

// Stop tears down the session and clears the playlist.
func (s *Scheduler) Stop() {
	zlog.Info().Msg("Playback stopped, playlist cleared")
	s.clear(playlist.Snapshot{Config: s.snapshot.Config})
	s.adapters.UnmountAll()
}

// Advance moves to the next item according to the playback mode.
func (s *Scheduler) Advance() {
	if s.session == nil {
		return
	}
	s.advance(false)
}

// Skip ends the current item early and advances. A paused scheduler resumes.
func (s *Scheduler) Skip() error {
	if s.session == nil {
		return ErrNoSession
	}
	if s.state == StatePaused {
		s.state = s.pausedFrom
		s.pendingMount = false
	}
	s.endItem()
	s.cancelItemTimers()
	s.advance(false)
	return nil
}

// Pause halts playback without losing position.
func (s *Scheduler) Pause() error {
	if s.session == nil {
		return ErrNoSession
	}
	switch s.state {
	case StatePlaying, StateLoading, StateTransitioning, StateError:
	default:
		return ErrNotPlaying
	}

	s.pausedDwell, _ = s.timers.Remaining(PurposeImageDuration)
	s.pausedDelay, _ = s.timers.Remaining(PurposeTransition)
	s.pausedErrDelay, _ = s.timers.Remaining(PurposeMediaError)
	s.cancelItemTimers()

	if s.mounted != nil {
		if err := s.mounted.Pause(); err != nil {
			zlog.Warn().Msgf("Failed to pause adapter: item=%s, err=%v", s.session.Item.ID, err)
		}
	}
	if s.session.Playing {
		s.session.Elapsed = s.session.ItemElapsed(s.now())
		s.session.Playing = false
	}

	s.pausedFrom = s.state
	s.setState(StatePaused)
	return nil
}

// Resume continues paused playback in place.
func (s *Scheduler) Resume() error {
	if s.session == nil {
		return ErrNoSession
	}
	if s.state != StatePaused {
		return ErrNotPaused
	}

	if s.pendingMount {
		s.pendingMount = false
		s.mountIndex(s.session.Index)
		return nil
	}

	from := s.pausedFrom
	s.setState(from)

	switch {
	case s.pausedDelay > 0:
		s.scheduleTransition(s.pendingNext, s.pausedDelay)
	case s.pausedErrDelay > 0:
		s.timers.Schedule(PurposeMediaError, s.pausedErrDelay, s.advanceAfterError)
	case s.pausedDwell > 0 && !s.halted:
		s.scheduleDwell(s.pausedDwell)
	}

	if s.mounted == nil {
		return nil
	}
	if err := s.mounted.Resume(); err != nil {
		zlog.Warn().Msgf("Failed to resume adapter: item=%s, err=%v", s.session.Item.ID, err)
	}

	switch {
	case from == StatePlaying && !s.halted:
		s.session.Playing = true
		s.session.StartedAt = s.now()
	case from == StateLoading && s.ready:
		s.start()
	}
	return nil
}

// HandleMedia applies an adapter event. Events for stale mounts are ignored.
func (s *Scheduler) HandleMedia(ev media.Event) {
	if s.mounted == nil || ev.Token != s.token {
		zlog.Debug().Msgf("Ignoring stale media event: type=%s, item=%s, token=%d, current=%d", ev.Type, ev.ItemID, ev.Token, s.token)
		return
	}

	switch ev.Type {
	case media.EventReady:
		s.ready = true
		if s.state == StatePaused || s.halted {
			return
		}
		s.start()
	case media.EventStarted:
		zlog.Debug().Msgf("Media started: item=%s", ev.ItemID)
	case media.EventEnded:
		if s.state == StatePaused {
			return
		}
		if s.loopsInPlace() {
			// Adapters normally loop in place themselves.
			s.mountIndex(s.session.Index)
			return
		}
		s.finishItem()
	case media.EventErrored:
		err := ev.Err
		if err == nil {
			err = media.ErrMedia
		}
		s.mediaError(err)
	}
}

func (s *Scheduler) start() {
	s.setState(StatePlaying)
	s.session.Playing = true
	s.session.StartedAt = s.now()

	item := s.session.Item
	zlog.Info().Msgf("Playing: index=%d/%d, id=%s, type=%s, title=%q",
		s.session.Index+1, s.snapshot.Playlist.Len(), item.ID, item.Type, item.Title)
	s.notify(Event{Type: EventItemStarted, Item: &item})

	if err := s.mounted.Play(); err != nil {
		s.mediaError(err)
	}
}

// mountIndex mounts the item at index i, replacing whatever is mounted.
func (s *Scheduler) mountIndex(i int) {
	items := s.snapshot.Playlist.Items
	if i < 0 || i >= len(items) {
		i = 0
	}

	s.cancelItemTimers()
	s.unmount()

	prev := s.session.Item
	item := items[i]
	s.session.Index = i
	s.session.Item = item
	s.session.Playing = false
	s.session.StartedAt = time.Time{}
	s.session.Elapsed = 0
	s.token++
	s.ready = false

	if prev.ID != "" && prev.ID != item.ID {
		s.notify(Event{Type: EventContentChanged, Previous: &prev, Item: &item})
	}

	adapter, err := s.adapters.For(item.Type)
	if err != nil {
		s.unsupported(item, err)
		return
	}
	s.unsupportedRun = 0

	if s.ambient != nil {
		s.ambient.SetItem(&item)
	}

	s.setState(StateLoading)
	s.mounted = adapter
	opts := media.MountOptions{
		Token:  s.token,
		Loop:   s.loopsInPlace(),
		Muted:  s.muted,
		Volume: s.volume,
	}
	if err := adapter.Mount(item, opts, s.emit); err != nil {
		s.mediaError(errors.Mark(errors.Wrapf(err, "failed to mount %s", item.ID), media.ErrMedia))
		return
	}

	if item.IsImage() {
		s.scheduleDwell(item.DwellTime(s.snapshot.Config.ContentDuration, s.cfg.DefaultImageDuration))
	}
}

func (s *Scheduler) scheduleDwell(d time.Duration) {
	token := s.token
	s.timers.Schedule(PurposeImageDuration, d, func() {
		if token != s.token {
			return
		}
		s.finishItem()
	})
}

func (s *Scheduler) unsupported(item content.Item, err error) {
	s.unsupportedRun++
	zlog.Warn().Msgf("Skipping unsupported content: id=%s, type=%q", item.ID, string(item.Type))
	s.notify(Event{Type: EventUnsupported, Item: &item, Err: err})

	next, ok := s.nextPlayable(s.session.Index)
	if !ok {
		zlog.Error().Msgf("No playable content in playlist: items=%d", s.snapshot.Playlist.Len())
		if s.ambient != nil {
			s.ambient.SetItem(nil)
		}
		s.setState(StateError)
		return
	}

	if s.unsupportedRun > s.snapshot.Playlist.Len() {
		// Random draws keep landing on unsupported items.
		s.mountIndex(next)
		return
	}
	s.advance(true)
	if s.halted && s.mounted == nil {
		s.setState(StateError)
	}
}

// nextPlayable returns the first index after i, in list order and wrapping,
// whose content type has an adapter.
func (s *Scheduler) nextPlayable(i int) (int, bool) {
	n := s.snapshot.Playlist.Len()
	for step := 1; step <= n; step++ {
		j := (i + step) % n
		item, _ := s.snapshot.Playlist.At(j)
		if s.playable(item) {
			return j, true
		}
	}
	return 0, false
}

func (s *Scheduler) playable(item content.Item) bool {
	if !item.Type.IsSupported() {
		return false
	}
	_, err := s.adapters.For(item.Type)
	return err == nil
}

func (s *Scheduler) mediaError(err error) {
	item := s.session.Item
	s.errorRun++
	zlog.Error().Msgf("Media error: id=%s, type=%s, err=%v", item.ID, item.Type, err)

	s.cancelItemTimers()
	if s.session.Playing {
		s.session.Elapsed = s.session.ItemElapsed(s.now())
		s.session.Playing = false
	}

	if s.errorRun >= s.snapshot.Playlist.Len() {
		s.setState(StateError)
	} else {
		s.setState(StateTransitioning)
	}
	s.notify(Event{Type: EventMediaError, Item: &item, Err: err})
	s.timers.Schedule(PurposeMediaError, s.cfg.MediaErrorAdvance, s.advanceAfterError)
}

func (s *Scheduler) advanceAfterError() {
	if s.session == nil {
		return
	}
	s.endItem()
	s.advance(false)
}

// finishItem handles the natural end of the current item.
func (s *Scheduler) finishItem() {
	s.errorRun = 0
	s.endItem()
	s.advance(false)
}

// advance implements the next-index algorithm and the transition delay.
func (s *Scheduler) advance(immediate bool) {
	cfg := s.snapshot.Config
	next, wrapped, ok := NextIndex(cfg, s.session.Index, s.snapshot.Playlist.Len(), s.draw)
	if !ok {
		s.halted = true
		zlog.Info().Msgf("Auto-advance halted: mode=%s, loop=%s, index=%d", cfg.Mode, cfg.LoopBehavior, s.session.Index)
		item := s.session.Item
		s.notify(Event{Type: EventHalted, Item: &item})
		return
	}

	if wrapped {
		if s.ambient != nil {
			s.ambient.Rewind()
		}
		s.notify(Event{Type: EventWrapped})
	}

	delay := s.transitionDelay()
	if immediate || delay <= 0 {
		s.mountIndex(next)
		return
	}

	s.unmount()
	s.setState(StateTransitioning)
	s.scheduleTransition(next, delay)
}

func (s *Scheduler) scheduleTransition(next int, delay time.Duration) {
	s.pendingNext = next
	s.timers.Schedule(PurposeTransition, delay, func() {
		s.mountIndex(next)
	})
}

func (s *Scheduler) transitionDelay() time.Duration {
	if s.cfg.TransitionOverride > 0 {
		return s.cfg.TransitionOverride
	}
	return s.snapshot.Config.TransitionDuration
}

// loopsInPlace reports whether the current item repeats without advancing:
// a single-item playlist with infinite loop behavior.
func (s *Scheduler) loopsInPlace() bool {
	return s.snapshot.Playlist.Len() == 1 &&
		s.snapshot.Config.LoopBehavior == playlist.LoopInfinite &&
		s.session != nil && s.session.Item.IsVideo()
}

// endItem emits EventItemEnded for an item that was playing.
func (s *Scheduler) endItem() {
	if s.session == nil || s.session.Item.ID == "" {
		return
	}
	if !s.session.Playing && s.session.Elapsed == 0 {
		return
	}
	elapsed := s.session.ItemElapsed(s.now())
	s.session.Playing = false
	s.session.Elapsed = 0
	item := s.session.Item
	s.notify(Event{Type: EventItemEnded, Item: &item, Elapsed: elapsed})
}

func (s *Scheduler) unmount() {
	if s.mounted != nil {
		s.mounted.Unmount()
		s.mounted = nil
	}
	s.ready = false
}

func (s *Scheduler) cancelItemTimers() {
	for _, p := range schedulerPurposes {
		s.timers.Cancel(p)
	}
}

func (s *Scheduler) setState(st State) {
	if s.state == st {
		return
	}
	from := s.state
	s.state = st
	zlog.Debug().Msgf("Playback state: %s -> %s", from, st)
	s.notify(Event{Type: EventStateChanged})
}

func (s *Scheduler) notify(e Event) {
	e.State = s.state
	e.Length = s.snapshot.Playlist.Len()
	if s.session != nil {
		e.Session = *s.session
	}
	for _, o := range s.observers {
		o.OnPlaybackEvent(e)
	}
}

func (s *Scheduler) now() time.Time {
	return s.timers.Clock().Now()
}
