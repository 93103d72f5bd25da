// Package mediatest provides a scriptable media adapter for tests.
package mediatest

import (
	"sync"

	"github.com/osa030/kioskbox/internal/app/media"
	"github.com/osa030/kioskbox/internal/domain/content"
)

// Mount records a single Mount call.
type Mount struct {
	Item content.Item
	Opts media.MountOptions
}

// Adapter records calls and lets tests emit synthetic media events.
type Adapter struct {
	mu sync.Mutex

	Mounts   []Mount
	Plays    int
	Pauses   int
	Resumes  int
	Unmounts int
	Muted    bool
	Volume   float64

	// AutoReady emits EventReady from Mount.
	AutoReady bool
	// PlayErr is returned by Play when set.
	PlayErr error

	emit    func(media.Event)
	current media.MountOptions
	item    content.Item
	mounted bool
}

// New creates a fake adapter that reports ready on mount.
func New() *Adapter {
	return &Adapter{AutoReady: true}
}

func (a *Adapter) Mount(item content.Item, opts media.MountOptions, emit func(media.Event)) error {
	a.mu.Lock()
	a.Mounts = append(a.Mounts, Mount{Item: item, Opts: opts})
	a.emit = emit
	a.current = opts
	a.item = item
	a.mounted = true
	auto := a.AutoReady
	a.mu.Unlock()

	if auto {
		emit(media.Event{Type: media.EventReady, Token: opts.Token, ItemID: item.ID})
	}
	return nil
}

func (a *Adapter) Play() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Plays++
	return a.PlayErr
}

func (a *Adapter) Pause() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Pauses++
	return nil
}

func (a *Adapter) Resume() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Resumes++
	return nil
}

func (a *Adapter) SetAudio(muted bool, volume float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Muted = muted
	a.Volume = volume
}

func (a *Adapter) Unmount() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Unmounts++
	a.mounted = false
}

// Mounted reports whether an item is currently mounted.
func (a *Adapter) Mounted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mounted
}

// MountedIDs returns the ids of every mounted item in order.
func (a *Adapter) MountedIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, len(a.Mounts))
	for i, m := range a.Mounts {
		ids[i] = m.Item.ID
	}
	return ids
}

// LastMount returns the most recent mount.
func (a *Adapter) LastMount() Mount {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.Mounts) == 0 {
		return Mount{}
	}
	return a.Mounts[len(a.Mounts)-1]
}

// Ready emits EventReady for the current mount.
func (a *Adapter) Ready() { a.send(media.EventReady, nil) }

// End emits EventEnded for the current mount.
func (a *Adapter) End() { a.send(media.EventEnded, nil) }

// Fail emits EventErrored for the current mount.
func (a *Adapter) Fail(err error) { a.send(media.EventErrored, err) }

// EmitStale emits an event carrying an outdated mount token.
func (a *Adapter) EmitStale(t media.EventType, token uint64) {
	a.mu.Lock()
	emit, id := a.emit, a.item.ID
	a.mu.Unlock()
	emit(media.Event{Type: t, Token: token, ItemID: id})
}

func (a *Adapter) send(t media.EventType, err error) {
	a.mu.Lock()
	emit, token, id := a.emit, a.current.Token, a.item.ID
	a.mu.Unlock()
	if emit == nil {
		return
	}
	emit(media.Event{Type: t, Token: token, ItemID: id, Err: err})
}
