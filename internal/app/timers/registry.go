package timers

import (
	"sync"
	"time"
)

// Purpose identifies what a scheduled task is for.
// At most one task per purpose is pending at any time.
type Purpose string

// Fired is posted by the clock when a task's delay elapses.
// The owner hands it back to Fire from its own goroutine.
type Fired struct {
	Purpose Purpose
	token   uint64
}

type task struct {
	token uint64
	timer Timer
	due   time.Time
	fn    func()
}

// Registry owns every scheduled task of one engine.
type Registry struct {
	mu    sync.Mutex
	clock Clock
	post  func(Fired)
	seq   uint64
	tasks map[Purpose]*task
}

// NewRegistry creates a registry. post delivers fired tasks to the owner's
// event loop; when nil, tasks run directly on the clock's callback.
func NewRegistry(clock Clock, post func(Fired)) *Registry {
	r := &Registry{
		clock: clock,
		post:  post,
		tasks: make(map[Purpose]*task),
	}
	if r.post == nil {
		r.post = func(f Fired) { r.Fire(f) }
	}
	return r
}

// Clock returns the registry's clock.
func (r *Registry) Clock() Clock {
	return r.clock
}

// Schedule registers fn to run after d, replacing any pending task with the same purpose.
func (r *Registry) Schedule(p Purpose, d time.Duration, fn func()) {
	if d < 0 {
		d = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.tasks[p]; ok {
		old.timer.Stop()
	}

	r.seq++
	token := r.seq
	t := &task{
		token: token,
		due:   r.clock.Now().Add(d),
		fn:    fn,
	}
	r.tasks[p] = t
	t.timer = r.clock.AfterFunc(d, func() {
		r.post(Fired{Purpose: p, token: token})
	})
}

// Fire runs the task if it is still the current one for its purpose.
// Stale firings (cancelled or replaced tasks) are ignored.
func (r *Registry) Fire(f Fired) bool {
	r.mu.Lock()
	t, ok := r.tasks[f.Purpose]
	if !ok || t.token != f.token {
		r.mu.Unlock()
		return false
	}
	delete(r.tasks, f.Purpose)
	r.mu.Unlock()

	t.fn()
	return true
}

// Cancel stops the pending task for p.
func (r *Registry) Cancel(p Purpose) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[p]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(r.tasks, p)
	return true
}

// CancelAll stops every pending task and returns how many were cancelled.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.tasks)
	for p, t := range r.tasks {
		t.timer.Stop()
		delete(r.tasks, p)
	}
	return n
}

// Pending reports whether a task for p is scheduled.
func (r *Registry) Pending(p Purpose) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[p]
	return ok
}

// Remaining returns the time left before the task for p fires.
func (r *Registry) Remaining(p Purpose) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[p]
	if !ok {
		return 0, false
	}
	left := t.due.Sub(r.clock.Now())
	if left < 0 {
		left = 0
	}
	return left, true
}

// Len returns the number of pending tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
