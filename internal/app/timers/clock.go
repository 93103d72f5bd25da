// Package timers provides a scheduled-task registry keyed by purpose.
//
// Every delayed action of the engine (image dwell, transition delay, heartbeat,
// playlist refresh, reconnect) is registered here, so teardown is a single
// CancelAll instead of tracking timer handles by hand.
package timers

import "time"

// Timer is a pending callback that can be stopped.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so timing-sensitive code can be tested deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
