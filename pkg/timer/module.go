package timer

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

const (
	stateIdle = iota
	stateActive
	stateExpired
)

// Timer is a one-shot timer that can report how much time it has left, so a
// reconnecting client can be told the exact remaining duration. Unlike
// time.Timer it must be armed explicitly with Start.
type Timer struct {
	t  *time.Timer
	fn func()

	l         deadlock.Mutex
	state     int
	duration  time.Duration
	startedAt time.Time
}

// AfterFunc returns a Timer that calls f in its own goroutine once the
// duration elapses after Start.
func AfterFunc(d time.Duration, f func()) *Timer {
	t := &Timer{duration: d}
	t.fn = func() {
		t.l.Lock()
		t.state = stateExpired
		t.l.Unlock()
		f()
	}
	return t
}

func (t *Timer) Start() bool {
	t.l.Lock()
	defer t.l.Unlock()
	if t.state != stateIdle {
		return false
	}
	t.startedAt = time.Now()
	t.state = stateActive
	t.t = time.AfterFunc(t.duration, t.fn)
	return true
}

// Stop prevents the timer from firing. It returns true if the call stopped
// the timer, false if it had already expired or been stopped.
func (t *Timer) Stop() bool {
	t.l.Lock()
	defer t.l.Unlock()
	if t.state != stateActive {
		return false
	}
	t.state = stateExpired
	return t.t.Stop()
}

// TimeLeft is safe to call on a nil timer and returns 0 in that case.
func (t *Timer) TimeLeft() time.Duration {
	if t == nil {
		return 0
	}

	t.l.Lock()
	defer t.l.Unlock()

	switch t.state {
	case stateIdle:
		return t.duration
	case stateActive:
		return t.duration - time.Since(t.startedAt)
	}
	return 0
}
