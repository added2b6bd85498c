//go:build linux
// +build linux

// File: reactor/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Timer is the (callback, expiration, interval, repeat, sequence) tuple
// backing one scheduled or repeating callback. Sequence is a
// strictly-increasing id assigned at construction, letting TimerID stay
// a plain value type that never conveys ownership.

package reactor

import (
	"time"

	"github.com/momentics/reactorhttp/internal/clock"
)

// Timer is owned exclusively by the TimerQueue that created it; users
// only ever hold a TimerID.
type Timer struct {
	callback   func()
	expiration clock.TimeStamp
	interval   time.Duration
	repeat     bool
	sequence   int64
	heapIndex  int
}

func newTimer(cb func(), when clock.TimeStamp, interval time.Duration, seq int64) *Timer {
	return &Timer{
		callback:   cb,
		expiration: when,
		interval:   interval,
		repeat:     interval > 0,
		sequence:   seq,
		heapIndex:  -1,
	}
}

// restart reschedules a repeating timer relative to now.
func (t *Timer) restart(now clock.TimeStamp) {
	t.expiration = now.Add(t.interval)
}

// TimerID is the opaque, non-owning handle returned to callers of
// AddTimer/RunAt/RunAfter/RunEvery.
type TimerID struct {
	sequence int64
}
