//go:build linux
// +build linux

// File: reactor/timer_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCancelTimerAfterItAlreadyFiredDoesNotPanic reproduces the idle-timeout
// shutdown path: a one-shot timer fires and is never rescheduled, then
// something cancels the same TimerID afterward believing it might still be
// pending. tq.canceling must never be nil outside handleRead's dispatch
// window for this to be safe.
func TestCancelTimerAfterItAlreadyFiredDoesNotPanic(t *testing.T) {
	loop := newTestLoop(t)

	fired := make(chan struct{}, 1)
	var id TimerID
	loop.RunInLoop(func() {
		id = loop.RunAfter(10*time.Millisecond, func() { fired <- struct{}{} })
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot timer never fired")
	}

	// Give handleRead's dispatch a moment to fully return before the
	// out-of-band cancel arrives, matching the real round trip through
	// TcpServer.removeConnection back onto the connection's own loop.
	time.Sleep(20 * time.Millisecond)

	require.NotPanics(t, func() {
		done := make(chan struct{})
		loop.RunInLoop(func() {
			loop.CancelTimer(id)
			close(done)
		})
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("CancelTimer never completed")
		}
	})
}
