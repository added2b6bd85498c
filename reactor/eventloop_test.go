//go:build linux
// +build linux

// File: reactor/eventloop_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/reactorhttp/adapters"
	"github.com/momentics/reactorhttp/internal/clock"
)

func newTestLoop(t *testing.T) *EventLoop {
	t.Helper()
	loop, err := NewEventLoop(adapters.NewAtomicControl(), nil)
	require.NoError(t, err)
	go loop.Loop()
	t.Cleanup(func() {
		loop.Quit()
		<-loop.Done()
		require.NoError(t, loop.Close())
	})
	waitInLoop(t, loop)
	return loop
}

// waitInLoop blocks until loop has processed at least one RunInLoop round
// trip, proving Loop() has actually started servicing its pending queue.
func waitInLoop(t *testing.T, loop *EventLoop) {
	t.Helper()
	done := make(chan struct{})
	loop.RunInLoop(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop never became ready")
	}
}

func TestRunInLoopFromForeignGoroutineExecutesOnLoopThread(t *testing.T) {
	loop := newTestLoop(t)

	resultCh := make(chan bool, 1)
	loop.RunInLoop(func() {
		resultCh <- loop.IsInLoopThread()
	})

	select {
	case onLoop := <-resultCh:
		require.True(t, onLoop)
	case <-time.After(2 * time.Second):
		t.Fatal("RunInLoop callback never ran")
	}
}

func TestRunAfterFiresOnce(t *testing.T) {
	loop := newTestLoop(t)

	fired := make(chan struct{}, 2)
	loop.RunAfter(20*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}

	select {
	case <-fired:
		t.Fatal("one-shot timer fired more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRunEveryRepeatsUntilCanceled(t *testing.T) {
	loop := newTestLoop(t)

	fired := make(chan struct{}, 8)
	var id TimerID
	loop.RunInLoop(func() {
		id = loop.RunEvery(10*time.Millisecond, func() { fired <- struct{}{} })
	})

	for i := 0; i < 3; i++ {
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatal("repeating timer did not fire enough times")
		}
	}

	loop.RunInLoop(func() { loop.CancelTimer(id) })
	// Drain any in-flight fire, then confirm no more arrive.
	select {
	case <-fired:
	case <-time.After(50 * time.Millisecond):
	}
	for {
		select {
		case <-fired:
			continue
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}

func TestChannelReadCallbackFiresOnPipeWrite(t *testing.T) {
	loop := newTestLoop(t)

	r, w, err := unixPipe()
	require.NoError(t, err)
	defer unix.Close(w)

	gotRead := make(chan struct{}, 1)
	var ch *Channel
	loop.RunInLoop(func() {
		ch = NewChannel(loop, r)
		ch.SetReadCallback(func(_ clock.TimeStamp) {
			var buf [16]byte
			_, _ = unix.Read(r, buf[:])
			gotRead <- struct{}{}
		})
		ch.EnableReading()
	})

	_, err = unix.Write(w, []byte("hi"))
	require.NoError(t, err)

	select {
	case <-gotRead:
	case <-time.After(2 * time.Second):
		t.Fatal("channel never observed pipe write")
	}

	loop.RunInLoop(func() {
		ch.DisableAll()
		ch.Remove()
		unix.Close(r)
	})
}

func unixPipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}
