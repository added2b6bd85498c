//go:build linux
// +build linux

// File: reactor/timerqueue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TimerQueue provides per-connection idle expiration and general delayed
// callbacks, fronted by a Linux timerfd the Poller watches like any
// other Channel. A container/heap priority queue orders live timers by
// expiration; every mutation is posted through the owning EventLoop so
// it always runs on that loop's thread, never behind a mutex shared with
// other loops.

package reactor

import (
	"container/heap"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/reactorhttp/api"
	"github.com/momentics/reactorhttp/internal/clock"
)

// timerHeap orders live timers by (expiration, sequence); the sequence
// tie-break gives deterministic dispatch order for timers sharing an
// instant.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].expiration != h[j].expiration {
		return h[i].expiration < h[j].expiration
	}
	return h[i].sequence < h[j].sequence
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}

// TimerQueue owns every live Timer and the kernel timer descriptor armed
// to the earliest expiration.
type TimerQueue struct {
	loop    *EventLoop
	control api.Control

	timerFd int
	channel *Channel

	heap timerHeap
	// active is a secondary index keyed by sequence, for O(1) cancellation.
	active map[int64]*Timer
	// canceling is normally empty; it only ever holds entries between a
	// Cancel call that misses tq.active (either mid-dispatch self-
	// cancellation, or Cancel arriving after the timer already fired) and
	// the next handleRead pass, which consults and clears them. Always
	// non-nil so Cancel can write into it unconditionally.
	canceling map[int64]bool

	sequenceCounter int64
}

// NewTimerQueue creates a timerfd-backed queue bound to loop.
func NewTimerQueue(loop *EventLoop, control api.Control) (*TimerQueue, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: timerfd_create: %w", err)
	}
	tq := &TimerQueue{
		loop:    loop,
		control: control,
		timerFd: fd,
		active:  make(map[int64]*Timer),
		// canceling stays a live, non-nil map at all times (not just during
		// handleRead's dispatch window) so Cancel can always record a
		// cancellation for a timer id that already fired and left tq.active,
		// e.g. a one-shot idle timer canceled by ConnectDestroyed after it
		// already force-closed the connection.
		canceling: make(map[int64]bool),
	}
	tq.channel = NewChannel(loop, fd)
	tq.channel.SetReadCallback(tq.handleRead)
	tq.channel.EnableReading()
	return tq, nil
}

// AddTimer schedules cb to run at `when`, repeating every `interval` if
// interval > 0. Safe to call from any goroutine; the actual insertion is
// posted onto the owning loop.
func (tq *TimerQueue) AddTimer(cb func(), when clock.TimeStamp, interval time.Duration) TimerID {
	seq := atomic.AddInt64(&tq.sequenceCounter, 1)
	t := newTimer(cb, when, interval, seq)
	tq.loop.RunInLoop(func() { tq.insert(t) })
	return TimerID{sequence: seq}
}

// Cancel removes a pending timer. If id is not currently pending — either
// because its own callback is canceling it mid-dispatch, or because it was
// a one-shot timer that already fired — the cancellation is recorded in
// tq.canceling instead, which is always safe to write into.
func (tq *TimerQueue) Cancel(id TimerID) {
	tq.loop.RunInLoop(func() {
		if t, ok := tq.active[id.sequence]; ok {
			delete(tq.active, id.sequence)
			if t.heapIndex >= 0 {
				heap.Remove(&tq.heap, t.heapIndex)
			}
			return
		}
		tq.canceling[id.sequence] = true
	})
}

func (tq *TimerQueue) insert(t *Timer) {
	earliestChanged := tq.heap.Len() == 0 || t.expiration.Before(tq.heap[0].expiration)
	heap.Push(&tq.heap, t)
	tq.active[t.sequence] = t
	if earliestChanged {
		tq.resetTimerFd(t.expiration)
	}
}

// handleRead is the timerfd's read callback: drain the wakeup, run every
// expired timer's callback in order, then re-arm or destroy each.
func (tq *TimerQueue) handleRead(receiveTime clock.TimeStamp) {
	var buf [8]byte
	_, _ = unix.Read(tq.timerFd, buf[:])

	expired := tq.popExpired(receiveTime)

	for _, t := range expired {
		if tq.control != nil {
			tq.control.IncTimerFires()
		}
		func() {
			defer func() { _ = recover() }()
			t.callback()
		}()
	}

	for _, t := range expired {
		if t.repeat && !tq.canceling[t.sequence] {
			t.restart(receiveTime)
			heap.Push(&tq.heap, t)
			tq.active[t.sequence] = t
		}
		// one-shot or self-canceled: already absent from tq.active.
	}
	// Every recorded cancellation has now been consulted; entries for
	// timers that fired in an earlier pass refer to dead timers.
	tq.canceling = make(map[int64]bool)

	if tq.heap.Len() > 0 {
		tq.resetTimerFd(tq.heap[0].expiration)
	} else {
		tq.disarm()
	}
}

// popExpired removes and returns every timer whose expiration has
// passed, also removing them from the active index — while a timer is
// mid-callback it is, deliberately, in neither index — the canceling map
// exists precisely to handle a Cancel call landing in this window.
func (tq *TimerQueue) popExpired(now clock.TimeStamp) []*Timer {
	var expired []*Timer
	for tq.heap.Len() > 0 && !tq.heap[0].expiration.After(now) {
		t := heap.Pop(&tq.heap).(*Timer)
		delete(tq.active, t.sequence)
		expired = append(expired, t)
	}
	return expired
}

func (tq *TimerQueue) resetTimerFd(when clock.TimeStamp) {
	d := when.Sub(clock.Now())
	const minDelay = 100 * time.Microsecond
	if d < minDelay {
		d = minDelay
	}
	spec := &unix.ItimerSpec{Value: unix.NsecToTimespec(d.Nanoseconds())}
	_ = unix.TimerfdSettime(tq.timerFd, 0, spec, nil)
}

func (tq *TimerQueue) disarm() {
	_ = unix.TimerfdSettime(tq.timerFd, 0, &unix.ItimerSpec{}, nil)
}

// Close releases the timerfd. Must be called after the owning loop's
// Loop() has returned; by then its thread identity is cleared, so this is
// safe from any goroutine.
func (tq *TimerQueue) Close() error {
	tq.channel.DisableAll()
	tq.channel.Remove()
	return unix.Close(tq.timerFd)
}
