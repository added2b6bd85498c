//go:build linux
// +build linux

// File: reactor/eventloop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventLoop is the single-threaded driver: it polls, dispatches ready
// channels, drains the cross-thread task queue, and runs timers. The
// pending task queue is backed by github.com/eapache/queue.Queue, drained
// with a swap-and-release pattern so a task that re-enqueues work never
// deadlocks on the loop's own mutex.
//
// Thread affinity is enforced using the Linux thread id captured via
// golang.org/x/sys/unix.Gettid() immediately after runtime.LockOSThread():
// once Loop() starts, that tid never changes for the process lifetime of
// this goroutine, so comparing unix.Gettid() against the stored value is
// a correct, allocation-free "am I on the owning OS thread" check.

package reactor

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/reactorhttp/api"
	"github.com/momentics/reactorhttp/internal/clock"
)

// pollTimeoutMs bounds how long a loop can block in Poll before checking
// its quit flag and pending timers; it is not a correctness requirement
// (the timerfd and wakeup fd both interrupt Poll immediately) but a
// safety net against a missed wakeup.
const pollTimeoutMs = 10_000

// EventLoop drives exactly one OS thread. Every Channel/Poller/Timer
// mutation must originate on that thread; foreign callers use RunInLoop.
type EventLoop struct {
	poller     *Poller
	timerQueue *TimerQueue
	control    api.Control
	logger     api.Logger

	threadID int32 // atomic; 0 means "not yet started"
	quit     int32 // atomic bool

	wakeupFD      int
	wakeupChannel *Channel

	mu      sync.Mutex
	pending *queue.Queue

	callingPendingFunctors int32 // atomic bool

	doneCh chan struct{}
}

// NewEventLoop constructs an EventLoop bound to a fresh epoll instance,
// wakeup eventfd, and timerfd-backed TimerQueue. Loop() must be called
// from the goroutine that should own it, exactly once.
func NewEventLoop(control api.Control, logger api.Logger) (*EventLoop, error) {
	if logger == nil {
		logger = api.NopLogger{}
	}
	poller, err := NewPoller()
	if err != nil {
		return nil, err
	}
	wakeupFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = poller.Close()
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}

	l := &EventLoop{
		poller:  poller,
		control: control,
		logger:  logger,
		wakeupFD: wakeupFD,
		pending: queue.New(),
		doneCh:  make(chan struct{}),
	}
	l.wakeupChannel = NewChannel(l, wakeupFD)
	l.wakeupChannel.SetReadCallback(l.handleWakeup)
	l.wakeupChannel.EnableReading()

	tq, err := NewTimerQueue(l, control)
	if err != nil {
		_ = poller.Close()
		_ = unix.Close(wakeupFD)
		return nil, err
	}
	l.timerQueue = tq

	return l, nil
}

// isInLoopThread reports whether the calling goroutine is pinned to this
// loop's OS thread. Before Loop() has started, and again after Loop() has
// returned (both states: threadID == 0), every caller is treated as "in
// loop": before start, no thread has claimed ownership yet and initial
// channel setup must be able to proceed synchronously; after Loop()
// returns, its OS thread is gone and Close()'s teardown must be able to
// run from whatever goroutine calls it.
func (l *EventLoop) isInLoopThread() bool {
	tid := atomic.LoadInt32(&l.threadID)
	return tid == 0 || tid == int32(unix.Gettid())
}

// assertInLoopThread aborts the process on a violated ownership
// invariant: cross-thread mutation of loop-owned state is a programming
// error, not a recoverable condition.
func (l *EventLoop) assertInLoopThread() {
	if !l.isInLoopThread() {
		panic("reactor: EventLoop mutated from a foreign thread")
	}
}

// IsInLoopThread reports whether the calling goroutine owns this loop.
// Exported so collaborating packages (server.TcpConnection) can assert
// their own invariants without reaching into reactor internals.
func (l *EventLoop) IsInLoopThread() bool { return l.isInLoopThread() }

// AssertInLoopThread panics if the calling goroutine does not own this
// loop.
func (l *EventLoop) AssertInLoopThread() { l.assertInLoopThread() }

// Loop pins the calling goroutine to its OS thread and runs until Quit
// is observed. It is the only blocking point in the reactor. On return it
// releases the OS thread pin and clears threadID back to its pre-start
// "unowned" value, so a later Close() call from any goroutine is treated
// as in-loop rather than tripping assertInLoopThread against a thread
// identity that no longer means anything.
func (l *EventLoop) Loop() {
	runtime.LockOSThread()
	atomic.StoreInt32(&l.threadID, int32(unix.Gettid()))
	defer func() {
		atomic.StoreInt32(&l.threadID, 0)
		runtime.UnlockOSThread()
		close(l.doneCh)
	}()

	for atomic.LoadInt32(&l.quit) == 0 {
		active, err := l.poller.Poll(pollTimeoutMs, clock.Now())
		if err != nil {
			l.logger.Error("poller wait failed", api.F("error", err))
			continue
		}
		now := clock.Now()
		for _, ch := range active {
			ch.HandleEvent(now)
		}
		l.doPendingFunctors()
	}
}

// Done is closed once Loop returns.
func (l *EventLoop) Done() <-chan struct{} { return l.doneCh }

// RunInLoop executes f synchronously if called from the owning thread,
// else enqueues it.
func (l *EventLoop) RunInLoop(f func()) {
	if l.isInLoopThread() {
		f()
		return
	}
	l.QueueInLoop(f)
}

// QueueInLoop appends f to the pending list under the loop's mutex and
// wakes the loop if the caller is foreign or the loop is mid-drain of
// its own pending list — otherwise a task that re-enqueues work from
// inside doPendingFunctors would sit unseen until the next unrelated
// wakeup.
func (l *EventLoop) QueueInLoop(f func()) {
	l.mu.Lock()
	l.pending.Add(f)
	needsWakeup := !l.isInLoopThread() || atomic.LoadInt32(&l.callingPendingFunctors) == 1
	l.mu.Unlock()

	if needsWakeup {
		l.wakeup()
	}
}

func (l *EventLoop) wakeup() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(l.wakeupFD, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			l.logger.Warn("wakeup write failed", api.F("error", err))
		}
		return
	}
}

func (l *EventLoop) handleWakeup(clock.TimeStamp) {
	var buf [8]byte
	for {
		_, err := unix.Read(l.wakeupFD, buf[:])
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// doPendingFunctors swaps the pending list into a local variable before
// running it, so a task that calls QueueInLoop does not deadlock on the
// same mutex.
func (l *EventLoop) doPendingFunctors() {
	atomic.StoreInt32(&l.callingPendingFunctors, 1)
	defer atomic.StoreInt32(&l.callingPendingFunctors, 0)

	l.mu.Lock()
	local := l.pending
	l.pending = queue.New()
	l.mu.Unlock()

	for local.Length() > 0 {
		f := local.Remove().(func())
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.logger.Error("pending functor panicked", api.F("recover", r))
				}
			}()
			f()
		}()
	}
}

// Quit sets the quit flag; if called from a foreign thread it also wakes
// the loop so it can observe the flag promptly.
func (l *EventLoop) Quit() {
	atomic.StoreInt32(&l.quit, 1)
	if !l.isInLoopThread() {
		l.wakeup()
	}
}

func (l *EventLoop) updateChannel(ch *Channel) {
	l.assertInLoopThread()
	if err := l.poller.UpdateChannel(ch); err != nil {
		l.logger.Error("updateChannel failed", api.F("fd", ch.FD()), api.F("error", err))
		panic(err) // epoll_ctl ADD/MOD failure is unrecoverable for this loop.
	}
}

func (l *EventLoop) removeChannel(ch *Channel) {
	l.assertInLoopThread()
	if err := l.poller.RemoveChannel(ch); err != nil {
		l.logger.Warn("removeChannel: epoll_ctl del failed", api.F("fd", ch.FD()), api.F("error", err))
	}
}

// RunAt schedules cb to run at the given instant.
func (l *EventLoop) RunAt(when clock.TimeStamp, cb func()) TimerID {
	return l.timerQueue.AddTimer(cb, when, 0)
}

// RunAfter schedules cb to run once, d from now.
func (l *EventLoop) RunAfter(d time.Duration, cb func()) TimerID {
	return l.timerQueue.AddTimer(cb, clock.Now().Add(d), 0)
}

// RunEvery schedules cb to run repeatedly every interval, starting one
// interval from now.
func (l *EventLoop) RunEvery(interval time.Duration, cb func()) TimerID {
	return l.timerQueue.AddTimer(cb, clock.Now().Add(interval), interval)
}

// CancelTimer cancels a previously scheduled timer.
func (l *EventLoop) CancelTimer(id TimerID) {
	l.timerQueue.Cancel(id)
}

// Close tears down the poller, timer queue, and wakeup descriptor. Must
// be called after Loop() has returned, from any goroutine — Loop()'s own
// cleanup clears threadID first, so this no longer has to run on the
// loop's now-defunct OS thread.
func (l *EventLoop) Close() error {
	if err := l.timerQueue.Close(); err != nil {
		l.logger.Warn("timer queue close failed", api.F("error", err))
	}
	if err := unix.Close(l.wakeupFD); err != nil {
		l.logger.Warn("wakeup fd close failed", api.F("error", err))
	}
	return l.poller.Close()
}
