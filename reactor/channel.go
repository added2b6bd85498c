//go:build linux
// +build linux

// File: reactor/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Channel binds one file descriptor to an interest mask and four event
// callbacks (read/write/close/error), plus the poller-state machine
// (StateNew/StateAdded/StateDeleted) that tracks whether it is currently
// armed in the kernel's watch set. Callback dispatch is wrapped in a
// recover so one misbehaving connection cannot take down the reactor
// thread:
//
//	func() { defer func() { _ = recover() }(); cb() }()

package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/reactorhttp/internal/clock"
)

// PollerState tracks a channel's registration lifecycle with its poller.
type PollerState int

const (
	StateNew PollerState = iota
	StateAdded
	StateDeleted
)

// Event bits mirror the epoll flags a Channel can express interest in or
// report as returned.
const (
	EventNone  uint32 = 0
	EventRead  uint32 = unix.EPOLLIN | unix.EPOLLPRI
	EventWrite uint32 = unix.EPOLLOUT
	eventET    uint32 = unix.EPOLLET
)

// ReadCallback is invoked with the poll iteration's receive timestamp.
type ReadCallback func(receiveTime clock.TimeStamp)

// EventCallback covers write/close/error notifications, none of which
// need the receive timestamp.
type EventCallback func()

// Channel is mutated only on its owning EventLoop's thread. The bound fd
// is borrowed: Channel never closes it.
type Channel struct {
	loop  *EventLoop
	fd    int
	index int // always -1; the Poller tracks channels by fd, not by index

	events  uint32
	revents uint32
	state   PollerState

	readCallback  ReadCallback
	writeCallback EventCallback
	closeCallback EventCallback
	errorCallback EventCallback

	// tiedOwner keeps the channel's logical owner reachable for the
	// duration of every HandleEvent call, so a connection cannot be
	// garbage-collected out from under its own callback.
	tiedOwner any
}

// NewChannel binds fd to loop with an empty interest set.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{loop: loop, fd: fd, index: -1, state: StateNew}
}

// FD returns the bound descriptor.
func (c *Channel) FD() int { return c.fd }

// Events returns the current interest mask.
func (c *Channel) Events() uint32 { return c.events }

// State returns the channel's current registration state.
func (c *Channel) State() PollerState { return c.state }

func (c *Channel) setState(s PollerState) { c.state = s }

// SetReadCallback / SetWriteCallback / SetCloseCallback / SetErrorCallback
// install the four dispatch-table entries.
func (c *Channel) SetReadCallback(cb ReadCallback)   { c.readCallback = cb }
func (c *Channel) SetWriteCallback(cb EventCallback) { c.writeCallback = cb }
func (c *Channel) SetCloseCallback(cb EventCallback) { c.closeCallback = cb }
func (c *Channel) SetErrorCallback(cb EventCallback) { c.errorCallback = cb }

// Tie stores a strong pin to the channel's logical owner (a
// *server.TcpConnection in this framework) for the lifetime of every
// subsequent HandleEvent call.
func (c *Channel) Tie(owner any) { c.tiedOwner = owner }

// IsWriting reports whether write interest is currently armed.
func (c *Channel) IsWriting() bool { return c.events&EventWrite != 0 }

// IsReading reports whether read interest is currently armed.
func (c *Channel) IsReading() bool { return c.events&EventRead != 0 }

// IsNoneEvent reports an empty interest set.
func (c *Channel) IsNoneEvent() bool { return c.events == EventNone }

// EnableReading arms edge-triggered read interest and asks the poller to
// update the kernel's watch set.
func (c *Channel) EnableReading() {
	c.events |= EventRead | eventET
	c.update()
}

// DisableReading clears read interest.
func (c *Channel) DisableReading() {
	c.events &^= EventRead
	c.update()
}

// EnableWriting arms edge-triggered write interest.
func (c *Channel) EnableWriting() {
	c.events |= EventWrite | eventET
	c.update()
}

// DisableWriting clears write interest.
func (c *Channel) DisableWriting() {
	c.events &^= EventWrite
	c.update()
}

// DisableAll clears every interest bit, transitioning the channel toward
// StateDeleted on the next poller update.
func (c *Channel) DisableAll() {
	c.events = EventNone
	c.update()
}

func (c *Channel) update() {
	c.loop.updateChannel(c)
}

// Remove asks the loop's poller to forget this channel entirely,
// transitioning it back to StateNew.
func (c *Channel) Remove() {
	c.loop.removeChannel(c)
}

// SetRevents records the mask the poller observed ready, called by the
// poller immediately before HandleEvent.
func (c *Channel) SetRevents(revents uint32) { c.revents = revents }

// HandleEvent is the single dispatch point translating a raw readiness
// mask into one of the four registered callbacks, in close/error/read/
// write priority order. A panic inside any callback is contained so one
// misbehaving connection cannot take down the reactor thread.
func (c *Channel) HandleEvent(receiveTime clock.TimeStamp) {
	owner := c.tiedOwner // pin for the duration of this dispatch
	_ = owner

	defer func() { _ = recover() }()

	if c.revents&unix.EPOLLHUP != 0 && c.revents&unix.EPOLLIN == 0 {
		if c.closeCallback != nil {
			c.closeCallback()
		}
		return
	}
	if c.revents&unix.EPOLLERR != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}
	if c.revents&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP) != 0 {
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
	}
	if c.revents&unix.EPOLLOUT != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
