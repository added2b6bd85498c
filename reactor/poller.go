//go:build linux
// +build linux

// File: reactor/poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Poller is the OS-level readiness demultiplexer: an epoll instance plus
// the fd->Channel map and state-transition table needed to keep the
// kernel's watch set in sync with each channel's interest mask.

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/reactorhttp/internal/clock"
)

const initialEventListSize = 16

// Poller owns the epoll instance and every Channel currently reachable
// through it.
type Poller struct {
	epfd     int
	channels map[int]*Channel
	eventBuf []unix.EpollEvent
}

// NewPoller creates a fresh epoll instance.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &Poller{
		epfd:     epfd,
		channels: make(map[int]*Channel),
		eventBuf: make([]unix.EpollEvent, initialEventListSize),
	}, nil
}

// Poll blocks up to timeoutMs (negative means forever) and returns the
// channels whose revents were populated. EINTR is retried transparently.
func (p *Poller) Poll(timeoutMs int, receiveTime clock.TimeStamp) ([]*Channel, error) {
	for {
		n, err := unix.EpollWait(p.epfd, p.eventBuf, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, fmt.Errorf("reactor: epoll_wait: %w", err)
		}

		active := make([]*Channel, 0, n)
		for i := 0; i < n; i++ {
			fd := int(p.eventBuf[i].Fd)
			ch, ok := p.channels[fd]
			if !ok {
				continue
			}
			ch.SetRevents(p.eventBuf[i].Events)
			active = append(active, ch)
		}

		if n == len(p.eventBuf) {
			p.eventBuf = make([]unix.EpollEvent, len(p.eventBuf)*2)
		}
		return active, nil
	}
}

// UpdateChannel applies the channel's registration state-transition
// table: StateNew/StateDeleted arm via EPOLL_CTL_ADD, StateAdded either
// re-arms via EPOLL_CTL_MOD or, once interest drops to none, disarms via
// EPOLL_CTL_DEL.
func (p *Poller) UpdateChannel(ch *Channel) error {
	switch ch.State() {
	case StateNew, StateDeleted:
		p.channels[ch.FD()] = ch
		if err := p.epollCtl(unix.EPOLL_CTL_ADD, ch); err != nil {
			return fmt.Errorf("reactor: epoll_ctl add: %w", err)
		}
		ch.setState(StateAdded)
	case StateAdded:
		if ch.IsNoneEvent() {
			if err := p.epollCtl(unix.EPOLL_CTL_DEL, ch); err != nil {
				return fmt.Errorf("reactor: epoll_ctl del: %w", err)
			}
			ch.setState(StateDeleted)
		} else {
			if err := p.epollCtl(unix.EPOLL_CTL_MOD, ch); err != nil {
				return fmt.Errorf("reactor: epoll_ctl mod: %w", err)
			}
		}
	}
	return nil
}

// RemoveChannel erases a channel from the map and, if still armed in the
// kernel, deletes it there too. DEL failures are logged only by the
// caller (the socket may already have been closed by the peer), never
// treated as fatal.
func (p *Poller) RemoveChannel(ch *Channel) error {
	delete(p.channels, ch.FD())
	if ch.State() == StateAdded {
		if err := p.epollCtl(unix.EPOLL_CTL_DEL, ch); err != nil {
			ch.setState(StateNew)
			return fmt.Errorf("reactor: epoll_ctl del: %w", err)
		}
	}
	ch.setState(StateNew)
	return nil
}

func (p *Poller) epollCtl(op int, ch *Channel) error {
	ev := unix.EpollEvent{Events: ch.Events(), Fd: int32(ch.FD())}
	return unix.EpollCtl(p.epfd, op, ch.FD(), &ev)
}

// Close releases the epoll descriptor.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}
