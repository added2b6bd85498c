// File: server/acceptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Acceptor owns the listening socket and drains every pending connection
// on each readiness notification, since the channel is armed
// edge-triggered. It survives EMFILE/ENFILE by keeping one already-open
// throwaway descriptor in reserve: close it, accept the pending
// connection just to immediately drop it, then reopen the reserve fd —
// this bounds the process to a single dropped connection per exhaustion
// event instead of spinning on EPOLLIN forever.

package server

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/reactorhttp/api"
	"github.com/momentics/reactorhttp/internal/clock"
	"github.com/momentics/reactorhttp/netutil"
	"github.com/momentics/reactorhttp/reactor"
)

// NewConnectionFunc receives an accepted, non-blocking connection
// descriptor and its peer address.
type NewConnectionFunc func(fd int, peer unix.Sockaddr)

// Acceptor listens on one address and hands off every accepted
// connection to a callback. It always runs on the base EventLoop.
type Acceptor struct {
	loop     *reactor.EventLoop
	listener *netutil.Socket
	channel  *reactor.Channel
	control  api.Control
	logger   api.Logger

	reserveFD int

	listening bool
	onConnect NewConnectionFunc
}

// NewAcceptor binds to host:port, reserving a throwaway fd for EMFILE
// recovery. The socket does not listen until Listen is called.
func NewAcceptor(loop *reactor.EventLoop, host string, port int, reusePort bool, control api.Control, logger api.Logger) (*Acceptor, error) {
	if logger == nil {
		logger = api.NopLogger{}
	}
	sock, err := netutil.NewSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.SetReuseAddr(); err != nil {
		return nil, fmt.Errorf("server: acceptor setreuseaddr: %w", err)
	}
	if reusePort {
		if err := sock.SetReusePort(); err != nil {
			return nil, fmt.Errorf("server: acceptor setreuseport: %w", err)
		}
	}
	ip, err := netutil.ParseIPv4Port(host, port)
	if err != nil {
		return nil, err
	}
	if err := sock.Bind(ip, port); err != nil {
		return nil, err
	}

	reserve, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("server: acceptor reserve fd: %w", err)
	}

	a := &Acceptor{
		loop:      loop,
		listener:  sock,
		control:   control,
		logger:    logger,
		reserveFD: reserve,
	}
	a.channel = reactor.NewChannel(loop, sock.FD())
	a.channel.SetReadCallback(a.handleRead)
	return a, nil
}

// SetNewConnectionCallback installs the accept handoff callback.
func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionFunc) { a.onConnect = cb }

// Addr returns the address actually bound by the kernel, resolving an
// ephemeral port request (port 0) to the port the kernel chose.
func (a *Acceptor) Addr() (ip [4]byte, port int, err error) { return a.listener.LocalAddr() }

// Listen marks the socket passive and arms read interest.
func (a *Acceptor) Listen(backlog int) error {
	a.listening = true
	if err := a.listener.Listen(backlog); err != nil {
		return err
	}
	a.channel.EnableReading()
	return nil
}

// handleRead drains every pending connection, since the channel is
// edge-triggered.
func (a *Acceptor) handleRead(clock.TimeStamp) {
	for {
		fd, peer, err := a.listener.Accept4()
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EMFILE, unix.ENFILE:
				a.handleFileTableFull()
				return
			case unix.ECONNABORTED, unix.EINTR:
				continue
			default:
				a.logger.Error("accept4 failed", api.F("error", err))
				return
			}
		}
		if a.control != nil {
			a.control.IncConnectionsAccepted()
		}
		if a.onConnect != nil {
			a.onConnect(fd, peer)
		} else {
			_ = unix.Close(fd)
		}
	}
}

func (a *Acceptor) handleFileTableFull() {
	if a.control != nil {
		a.control.IncEMFileEvents()
	}
	_ = unix.Close(a.reserveFD)
	fd, _, err := a.listener.Accept4()
	if err == nil {
		_ = unix.Close(fd)
	}
	reserve, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		a.logger.Error("failed to reopen reserve fd", api.F("error", err))
		return
	}
	a.reserveFD = reserve
}

// Close releases the listening socket and the reserve descriptor.
func (a *Acceptor) Close() error {
	a.channel.DisableAll()
	a.channel.Remove()
	_ = unix.Close(a.reserveFD)
	return a.listener.Close()
}
