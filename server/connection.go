// File: server/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TcpConnection drives one accepted socket through
// connecting -> connected -> disconnecting -> disconnected, gluing a
// Channel's read/write/close/error events to an input/output pool.Buffer
// pair. Every method that touches connection state runs on, or is
// bounced through RunInLoop onto, the owning EventLoop — there is no
// mutex here, only single-writer discipline.

package server

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/reactorhttp/api"
	"github.com/momentics/reactorhttp/internal/clock"
	"github.com/momentics/reactorhttp/netutil"
	"github.com/momentics/reactorhttp/pool"
	"github.com/momentics/reactorhttp/reactor"
)

// ConnState is the connection lifecycle state.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectionCallback fires once when a connection becomes established.
type ConnectionCallback func(c *TcpConnection)

// CloseCallback fires once a connection has fully torn down; TcpServer
// uses it to remove the connection from its name table.
type CloseCallback func(c *TcpConnection)

// MessageCallback fires whenever new bytes have been appended to the
// input buffer.
type MessageCallback func(c *TcpConnection, in *pool.Buffer, receiveTime clock.TimeStamp)

// WriteCompleteCallback fires once the output buffer has fully drained.
type WriteCompleteCallback func(c *TcpConnection)

// HighWaterMarkCallback fires when the output buffer crosses the
// configured high-water mark while filling, once per crossing.
type HighWaterMarkCallback func(c *TcpConnection, outstanding int)

const defaultHighWaterMark = 64 * 1024 * 1024

// TcpConnection wraps one accepted socket.
type TcpConnection struct {
	loop   *reactor.EventLoop
	name   string
	socket *netutil.Socket
	chan_  *reactor.Channel

	localAddr string
	peerAddr  string

	state int32 // atomic ConnState

	inputBuffer  *pool.Buffer
	outputBuffer *pool.Buffer

	highWaterMark int
	context       api.Context

	connectionCallback     ConnectionCallback
	messageCallback        MessageCallback
	writeCompleteCallback  WriteCompleteCallback
	highWaterMarkCallback  HighWaterMarkCallback
	closeCallback          CloseCallback

	idleTimeout time.Duration
	lastActive  clock.TimeStamp
	idleTimerID reactor.TimerID
	hasIdleTimer bool

	control api.Control
	logger  api.Logger
}

// NewTcpConnection adopts fd (already accepted and non-blocking) into a
// new connection bound to loop.
func NewTcpConnection(loop *reactor.EventLoop, name string, fd int, localAddr, peerAddr string, control api.Control, logger api.Logger) *TcpConnection {
	if logger == nil {
		logger = api.NopLogger{}
	}
	sock := netutil.WrapFD(fd)
	_ = sock.SetTCPNoDelay(true)
	_ = sock.SetKeepAlive()

	c := &TcpConnection{
		loop:          loop,
		name:          name,
		socket:        sock,
		localAddr:     localAddr,
		peerAddr:      peerAddr,
		state:         int32(StateConnecting),
		inputBuffer:   pool.NewBuffer(),
		outputBuffer:  pool.NewBuffer(),
		highWaterMark: defaultHighWaterMark,
		context:       api.NewContext(),
		control:       control,
		logger:        logger,
	}
	c.chan_ = reactor.NewChannel(loop, fd)
	c.chan_.SetReadCallback(c.handleRead)
	c.chan_.SetWriteCallback(c.handleWrite)
	c.chan_.SetCloseCallback(c.handleClose)
	c.chan_.SetErrorCallback(c.handleError)
	return c
}

// Name returns the connection's server-assigned identity.
func (c *TcpConnection) Name() string { return c.name }

// LocalAddr / PeerAddr return the "ip:port" strings recorded at accept
// time.
func (c *TcpConnection) LocalAddr() string { return c.localAddr }
func (c *TcpConnection) PeerAddr() string  { return c.peerAddr }

// State returns the current lifecycle state.
func (c *TcpConnection) State() ConnState { return ConnState(atomic.LoadInt32(&c.state)) }

func (c *TcpConnection) setState(s ConnState) { atomic.StoreInt32(&c.state, int32(s)) }

// Context exposes the opaque per-connection value cell, used by httpx to
// stash in-progress parser state between reads.
func (c *TcpConnection) Context() api.Context { return c.context }

// Loop returns the EventLoop this connection is bound to.
func (c *TcpConnection) Loop() *reactor.EventLoop { return c.loop }

// SetConnectionCallback / SetMessageCallback / SetWriteCompleteCallback /
// SetHighWaterMarkCallback / SetCloseCallback install the connection's
// event hooks. Must be called before ConnectEstablished.
func (c *TcpConnection) SetConnectionCallback(cb ConnectionCallback)         { c.connectionCallback = cb }
func (c *TcpConnection) SetMessageCallback(cb MessageCallback)              { c.messageCallback = cb }
func (c *TcpConnection) SetWriteCompleteCallback(cb WriteCompleteCallback)  { c.writeCompleteCallback = cb }
func (c *TcpConnection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, mark int) {
	c.highWaterMarkCallback = cb
	c.highWaterMark = mark
}
func (c *TcpConnection) SetCloseCallback(cb CloseCallback) { c.closeCallback = cb }

// EnableIdleTimeout arms a self-rescheduling idle check: if no bytes are
// read for d, the connection is force-closed.
func (c *TcpConnection) EnableIdleTimeout(d time.Duration) {
	c.idleTimeout = d
	c.touch()
	c.hasIdleTimer = true
	c.idleTimerID = c.loop.RunAfter(d, c.checkIdle)
}

func (c *TcpConnection) touch() { c.lastActive = clock.Now() }

func (c *TcpConnection) checkIdle() {
	if c.State() != StateConnected {
		return
	}
	elapsed := clock.Now().Sub(c.lastActive)
	if elapsed >= c.idleTimeout {
		c.logger.Info("connection idle timeout", api.F("name", c.name), api.F("idle", elapsed))
		c.ForceClose()
		return
	}
	c.idleTimerID = c.loop.RunAfter(c.idleTimeout-elapsed, c.checkIdle)
}

// ConnectEstablished transitions Connecting -> Connected, arms read
// interest, and fires the connection callback. Must run on the owning
// loop.
func (c *TcpConnection) ConnectEstablished() {
	c.loop.AssertInLoopThread()
	if c.State() != StateConnecting {
		panic(fmt.Sprintf("server: %s: ConnectEstablished from state %s", c.name, c.State()))
	}
	c.setState(StateConnected)
	c.chan_.Tie(c)
	c.chan_.EnableReading()
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
}

// ConnectDestroyed tears the connection down for good: disables all
// interest, cancels the idle timer, unregisters the channel, and closes
// the socket. Must run on the owning loop.
func (c *TcpConnection) ConnectDestroyed() {
	c.loop.AssertInLoopThread()
	if c.State() == StateConnected {
		c.setState(StateDisconnected)
		c.chan_.DisableAll()
	}
	if c.hasIdleTimer {
		c.loop.CancelTimer(c.idleTimerID)
	}
	c.chan_.Remove()
	_ = c.socket.Close()
}

// Send queues data for delivery, writing synchronously when possible and
// buffering the remainder otherwise. Safe to call from any goroutine.
func (c *TcpConnection) Send(data []byte) error {
	if c.State() != StateConnected {
		return api.ErrNotRunning
	}
	buf := append([]byte(nil), data...)
	c.loop.RunInLoop(func() { c.sendInLoop(buf) })
	return nil
}

func (c *TcpConnection) sendInLoop(data []byte) {
	if c.State() == StateDisconnected {
		return
	}
	var nwrote int
	faultError := false

	if !c.chan_.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := unix.Write(c.socket.FD(), data)
		switch {
		case err == nil:
			nwrote = n
			if nwrote == len(data) && c.writeCompleteCallback != nil {
				cb := c.writeCompleteCallback
				c.loop.QueueInLoop(func() { cb(c) })
			}
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			nwrote = 0
		default:
			nwrote = 0
			if err == unix.EPIPE || err == unix.ECONNRESET {
				faultError = true
			}
			c.logger.Error("write failed", api.F("name", c.name), api.F("error", err))
		}
	}

	if c.control != nil && nwrote > 0 {
		c.control.AddBytesWritten(uint64(nwrote))
	}

	if !faultError && nwrote < len(data) {
		remaining := data[nwrote:]
		oldLen := c.outputBuffer.ReadableBytes()
		newLen := oldLen + len(remaining)
		if newLen >= c.highWaterMark && oldLen < c.highWaterMark && c.highWaterMarkCallback != nil {
			cb := c.highWaterMarkCallback
			c.loop.QueueInLoop(func() { cb(c, newLen) })
		}
		c.outputBuffer.Append(remaining)
		if !c.chan_.IsWriting() {
			c.chan_.EnableWriting()
		}
	}
}

// Shutdown half-closes the write side once any buffered output has
// drained; further Send calls after Shutdown are rejected by callers
// checking State().
func (c *TcpConnection) Shutdown() {
	if c.State() != StateConnected {
		return
	}
	c.setState(StateDisconnecting)
	c.loop.RunInLoop(c.shutdownInLoop)
}

func (c *TcpConnection) shutdownInLoop() {
	if !c.chan_.IsWriting() {
		_ = c.socket.ShutdownWrite()
	}
}

// ForceClose tears the connection down immediately, discarding any
// buffered output.
func (c *TcpConnection) ForceClose() {
	if c.State() == StateConnected || c.State() == StateDisconnecting {
		c.setState(StateDisconnecting)
		c.loop.QueueInLoop(c.forceCloseInLoop)
	}
}

func (c *TcpConnection) forceCloseInLoop() {
	if c.State() == StateConnected || c.State() == StateDisconnecting {
		c.handleClose()
	}
}

func (c *TcpConnection) handleRead(receiveTime clock.TimeStamp) {
	n, err := c.inputBuffer.ReadFd(c.socket.FD())
	switch {
	case err == io.EOF:
		c.handleClose()
	case err != nil:
		c.logger.Error("read failed", api.F("name", c.name), api.F("error", err))
		c.handleClose()
	case n > 0:
		c.touch()
		if c.control != nil {
			c.control.AddBytesRead(uint64(n))
		}
		if c.messageCallback != nil {
			c.messageCallback(c, c.inputBuffer, receiveTime)
		}
	default:
		// n == 0, err == nil: nothing was ready this wakeup.
	}
}

func (c *TcpConnection) handleWrite() {
	if !c.chan_.IsWriting() {
		c.logger.Warn("connection has no pending write but received EPOLLOUT", api.F("name", c.name))
		return
	}
	n, err := c.outputBuffer.WriteFd(c.socket.FD())
	if err != nil {
		c.logger.Error("write drain failed", api.F("name", c.name), api.F("error", err))
		return
	}
	if c.control != nil && n > 0 {
		c.control.AddBytesWritten(uint64(n))
	}
	if c.outputBuffer.ReadableBytes() == 0 {
		c.chan_.DisableWriting()
		if c.writeCompleteCallback != nil {
			cb := c.writeCompleteCallback
			c.loop.QueueInLoop(func() { cb(c) })
		}
		if c.State() == StateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

func (c *TcpConnection) handleClose() {
	st := c.State()
	if st != StateConnected && st != StateDisconnecting {
		return
	}
	c.setState(StateDisconnected)
	c.chan_.DisableAll()

	if c.control != nil {
		c.control.IncConnectionsClosed()
	}
	if c.closeCallback != nil {
		c.closeCallback(c)
	}
}

func (c *TcpConnection) handleError() {
	err := c.socket.SOError()
	c.logger.Error("connection socket error", api.F("name", c.name), api.F("error", err))
}
