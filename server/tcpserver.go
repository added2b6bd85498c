// File: server/tcpserver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TcpServer is the top-level orchestrator: one Acceptor on a base loop,
// a pool of worker loops each accepted connection is round-robin
// assigned to, and a name -> *TcpConnection table protected by a mutex
// (the only lock in the connection path — everything else relies on
// single-owner-thread discipline).

package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/reactorhttp/api"
	"github.com/momentics/reactorhttp/reactor"
)

// TcpServer accepts connections on one address and distributes them
// across an EventLoopThreadPool.
type TcpServer struct {
	name       string
	listenAddr string
	baseLoop   *reactor.EventLoop
	acceptor   *Acceptor
	threadPool *reactor.EventLoopThreadPool

	control api.Control
	logger  api.Logger

	numThreads  int
	backlog     int
	pinAffinity bool
	reusePort   bool
	idleTimeout time.Duration

	nextConnID int64 // atomic
	started    int32 // atomic bool

	mu          sync.Mutex
	connections map[string]*TcpConnection

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
}

// Option configures a TcpServer at construction time.
type Option func(*TcpServer)

// WithThreadNum sets the number of I/O worker loops (0 = single-threaded,
// the base loop handles everything).
func WithThreadNum(n int) Option { return func(s *TcpServer) { s.numThreads = n } }

// WithBacklog sets the listen backlog.
func WithBacklog(n int) Option { return func(s *TcpServer) { s.backlog = n } }

// WithAffinity enables best-effort CPU pinning for each worker loop.
func WithAffinity(on bool) Option { return func(s *TcpServer) { s.pinAffinity = on } }

// WithIdleTimeout arms an idle-read timeout on every accepted connection.
func WithIdleTimeout(d time.Duration) Option { return func(s *TcpServer) { s.idleTimeout = d } }

// WithReusePort enables SO_REUSEPORT on the listening socket.
func WithReusePort(on bool) Option { return func(s *TcpServer) { s.reusePort = on } }

// NewTcpServer constructs a server bound to host:port, driven by
// baseLoop's acceptor.
func NewTcpServer(baseLoop *reactor.EventLoop, name, host string, port int, control api.Control, logger api.Logger, opts ...Option) (*TcpServer, error) {
	if logger == nil {
		logger = api.NopLogger{}
	}
	s := &TcpServer{
		name:        name,
		listenAddr:  fmt.Sprintf("%s:%d", host, port),
		baseLoop:    baseLoop,
		control:     control,
		logger:      logger,
		backlog:     1024,
		connections: make(map[string]*TcpConnection),
	}
	for _, opt := range opts {
		opt(s)
	}

	acceptor, err := NewAcceptor(baseLoop, host, port, s.reusePort, control, logger)
	if err != nil {
		return nil, err
	}
	s.acceptor = acceptor
	s.threadPool = reactor.NewEventLoopThreadPool(baseLoop, control, logger, s.pinAffinity)
	return s, nil
}

// SetConnectionCallback / SetMessageCallback / SetWriteCompleteCallback
// install the hooks propagated to every accepted TcpConnection. Must be
// called before Start.
func (s *TcpServer) SetConnectionCallback(cb ConnectionCallback)        { s.connectionCallback = cb }
func (s *TcpServer) SetMessageCallback(cb MessageCallback)              { s.messageCallback = cb }
func (s *TcpServer) SetWriteCompleteCallback(cb WriteCompleteCallback)  { s.writeCompleteCallback = cb }

// Start is idempotent: only the first call spins up the thread pool and
// begins listening.
func (s *TcpServer) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}
	if err := s.threadPool.Start(s.numThreads); err != nil {
		return err
	}
	s.acceptor.SetNewConnectionCallback(s.newConnection)

	errCh := make(chan error, 1)
	s.baseLoop.RunInLoop(func() {
		errCh <- s.acceptor.Listen(s.backlog)
	})
	return <-errCh
}

func (s *TcpServer) newConnection(fd int, peer unix.Sockaddr) {
	ioLoop := s.threadPool.GetNextLoop()
	connID := atomic.AddInt64(&s.nextConnID, 1)
	name := fmt.Sprintf("%s-%s#%d", s.name, s.listenAddr, connID)
	peerAddr := sockaddrString(peer)

	conn := NewTcpConnection(ioLoop, name, fd, s.listenAddr, peerAddr, s.control, s.logger)
	conn.SetConnectionCallback(s.connectionCallback)
	conn.SetMessageCallback(s.messageCallback)
	conn.SetWriteCompleteCallback(s.writeCompleteCallback)
	conn.SetCloseCallback(s.removeConnection)
	if s.idleTimeout > 0 {
		conn.EnableIdleTimeout(s.idleTimeout)
	}

	s.mu.Lock()
	s.connections[name] = conn
	s.mu.Unlock()

	ioLoop.RunInLoop(conn.ConnectEstablished)
}

func (s *TcpServer) removeConnection(conn *TcpConnection) {
	s.mu.Lock()
	delete(s.connections, conn.Name())
	s.mu.Unlock()

	conn.Loop().QueueInLoop(conn.ConnectDestroyed)
}

// Addr returns the address actually bound by the kernel, valid only after
// Start returns without error.
func (s *TcpServer) Addr() (ip [4]byte, port int, err error) { return s.acceptor.Addr() }

// ConnectionCount returns the number of live connections.
func (s *TcpServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// Stop force-closes every connection and quits every worker loop plus
// the base loop.
func (s *TcpServer) Stop() {
	s.mu.Lock()
	conns := make([]*TcpConnection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.ForceClose()
	}
	closeDone := make(chan struct{})
	s.baseLoop.RunInLoop(func() {
		_ = s.acceptor.Close()
		close(closeDone)
	})
	<-closeDone

	for _, loop := range s.threadPool.AllLoops() {
		if loop != s.baseLoop {
			loop.Quit()
		}
	}
	s.baseLoop.Quit()
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%x]:%d", a.Addr, a.Port)
	default:
		return "unknown"
	}
}
