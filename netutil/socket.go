// File: netutil/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket is an owning wrapper over a non-blocking IPv4 TCP file
// descriptor, built directly against golang.org/x/sys/unix.Socket +
// SetsockoptInt instead of net.Listen, covering bind/listen/accept4/
// shutdown-write and the option set a reactor listener needs
// (SO_REUSEADDR, SO_REUSEPORT, SO_KEEPALIVE, TCP_NODELAY).

package netutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Socket owns exactly one file descriptor; Close is idempotent-unsafe
// and must be called exactly once.
type Socket struct {
	fd int
}

// NewSocket creates a non-blocking, close-on-exec IPv4 TCP socket.
func NewSocket() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("netutil: socket: %w", err)
	}
	return &Socket{fd: fd}, nil
}

// FD returns the raw descriptor for registration with a Poller.
func (s *Socket) FD() int { return s.fd }

// SetReuseAddr sets SO_REUSEADDR, required before Bind on a restarted
// listener.
func (s *Socket) SetReuseAddr() error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

// SetReusePort sets SO_REUSEPORT, allowing multiple processes/threads to
// bind the same address for kernel-level load spreading.
func (s *Socket) SetReusePort() error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// SetKeepAlive enables TCP keepalive probes on an accepted connection
// socket.
func (s *Socket) SetKeepAlive() error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
}

// SetTCPNoDelay disables Nagle's algorithm.
func (s *Socket) SetTCPNoDelay(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(s.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
}

// Bind binds the socket to an IPv4 host:port pair.
func (s *Socket) Bind(ip [4]byte, port int) error {
	addr := &unix.SockaddrInet4{Port: port, Addr: ip}
	if err := unix.Bind(s.fd, addr); err != nil {
		return fmt.Errorf("netutil: bind: %w", err)
	}
	return nil
}

// Listen marks the socket as passive with the given backlog.
func (s *Socket) Listen(backlog int) error {
	if err := unix.Listen(s.fd, backlog); err != nil {
		return fmt.Errorf("netutil: listen: %w", err)
	}
	return nil
}

// Accept4 accepts a pending connection, returning a non-blocking,
// close-on-exec descriptor and the peer address. Returns unix.EAGAIN
// when no connection is pending (edge-triggered callers must loop until
// this).
func (s *Socket) Accept4() (fd int, peer unix.Sockaddr, err error) {
	fd, peer, err = unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, nil, err
	}
	return fd, peer, nil
}

// ShutdownWrite half-closes the write side, letting the peer drain
// whatever has already been sent.
func (s *Socket) ShutdownWrite() error {
	return unix.Shutdown(s.fd, unix.SHUT_WR)
}

// SOError fetches and clears the socket's pending SO_ERROR, used by
// TcpConnection.handleError for logging purposes only.
func (s *Socket) SOError() error {
	errno, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

// Close releases the descriptor. Sockets handed off to a Channel are
// never closed by the channel itself; the owning TcpConnection or
// Acceptor calls Close exactly once.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

// LocalAddr reads back the address the kernel actually bound, which
// resolves an ephemeral port request (port 0) to the one the kernel chose.
func (s *Socket) LocalAddr() (ip [4]byte, port int, err error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return ip, 0, fmt.Errorf("netutil: getsockname: %w", err)
	}
	addr, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return ip, 0, fmt.Errorf("netutil: getsockname: unexpected address family")
	}
	return addr.Addr, addr.Port, nil
}

// WrapFD adopts an already-open descriptor (e.g. one returned by
// Accept4) into a Socket value, so the rest of this package's option
// setters can be reused on accepted connections.
func WrapFD(fd int) *Socket { return &Socket{fd: fd} }

// ParseIPv4Port converts a listen host typed by users into the [4]byte
// address unix.SockaddrInet4 wants; port is accepted but not examined.
// Only dotted-quad IPv4 and the empty host or "0.0.0.0" (meaning
// INADDR_ANY) are supported.
func ParseIPv4Port(host string, port int) ([4]byte, error) {
	if host == "" || host == "0.0.0.0" {
		return [4]byte{0, 0, 0, 0}, nil
	}
	var ip [4]byte
	var parts [4]int
	n, err := fmt.Sscanf(host, "%d.%d.%d.%d", &parts[0], &parts[1], &parts[2], &parts[3])
	if err != nil || n != 4 {
		return ip, fmt.Errorf("netutil: invalid IPv4 address %q", host)
	}
	for i, p := range parts {
		if p < 0 || p > 255 {
			return ip, fmt.Errorf("netutil: invalid IPv4 octet in %q", host)
		}
		ip[i] = byte(p)
	}
	return ip, nil
}
