//go:build linux
// +build linux

// File: server/tcpserver_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/reactorhttp/adapters"
	"github.com/momentics/reactorhttp/internal/clock"
	"github.com/momentics/reactorhttp/pool"
	"github.com/momentics/reactorhttp/reactor"
)

func newTestBaseLoop(t *testing.T) *reactor.EventLoop {
	t.Helper()
	loop, err := reactor.NewEventLoop(adapters.NewAtomicControl(), nil)
	require.NoError(t, err)
	go loop.Loop()
	t.Cleanup(func() {
		loop.Quit()
		<-loop.Done()
		require.NoError(t, loop.Close())
	})
	done := make(chan struct{})
	loop.RunInLoop(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("base loop never became ready")
	}
	return loop
}

func TestTcpServerEchoesBytesOverLoopback(t *testing.T) {
	baseLoop := newTestBaseLoop(t)
	control := adapters.NewAtomicControl()

	srv, err := NewTcpServer(baseLoop, "echo-test", "127.0.0.1", 0, control, nil)
	require.NoError(t, err)
	srv.SetMessageCallback(func(c *TcpConnection, in *pool.Buffer, _ clock.TimeStamp) {
		data := append([]byte(nil), in.Peek()...)
		in.Retrieve(len(data))
		require.NoError(t, c.Send(data))
	})
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	_, port, err := srv.Addr()
	require.NoError(t, err)

	clientFD, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	require.NoError(t, err)
	defer unix.Close(clientFD)
	require.NoError(t, unix.Connect(clientFD, &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}}))

	require.NoError(t, retryWrite(clientFD, []byte("ping")))

	buf := make([]byte, 16)
	n := 0
	require.Eventually(t, func() bool {
		got, rerr := unix.Read(clientFD, buf[n:])
		if rerr == nil && got > 0 {
			n += got
		}
		return n >= len("ping")
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "ping", string(buf[:n]))

	require.Eventually(t, func() bool { return control.Snapshot().ConnectionsAccepted >= 1 }, time.Second, 10*time.Millisecond)
}

func TestTcpServerStartIsIdempotent(t *testing.T) {
	baseLoop := newTestBaseLoop(t)
	srv, err := NewTcpServer(baseLoop, "idempotent-test", "127.0.0.1", 0, adapters.NewAtomicControl(), nil)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
}

func retryWrite(fd int, data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return err
		}
		data = data[n:]
	}
	return nil
}
