// File: netutil/socket_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package netutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestParseIPv4PortAcceptsWildcardAndDottedQuad(t *testing.T) {
	ip, err := ParseIPv4Port("", 8080)
	require.NoError(t, err)
	require.Equal(t, [4]byte{0, 0, 0, 0}, ip)

	ip, err = ParseIPv4Port("0.0.0.0", 8080)
	require.NoError(t, err)
	require.Equal(t, [4]byte{0, 0, 0, 0}, ip)

	ip, err = ParseIPv4Port("127.0.0.1", 8080)
	require.NoError(t, err)
	require.Equal(t, [4]byte{127, 0, 0, 1}, ip)
}

func TestParseIPv4PortRejectsGarbage(t *testing.T) {
	_, err := ParseIPv4Port("not-an-ip", 8080)
	require.Error(t, err)

	_, err = ParseIPv4Port("300.1.1.1", 8080)
	require.Error(t, err)
}

func TestSocketBindListenAcceptRoundTrip(t *testing.T) {
	listener, err := NewSocket()
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	require.NoError(t, listener.SetReuseAddr())
	ip, err := ParseIPv4Port("127.0.0.1", 0)
	require.NoError(t, err)
	require.NoError(t, listener.Bind(ip, 0))
	require.NoError(t, listener.Listen(128))

	_, _, err = listener.Accept4()
	require.ErrorIs(t, err, unix.EAGAIN)

	sa, err := unix.Getsockname(listener.FD())
	require.NoError(t, err)
	addr, ok := sa.(*unix.SockaddrInet4)
	require.True(t, ok)

	clientFD, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	require.NoError(t, err)
	defer unix.Close(clientFD)
	err = unix.Connect(clientFD, &unix.SockaddrInet4{Port: addr.Port, Addr: [4]byte{127, 0, 0, 1}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		fd, _, aerr := listener.Accept4()
		if aerr != nil {
			return false
		}
		defer unix.Close(fd)
		conn := WrapFD(fd)
		require.NoError(t, conn.SetTCPNoDelay(true))
		require.NoError(t, conn.SetKeepAlive())
		return true
	}, time.Second, 10*time.Millisecond)
}
