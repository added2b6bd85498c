// File: httpx/response_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package httpx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/reactorhttp/pool"
)

func TestResponseSerializationFieldOrder(t *testing.T) {
	resp := NewHttpResponse()
	resp.SetStatus(200, "OK")
	resp.SetContentType("text/plain")
	resp.SetBody([]byte("Hello, World!"))

	buf := pool.NewBuffer()
	resp.AppendToBuffer(buf)
	out := string(buf.Peek())

	require.Equal(t,
		"HTTP/1.1 200 OK\r\nContent-Length: 13\r\nConnection: Keep-Alive\r\nContent-Type: text/plain\r\n\r\nHello, World!",
		out)
}

func TestResponseDefaultsStatusTextFromTable(t *testing.T) {
	resp := NewHttpResponse()
	resp.SetStatus(404, "")
	buf := pool.NewBuffer()
	resp.AppendToBuffer(buf)
	require.True(t, strings.HasPrefix(string(buf.Peek()), "HTTP/1.1 404 Not Found\r\n"))
}

func TestResponseCloseConnectionHeader(t *testing.T) {
	resp := NewHttpResponse()
	resp.CloseConnection = true
	buf := pool.NewBuffer()
	resp.AppendToBuffer(buf)
	out := string(buf.Peek())
	lines := strings.Split(out, "\r\n")
	require.Equal(t, "Connection: close", lines[1])
	require.NotContains(t, out, "Content-Length")
}

func TestResponseAppendBareToBufferEmitsNoHeaders(t *testing.T) {
	resp := NewHttpResponse()
	resp.SetStatus(400, "Bad Request")

	buf := pool.NewBuffer()
	resp.AppendBareToBuffer(buf)

	require.Equal(t, "HTTP/1.1 400 Bad Request\r\n\r\n", string(buf.Peek()))
}
