// File: httpx/context_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package httpx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/reactorhttp/api"
	"github.com/momentics/reactorhttp/internal/clock"
	"github.com/momentics/reactorhttp/pool"
)

func TestParseRequestLineAndHeaders(t *testing.T) {
	ctx := NewHttpContext()
	buf := pool.NewBuffer()
	buf.AppendString("GET /users?name=bob HTTP/1.1\r\nHost: example.com\r\nContent-Length: 0\r\n\r\n")

	ok, err := ctx.ParseRequest(buf, clock.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ctx.GotAll())

	req := ctx.Request()
	require.Equal(t, "GET", req.Method)
	require.Equal(t, "/users", req.Path)
	require.Equal(t, "bob", req.Query.Get("name"))
	require.Equal(t, "example.com", req.Header("host"))
	require.Equal(t, 0, buf.ReadableBytes())
}

func TestParseRequestWithBody(t *testing.T) {
	ctx := NewHttpContext()
	buf := pool.NewBuffer()
	buf.AppendString("POST /widgets HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")

	ok, err := ctx.ParseRequest(buf, clock.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ctx.GotAll())
	require.Equal(t, "hello", string(ctx.Request().Body))
}

func TestParseRequestIncrementalFeed(t *testing.T) {
	ctx := NewHttpContext()
	buf := pool.NewBuffer()

	buf.AppendString("GET /a HTTP/1.1\r\n")
	ok, err := ctx.ParseRequest(buf, clock.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, ctx.GotAll())

	buf.AppendString("Host: x\r\n\r\n")
	ok, err = ctx.ParseRequest(buf, clock.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ctx.GotAll())
}

func TestParseRequestPipelinedRequestsInOrder(t *testing.T) {
	ctx := NewHttpContext()
	buf := pool.NewBuffer()
	buf.AppendString("GET /first HTTP/1.1\r\n\r\nGET /second HTTP/1.1\r\n\r\n")

	ok, err := ctx.ParseRequest(buf, clock.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ctx.GotAll())
	require.Equal(t, "/first", ctx.Request().Path)

	ctx.Reset()
	ok, err = ctx.ParseRequest(buf, clock.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ctx.GotAll())
	require.Equal(t, "/second", ctx.Request().Path)
}

func TestParseRequestMalformedRequestLine(t *testing.T) {
	ctx := NewHttpContext()
	buf := pool.NewBuffer()
	buf.AppendString("GET\r\n\r\n")

	ok, err := ctx.ParseRequest(buf, clock.Now())
	require.Error(t, err)
	require.False(t, ok)
}

func TestParseRequestUnsupportedMethodRejected(t *testing.T) {
	ctx := NewHttpContext()
	buf := pool.NewBuffer()
	buf.AppendString("FOOBAR /a HTTP/1.1\r\n\r\n")

	ok, err := ctx.ParseRequest(buf, clock.Now())
	require.ErrorIs(t, err, api.ErrMalformedRequest)
	require.False(t, ok)
}

func TestParseRequestUnsupportedVersionRejected(t *testing.T) {
	ctx := NewHttpContext()
	buf := pool.NewBuffer()
	buf.AppendString("GET /a HTTP/1.2\r\n\r\n")

	ok, err := ctx.ParseRequest(buf, clock.Now())
	require.ErrorIs(t, err, api.ErrMalformedRequest)
	require.False(t, ok)
}

func TestParseRequestMalformedContentLength(t *testing.T) {
	ctx := NewHttpContext()
	buf := pool.NewBuffer()
	buf.AppendString("GET /a HTTP/1.1\r\nContent-Length: notanumber\r\n\r\n")

	ok, err := ctx.ParseRequest(buf, clock.Now())
	require.Error(t, err)
	require.False(t, ok)
}
