// File: httpx/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HttpServer glues a server.TcpServer's byte stream to the HttpContext
// parser and HttpResponse serializer, and decides keep-alive per HTTP
// version and the Connection header. It processes every complete
// request already buffered before returning to the reactor, so
// sequential pipelined requests on one connection are answered in
// order without extra buffering machinery.

package httpx

import (
	"strings"

	"github.com/momentics/reactorhttp/api"
	"github.com/momentics/reactorhttp/internal/clock"
	"github.com/momentics/reactorhttp/pool"
	"github.com/momentics/reactorhttp/reactor"
	"github.com/momentics/reactorhttp/server"
)

// HandlerFunc answers one fully-parsed request by mutating resp.
type HandlerFunc func(req *HttpRequest, resp *HttpResponse)

// HttpServer is a TcpServer specialized to speak HTTP/1.1.
type HttpServer struct {
	tcp     *server.TcpServer
	handler HandlerFunc
	control api.Control
	logger  api.Logger
}

// NewHttpServer constructs an HttpServer bound to host:port on baseLoop.
func NewHttpServer(baseLoop *reactor.EventLoop, name, host string, port int, control api.Control, logger api.Logger, opts ...server.Option) (*HttpServer, error) {
	if logger == nil {
		logger = api.NopLogger{}
	}
	tcp, err := server.NewTcpServer(baseLoop, name, host, port, control, logger, opts...)
	if err != nil {
		return nil, err
	}
	hs := &HttpServer{tcp: tcp, control: control, logger: logger}
	tcp.SetConnectionCallback(hs.onConnection)
	tcp.SetMessageCallback(hs.onMessage)
	return hs, nil
}

// SetHandler installs the single request handler every route ultimately
// funnels through (normally router.Router[HandlerFunc].Match's result).
func (hs *HttpServer) SetHandler(h HandlerFunc) { hs.handler = h }

// Control exposes the underlying metrics sink.
func (hs *HttpServer) Control() api.Control { return hs.control }

// Start begins listening.
func (hs *HttpServer) Start() error { return hs.tcp.Start() }

// Stop tears the server down.
func (hs *HttpServer) Stop() { hs.tcp.Stop() }

// ConnectionCount returns the number of live connections.
func (hs *HttpServer) ConnectionCount() int { return hs.tcp.ConnectionCount() }

// Addr returns the address actually bound by the kernel, valid only after
// Start returns without error.
func (hs *HttpServer) Addr() (ip [4]byte, port int, err error) { return hs.tcp.Addr() }

func (hs *HttpServer) onConnection(conn *server.TcpConnection) {
	if conn.State() == server.StateConnected {
		conn.Context().Set(NewHttpContext())
	}
}

func (hs *HttpServer) onMessage(conn *server.TcpConnection, buf *pool.Buffer, receiveTime clock.TimeStamp) {
	ctx, ok := conn.Context().Get().(*HttpContext)
	if !ok || ctx == nil {
		ctx = NewHttpContext()
		conn.Context().Set(ctx)
	}

	for {
		ok, err := ctx.ParseRequest(buf, receiveTime)
		if err != nil || !ok {
			if hs.control != nil {
				hs.control.IncParseErrors()
			}
			hs.respondError(conn, 400, "Bad Request")
			conn.Shutdown()
			ctx.Reset()
			return
		}
		if !ctx.GotAll() {
			return
		}

		if hs.control != nil {
			hs.control.IncRequestsParsed()
		}
		req := ctx.Request()
		resp := NewHttpResponse()
		resp.CloseConnection = shouldClose(req)
		if hs.handler != nil {
			hs.handler(req, resp)
		} else {
			resp.SetStatus(404, "Not Found")
		}

		out := pool.NewBuffer()
		resp.AppendToBuffer(out)
		_ = conn.Send(out.Peek())

		closeConn := resp.CloseConnection
		ctx.Reset()
		if closeConn {
			conn.Shutdown()
			return
		}
	}
}

func (hs *HttpServer) respondError(conn *server.TcpConnection, code int, msg string) {
	resp := NewHttpResponse()
	resp.SetStatus(code, msg)
	out := pool.NewBuffer()
	resp.AppendBareToBuffer(out)
	_ = conn.Send(out.Peek())
}

// shouldClose implements HTTP/1.x's default keep-alive semantics:
// 1.1 defaults to keep-alive unless the client asks to close; 1.0
// defaults to close unless the client asks to keep-alive.
func shouldClose(req *HttpRequest) bool {
	conn := strings.ToLower(req.Header("connection"))
	if req.Version == "HTTP/1.0" {
		return conn != "keep-alive"
	}
	return conn == "close"
}
