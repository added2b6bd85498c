// File: webframe/webframe.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WebFrame is the top-level façade: an httpx.HttpServer fronted by a
// router.Router[httpx.HandlerFunc], with default 404/405 handlers and a
// panic recovery boundary around every user handler so one bad handler
// cannot take a connection's io-loop down.

package webframe

import (
	"fmt"

	"github.com/momentics/reactorhttp/api"
	"github.com/momentics/reactorhttp/httpx"
	"github.com/momentics/reactorhttp/reactor"
	"github.com/momentics/reactorhttp/router"
	"github.com/momentics/reactorhttp/server"
)

// ExceptionHandlerFunc responds on behalf of a handler that panicked;
// recovered is whatever value was passed to panic().
type ExceptionHandlerFunc func(req *httpx.HttpRequest, resp *httpx.HttpResponse, recovered any)

// WebFrame wires routing on top of an HTTP server.
type WebFrame struct {
	http   *httpx.HttpServer
	router *router.Router[httpx.HandlerFunc]
	logger api.Logger

	notFound         httpx.HandlerFunc
	methodNotAllowed httpx.HandlerFunc
	exceptionHandler ExceptionHandlerFunc
}

// New constructs a WebFrame listening on host:port on baseLoop.
func New(baseLoop *reactor.EventLoop, name, host string, port int, control api.Control, logger api.Logger, opts ...server.Option) (*WebFrame, error) {
	if logger == nil {
		logger = api.NopLogger{}
	}
	hs, err := httpx.NewHttpServer(baseLoop, name, host, port, control, logger, opts...)
	if err != nil {
		return nil, err
	}
	wf := &WebFrame{
		http:             hs,
		router:           router.New[httpx.HandlerFunc](),
		logger:           logger,
		notFound:         defaultNotFound,
		methodNotAllowed: defaultMethodNotAllowed,
		exceptionHandler: defaultExceptionHandler,
	}
	hs.SetHandler(wf.dispatch)
	return wf, nil
}

// Handle registers h for method+pattern (see router.Router.Handle for
// pattern syntax).
func (wf *WebFrame) Handle(method, pattern string, h httpx.HandlerFunc) error {
	return wf.router.Handle(method, pattern, h)
}

// GET/POST/PUT/DELETE/PATCH are Handle shorthands for the common verbs.
func (wf *WebFrame) GET(pattern string, h httpx.HandlerFunc) error  { return wf.Handle("GET", pattern, h) }
func (wf *WebFrame) POST(pattern string, h httpx.HandlerFunc) error { return wf.Handle("POST", pattern, h) }
func (wf *WebFrame) PUT(pattern string, h httpx.HandlerFunc) error  { return wf.Handle("PUT", pattern, h) }
func (wf *WebFrame) DELETE(pattern string, h httpx.HandlerFunc) error {
	return wf.Handle("DELETE", pattern, h)
}
func (wf *WebFrame) PATCH(pattern string, h httpx.HandlerFunc) error {
	return wf.Handle("PATCH", pattern, h)
}

// SetNotFoundHandler overrides the default 404 responder.
func (wf *WebFrame) SetNotFoundHandler(h httpx.HandlerFunc) { wf.notFound = h }

// SetMethodNotAllowedHandler overrides the default 405 responder.
func (wf *WebFrame) SetMethodNotAllowedHandler(h httpx.HandlerFunc) { wf.methodNotAllowed = h }

// SetExceptionHandler overrides the default responder invoked when a user
// handler panics; the panic is already recovered by the time h runs.
func (wf *WebFrame) SetExceptionHandler(h ExceptionHandlerFunc) { wf.exceptionHandler = h }

// Start begins listening.
func (wf *WebFrame) Start() error { return wf.http.Start() }

// Stop tears the server down.
func (wf *WebFrame) Stop() { wf.http.Stop() }

// Control exposes the metrics sink backing this server.
func (wf *WebFrame) Control() api.Control { return wf.http.Control() }

// ConnectionCount returns the number of live connections.
func (wf *WebFrame) ConnectionCount() int { return wf.http.ConnectionCount() }

// Addr returns the address actually bound by the kernel, valid only after
// Start returns without error.
func (wf *WebFrame) Addr() (ip [4]byte, port int, err error) { return wf.http.Addr() }

func (wf *WebFrame) dispatch(req *httpx.HttpRequest, resp *httpx.HttpResponse) {
	defer func() {
		if r := recover(); r != nil {
			wf.logger.Error("handler panicked", api.F("recover", r), api.F("path", req.Path))
			resp.SetStatus(500, "Internal Server Error")
			resp.Headers = map[string]string{}
			wf.exceptionHandler(req, resp, r)
		}
	}()

	h, params, outcome := wf.router.Match(req.Method, req.Path)
	switch outcome {
	case router.Found:
		req.Params = params
		h(req, resp)
	case router.NotFoundMethod:
		wf.methodNotAllowed(req, resp)
	default:
		wf.notFound(req, resp)
	}
}

func defaultNotFound(req *httpx.HttpRequest, resp *httpx.HttpResponse) {
	resp.SetStatus(404, "Not Found")
	resp.SetContentType("text/plain; charset=utf-8")
	resp.SetBody([]byte("404 not found\n"))
}

func defaultMethodNotAllowed(req *httpx.HttpRequest, resp *httpx.HttpResponse) {
	resp.SetStatus(405, "Method Not Allowed")
	resp.SetContentType("text/plain; charset=utf-8")
	resp.SetBody([]byte("405 method not allowed\n"))
}

func defaultExceptionHandler(req *httpx.HttpRequest, resp *httpx.HttpResponse, recovered any) {
	resp.SetContentType("text/plain; charset=utf-8")
	resp.SetBody([]byte(fmt.Sprintf("500 internal server error: %v\n", recovered)))
	resp.CloseConnection = true
}
