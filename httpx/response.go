// File: httpx/response.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HttpResponse accumulates a status line, headers, and body, then
// serializes itself into a pool.Buffer in the fixed order: status line;
// "Connection: close" when the connection is closing, otherwise
// Content-Length followed by "Connection: Keep-Alive"; every remaining
// user header in sorted order; blank line; body.

package httpx

import (
	"sort"
	"strconv"

	"github.com/momentics/reactorhttp/pool"
)

// HttpResponse is a response under construction by a handler.
type HttpResponse struct {
	Version    string
	StatusCode int
	StatusMsg  string
	Headers    map[string]string
	Body       []byte

	// CloseConnection tells AppendToBuffer to emit "Connection: close"
	// instead of "Connection: Keep-Alive". HttpServer sets this based on
	// the request's HTTP version and Connection header before invoking
	// the handler; a handler may still override it explicitly.
	CloseConnection bool
}

// NewHttpResponse returns a 200 OK response with no body.
func NewHttpResponse() *HttpResponse {
	return &HttpResponse{
		Version:    "HTTP/1.1",
		StatusCode: 200,
		Headers:    make(map[string]string),
	}
}

// SetStatus sets the status line's code and reason phrase.
func (r *HttpResponse) SetStatus(code int, msg string) {
	r.StatusCode = code
	r.StatusMsg = msg
}

// SetHeader sets a response header verbatim (case preserved on the
// wire, unlike request headers).
func (r *HttpResponse) SetHeader(key, value string) { r.Headers[key] = value }

// SetContentType is shorthand for SetHeader("Content-Type", ct).
func (r *HttpResponse) SetContentType(ct string) { r.Headers["Content-Type"] = ct }

// SetBody sets the response body. Content-Length is computed from its
// length at serialization time unless already set explicitly.
func (r *HttpResponse) SetBody(b []byte) { r.Body = b }

// AppendToBuffer serializes the response into buf.
func (r *HttpResponse) AppendToBuffer(buf *pool.Buffer) {
	msg := r.StatusMsg
	if msg == "" {
		msg = statusText(r.StatusCode)
	}
	buf.AppendString(r.Version)
	buf.AppendString(" ")
	buf.AppendString(strconv.Itoa(r.StatusCode))
	buf.AppendString(" ")
	buf.AppendString(msg)
	buf.AppendString("\r\n")

	if r.CloseConnection {
		buf.AppendString("Connection: close\r\n")
	} else {
		contentLength := r.Headers["Content-Length"]
		if contentLength == "" {
			contentLength = strconv.Itoa(len(r.Body))
		}
		buf.AppendString("Content-Length: ")
		buf.AppendString(contentLength)
		buf.AppendString("\r\n")
		buf.AppendString("Connection: Keep-Alive\r\n")
	}

	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		if k == "Content-Length" || k == "Connection" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.AppendString(k)
		buf.AppendString(": ")
		buf.AppendString(r.Headers[k])
		buf.AppendString("\r\n")
	}
	buf.AppendString("\r\n")
	buf.Append(r.Body)
}

// AppendBareToBuffer serializes just the status line and the terminating
// blank line, with no Connection/Content-Length/user headers at all — for
// responses to requests too malformed to have been parsed into anything
// a normal header block could safely reference.
func (r *HttpResponse) AppendBareToBuffer(buf *pool.Buffer) {
	msg := r.StatusMsg
	if msg == "" {
		msg = statusText(r.StatusCode)
	}
	buf.AppendString(r.Version)
	buf.AppendString(" ")
	buf.AppendString(strconv.Itoa(r.StatusCode))
	buf.AppendString(" ")
	buf.AppendString(msg)
	buf.AppendString("\r\n\r\n")
}

var statusTexts = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	413: "Payload Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	503: "Service Unavailable",
}

func statusText(code int) string {
	if t, ok := statusTexts[code]; ok {
		return t
	}
	return "Unknown"
}
