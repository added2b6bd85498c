// File: httpx/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HttpContext is the byte-wise HTTP/1.x request parser state machine:
// ExpectRequestLine -> ExpectHeaders -> ExpectBody -> GotAll. It is
// stored inside a connection's opaque api.Context cell and fed
// incrementally as bytes arrive, since a request can span many reads.

package httpx

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/momentics/reactorhttp/api"
	"github.com/momentics/reactorhttp/internal/clock"
	"github.com/momentics/reactorhttp/pool"
)

// ParseState names one stage of the request parser.
type ParseState int

const (
	ExpectRequestLine ParseState = iota
	ExpectHeaders
	ExpectBody
	GotAll
)

// allowedMethods lists the request methods this parser accepts; anything
// else is a malformed request rather than an unrecognized one.
var allowedMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"HEAD":   true,
	"PUT":    true,
	"DELETE": true,
}

// HttpContext accumulates one in-progress request. It is not safe for
// concurrent use; each connection owns exactly one.
type HttpContext struct {
	state         ParseState
	request       *HttpRequest
	contentLength int
	receiveTime   clock.TimeStamp
}

// NewHttpContext returns a parser ready to consume a request line.
func NewHttpContext() *HttpContext {
	return &HttpContext{state: ExpectRequestLine, request: NewHttpRequest(), contentLength: -1}
}

// GotAll reports whether the current request is fully parsed.
func (ctx *HttpContext) GotAll() bool { return ctx.state == GotAll }

// Request returns the request accumulated so far (complete only once
// GotAll is true).
func (ctx *HttpContext) Request() *HttpRequest { return ctx.request }

// Reset prepares the context to parse the next request on the same
// connection (keep-alive).
func (ctx *HttpContext) Reset() {
	ctx.state = ExpectRequestLine
	ctx.request = NewHttpRequest()
	ctx.contentLength = -1
}

// ParseRequest consumes as much of buf as forms complete lines/body,
// leaving any trailing partial data in place for the next call. It
// returns ok=false only on a malformed request; running out of buffered
// data is not an error — the caller checks GotAll() to see whether a
// full request is ready.
func (ctx *HttpContext) ParseRequest(buf *pool.Buffer, receiveTime clock.TimeStamp) (ok bool, err error) {
	for {
		switch ctx.state {
		case ExpectRequestLine:
			line, found := findAndRetrieveLine(buf)
			if !found {
				return true, nil
			}
			if !ctx.parseRequestLine(line) {
				return false, api.ErrMalformedRequest
			}
			ctx.receiveTime = receiveTime
			ctx.state = ExpectHeaders

		case ExpectHeaders:
			line, found := findAndRetrieveLine(buf)
			if !found {
				return true, nil
			}
			if len(line) == 0 {
				ctx.contentLength = 0
				if cl := ctx.request.Header("content-length"); cl != "" {
					n, cerr := strconv.Atoi(cl)
					if cerr != nil || n < 0 {
						return false, api.ErrMalformedRequest
					}
					ctx.contentLength = n
				}
				if ctx.contentLength == 0 {
					ctx.state = GotAll
					return true, nil
				}
				ctx.state = ExpectBody
				continue
			}
			if !ctx.parseHeaderLine(line) {
				return false, api.ErrMalformedRequest
			}

		case ExpectBody:
			if buf.ReadableBytes() < ctx.contentLength {
				return true, nil
			}
			body := make([]byte, ctx.contentLength)
			copy(body, buf.Peek())
			buf.Retrieve(ctx.contentLength)
			ctx.request.Body = body
			ctx.state = GotAll
			return true, nil

		case GotAll:
			return true, nil
		}
	}
}

// findAndRetrieveLine extracts one CRLF-terminated line (without the
// CRLF) from buf's readable region, or reports found=false if no CRLF is
// present yet.
func findAndRetrieveLine(buf *pool.Buffer) (line []byte, found bool) {
	data := buf.Peek()
	idx := bytes.Index(data, []byte("\r\n"))
	if idx < 0 {
		return nil, false
	}
	line = append([]byte(nil), data[:idx]...)
	buf.Retrieve(idx + 2)
	return line, true
}

func (ctx *HttpContext) parseRequestLine(line []byte) bool {
	parts := bytes.Fields(line)
	if len(parts) != 3 {
		return false
	}
	method := string(parts[0])
	target := string(parts[1])
	version := string(parts[2])
	if !allowedMethods[method] || (version != "HTTP/1.0" && version != "HTTP/1.1") {
		return false
	}
	path, rawQuery, _ := strings.Cut(target, "?")
	if path == "" {
		return false
	}
	q, qerr := url.ParseQuery(rawQuery)
	if qerr != nil {
		return false
	}
	ctx.request.Method = method
	ctx.request.Path = path
	ctx.request.RawQuery = rawQuery
	ctx.request.Query = q
	ctx.request.Version = version
	return true
}

func (ctx *HttpContext) parseHeaderLine(line []byte) bool {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return false
	}
	key := strings.TrimSpace(string(line[:idx]))
	val := strings.TrimSpace(string(line[idx+1:]))
	if key == "" {
		return false
	}
	ctx.request.SetHeader(key, val)
	return true
}
