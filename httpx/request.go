// File: httpx/request.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// HttpRequest is the parsed representation of one HTTP/1.x request line
// plus headers plus body. Header lookups are case-insensitive; the
// backing map is always keyed lowercase.

package httpx

import (
	"net/url"
	"strings"
)

// HttpRequest holds one fully or partially parsed request.
type HttpRequest struct {
	Method   string
	Path     string
	RawQuery string
	Query    url.Values
	Version  string
	Headers  map[string]string
	Body     []byte

	// Params is populated by the router after a successful match, mapping
	// ":name" and "*name" segments to the text they captured.
	Params map[string]string
}

// NewHttpRequest returns an empty request ready for incremental parsing.
func NewHttpRequest() *HttpRequest {
	return &HttpRequest{Headers: make(map[string]string)}
}

// Header returns the value for key, case-insensitively, or "" if absent.
func (r *HttpRequest) Header(key string) string {
	return r.Headers[strings.ToLower(key)]
}

// SetHeader stores a header, normalizing key to lowercase.
func (r *HttpRequest) SetHeader(key, value string) {
	r.Headers[strings.ToLower(key)] = value
}

// Param returns a route parameter captured by the router, or "" if name
// was never bound.
func (r *HttpRequest) Param(name string) string {
	if r.Params == nil {
		return ""
	}
	return r.Params[name]
}
