// File: api/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Context is an opaque per-connection value cell. The HTTP layer stores
// its parser state here; a future protocol layer (TLS, WebSocket) could
// store its own without TcpConnection knowing the concrete type.

package api

// Context holds exactly one boxed value per connection.
type Context interface {
	Get() any
	Set(v any)
}

type contextCell struct {
	v any
}

// NewContext returns an empty Context cell.
func NewContext() Context {
	return &contextCell{}
}

func (c *contextCell) Get() any    { return c.v }
func (c *contextCell) Set(v any)   { c.v = v }
