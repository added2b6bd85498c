// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared sentinel errors surfaced across reactor/, server/, httpx/, and
// router/. Wrapped with %w and matched via errors.Is/As throughout.

package api

import "errors"

var (
	// ErrClosed names the condition of a component (channel, connection,
	// loop, listener) that has been torn down. No function in this module
	// returns it.
	ErrClosed = errors.New("reactorhttp: closed")

	// ErrNotRunning is returned by TcpConnection.Send when the connection
	// is not in StateConnected. Shutdown has no return value and simply
	// ignores the call in that case.
	ErrNotRunning = errors.New("reactorhttp: connection not established")

	// ErrRouteConflict signals a duplicate or ambiguous route registration.
	ErrRouteConflict = errors.New("reactorhttp: route conflict")

	// ErrMalformedRequest signals an HTTP/1.x parse failure.
	ErrMalformedRequest = errors.New("reactorhttp: malformed request")
)
