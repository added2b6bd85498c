// File: adapters/control_atomic.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// AtomicControl implements api.Control with plain atomic counters,
// covering exactly the connection/timer/byte counts the reactor and
// connection layers produce, rather than a generic key/value metrics
// registry.

package adapters

import (
	"sync/atomic"

	"github.com/momentics/reactorhttp/api"
)

// AtomicControl is a lock-free api.Control implementation safe for
// concurrent use by every reactor loop.
type AtomicControl struct {
	connectionsAccepted uint64
	connectionsClosed   uint64
	bytesRead           uint64
	bytesWritten        uint64
	requestsParsed      uint64
	parseErrors         uint64
	timerFires          uint64
	emfileEvents        uint64
}

// NewAtomicControl constructs a zeroed counter set.
func NewAtomicControl() *AtomicControl { return &AtomicControl{} }

func (c *AtomicControl) IncConnectionsAccepted() { atomic.AddUint64(&c.connectionsAccepted, 1) }
func (c *AtomicControl) IncConnectionsClosed()   { atomic.AddUint64(&c.connectionsClosed, 1) }
func (c *AtomicControl) AddBytesRead(n uint64)   { atomic.AddUint64(&c.bytesRead, n) }
func (c *AtomicControl) AddBytesWritten(n uint64) { atomic.AddUint64(&c.bytesWritten, n) }
func (c *AtomicControl) IncRequestsParsed()      { atomic.AddUint64(&c.requestsParsed, 1) }
func (c *AtomicControl) IncParseErrors()         { atomic.AddUint64(&c.parseErrors, 1) }
func (c *AtomicControl) IncTimerFires()          { atomic.AddUint64(&c.timerFires, 1) }
func (c *AtomicControl) IncEMFileEvents()        { atomic.AddUint64(&c.emfileEvents, 1) }

func (c *AtomicControl) Snapshot() api.Metrics {
	return api.Metrics{
		ConnectionsAccepted: atomic.LoadUint64(&c.connectionsAccepted),
		ConnectionsClosed:   atomic.LoadUint64(&c.connectionsClosed),
		BytesRead:           atomic.LoadUint64(&c.bytesRead),
		BytesWritten:        atomic.LoadUint64(&c.bytesWritten),
		RequestsParsed:      atomic.LoadUint64(&c.requestsParsed),
		ParseErrors:         atomic.LoadUint64(&c.parseErrors),
		TimerFires:          atomic.LoadUint64(&c.timerFires),
		EMFileEvents:        atomic.LoadUint64(&c.emfileEvents),
	}
}

var _ api.Control = (*AtomicControl)(nil)
