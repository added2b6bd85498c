// File: reactor/threadpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventLoopThreadPool owns a fixed set of worker EventLoops, each pinned
// to its own OS thread, and hands out the next one in round-robin order
// to spread accepted connections across cores.

package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/reactorhttp/adapters"
	"github.com/momentics/reactorhttp/api"
	"github.com/momentics/reactorhttp/internal/normalize"
)

// EventLoopThreadPool starts N worker loops, each on its own goroutine
// locked to an OS thread. If N is zero, GetNextLoop always returns the
// base loop that owns the pool (single-threaded mode).
type EventLoopThreadPool struct {
	baseLoop *EventLoop
	control  api.Control
	logger   api.Logger

	pinAffinity bool

	mu      sync.Mutex
	started bool
	loops   []*EventLoop
	next    uint64 // atomic round-robin cursor
}

// NewEventLoopThreadPool constructs a pool bound to baseLoop, which
// remains the acceptor's own loop and is never itself part of the
// round-robin set once workers exist.
func NewEventLoopThreadPool(baseLoop *EventLoop, control api.Control, logger api.Logger, pinAffinity bool) *EventLoopThreadPool {
	if logger == nil {
		logger = api.NopLogger{}
	}
	return &EventLoopThreadPool{
		baseLoop:    baseLoop,
		control:     control,
		logger:      logger,
		pinAffinity: pinAffinity,
	}
}

// Start creates numThreads worker loops and runs each Loop() on its own
// goroutine. numThreads <= 0 starts no workers (single-threaded: the
// base loop handles everything); a positive count is capped by
// internal/normalize.WorkerCount.
func (p *EventLoopThreadPool) Start(numThreads int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("reactor: thread pool already started")
	}
	p.started = true

	if numThreads <= 0 {
		return nil // single-threaded: base loop handles everything.
	}
	n := normalize.WorkerCount(numThreads)
	p.loops = make([]*EventLoop, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		loop, err := NewEventLoop(p.control, p.logger)
		if err != nil {
			return fmt.Errorf("reactor: worker loop %d: %w", i, err)
		}
		p.loops[i] = loop
		go func() {
			if p.pinAffinity {
				cpu := normalize.CPUIndex(i)
				if err := adapters.PinCurrentThread(cpu); err != nil {
					p.logger.Warn("affinity pin failed", api.F("worker", i), api.F("cpu", cpu), api.F("error", err))
				}
			}
			wg.Done()
			loop.Loop()
		}()
	}
	wg.Wait()
	return nil
}

// GetNextLoop returns the next worker loop in round-robin order, or the
// base loop if the pool was started with zero workers.
func (p *EventLoopThreadPool) GetNextLoop() *EventLoop {
	p.mu.Lock()
	n := len(p.loops)
	p.mu.Unlock()
	if n == 0 {
		return p.baseLoop
	}
	idx := atomic.AddUint64(&p.next, 1) % uint64(n)
	return p.loops[idx]
}

// AllLoops returns every worker loop, or just the base loop in
// single-threaded mode. Used by graceful-shutdown to Quit each one.
func (p *EventLoopThreadPool) AllLoops() []*EventLoop {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.loops) == 0 {
		return []*EventLoop{p.baseLoop}
	}
	out := make([]*EventLoop, len(p.loops))
	copy(out, p.loops)
	return out
}
