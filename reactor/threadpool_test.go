//go:build linux
// +build linux

// File: reactor/threadpool_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/reactorhttp/adapters"
)

func TestThreadPoolSingleThreadedReturnsBaseLoop(t *testing.T) {
	base := newTestLoop(t)
	pool := NewEventLoopThreadPool(base, adapters.NewAtomicControl(), nil, false)
	require.NoError(t, pool.Start(0))

	require.Same(t, base, pool.GetNextLoop())
	require.Equal(t, []*EventLoop{base}, pool.AllLoops())
}

func TestThreadPoolRoundRobinsAcrossWorkers(t *testing.T) {
	base := newTestLoop(t)
	pool := NewEventLoopThreadPool(base, adapters.NewAtomicControl(), nil, false)
	require.NoError(t, pool.Start(3))
	t.Cleanup(func() {
		for _, l := range pool.AllLoops() {
			l.Quit()
			<-l.Done()
			_ = l.Close()
		}
	})

	seen := map[*EventLoop]bool{}
	for i := 0; i < 6; i++ {
		seen[pool.GetNextLoop()] = true
	}
	require.Len(t, seen, 3)
	require.Len(t, pool.AllLoops(), 3)

	for _, l := range pool.AllLoops() {
		require.NotSame(t, base, l)
		done := make(chan struct{})
		l.RunInLoop(func() { close(done) })
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("worker loop never became ready")
		}
	}
}

func TestThreadPoolDoubleStartFails(t *testing.T) {
	base := newTestLoop(t)
	pool := NewEventLoopThreadPool(base, adapters.NewAtomicControl(), nil, false)
	require.NoError(t, pool.Start(0))
	require.Error(t, pool.Start(0))
}
