//go:build linux
// +build linux

// File: adapters/affinity_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Best-effort CPU pinning for reactor worker threads, done in pure Go
// via golang.org/x/sys/unix.SchedSetaffinity rather than cgo + pthread +
// libnuma, since this framework has no other cgo requirement.

package adapters

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// PinCurrentThread locks the calling goroutine to its current OS thread
// and restricts that thread to a single CPU core. EventLoopThreadPool.Start
// calls it once on each worker goroutine, right before that goroutine
// enters EventLoop.Loop, so the OS thread never migrates for the lifetime
// of the reactor.
func PinCurrentThread(cpu int) error {
	if cpu < 0 || cpu >= runtime.NumCPU() {
		return fmt.Errorf("adapters: cpu index %d out of range [0,%d)", cpu, runtime.NumCPU())
	}
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("adapters: sched_setaffinity: %w", err)
	}
	return nil
}
