// File: internal/normalize/normalize.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Index normalization helpers used by the loop pool for its worker count
// and for the CPU index it hands to the affinity adapter.

package normalize

import "runtime"

// WorkerCount clamps a requested EventLoopThreadPool size to [0, cap].
// A non-positive request defaults to runtime.NumCPU(), the common
// "0 means auto" convention for CPU-bound worker pools.
func WorkerCount(requested int) int {
	if requested <= 0 {
		return runtime.NumCPU()
	}
	const hardCap = 4096
	if requested > hardCap {
		return hardCap
	}
	return requested
}

// CPUIndex validates a requested CPU index against runtime.NumCPU(),
// falling back to 0 when out of range.
func CPUIndex(requested int) int {
	max := runtime.NumCPU()
	if requested < 0 || requested >= max {
		return 0
	}
	return requested
}
