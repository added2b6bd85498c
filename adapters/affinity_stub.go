//go:build !linux
// +build !linux

// File: adapters/affinity_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package adapters

import "fmt"

// PinCurrentThread errors outside Linux; the reactor's poller is
// Linux-only, so non-Linux builds only need to compile, not to actually
// pin.
func PinCurrentThread(cpu int) error {
	return fmt.Errorf("adapters: cpu affinity not supported on this platform")
}
