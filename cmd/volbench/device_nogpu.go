//go:build nogpu

package main

import (
	"fmt"

	"github.com/gogpu/volstream/pool"
)

// openDevice returns the named brick device, the drawer for its frames and
// a function that closes both. Only the memory device is available without
// GPU support.
func openDevice(name string) (pool.Device, frameDrawer, func(), error) {
	if name != "memory" {
		return nil, nil, nil, fmt.Errorf("device %q needs GPU support, built with nogpu", name)
	}
	return newMemDevice(), &counter{}, func() {}, nil
}
