//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
)

// OpenNoop opens a Device on the noop HAL backend, which accepts every call
// without touching a GPU. The returned function destroys the device.
func OpenNoop() (*Device, func(), error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("gpu: create noop instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, errors.New("gpu: noop backend has no adapter")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, fmt.Errorf("gpu: open noop adapter: %w", err)
	}
	closeFn := func() {
		open.Device.Destroy()
		instance.Destroy()
	}
	return NewDevice(open.Device, open.Queue), closeFn, nil
}
