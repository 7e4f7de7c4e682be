//go:build !nogpu

// Package gpu connects a RenderResourceContext to a GPU.
//
// A Device is the brick pool device on a gogpu/wgpu HAL device. It is
// created from a host's gpucontext.DeviceProvider, sharing the host's GPU,
// or on the noop backend for headless runs. Each Device owns the brick
// slice pipelines, built when the device is created.
//
// A Drawer is the volstream.Drawer that records the slice polygons of each
// drawn brick and submits them in one render pass per frame:
//
//	dev, err := gpu.NewDevice(provider)
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//	rc, err := volstream.NewRenderResourceContext(dev)
//	...
//	d := dev.NewDrawer()
//	d.Begin(target, viewProj)
//	res, err := rc.Render(frame, vols, d)
//	err = d.End()
package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	gpuimpl "github.com/gogpu/volstream/internal/gpu"
)

// Errors returned by NewDevice.
var (
	// ErrNilProvider is returned for a nil device provider.
	ErrNilProvider = errors.New("gpu: nil device provider")

	// ErrNoHAL is returned when the provider does not expose its HAL
	// device and queue.
	ErrNoHAL = errors.New("gpu: provider does not expose HAL types")
)

// Device is a brick pool device on a HAL device.
type Device struct {
	*gpuimpl.Device

	slices  *gpuimpl.SliceRenderer
	format  gputypes.TextureFormat
	closeFn func()
}

// NewDevice shares the GPU of a host provider. The provider must also
// implement HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue. Slices are drawn for targets in the provider's surface
// format. The host keeps ownership of the device.
func NewDevice(provider gpucontext.DeviceProvider) (*Device, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	return newDevice(gpuimpl.NewDevice(device, queue), provider.SurfaceFormat(), nil)
}

// OpenNoop opens a Device on the noop HAL backend, which accepts every
// call without touching a GPU. Slices are drawn for BGRA8 targets.
func OpenNoop() (*Device, error) {
	d, closeFn, err := gpuimpl.OpenNoop()
	if err != nil {
		return nil, err
	}
	return newDevice(d, gputypes.TextureFormatBGRA8Unorm, closeFn)
}

func newDevice(d *gpuimpl.Device, format gputypes.TextureFormat, closeFn func()) (*Device, error) {
	slices, err := gpuimpl.NewSliceRenderer(d, format)
	if err != nil {
		if closeFn != nil {
			closeFn()
		}
		return nil, err
	}
	return &Device{Device: d, slices: slices, format: format, closeFn: closeFn}, nil
}

// Format returns the color target format slices are drawn for.
func (d *Device) Format() gputypes.TextureFormat { return d.format }

// NewTarget creates an offscreen color target in the device's format.
func (d *Device) NewTarget(width, height int) (*Target, error) {
	tex, view, err := d.CreateTarget(width, height, d.format)
	if err != nil {
		return nil, err
	}
	return &Target{dev: d, tex: tex, view: view}, nil
}

// Close releases the slice pipelines, and the HAL device when it was
// opened by OpenNoop. Brick textures must be released first, usually by
// closing the RenderResourceContext.
func (d *Device) Close() {
	if d.slices != nil {
		d.slices.Destroy()
		d.slices = nil
	}
	if d.closeFn != nil {
		d.closeFn()
		d.closeFn = nil
	}
}

// Target is an offscreen color texture slices can be drawn into.
type Target struct {
	dev  *Device
	tex  hal.Texture
	view hal.TextureView
}

// View returns the render attachment view.
func (t *Target) View() hal.TextureView { return t.view }

// Destroy releases the texture and its view.
func (t *Target) Destroy() {
	if t.tex == nil {
		return
	}
	device, _ := t.dev.HAL()
	device.DestroyTextureView(t.view)
	device.DestroyTexture(t.tex)
	t.tex, t.view = nil, nil
}
