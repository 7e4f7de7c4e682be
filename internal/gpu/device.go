//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/volstream/brick"
	"github.com/gogpu/volstream/pool"
)

// Device errors.
var (
	// ErrForeignTexture is returned when a texture was not created by this
	// device.
	ErrForeignTexture = errors.New("gpu: texture not created by this device")

	// ErrReleased is returned when writing to a destroyed texture.
	ErrReleased = errors.New("gpu: texture already released")

	// ErrRegionMismatch is returned when a region does not match the
	// texture's extent or texel size.
	ErrRegionMismatch = errors.New("gpu: region does not match texture")
)

// Texture is a 3-D brick texture and its default view.
type Texture struct {
	tex      hal.Texture
	view     hal.TextureView
	desc     pool.TextureDesc
	released bool
}

// Desc returns the texture's descriptor.
func (t *Texture) Desc() pool.TextureDesc { return t.desc }

// Raw returns the underlying HAL texture.
func (t *Texture) Raw() hal.Texture { return t.tex }

// View returns the 3-D texture view bound by the slice shader.
func (t *Texture) View() hal.TextureView { return t.view }

// Device allocates brick textures on a HAL device.
type Device struct {
	device hal.Device
	queue  hal.Queue

	mu        sync.Mutex
	live      int
	liveBytes int64
}

// NewDevice wraps a HAL device and its queue.
func NewDevice(device hal.Device, queue hal.Queue) *Device {
	return &Device{device: device, queue: queue}
}

// HAL returns the wrapped device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.device, d.queue }

// CreateTexture creates a 3-D texture that can be sampled and written.
func (d *Device) CreateTexture(desc pool.TextureDesc) (pool.Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 || desc.Depth <= 0 {
		return nil, fmt.Errorf("gpu: invalid texture extent %dx%dx%d", desc.Width, desc.Height, desc.Depth)
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		//nolint:gosec // G115: extent validated above
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: uint32(desc.Depth),
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension3D,
		Format:        ToWGPUFormat(desc.Format),
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create texture %s: %w", desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        ToWGPUFormat(desc.Format),
		Dimension:     gputypes.TextureViewDimension3D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, fmt.Errorf("gpu: create texture view %s: %w", desc.Label, err)
	}

	d.mu.Lock()
	d.live++
	d.liveBytes += desc.Bytes()
	d.mu.Unlock()

	slogger().Debug("gpu: texture created", "label", desc.Label, "format", desc.Format, "bytes", desc.Bytes())
	return &Texture{tex: tex, view: view, desc: desc}, nil
}

// WriteTexture uploads a region into the whole texture. Strided regions are
// passed through with their row and image pitch.
func (d *Device) WriteTexture(t pool.Texture, r brick.Region) error {
	tex, ok := t.(*Texture)
	if !ok {
		return ErrForeignTexture
	}
	if tex.released {
		return ErrReleased
	}
	desc := tex.desc
	if r.Nx != desc.Width || r.Ny != desc.Height || r.Nz != desc.Depth || r.BytesPerVoxel != desc.Format.BytesPerTexel() {
		return fmt.Errorf("%w: %dx%dx%d/%d into %dx%dx%d %s", ErrRegionMismatch,
			r.Nx, r.Ny, r.Nz, r.BytesPerVoxel, desc.Width, desc.Height, desc.Depth, desc.Format)
	}
	if !r.Valid() {
		return fmt.Errorf("%w: short data", ErrRegionMismatch)
	}

	//nolint:gosec // G115: extent and strides validated above
	err := d.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  tex.tex,
			MipLevel: 0,
		},
		r.Data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(r.BytesPerRow),
			RowsPerImage: uint32(r.RowsPerImage),
		},
		&hal.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: uint32(desc.Depth),
		},
	)
	if err != nil {
		return fmt.Errorf("gpu: write texture %s: %w", desc.Label, err)
	}
	return nil
}

// DestroyTexture releases the texture and its view. Destroying twice is a
// no-op.
func (d *Device) DestroyTexture(t pool.Texture) {
	tex, ok := t.(*Texture)
	if !ok || tex.released {
		return
	}
	tex.released = true
	d.device.DestroyTextureView(tex.view)
	d.device.DestroyTexture(tex.tex)

	d.mu.Lock()
	d.live--
	d.liveBytes -= tex.desc.Bytes()
	d.mu.Unlock()
}

// Live returns the number and total size of textures not yet destroyed.
func (d *Device) Live() (count int, bytes int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live, d.liveBytes
}

var _ pool.Device = (*Device)(nil)
