//go:build !nogpu

package gpu

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/volstream"
	gpuimpl "github.com/gogpu/volstream/internal/gpu"
)

// Drawer draws bricks as view-aligned slices. Draws between Begin and End
// are batched and submitted by End in one render pass.
//
// Label bricks are stored as R32 textures, which the slice shader cannot
// filter. They are counted by Skipped and not drawn.
type Drawer struct {
	r *gpuimpl.SliceRenderer

	target   hal.TextureView
	viewProj mgl32.Mat4

	// OpacityScale multiplies sampled opacity. Default 1.
	OpacityScale float32
	// IntensityScale multiplies sampled intensity. Default 1.
	IntensityScale float32

	skipped int
}

var _ volstream.Drawer = (*Drawer)(nil)

// NewDrawer returns a Drawer using the device's slice pipelines.
func (d *Device) NewDrawer() *Drawer {
	return &Drawer{r: d.slices, OpacityScale: 1, IntensityScale: 1}
}

// Begin starts a frame drawn into target with the given view-projection
// matrix, which maps volume coordinates to clip space. Draws queued since
// the last End are dropped.
func (d *Drawer) Begin(target hal.TextureView, viewProj mgl32.Mat4) {
	d.r.Reset()
	d.target = target
	d.viewProj = viewProj
	d.skipped = 0
}

// Draw queues the slices of one brick.
func (d *Drawer) Draw(call volstream.DrawCall) error {
	tex, ok := call.GPU.(*gpuimpl.Texture)
	if !ok {
		return gpuimpl.ErrForeignTexture
	}
	if !gpuimpl.Filterable(tex.Desc().Format) {
		d.skipped++
		return nil
	}
	u := gpuimpl.SliceUniforms{
		MVP:            d.viewProj,
		OpacityScale:   d.OpacityScale,
		SliceRatio:     sliceRatio(call),
		IntensityScale: d.IntensityScale,
	}
	if err := d.r.Add(tex, call.Polygons, call.Reverse, u); err != nil {
		return fmt.Errorf("gpu: draw brick %d: %w", call.Brick.ID(), err)
	}
	return nil
}

// End submits the frame's draws.
func (d *Drawer) End() error {
	return d.r.Flush(d.target)
}

// Skipped returns the number of bricks skipped since Begin.
func (d *Drawer) Skipped() int { return d.skipped }

// sliceRatio is the slice distance in voxels of the finest axis.
func sliceRatio(call volstream.DrawCall) float32 {
	if call.Polygons == nil || call.Texture == nil {
		return 1
	}
	s := call.Texture.Spacing()
	voxel := math.Min(s.X(), math.Min(s.Y(), s.Z()))
	if voxel <= 0 {
		return 1
	}
	return float32(call.Polygons.Dt / voxel)
}
