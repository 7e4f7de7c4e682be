//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/volstream/brick"
)

// sliceVertexStride is the byte stride of one slice vertex:
//
//	position (vec3<f32>) = 12 bytes (location 0)
//	texcoord (vec3<f32>) = 12 bytes (location 1)
const sliceVertexStride = 24

// sliceUniformSize is mvp (mat4x4<f32>) plus params (vec4<f32>).
const sliceUniformSize = 80

var (
	// ErrNotFilterable is returned when a brick texture cannot be sampled
	// by the slice shader.
	ErrNotFilterable = errors.New("gpu: texture format is not filterable")

	// ErrNoTarget is returned when a batch is flushed without a target.
	ErrNoTarget = errors.New("gpu: no render target")
)

// SliceUniforms are the per-brick parameters of the slice shader.
type SliceUniforms struct {
	MVP mgl32.Mat4

	// OpacityScale multiplies sampled opacity.
	OpacityScale float32
	// SliceRatio is the slice distance over the voxel size, the exponent
	// of the opacity correction.
	SliceRatio float32
	// IntensityScale multiplies sampled intensity.
	IntensityScale float32
}

func (u SliceUniforms) bytes() []byte {
	buf := make([]byte, sliceUniformSize)
	for i, v := range u.MVP {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[64:], math.Float32bits(u.OpacityScale))
	binary.LittleEndian.PutUint32(buf[68:], math.Float32bits(u.SliceRatio))
	binary.LittleEndian.PutUint32(buf[72:], math.Float32bits(u.IntensityScale))
	return buf
}

// AppendSliceGeometry appends the interleaved vertices and triangle-fan
// indices of every polygon of p in draw order. Indices start at base, the
// number of vertices already in verts.
func AppendSliceGeometry(verts []byte, indices []uint32, p *brick.Polygons, reverse bool, base uint32) ([]byte, []uint32) {
	var v [4]byte
	put := func(f float64) {
		binary.LittleEndian.PutUint32(v[:], math.Float32bits(float32(f)))
		verts = append(verts, v[:]...)
	}
	for i := range p.Len() {
		pos, tex := p.Polygon(i, reverse)
		n := len(pos) / 3
		if n < brick.MinPolygonVertices {
			continue
		}
		for j := range n {
			put(pos[3*j])
			put(pos[3*j+1])
			put(pos[3*j+2])
			put(tex[3*j])
			put(tex[3*j+1])
			put(tex[3*j+2])
		}
		for _, k := range brick.FanIndices(n) {
			indices = append(indices, base+k)
		}
		base += uint32(n) //nolint:gosec // n <= MaxPolygonVertices
	}
	return verts, indices
}

// sliceDraw is one brick of a batch.
type sliceDraw struct {
	view       hal.TextureView
	reverse    bool
	firstIndex uint32
	indexCount uint32
	uniforms   SliceUniforms
}

// SliceRenderer draws brick slice polygons with the brick slice shader.
// Draws are batched on the CPU and recorded into one render pass by Flush.
type SliceRenderer struct {
	dev    *Device
	format gputypes.TextureFormat

	shader     hal.ShaderModule
	layout     hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	sampler    hal.Sampler
	// pipelines[0] blends front to back, pipelines[1] back to front.
	pipelines [2]hal.RenderPipeline

	verts   []byte
	indices []uint32
	draws   []sliceDraw
}

// NewSliceRenderer compiles the slice shader and creates its pipelines for
// color targets of the given format.
func NewSliceRenderer(d *Device, format gputypes.TextureFormat) (*SliceRenderer, error) {
	r := &SliceRenderer{dev: d, format: format}
	if err := r.createPipelines(); err != nil {
		r.Destroy()
		return nil, err
	}
	slogger().Info("gpu: slice pipelines ready", "format", format)
	return r, nil
}

func (r *SliceRenderer) createPipelines() error {
	device := r.dev.device

	shader, err := r.dev.CreateSliceShaderModule()
	if err != nil {
		return err
	}
	r.shader = shader

	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "brick_slice_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension3D,
				},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: create slice layout: %w", err)
	}
	r.layout = layout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "brick_slice_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{r.layout},
	})
	if err != nil {
		return fmt.Errorf("gpu: create slice pipeline layout: %w", err)
	}
	r.pipeLayout = pipeLayout

	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "brick_slice_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		Anisotropy:   1,
	})
	if err != nil {
		return fmt.Errorf("gpu: create slice sampler: %w", err)
	}
	r.sampler = sampler

	frontToBack := gputypes.BlendState{
		Color: gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorOneMinusDstAlpha,
			DstFactor: gputypes.BlendFactorOne,
			Operation: gputypes.BlendOperationAdd,
		},
		Alpha: gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorOneMinusDstAlpha,
			DstFactor: gputypes.BlendFactorOne,
			Operation: gputypes.BlendOperationAdd,
		},
	}
	backToFront := gputypes.BlendStatePremultiplied()
	for i, blend := range []gputypes.BlendState{frontToBack, backToFront} {
		p, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
			Label:  fmt.Sprintf("brick_slice_pipeline_%d", i),
			Layout: r.pipeLayout,
			Vertex: hal.VertexState{
				Module:     r.shader,
				EntryPoint: "vs_main",
				Buffers:    sliceVertexLayout(),
			},
			Fragment: &hal.FragmentState{
				Module:     r.shader,
				EntryPoint: "fs_main",
				Targets: []gputypes.ColorTargetState{{
					Format:    r.format,
					Blend:     &blend,
					WriteMask: gputypes.ColorWriteMaskAll,
				}},
			},
			Primitive: gputypes.PrimitiveState{
				Topology: gputypes.PrimitiveTopologyTriangleList,
				CullMode: gputypes.CullModeNone,
			},
			Multisample: gputypes.MultisampleState{
				Count: 1,
				Mask:  0xFFFFFFFF,
			},
		})
		if err != nil {
			return fmt.Errorf("gpu: create slice pipeline: %w", err)
		}
		r.pipelines[i] = p
	}
	return nil
}

func sliceVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{{
		ArrayStride: sliceVertexStride,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},  // position
			{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1}, // texcoord
		},
	}}
}

// Add queues the slices of one brick. Bricks with no polygon are ignored.
func (r *SliceRenderer) Add(tex *Texture, p *brick.Polygons, reverse bool, u SliceUniforms) error {
	if tex.released {
		return ErrReleased
	}
	if !Filterable(tex.desc.Format) {
		return fmt.Errorf("%w: %s", ErrNotFilterable, tex.desc.Format)
	}
	first := uint32(len(r.indices))                   //nolint:gosec // batch sizes fit uint32
	base := uint32(len(r.verts) / sliceVertexStride) //nolint:gosec // batch sizes fit uint32
	r.verts, r.indices = AppendSliceGeometry(r.verts, r.indices, p, reverse, base)
	n := uint32(len(r.indices)) - first //nolint:gosec // batch sizes fit uint32
	if n == 0 {
		return nil
	}
	r.draws = append(r.draws, sliceDraw{
		view:       tex.view,
		reverse:    reverse,
		firstIndex: first,
		indexCount: n,
		uniforms:   u,
	})
	return nil
}

// Pending returns the number of queued bricks and triangle indices.
func (r *SliceRenderer) Pending() (bricks, indices int) {
	return len(r.draws), len(r.indices)
}

// Reset drops the queued draws.
func (r *SliceRenderer) Reset() {
	r.verts = r.verts[:0]
	r.indices = r.indices[:0]
	r.draws = r.draws[:0]
}

// frameResources are the buffers and bind groups of one flushed batch.
type frameResources struct {
	vertBuf    hal.Buffer
	indexBuf   hal.Buffer
	uniformBuf []hal.Buffer
	bindGroups []hal.BindGroup
}

func (f *frameResources) destroy(device hal.Device) {
	for _, g := range f.bindGroups {
		device.DestroyBindGroup(g)
	}
	for _, b := range f.uniformBuf {
		device.DestroyBuffer(b)
	}
	if f.indexBuf != nil {
		device.DestroyBuffer(f.indexBuf)
	}
	if f.vertBuf != nil {
		device.DestroyBuffer(f.vertBuf)
	}
}

// Flush records the queued draws into one render pass over target, submits
// it and waits for the GPU. The target keeps its contents. The batch is
// empty afterwards, also on failure.
func (r *SliceRenderer) Flush(target hal.TextureView) error {
	defer r.Reset()
	if len(r.draws) == 0 {
		return nil
	}
	if target == nil {
		return ErrNoTarget
	}
	device, queue := r.dev.device, r.dev.queue

	var res frameResources
	defer res.destroy(device)

	var err error
	if res.vertBuf, err = r.upload("brick_slice_verts", r.verts, gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	idx := make([]byte, 4*len(r.indices))
	for i, v := range r.indices {
		binary.LittleEndian.PutUint32(idx[4*i:], v)
	}
	if res.indexBuf, err = r.upload("brick_slice_indices", idx, gputypes.BufferUsageIndex|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	for _, d := range r.draws {
		ub, err := r.upload("brick_slice_uniform", d.uniforms.bytes(), gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
		if err != nil {
			return err
		}
		res.uniformBuf = append(res.uniformBuf, ub)
		g, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  "brick_slice_bind",
			Layout: r.layout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Size: sliceUniformSize}},
				{Binding: 1, Resource: gputypes.TextureViewBinding{TextureView: d.view.NativeHandle()}},
				{Binding: 2, Resource: gputypes.SamplerBinding{Sampler: r.sampler.NativeHandle()}},
			},
		})
		if err != nil {
			return fmt.Errorf("gpu: create slice bind group: %w", err)
		}
		res.bindGroups = append(res.bindGroups, g)
	}

	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "brick_slice_encoder"})
	if err != nil {
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("brick_slices"); err != nil {
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "brick_slice_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    target,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		}},
	})
	rp.SetVertexBuffer(0, res.vertBuf, 0)
	rp.SetIndexBuffer(res.indexBuf, gputypes.IndexFormatUint32, 0)
	for i, d := range r.draws {
		if d.reverse {
			rp.SetPipeline(r.pipelines[1])
		} else {
			rp.SetPipeline(r.pipelines[0])
		}
		rp.SetBindGroup(0, res.bindGroups[i], nil)
		rp.DrawIndexed(d.indexCount, 1, d.firstIndex, 0, 0)
	}
	rp.End()

	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	defer device.FreeCommandBuffer(cmd)
	if _, err := queue.Submit([]hal.CommandBuffer{cmd}); err != nil {
		return fmt.Errorf("gpu: submit slices: %w", err)
	}
	if err := device.WaitIdle(); err != nil {
		return fmt.Errorf("gpu: wait for slices: %w", err)
	}
	slogger().Debug("gpu: slices flushed", "bricks", len(r.draws), "indices", len(r.indices))
	return nil
}

func (r *SliceRenderer) upload(label string, data []byte, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := r.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create %s: %w", label, err)
	}
	if err := r.dev.queue.WriteBuffer(buf, 0, data); err != nil {
		r.dev.device.DestroyBuffer(buf)
		return nil, fmt.Errorf("gpu: write %s: %w", label, err)
	}
	return buf, nil
}

// Destroy releases the pipelines. It is safe to call more than once.
func (r *SliceRenderer) Destroy() {
	device := r.dev.device
	for i, p := range r.pipelines {
		if p != nil {
			device.DestroyRenderPipeline(p)
			r.pipelines[i] = nil
		}
	}
	if r.sampler != nil {
		device.DestroySampler(r.sampler)
		r.sampler = nil
	}
	if r.pipeLayout != nil {
		device.DestroyPipelineLayout(r.pipeLayout)
		r.pipeLayout = nil
	}
	if r.layout != nil {
		device.DestroyBindGroupLayout(r.layout)
		r.layout = nil
	}
	if r.shader != nil {
		device.DestroyShaderModule(r.shader)
		r.shader = nil
	}
}

// CreateTarget creates a 2-D color texture the slice renderer can draw
// into, with its view.
func (d *Device) CreateTarget(width, height int, format gputypes.TextureFormat) (hal.Texture, hal.TextureView, error) {
	if width <= 0 || height <= 0 {
		return nil, nil, fmt.Errorf("gpu: invalid target size %dx%d", width, height)
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: "brick_slice_target",
		//nolint:gosec // G115: size validated above
		Size:          hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("gpu: create target: %w", err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "brick_slice_target_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, nil, fmt.Errorf("gpu: create target view: %w", err)
	}
	return tex, view, nil
}
