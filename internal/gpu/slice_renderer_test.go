//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/volstream/brick"
	"github.com/gogpu/volstream/pool"
)

func unitPolygons(dt float64) *brick.Polygons {
	b := brick.New(brick.Params{
		Nx: 4, Ny: 4, Nz: 4,
		BBox: brick.BBox{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{1, 1, 1}},
		TBox: brick.BBox{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{1, 1, 1}},
	})
	return b.ComputePolygons(brick.Ray{Dir: mgl64.Vec3{0, 0, 1}}, mgl64.Vec3{}, dt)
}

func TestAppendSliceGeometry(t *testing.T) {
	p := unitPolygons(0.25)
	verts, idx := AppendSliceGeometry(nil, nil, p, false, 10)

	if got, want := len(verts), 5*4*sliceVertexStride; got != want {
		t.Fatalf("vertex bytes = %d, want %d", got, want)
	}
	if len(idx) != 5*6 {
		t.Fatalf("indices = %d, want 30", len(idx))
	}
	for _, i := range idx {
		if i < 10 || i >= 30 {
			t.Errorf("index %d outside [10, 30)", i)
		}
	}
	// First vertex of the first slice lies on z = 0.
	if z := math.Float32frombits(binary.LittleEndian.Uint32(verts[8:])); z != 0 {
		t.Errorf("first slice z = %v, want 0", z)
	}

	rev, _ := AppendSliceGeometry(nil, nil, p, true, 0)
	if z := math.Float32frombits(binary.LittleEndian.Uint32(rev[8:])); z != 1 {
		t.Errorf("reversed first slice z = %v, want 1", z)
	}
}

func newTestSliceRenderer(t *testing.T) (*Device, *SliceRenderer) {
	t.Helper()
	if _, err := CompileSliceShader(); err != nil {
		t.Skipf("naga cannot compile the slice shader: %v", err)
	}
	device, queue, cleanup := createNoopDevice(t)
	t.Cleanup(cleanup)
	d := NewDevice(device, queue)
	r, err := NewSliceRenderer(d, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("NewSliceRenderer() error = %v", err)
	}
	t.Cleanup(r.Destroy)
	return d, r
}

func TestSliceRendererFlush(t *testing.T) {
	d, r := newTestSliceRenderer(t)
	tex, err := d.CreateTexture(pool.TextureDesc{Width: 4, Height: 4, Depth: 4, Format: pool.FormatR8})
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroyTexture(tex)

	u := SliceUniforms{MVP: mgl32.Ident4(), OpacityScale: 1, SliceRatio: 1, IntensityScale: 1}
	if err := r.Add(tex.(*Texture), unitPolygons(0.25), false, u); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := r.Add(tex.(*Texture), unitPolygons(0.5), true, u); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if b, n := r.Pending(); b != 2 || n != 30+18 {
		t.Errorf("Pending() = %d, %d; want 2, 48", b, n)
	}

	target, view, err := d.CreateTarget(64, 64, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatal(err)
	}
	defer d.device.DestroyTexture(target)
	defer d.device.DestroyTextureView(view)

	if err := r.Flush(view); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if b, _ := r.Pending(); b != 0 {
		t.Errorf("Flush() left %d draws", b)
	}
	if err := r.Flush(view); err != nil {
		t.Errorf("Flush() of an empty batch error = %v", err)
	}
}

func TestSliceRendererRejects(t *testing.T) {
	d, r := newTestSliceRenderer(t)
	u := SliceUniforms{MVP: mgl32.Ident4()}

	labels, err := d.CreateTexture(pool.TextureDesc{Width: 4, Height: 4, Depth: 4, Format: pool.FormatR32})
	if err != nil {
		t.Fatal(err)
	}
	defer d.DestroyTexture(labels)
	if err := r.Add(labels.(*Texture), unitPolygons(0.25), false, u); !errors.Is(err, ErrNotFilterable) {
		t.Errorf("Add(R32) error = %v, want ErrNotFilterable", err)
	}

	tex, err := d.CreateTexture(pool.TextureDesc{Width: 4, Height: 4, Depth: 4, Format: pool.FormatR16})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Add(tex.(*Texture), unitPolygons(0.25), false, u); err != nil {
		t.Fatal(err)
	}
	if err := r.Flush(nil); !errors.Is(err, ErrNoTarget) {
		t.Errorf("Flush(nil) error = %v, want ErrNoTarget", err)
	}
	if b, _ := r.Pending(); b != 0 {
		t.Error("failed Flush() kept the batch")
	}

	d.DestroyTexture(tex)
	if err := r.Add(tex.(*Texture), unitPolygons(0.25), false, u); !errors.Is(err, ErrReleased) {
		t.Errorf("Add(released) error = %v, want ErrReleased", err)
	}
	if _, _, err := d.CreateTarget(0, 1, gputypes.TextureFormatBGRA8Unorm); err == nil {
		t.Error("CreateTarget() accepted a zero size")
	}
}
