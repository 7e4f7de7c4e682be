package volume

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gogpu/volstream/brick"
	"github.com/gogpu/volstream/loader"
)

// writeLevel writes a packed raw level file of n³ voxels tiled by bs and
// returns its source table. Every voxel of tile i holds byte i+fill.
func writeLevel(t *testing.T, dir string, n, bs int, fill byte) Source {
	t.Helper()
	var data []byte
	var locs []brick.Locator
	tiles := tileSpans(n, bs)
	for _, z := range tiles {
		for _, y := range tiles {
			for _, x := range tiles {
				size := x.n * y.n * z.n
				locs = append(locs, brick.Locator{Offset: int64(len(data)), Size: int64(size)})
				for i := 0; i < size; i++ {
					data = append(data, byte(len(locs)-1)+fill)
				}
			}
		}
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%d.raw", filepath.Base(t.Name()), fill))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return Source{Files: []loader.File{{Path: path}}, Locators: locs}
}

func newTestPyramid(t *testing.T) *Texture {
	t.Helper()
	dir := t.TempDir()
	l := loader.New()
	t.Cleanup(func() { l.Close() })

	tex, err := NewPyramid(PyramidSpec{
		Name:          "pyr",
		BaseSpacing:   mgl64.Vec3{0.5, 0.5, 2},
		Kind:          brick.KindIntensity,
		BytesPerVoxel: 1,
		Loader:        l,
		Levels: []LevelDesc{
			{Nx: 8, Ny: 8, Nz: 8, BrickNx: 4, BrickNy: 4, BrickNz: 4, Scale: mgl64.Vec3{1, 1, 1},
				Sources: [][]Source{{writeLevel(t, dir, 8, 4, 1), writeLevel(t, dir, 8, 4, 20)}}},
			{Nx: 4, Ny: 4, Nz: 4, BrickNx: 4, BrickNy: 4, BrickNz: 4, Scale: mgl64.Vec3{2, 2, 2},
				Sources: [][]Source{{writeLevel(t, dir, 4, 4, 40), writeLevel(t, dir, 4, 4, 60)}}},
		},
	})
	if err != nil {
		t.Fatalf("NewPyramid() error = %v", err)
	}
	return tex
}

type gridState struct {
	dims    [3]int
	spacing mgl64.Vec3
	boxes   []brick.BBox
	tboxes  []brick.BBox
	locs    []brick.Locator
}

func snapshot(tex *Texture) gridState {
	var s gridState
	s.dims[0], s.dims[1], s.dims[2] = tex.Dims()
	s.spacing = tex.Spacing()
	for _, b := range tex.Bricks() {
		s.boxes = append(s.boxes, b.BBox())
		s.tboxes = append(s.tboxes, b.TBox())
		loc, _ := b.Locator()
		s.locs = append(s.locs, loc)
	}
	return s
}

func equalState(a, b gridState) bool {
	if a.dims != b.dims || a.spacing != b.spacing || len(a.boxes) != len(b.boxes) {
		return false
	}
	for i := range a.boxes {
		if a.boxes[i] != b.boxes[i] || a.tboxes[i] != b.tboxes[i] || a.locs[i] != b.locs[i] {
			return false
		}
	}
	return true
}

func TestPyramidLevels(t *testing.T) {
	tex := newTestPyramid(t)
	if !tex.IsPyramid() || tex.LevelCount() != 2 || tex.Level() != 0 {
		t.Fatalf("IsPyramid=%v LevelCount=%d Level=%d", tex.IsPyramid(), tex.LevelCount(), tex.Level())
	}
	if len(tex.Bricks()) != 8 {
		t.Fatalf("level 0 bricks = %d, want 8", len(tex.Bricks()))
	}
	if got := tex.Bricks()[1].BBox().Min[0]; got != 2 {
		t.Errorf("tile 1 min x = %v, want 2 (no overlap)", got)
	}
	if got := tex.LevelSpacing(1); got != (mgl64.Vec3{1, 1, 4}) {
		t.Errorf("LevelSpacing(1) = %v", got)
	}

	if tex.SetLevel(0) {
		t.Error("SetLevel to the active level should be a no-op")
	}
	if !tex.SetLevel(99) || tex.Level() != 1 {
		t.Errorf("SetLevel(99) should clamp to 1, got %d", tex.Level())
	}
	if len(tex.Bricks()) != 1 || tex.BBox().Max != (mgl64.Vec3{4, 4, 16}) {
		t.Errorf("level 1 grid: %d bricks, bbox %v", len(tex.Bricks()), tex.BBox())
	}
	tex.SetLevel(-3)
	if tex.Level() != 0 {
		t.Errorf("SetLevel(-3) = level %d, want 0", tex.Level())
	}
}

func TestPyramidLevelSwitchIdempotent(t *testing.T) {
	tex := newTestPyramid(t)
	orig := snapshot(tex)
	v := tex.DataVersion()

	for i := 0; i < 3; i++ {
		tex.SetLevel(1)
		tex.SetLevel(0)
	}
	if !equalState(orig, snapshot(tex)) {
		t.Error("L -> M -> L did not restore the original grid")
	}
	if tex.DataVersion() == v {
		t.Error("level switches did not bump the data version")
	}
}

func TestPyramidLoadAndFrees(t *testing.T) {
	tex := newTestPyramid(t)
	if err := tex.LoadData(context.Background()); err != nil {
		t.Fatalf("LoadData() error = %v", err)
	}
	old := tex.Bricks()
	for i, b := range old {
		if !b.Cached() {
			t.Fatalf("brick %d not cached after LoadData", i)
		}
	}

	r, err := old[3].TexDataBrk(context.Background(), brick.Intensity, tex.Fetcher())
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Data[0]; got != 4 {
		t.Errorf("brick 3 voxel = %d, want 4", got)
	}

	tex.SetLevel(1)
	for i, b := range old {
		if b.Cached() {
			t.Errorf("brick %d of the old level still cached", i)
		}
	}
}

func TestPyramidFrameAndChannel(t *testing.T) {
	tex := newTestPyramid(t)
	if err := tex.SetFrameAndChannel(0, 1); err != nil {
		t.Fatal(err)
	}
	b := tex.Bricks()[0]
	r, err := b.TexDataBrk(context.Background(), brick.Intensity, tex.Fetcher())
	if err != nil {
		t.Fatal(err)
	}
	if r.Data[0] != 20 {
		t.Errorf("channel 1 voxel = %d, want 20", r.Data[0])
	}

	if err := tex.SetFrameAndChannel(0, 0); err != nil {
		t.Fatal(err)
	}
	if b.Cached() {
		t.Error("channel switch kept the decoded buffer")
	}
	if err := tex.SetFrameAndChannel(1, 0); err == nil {
		t.Error("out-of-range frame should fail")
	}
}

func TestPyramidLoadFailure(t *testing.T) {
	l := loader.New()
	defer l.Close()
	tex, err := NewPyramid(PyramidSpec{
		Kind: brick.KindIntensity, BytesPerVoxel: 1, Loader: l,
		Levels: []LevelDesc{{Nx: 2, Ny: 2, Nz: 2, Sources: [][]Source{{{
			Files:    []loader.File{{Path: filepath.Join(t.TempDir(), "missing.raw")}},
			Locators: []brick.Locator{{Size: 8}},
		}}}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := tex.LoadData(context.Background()); err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadData() error = %v, want not-exist", err)
	}
	if tex.Bricks()[0].Cached() {
		t.Error("failed load left a cached buffer")
	}
}

func TestNewPyramidErrors(t *testing.T) {
	l := loader.New()
	defer l.Close()
	tests := []struct {
		name string
		spec PyramidSpec
	}{
		{"no levels", PyramidSpec{Kind: brick.KindIntensity, BytesPerVoxel: 1, Loader: l}},
		{"bad width", PyramidSpec{Kind: brick.KindIntensity, BytesPerVoxel: 4, Loader: l,
			Levels: []LevelDesc{{Nx: 1, Ny: 1, Nz: 1, Sources: [][]Source{{{}}}}}}},
		{"no loader", PyramidSpec{Kind: brick.KindIntensity, BytesPerVoxel: 1,
			Levels: []LevelDesc{{Nx: 1, Ny: 1, Nz: 1, Sources: [][]Source{{{}}}}}}},
		{"zero level", PyramidSpec{Kind: brick.KindIntensity, BytesPerVoxel: 1, Loader: l,
			Levels: []LevelDesc{{Nx: 0, Ny: 1, Nz: 1, Sources: [][]Source{{{}}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPyramid(tt.spec); err == nil {
				t.Error("NewPyramid() should fail")
			}
		})
	}
}

func TestPyramidLevelSwitchKeepsRequestedChannel(t *testing.T) {
	dir := t.TempDir()
	l := loader.New()
	defer l.Close()
	tex, err := NewPyramid(PyramidSpec{
		Kind: brick.KindIntensity, BytesPerVoxel: 1, Loader: l,
		Levels: []LevelDesc{
			{Nx: 8, Ny: 8, Nz: 8, BrickNx: 4, BrickNy: 4, BrickNz: 4, Scale: mgl64.Vec3{1, 1, 1},
				Sources: [][]Source{{writeLevel(t, dir, 8, 4, 1), writeLevel(t, dir, 8, 4, 20)}}},
			{Nx: 4, Ny: 4, Nz: 4, BrickNx: 4, BrickNy: 4, BrickNz: 4, Scale: mgl64.Vec3{2, 2, 2},
				Sources: [][]Source{{writeLevel(t, dir, 4, 4, 40)}}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := tex.SetFrameAndChannel(0, 1); err != nil {
		t.Fatal(err)
	}

	tex.SetLevel(1)
	if _, c := tex.FrameAndChannel(); c != 0 {
		t.Errorf("level 1 channel = %d, want 0", c)
	}
	tex.SetLevel(0)
	if _, c := tex.FrameAndChannel(); c != 1 {
		t.Errorf("level 0 channel after round trip = %d, want 1", c)
	}
	r, err := tex.Bricks()[0].TexDataBrk(context.Background(), brick.Intensity, tex.Fetcher())
	if err != nil {
		t.Fatal(err)
	}
	if r.Data[0] != 20 {
		t.Errorf("voxel = %d, want 20 from channel 1", r.Data[0])
	}
}
