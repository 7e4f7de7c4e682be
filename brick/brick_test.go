package brick

import (
	"context"
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

type fetcherFunc func(ctx context.Context, loc Locator, shape Shape) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, loc Locator, shape Shape) ([]byte, error) {
	return f(ctx, loc, shape)
}

func gridBrick(ox, oy, oz int) *Brick {
	return New(Params{
		Nx: 2, Ny: 2, Nz: 2,
		Ox: ox, Oy: oy, Oz: oz,
		BytesPerVoxel: [NumComponents]int{1},
		BBox:          BBox{Max: mgl64.Vec3{1, 1, 1}},
		TBox:          BBox{Max: mgl64.Vec3{1, 1, 1}},
	})
}

func TestTexDataView(t *testing.T) {
	buf := NewBuffer(4, 4, 4, 1)
	for i := range buf.Data {
		buf.Data[i] = byte(i)
	}
	b := gridBrick(2, 1, 1)

	r, ok := b.TexData(Intensity, buf)
	if !ok {
		t.Fatal("TexData() failed")
	}
	if r.Tight() {
		t.Error("region into a larger buffer should be strided")
	}
	// Voxel (2,1,1) in a 4x4x4 buffer.
	if got, want := r.Row(0, 0)[0], byte((1*4+1)*4+2); got != want {
		t.Errorf("first voxel = %d, want %d", got, want)
	}
	packed := r.Pack()
	if len(packed) != 8 {
		t.Fatalf("Pack() len = %d, want 8", len(packed))
	}
	if got, want := packed[7], byte((2*4+2)*4+3); got != want {
		t.Errorf("last voxel = %d, want %d", got, want)
	}

	// The view borrows the buffer.
	buf.Data[(1*4+1)*4+2] = 200
	if r.Row(0, 0)[0] != 200 {
		t.Error("region does not alias the source buffer")
	}
}

func TestTexDataRejects(t *testing.T) {
	b := gridBrick(3, 0, 0)
	tests := []struct {
		name string
		buf  *Buffer
		c    Component
	}{
		{"nil buffer", nil, Intensity},
		{"out of bounds", NewBuffer(4, 4, 4, 1), Intensity},
		{"width mismatch", NewBuffer(8, 8, 8, 2), Intensity},
		{"empty component", NewBuffer(8, 8, 8, 1), Mask},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := b.TexData(tt.c, tt.buf); ok {
				t.Error("TexData() should fail")
			}
		})
	}
}

func TestTexDataBrk(t *testing.T) {
	loc := Locator{File: 1, Offset: 16, Size: 8}
	b := New(Params{Nx: 2, Ny: 2, Nz: 2, BytesPerVoxel: [NumComponents]int{1}, Locator: &loc})

	calls := 0
	full := fetcherFunc(func(_ context.Context, got Locator, shape Shape) ([]byte, error) {
		calls++
		if got != loc {
			t.Errorf("Fetch() locator = %+v, want %+v", got, loc)
		}
		return make([]byte, shape.Bytes()), nil
	})

	r, err := b.TexDataBrk(context.Background(), Intensity, full)
	if err != nil {
		t.Fatalf("TexDataBrk() error = %v", err)
	}
	if !r.Tight() || r.Bytes() != 8 {
		t.Errorf("TexDataBrk() region = %+v", r)
	}
	if !b.Cached() || b.CacheBytes() != 8 {
		t.Errorf("Cached() = %v, CacheBytes() = %d", b.Cached(), b.CacheBytes())
	}
	if _, err := b.TexDataBrk(context.Background(), Intensity, full); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}
	if n := b.FreeCache(); n != 8 || b.Cached() {
		t.Errorf("FreeCache() = %d, Cached() = %v", n, b.Cached())
	}
}

func TestTexDataBrkFailureLeavesNoCache(t *testing.T) {
	errIO := errors.New("io")
	tests := []struct {
		name string
		f    Fetcher
		want error
	}{
		{"fetch error", fetcherFunc(func(context.Context, Locator, Shape) ([]byte, error) {
			return nil, errIO
		}), errIO},
		{"short read", fetcherFunc(func(context.Context, Locator, Shape) ([]byte, error) {
			return make([]byte, 5), nil
		}), ErrIncomplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(Params{Nx: 2, Ny: 2, Nz: 2, BytesPerVoxel: [NumComponents]int{1}, Locator: &Locator{}})
			_, err := b.TexDataBrk(context.Background(), Intensity, tt.f)
			if !errors.Is(err, tt.want) {
				t.Errorf("TexDataBrk() error = %v, want %v", err, tt.want)
			}
			if b.Cached() {
				t.Error("failed decode left a cached buffer")
			}
		})
	}

	b := New(Params{Nx: 2, Ny: 2, Nz: 2, BytesPerVoxel: [NumComponents]int{1}})
	if _, err := b.TexDataBrk(context.Background(), Intensity, nil); !errors.Is(err, ErrNoLocator) {
		t.Errorf("TexDataBrk() without locator error = %v, want ErrNoLocator", err)
	}
}

func TestSetLocatorDropsCache(t *testing.T) {
	b := New(Params{Nx: 1, Ny: 1, Nz: 1, BytesPerVoxel: [NumComponents]int{1}, Locator: &Locator{Offset: 0}})
	f := fetcherFunc(func(context.Context, Locator, Shape) ([]byte, error) { return []byte{0}, nil })
	if _, err := b.TexDataBrk(context.Background(), Intensity, f); err != nil {
		t.Fatal(err)
	}
	b.SetPriorityFromCache()
	if !b.Skippable() {
		t.Fatal("zero brick should be skippable")
	}

	b.SetLocator(Locator{Offset: 0})
	if b.Cached() || b.Skippable() {
		t.Error("SetLocator should drop the cache and reset priority")
	}
	if loc, ok := b.Locator(); !ok || loc.Offset != 0 {
		t.Errorf("Locator() = %+v, %v", loc, ok)
	}
}

func TestSetPriority(t *testing.T) {
	tests := []struct {
		name      string
		poke      int
		skippable bool
	}{
		{"all zero", -1, true},
		{"first voxel", (1*4+1)*4 + 1, false},
		{"last voxel", (2*4+2)*4 + 2, false},
		{"outside brick", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewBuffer(4, 4, 4, 1)
			if tt.poke >= 0 {
				buf.Data[tt.poke] = 1
			}
			b := gridBrick(1, 1, 1)
			b.SetPriority(buf)
			if b.Skippable() != tt.skippable {
				t.Errorf("Skippable() = %v, want %v", b.Skippable(), tt.skippable)
			}
		})
	}
}

func TestDrawnFlags(t *testing.T) {
	b := gridBrick(0, 0, 0)
	b.SetDrawn(ModeRender, true)
	b.SetDrawn(ModeMask, true)
	if !b.Drawn(ModeRender) || !b.Drawn(ModeMask) || b.Drawn(ModeShadow) {
		t.Error("drawn flags not tracked per mode")
	}
	b.ResetDrawn()
	for m := Mode(0); m < NumModes; m++ {
		if b.Drawn(m) {
			t.Errorf("Drawn(%s) after ResetDrawn", m)
		}
	}
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    Order
		wantErr bool
	}{
		{"ascending", Ascending, false},
		{"back-to-front", Descending, false},
		{"", Ascending, false},
		{"sideways", Ascending, true},
	}
	for _, tt := range tests {
		got, err := ParseOrder(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOrder(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestKindSupportsBytes(t *testing.T) {
	tests := []struct {
		k    Kind
		n    int
		want bool
	}{
		{KindIntensity, 1, true},
		{KindIntensity, 2, true},
		{KindIntensity, 3, false},
		{KindIntensityGradient, 4, true},
		{KindMask, 2, false},
		{KindLabel, 4, true},
		{KindNone, 1, false},
	}
	for _, tt := range tests {
		if got := tt.k.SupportsBytes(tt.n); got != tt.want {
			t.Errorf("%s.SupportsBytes(%d) = %v, want %v", tt.k, tt.n, got, tt.want)
		}
	}
}
