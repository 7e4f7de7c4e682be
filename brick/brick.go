package brick

import (
	"context"
	"errors"
	"fmt"
)

// Brick errors.
var (
	// ErrNoLocator is returned when a pyramid read is requested for a brick
	// that has no source locator.
	ErrNoLocator = errors.New("brick: no source locator")

	// ErrIncomplete is returned when a decode yields fewer bytes than the
	// brick's extent requires.
	ErrIncomplete = errors.New("brick: incomplete decode")
)

// Priority is the draw priority of a brick. Zero means the brick holds no
// non-zero data and can be skipped.
type Priority uint8

const (
	// PrioritySkippable marks an empty brick.
	PrioritySkippable Priority = 0
	// PriorityNormal marks a brick with data.
	PriorityNormal Priority = 1
)

// Locator addresses a brick inside the file table of a pyramid level.
type Locator struct {
	// File indexes the level's file table.
	File int
	// Offset is the byte offset of the brick in the file.
	Offset int64
	// Size is the encoded byte size; 0 reads to the end of the file.
	Size int64
}

// Fetcher reads and decodes the bytes of a brick from an external source.
// It must return exactly shape.Bytes() bytes or an error.
type Fetcher interface {
	Fetch(ctx context.Context, loc Locator, shape Shape) ([]byte, error)
}

// Params describes a brick at construction.
type Params struct {
	ID            int
	Nx, Ny, Nz    int
	Ox, Oy, Oz    int
	BytesPerVoxel [NumComponents]int
	BBox          BBox
	TBox          BBox
	Locator       *Locator
}

// Brick is one spatial chunk of a volume.
type Brick struct {
	id         int
	nx, ny, nz int
	ox, oy, oz int
	nb         [NumComponents]int

	bbox   BBox
	tbox   BBox
	edges  [12]Ray
	tedges [12]Ray

	locator    Locator
	hasLocator bool

	priority Priority
	drawn    [NumModes]bool

	// cache is nil or a complete decode of the brick's extent.
	cache []byte
}

// New creates a brick and precomputes its edge rays.
func New(p Params) *Brick {
	b := &Brick{
		id:       p.ID,
		nx:       p.Nx,
		ny:       p.Ny,
		nz:       p.Nz,
		ox:       p.Ox,
		oy:       p.Oy,
		oz:       p.Oz,
		nb:       p.BytesPerVoxel,
		bbox:     p.BBox,
		tbox:     p.TBox,
		priority: PriorityNormal,
	}
	if p.Locator != nil {
		b.locator = *p.Locator
		b.hasLocator = true
	}
	b.edges = ComputeEdgeRays(b.bbox)
	b.tedges = ComputeEdgeRays(b.tbox)
	return b
}

// ID returns the brick's index in its grid.
func (b *Brick) ID() int { return b.id }

// Dims returns the voxel extent.
func (b *Brick) Dims() (nx, ny, nz int) { return b.nx, b.ny, b.nz }

// Origin returns the voxel offset into the source volume.
func (b *Brick) Origin() (ox, oy, oz int) { return b.ox, b.oy, b.oz }

// BytesPerVoxel returns the byte width of component c, 0 if unused.
func (b *Brick) BytesPerVoxel(c Component) int {
	if c >= NumComponents {
		return 0
	}
	return b.nb[c]
}

// SetBytesPerVoxel updates the byte width of component c, used when a
// component is added to or removed from the owning volume.
func (b *Brick) SetBytesPerVoxel(c Component, n int) {
	if c < NumComponents {
		b.nb[c] = n
	}
}

// Shape returns the data shape of component c.
func (b *Brick) Shape(c Component) Shape {
	return Shape{Nx: b.nx, Ny: b.ny, Nz: b.nz, BytesPerVoxel: b.BytesPerVoxel(c)}
}

// BBox returns the object-space bounding box.
func (b *Brick) BBox() BBox { return b.bbox }

// TBox returns the texture-space bounding box.
func (b *Brick) TBox() BBox { return b.tbox }

// Edges returns the object-space edge rays.
func (b *Brick) Edges() [12]Ray { return b.edges }

// TexEdges returns the texture-space edge rays.
func (b *Brick) TexEdges() [12]Ray { return b.tedges }

// Locator returns the source locator and whether the brick has one.
func (b *Brick) Locator() (Locator, bool) { return b.locator, b.hasLocator }

// SetLocator attaches a source locator, dropping any cached decode of the
// previous source. The locator is relative to a file table, so the cache is
// dropped even when loc is unchanged.
func (b *Brick) SetLocator(loc Locator) {
	b.locator = loc
	b.hasLocator = true
	b.cache = nil
	b.priority = PriorityNormal
}

// Priority returns the brick draw priority.
func (b *Brick) Priority() Priority { return b.priority }

// Skippable reports whether the brick is known to be empty.
func (b *Brick) Skippable() bool { return b.priority == PrioritySkippable }

// Drawn reports whether the brick has been drawn in mode m during the
// current full pass.
func (b *Brick) Drawn(m Mode) bool {
	if m >= NumModes {
		return false
	}
	return b.drawn[m]
}

// SetDrawn sets the drawn flag for mode m.
func (b *Brick) SetDrawn(m Mode, v bool) {
	if m < NumModes {
		b.drawn[m] = v
	}
}

// ResetDrawn clears all drawn flags.
func (b *Brick) ResetDrawn() {
	b.drawn = [NumModes]bool{}
}

// TexData returns the brick's voxels of component c as a borrowed view of
// buf, the in-core buffer of the owning volume. It returns false when buf
// does not hold the brick's extent at the brick's byte width.
func (b *Brick) TexData(c Component, buf *Buffer) (Region, bool) {
	bpv := b.BytesPerVoxel(c)
	if buf == nil || bpv == 0 || buf.BytesPerVoxel != bpv {
		return Region{}, false
	}
	if b.ox+b.nx > buf.Nx || b.oy+b.ny > buf.Ny || b.oz+b.nz > buf.Nz {
		return Region{}, false
	}
	off := ((b.oz*buf.Ny+b.oy)*buf.Nx + b.ox) * bpv
	r := Region{
		Data:          buf.Data[off:],
		Nx:            b.nx,
		Ny:            b.ny,
		Nz:            b.nz,
		BytesPerVoxel: bpv,
		BytesPerRow:   buf.Nx * bpv,
		RowsPerImage:  buf.Ny,
	}
	if !r.Valid() {
		return Region{}, false
	}
	return r, true
}

// TexDataBrk returns the brick's voxels of component c decoded from its
// external source. The decoded buffer is cached on the brick; a failed or
// short read leaves no cache behind and returns an error.
func (b *Brick) TexDataBrk(ctx context.Context, c Component, f Fetcher) (Region, error) {
	shape := b.Shape(c)
	want := shape.Bytes()
	if want == 0 {
		return Region{}, fmt.Errorf("%w: component %s", ErrIncomplete, c)
	}
	if b.cache == nil {
		if !b.hasLocator {
			return Region{}, ErrNoLocator
		}
		data, err := f.Fetch(ctx, b.locator, shape)
		if err != nil {
			return Region{}, err
		}
		if len(data) < want {
			return Region{}, fmt.Errorf("%w: got %d of %d bytes", ErrIncomplete, len(data), want)
		}
		b.cache = data[:want:want]
	}
	if len(b.cache) != want {
		b.cache = nil
		return Region{}, ErrIncomplete
	}
	return Region{
		Data:          b.cache,
		Nx:            b.nx,
		Ny:            b.ny,
		Nz:            b.nz,
		BytesPerVoxel: shape.BytesPerVoxel,
		BytesPerRow:   b.nx * shape.BytesPerVoxel,
		RowsPerImage:  b.ny,
	}, nil
}

// Cached reports whether a decoded buffer is held.
func (b *Brick) Cached() bool { return b.cache != nil }

// CacheBytes returns the size of the decoded buffer.
func (b *Brick) CacheBytes() int { return len(b.cache) }

// FreeCache drops the decoded buffer and returns the number of bytes freed.
func (b *Brick) FreeCache() int {
	n := len(b.cache)
	b.cache = nil
	return n
}

// SetPriority scans the brick's first component in buf once and marks the
// brick skippable iff every voxel is zero.
func (b *Brick) SetPriority(buf *Buffer) {
	r, ok := b.TexData(Intensity, buf)
	if !ok {
		b.priority = PriorityNormal
		return
	}
	b.setPriorityFrom(r)
}

// SetPriorityFromCache applies the same scan to the decoded buffer. It is a
// no-op when nothing is cached.
func (b *Brick) SetPriorityFromCache() {
	if b.cache == nil {
		return
	}
	bpv := b.BytesPerVoxel(Intensity)
	b.setPriorityFrom(Region{
		Data:          b.cache,
		Nx:            b.nx,
		Ny:            b.ny,
		Nz:            b.nz,
		BytesPerVoxel: bpv,
		BytesPerRow:   b.nx * bpv,
		RowsPerImage:  b.ny,
	})
}

func (b *Brick) setPriorityFrom(r Region) {
	if r.AllZero() {
		b.priority = PrioritySkippable
	} else {
		b.priority = PriorityNormal
	}
}

// String returns a short description of the brick.
func (b *Brick) String() string {
	return fmt.Sprintf("Brick[%d %dx%dx%d @(%d,%d,%d)]", b.id, b.nx, b.ny, b.nz, b.ox, b.oy, b.oz)
}
