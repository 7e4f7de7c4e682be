package volume

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gogpu/volstream/brick"
	"github.com/gogpu/volstream/loader"
)

// Build and edit errors.
var (
	// ErrZeroSize is returned when a volume dimension is zero.
	ErrZeroSize = errors.New("volume: zero-sized volume")

	// ErrUnsupportedFormat is returned for a component kind the slot cannot
	// hold or a byte width the kind does not support.
	ErrUnsupportedFormat = errors.New("volume: unsupported component format")

	// ErrDimMismatch is returned when a component buffer does not match the
	// volume dimensions.
	ErrDimMismatch = errors.New("volume: component dimensions do not match volume")

	// ErrNoMask is returned by mask operations on a volume without a mask.
	ErrNoMask = errors.New("volume: no mask component")

	// ErrNotPyramid is returned by level operations on an in-core volume.
	ErrNotPyramid = errors.New("volume: not a pyramid source")
)

// DefaultMaxTextureSize is the brick dimension limit when none is given.
const DefaultMaxTextureSize = 2048

// Component is one in-core channel supplied at build time.
type Component struct {
	Kind brick.Kind
	Data *brick.Buffer
}

// BuildSpec describes an in-core volume.
type BuildSpec struct {
	Name       string
	Nx, Ny, Nz int
	Spacing    mgl64.Vec3

	// MaxTextureSize caps the brick edge length. 0 uses
	// DefaultMaxTextureSize.
	MaxTextureSize int
	// BrickSize forces the brick edge length when > 0.
	BrickSize int

	// Components must hold an intensity component; others are optional.
	Components []Component

	// MaskUndoDepth bounds the mask undo ring. 0 uses DefaultMaskUndoDepth.
	MaskUndoDepth int
}

// Texture owns one volume's channels and its brick grid.
//
// A Texture is not safe for concurrent use; it is mutated on the rendering
// thread only.
type Texture struct {
	name       string
	nx, ny, nz int
	spacing    mgl64.Vec3
	brickSize  int

	kinds  [brick.NumComponents]brick.Kind
	widths [brick.NumComponents]int
	data   [brick.NumComponents]*brick.Buffer

	bricks []*brick.Brick

	pyramid *pyramid
	masks   *maskRing

	dataVersion uint64
	maskVersion uint64
}

// Build validates spec and partitions the volume into a brick grid. No
// Texture is returned on failure.
func Build(spec BuildSpec) (*Texture, error) {
	if spec.Nx <= 0 || spec.Ny <= 0 || spec.Nz <= 0 {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrZeroSize, spec.Nx, spec.Ny, spec.Nz)
	}
	t := &Texture{
		name:      spec.Name,
		nx:        spec.Nx,
		ny:        spec.Ny,
		nz:        spec.Nz,
		spacing:   defaultSpacing(spec.Spacing),
		brickSize: brickEdge(spec.MaxTextureSize, spec.BrickSize),
		masks:     newMaskRing(spec.MaskUndoDepth),
	}
	for _, c := range spec.Components {
		if err := t.setComponent(c.Kind, c.Data); err != nil {
			return nil, err
		}
	}
	if t.kinds[brick.Intensity] == brick.KindNone {
		return nil, fmt.Errorf("%w: no intensity component", ErrUnsupportedFormat)
	}

	t.bricks = makeGrid(gridSpec{
		nx: t.nx, ny: t.ny, nz: t.nz,
		bx: t.brickSize, by: t.brickSize, bz: t.brickSize,
		spacing:       t.spacing,
		bytesPerVoxel: t.widths,
		overlap:       true,
	})
	for _, b := range t.bricks {
		b.SetPriority(t.data[brick.Intensity])
	}
	if t.kinds[brick.Mask] != brick.KindNone {
		t.masks.reset(t.data[brick.Mask].Data)
	}
	slogger().Debug("volume: built", "name", t.name, "dims", [3]int{t.nx, t.ny, t.nz}, "bricks", len(t.bricks), "brickSize", t.brickSize)
	return t, nil
}

func defaultSpacing(s mgl64.Vec3) mgl64.Vec3 {
	for i := range s {
		if s[i] <= 0 {
			s[i] = 1
		}
	}
	return s
}

func brickEdge(maxTex, forced int) int {
	if forced > 0 {
		if maxTex > 0 && forced > maxTex {
			return maxTex
		}
		return forced
	}
	if maxTex <= 0 {
		return DefaultMaxTextureSize
	}
	return maxTex
}

// setComponent validates and installs an in-core component buffer.
func (t *Texture) setComponent(k brick.Kind, buf *brick.Buffer) error {
	if buf == nil || k == brick.KindNone {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, k)
	}
	if !k.SupportsBytes(buf.BytesPerVoxel) {
		return fmt.Errorf("%w: %s with %d bytes per voxel", ErrUnsupportedFormat, k, buf.BytesPerVoxel)
	}
	if buf.Nx != t.nx || buf.Ny != t.ny || buf.Nz != t.nz {
		return fmt.Errorf("%w: %dx%dx%d for %dx%dx%d", ErrDimMismatch, buf.Nx, buf.Ny, buf.Nz, t.nx, t.ny, t.nz)
	}
	if err := buf.Validate(); err != nil {
		return err
	}
	s := k.Slot()
	t.kinds[s] = k
	t.widths[s] = buf.BytesPerVoxel
	t.data[s] = buf
	return nil
}

// AddComponent installs or replaces an in-core component and updates the
// byte widths of every brick. Replacing intensity recomputes brick
// priorities. Adding a mask resets the undo ring to the
// new mask.
func (t *Texture) AddComponent(k brick.Kind, buf *brick.Buffer) error {
	if t.pyramid != nil {
		return fmt.Errorf("%w: pyramid components are streamed", ErrUnsupportedFormat)
	}
	if err := t.setComponent(k, buf); err != nil {
		return err
	}
	s := k.Slot()
	for _, b := range t.bricks {
		b.SetBytesPerVoxel(s, buf.BytesPerVoxel)
		if s == brick.Intensity {
			b.SetPriority(buf)
		}
	}
	if s == brick.Mask {
		t.masks.reset(buf.Data)
		t.maskVersion++
	} else {
		t.dataVersion++
	}
	return nil
}

// DeleteComponent empties a slot and frees the decoded buffers of every
// brick. The intensity slot cannot be deleted.
func (t *Texture) DeleteComponent(c brick.Component) error {
	if c == brick.Intensity || c >= brick.NumComponents {
		return fmt.Errorf("%w: cannot delete %s", ErrUnsupportedFormat, c)
	}
	if t.kinds[c] == brick.KindNone {
		return nil
	}
	t.kinds[c] = brick.KindNone
	t.widths[c] = 0
	t.data[c] = nil
	for _, b := range t.bricks {
		b.SetBytesPerVoxel(c, 0)
		b.FreeCache()
	}
	if c == brick.Mask {
		t.masks.reset(nil)
		t.maskVersion++
	}
	t.dataVersion++
	return nil
}

// Name returns the dataset name.
func (t *Texture) Name() string { return t.name }

// Dims returns the voxel dimensions of the active grid.
func (t *Texture) Dims() (nx, ny, nz int) { return t.nx, t.ny, t.nz }

// Spacing returns the voxel spacing of the active grid.
func (t *Texture) Spacing() mgl64.Vec3 { return t.spacing }

// BBox returns the object-space bounds of the whole volume.
func (t *Texture) BBox() brick.BBox {
	return brick.BBox{Max: mgl64.Vec3{
		float64(t.nx) * t.spacing[0],
		float64(t.ny) * t.spacing[1],
		float64(t.nz) * t.spacing[2],
	}}
}

// Bricks returns the active brick grid. The slice is owned by the Texture
// and replaced on a level switch.
func (t *Texture) Bricks() []*brick.Brick { return t.bricks }

// BrickSize returns the brick edge length the grid was built with.
func (t *Texture) BrickSize() int { return t.brickSize }

// Kind returns the kind stored in slot c.
func (t *Texture) Kind(c brick.Component) brick.Kind {
	if c >= brick.NumComponents {
		return brick.KindNone
	}
	return t.kinds[c]
}

// HasComponent reports whether slot c is populated.
func (t *Texture) HasComponent(c brick.Component) bool {
	return t.Kind(c) != brick.KindNone
}

// Buffer returns the in-core buffer of slot c, nil for streamed or empty
// slots.
func (t *Texture) Buffer(c brick.Component) *brick.Buffer {
	if c >= brick.NumComponents {
		return nil
	}
	return t.data[c]
}

// Bytes returns the size of all components of the active grid.
func (t *Texture) Bytes() int64 {
	var n int64
	voxels := int64(t.nx) * int64(t.ny) * int64(t.nz)
	for _, w := range t.widths {
		n += voxels * int64(w)
	}
	return n
}

// DataVersion changes whenever the brick grid or non-mask component data
// changes.
func (t *Texture) DataVersion() uint64 { return t.dataVersion }

// MaskVersion changes whenever the mask contents change.
func (t *Texture) MaskVersion() uint64 { return t.maskVersion }

// ResetDrawn clears the drawn flags of every brick.
func (t *Texture) ResetDrawn() {
	for _, b := range t.bricks {
		b.ResetDrawn()
	}
}

// FreeCaches drops every brick's decoded buffer.
func (t *Texture) FreeCaches() {
	for _, b := range t.bricks {
		b.FreeCache()
	}
}

// Fetcher returns the brick fetcher for the active level, frame and
// channel, or nil for an in-core volume.
func (t *Texture) Fetcher() brick.Fetcher {
	if t.pyramid == nil {
		return nil
	}
	return t.pyramid.fetcher(t.name)
}

// Loader returns the loader a pyramid streams through, or nil.
func (t *Texture) Loader() *loader.Loader {
	if t.pyramid == nil {
		return nil
	}
	return t.pyramid.loader
}
