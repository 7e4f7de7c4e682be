package volume

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gogpu/volstream/brick"
	"github.com/gogpu/volstream/loader"
)

// Source is the payload table of one frame and channel of a level.
type Source struct {
	Files []loader.File
	// Locators is indexed by brick ID, x-fastest over the level's tiles.
	Locators []brick.Locator
}

// LevelDesc describes one resolution tier of a pyramid. Level 0 is the
// finest. Descriptors are never modified after NewPyramid.
type LevelDesc struct {
	Nx, Ny, Nz int
	// BrickNx, BrickNy and BrickNz are the tile size of the level files.
	BrickNx, BrickNy, BrickNz int
	// Scale multiplies the base spacing. 0 components default to 1.
	Scale mgl64.Vec3
	// Sources is indexed [frame][channel].
	Sources [][]Source
}

// PyramidSpec describes a multi-resolution dataset.
type PyramidSpec struct {
	Name          string
	BaseSpacing   mgl64.Vec3
	Kind          brick.Kind
	BytesPerVoxel int
	Levels        []LevelDesc
	Loader        *loader.Loader

	// Level, Frame and Channel select the initial state.
	Level, Frame, Channel int

	MaskUndoDepth int
}

type pyramid struct {
	base    mgl64.Vec3
	levels  []LevelDesc
	loader  *loader.Loader
	level   int
	frame   int
	channel int

	// wantFrame and wantChannel are the last requested pair. frame and
	// channel are that pair clamped to the active level.
	wantFrame   int
	wantChannel int
}

func (p *pyramid) source() Source {
	return p.levels[p.level].Sources[p.frame][p.channel]
}

func (p *pyramid) fetcher(dataset string) brick.Fetcher {
	return &loader.LevelFetcher{
		Loader:  p.loader,
		Dataset: dataset,
		Level:   p.level,
		Files:   p.source().Files,
	}
}

// NewPyramid validates the level table and builds the grid of the initial
// level.
func NewPyramid(spec PyramidSpec) (*Texture, error) {
	if len(spec.Levels) == 0 {
		return nil, fmt.Errorf("%w: no levels", ErrZeroSize)
	}
	if !spec.Kind.SupportsBytes(spec.BytesPerVoxel) || spec.Kind.Slot() != brick.Intensity {
		return nil, fmt.Errorf("%w: %s with %d bytes per voxel", ErrUnsupportedFormat, spec.Kind, spec.BytesPerVoxel)
	}
	if spec.Loader == nil {
		return nil, errors.New("volume: pyramid needs a loader")
	}
	for i, l := range spec.Levels {
		if l.Nx <= 0 || l.Ny <= 0 || l.Nz <= 0 {
			return nil, fmt.Errorf("%w: level %d is %dx%dx%d", ErrZeroSize, i, l.Nx, l.Ny, l.Nz)
		}
		if len(l.Sources) == 0 || len(l.Sources[0]) == 0 {
			return nil, fmt.Errorf("volume: level %d has no sources", i)
		}
	}

	t := &Texture{
		name:  spec.Name,
		masks: newMaskRing(spec.MaskUndoDepth),
		pyramid: &pyramid{
			base:   defaultSpacing(spec.BaseSpacing),
			levels: spec.Levels,
			loader: spec.Loader,
			level:  -1,
		},
	}
	t.kinds[brick.Intensity] = spec.Kind
	t.widths[brick.Intensity] = spec.BytesPerVoxel

	p := t.pyramid
	p.wantFrame, p.wantChannel = spec.Frame, spec.Channel
	t.SetLevel(spec.Level)
	return t, nil
}

// IsPyramid reports whether the volume streams from a pyramid source.
func (t *Texture) IsPyramid() bool { return t.pyramid != nil }

// LevelCount returns the number of pyramid levels, 1 for in-core volumes.
func (t *Texture) LevelCount() int {
	if t.pyramid == nil {
		return 1
	}
	return len(t.pyramid.levels)
}

// Level returns the active level index.
func (t *Texture) Level() int {
	if t.pyramid == nil {
		return 0
	}
	return t.pyramid.level
}

// LevelSpacing returns the voxel spacing of level i.
func (t *Texture) LevelSpacing(i int) mgl64.Vec3 {
	if t.pyramid == nil {
		return t.spacing
	}
	i = clampInt(i, 0, len(t.pyramid.levels)-1)
	return levelSpacing(t.pyramid.base, t.pyramid.levels[i])
}

// FrameAndChannel returns the active frame and channel.
func (t *Texture) FrameAndChannel() (frame, channel int) {
	if t.pyramid == nil {
		return 0, 0
	}
	return t.pyramid.frame, t.pyramid.channel
}

func levelSpacing(base mgl64.Vec3, l LevelDesc) mgl64.Vec3 {
	s := base
	for i := range s {
		if l.Scale[i] > 0 {
			s[i] *= l.Scale[i]
		}
	}
	return s
}

// SetLevel switches to pyramid level i, clamped to the known levels. The
// last requested frame and channel are clamped to the new level, so a
// level without that channel does not change the request. The grid is
// rebuilt from the immutable level descriptor and the decoded
// buffers of the previous grid are released. It reports whether the level
// changed.
func (t *Texture) SetLevel(i int) bool {
	p := t.pyramid
	if p == nil {
		return false
	}
	i = clampInt(i, 0, len(p.levels)-1)
	if i == p.level {
		return false
	}

	old := t.bricks
	prev := p.level
	p.level = i
	d := p.levels[i]
	t.nx, t.ny, t.nz = d.Nx, d.Ny, d.Nz
	t.spacing = levelSpacing(p.base, d)
	p.frame, p.channel = clampFrameChannel(d, p.wantFrame, p.wantChannel)
	t.bricks = makeGrid(gridSpec{
		nx: d.Nx, ny: d.Ny, nz: d.Nz,
		bx: tileEdge(d.BrickNx, d.Nx), by: tileEdge(d.BrickNy, d.Ny), bz: tileEdge(d.BrickNz, d.Nz),
		spacing:       t.spacing,
		bytesPerVoxel: t.widths,
		locators:      p.source().Locators,
	})
	t.brickSize = max(tileEdge(d.BrickNx, d.Nx), tileEdge(d.BrickNy, d.Ny), tileEdge(d.BrickNz, d.Nz))
	for _, b := range old {
		b.FreeCache()
	}
	t.dataVersion++

	slogger().Info("volume: level switched", "name", t.name, "from", prev, "to", i,
		"dims", [3]int{d.Nx, d.Ny, d.Nz}, "bricks", len(t.bricks))
	return true
}

// SetFrameAndChannel selects the time frame and channel streamed from the
// active level. Locators of the current bricks are replaced, which drops
// their decoded buffers.
func (t *Texture) SetFrameAndChannel(frame, channel int) error {
	p := t.pyramid
	if p == nil {
		return ErrNotPyramid
	}
	d := p.levels[p.level]
	if frame < 0 || frame >= len(d.Sources) || channel < 0 || channel >= len(d.Sources[frame]) {
		return fmt.Errorf("volume: frame %d channel %d out of range", frame, channel)
	}
	p.wantFrame, p.wantChannel = frame, channel
	if frame == p.frame && channel == p.channel {
		return nil
	}
	p.frame, p.channel = frame, channel
	locs := p.source().Locators
	for _, b := range t.bricks {
		if id := b.ID(); id < len(locs) {
			b.SetLocator(locs[id])
		}
	}
	t.dataVersion++
	return nil
}

// LoadData synchronously decodes every brick of the active level that is
// not cached yet and updates its priority. It returns the first error; the
// failed bricks keep no buffer and are retried on the next access.
func (t *Texture) LoadData(ctx context.Context) error {
	p := t.pyramid
	if p == nil {
		return ErrNotPyramid
	}
	src := p.source()
	var first error
	for _, b := range t.bricks {
		if b.Cached() {
			continue
		}
		loc, ok := b.Locator()
		if !ok {
			continue
		}
		shape := b.Shape(brick.Intensity)
		r, err := loader.NewRequest(t.name, p.level, src.Files, loc, shape)
		if err == nil {
			_, err = b.TexDataBrk(ctx, brick.Intensity, syncFetcher{p.loader, r})
		}
		if err != nil {
			slogger().Warn("volume: brick load failed", "name", t.name, "brick", b.ID(), "err", err)
			if first == nil {
				first = err
			}
			continue
		}
		b.SetPriorityFromCache()
	}
	return first
}

// syncFetcher serves one prepared request through Loader.Load.
type syncFetcher struct {
	l *loader.Loader
	r loader.Request
}

func (f syncFetcher) Fetch(ctx context.Context, _ brick.Locator, _ brick.Shape) ([]byte, error) {
	return f.l.Load(ctx, f.r)
}

func clampFrameChannel(d LevelDesc, frame, channel int) (int, int) {
	frame = clampInt(frame, 0, len(d.Sources)-1)
	channel = clampInt(channel, 0, len(d.Sources[frame])-1)
	return frame, channel
}

func tileEdge(b, n int) int {
	if b <= 0 {
		return n
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
