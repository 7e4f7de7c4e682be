package volume

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/gogpu/volstream/brick"
)

// span is a brick's extent along one axis.
type span struct {
	o, n int
}

// overlapSpans partitions n voxels into bricks of at most bs voxels.
// Neighbours share one voxel so that interpolation across a brick face
// samples the same data on both sides.
func overlapSpans(n, bs int) []span {
	if n <= bs || bs < 2 {
		return []span{{0, n}}
	}
	var out []span
	for o := 0; ; o += bs - 1 {
		size := min(bs, n-o)
		out = append(out, span{o, size})
		if o+size >= n {
			return out
		}
	}
}

// tileSpans partitions n voxels into disjoint tiles of bs voxels, the
// layout of pyramid level files.
func tileSpans(n, bs int) []span {
	if bs <= 0 || n <= bs {
		return []span{{0, n}}
	}
	var out []span
	for o := 0; o < n; o += bs {
		out = append(out, span{o, min(bs, n-o)})
	}
	return out
}

// axisBox returns the object-space and texture-space extent of a span.
// Object space runs from 0 to n*spacing. Interior faces of overlapping
// bricks sit at the centre of the shared voxel.
func axisBox(s span, total int, spacing float64, overlap bool) (lo, hi, tlo, thi float64) {
	a, b := float64(s.o), float64(s.o+s.n)
	if overlap {
		if s.o > 0 {
			a += 0.5
		}
		if s.o+s.n < total {
			b -= 0.5
		}
	}
	lo, hi = a*spacing, b*spacing
	tlo = (a - float64(s.o)) / float64(s.n)
	thi = (b - float64(s.o)) / float64(s.n)
	return lo, hi, tlo, thi
}

// gridSpec is everything needed to lay out one brick grid.
type gridSpec struct {
	nx, ny, nz    int
	bx, by, bz    int
	spacing       mgl64.Vec3
	bytesPerVoxel [brick.NumComponents]int
	overlap       bool
	locators      []brick.Locator
}

// makeGrid builds the bricks of a grid, x-fastest. Brick IDs index the
// locator table when one is given.
func makeGrid(g gridSpec) []*brick.Brick {
	spans := spansFunc(g.overlap)
	xs, ys, zs := spans(g.nx, g.bx), spans(g.ny, g.by), spans(g.nz, g.bz)
	dims := [3]int{g.nx, g.ny, g.nz}

	bricks := make([]*brick.Brick, 0, len(xs)*len(ys)*len(zs))
	for _, sz := range zs {
		for _, sy := range ys {
			for _, sx := range xs {
				id := len(bricks)
				p := brick.Params{
					ID: id,
					Nx: sx.n, Ny: sy.n, Nz: sz.n,
					Ox: sx.o, Oy: sy.o, Oz: sz.o,
					BytesPerVoxel: g.bytesPerVoxel,
				}
				for axis, s := range [3]span{sx, sy, sz} {
					lo, hi, tlo, thi := axisBox(s, dims[axis], g.spacing[axis], g.overlap)
					p.BBox.Min[axis], p.BBox.Max[axis] = lo, hi
					p.TBox.Min[axis], p.TBox.Max[axis] = tlo, thi
				}
				if id < len(g.locators) {
					loc := g.locators[id]
					p.Locator = &loc
				}
				bricks = append(bricks, brick.New(p))
			}
		}
	}
	return bricks
}

func spansFunc(overlap bool) func(n, bs int) []span {
	if overlap {
		return overlapSpans
	}
	return tileSpans
}
