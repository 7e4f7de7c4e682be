package brick

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// BBox is an axis-aligned bounding box.
type BBox struct {
	Min, Max mgl64.Vec3
}

// Center returns the box center.
func (b BBox) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the box extent along each axis.
func (b BBox) Size() mgl64.Vec3 {
	return b.Max.Sub(b.Min)
}

// Corners returns the eight corners. Bit 0 of the index selects x, bit 1
// selects y and bit 2 selects z.
func (b BBox) Corners() [8]mgl64.Vec3 {
	var c [8]mgl64.Vec3
	for i := range c {
		c[i] = mgl64.Vec3{
			pick(i&1 != 0, b.Max[0], b.Min[0]),
			pick(i&2 != 0, b.Max[1], b.Min[1]),
			pick(i&4 != 0, b.Max[2], b.Min[2]),
		}
	}
	return c
}

// Contains reports whether p lies inside the box (inclusive).
func (b BBox) Contains(p mgl64.Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

func pick(c bool, a, b float64) float64 {
	if c {
		return a
	}
	return b
}

// Ray is an origin and a direction. For edge rays Dir is the full edge
// vector, so the edge is Origin + u*Dir for u in [0,1].
type Ray struct {
	Origin mgl64.Vec3
	Dir    mgl64.Vec3
}

// At returns Origin + t*Dir.
func (r Ray) At(t float64) mgl64.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// ComputeEdgeRays returns the 12 edges of the box: four along x, then four
// along y, then four along z.
func ComputeEdgeRays(b BBox) [12]Ray {
	var e [12]Ray
	s := b.Size()
	n := 0
	for axis := 0; axis < 3; axis++ {
		u, v := (axis+1)%3, (axis+2)%3
		for j := 0; j < 4; j++ {
			o := b.Min
			if j&1 != 0 {
				o[u] = b.Max[u]
			}
			if j&2 != 0 {
				o[v] = b.Max[v]
			}
			var d mgl64.Vec3
			d[axis] = s[axis]
			e[n] = Ray{Origin: o, Dir: d}
			n++
		}
	}
	return e
}

// planeBasis returns two unit vectors spanning the plane orthogonal to n.
func planeBasis(n mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	a := mgl64.Vec3{1, 0, 0}
	if math.Abs(n[0]) > 0.9 {
		a = mgl64.Vec3{0, 1, 0}
	}
	u := n.Cross(a).Normalize()
	v := n.Cross(u)
	return u, v
}

// pseudoAngle maps the direction (dx, dy) to [0, 4) monotonically with its
// polar angle.
func pseudoAngle(dx, dy float64) float64 {
	s := math.Abs(dx) + math.Abs(dy)
	if s == 0 {
		return 0
	}
	p := dy / s
	if dx < 0 {
		return 2 - p
	}
	if dy < 0 {
		return 4 + p
	}
	return p
}
