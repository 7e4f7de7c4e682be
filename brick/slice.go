package brick

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Polygon vertex count limits. Intersections outside this range are
// degenerate and dropped.
const (
	MinPolygonVertices = 3
	MaxPolygonVertices = 6
)

// edgeEpsilon is the tolerance on the edge parameter u.
const edgeEpsilon = 1e-9

// pointEpsilon merges intersections that coincide at a brick corner.
const pointEpsilon = 1e-9

// Polygons holds the view-aligned slices of one brick. Vertices and
// TexCoords are flat xyz triples; slice j (0-based from TMin) owns the
// vertices in [Offsets[j], Offsets[j+1]).
type Polygons struct {
	TMin, TMax int
	Dt         float64

	Vertices  []float64
	TexCoords []float64
	Offsets   []int
}

// Len returns the number of slice indices in [TMin, TMax], including
// slices whose intersection was degenerate.
func (p *Polygons) Len() int {
	if p == nil || p.TMax < p.TMin {
		return 0
	}
	return p.TMax - p.TMin + 1
}

// Slice returns the polygon of slice index k. Out-of-range or degenerate
// slices return nil.
func (p *Polygons) Slice(k int) (verts, texs []float64) {
	if k < p.TMin || k > p.TMax {
		return nil, nil
	}
	j := k - p.TMin
	a, b := p.Offsets[j]*3, p.Offsets[j+1]*3
	if a == b {
		return nil, nil
	}
	return p.Vertices[a:b], p.TexCoords[a:b]
}

// Polygon returns the i-th polygon in draw order. With reverse set the
// slices are visited from TMax down to TMin.
func (p *Polygons) Polygon(i int, reverse bool) (verts, texs []float64) {
	if reverse {
		return p.Slice(p.TMax - i)
	}
	return p.Slice(p.TMin + i)
}

// VertexCount returns the number of vertices of slice index k.
func (p *Polygons) VertexCount(k int) int {
	if k < p.TMin || k > p.TMax {
		return 0
	}
	j := k - p.TMin
	return p.Offsets[j+1] - p.Offsets[j]
}

// TIndexRange returns the integer range of slice indices whose planes
// intersect the brick. Slice k is the plane dot(x, d) = dot(anchor, d) + k*dt
// with d the normalized view direction. The anchor is shared by all bricks
// of a volume so that neighbours agree on plane positions.
func (b *Brick) TIndexRange(view Ray, anchor mgl64.Vec3, dt float64) (timin, timax int) {
	d := view.Dir.Normalize()
	ta := anchor.Dot(d)
	tmin, tmax := math.Inf(1), math.Inf(-1)
	for _, c := range b.bbox.Corners() {
		t := c.Dot(d) - ta
		tmin = math.Min(tmin, t)
		tmax = math.Max(tmax, t)
	}
	return int(math.Ceil(tmin / dt)), int(math.Floor(tmax / dt))
}

// ComputePolygons slices the brick with planes orthogonal to the view
// direction spaced dt apart. Each slice keeps between MinPolygonVertices and
// MaxPolygonVertices distinct edge intersections, ordered around their centroid so
// they form a convex fan.
func (b *Brick) ComputePolygons(view Ray, anchor mgl64.Vec3, dt float64) *Polygons {
	if dt <= 0 {
		return &Polygons{TMin: 0, TMax: -1}
	}
	d := view.Dir.Normalize()
	ta := anchor.Dot(d)
	timin, timax := b.TIndexRange(view, anchor, dt)

	p := &Polygons{TMin: timin, TMax: timax, Dt: dt}
	if timax < timin {
		return p
	}
	n := timax - timin + 1
	p.Offsets = make([]int, n+1)
	p.Vertices = make([]float64, 0, n*MaxPolygonVertices*3)
	p.TexCoords = make([]float64, 0, n*MaxPolygonVertices*3)

	ux, uy := planeBasis(d)
	var (
		vs [12]mgl64.Vec3
		ts [12]mgl64.Vec3
		as [12]float64
	)
	count := 0
	for j := 0; j < n; j++ {
		tk := ta + float64(timin+j)*dt

		m := 0
		for e := range b.edges {
			edge := b.edges[e]
			den := edge.Dir.Dot(d)
			if den == 0 {
				continue
			}
			u := (tk - edge.Origin.Dot(d)) / den
			if u < -edgeEpsilon || u > 1+edgeEpsilon {
				continue
			}
			u = clamp01(u)
			v := edge.At(u)
			if containsPoint(vs[:m], v) {
				continue
			}
			vs[m] = v
			ts[m] = b.tedges[e].At(u)
			m++
		}

		if m >= MinPolygonVertices && m <= MaxPolygonVertices {
			var c mgl64.Vec3
			for i := 0; i < m; i++ {
				c = c.Add(vs[i])
			}
			c = c.Mul(1 / float64(m))
			for i := 0; i < m; i++ {
				r := vs[i].Sub(c)
				as[i] = pseudoAngle(r.Dot(ux), r.Dot(uy))
			}
			sortByAngle(vs[:m], ts[:m], as[:m])
			for i := 0; i < m; i++ {
				p.Vertices = append(p.Vertices, vs[i][0], vs[i][1], vs[i][2])
				p.TexCoords = append(p.TexCoords, ts[i][0], ts[i][1], ts[i][2])
			}
			count += m
		}
		p.Offsets[j+1] = count
	}
	return p
}

// containsPoint reports whether v is within pointEpsilon of one of vs.
func containsPoint(vs []mgl64.Vec3, v mgl64.Vec3) bool {
	for _, w := range vs {
		if w.ApproxEqualThreshold(v, pointEpsilon) {
			return true
		}
	}
	return false
}

// sortByAngle insertion-sorts the points by pseudo-angle; at most six
// elements are ever sorted.
func sortByAngle(vs, ts []mgl64.Vec3, as []float64) {
	for i := 1; i < len(as); i++ {
		for j := i; j > 0 && as[j] < as[j-1]; j-- {
			as[j], as[j-1] = as[j-1], as[j]
			vs[j], vs[j-1] = vs[j-1], vs[j]
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

func clamp01(u float64) float64 {
	if u < 0 {
		return 0
	}
	if u > 1 {
		return 1
	}
	return u
}

// FanIndices returns triangle-list indices for a convex polygon of n
// vertices drawn as a fan around vertex 0.
func FanIndices(n int) []uint32 {
	if n < MinPolygonVertices {
		return nil
	}
	idx := make([]uint32, 0, (n-2)*3)
	for i := 1; i < n-1; i++ {
		idx = append(idx, 0, uint32(i), uint32(i+1)) //nolint:gosec // n <= MaxPolygonVertices
	}
	return idx
}
