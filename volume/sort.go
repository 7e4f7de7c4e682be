package volume

import (
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gogpu/volstream/brick"
)

// viewDistance returns the sort key of a point for the given view. With an
// orthographic camera it is the depth along the view direction; with a
// perspective camera it is the distance from the eye.
func viewDistance(p mgl64.Vec3, view brick.Ray, ortho bool) float64 {
	if ortho {
		return p.Sub(view.Origin).Dot(view.Dir.Normalize())
	}
	return p.Sub(view.Origin).Len()
}

// SortedBricks returns the bricks ordered for drawing: nearest first for
// Ascending, farthest first for Descending. Ties keep grid order, so the
// order is stable from frame to frame for a fixed view.
func (t *Texture) SortedBricks(view brick.Ray, ortho bool, order brick.Order) []*brick.Brick {
	return sortBricks(slices.Clone(t.bricks), view, ortho, order)
}

func sortBricks(bs []*brick.Brick, view brick.Ray, ortho bool, order brick.Order) []*brick.Brick {
	keys := make(map[*brick.Brick]float64, len(bs))
	for _, b := range bs {
		keys[b] = viewDistance(b.BBox().Center(), view, ortho)
	}
	slices.SortStableFunc(bs, func(a, b *brick.Brick) int {
		ka, kb := keys[a], keys[b]
		if order == brick.Descending {
			ka, kb = kb, ka
		}
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		default:
			return a.ID() - b.ID()
		}
	})
	return bs
}

// ClosestBricks returns at most quota non-skippable bricks whose centres
// are nearest to center, ordered for drawing like SortedBricks. A quota of
// 0 or less returns every non-skippable brick.
func (t *Texture) ClosestBricks(center mgl64.Vec3, quota int, view brick.Ray, ortho bool, order brick.Order) []*brick.Brick {
	bs := make([]*brick.Brick, 0, len(t.bricks))
	for _, b := range t.bricks {
		if !b.Skippable() {
			bs = append(bs, b)
		}
	}
	if quota > 0 && quota < len(bs) {
		dist := make(map[*brick.Brick]float64, len(bs))
		for _, b := range bs {
			dist[b] = b.BBox().Center().Sub(center).Len()
		}
		slices.SortStableFunc(bs, func(a, b *brick.Brick) int {
			switch da, db := dist[a], dist[b]; {
			case da < db:
				return -1
			case da > db:
				return 1
			default:
				return a.ID() - b.ID()
			}
		})
		bs = bs[:quota]
	}
	return sortBricks(bs, view, ortho, order)
}

// Anchor returns the corner of the whole volume that anchors slice planes:
// the corner nearest along the view direction for Ascending, the farthest
// for Descending. Every brick of the volume slices against the same anchor.
func (t *Texture) Anchor(view brick.Ray, order brick.Order) mgl64.Vec3 {
	d := view.Dir.Normalize()
	best := math.Inf(1)
	var anchor mgl64.Vec3
	for _, c := range t.BBox().Corners() {
		k := c.Dot(d)
		if order == brick.Descending {
			k = -k
		}
		if k < best {
			best, anchor = k, c
		}
	}
	return anchor
}
