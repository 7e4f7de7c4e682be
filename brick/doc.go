// Package brick provides the spatial unit of out-of-core volume rendering.
//
// A Brick is an axis-aligned chunk of a volume. It owns no bulk voxel data:
// in-core bricks borrow a Region of the Buffer owned by their volume, and
// bricks backed by a pyramid file decode a private buffer on first access.
//
// # Slicing
//
// Bricks are ray-cast with view-aligned slice planes. The planes are spaced
// dt apart and anchored at a point shared by every brick of the volume, so
// neighbouring bricks produce geometrically continuous slices:
//
//	view := brick.Ray{Origin: eye, Dir: dir}
//	anchor := vol.Anchor(view, brick.Descending)
//	polys := b.ComputePolygons(view, anchor, dt)
//	for i := 0; i < polys.Len(); i++ {
//	    verts, texs := polys.Polygon(i, true)
//	    ...
//	}
//
// Each polygon is convex with 3 to 6 vertices and can be drawn as a triangle
// fan (see FanIndices).
package brick
