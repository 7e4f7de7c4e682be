package volstream

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gogpu/volstream/config"
	"github.com/gogpu/volstream/volume"
)

// SelectLevel returns the coarsest pyramid level whose voxels, projected at
// pixelsPerUnit, are no larger than threshold pixels. spacings are ordered
// finest first. Level 0 is returned when no level qualifies or the
// projection is unknown.
func SelectLevel(spacings []mgl64.Vec3, pixelsPerUnit, threshold float64) int {
	if pixelsPerUnit <= 0 || threshold <= 0 {
		return 0
	}
	best := 0
	for i, s := range spacings {
		voxel := math.Min(s[0], math.Min(s[1], s[2])) * pixelsPerUnit
		if voxel <= threshold {
			best = i
		}
	}
	return best
}

// levelFor picks the level of a pyramid for a frame.
func levelFor(t *volume.Texture, f Frame, l config.Levels) int {
	n := t.LevelCount()
	spacings := make([]mgl64.Vec3, n)
	for i := range spacings {
		spacings[i] = t.LevelSpacing(i)
	}
	return SelectLevel(spacings, f.PixelsPerUnit, l.Threshold(f.Interactive))
}
