//go:build !nogpu

package gpu

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/volstream/pool"
)

// ToWGPUFormat converts a pool texel format to the wgpu texture format.
// Label bricks stay R32Uint so ids are never interpolated; they cannot be
// sampled through a filtering sampler (see Filterable).
func ToWGPUFormat(f pool.Format) gputypes.TextureFormat {
	switch f {
	case pool.FormatR8:
		return gputypes.TextureFormatR8Unorm
	case pool.FormatR16:
		return gputypes.TextureFormatR16Unorm
	case pool.FormatRGBA8:
		return gputypes.TextureFormatRGBA8Unorm
	case pool.FormatR32:
		return gputypes.TextureFormatR32Uint
	default:
		return gputypes.TextureFormatR8Unorm
	}
}

// Filterable reports whether textures of format f can be sampled as
// texture_3d<f32> with linear filtering.
func Filterable(f pool.Format) bool {
	return f != pool.FormatR32
}
