package pool

import (
	"errors"
	"fmt"

	"github.com/gogpu/volstream/brick"
)

// ErrUnsupportedFormat is returned when no texel format matches a
// component kind and byte width.
var ErrUnsupportedFormat = errors.New("pool: unsupported texel format")

// Format is the texel format of a brick texture.
type Format uint8

const (
	// FormatR8 is single-channel 8-bit, used for intensity and masks.
	FormatR8 Format = iota

	// FormatR16 is single-channel 16-bit intensity.
	FormatR16

	// FormatRGBA8 is packed gradient plus intensity.
	FormatRGBA8

	// FormatR32 is single-channel 32-bit, used for labels.
	FormatR32
)

// String returns a human-readable name for the format.
func (f Format) String() string {
	switch f {
	case FormatR8:
		return "R8"
	case FormatR16:
		return "R16"
	case FormatRGBA8:
		return "RGBA8"
	case FormatR32:
		return "R32"
	default:
		return fmt.Sprintf("Unknown(%d)", f)
	}
}

// BytesPerTexel returns the number of bytes per texel for the format.
func (f Format) BytesPerTexel() int {
	switch f {
	case FormatR8:
		return 1
	case FormatR16:
		return 2
	default:
		return 4
	}
}

// FormatFor returns the texel format of a component kind stored with the
// given number of bytes per voxel.
func FormatFor(k brick.Kind, bytesPerVoxel int) (Format, error) {
	switch {
	case k == brick.KindIntensity && bytesPerVoxel == 1, k == brick.KindMask && bytesPerVoxel == 1:
		return FormatR8, nil
	case k == brick.KindIntensity && bytesPerVoxel == 2:
		return FormatR16, nil
	case (k == brick.KindIntensityGradient || k == brick.KindGradient) && bytesPerVoxel == 4:
		return FormatRGBA8, nil
	case k == brick.KindLabel && bytesPerVoxel == 4:
		return FormatR32, nil
	default:
		return 0, fmt.Errorf("%w: %s with %d bytes per voxel", ErrUnsupportedFormat, k, bytesPerVoxel)
	}
}
