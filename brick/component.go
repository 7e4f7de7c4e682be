package brick

import "fmt"

// Component identifies a channel slot of a volume. The set is closed: every
// volume has the same four slots and a slot may be empty.
type Component uint8

const (
	// Intensity is the primary scalar channel (slot 0). It may carry packed
	// gradients, see KindIntensityGradient.
	Intensity Component = iota

	// Gradient is a separately stored gradient channel (slot 1).
	Gradient

	// Mask is the paint/segmentation mask (slot 2).
	Mask

	// Label is the connected-component label channel (slot 3).
	Label

	// NumComponents is the number of component slots.
	NumComponents
)

// String returns the component name.
func (c Component) String() string {
	switch c {
	case Intensity:
		return "intensity"
	case Gradient:
		return "gradient"
	case Mask:
		return "mask"
	case Label:
		return "label"
	default:
		return fmt.Sprintf("Component(%d)", c)
	}
}

// Kind tags the voxel layout stored in a component slot.
type Kind uint8

const (
	// KindNone marks an empty slot.
	KindNone Kind = iota

	// KindIntensity is scalar intensity, 8 or 16 bits.
	KindIntensity

	// KindIntensityGradient is RGBA8: gradient xyz plus intensity.
	KindIntensityGradient

	// KindGradient is a standalone RGBA8 gradient.
	KindGradient

	// KindMask is an 8-bit mask.
	KindMask

	// KindLabel is a 32-bit label id.
	KindLabel
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindIntensity:
		return "intensity"
	case KindIntensityGradient:
		return "intensity+gradient"
	case KindGradient:
		return "gradient"
	case KindMask:
		return "mask"
	case KindLabel:
		return "label"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// SupportsBytes reports whether n bytes per voxel is a valid width for k.
func (k Kind) SupportsBytes(n int) bool {
	switch k {
	case KindIntensity:
		return n == 1 || n == 2
	case KindIntensityGradient, KindGradient:
		return n == 4
	case KindMask:
		return n == 1
	case KindLabel:
		return n == 4
	default:
		return false
	}
}

// Slot returns the component slot a kind must occupy.
func (k Kind) Slot() Component {
	switch k {
	case KindGradient:
		return Gradient
	case KindMask:
		return Mask
	case KindLabel:
		return Label
	default:
		return Intensity
	}
}

// Mode is a render pass a brick can be drawn in. Drawn flags are tracked
// per mode.
type Mode uint8

const (
	// ModeRender is the main ray-cast pass.
	ModeRender Mode = iota
	// ModeShading is the separate shading pass.
	ModeShading
	// ModeShadow is the shadow pass.
	ModeShadow
	// ModeMask draws the mask overlay.
	ModeMask
	// ModeLabel draws the label overlay.
	ModeLabel

	// NumModes is the number of render modes.
	NumModes
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeRender:
		return "render"
	case ModeShading:
		return "shading"
	case ModeShadow:
		return "shadow"
	case ModeMask:
		return "mask"
	case ModeLabel:
		return "label"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Order is the global update order along the view direction.
type Order uint8

const (
	// Ascending draws front to back (increasing distance from the eye).
	Ascending Order = iota
	// Descending draws back to front.
	Descending
)

// String returns "ascending" or "descending".
func (o Order) String() string {
	if o == Descending {
		return "descending"
	}
	return "ascending"
}

// ParseOrder parses an update order name. Accepted values are "ascending",
// "front-to-back", "descending" and "back-to-front".
func ParseOrder(s string) (Order, error) {
	switch s {
	case "ascending", "front-to-back", "":
		return Ascending, nil
	case "descending", "back-to-front":
		return Descending, nil
	default:
		return Ascending, fmt.Errorf("brick: unknown update order %q", s)
	}
}
