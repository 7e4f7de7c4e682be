package volstream

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gogpu/volstream/brick"
	"github.com/gogpu/volstream/pool"
	"github.com/gogpu/volstream/schedule"
	"github.com/gogpu/volstream/volume"
)

// Frame is the camera state of one rendered frame.
type Frame struct {
	// View is the eye position and viewing direction in object space.
	View  brick.Ray
	Ortho bool

	// PixelsPerUnit is the on-screen size in pixels of one object-space
	// unit at the focus. It drives pyramid level selection; 0 keeps the
	// finest level.
	PixelsPerUnit float64

	// Focus is the point bricks are chosen around while interactive. Nil
	// uses the centre of each volume.
	Focus *mgl64.Vec3

	// Interactive is true while the camera moves.
	Interactive bool

	// MouseSpeed is the pointer speed in pixels per millisecond.
	MouseSpeed float64

	// Selected is the index of the selected volume among those rendered.
	Selected int

	// Modes are the passes every brick is drawn in. Nil draws ModeRender
	// only. Mask and label passes are added for volumes that carry those
	// components.
	Modes []brick.Mode
}

// DrawCall is one brick ready to draw.
type DrawCall struct {
	// Volume is the index of the volume in the slice passed to Render.
	Volume    int
	Texture   *volume.Texture
	Brick     *brick.Brick
	Mode      brick.Mode
	Component brick.Component

	// GPU is the resident brick texture.
	GPU pool.Texture

	// Polygons are the view-aligned slices of the brick, anchored at the
	// volume's slicing anchor.
	Polygons *brick.Polygons

	// Reverse is true when slices are drawn far to near.
	Reverse bool
}

// Drawer issues the draw commands of one brick.
type Drawer interface {
	Draw(DrawCall) error
}

// DrawerFunc adapts a function to the Drawer interface.
type DrawerFunc func(DrawCall) error

// Draw calls f.
func (f DrawerFunc) Draw(d DrawCall) error { return f(d) }

// FrameResult reports what one Render call did.
type FrameResult struct {
	State schedule.State

	// Restarted is true when this frame began a new pass.
	Restarted bool

	Processed int
	Drawn     int
	Skipped   int
	Failed    int
	Uploaded  int

	// Quota is the interactive brick quota, 0 when not interactive.
	Quota int

	Elapsed time.Duration
}

// Done reports whether the current pass has drawn every brick once.
func (r FrameResult) Done() bool { return r.State == schedule.StateDone }
