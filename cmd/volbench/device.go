//go:build !nogpu

package main

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/gogpu/volstream"
	"github.com/gogpu/volstream/brick"
	"github.com/gogpu/volstream/gpu"
	"github.com/gogpu/volstream/pool"
)

// targetSize is the edge length of the offscreen target in pixels.
const targetSize = 512

// openDevice returns the named brick device, the drawer for its frames and
// a function that closes both. It must run after the context is closed.
func openDevice(name string) (pool.Device, frameDrawer, func(), error) {
	switch name {
	case "noop":
		dev, err := gpu.OpenNoop()
		if err != nil {
			return nil, nil, nil, err
		}
		target, err := dev.NewTarget(targetSize, targetSize)
		if err != nil {
			dev.Close()
			return nil, nil, nil, err
		}
		d := &gpuDrawer{slices: dev.NewDrawer(), target: target}
		return dev, d, func() {
			target.Destroy()
			dev.Close()
		}, nil
	case "memory":
		return newMemDevice(), &counter{}, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown device %q", name)
	}
}

// gpuDrawer draws slices into an offscreen target and tallies them.
type gpuDrawer struct {
	counter
	slices *gpu.Drawer
	target *gpu.Target
}

func (g *gpuDrawer) Begin(f volstream.Frame, box brick.BBox) {
	g.slices.Begin(g.target.View(), viewProj(f, box))
}

func (g *gpuDrawer) Draw(d volstream.DrawCall) error {
	if err := g.counter.Draw(d); err != nil {
		return err
	}
	return g.slices.Draw(d)
}

func (g *gpuDrawer) End() error { return g.slices.End() }

// viewProj maps object space to clip space for a square target, with the
// near and far planes around box.
func viewProj(f volstream.Frame, box brick.BBox) mgl32.Mat4 {
	eye := f.View.Origin
	size := float32(box.Size().Len())
	dist := float32(box.Center().Sub(eye).Len())
	near := max(dist-size, size/100)
	far := dist + size

	view := mgl32.LookAtV(vec32(eye), vec32(eye.Add(f.View.Dir)), mgl32.Vec3{0, 1, 0})
	var proj mgl32.Mat4
	if f.Ortho {
		proj = mgl32.Ortho(-size/2, size/2, -size/2, size/2, near, far)
	} else {
		proj = mgl32.Perspective(mgl32.DegToRad(30), 1, near, far)
	}
	return proj.Mul4(view)
}

func vec32(v mgl64.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}
