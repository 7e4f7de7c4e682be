// Command volbench drives a RenderResourceContext over a synthetic volume
// and reports how many frames a pass takes under the configured budgets.
package main

import (
	"flag"
	"log"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/mitchellh/go-homedir"

	"github.com/gogpu/volstream"
	"github.com/gogpu/volstream/brick"
	"github.com/gogpu/volstream/config"
	"github.com/gogpu/volstream/volume"
)

func main() {
	var (
		configPath  = flag.String("config", "~/.config/volstream/settings.yaml", "settings file")
		writeConfig = flag.Bool("write-config", false, "write the default settings to -config and exit")
		watch       = flag.Bool("watch", false, "reload settings when the file changes")
		size        = flag.Int("size", 128, "volume edge length in voxels")
		brickSize   = flag.Int("brick", 32, "brick edge length, 0 uses the settings")
		withMask    = flag.Bool("mask", false, "add a mask component")
		frames      = flag.Int("frames", 100, "maximum number of frames")
		interactive = flag.Bool("interactive", false, "orbit the camera every frame")
		speed       = flag.Float64("speed", 1, "mouse speed in pixels per millisecond while orbiting")
		device      = flag.String("device", "noop", "brick device: noop (HAL) or memory")
		verbose     = flag.Bool("v", false, "log debug output")
	)
	flag.Parse()

	if *verbose {
		volstream.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	path, err := homedir.Expand(*configPath)
	if err != nil {
		log.Fatalf("Failed to expand %s: %v", *configPath, err)
	}
	if *writeConfig {
		if err := config.Save(config.Default(), path); err != nil {
			log.Fatalf("Failed to write settings: %v", err)
		}
		log.Printf("Default settings written to %s\n", path)
		return
	}
	settings, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	dev, d, closeDev, err := openDevice(*device)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer closeDev()

	rc, err := volstream.NewRenderResourceContext(dev, volstream.WithSettings(settings))
	if err != nil {
		log.Fatalf("Failed to create context: %v", err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			log.Printf("Close: %v", err)
		}
	}()

	reload := make(chan *config.Settings, 1)
	if *watch {
		w, err := config.Watch(path, func(s *config.Settings, err error) {
			if err != nil {
				log.Printf("Ignoring settings change: %v", err)
				return
			}
			select {
			case reload <- s:
			default:
			}
		})
		if err != nil {
			log.Fatalf("Failed to watch %s: %v", path, err)
		}
		defer w.Close()
	}

	bs := *brickSize
	if bs == 0 {
		bs = settings.Render.BrickSize
	}
	tex, err := sphere(*size, bs, settings, *withMask)
	if err != nil {
		log.Fatalf("Failed to build volume: %v", err)
	}
	log.Printf("Volume %d³ in %d bricks of %d³\n", *size, len(tex.Bricks()), tex.BrickSize())

	start := time.Now()
	var sum volstream.FrameResult
	for i := range *frames {
		select {
		case s := <-reload:
			if err := rc.ApplySettings(s); err != nil {
				log.Printf("ApplySettings: %v", err)
			}
		default:
		}

		f := orbit(tex, i, *interactive, *speed)
		d.Begin(f, tex.BBox())
		res, err := rc.Render(f, []*volume.Texture{tex}, d)
		if err != nil {
			log.Fatalf("Render: %v", err)
		}
		if err := d.End(); err != nil {
			log.Fatalf("Submit slices: %v", err)
		}
		sum.Drawn += res.Drawn
		sum.Skipped += res.Skipped
		sum.Uploaded += res.Uploaded
		sum.Failed += res.Failed
		if *verbose {
			log.Printf("frame %d: %s drawn=%d uploaded=%d quota=%d elapsed=%s\n",
				i, res.State, res.Drawn, res.Uploaded, res.Quota, res.Elapsed)
		}
		if res.Done() && !*interactive && !*watch {
			log.Printf("Pass done in %d frames\n", i+1)
			break
		}
	}

	log.Printf("Drew %d bricks (%d skipped, %d uploads, %d failed) and %d slice vertices in %s\n",
		sum.Drawn, sum.Skipped, sum.Uploaded, sum.Failed, d.Vertices(), time.Since(start))
	log.Printf("%s\n", rc.Pool().Stats())
}

// sphere builds a volume whose intensity falls off from the centre and is
// zero outside the inscribed sphere, so corner bricks are skippable.
func sphere(n, brickSize int, s *config.Settings, withMask bool) (*volume.Texture, error) {
	buf := brick.NewBuffer(n, n, n, 1)
	c := float64(n-1) / 2
	for z := range n {
		for y := range n {
			for x := range n {
				r := math.Sqrt(sq(float64(x)-c)+sq(float64(y)-c)+sq(float64(z)-c)) / c
				if r < 1 {
					buf.Data[(z*n+y)*n+x] = byte(255 * (1 - r))
				}
			}
		}
	}
	comps := []volume.Component{{Kind: brick.KindIntensity, Data: buf}}
	if withMask {
		comps = append(comps, volume.Component{Kind: brick.KindMask, Data: brick.NewBuffer(n, n, n, 1)})
	}
	return volume.Build(volume.BuildSpec{
		Name:           "sphere",
		Nx:             n,
		Ny:             n,
		Nz:             n,
		MaxTextureSize: s.Render.MaxTextureSize,
		BrickSize:      brickSize,
		MaskUndoDepth:  s.Render.MaskUndoDepth,
		Components:     comps,
	})
}

func sq(v float64) float64 { return v * v }

// orbit returns the camera of frame i. A still camera looks down +z; an
// orbiting one turns five degrees per frame around the volume.
func orbit(t *volume.Texture, i int, interactive bool, speed float64) volstream.Frame {
	box := t.BBox()
	center := box.Center()
	dist := 2 * box.Size().Len()
	angle := 0.0
	if interactive {
		angle = float64(i) * 5 * math.Pi / 180
	}
	eye := center.Add(mgl64.Vec3{dist * math.Sin(angle), 0, -dist * math.Cos(angle)})
	f := volstream.Frame{
		View:        brick.Ray{Origin: eye, Dir: center.Sub(eye).Normalize()},
		Interactive: interactive,
	}
	if interactive {
		f.MouseSpeed = speed
		f.Focus = &center
	}
	return f
}

// frameDrawer is a Drawer bracketed by Begin and End around each frame.
type frameDrawer interface {
	volstream.Drawer
	Begin(f volstream.Frame, box brick.BBox)
	End() error
	Vertices() int
}

// counter is a frameDrawer that tallies slice geometry.
type counter struct {
	vertices int
}

func (c *counter) Begin(volstream.Frame, brick.BBox) {}

func (c *counter) End() error { return nil }

// Vertices returns the number of slice vertices drawn.
func (c *counter) Vertices() int { return c.vertices }

func (c *counter) Draw(d volstream.DrawCall) error {
	for k := range d.Polygons.Len() {
		c.vertices += d.Polygons.VertexCount(k)
	}
	return nil
}
