package volstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/gogpu/volstream/brick"
	"github.com/gogpu/volstream/config"
	"github.com/gogpu/volstream/internal/cache"
	"github.com/gogpu/volstream/loader"
	"github.com/gogpu/volstream/pool"
	"github.com/gogpu/volstream/schedule"
	"github.com/gogpu/volstream/volume"
)

// ErrClosed is returned by operations on a closed context.
var ErrClosed = errors.New("volstream: context closed")

// volState is what the context remembers about a volume between frames.
type volState struct {
	id          int
	dataVersion uint64
	maskVersion uint64
	level       int
	bricks      []*brick.Brick
	fetcher     brick.Fetcher
}

// signature captures everything that invalidates a pass in progress.
type signature struct {
	view        brick.Ray
	ortho       bool
	interactive bool
	focus       mgl64.Vec3
	selected    int
	modes       string
	settings    uint64
}

// RenderResourceContext owns the GPU brick pool, the decoded brick cache,
// the frame scheduler and the loader of one renderer.
//
// A RenderResourceContext is driven from the rendering thread and is not
// safe for concurrent use. Pool statistics may be read from any goroutine
// through Pool.
type RenderResourceContext struct {
	dev      pool.Device
	pool     *pool.Pool
	cpu      *cache.Cache[*brick.Brick]
	sched    *schedule.Scheduler
	est      *schedule.Estimator
	loader   *loader.Loader
	ownsLoad bool
	clock    schedule.Clock
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	settings        *config.Settings
	settingsVersion uint64
	order           brick.Order
	meter           pool.Meter
	budget          *pool.Budget

	vols   map[*volume.Texture]*volState
	nextID int

	// Pass state, set by restart.
	active   []*volume.Texture
	anchors  []mgl64.Vec3
	sig      signature
	started  bool
	frame    Frame
	arrivals int
	stats    FrameResult

	closed bool
}

// NewRenderResourceContext creates a context that uploads bricks to dev.
func NewRenderResourceContext(dev pool.Device, opts ...Option) (*RenderResourceContext, error) {
	if dev == nil {
		return nil, errors.New("volstream: nil device")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.settings.Validate(); err != nil {
		return nil, err
	}
	order, err := brick.ParseOrder(o.settings.Render.UpdateOrder)
	if err != nil {
		return nil, err
	}

	c := &RenderResourceContext{
		dev:      dev,
		clock:    o.clock,
		log:      o.logger,
		settings: o.settings,
		order:    order,
		meter:    o.meter,
		budget:   o.budget,
		vols:     make(map[*volume.Texture]*volState),
		est:      schedule.NewEstimator(schedule.DefaultWindow),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.loader = o.loader
	if c.loader == nil {
		l, err := newLoader(o.settings.Network)
		if err != nil {
			c.cancel()
			return nil, err
		}
		c.loader = l
		c.ownsLoad = true
	}

	c.pool = pool.New(dev, pool.WithBudget(c.poolBudget()))
	c.cpu = cache.New(c.cpuLimit(), func(b *brick.Brick) { b.FreeCache() })
	c.sched = schedule.New(
		schedule.WithClock(o.clock),
		schedule.WithBudget(o.settings.Render.ResponseTime),
	)
	registerDevice(dev)
	c.logger().Debug("volstream: context created", "budget", c.pool.Limit(), "order", c.order)
	return c, nil
}

func newLoader(n config.Network) (*loader.Loader, error) {
	opts := []loader.Option{
		loader.WithMaxTransfers(n.MaxTransfers),
		loader.WithTimeout(n.Timeout),
	}
	if n.CacheDir != "" {
		dir, err := loader.NewCacheDir(n.CacheDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, loader.WithCacheDir(dir))
	}
	return loader.New(opts...), nil
}

func (c *RenderResourceContext) logger() *slog.Logger {
	if c.log != nil {
		return c.log
	}
	return Logger()
}

// poolBudget derives the GPU budget from the settings.
func (c *RenderResourceContext) poolBudget() pool.Budget {
	if c.budget != nil {
		return *c.budget
	}
	m := c.settings.Memory
	b := pool.Budget{
		Mode:     pool.ModeLimit,
		Limit:    int64(m.LimitMB) << 20,
		Fraction: m.AutoFraction,
		Refresh:  m.RefreshInterval,
	}
	if !m.UseLimit && c.meter != nil {
		b.Mode = pool.ModeAuto
		b.Meter = c.meter
	}
	return b
}

// cpuLimit is the decoded brick budget; 0 is unlimited.
func (c *RenderResourceContext) cpuLimit() int64 {
	m := c.settings.Memory
	if !m.MainMemory {
		return 0
	}
	return int64(m.MainMemoryLimitMB) << 20
}

// Pool returns the GPU brick pool.
func (c *RenderResourceContext) Pool() *pool.Pool { return c.pool }

// Loader returns the context's loader.
func (c *RenderResourceContext) Loader() *loader.Loader { return c.loader }

// Settings returns a copy of the active settings.
func (c *RenderResourceContext) Settings() *config.Settings { return c.settings.Clone() }

// Status returns the scheduler status.
func (c *RenderResourceContext) Status() schedule.Status { return c.sched.Status() }

// CacheStats returns the decoded brick cache statistics.
func (c *RenderResourceContext) CacheStats() cache.Stats { return c.cpu.Stats() }

// VolumeID returns the pool key volume ID of t, assigning one on first use.
func (c *RenderResourceContext) VolumeID(t *volume.Texture) int {
	return c.state(t).id
}

func (c *RenderResourceContext) state(t *volume.Texture) *volState {
	s, ok := c.vols[t]
	if !ok {
		c.nextID++
		s = &volState{id: c.nextID, dataVersion: t.DataVersion(), maskVersion: t.MaskVersion(), level: t.Level()}
		c.vols[t] = s
	}
	return s
}

// Render advances the progressive draw of vols by one frame.
//
// A change of view, data, mask or settings since the previous frame starts
// a new pass. Otherwise the pass resumes where the previous frame stopped.
// Once a pass is done, Render draws nothing until something changes or
// bricks that failed on pending transfers become available.
func (c *RenderResourceContext) Render(f Frame, vols []*volume.Texture, d Drawer) (FrameResult, error) {
	if c.closed {
		return FrameResult{}, ErrClosed
	}
	for _, l := range c.loaders(vols) {
		c.arrivals += l.Poll()
	}
	c.pool.Refresh()

	for _, t := range vols {
		if t.IsPyramid() {
			t.SetLevel(levelFor(t, f, c.settings.Levels))
		}
	}

	restart := c.needsRestart(f, vols)
	if !restart && c.sched.Done() && c.arrivals > 0 && len(c.sched.Failed()) > 0 {
		c.logger().Debug("volstream: transfers arrived, restarting pass", "arrivals", c.arrivals)
		restart = true
	}
	if restart {
		c.restart(f, vols)
	}

	c.stats = FrameResult{Restarted: restart, Quota: c.sched.Status().Quota}
	wasDone := c.sched.Done()
	r := c.sched.Step(func(u schedule.Unit) error { return c.execute(u, d) })
	c.stats.State = r.State
	c.stats.Processed = r.Processed
	c.stats.Failed = r.Failed
	c.stats.Elapsed = r.Elapsed

	if c.stats.Drawn > 0 {
		c.est.Observe(r.Elapsed, c.stats.Drawn)
	}
	if !wasDone && r.State == schedule.StateDone {
		n := c.pool.Collect()
		c.logger().Debug("volstream: pass done", "failed", len(c.sched.Failed()), "collected", n, "pool", c.pool.Stats())
	}
	return c.stats, nil
}

// loaders returns the distinct loaders of the context and vols.
func (c *RenderResourceContext) loaders(vols []*volume.Texture) []*loader.Loader {
	ls := []*loader.Loader{c.loader}
	for _, t := range vols {
		if l := t.Loader(); l != nil && !slices.Contains(ls, l) {
			ls = append(ls, l)
		}
	}
	return ls
}

// needsRestart compares the frame against the pass in progress and
// invalidates GPU textures of volumes whose data changed.
func (c *RenderResourceContext) needsRestart(f Frame, vols []*volume.Texture) bool {
	restart := !c.started || !slices.Equal(c.active, vols)
	for _, t := range vols {
		s := c.state(t)
		if v := t.DataVersion(); v != s.dataVersion {
			s.dataVersion = v
			n := 0
			for comp := brick.Component(0); comp < brick.NumComponents; comp++ {
				if comp != brick.Mask {
					n += c.pool.Invalidate(s.id, comp)
				}
			}
			c.dropDecoded(s)
			c.logger().Debug("volstream: volume data changed", "volume", t.Name(), "invalidated", n)
			restart = true
		}
		if v := t.MaskVersion(); v != s.maskVersion {
			s.maskVersion = v
			c.pool.Invalidate(s.id, brick.Mask)
			restart = true
		}
		if l := t.Level(); l != s.level {
			s.level = l
			restart = true
		}
	}
	return restart || c.signature(f) != c.sig
}

func (c *RenderResourceContext) signature(f Frame) signature {
	s := signature{
		view:        f.View,
		ortho:       f.Ortho,
		interactive: f.Interactive,
		selected:    f.Selected,
		settings:    c.settingsVersion,
	}
	if f.Focus != nil {
		s.focus = *f.Focus
	}
	for _, m := range f.Modes {
		s.modes += m.String() + ","
	}
	return s
}

// restart builds the unit list of a new pass and starts the scheduler.
func (c *RenderResourceContext) restart(f Frame, vols []*volume.Texture) {
	c.sched.Halt()
	c.pool.BeginPass()
	c.frame = f
	c.sig = c.signature(f)
	c.active = slices.Clone(vols)
	c.anchors = make([]mgl64.Vec3, len(vols))
	c.started = true
	c.arrivals = 0

	quota := 0
	var alloc []int
	if f.Interactive {
		quota = c.est.Quota(c.settings.Render.ResponseTime, f.MouseSpeed)
		counts := make([]int, len(vols))
		for i, t := range vols {
			for _, b := range t.Bricks() {
				if !b.Skippable() {
					counts[i]++
				}
			}
		}
		alloc = schedule.Distribute(counts, f.Selected, quota)
	}

	sets := make([]schedule.BrickSet, len(vols))
	for i, t := range vols {
		s := c.state(t)
		t.ResetDrawn()
		s.bricks = t.Bricks()
		s.fetcher = t.Fetcher()
		c.anchors[i] = t.Anchor(f.View, c.order)

		var bs []*brick.Brick
		if f.Interactive {
			center := t.BBox().Center()
			if f.Focus != nil {
				center = *f.Focus
			}
			if alloc[i] > 0 {
				bs = t.ClosestBricks(center, alloc[i], f.View, f.Ortho, c.order)
			}
		} else {
			bs = t.SortedBricks(f.View, f.Ortho, c.order)
		}
		sets[i] = schedule.BrickSet{Volume: i, Bricks: bs, Modes: modesFor(t, f.Modes)}
	}

	budget := c.settings.Render.ResponseTime
	if !f.Interactive && c.smallData(vols) {
		budget = 0
	}
	c.sched.SetBudget(budget)
	c.sched.SetInteractive(f.Interactive, quota)
	c.sched.Start(schedule.Units(sets))
	c.logger().Debug("volstream: pass restarted", "volumes", len(vols), "interactive", f.Interactive, "quota", quota, "budget", budget)
}

// smallData reports whether vols are in-core and together below the
// large-data threshold, so the whole pass fits in one frame.
func (c *RenderResourceContext) smallData(vols []*volume.Texture) bool {
	var total int64
	for _, t := range vols {
		if t.IsPyramid() {
			return false
		}
		total += t.Bytes()
	}
	return total < int64(c.settings.Render.LargeDataMB)<<20
}

// modesFor returns the passes of a volume.
func modesFor(t *volume.Texture, base []brick.Mode) []brick.Mode {
	modes := slices.Clone(base)
	if len(modes) == 0 {
		modes = []brick.Mode{brick.ModeRender}
	}
	if t.HasComponent(brick.Mask) && !slices.Contains(modes, brick.ModeMask) {
		modes = append(modes, brick.ModeMask)
	}
	if t.HasComponent(brick.Label) && !slices.Contains(modes, brick.ModeLabel) {
		modes = append(modes, brick.ModeLabel)
	}
	return modes
}

// componentFor returns the component a pass samples.
func componentFor(m brick.Mode) brick.Component {
	switch m {
	case brick.ModeMask:
		return brick.Mask
	case brick.ModeLabel:
		return brick.Label
	default:
		return brick.Intensity
	}
}

// execute makes one brick resident and draws it.
func (c *RenderResourceContext) execute(u schedule.Unit, d Drawer) error {
	t := c.active[u.Volume]
	s := c.state(t)
	b := u.Brick
	comp := componentFor(u.Mode)

	if b.Skippable() {
		b.SetDrawn(u.Mode, true)
		c.stats.Skipped++
		return nil
	}

	key := pool.Key{Volume: s.id, Level: t.Level(), Brick: b.ID(), Component: comp}
	gpu, ok := c.pool.Lookup(key)
	if ok {
		c.pool.Touch(key)
	} else {
		var err error
		gpu, err = c.upload(t, s, b, key)
		if errors.Is(err, pool.ErrSkippable) {
			b.SetDrawn(u.Mode, true)
			c.stats.Skipped++
			return nil
		}
		if err != nil {
			return err
		}
	}

	call := DrawCall{
		Volume:    u.Volume,
		Texture:   t,
		Brick:     b,
		Mode:      u.Mode,
		Component: comp,
		GPU:       gpu,
		Polygons:  b.ComputePolygons(c.frame.View, c.anchors[u.Volume], c.sliceDistance(t)),
		Reverse:   c.order == brick.Descending,
	}
	if err := d.Draw(call); err != nil {
		return fmt.Errorf("volstream: draw %s: %w", b, err)
	}
	b.SetDrawn(u.Mode, true)
	c.stats.Drawn++
	return nil
}

// upload decodes a brick's component and uploads it to the pool.
func (c *RenderResourceContext) upload(t *volume.Texture, s *volState, b *brick.Brick, key pool.Key) (pool.Texture, error) {
	comp := key.Component
	var (
		region brick.Region
		err    error
	)
	if buf := t.Buffer(comp); buf != nil {
		var ok bool
		if region, ok = b.TexData(comp, buf); !ok {
			return nil, fmt.Errorf("volstream: %s has no %s data", b, comp)
		}
	} else {
		if s.fetcher == nil {
			return nil, fmt.Errorf("volstream: %s has no source for %s", b, comp)
		}
		region, err = b.TexDataBrk(c.ctx, comp, s.fetcher)
		if err != nil {
			if errors.Is(err, loader.ErrPending) {
				c.logger().Debug("volstream: brick pending", "brick", b.String(), "volume", t.Name())
			} else {
				c.logger().Warn("volstream: brick decode failed", "brick", b.String(), "volume", t.Name(), "err", err)
			}
			return nil, err
		}
		b.SetPriorityFromCache()
		c.cpu.Add(b, int64(b.CacheBytes()))
	}

	format, err := pool.FormatFor(t.Kind(comp), b.BytesPerVoxel(comp))
	if err != nil {
		return nil, err
	}
	gpu, err := c.pool.Upload(key, pool.Upload{Data: region, Format: format, Skippable: b.Skippable()})
	if err != nil {
		if !errors.Is(err, pool.ErrSkippable) {
			c.logger().Warn("volstream: upload failed", "key", key.String(), "err", err)
		}
		return nil, err
	}
	c.stats.Uploaded++
	return gpu, nil
}

// dropDecoded removes the bricks of the last pass from the decoded cache
// and frees their buffers.
func (c *RenderResourceContext) dropDecoded(s *volState) {
	for _, b := range s.bricks {
		c.cpu.Remove(b)
		b.FreeCache()
	}
}

// sliceDistance returns the slice spacing of a volume in object units.
func (c *RenderResourceContext) sliceDistance(t *volume.Texture) float64 {
	sp := t.Spacing()
	return c.settings.Render.SliceDistance * math.Min(sp[0], math.Min(sp[1], sp[2]))
}

// Halt abandons the pass in progress. The next Render starts a new one.
func (c *RenderResourceContext) Halt() {
	c.sched.Halt()
	c.started = false
}

// ApplySettings validates and installs new settings between frames. The
// memory budgets are applied immediately; the next Render restarts the
// pass. A new brick size discards the measured per-brick cost.
func (c *RenderResourceContext) ApplySettings(s *config.Settings) error {
	if c.closed {
		return ErrClosed
	}
	if err := s.Validate(); err != nil {
		return err
	}
	order, err := brick.ParseOrder(s.Render.UpdateOrder)
	if err != nil {
		return err
	}
	if s.Render.BrickSize != c.settings.Render.BrickSize {
		c.est.Reset()
	}
	c.settings = s.Clone()
	c.settingsVersion++
	c.order = order
	c.pool.SetBudget(c.poolBudget())
	c.cpu.SetLimit(c.cpuLimit())
	c.sched.SetBudget(s.Render.ResponseTime)
	c.logger().Info("volstream: settings applied", "pool", c.pool.Limit(), "order", order, "responseTime", s.Render.ResponseTime)
	return nil
}

// ReleaseVolume frees the GPU textures and decoded bricks of a volume the
// host no longer renders.
func (c *RenderResourceContext) ReleaseVolume(t *volume.Texture) {
	s, ok := c.vols[t]
	if !ok {
		return
	}
	c.pool.ReleaseVolume(s.id)
	c.dropDecoded(s)
	t.FreeCaches()
	delete(c.vols, t)
	if slices.Contains(c.active, t) {
		c.Halt()
	}
}

// DeleteCacheFiles removes every persisted brick payload of the context's
// loader and of the loaders of volumes it has rendered.
func (c *RenderResourceContext) DeleteCacheFiles() error {
	vols := make([]*volume.Texture, 0, len(c.vols))
	for t := range c.vols {
		vols = append(vols, t)
	}
	var errs []error
	for _, l := range c.loaders(vols) {
		if err := l.DeleteCacheFiles(""); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close frees every GPU texture and decoded brick and stops the owned
// loader.
func (c *RenderResourceContext) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.sched.Halt()
	c.cancel()
	c.cpu.Clear()
	c.pool.Close()
	unregisterDevice(c.dev)
	if c.ownsLoad {
		return c.loader.Close()
	}
	return nil
}
