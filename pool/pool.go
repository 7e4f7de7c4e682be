package pool

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/volstream/brick"
)

// Pool errors.
var (
	// ErrBudgetExceeded is returned when a texture cannot fit in the byte
	// limit even after evicting every other texture.
	ErrBudgetExceeded = errors.New("pool: texture exceeds memory budget")

	// ErrSkippable is returned when an upload is requested for a brick with
	// no visible content.
	ErrSkippable = errors.New("pool: brick is skippable")

	// ErrClosed is returned when the pool has been closed.
	ErrClosed = errors.New("pool: closed")

	// ErrInvalidRegion is returned for a region that does not cover its
	// declared extent.
	ErrInvalidRegion = errors.New("pool: invalid region")
)

// Key identifies one brick texture: a brick of one component at one pyramid
// level of one volume.
type Key struct {
	Volume    int
	Level     int
	Brick     int
	Component brick.Component
}

// String returns a compact description of the key.
func (k Key) String() string {
	return fmt.Sprintf("v%d/L%d/b%d/%s", k.Volume, k.Level, k.Brick, k.Component)
}

// Upload describes the data of one brick texture.
type Upload struct {
	Data      brick.Region
	Format    Format
	Skippable bool
	Label     string
}

// entry is one resident texture.
type entry struct {
	key     Key
	tex     Texture
	desc    TextureDesc
	bytes   int64
	delayed bool
	pass    uint64
	elem    *list.Element
}

// Option configures a Pool.
type Option func(*Pool)

// WithBudget sets the pool budget.
func WithBudget(b Budget) Option {
	return func(p *Pool) { p.budget = b.normalized() }
}

// WithClock replaces the clock used to rate-limit memory queries.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// Pool keeps brick textures resident on a device under a byte budget.
//
// Texture memory is released only together with the ledger update that
// accounts for it. When an upload does not fit, textures are evicted in
// three tiers: those marked for delayed deletion, then those not drawn in
// the current pass, then the least recently used.
//
// Pool is safe for concurrent use.
type Pool struct {
	mu sync.Mutex

	dev       Device
	budget    Budget
	now       func() time.Time
	limit     int64
	queried   bool
	queriedAt time.Time

	entries map[Key]*entry
	lru     *list.List // front = most recently used
	used    int64
	pass    uint64
	delayed int

	uploads   uint64
	reuses    uint64
	evictions uint64

	closed bool
}

// New creates a pool that allocates on dev.
func New(dev Device, opts ...Option) *Pool {
	p := &Pool{
		dev:     dev,
		budget:  DefaultBudget(),
		now:     time.Now,
		entries: make(map[Key]*entry),
		lru:     list.New(),
	}
	for _, o := range opts {
		o(p)
	}
	p.limit = p.budget.Limit
	p.refreshLocked(true)
	return p
}

// Upload makes the texture for key resident and returns it.
//
// A resident texture with the same extent and format is rewritten in place,
// including one marked for delayed deletion, which is revived. Any other
// resident texture for the key is freed first. A texture larger than the
// limit fails before anything is freed. Once a mismatched texture has been
// freed it stays freed even if creating its replacement fails.
func (p *Pool) Upload(key Key, u Upload) (Texture, error) {
	if u.Skippable {
		return nil, ErrSkippable
	}
	if !u.Data.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRegion, key)
	}
	desc := TextureDesc{
		Label:  u.Label,
		Width:  u.Data.Nx,
		Height: u.Data.Ny,
		Depth:  u.Data.Nz,
		Format: u.Format,
	}
	if desc.Label == "" {
		desc.Label = key.String()
	}
	size := desc.Bytes()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	p.refreshLocked(false)
	if size > p.limit {
		return nil, fmt.Errorf("%w: %s needs %d bytes, limit %d", ErrBudgetExceeded, key, size, p.limit)
	}

	if e, ok := p.entries[key]; ok {
		if e.desc.Width == desc.Width && e.desc.Height == desc.Height && e.desc.Depth == desc.Depth && e.desc.Format == desc.Format {
			if err := p.dev.WriteTexture(e.tex, u.Data); err != nil {
				return nil, fmt.Errorf("pool: write %s: %w", key, err)
			}
			if e.delayed {
				e.delayed = false
				p.delayed--
			}
			e.pass = p.pass
			p.lru.MoveToFront(e.elem)
			p.reuses++
			return e.tex, nil
		}
		p.freeLocked(e)
	}

	if err := p.makeRoomLocked(size); err != nil {
		return nil, fmt.Errorf("%w: %s", err, key)
	}

	tex, err := p.dev.CreateTexture(desc)
	if err != nil {
		return nil, fmt.Errorf("pool: create %s: %w", key, err)
	}
	if err := p.dev.WriteTexture(tex, u.Data); err != nil {
		p.dev.DestroyTexture(tex)
		return nil, fmt.Errorf("pool: write %s: %w", key, err)
	}

	e := &entry{key: key, tex: tex, desc: desc, bytes: size, pass: p.pass}
	e.elem = p.lru.PushFront(e)
	p.entries[key] = e
	p.used += size
	p.uploads++
	return tex, nil
}

// makeRoomLocked evicts until size more bytes fit in the limit.
func (p *Pool) makeRoomLocked(size int64) error {
	for p.used+size > p.limit {
		v := p.victimLocked()
		if v == nil {
			return ErrBudgetExceeded
		}
		slogger().Debug("pool: evict", "key", v.key, "bytes", v.bytes, "delayed", v.delayed)
		p.freeLocked(v)
		p.evictions++
	}
	return nil
}

// victimLocked picks the next texture to evict.
func (p *Pool) victimLocked() *entry {
	var stale, oldest *entry
	for el := p.lru.Back(); el != nil; el = el.Prev() {
		e, ok := el.Value.(*entry)
		if !ok {
			continue
		}
		if e.delayed {
			return e
		}
		if oldest == nil {
			oldest = e
		}
		if stale == nil && e.pass != p.pass {
			stale = e
		}
	}
	if stale != nil {
		return stale
	}
	return oldest
}

// freeLocked destroys the texture and removes it from the ledger.
func (p *Pool) freeLocked(e *entry) {
	p.lru.Remove(e.elem)
	delete(p.entries, e.key)
	p.used -= e.bytes
	if e.delayed {
		p.delayed--
	}
	p.dev.DestroyTexture(e.tex)
}

// Lookup returns the resident texture for key. Textures marked for delayed
// deletion are not returned.
func (p *Pool) Lookup(key Key) (Texture, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok || e.delayed {
		return nil, false
	}
	return e.tex, true
}

// Contains reports whether key has a resident texture, delayed or not.
func (p *Pool) Contains(key Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[key]
	return ok
}

// Touch records that the texture for key was drawn in the current pass.
func (p *Pool) Touch(key Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok || e.delayed {
		return false
	}
	e.pass = p.pass
	p.lru.MoveToFront(e.elem)
	return true
}

// BeginPass starts a new drawing pass. Textures not touched after this call
// become preferred eviction candidates.
func (p *Pool) BeginPass() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pass++
	return p.pass
}

// Invalidate marks every texture of component c of a volume for delayed
// deletion. Their memory stays charged until they are evicted, revived by
// an upload or collected.
func (p *Pool) Invalidate(volume int, c brick.Component) int {
	return p.invalidate(func(k Key) bool { return k.Volume == volume && k.Component == c })
}

// InvalidateVolume marks every texture of a volume for delayed deletion.
func (p *Pool) InvalidateVolume(volume int) int {
	return p.invalidate(func(k Key) bool { return k.Volume == volume })
}

func (p *Pool) invalidate(match func(Key) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k, e := range p.entries {
		if !e.delayed && match(k) {
			e.delayed = true
			p.delayed++
			n++
		}
	}
	return n
}

// Collect frees every texture marked for delayed deletion and returns the
// number freed.
func (p *Pool) Collect() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(func(e *entry) bool { return e.delayed })
}

// ReleaseVolume frees every texture of a volume immediately.
func (p *Pool) ReleaseVolume(volume int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(func(e *entry) bool { return e.key.Volume == volume })
}

func (p *Pool) removeLocked(match func(*entry) bool) int {
	n := 0
	for el := p.lru.Back(); el != nil; {
		prev := el.Prev()
		if e, ok := el.Value.(*entry); ok && match(e) {
			p.freeLocked(e)
			n++
		}
		el = prev
	}
	return n
}

// Evict frees the texture for key immediately.
func (p *Pool) Evict(key Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok {
		return false
	}
	p.freeLocked(e)
	p.evictions++
	return true
}

// SetBudget replaces the budget and evicts until the ledger fits the new
// limit.
func (p *Pool) SetBudget(b Budget) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.budget = b.normalized()
	p.limit = p.budget.Limit
	p.queried = false
	p.refreshLocked(true)
	_ = p.makeRoomLocked(0)
}

// Refresh re-queries device memory when the budget is automatic and the
// refresh interval has elapsed.
func (p *Pool) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshLocked(false)
	_ = p.makeRoomLocked(0)
}

// refreshLocked updates the limit from the meter. A failed query keeps the
// previous limit.
func (p *Pool) refreshLocked(force bool) {
	if p.budget.Mode != ModeAuto || p.budget.Meter == nil {
		return
	}
	now := p.now()
	if !force && p.queried && now.Sub(p.queriedAt) < p.budget.Refresh {
		return
	}
	p.queriedAt = now
	avail, err := p.budget.Meter.AvailableMemory()
	if err != nil {
		slogger().Warn("pool: memory query failed", "err", err)
		return
	}
	p.queried = true
	limit := p.used + int64(float64(avail)*p.budget.Fraction)
	if limit != p.limit {
		slogger().Info("pool: limit updated", "limit", limit, "available", avail)
	}
	p.limit = limit
}

// Limit returns the effective byte limit.
func (p *Pool) Limit() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limit
}

// Used returns the bytes charged to resident textures.
func (p *Pool) Used() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

// Keys returns the keys of all resident textures from most to least
// recently used.
func (p *Pool) Keys() []Key {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]Key, 0, len(p.entries))
	for el := p.lru.Front(); el != nil; el = el.Next() {
		if e, ok := el.Value.(*entry); ok {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Stats returns a snapshot of the ledger.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{
		Limit:     p.limit,
		Used:      p.used,
		Entries:   len(p.entries),
		Delayed:   p.delayed,
		Uploads:   p.uploads,
		Reuses:    p.reuses,
		Evictions: p.evictions,
	}
	if p.limit > p.used {
		s.Available = p.limit - p.used
	}
	if p.limit > 0 {
		s.Utilization = float64(p.used) / float64(p.limit) * 100
	}
	return s
}

// Close frees every texture. Further uploads fail with ErrClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.removeLocked(func(*entry) bool { return true })
	p.closed = true
}
