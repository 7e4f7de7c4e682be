package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gogpu/volstream/brick"
)

// ErrPending is returned by Fetch while a remote transfer for the brick is
// still in flight. It is not a failure: the brick is simply not available
// in this frame.
var ErrPending = errors.New("loader: transfer pending")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("loader: closed")

// Default transfer settings.
const (
	DefaultMaxTransfers = 8
	DefaultTimeout      = 30 * time.Second
)

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client used for remote files.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithCacheDir persists remote payloads under dir.
func WithCacheDir(dir *CacheDir) Option {
	return func(l *Loader) { l.cache = dir }
}

// WithMaxTransfers bounds the number of concurrent remote transfers.
func WithMaxTransfers(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxTransfers = n
		}
	}
}

// WithTimeout bounds a single remote transfer.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// result is a finished transfer waiting to be picked up by Fetch.
type result struct {
	data []byte
	err  error
}

// Loader reads brick payloads from local files and remote URLs.
//
// Load is synchronous for every source. Fetch is synchronous for local
// files and asynchronous for remote ones. Loader is safe for concurrent use.
type Loader struct {
	client       *http.Client
	cache        *CacheDir
	maxTransfers int
	timeout      time.Duration

	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
	done     map[string]result
	arrived  int
	closed   bool
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		client:       http.DefaultClient,
		maxTransfers: DefaultMaxTransfers,
		timeout:      DefaultTimeout,
		inflight:     make(map[string]struct{}),
		done:         make(map[string]result),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.sem = semaphore.NewWeighted(int64(l.maxTransfers))
	l.ctx, l.cancel = context.WithCancel(context.Background())
	return l
}

// CacheDir returns the on-disk cache, or nil.
func (l *Loader) CacheDir() *CacheDir { return l.cache }

// Load reads and decodes a brick synchronously.
func (l *Loader) Load(ctx context.Context, r Request) ([]byte, error) {
	raw, err := l.read(ctx, r)
	if err != nil {
		return nil, err
	}
	return Decode(r.File.Codec, raw, r.Shape)
}

// Fetch returns the decoded brick if it is available now. Local files are
// read synchronously. For remote files the first call starts a background
// transfer and returns ErrPending; once Poll has reported it, the next call
// returns the result. A failed transfer reports its error once and is
// retried on the following call.
func (l *Loader) Fetch(ctx context.Context, r Request) ([]byte, error) {
	if !r.File.Remote() {
		return l.Load(ctx, r)
	}

	key := r.key()
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if res, ok := l.done[key]; ok {
		delete(l.done, key)
		l.mu.Unlock()
		if res.err != nil {
			return nil, res.err
		}
		return Decode(r.File.Codec, res.data, r.Shape)
	}
	_, busy := l.inflight[key]
	l.mu.Unlock()
	if busy {
		return nil, ErrPending
	}

	if l.cache != nil {
		if raw, err := l.cache.Read(r); err == nil {
			return Decode(r.File.Codec, raw, r.Shape)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if _, ok := l.inflight[key]; ok {
		return nil, ErrPending
	}
	l.inflight[key] = struct{}{}
	l.wg.Add(1)
	go l.transfer(key, r)
	return nil, ErrPending
}

// transfer runs one remote fetch on a background goroutine.
func (l *Loader) transfer(key string, r Request) {
	defer l.wg.Done()

	var res result
	if err := l.sem.Acquire(l.ctx, 1); err != nil {
		res.err = fmt.Errorf("%w: %w", ErrClosed, err)
	} else {
		ctx, cancel := context.WithTimeout(l.ctx, l.timeout)
		res.data, res.err = l.fetchRemote(ctx, r)
		cancel()
		l.sem.Release(1)
	}

	if res.err != nil {
		slogger().Warn("loader: transfer failed", "url", r.File.URL, "offset", r.Offset, "err", res.err)
	} else {
		slogger().Debug("loader: transfer done", "url", r.File.URL, "offset", r.Offset, "bytes", len(res.data))
	}

	l.mu.Lock()
	delete(l.inflight, key)
	if !l.closed {
		l.done[key] = res
		l.arrived++
	}
	l.mu.Unlock()
}

// Poll reports how many transfers finished since the previous call. It
// never blocks.
func (l *Loader) Poll() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.arrived
	l.arrived = 0
	return n
}

// Pending returns the number of transfers in flight.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inflight)
}

// Wait blocks until every in-flight transfer has finished.
func (l *Loader) Wait() {
	l.wg.Wait()
}

// DeleteCacheFiles removes persisted payloads of dataset, or all of them
// when dataset is empty. It is a no-op without a cache dir.
func (l *Loader) DeleteCacheFiles(dataset string) error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Delete(dataset)
}

// Close cancels in-flight transfers and waits for them to stop.
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()

	l.mu.Lock()
	l.done = make(map[string]result)
	l.mu.Unlock()
	return nil
}

// read returns the encoded payload of a request.
func (l *Loader) read(ctx context.Context, r Request) ([]byte, error) {
	if !r.File.Remote() {
		return readLocal(r.File.Path, r.Offset, r.Size)
	}
	if l.cache != nil {
		if raw, err := l.cache.Read(r); err == nil {
			return raw, nil
		}
	}
	return l.fetchRemote(ctx, r)
}

// fetchRemote downloads a payload and persists it in the cache dir.
func (l *Loader) fetchRemote(ctx context.Context, r Request) ([]byte, error) {
	data, err := fetchRange(ctx, l.client, r.File.URL, r.Offset, r.Size)
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		if err := l.cache.Write(r, data); err != nil {
			slogger().Warn("loader: cache write failed", "url", r.File.URL, "err", err)
		}
	}
	return data, nil
}

// LevelFetcher binds a Loader to the file table of one pyramid level so
// bricks can decode themselves through brick.Fetcher.
type LevelFetcher struct {
	Loader  *Loader
	Dataset string
	Level   int
	Files   []File
}

// Fetch implements brick.Fetcher.
func (f *LevelFetcher) Fetch(ctx context.Context, loc brick.Locator, shape brick.Shape) ([]byte, error) {
	r, err := NewRequest(f.Dataset, f.Level, f.Files, loc, shape)
	if err != nil {
		return nil, err
	}
	return f.Loader.Fetch(ctx, r)
}
