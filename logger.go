package volstream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/volstream/loader"
	"github.com/gogpu/volstream/pool"
	"github.com/gogpu/volstream/schedule"
	"github.com/gogpu/volstream/volume"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// subLoggers are the sub-package logger setters SetLogger propagates to.
var subLoggers = []func(*slog.Logger){
	loader.SetLogger,
	volume.SetLogger,
	pool.SetLogger,
	schedule.SetLogger,
}

var (
	devicesMu sync.Mutex
	devices   = make(map[loggerSetter]int)
)

// SetLogger configures the logger for volstream and all its sub-packages.
// By default, volstream produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to disable logging.
//
// Log levels used by volstream:
//   - [slog.LevelDebug]: uploads, evictions, decodes, pass progress
//   - [slog.LevelInfo]: pyramid level switches, memory budget refreshes
//   - [slog.LevelWarn]: absorbed per-brick I/O failures
//
// Example:
//
//	volstream.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	for _, set := range subLoggers {
		set(l)
	}

	devicesMu.Lock()
	for d := range devices {
		d.SetLogger(l)
	}
	devicesMu.Unlock()
}

// Logger returns the current logger used by volstream.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by pool devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// registerDevice hands the current logger to dev and keeps it in sync
// with later SetLogger calls until unregisterDevice.
func registerDevice(dev pool.Device) {
	ls, ok := dev.(loggerSetter)
	if !ok {
		return
	}
	ls.SetLogger(Logger())
	devicesMu.Lock()
	devices[ls]++
	devicesMu.Unlock()
}

func unregisterDevice(dev pool.Device) {
	ls, ok := dev.(loggerSetter)
	if !ok {
		return
	}
	devicesMu.Lock()
	if devices[ls]--; devices[ls] <= 0 {
		delete(devices, ls)
	}
	devicesMu.Unlock()
}
