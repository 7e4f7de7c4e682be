package volstream

import (
	"log/slog"

	"github.com/gogpu/volstream/config"
	"github.com/gogpu/volstream/loader"
	"github.com/gogpu/volstream/pool"
	"github.com/gogpu/volstream/schedule"
)

// Option configures a RenderResourceContext during creation.
//
// Example:
//
//	rc, err := volstream.NewRenderResourceContext(dev,
//	    volstream.WithSettings(settings),
//	    volstream.WithMeter(meter),
//	)
type Option func(*options)

// options holds optional configuration for context creation.
type options struct {
	settings *config.Settings
	clock    schedule.Clock
	meter    pool.Meter
	loader   *loader.Loader
	logger   *slog.Logger
	budget   *pool.Budget
}

// defaultOptions returns the default context options.
func defaultOptions() options {
	return options{
		settings: config.Default(),
		clock:    schedule.SystemClock(),
	}
}

// WithSettings sets the initial settings. They are validated by
// NewRenderResourceContext.
func WithSettings(s *config.Settings) Option {
	return func(o *options) {
		if s != nil {
			o.settings = s.Clone()
		}
	}
}

// WithClock replaces the clock that measures the frame budget.
func WithClock(c schedule.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMeter sets the device memory meter used when the settings select
// an automatic memory budget. Without a meter the fixed limit applies.
func WithMeter(p pool.Meter) Option {
	return func(o *options) {
		o.meter = p
	}
}

// WithLoader shares a loader with the context. The context does not close
// a shared loader. Without this option the context creates and owns one
// from the network settings.
func WithLoader(l *loader.Loader) Option {
	return func(o *options) {
		o.loader = l
	}
}

// WithLogger sets the logger used by this context only. Sub-packages keep
// the logger installed with SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPoolBudget overrides the GPU memory budget derived from the settings.
// It stays in effect across ApplySettings.
func WithPoolBudget(b pool.Budget) Option {
	return func(o *options) {
		o.budget = &b
	}
}
