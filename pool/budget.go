package pool

import (
	"fmt"
	"time"
)

// Mode selects how the pool's byte limit is determined.
type Mode uint8

const (
	// ModeLimit uses a fixed byte limit.
	ModeLimit Mode = iota

	// ModeAuto derives the limit from the free device memory reported by a
	// Meter, refreshed at most once per refresh interval.
	ModeAuto
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeLimit:
		return "limit"
	case ModeAuto:
		return "auto"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Default budget parameters.
const (
	DefaultLimit    int64 = 256 << 20
	DefaultFraction       = 0.8
	DefaultRefresh        = 2 * time.Second
)

// Meter reports the free device memory in bytes.
type Meter interface {
	AvailableMemory() (int64, error)
}

// MeterFunc adapts a function to the Meter interface.
type MeterFunc func() (int64, error)

// AvailableMemory calls f.
func (f MeterFunc) AvailableMemory() (int64, error) { return f() }

// Budget configures the pool's byte limit.
type Budget struct {
	Mode Mode

	// Limit is the fixed limit for ModeLimit and the fallback for ModeAuto
	// when no query has succeeded yet.
	Limit int64

	// Fraction of the reported free memory the pool may grow into.
	Fraction float64

	// Refresh is the minimum interval between queries.
	Refresh time.Duration

	Meter Meter
}

// DefaultBudget returns a fixed budget of DefaultLimit bytes.
func DefaultBudget() Budget {
	return Budget{Mode: ModeLimit, Limit: DefaultLimit, Fraction: DefaultFraction, Refresh: DefaultRefresh}
}

func (b Budget) normalized() Budget {
	if b.Limit <= 0 {
		b.Limit = DefaultLimit
	}
	if b.Fraction <= 0 || b.Fraction > 1 {
		b.Fraction = DefaultFraction
	}
	if b.Refresh <= 0 {
		b.Refresh = DefaultRefresh
	}
	return b
}
