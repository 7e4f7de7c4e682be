package schedule

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Quota estimation defaults.
const (
	// DefaultWindow is the number of per-brick cost samples kept.
	DefaultWindow = 32

	// DefaultBrickCost is assumed before any sample has been recorded.
	DefaultBrickCost = time.Millisecond

	// MouseSpeedFactor scales how much faster camera motion shrinks the
	// effective budget. Mouse speed is in pixels per millisecond.
	MouseSpeedFactor = 0.5
)

// Estimator keeps a rolling window of per-brick draw costs.
type Estimator struct {
	samples []float64 // nanoseconds
	next    int
	full    bool
}

// NewEstimator returns an estimator over the last window samples. A
// non-positive window uses DefaultWindow.
func NewEstimator(window int) *Estimator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Estimator{samples: make([]float64, 0, window)}
}

// Observe records a frame that drew bricks in elapsed time. Frames that drew
// nothing are ignored.
func (e *Estimator) Observe(elapsed time.Duration, bricks int) {
	if bricks <= 0 || elapsed <= 0 {
		return
	}
	e.Add(elapsed / time.Duration(bricks))
}

// Add records one per-brick cost sample.
func (e *Estimator) Add(cost time.Duration) {
	v := float64(cost)
	if !e.full && len(e.samples) < cap(e.samples) {
		e.samples = append(e.samples, v)
		if len(e.samples) == cap(e.samples) {
			e.full = true
		}
		return
	}
	e.samples[e.next] = v
	e.next = (e.next + 1) % len(e.samples)
}

// Len returns the number of samples held.
func (e *Estimator) Len() int { return len(e.samples) }

// Reset discards all samples.
func (e *Estimator) Reset() {
	e.samples = e.samples[:0]
	e.next = 0
	e.full = false
}

// Cost returns the mean per-brick cost, or DefaultBrickCost without
// samples.
func (e *Estimator) Cost() time.Duration {
	if len(e.samples) == 0 {
		return DefaultBrickCost
	}
	return time.Duration(math.Round(stat.Mean(e.samples, nil)))
}

// Quota returns how many bricks fit in budget while the camera moves at
// mouseSpeed. Faster motion shrinks the effective budget. The result is at
// least 1.
func (e *Estimator) Quota(budget time.Duration, mouseSpeed float64) int {
	if budget <= 0 {
		return 1
	}
	effective := float64(budget) / (1 + MouseSpeedFactor*math.Max(0, mouseSpeed))
	cost := float64(e.Cost())
	if cost <= 0 {
		return 1
	}
	return max(1, int(math.Floor(effective/cost)))
}
