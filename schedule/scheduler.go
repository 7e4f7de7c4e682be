package schedule

import (
	"fmt"
	"time"

	"github.com/gogpu/volstream/brick"
)

// State is the progress of a pass.
type State uint8

const (
	// StateIdle means no pass has been started, or the last one was halted.
	StateIdle State = iota

	// StateLoopStarted means a pass was started and no unit has run yet.
	StateLoopStarted

	// StateInProgress means a pass is partially done.
	StateInProgress

	// StateDone means every unit of the pass has been processed once.
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoopStarted:
		return "loop-started"
	case StateInProgress:
		return "in-progress"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Unit is the smallest piece of scheduled work: one brick of one volume
// drawn in one mode. A unit is never split across frames.
type Unit struct {
	Volume int
	Brick  *brick.Brick
	Mode   brick.Mode
}

// String returns a compact description of the unit.
func (u Unit) String() string {
	id := -1
	if u.Brick != nil {
		id = u.Brick.ID()
	}
	return fmt.Sprintf("v%d/b%d/%s", u.Volume, id, u.Mode)
}

// BrickSet is the ordered bricks of one volume and the modes each is drawn
// in.
type BrickSet struct {
	Volume int
	Bricks []*brick.Brick
	Modes  []brick.Mode
}

// Units flattens brick sets into a brick-major unit list: every mode of a
// brick runs before the next brick. A set without modes is drawn in
// ModeRender only.
func Units(sets []BrickSet) []Unit {
	n := 0
	for _, s := range sets {
		n += len(s.Bricks) * max(1, len(s.Modes))
	}
	units := make([]Unit, 0, n)
	for _, s := range sets {
		modes := s.Modes
		if len(modes) == 0 {
			modes = []brick.Mode{brick.ModeRender}
		}
		for _, b := range s.Bricks {
			for _, m := range modes {
				units = append(units, Unit{Volume: s.Volume, Brick: b, Mode: m})
			}
		}
	}
	return units
}

// Executor processes one unit. An error marks the unit failed; it still
// counts as processed.
type Executor func(Unit) error

// Result reports what one Step did.
type Result struct {
	State     State
	Processed int
	Failed    int
	Remaining int
	Elapsed   time.Duration

	// Suspended is true when the step stopped because the budget ran out.
	Suspended bool
}

// Status is a snapshot of the scheduler.
type Status struct {
	State       State
	Total       int
	Finished    int
	Failed      int
	Budget      time.Duration
	Elapsed     time.Duration
	Interactive bool
	Quota       int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithBudget sets the per-frame time budget. A budget of 0 or less
// processes every unit in one step.
func WithBudget(d time.Duration) Option {
	return func(s *Scheduler) { s.budget = d }
}

// Scheduler is a resumable pass over a unit list under a per-frame time
// budget. It is driven once per frame from the rendering thread and is not
// safe for concurrent use.
type Scheduler struct {
	clock  Clock
	budget time.Duration

	state  State
	units  []Unit
	cursor int
	failed []Unit

	elapsed     time.Duration
	interactive bool
	quota       int
}

// New returns an idle scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{clock: SystemClock()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start begins a new pass over units, discarding any previous progress.
// The slice is retained and must not be modified until the pass ends.
func (s *Scheduler) Start(units []Unit) {
	s.units = units
	s.cursor = 0
	s.failed = s.failed[:0]
	s.elapsed = 0
	s.state = StateLoopStarted
	slogger().Debug("schedule: pass started", "units", len(units), "budget", s.budget)
}

// Step runs units from the cursor until the frame budget is used up or the
// pass is done. The budget is checked after every unit, so each step makes
// progress. Step on an idle or done scheduler does nothing.
func (s *Scheduler) Step(exec Executor) Result {
	if s.state == StateIdle || s.state == StateDone {
		return Result{State: s.state}
	}
	if s.state == StateLoopStarted && len(s.units) == 0 {
		s.state = StateDone
		return Result{State: s.state}
	}

	s.state = StateInProgress
	start := s.clock.Now()
	var r Result
	for s.cursor < len(s.units) {
		u := s.units[s.cursor]
		s.cursor++
		r.Processed++
		if err := exec(u); err != nil {
			s.failed = append(s.failed, u)
			r.Failed++
			slogger().Debug("schedule: unit failed", "unit", u, "err", err)
		}
		if s.state == StateIdle {
			// Halted from inside the executor.
			r.State = StateIdle
			r.Elapsed = s.clock.Now().Sub(start)
			return r
		}
		if s.budget > 0 && s.clock.Now().Sub(start) >= s.budget {
			break
		}
	}
	r.Elapsed = s.clock.Now().Sub(start)
	s.elapsed += r.Elapsed
	r.Remaining = len(s.units) - s.cursor
	if r.Remaining == 0 {
		s.state = StateDone
		slogger().Debug("schedule: pass done", "units", len(s.units), "failed", len(s.failed), "elapsed", s.elapsed)
	} else {
		r.Suspended = true
	}
	r.State = s.state
	return r
}

// Halt abandons the current pass. Progress is discarded; the failed set of
// the abandoned pass is kept for inspection.
func (s *Scheduler) Halt() {
	if s.state == StateIdle {
		return
	}
	s.state = StateIdle
	s.cursor = 0
	s.units = nil
}

// State returns the current state.
func (s *Scheduler) State() State { return s.state }

// Done reports whether the current pass has processed every unit.
func (s *Scheduler) Done() bool { return s.state == StateDone }

// Failed returns the units that failed in the current or last pass.
func (s *Scheduler) Failed() []Unit { return s.failed }

// Budget returns the per-frame time budget.
func (s *Scheduler) Budget() time.Duration { return s.budget }

// SetBudget changes the per-frame time budget. It takes effect on the next
// Step.
func (s *Scheduler) SetBudget(d time.Duration) { s.budget = d }

// SetInteractive records whether the camera is moving and the brick quota
// in effect. The scheduler itself does not apply the quota; the caller
// builds a shorter unit list.
func (s *Scheduler) SetInteractive(interactive bool, quota int) {
	s.interactive = interactive
	s.quota = quota
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	return Status{
		State:       s.state,
		Total:       len(s.units),
		Finished:    s.cursor,
		Failed:      len(s.failed),
		Budget:      s.budget,
		Elapsed:     s.elapsed,
		Interactive: s.interactive,
		Quota:       s.quota,
	}
}
