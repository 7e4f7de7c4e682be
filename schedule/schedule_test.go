package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/volstream/brick"
)

// fakeClock advances only when told to.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func bricks(n int) []*brick.Brick {
	bs := make([]*brick.Brick, n)
	for i := range bs {
		bs[i] = brick.New(brick.Params{ID: i, Nx: 1, Ny: 1, Nz: 1})
	}
	return bs
}

// costly returns an executor that advances clk by d per unit and records
// the units it ran.
func costly(clk *fakeClock, d time.Duration, ran *[]Unit) Executor {
	return func(u Unit) error {
		clk.Advance(d)
		*ran = append(*ran, u)
		return nil
	}
}

func TestUnitsBrickMajor(t *testing.T) {
	bs := bricks(2)
	units := Units([]BrickSet{
		{Volume: 0, Bricks: bs, Modes: []brick.Mode{brick.ModeRender, brick.ModeShadow}},
		{Volume: 1, Bricks: bs[:1]},
	})
	want := []Unit{
		{0, bs[0], brick.ModeRender},
		{0, bs[0], brick.ModeShadow},
		{0, bs[1], brick.ModeRender},
		{0, bs[1], brick.ModeShadow},
		{1, bs[0], brick.ModeRender},
	}
	if len(units) != len(want) {
		t.Fatalf("len(Units()) = %d, want %d", len(units), len(want))
	}
	for i := range want {
		if units[i] != want[i] {
			t.Errorf("units[%d] = %s, want %s", i, units[i], want[i])
		}
	}
}

func TestStepResumesUnderBudget(t *testing.T) {
	clk := &fakeClock{}
	s := New(WithClock(clk), WithBudget(10*time.Millisecond))
	units := Units([]BrickSet{{Bricks: bricks(8)}})

	if r := s.Step(nil); r.State != StateIdle || r.Processed != 0 {
		t.Fatalf("Step() before Start = %+v", r)
	}
	s.Start(units)
	if s.State() != StateLoopStarted {
		t.Fatalf("State() = %s, want loop-started", s.State())
	}

	var ran []Unit
	r := s.Step(costly(clk, 2*time.Millisecond, &ran))
	if r.Processed != 5 || !r.Suspended || r.State != StateInProgress || r.Remaining != 3 {
		t.Fatalf("first Step() = %+v", r)
	}
	r = s.Step(costly(clk, 2*time.Millisecond, &ran))
	if r.Processed != 3 || r.Suspended || r.State != StateDone {
		t.Fatalf("second Step() = %+v", r)
	}
	for i, u := range ran {
		if u.Brick.ID() != i {
			t.Errorf("unit %d ran brick %d; order not preserved across frames", i, u.Brick.ID())
		}
	}
	if r := s.Step(costly(clk, 0, &ran)); r.Processed != 0 || len(ran) != 8 {
		t.Error("Step() after Done ran more units")
	}
	if st := s.Status(); st.Finished != 8 || st.Total != 8 || st.Elapsed != 16*time.Millisecond {
		t.Errorf("Status() = %+v", st)
	}
}

func TestStepAlwaysMakesProgress(t *testing.T) {
	clk := &fakeClock{}
	s := New(WithClock(clk), WithBudget(time.Millisecond))
	s.Start(Units([]BrickSet{{Bricks: bricks(3)}}))
	var ran []Unit
	for i := 1; i <= 3; i++ {
		r := s.Step(costly(clk, 5*time.Millisecond, &ran))
		if r.Processed != 1 {
			t.Fatalf("step %d processed %d units, want 1", i, r.Processed)
		}
	}
	if !s.Done() {
		t.Error("pass should be done after three steps")
	}
}

func TestUnlimitedBudget(t *testing.T) {
	clk := &fakeClock{}
	s := New(WithClock(clk))
	s.Start(Units([]BrickSet{{Bricks: bricks(50)}}))
	var ran []Unit
	if r := s.Step(costly(clk, time.Second, &ran)); r.Processed != 50 || r.State != StateDone {
		t.Errorf("Step() = %+v", r)
	}
}

func TestEmptyPassIsDone(t *testing.T) {
	s := New()
	s.Start(nil)
	r := s.Step(func(Unit) error {
		t.Error("executor called")
		return nil
	})
	if r.State != StateDone {
		t.Errorf("Step() on empty pass = %+v", r)
	}
}

func TestFailedUnitsCount(t *testing.T) {
	bs := bricks(4)
	s := New()
	s.Start(Units([]BrickSet{{Bricks: bs}}))
	errBad := errors.New("decode")
	r := s.Step(func(u Unit) error {
		if u.Brick.ID()%2 == 1 {
			return errBad
		}
		return nil
	})
	if r.Processed != 4 || r.Failed != 2 || !s.Done() {
		t.Fatalf("Step() = %+v", r)
	}
	if f := s.Failed(); len(f) != 2 || f[0].Brick != bs[1] || f[1].Brick != bs[3] {
		t.Errorf("Failed() = %v", f)
	}
	s.Start(Units([]BrickSet{{Bricks: bs}}))
	if len(s.Failed()) != 0 {
		t.Error("Start should clear the failed set")
	}
}

func TestHalt(t *testing.T) {
	clk := &fakeClock{}
	s := New(WithClock(clk), WithBudget(3*time.Millisecond))
	units := Units([]BrickSet{{Bricks: bricks(6)}})
	s.Start(units)
	var ran []Unit
	s.Step(costly(clk, time.Millisecond, &ran))
	s.Halt()
	if s.State() != StateIdle || s.Status().Finished != 0 {
		t.Errorf("after Halt: %+v", s.Status())
	}
	if r := s.Step(costly(clk, time.Millisecond, &ran)); r.Processed != 0 {
		t.Error("Step() after Halt ran units")
	}

	// Halt inside the executor stops after the current unit.
	s.Start(units)
	r := s.Step(func(u Unit) error {
		if u.Brick.ID() == 1 {
			s.Halt()
		}
		return nil
	})
	if r.Processed != 2 || r.State != StateIdle {
		t.Errorf("Step() with inner Halt = %+v", r)
	}
}

func TestEstimatorQuota(t *testing.T) {
	e := NewEstimator(4)
	if got := e.Quota(10*time.Millisecond, 0); got != 10 {
		t.Errorf("Quota() without samples = %d, want 10", got)
	}
	e.Observe(20*time.Millisecond, 10) // 2ms per brick
	e.Observe(0, 0)
	if e.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", e.Len())
	}
	if got := e.Quota(10*time.Millisecond, 0); got != 5 {
		t.Errorf("Quota() = %d, want 5", got)
	}
	if got := e.Quota(10*time.Millisecond, 2); got != 2 {
		t.Errorf("Quota() while moving = %d, want 2", got)
	}
	if got := e.Quota(time.Microsecond, 100); got != 1 {
		t.Errorf("Quota() floor = %d, want 1", got)
	}

	// The window drops the oldest sample.
	for i := 0; i < 4; i++ {
		e.Add(4 * time.Millisecond)
	}
	if e.Len() != 4 || e.Cost() != 4*time.Millisecond {
		t.Errorf("Len() = %d, Cost() = %v", e.Len(), e.Cost())
	}
	e.Reset()
	if e.Cost() != DefaultBrickCost {
		t.Errorf("Cost() after Reset = %v", e.Cost())
	}
}

func TestDistribute(t *testing.T) {
	tests := []struct {
		name     string
		counts   []int
		selected int
		quota    int
		want     []int
	}{
		{"fits", []int{3, 4, 5}, 1, 20, []int{3, 4, 5}},
		{"equal shares", []int{10, 10, 10}, 1, 9, []int{3, 3, 3}},
		{"selected first", []int{10, 10, 10}, 2, 7, []int{1, 3, 3}},
		{"lower neighbour before upper", []int{10, 10, 10, 10, 10}, 2, 3, []int{0, 1, 1, 1, 0}},
		{"leftover to selected", []int{1, 20, 1}, 1, 12, []int{1, 10, 1}},
		{"leftover flows outward", []int{2, 3, 20}, 1, 15, []int{2, 3, 10}},
		{"selected clamped", []int{5, 5}, 9, 4, []int{2, 2}},
		{"no quota", []int{5, 5}, 0, 0, []int{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distribute(tt.counts, tt.selected, tt.quota)
			if len(got) != len(tt.want) {
				t.Fatalf("Distribute() = %v, want %v", got, tt.want)
			}
			sum, total := 0, 0
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Distribute() = %v, want %v", got, tt.want)
					break
				}
			}
			for i := range got {
				sum += got[i]
				total += tt.counts[i]
				if got[i] > tt.counts[i] {
					t.Errorf("channel %d got %d > %d", i, got[i], tt.counts[i])
				}
			}
			if sum != min(tt.quota, total) {
				t.Errorf("sum = %d, want %d", sum, min(tt.quota, total))
			}
		})
	}
}
