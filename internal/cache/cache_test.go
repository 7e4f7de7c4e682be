package cache

import (
	"slices"
	"testing"
)

func TestCacheAddEvictsOldest(t *testing.T) {
	var got []int
	c := New[int](100, func(k int) { got = append(got, k) })

	c.Add(1, 40)
	c.Add(2, 40)
	c.Touch(1)
	evicted := c.Add(3, 40)

	if !slices.Equal(evicted, []int{2}) {
		t.Errorf("Add() evicted = %v, want [2]", evicted)
	}
	if !slices.Equal(got, []int{2}) {
		t.Errorf("onEvict calls = %v, want [2]", got)
	}
	if c.Used() != 80 || c.Len() != 2 {
		t.Errorf("Used() = %d, Len() = %d", c.Used(), c.Len())
	}
	if c.Contains(2) {
		t.Error("evicted key still tracked")
	}
}

func TestCacheOversizedKeyKept(t *testing.T) {
	c := New[string](10, nil)
	c.Add("a", 5)
	evicted := c.Add("big", 50)

	if !slices.Equal(evicted, []string{"a"}) {
		t.Errorf("evicted = %v, want [a]", evicted)
	}
	if !c.Contains("big") {
		t.Error("key added last should survive its own Add")
	}
}

func TestCacheResize(t *testing.T) {
	c := New[int](0, nil)
	for i := 0; i < 5; i++ {
		c.Add(i, 10)
	}
	if c.Used() != 50 {
		t.Fatalf("unlimited cache Used() = %d, want 50", c.Used())
	}

	c.Add(0, 20)
	if c.Used() != 60 {
		t.Errorf("Used() after resize = %d, want 60", c.Used())
	}

	evicted := c.SetLimit(30)
	if !slices.Equal(evicted, []int{1, 2, 3}) {
		t.Errorf("SetLimit() evicted = %v, want [1 2 3]", evicted)
	}
	if c.Used() != 30 {
		t.Errorf("Used() = %d, want 30", c.Used())
	}
}

func TestCacheRemoveAndClear(t *testing.T) {
	calls := 0
	c := New[int](0, func(int) { calls++ })
	c.Add(1, 1)
	c.Add(2, 2)

	if !c.Remove(1) || c.Remove(1) {
		t.Error("Remove() should succeed exactly once")
	}
	if calls != 0 {
		t.Error("Remove() must not call onEvict")
	}

	if got := c.Clear(); !slices.Equal(got, []int{2}) {
		t.Errorf("Clear() = %v, want [2]", got)
	}
	if calls != 1 || c.Len() != 0 || c.Used() != 0 {
		t.Errorf("after Clear: calls=%d Len=%d Used=%d", calls, c.Len(), c.Used())
	}
}

func TestCacheStats(t *testing.T) {
	c := New[int](10, nil)
	c.Add(1, 6)
	c.Touch(1)
	c.Touch(2)
	c.Add(2, 6)

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.HitRate != 0.5 {
		t.Errorf("Stats() hits=%d misses=%d rate=%v", s.Hits, s.Misses, s.HitRate)
	}
	if s.Evictions != 1 || s.Len != 1 || s.Used != 6 || s.Limit != 10 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestCacheClearThenReuse(t *testing.T) {
	c := New[int](100, nil)
	for k := 1; k <= 3; k++ {
		c.Add(k, 10)
	}
	if got := c.Clear(); !slices.Equal(got, []int{1, 2, 3}) {
		t.Errorf("Clear() = %v, want oldest first [1 2 3]", got)
	}
	c.Add(4, 10)
	c.Add(5, 10)
	if c.Len() != 2 || c.Used() != 20 {
		t.Errorf("after reuse Len=%d Used=%d, want 2 and 20", c.Len(), c.Used())
	}
	if got := c.Clear(); !slices.Equal(got, []int{4, 5}) {
		t.Errorf("second Clear() = %v, want [4 5]", got)
	}
}
