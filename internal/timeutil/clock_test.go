package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	start := c.Now()
	if c.Since(start) < 0 {
		t.Error("Since went backwards")
	}
}

func TestMockClock(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	if got := c.Now(); !got.Equal(base) {
		t.Errorf("Now() = %v, want %v", got, base)
	}
	c.Advance(time.Minute)
	if got := c.Since(base); got != time.Minute {
		t.Errorf("Since() = %v, want 1m", got)
	}
	c.Set(base.Add(time.Hour))
	if got := c.Now(); !got.Equal(base.Add(time.Hour)) {
		t.Errorf("Now() after Set = %v", got)
	}
}

func TestMockClock_Step(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	c.Step = time.Second

	first := c.Now()
	second := c.Now()
	if d := second.Sub(first); d != time.Second {
		t.Errorf("step = %v, want 1s", d)
	}
	if d := c.Since(first); d != 2*time.Second {
		t.Errorf("Since() = %v, want 2s", d)
	}
}
