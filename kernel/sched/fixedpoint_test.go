package sched_test

import (
	"testing"

	"nanokernel.dev/nanokernel/kernel/sched"
)

func TestFixedRoundTrip(t *testing.T) {
	f := sched.FromInt(5)
	if got := f.ToIntTruncate(); got != 5 {
		t.Errorf("FromInt(5).ToIntTruncate() = %d, want 5", got)
	}
}

func TestFixedRoundNearest(t *testing.T) {
	cases := []struct {
		f    sched.Fixed
		want int64
	}{
		{sched.FromInt(3).Div(sched.FromInt(2)), 2},  // 1.5 rounds away from zero
		{sched.FromInt(-3).Div(sched.FromInt(2)), -2}, // -1.5 rounds away from zero
		{sched.FromInt(5).Div(sched.FromInt(4)), 1},   // 1.25 rounds to 1
	}
	for _, c := range cases {
		if got := c.f.ToIntRound(); got != c.want {
			t.Errorf("ToIntRound() = %d, want %d", got, c.want)
		}
	}
}

func TestFixedArithmetic(t *testing.T) {
	a := sched.FromInt(2)
	b := sched.FromInt(3)

	if got := a.Add(b).ToIntTruncate(); got != 5 {
		t.Errorf("2+3 = %d, want 5", got)
	}
	if got := b.Sub(a).ToIntTruncate(); got != 1 {
		t.Errorf("3-2 = %d, want 1", got)
	}
	if got := a.Mul(b).ToIntTruncate(); got != 6 {
		t.Errorf("2*3 = %d, want 6", got)
	}
	if got := b.Div(a).ToIntRound(); got != 2 {
		// 3/2 = 1.5, rounds to 2
		t.Errorf("3/2 rounded = %d, want 2", got)
	}
	if got := a.AddInt(10).ToIntTruncate(); got != 12 {
		t.Errorf("2+10 = %d, want 12", got)
	}
	if got := a.MulInt(4).ToIntTruncate(); got != 8 {
		t.Errorf("2*4 = %d, want 8", got)
	}
}

func TestClamp(t *testing.T) {
	if got := sched.Clamp(-5, sched.PriMin, sched.PriMax); got != sched.PriMin {
		t.Errorf("Clamp(-5) = %d, want %d", got, sched.PriMin)
	}
	if got := sched.Clamp(200, sched.PriMin, sched.PriMax); got != sched.PriMax {
		t.Errorf("Clamp(200) = %d, want %d", got, sched.PriMax)
	}
	if got := sched.Clamp(30, sched.PriMin, sched.PriMax); got != 30 {
		t.Errorf("Clamp(30) = %d, want 30", got)
	}
}
