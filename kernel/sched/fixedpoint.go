// Package sched holds the scheduling-policy abstractions the kernel
// package is parameterized over: priority ordering for the default
// strict-priority + round-robin policy, and the MLFQS fixed-point
// arithmetic, both kept independent of kernel.Thread so they can be
// unit tested in isolation the way gVisor keeps
// pkg/sentry/kernel/sched separate from pkg/sentry/kernel.
package sched

// Bounds on thread priority, spec.md §3.
const (
	PriMin = 0
	PriMax = 63
)

// FixedPointScale is F in spec.md §4.3's 17.14 fixed-point format.
const FixedPointScale = 1 << 14

// Fixed is a 17.14 fixed-point value used for load_avg and recent_cpu.
type Fixed int64

// FromInt converts an integer to fixed point.
func FromInt(x int64) Fixed { return Fixed(x * FixedPointScale) }

// ToIntTruncate rounds toward zero.
func (f Fixed) ToIntTruncate() int64 { return int64(f) / FixedPointScale }

// ToIntRound rounds to nearest, ties away from zero.
func (f Fixed) ToIntRound() int64 {
	x := int64(f)
	if x >= 0 {
		return (x + FixedPointScale/2) / FixedPointScale
	}
	return (x - FixedPointScale/2) / FixedPointScale
}

// Add adds two fixed-point values (or a fixed-point value and an
// integer promoted via FromInt).
func (f Fixed) Add(g Fixed) Fixed { return f + g }

// Sub subtracts g from f.
func (f Fixed) Sub(g Fixed) Fixed { return f - g }

// AddInt adds the integer n to f.
func (f Fixed) AddInt(n int64) Fixed { return f + FromInt(n) }

// Mul multiplies two fixed-point values using a 64-bit intermediate.
func (f Fixed) Mul(g Fixed) Fixed {
	return Fixed((int64(f) * int64(g)) / FixedPointScale)
}

// Div divides f by g using a 64-bit intermediate.
func (f Fixed) Div(g Fixed) Fixed {
	return Fixed((int64(f) * FixedPointScale) / int64(g))
}

// MulInt multiplies f by the integer n.
func (f Fixed) MulInt(n int64) Fixed { return Fixed(int64(f) * n) }

// Clamp restricts x to [lo, hi].
func Clamp(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
