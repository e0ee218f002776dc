package esi

import "math/rand/v2"

// Rand is the random source used for backoff and jitter.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// globalRand delegates to the math/rand/v2 top-level functions.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() } //nolint:gosec // G404: jitter doesn't need crypto rand
func (globalRand) IntN(n int) int   { return rand.IntN(n) }   //nolint:gosec // G404: jitter doesn't need crypto rand

// DefaultRand returns the process-wide random source.
func DefaultRand() Rand {
	return globalRand{}
}

// Uniform returns a float in [lo, hi).
func Uniform(r Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}

// Jitter returns a random integer in [lo, hi). It returns lo when the range
// is empty.
func Jitter(r Rand, lo, hi int) int {
	if hi <= lo+1 {
		return lo
	}
	return lo + r.IntN(hi-lo)
}
