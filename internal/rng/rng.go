// Package rng provides the injectable random source used by the metrics and
// threat generators. Callers that need reproducible output pass a seeded
// source; the HTTP layer seeds one per request from the request time.
package rng

import (
	"math/rand/v2"
	"time"
)

// Source is the subset of *rand.Rand the generators depend on.
type Source interface {
	// Float64 returns a value in [0.0, 1.0).
	Float64() float64
	// IntN returns a value in [0, n). It panics if n <= 0.
	IntN(n int) int
}

// New returns a PCG-backed Source for the given seed.
func New(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// ForTime returns a Source seeded from t. Two calls with the same instant
// produce the same sequence.
func ForTime(t time.Time) Source {
	return New(uint64(t.UnixNano()))
}

// Pick returns a uniformly chosen element of pool. pool must not be empty.
func Pick[T any](src Source, pool []T) T {
	return pool[src.IntN(len(pool))]
}
