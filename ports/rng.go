package ports

import (
	"math/rand/v2"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(name string, seed uint64) *rand.Rand

	// Stream creates a deterministic RNG stream for one trial of a run.
	// The same (runID, stage, trial, baseSeed) always yields the same stream,
	// whatever order trials are scheduled in.
	Stream(runID, stage string, trial int, baseSeed uint64) *rand.Rand
}
