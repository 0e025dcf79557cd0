package rng

import (
	"math/rand/v2"
	"time"

	"gaussfit/ports"
)

// SeededAdapter implements ports.RNGPort with PCG streams
type SeededAdapter struct {
	clock func() time.Time
}

var _ ports.RNGPort = (*SeededAdapter)(nil)

// NewSeededAdapter creates the production RNG adapter
func NewSeededAdapter() *SeededAdapter {
	return &SeededAdapter{clock: time.Now}
}

// ResolveSeed maps seed 0 to a clock-derived seed; any other seed is kept
func (r *SeededAdapter) ResolveSeed(seed uint64) uint64 {
	if seed != 0 {
		return seed
	}
	return uint64(r.clock().UnixNano())
}

// SeededStream creates a deterministic random number generator for a named operation
func (r *SeededAdapter) SeededStream(name string, seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(hashString(name))))
}

// Stream derives a per-trial stream. The trial index goes into the PCG
// sequence word so neighbouring trials never share a sequence.
func (r *SeededAdapter) Stream(runID, stage string, trial int, baseSeed uint64) *rand.Rand {
	seed := baseSeed
	if runID != "" {
		seed += uint64(hashString(runID))
	}
	if stage != "" {
		seed += uint64(hashString(stage)) << 32
	}
	return rand.New(rand.NewPCG(seed, uint64(trial)*0x9e3779b97f4a7c15+1))
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2
	}
	return hash
}
