// Package sampling provides the seeded random streams and the discrete and
// continuous samplers used by the trajectory engines.
package sampling

import (
	"errors"
	"math/rand/v2"
)

var ErrBadParameter = errors.New("sampling: invalid distribution parameter")

// streamMix decorrelates the second PCG word from the seed.
const streamMix = 0x9e3779b97f4a7c15

// RNG is a seeded random stream. It is not safe for concurrent use; each
// trajectory owns its own RNG.
type RNG struct {
	seed uint64
	src  rand.Source
	rand *rand.Rand
}

// NewRNG creates a PCG stream from a seed.
func NewRNG(seed uint64) *RNG {
	src := rand.NewPCG(seed, seed^streamMix)
	return &RNG{seed: seed, src: src, rand: rand.New(src)}
}

// Stream derives an independent RNG for trajectory i.
func (r *RNG) Stream(i int) *RNG {
	src := rand.NewPCG(r.seed+uint64(i)+1, (r.seed^streamMix)+uint64(i)*streamMix)
	return &RNG{seed: r.seed + uint64(i) + 1, src: src, rand: rand.New(src)}
}

// Uniform returns a draw in [0, 1).
func (r *RNG) Uniform() float64 { return r.rand.Float64() }
