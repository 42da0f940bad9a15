// Package rng provides the seeded, deterministic random sources used for
// board generation and permutation sampling. Nothing in the engine draws
// from ambient global randomness.
package rng

import (
	"encoding/binary"

	"lukechampine.com/frand"
)

const (
	chachaRounds = 12
	bufSize      = 1024
)

// Source is the only random capability the engine needs: a uniform draw
// from [0, n). *frand.RNG and *math/rand.Rand both satisfy it.
type Source interface {
	Intn(n int) int
}

// New returns a ChaCha-based generator keyed by seed. The same seed always
// yields the same stream.
func New(seed int64) *frand.RNG {
	key := make([]byte, 32)
	binary.LittleEndian.PutUint64(key, uint64(seed))
	return frand.NewCustom(key, bufSize, chachaRounds)
}
