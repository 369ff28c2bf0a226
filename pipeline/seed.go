package pipeline

import (
	"crypto/rand"
	"encoding/binary"
)

// RandomSeed generates a random non-negative seed for latent sampling.
// It draws from crypto/rand so separate runs get independent noise even
// when started in the same instant.
func RandomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Fallback to a fixed seed if crypto/rand fails (extremely rare).
		// Better than panicking in production.
		return 42
	}

	seed := int64(binary.LittleEndian.Uint64(buf[:]))
	if seed < 0 {
		seed = -seed
	}
	// -MinInt64 == MinInt64, still negative
	if seed < 0 {
		seed = 0
	}
	return seed
}
