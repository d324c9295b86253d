package corpus

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"

	"github.com/zeebo/blake3"
)

// ProcessSeed returns the configured seed, or draws a process-random one when
// the configuration leaves it unset. The chosen seed is logged by the caller
// so any run can be reproduced.
func ProcessSeed(configured *uint64) uint64 {
	if configured != nil {
		return *configured
	}
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively unheard of; a zero seed still
		// yields a valid (just fixed) run.
		return 0
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// StreamRNG derives an independent, deterministic RNG sub-stream from the run
// seed and a stream label (a file's relative path, or a reserved label like
// the scramble plan). Hashing the label means processing order and worker
// scheduling can never change a file's random decisions, which is what makes
// parallel mutation reproducible under a fixed seed.
func StreamRNG(seed uint64, label string) *rand.Rand {
	h := blake3.New()

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(label))

	sum := h.Sum(nil)
	return rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(sum[0:8]),
		binary.LittleEndian.Uint64(sum[8:16]),
	))
}

// Reserved stream labels. File paths never start with a NUL byte, so these
// cannot collide with per-file streams.
const (
	streamScramblePlan = "\x00scramble-plan"
)
