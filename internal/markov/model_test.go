package markov

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitemirage/internal/errors"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func TestModel_EmptySampleFails(t *testing.T) {
	m := New(2)
	_, err := m.Sample([]string{"any"}, newRNG(1))
	require.ErrorIs(t, err, errors.ErrModelExhausted)
	assert.True(t, m.Empty())
	assert.Nil(t, m.Generate(10, newRNG(1)))
}

func TestModel_ExactContextPreferred(t *testing.T) {
	m := New(2)
	// After "the quick" the only observed continuation is "fox".
	m.Observe([]string{"the", "quick", "fox", "jumps"})
	m.Observe([]string{"a", "quick", "look"})
	m.Freeze()

	rng := newRNG(7)
	for range 50 {
		tok, err := m.Sample([]string{"the", "quick"}, rng)
		require.NoError(t, err)
		assert.Equal(t, "fox", tok)
	}
}

func TestModel_BackoffToShorterContext(t *testing.T) {
	m := New(2)
	m.Observe([]string{"green", "tea", "leaves"})
	m.Freeze()

	// "unseen tea" has no order-2 entry; order-1 "tea" must serve.
	rng := newRNG(3)
	tok, err := m.Sample([]string{"unseen", "tea"}, rng)
	require.NoError(t, err)
	assert.Equal(t, "leaves", tok)
}

func TestModel_BackoffToUnigrams(t *testing.T) {
	m := New(2)
	m.Observe([]string{"solo"})
	m.Freeze()

	tok, err := m.Sample([]string{"never", "seen"}, newRNG(9))
	require.NoError(t, err)
	assert.Equal(t, "solo", tok)
}

func TestModel_ContextLongerThanOrderIsTrimmed(t *testing.T) {
	m := New(1)
	m.Observe([]string{"a", "b", "c"})
	m.Freeze()

	tok, err := m.Sample([]string{"x", "y", "b"}, newRNG(5))
	require.NoError(t, err)
	assert.Equal(t, "c", tok)
}

func TestModel_WeightedSampling(t *testing.T) {
	m := New(1)
	// "to" is followed by "be" three times and "go" once.
	m.Observe([]string{"to", "be"})
	m.Observe([]string{"to", "be"})
	m.Observe([]string{"to", "be"})
	m.Observe([]string{"to", "go"})
	m.Freeze()

	rng := newRNG(42)
	counts := map[string]int{}
	const draws = 4000
	for range draws {
		tok, err := m.Sample([]string{"to"}, rng)
		require.NoError(t, err)
		counts[tok]++
	}

	// Expected ratio 3:1 within sampling tolerance.
	assert.InDelta(t, 0.75, float64(counts["be"])/draws, 0.05)
	assert.InDelta(t, 0.25, float64(counts["go"])/draws, 0.05)
}

func TestModel_DeterministicUnderFixedSeed(t *testing.T) {
	build := func() *Model {
		m := New(2)
		m.Observe([]string{"one", "two", "three", "four"})
		m.Observe([]string{"two", "three", "five"})
		m.Freeze()
		return m
	}

	a := build().Generate(64, newRNG(1234))
	b := build().Generate(64, newRNG(1234))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestModel_MergeIsOrderIndependent(t *testing.T) {
	part1 := New(2)
	part1.Observe([]string{"alpha", "beta", "gamma"})
	part2 := New(2)
	part2.Observe([]string{"beta", "gamma", "delta"})
	part3 := New(2)
	part3.Observe([]string{"alpha", "beta", "delta"})

	ab := New(2)
	ab.Merge(part1)
	ab.Merge(part2)
	ab.Merge(part3)

	ba := New(2)
	ba.Merge(part3)
	ba.Merge(part1)
	ba.Merge(part2)

	require.Equal(t, ab.TokenCount(), ba.TokenCount())
	require.Equal(t, ab.ContextCount(), ba.ContextCount())

	// Same frequencies means identical sampling under the same seed.
	ab.Freeze()
	ba.Freeze()
	for seed := uint64(1); seed < 20; seed++ {
		ta, erra := ab.Sample([]string{"alpha", "beta"}, newRNG(seed))
		tb, errb := ba.Sample([]string{"alpha", "beta"}, newRNG(seed))
		require.NoError(t, erra)
		require.NoError(t, errb)
		assert.Equal(t, ta, tb)
	}
}

func TestModel_GenerateRespectsChain(t *testing.T) {
	m := New(1)
	m.Observe([]string{"ping", "pong"})
	m.Observe([]string{"pong", "ping"})
	m.Freeze()

	toks := m.Generate(20, newRNG(11))
	require.Len(t, toks, 20)
	for i := 1; i < len(toks); i++ {
		assert.NotEqual(t, toks[i-1], toks[i], "chain must alternate at %d", i)
	}
}

func TestModel_SampleWithoutFreeze(t *testing.T) {
	m := New(1)
	m.Observe([]string{"a", "b"})

	tok, err := m.Sample([]string{"a"}, newRNG(2))
	require.NoError(t, err)
	assert.Equal(t, "b", tok)
}
