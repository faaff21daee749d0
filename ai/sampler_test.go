package ai

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/schollz/melodai/vocab"
)

func TestReweightUnitTemperatureIsANoOp(t *testing.T) {
	probs := []float64{0.1, 0.2, 0.7}
	reweight(probs, 1)
	assert.Equal(t, []float64{0.1, 0.2, 0.7}, probs)
}

func TestReweightLowTemperatureSharpens(t *testing.T) {
	probs := []float64{0.1, 0.2, 0.7}
	reweight(probs, 0.05)
	assert.InDelta(t, 1.0, probs[2], 1e-6, "near-zero temperature converges to argmax")
	assert.InDelta(t, 1.0, floats.Sum(probs), 1e-9)

	// and sampling from it is effectively deterministic
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 20; i++ {
		assert.Equal(t, 2, sampleCategorical(rng, probs))
	}
}

func TestReweightHighTemperatureFlattens(t *testing.T) {
	probs := []float64{0.1, 0.2, 0.7}
	reweight(probs, 100)
	assert.InDelta(t, probs[0], probs[2], 0.02, "high temperature approaches uniform")
	assert.InDelta(t, 1.0, floats.Sum(probs), 1e-9)
}

func TestSampleCategoricalRespectsMass(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	counts := make([]int, 3)
	for i := 0; i < 3000; i++ {
		counts[sampleCategorical(rng, []float64{0.5, 0.5, 0})]++
	}
	assert.Zero(t, counts[2], "zero-probability index must never be drawn")
	assert.InDelta(t, 1500, counts[0], 200)
}

func TestGenerateNotReady(t *testing.T) {
	s := &Sampler{Vocab: vocab.Build([]string{"a"}), Rand: rand.New(rand.NewSource(1))}
	_, err := s.Generate(nil, 3, 1)
	assert.True(t, errors.Is(err, ErrModelNotReady))
}

func TestSeedFromSymbolsUnknown(t *testing.T) {
	s := &Sampler{Vocab: vocab.Build([]string{"a", "b", "c"})}
	_, err := s.SeedFromSymbols([]string{"a", "mystery"})
	assert.True(t, errors.Is(err, vocab.ErrUnknownSymbol))
}

func newTestSampler(t *testing.T) *Sampler {
	t.Helper()
	rng := rand.New(rand.NewSource(2))
	cfg := tinyConfig()
	cfg.SequenceLength = 2
	v := vocab.Build([]string{"a", "b", "c"})
	return &Sampler{
		Model:  NewModel(cfg, v.Size(), rng),
		Vocab:  v,
		Corpus: []int{0, 1, 2, 0, 1, 2},
		Rand:   rng,
	}
}

func TestGenerate(t *testing.T) {
	s := newTestSampler(t)
	symbols, err := s.Generate([]int{0, 1}, 3, 1)
	require.NoError(t, err)
	require.Len(t, symbols, 3, "exactly the requested number of symbols")
	for _, symbol := range symbols {
		assert.Contains(t, []string{"a", "b", "c"}, symbol)
	}
}

func TestGenerateIsDeterministicForAFixedSeed(t *testing.T) {
	a := newTestSampler(t)
	b := newTestSampler(t)
	symbolsA, err := a.Generate([]int{0, 1}, 10, 0.8)
	require.NoError(t, err)
	symbolsB, err := b.Generate([]int{0, 1}, 10, 0.8)
	require.NoError(t, err)
	assert.Equal(t, symbolsA, symbolsB)
}

func TestGenerateRandomSeed(t *testing.T) {
	s := newTestSampler(t)
	symbols, err := s.Generate(nil, 5, 1)
	require.NoError(t, err)
	assert.Len(t, symbols, 5)
}

func TestGenerateRandomSeedNeedsCorpus(t *testing.T) {
	s := newTestSampler(t)
	s.Corpus = nil
	_, err := s.Generate(nil, 5, 1)
	assert.Error(t, err)
}

func TestGenerateValidatesArguments(t *testing.T) {
	s := newTestSampler(t)
	_, err := s.Generate([]int{0, 1}, 0, 1)
	assert.Error(t, err)
	_, err = s.Generate([]int{0, 1}, 3, 0)
	assert.Error(t, err)
	_, err = s.Generate([]int{0, 1, 2}, 3, 1)
	assert.Error(t, err, "seed must match the model's window length")
}
