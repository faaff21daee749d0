package ai

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	log "github.com/sirupsen/logrus"

	"github.com/schollz/melodai/vocab"
)

// ErrModelNotReady is returned when generation is requested before a
// model has been trained or loaded.
var ErrModelNotReady = errors.New("model not ready")

// Sampler autoregressively generates symbol sequences from a trained
// model. The model and vocabulary are treated as read-only, so
// independent Generate calls may run concurrently; the sliding window
// is owned by each call.
type Sampler struct {
	Model *Model
	Vocab *vocab.Vocabulary
	// Corpus is the training index corpus, only needed when
	// Generate is asked to pick a random seed context.
	Corpus []int
	// Rand is the sampling source. Inject a seeded source for
	// deterministic output.
	Rand *rand.Rand
}

// SeedFromSymbols converts a symbol seed into indices, failing with
// vocab.ErrUnknownSymbol if any symbol is outside the vocabulary.
func (s *Sampler) SeedFromSymbols(symbols []string) ([]int, error) {
	if s.Vocab == nil {
		return nil, errors.New("sampler has no vocabulary")
	}
	return s.Vocab.Encode(symbols)
}

// RandomSeed draws a window position uniformly from the retained
// training corpus and returns the L indices starting there.
func (s *Sampler) RandomSeed() ([]int, error) {
	if s.Model == nil {
		return nil, ErrModelNotReady
	}
	L := s.Model.SeqLength
	if len(s.Corpus) < L {
		return nil, errors.Errorf("corpus of %d indices is too short to seed a window of %d", len(s.Corpus), L)
	}
	start := s.Rand.Intn(len(s.Corpus) - L + 1)
	seed := make([]int, L)
	copy(seed, s.Corpus[start:start+L])
	return seed, nil
}

// Generate produces exactly length symbols, or fails without
// returning a partial sequence. A nil seed asks for a random one from
// the training corpus. Each step feeds the current window through the
// model, rescales the distribution by the temperature, draws one
// index, and slides the window.
func (s *Sampler) Generate(seed []int, length int, temperature float64) (symbols []string, err error) {
	logger := log.WithFields(log.Fields{
		"function": "Sampler.Generate",
	})
	if s.Model == nil {
		return nil, ErrModelNotReady
	}
	if length <= 0 {
		return nil, errors.Errorf("length must be positive, got %d", length)
	}
	if temperature <= 0 {
		return nil, errors.Errorf("temperature must be positive, got %f", temperature)
	}
	if s.Vocab.Size() != s.Model.VocabSize {
		return nil, errors.Errorf("vocabulary size %d does not match model output width %d", s.Vocab.Size(), s.Model.VocabSize)
	}
	if seed == nil {
		if seed, err = s.RandomSeed(); err != nil {
			return nil, err
		}
	}
	if len(seed) != s.Model.SeqLength {
		return nil, errors.Errorf("seed context has %d indices, model needs %d", len(seed), s.Model.SeqLength)
	}

	window := make([]int, len(seed))
	copy(window, seed)
	symbols = make([]string, 0, length)
	logger.Debugf("Generating %d symbols at temperature %.2f", length, temperature)
	for step := 0; step < length; step++ {
		probs, errPredict := s.Model.Predict(window)
		if errPredict != nil {
			return nil, errPredict
		}
		reweight(probs, temperature)
		index := sampleCategorical(s.Rand, probs)
		symbol, errSymbol := s.Vocab.Symbol(index)
		if errSymbol != nil {
			return nil, errSymbol
		}
		symbols = append(symbols, symbol)
		copy(window, window[1:])
		window[len(window)-1] = index
	}
	return symbols, nil
}

// reweight rescales a distribution in place by exp(log(p)/T) and
// renormalizes. T=1 leaves the distribution unchanged; T below 1
// sharpens it toward the mode, T above 1 flattens it toward uniform.
func reweight(probs []float64, temperature float64) {
	if temperature == 1 {
		return
	}
	for i, p := range probs {
		if p > 0 {
			probs[i] = math.Exp(math.Log(p) / temperature)
		}
	}
	floats.Scale(1/floats.Sum(probs), probs)
}

// sampleCategorical draws one index from a normalized distribution.
func sampleCategorical(rng *rand.Rand, probs []float64) int {
	r := rng.Float64()
	acc := 0.0
	for i, p := range probs {
		acc += p
		if r < acc {
			return i
		}
	}
	// floating point slack: fall back to the last index with mass
	for i := len(probs) - 1; i >= 0; i-- {
		if probs[i] > 0 {
			return i
		}
	}
	return len(probs) - 1
}
