package ai

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/schollz/melodai/dataset"
)

func tinyConfig() Config {
	cfg := DefaultConfig()
	cfg.SequenceLength = 3
	cfg.HiddenUnits = 4
	cfg.DropoutRate = 0
	return cfg
}

func TestPredictIsADistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	m := NewModel(tinyConfig(), 5, rng)
	probs, err := m.Predict([]int{1, 3, 2})
	require.NoError(t, err)
	require.Len(t, probs, 5)
	assert.InDelta(t, 1.0, floats.Sum(probs), 1e-9)
	for _, p := range probs {
		assert.True(t, p >= 0)
	}
}

func TestPredictValidatesContext(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	m := NewModel(tinyConfig(), 5, rng)
	_, err := m.Predict([]int{1, 2})
	assert.Error(t, err)
	_, err = m.Predict([]int{1, 2, 5})
	assert.Error(t, err)
}

// TestBackpropGradients compares analytic gradients against central
// finite differences on a tiny model. Dropout is off so the loss is
// deterministic.
func TestBackpropGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	m := NewModel(tinyConfig(), 5, rng)
	ex := dataset.Example{Context: []int{1, 3, 2}, Target: 4}

	g := m.newGradients()
	m.backprop(ex, g, rng)

	lossAt := func() float64 {
		scratch := m.newGradients()
		loss, _ := m.backprop(ex, scratch, rng)
		return loss
	}

	const eps = 1e-5
	params := m.paramData()
	grads := g.data()
	for i := range params {
		p := params[i]
		for _, j := range []int{0, len(p) / 2, len(p) - 1} {
			orig := p[j]
			p[j] = orig + eps
			lossPlus := lossAt()
			p[j] = orig - eps
			lossMinus := lossAt()
			p[j] = orig
			numeric := (lossPlus - lossMinus) / (2 * eps)
			assert.InDelta(t, numeric, grads[i][j], 1e-5, "buffer %d index %d", i, j)
		}
	}
}

func TestAdamStepMovesWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := NewModel(tinyConfig(), 5, rng)
	ex := dataset.Example{Context: []int{0, 1, 2}, Target: 3}

	before, _ := m.backprop(ex, m.newGradients(), rng)
	for i := 0; i < 50; i++ {
		g := m.newGradients()
		m.backprop(ex, g, rng)
		m.adamStep(g, 0.01, 1)
	}
	after, _ := m.backprop(ex, m.newGradients(), rng)
	assert.Less(t, after, before, "loss should shrink when overfitting a single example")
}
