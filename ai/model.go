// Package ai holds the sequence model that learns to predict the next
// symbol of a melody, the trainer that fits it, and the sampler that
// generates new melodies from it.
package ai

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/schollz/melodai/dataset"
)

// Config is the full training/model configuration surface.
type Config struct {
	// SequenceLength is the window length L: how many previous
	// symbols the model sees when predicting the next one
	SequenceLength int
	// Epochs is the training epoch budget
	Epochs int
	// BatchSize is the mini-batch size
	BatchSize int
	// HiddenUnits is the width of each recurrent layer
	HiddenUnits int
	// LearningRate for the Adam optimizer
	LearningRate float64
	// DropoutRate applied between the recurrent layers and after
	// the dense transform, during training only
	DropoutRate float64
	// Patience is how many consecutive non-improving epochs to
	// tolerate before stopping early
	Patience int
}

// DefaultConfig returns the defaults the CLI also advertises.
func DefaultConfig() Config {
	return Config{
		SequenceLength: 64,
		Epochs:         50,
		BatchSize:      64,
		HiddenUnits:    256,
		LearningRate:   0.001,
		DropoutRate:    0.3,
		Patience:       5,
	}
}

// Model is a two-layer recurrent next-symbol classifier. Each context
// index is fed as a single scalar, the index divided by the vocabulary
// size. That is a deliberate simplification kept from the system this
// reimplements; an embedding layer would be the better input if
// accuracy mattered more than fidelity.
//
// The layout is recurrent(H) -> dropout -> recurrent(H) -> dense(H)
// -> dropout -> softmax(V), trained with cross-entropy and Adam.
//
// A Model is safe for concurrent read-only use (Predict); training
// mutates weights in place and must not run concurrently with it.
type Model struct {
	SeqLength   int
	VocabSize   int
	HiddenUnits int
	DropoutRate float64

	wx1, wh1 *mat.Dense // first recurrent layer, input and recurrent weights
	wx2, wh2 *mat.Dense // second recurrent layer
	wd       *mat.Dense // dense transform
	wo       *mat.Dense // output projection to |V| logits
	b1, b2   *mat.VecDense
	bd, bo   *mat.VecDense

	adam *adamState
}

const initWeightScale = 0.08

// NewModel initializes a model with small random weights drawn from
// the supplied source.
func NewModel(cfg Config, vocabSize int, rng *rand.Rand) *Model {
	h := cfg.HiddenUnits
	m := &Model{
		SeqLength:   cfg.SequenceLength,
		VocabSize:   vocabSize,
		HiddenUnits: h,
		DropoutRate: cfg.DropoutRate,
		wx1:         randDense(h, 1, rng),
		wh1:         randDense(h, h, rng),
		wx2:         randDense(h, h, rng),
		wh2:         randDense(h, h, rng),
		wd:          randDense(h, h, rng),
		wo:          randDense(vocabSize, h, rng),
		b1:          mat.NewVecDense(h, nil),
		b2:          mat.NewVecDense(h, nil),
		bd:          mat.NewVecDense(h, nil),
		bo:          mat.NewVecDense(vocabSize, nil),
	}
	return m
}

func randDense(r, c int, rng *rand.Rand) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64() * initWeightScale
	}
	return mat.NewDense(r, c, data)
}

// normalize maps a symbol index into [0,1) for the input layer.
func (m *Model) normalize(index int) float64 {
	return float64(index) / float64(m.VocabSize)
}

// Predict runs one inference forward pass and returns the probability
// distribution over the vocabulary for the next symbol. Dropout is
// disabled; the model is not mutated.
func (m *Model) Predict(context []int) ([]float64, error) {
	if len(context) != m.SeqLength {
		return nil, errors.Errorf("context length %d does not match model sequence length %d", len(context), m.SeqLength)
	}
	h := m.HiddenUnits
	h1 := mat.NewVecDense(h, nil)
	h2 := mat.NewVecDense(h, nil)
	tmp := mat.NewVecDense(h, nil)
	for _, index := range context {
		if index < 0 || index >= m.VocabSize {
			return nil, errors.Errorf("context index %d outside vocabulary [0,%d)", index, m.VocabSize)
		}
		x := m.normalize(index)
		// first recurrent layer
		tmp.MulVec(m.wh1, h1)
		next := mat.NewVecDense(h, nil)
		next.AddVec(tmp, m.b1)
		addScaledCol(next, m.wx1, 0, x)
		applyTanh(next)
		h1 = next
		// second recurrent layer
		tmp.MulVec(m.wx2, h1)
		next = mat.NewVecDense(h, nil)
		next.MulVec(m.wh2, h2)
		next.AddVec(next, tmp)
		next.AddVec(next, m.b2)
		applyTanh(next)
		h2 = next
	}
	dense := mat.NewVecDense(h, nil)
	dense.MulVec(m.wd, h2)
	dense.AddVec(dense, m.bd)
	applyTanh(dense)
	logits := mat.NewVecDense(m.VocabSize, nil)
	logits.MulVec(m.wo, dense)
	logits.AddVec(logits, m.bo)
	return softmax(logits.RawVector().Data), nil
}

// gradients mirrors the model's parameters, one buffer per weight.
type gradients struct {
	wx1, wh1, wx2, wh2, wd, wo *mat.Dense
	b1, b2, bd, bo             *mat.VecDense
}

func (m *Model) newGradients() *gradients {
	h := m.HiddenUnits
	return &gradients{
		wx1: mat.NewDense(h, 1, nil),
		wh1: mat.NewDense(h, h, nil),
		wx2: mat.NewDense(h, h, nil),
		wh2: mat.NewDense(h, h, nil),
		wd:  mat.NewDense(h, h, nil),
		wo:  mat.NewDense(m.VocabSize, h, nil),
		b1:  mat.NewVecDense(h, nil),
		b2:  mat.NewVecDense(h, nil),
		bd:  mat.NewVecDense(h, nil),
		bo:  mat.NewVecDense(m.VocabSize, nil),
	}
}

func (g *gradients) zero() {
	for _, d := range g.data() {
		for i := range d {
			d[i] = 0
		}
	}
}

func (g *gradients) data() [][]float64 {
	return [][]float64{
		g.wx1.RawMatrix().Data, g.wh1.RawMatrix().Data,
		g.wx2.RawMatrix().Data, g.wh2.RawMatrix().Data,
		g.wd.RawMatrix().Data, g.wo.RawMatrix().Data,
		g.b1.RawVector().Data, g.b2.RawVector().Data,
		g.bd.RawVector().Data, g.bo.RawVector().Data,
	}
}

func (m *Model) paramData() [][]float64 {
	return [][]float64{
		m.wx1.RawMatrix().Data, m.wh1.RawMatrix().Data,
		m.wx2.RawMatrix().Data, m.wh2.RawMatrix().Data,
		m.wd.RawMatrix().Data, m.wo.RawMatrix().Data,
		m.b1.RawVector().Data, m.b2.RawVector().Data,
		m.bd.RawVector().Data, m.bo.RawVector().Data,
	}
}

// backprop runs one example forward with dropout, accumulates its
// gradients into g, and reports the example's cross-entropy loss and
// whether the argmax prediction matched the target.
func (m *Model) backprop(ex dataset.Example, g *gradients, rng *rand.Rand) (loss float64, correct bool) {
	h := m.HiddenUnits
	L := m.SeqLength

	// forward, caching per-step activations for backprop through time
	xs := make([]float64, L)
	h1s := make([]*mat.VecDense, L) // post-tanh
	d1s := make([]*mat.VecDense, L) // post-dropout input to layer 2
	m1s := make([][]float64, L)     // dropout masks between the layers
	h2s := make([]*mat.VecDense, L)

	prev1 := mat.NewVecDense(h, nil)
	prev2 := mat.NewVecDense(h, nil)
	tmp := mat.NewVecDense(h, nil)
	for t, index := range ex.Context {
		xs[t] = m.normalize(index)
		h1 := mat.NewVecDense(h, nil)
		h1.MulVec(m.wh1, prev1)
		h1.AddVec(h1, m.b1)
		addScaledCol(h1, m.wx1, 0, xs[t])
		applyTanh(h1)
		h1s[t] = h1

		d1 := mat.NewVecDense(h, nil)
		d1.CopyVec(h1)
		m1s[t] = dropoutMask(h, m.DropoutRate, rng)
		applyMask(d1, m1s[t])
		d1s[t] = d1

		h2 := mat.NewVecDense(h, nil)
		h2.MulVec(m.wh2, prev2)
		tmp.MulVec(m.wx2, d1)
		h2.AddVec(h2, tmp)
		h2.AddVec(h2, m.b2)
		applyTanh(h2)
		h2s[t] = h2

		prev1, prev2 = h1, h2
	}

	densePre := mat.NewVecDense(h, nil)
	densePre.MulVec(m.wd, h2s[L-1])
	densePre.AddVec(densePre, m.bd)
	applyTanh(densePre)
	maskD := dropoutMask(h, m.DropoutRate, rng)
	dense := mat.NewVecDense(h, nil)
	dense.CopyVec(densePre)
	applyMask(dense, maskD)

	logits := mat.NewVecDense(m.VocabSize, nil)
	logits.MulVec(m.wo, dense)
	logits.AddVec(logits, m.bo)
	probs := softmax(logits.RawVector().Data)

	p := probs[ex.Target]
	if p < 1e-12 {
		p = 1e-12
	}
	loss = -math.Log(p)
	correct = floats.MaxIdx(probs) == ex.Target

	// backward: softmax + cross-entropy collapse to probs - onehot
	dLogits := mat.NewVecDense(m.VocabSize, probs)
	dLogits.SetVec(ex.Target, dLogits.AtVec(ex.Target)-1)
	g.wo.RankOne(g.wo, 1, dLogits, dense)
	g.bo.AddVec(g.bo, dLogits)

	dDense := mat.NewVecDense(h, nil)
	dDense.MulVec(m.wo.T(), dLogits)
	applyMask(dDense, maskD)
	tanhBackward(dDense, densePre)
	g.wd.RankOne(g.wd, 1, dDense, h2s[L-1])
	g.bd.AddVec(g.bd, dDense)

	dh2 := mat.NewVecDense(h, nil)
	dh2.MulVec(m.wd.T(), dDense)
	dh1 := mat.NewVecDense(h, nil)

	dpre := mat.NewVecDense(h, nil)
	carry := mat.NewVecDense(h, nil)
	for t := L - 1; t >= 0; t-- {
		// second layer
		dpre.CopyVec(dh2)
		tanhBackward(dpre, h2s[t])
		g.wx2.RankOne(g.wx2, 1, dpre, d1s[t])
		if t > 0 {
			g.wh2.RankOne(g.wh2, 1, dpre, h2s[t-1])
		}
		g.b2.AddVec(g.b2, dpre)
		carry.MulVec(m.wx2.T(), dpre)
		applyMask(carry, m1s[t])
		dh1.AddVec(dh1, carry)
		dh2.MulVec(m.wh2.T(), dpre)

		// first layer
		dpre.CopyVec(dh1)
		tanhBackward(dpre, h1s[t])
		addScaledColGrad(g.wx1, 0, dpre, xs[t])
		if t > 0 {
			g.wh1.RankOne(g.wh1, 1, dpre, h1s[t-1])
		}
		g.b1.AddVec(g.b1, dpre)
		dh1.MulVec(m.wh1.T(), dpre)
	}
	return
}

// addScaledCol adds scale * column j of w to v (the scalar-input case
// of a matrix-vector product).
func addScaledCol(v *mat.VecDense, w *mat.Dense, j int, scale float64) {
	data := v.RawVector().Data
	for i := range data {
		data[i] += w.At(i, j) * scale
	}
}

// addScaledColGrad accumulates scale * d into column j of g.
func addScaledColGrad(g *mat.Dense, j int, d *mat.VecDense, scale float64) {
	src := d.RawVector().Data
	for i := range src {
		g.Set(i, j, g.At(i, j)+src[i]*scale)
	}
}

func applyTanh(v *mat.VecDense) {
	data := v.RawVector().Data
	for i := range data {
		data[i] = math.Tanh(data[i])
	}
}

// tanhBackward multiplies d elementwise by tanh'(pre) expressed via
// the cached activation: 1 - act^2.
func tanhBackward(d, act *mat.VecDense) {
	dd := d.RawVector().Data
	aa := act.RawVector().Data
	for i := range dd {
		dd[i] *= 1 - aa[i]*aa[i]
	}
}

// dropoutMask returns an inverted-dropout mask: zero with probability
// rate, 1/(1-rate) otherwise, so activations keep their expected
// magnitude. A nil mask means dropout is off.
func dropoutMask(n int, rate float64, rng *rand.Rand) []float64 {
	if rate <= 0 {
		return nil
	}
	keep := 1 - rate
	mask := make([]float64, n)
	for i := range mask {
		if rng.Float64() < keep {
			mask[i] = 1 / keep
		}
	}
	return mask
}

func applyMask(v *mat.VecDense, mask []float64) {
	if mask == nil {
		return
	}
	data := v.RawVector().Data
	for i := range data {
		data[i] *= mask[i]
	}
}

func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	max := floats.Max(logits)
	for i, l := range logits {
		out[i] = math.Exp(l - max)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}
