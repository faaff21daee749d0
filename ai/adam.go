package ai

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// adamState carries the first/second moment estimates for every
// parameter buffer, in the same order paramData returns them.
type adamState struct {
	m, v [][]float64
	t    int
}

func newAdamState(params [][]float64) *adamState {
	st := &adamState{
		m: make([][]float64, len(params)),
		v: make([][]float64, len(params)),
	}
	for i, p := range params {
		st.m[i] = make([]float64, len(p))
		st.v[i] = make([]float64, len(p))
	}
	return st
}

// adamStep applies one Adam update to the model from the accumulated
// batch gradients, scaling them by 1/batchSize first.
func (m *Model) adamStep(g *gradients, lr float64, batchSize int) {
	params := m.paramData()
	if m.adam == nil {
		m.adam = newAdamState(params)
	}
	st := m.adam
	st.t++
	b1Corr := 1 - math.Pow(adamBeta1, float64(st.t))
	b2Corr := 1 - math.Pow(adamBeta2, float64(st.t))
	scale := 1 / float64(batchSize)

	for i, grad := range g.data() {
		if batchSize > 1 {
			floats.Scale(scale, grad)
		}
		p := params[i]
		mi := st.m[i]
		vi := st.v[i]
		for j, gj := range grad {
			mi[j] = adamBeta1*mi[j] + (1-adamBeta1)*gj
			vi[j] = adamBeta2*vi[j] + (1-adamBeta2)*gj*gj
			mhat := mi[j] / b1Corr
			vhat := vi[j] / b2Corr
			p[j] -= lr * mhat / (math.Sqrt(vhat) + adamEps)
		}
	}
}
