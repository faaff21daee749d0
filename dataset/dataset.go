// Package dataset turns an index corpus into supervised training
// pairs by sliding a fixed-length window over it.
package dataset

import (
	"github.com/pkg/errors"
)

// Example is one training pair: L context indices and the index that
// followed them in the corpus.
type Example struct {
	Context []int
	Target  int
}

// Window slides a window of length seqLength with stride 1 over the
// corpus and emits one example per position: context corpus[i:i+L],
// target corpus[i+L]. A corpus no longer than the window yields zero
// examples, which is not an error here (the trainer treats an empty
// dataset as one). Stride 1 means maximal overlap between examples;
// with small corpora the redundancy is worth the extra data.
func Window(corpus []int, seqLength int) (examples []Example, err error) {
	if seqLength <= 0 {
		return nil, errors.Errorf("sequence length must be positive, got %d", seqLength)
	}
	n := len(corpus) - seqLength
	if n <= 0 {
		return []Example{}, nil
	}
	examples = make([]Example, n)
	for i := 0; i < n; i++ {
		context := make([]int, seqLength)
		copy(context, corpus[i:i+seqLength])
		examples[i] = Example{
			Context: context,
			Target:  corpus[i+seqLength],
		}
	}
	return
}
