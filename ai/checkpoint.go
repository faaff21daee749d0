package ai

import (
	"encoding/gob"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// newZeroRand seeds the throwaway initializer used when weights are
// about to be overwritten by a restore.
func newZeroRand() *rand.Rand {
	return rand.New(rand.NewSource(0))
}

// snapshot is the persisted form of a model: the weights plus the
// shape metadata needed to refuse loading them against the wrong
// vocabulary or window length.
type snapshot struct {
	SeqLength   int
	VocabSize   int
	HiddenUnits int
	DropoutRate float64
	SavedAt     time.Time
	Weights     [][]float64
}

func (m *Model) snapshot() *snapshot {
	params := m.paramData()
	weights := make([][]float64, len(params))
	for i, p := range params {
		weights[i] = make([]float64, len(p))
		copy(weights[i], p)
	}
	return &snapshot{
		SeqLength:   m.SeqLength,
		VocabSize:   m.VocabSize,
		HiddenUnits: m.HiddenUnits,
		DropoutRate: m.DropoutRate,
		SavedAt:     time.Now(),
		Weights:     weights,
	}
}

func (m *Model) restore(s *snapshot) error {
	params := m.paramData()
	if len(s.Weights) != len(params) {
		return errors.Errorf("snapshot has %d weight buffers, model has %d", len(s.Weights), len(params))
	}
	for i, p := range params {
		if len(s.Weights[i]) != len(p) {
			return errors.Errorf("weight buffer %d has %d values, model needs %d", i, len(s.Weights[i]), len(p))
		}
		copy(p, s.Weights[i])
	}
	return nil
}

// Save writes the model weights and shape metadata as a gob blob.
func (m *Model) Save(path string) (err error) {
	logger := log.WithFields(log.Fields{
		"function": "Model.Save",
	})
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "saving model")
	}
	defer f.Close()
	if err = gob.NewEncoder(f).Encode(m.snapshot()); err != nil {
		return errors.Wrap(err, "saving model")
	}
	logger.Infof("Saved model (L=%d, |V|=%d) to %s", m.SeqLength, m.VocabSize, path)
	return
}

// LoadModel restores a model saved by Save. vocabSize is the size of
// the vocabulary the caller intends to pair it with; a mismatch with
// the persisted metadata fails immediately rather than producing
// silently wrong output shapes.
func LoadModel(path string, vocabSize int) (m *Model, err error) {
	logger := log.WithFields(log.Fields{
		"function": "ai.LoadModel",
	})
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "loading model")
	}
	defer f.Close()
	var s snapshot
	if err = gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "loading model")
	}
	if s.VocabSize != vocabSize {
		return nil, errors.Errorf("model was trained with vocabulary size %d, got %d; weights and vocabulary must be loaded as a matched pair", s.VocabSize, vocabSize)
	}
	cfg := DefaultConfig()
	cfg.SequenceLength = s.SeqLength
	cfg.HiddenUnits = s.HiddenUnits
	cfg.DropoutRate = s.DropoutRate
	m = NewModel(cfg, s.VocabSize, newZeroRand())
	if err = m.restore(&s); err != nil {
		return nil, err
	}
	logger.Infof("Loaded model (L=%d, |V|=%d, hidden=%d) from %s", m.SeqLength, m.VocabSize, m.HiddenUnits, path)
	return m, nil
}
