package ai

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/jsonstore"
	log "github.com/sirupsen/logrus"

	"github.com/schollz/melodai/dataset"
	"github.com/schollz/melodai/vocab"
)

// ErrInsufficientData is returned when training is requested with no
// examples to train on.
var ErrInsufficientData = errors.New("insufficient training data")

// EpochStats is one point of the loss/accuracy curve. The trainer
// appends one per epoch to the history file so anything downstream
// (plots, dashboards) can pick it up.
type EpochStats struct {
	Epoch    int       `json:"epoch"`
	Loss     float64   `json:"loss"`
	Accuracy float64   `json:"accuracy"`
	Best     bool      `json:"best"`
	When     time.Time `json:"when"`
}

// earlyStopper tracks the best loss seen so far and how many epochs
// have gone by without beating it. Checkpointing and stopping both
// key off the same observe call so they can never disagree about
// which epoch was best.
type earlyStopper struct {
	patience int
	bestLoss float64
	wait     int
}

func newEarlyStopper(patience int) *earlyStopper {
	return &earlyStopper{
		patience: patience,
		bestLoss: math.Inf(1),
	}
}

// observe records one epoch's loss. improved means this is a new best
// (checkpoint it); stop means patience ran out (restore the best).
func (e *earlyStopper) observe(loss float64) (improved, stop bool) {
	if loss < e.bestLoss {
		e.bestLoss = loss
		e.wait = 0
		return true, false
	}
	e.wait++
	return false, e.wait >= e.patience
}

// Trainer runs the optimization loop: shuffled mini-batches each
// epoch, a checkpoint on every new best loss, early stopping with
// best-weight restore, and a final paired save of weights and
// vocabulary.
type Trainer struct {
	Config Config
	Model  *Model
	Vocab  *vocab.Vocabulary

	// CheckpointDir receives a timestamp-tagged weight blob each
	// time the loss improves. Empty disables checkpoints.
	CheckpointDir string
	// HistoryFile receives the per-epoch loss/accuracy curve.
	// Empty disables it.
	HistoryFile string
	// SaveName, when set, is the base name for the final
	// weights+vocabulary pair written after training.
	SaveName string

	rng *rand.Rand
}

// NewTrainer wires a trainer around a freshly initialized model. The
// random source drives weight init, epoch shuffling, and dropout, so
// a fixed seed makes a run reproducible.
func NewTrainer(cfg Config, v *vocab.Vocabulary, rng *rand.Rand) *Trainer {
	return &Trainer{
		Config: cfg,
		Model:  NewModel(cfg, v.Size(), rng),
		Vocab:  v,
		rng:    rng,
	}
}

// ResumeTrainer continues training an existing model, typically one
// restored from a checkpoint with LoadModel. Epoch and optimizer
// counters start over; only the weights carry across.
func ResumeTrainer(cfg Config, v *vocab.Vocabulary, m *Model, rng *rand.Rand) (*Trainer, error) {
	if m.VocabSize != v.Size() {
		return nil, errors.Errorf("model output width %d does not match vocabulary size %d", m.VocabSize, v.Size())
	}
	cfg.SequenceLength = m.SeqLength
	cfg.HiddenUnits = m.HiddenUnits
	return &Trainer{
		Config: cfg,
		Model:  m,
		Vocab:  v,
		rng:    rng,
	}, nil
}

// Train sweeps the examples for up to Config.Epochs epochs and
// returns the per-epoch curve. On early stop, and when the epoch
// budget runs out, the weights of the best epoch are restored.
func (t *Trainer) Train(examples []dataset.Example) (history []EpochStats, err error) {
	logger := log.WithFields(log.Fields{
		"function": "Trainer.Train",
	})
	if len(examples) == 0 {
		return nil, errors.Wrap(ErrInsufficientData, "zero training examples")
	}

	stopper := newEarlyStopper(t.Config.Patience)
	var best *snapshot
	grads := t.Model.newGradients()
	order := make([]int, len(examples))
	for i := range order {
		order[i] = i
	}

	logger.Infof("Training on %d examples (batch size %d, up to %d epochs)", len(examples), t.Config.BatchSize, t.Config.Epochs)
	for epoch := 1; epoch <= t.Config.Epochs; epoch++ {
		t.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		epochLoss := 0.0
		nCorrect := 0
		for start := 0; start < len(order); start += t.Config.BatchSize {
			end := start + t.Config.BatchSize
			if end > len(order) {
				end = len(order)
			}
			grads.zero()
			for _, i := range order[start:end] {
				loss, correct := t.Model.backprop(examples[i], grads, t.rng)
				epochLoss += loss
				if correct {
					nCorrect++
				}
			}
			t.Model.adamStep(grads, t.Config.LearningRate, end-start)
		}

		stats := EpochStats{
			Epoch:    epoch,
			Loss:     epochLoss / float64(len(examples)),
			Accuracy: float64(nCorrect) / float64(len(examples)),
			When:     time.Now(),
		}

		improved, stop := stopper.observe(stats.Loss)
		stats.Best = improved
		history = append(history, stats)
		logger.Infof("Epoch %d/%d: loss=%.4f accuracy=%.3f", epoch, t.Config.Epochs, stats.Loss, stats.Accuracy)

		if improved {
			best = t.Model.snapshot()
			if errCkpt := t.writeCheckpoint(best); errCkpt != nil {
				return history, errCkpt
			}
		}
		if stop {
			logger.Infof("No improvement for %d epochs, stopping early (best loss %.4f)", t.Config.Patience, stopper.bestLoss)
			break
		}
	}

	if best != nil {
		if err = t.Model.restore(best); err != nil {
			return history, err
		}
	}
	if err = t.writeHistory(history); err != nil {
		return history, err
	}
	if t.SaveName != "" {
		if err = t.Model.Save(t.SaveName + ".model"); err != nil {
			return history, err
		}
		if err = t.Vocab.Save(t.SaveName + ".vocab"); err != nil {
			return history, err
		}
	}
	return history, nil
}

func (t *Trainer) writeCheckpoint(s *snapshot) (err error) {
	if t.CheckpointDir == "" {
		return
	}
	path := filepath.Join(t.CheckpointDir, fmt.Sprintf("weights-%s.ckpt", s.SavedAt.Format("20060102-150405.000")))
	if err = t.Model.Save(path); err != nil {
		return errors.Wrap(err, "writing checkpoint")
	}
	return
}

func (t *Trainer) writeHistory(history []EpochStats) (err error) {
	if t.HistoryFile == "" {
		return
	}
	ks := new(jsonstore.JSONStore)
	for _, stats := range history {
		if err = ks.Set(fmt.Sprintf("epoch-%03d", stats.Epoch), stats); err != nil {
			return errors.Wrap(err, "writing history")
		}
	}
	return jsonstore.Save(ks, t.HistoryFile)
}
