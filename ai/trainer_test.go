package ai

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schollz/melodai/dataset"
	"github.com/schollz/melodai/vocab"
)

func TestEarlyStopper(t *testing.T) {
	// the minimum is hit at epoch 3; five consecutive non-improving
	// epochs later, training halts at epoch 8
	losses := []float64{5, 4, 3, 3, 3, 3, 3, 3}
	stopper := newEarlyStopper(5)
	stoppedAt := 0
	for i, loss := range losses {
		improved, stop := stopper.observe(loss)
		assert.Equal(t, i < 3, improved, "epoch %d", i+1)
		if stop {
			stoppedAt = i + 1
			break
		}
	}
	assert.Equal(t, 8, stoppedAt)
	assert.Equal(t, 3.0, stopper.bestLoss)
}

func TestEarlyStopperKeepsWaitingWhileImproving(t *testing.T) {
	stopper := newEarlyStopper(2)
	for _, loss := range []float64{5, 4, 3, 2, 1} {
		improved, stop := stopper.observe(loss)
		assert.True(t, improved)
		assert.False(t, stop)
	}
}

func TestTrainInsufficientData(t *testing.T) {
	v := vocab.Build([]string{"a", "b", "c"})
	trainer := NewTrainer(tinyConfig(), v, rand.New(rand.NewSource(1)))
	_, err := trainer.Train(nil)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func trainingFixture(t *testing.T) (*vocab.Vocabulary, []dataset.Example) {
	t.Helper()
	v := vocab.Build([]string{"a", "b", "c"})
	var indices []int
	for i := 0; i < 20; i++ {
		indices = append(indices, 0, 1, 2)
	}
	examples, err := dataset.Window(indices, 3)
	require.NoError(t, err)
	return v, examples
}

func TestTrainProducesCurveAndArtifacts(t *testing.T) {
	v, examples := trainingFixture(t)
	dir := t.TempDir()

	cfg := tinyConfig()
	cfg.Epochs = 3
	cfg.BatchSize = 16
	cfg.DropoutRate = 0.1
	cfg.LearningRate = 0.01

	trainer := NewTrainer(cfg, v, rand.New(rand.NewSource(1)))
	trainer.CheckpointDir = dir
	trainer.HistoryFile = filepath.Join(dir, "history.json")
	trainer.SaveName = filepath.Join(dir, "tiny")

	history, err := trainer.Train(examples)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, stats := range history {
		assert.Equal(t, i+1, stats.Epoch)
		assert.False(t, stats.Loss != stats.Loss, "loss must not be NaN")
		assert.True(t, stats.Accuracy >= 0 && stats.Accuracy <= 1)
	}
	assert.True(t, history[0].Best, "first epoch is always a new best")

	// curve, checkpoints, and the final model/vocabulary pair all
	// land on disk
	assert.FileExists(t, trainer.HistoryFile)
	assert.FileExists(t, trainer.SaveName+".model")
	assert.FileExists(t, trainer.SaveName+".vocab")
	checkpoints, err := filepath.Glob(filepath.Join(dir, "weights-*.ckpt"))
	require.NoError(t, err)
	assert.NotEmpty(t, checkpoints)
}

func TestModelSaveLoadRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := NewModel(tinyConfig(), 5, rng)
	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, m.Save(path))

	loaded, err := LoadModel(path, 5)
	require.NoError(t, err)
	assert.Equal(t, m.SeqLength, loaded.SeqLength)
	assert.Equal(t, m.HiddenUnits, loaded.HiddenUnits)

	context := []int{1, 3, 2}
	want, err := m.Predict(context)
	require.NoError(t, err)
	got, err := loaded.Predict(context)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadModelVocabularyMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := NewModel(tinyConfig(), 5, rng)
	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, m.Save(path))

	_, err := LoadModel(path, 7)
	assert.Error(t, err, "loading against a different vocabulary size must fail fast")
}

func TestResumeTrainer(t *testing.T) {
	v, examples := trainingFixture(t)
	rng := rand.New(rand.NewSource(9))

	cfg := tinyConfig()
	cfg.Epochs = 2
	cfg.BatchSize = 16

	m := NewModel(cfg, v.Size(), rng)
	trainer, err := ResumeTrainer(cfg, v, m, rng)
	require.NoError(t, err)
	history, err := trainer.Train(examples)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	// a model trained against a different vocabulary is rejected
	other := vocab.Build([]string{"a", "b", "c", "d"})
	_, err = ResumeTrainer(cfg, other, m, rng)
	assert.Error(t, err)
}

func TestLoadModelMissingFile(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "nope.gob"), 5)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
