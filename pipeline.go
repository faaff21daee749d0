package main

import (
	"math/rand"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/schollz/melodai/ai"
	"github.com/schollz/melodai/dataset"
	"github.com/schollz/melodai/midifile"
	"github.com/schollz/melodai/music"
	"github.com/schollz/melodai/vocab"
)

// Pipeline is the main structure which facilitates the ingestion, the
// model, and the rendering. Learning walks a directory of MIDI files
// into a trained model; generating walks a trained model back out
// into a MIDI file.
type Pipeline struct {
	// Config is the model/training configuration
	Config ai.Config
	// MidiDir is the directory of MIDI files to learn from
	MidiDir string
	// Name is the base name for the saved model, vocabulary, and
	// ingested corpus (name.model / name.vocab / name.notes.json)
	Name string
	// CheckpointDir receives timestamped weight checkpoints
	CheckpointDir string
	// HistoryFile receives the per-epoch loss/accuracy curve
	HistoryFile string
	// Seed fixes the random source for reproducible runs
	Seed int64
}

func (p *Pipeline) rng() *rand.Rand {
	return rand.New(rand.NewSource(p.Seed))
}

// corpusFile is where the ingested notes are kept so generation can
// draw random seed contexts later.
func (p *Pipeline) corpusFile() string {
	return p.Name + ".notes.json"
}

// Learn ingests the MIDI directory, builds the vocabulary, windows
// the corpus, and trains the model, saving everything under p.Name.
func (p *Pipeline) Learn() (err error) {
	logger := log.WithFields(log.Fields{
		"function": "Pipeline.Learn",
	})

	notes, stats, err := midifile.ReadDir(p.MidiDir)
	if err != nil {
		return
	}
	logger.Infof("Ingested %d notes from %d files", stats.Notes, stats.FilesRead)

	m := music.New()
	m.AddNotes(notes)
	if err = m.Save(p.corpusFile()); err != nil {
		return errors.Wrap(err, "saving ingested corpus")
	}

	symbols := make([]string, len(notes))
	for i, n := range notes {
		symbols[i] = music.Encode(n)
	}
	v := vocab.Build(symbols)
	indices, err := v.Encode(symbols)
	if err != nil {
		return
	}
	examples, err := dataset.Window(indices, p.Config.SequenceLength)
	if err != nil {
		return
	}
	logger.Infof("Windowed corpus of %d symbols into %d examples", len(indices), len(examples))

	trainer := ai.NewTrainer(p.Config, v, p.rng())
	trainer.CheckpointDir = p.CheckpointDir
	trainer.HistoryFile = p.HistoryFile
	trainer.SaveName = p.Name
	_, err = trainer.Train(examples)
	return
}

// Generate loads the model/vocabulary pair saved by Learn, samples a
// new symbol sequence, and renders it to a single-track MIDI file.
func (p *Pipeline) Generate(outFile string, length int, temperature float64, bpm float64) (err error) {
	logger := log.WithFields(log.Fields{
		"function": "Pipeline.Generate",
	})

	v, err := vocab.Load(p.Name + ".vocab")
	if err != nil {
		return
	}
	model, err := ai.LoadModel(p.Name+".model", v.Size())
	if err != nil {
		return
	}

	// the ingested corpus supplies random seed contexts; without it
	// generation still works if a seed were supplied, but we seed
	// randomly here
	var corpus []int
	if m, errOpen := music.Open(p.corpusFile()); errOpen != nil {
		logger.Warnf("Could not open %s, random seeding unavailable: %s", p.corpusFile(), errOpen)
	} else {
		saved := m.GetAll()
		symbols := make([]string, len(saved))
		for i, n := range saved {
			symbols[i] = music.Encode(n)
		}
		if corpus, err = v.Encode(symbols); err != nil {
			return errors.Wrap(err, "re-encoding saved corpus")
		}
	}

	sampler := &ai.Sampler{
		Model:  model,
		Vocab:  v,
		Corpus: corpus,
		Rand:   p.rng(),
	}
	symbols, err := sampler.Generate(nil, length, temperature)
	if err != nil {
		return
	}
	notes, err := music.RenderSequence(symbols)
	if err != nil {
		return
	}
	return midifile.Write(outFile, notes, bpm)
}
