package music

import (
	"encoding/json"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Note carries the pitch and timing information of a single press.
// Start and Duration are in seconds. Velocity is kept from ingestion
// so rendered output can reuse it.
type Note struct {
	Pitch    int     `json:"pitch"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Velocity int     `json:"velocity"`
}

// Notes is a structure for sorting notes by their start time
type Notes []Note

func (p Notes) Len() int {
	return len(p)
}

func (p Notes) Less(i, j int) bool {
	if p[i].Start == p[j].Start {
		return p[i].Pitch < p[j].Pitch
	}
	return p[i].Start < p[j].Start
}

func (p Notes) Swap(i, j int) {
	p[i], p[j] = p[j], p[i]
}

// Music stores all the notes gathered from ingestion
type Music struct {
	notes Notes
	sync.RWMutex
}

// New returns a new object
func New() *Music {
	m := new(Music)
	m.notes = Notes{}
	return m
}

// Open loads a previously saved music history
func Open(filename string) (*Music, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return New(), err
	}
	m := New()
	m.Lock()
	err = json.Unmarshal(b, &m.notes)
	m.Unlock()
	return m, err
}

// AddNote will add a note in a thread-safe way.
func (m *Music) AddNote(n Note) {
	m.Lock()
	defer m.Unlock()
	m.notes = append(m.notes, n)
}

// AddNotes appends a batch of notes in a thread-safe way.
func (m *Music) AddNotes(ns Notes) {
	m.Lock()
	defer m.Unlock()
	m.notes = append(m.notes, ns...)
}

// Len returns the number of notes collected so far.
func (m *Music) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.notes)
}

// GetAll retrieves all notes in insertion order, in a thread-safe
// way. Insertion order is the corpus order: notes within one source
// file are time-ordered and files are concatenated, so a global
// re-sort by start time would scramble the corpus.
func (m *Music) GetAll() (notes Notes) {
	logger := log.WithFields(log.Fields{
		"function": "Music.GetAll",
	})
	logger.Debug("Getting all")
	m.RLock()
	defer m.RUnlock()
	notes = make(Notes, len(m.notes))
	copy(notes, m.notes)
	return
}

func (m *Music) Save(filename string) (err error) {
	m.RLock()
	defer m.RUnlock()
	b, err := json.Marshal(m.notes)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, b, 0644)
}
