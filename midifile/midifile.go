// Package midifile reads note events out of Standard MIDI Files and
// writes generated melodies back into one.
package midifile

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/schollz/melodai/music"
)

// Stats reports what ingestion managed to read.
type Stats struct {
	FilesRead    int
	FilesSkipped int
	Notes        int
}

// ReadDir parses every .mid/.midi file in dir. A file that fails to
// parse is logged and skipped; the rest of the directory is still
// processed. Notes are concatenated in file order, time-ordered
// within each file.
func ReadDir(dir string) (notes music.Notes, stats Stats, err error) {
	logger := log.WithFields(log.Fields{
		"function": "midifile.ReadDir",
	})
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, stats, errors.Wrapf(err, "reading %s", dir)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".mid" && ext != ".midi" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		fileNotes, errRead := ReadFile(path)
		if errRead != nil {
			logger.Warnf("Skipping %s: %s", path, errRead)
			stats.FilesSkipped++
			continue
		}
		notes = append(notes, fileNotes...)
		stats.FilesRead++
		stats.Notes += len(fileNotes)
	}
	logger.Infof("Read %d notes from %d files (%d skipped)", stats.Notes, stats.FilesRead, stats.FilesSkipped)
	return
}

// ReadFile extracts the notes of one SMF file, pairing note-on and
// note-off events by pitch and converting the absolute microsecond
// timestamps to seconds. The result is sorted by start time.
func ReadFile(path string) (notes music.Notes, err error) {
	type onset struct {
		start    float64
		velocity int
	}
	pending := make(map[uint8][]onset)
	rd := smf.ReadTracks(path).Do(func(te smf.TrackEvent) {
		var channel, key, velocity uint8
		seconds := float64(te.AbsMicroSeconds) / 1e6
		switch {
		case te.Message.GetNoteStart(&channel, &key, &velocity):
			pending[key] = append(pending[key], onset{start: seconds, velocity: int(velocity)})
		case te.Message.GetNoteEnd(&channel, &key):
			stack := pending[key]
			if len(stack) == 0 {
				return
			}
			on := stack[0]
			pending[key] = stack[1:]
			duration := seconds - on.start
			if duration <= 0 {
				return
			}
			notes = append(notes, music.Note{
				Pitch:    int(key),
				Start:    on.start,
				Duration: duration,
				Velocity: on.velocity,
			})
		}
	})
	if err = rd.Error(); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	sort.Sort(notes)
	return
}

// Write renders the notes as a single-instrument SMF file at the
// given tempo.
func Write(path string, notes music.Notes, bpm float64) (err error) {
	logger := log.WithFields(log.Fields{
		"function": "midifile.Write",
	})

	// interleave on/off events and order them by absolute time
	type event struct {
		at   float64
		on   bool
		note music.Note
	}
	events := make([]event, 0, 2*len(notes))
	for _, n := range notes {
		events = append(events, event{at: n.Start, on: true, note: n})
		events = append(events, event{at: n.Start + n.Duration, on: false, note: n})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].at == events[j].at {
			// close a pitch before reopening it
			return !events[i].on && events[j].on
		}
		return events[i].at < events[j].at
	})

	s := smf.New()
	clock := smf.MetricTicks(960)
	s.TimeFormat = clock

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName("melodai"))
	tr.Add(0, smf.MetaTempo(bpm))
	tr.Add(0, midi.ProgramChange(0, 0)) // acoustic grand

	ticksAt := func(seconds float64) uint32 {
		return uint32(math.Round(seconds * bpm / 60 * float64(clock)))
	}
	lastTick := uint32(0)
	for _, ev := range events {
		tick := ticksAt(ev.at)
		delta := tick - lastTick
		lastTick = tick
		if ev.on {
			velocity := uint8(ev.note.Velocity)
			if velocity == 0 {
				velocity = 80
			}
			tr.Add(delta, midi.NoteOn(0, uint8(ev.note.Pitch), velocity))
		} else {
			tr.Add(delta, midi.NoteOff(0, uint8(ev.note.Pitch)))
		}
	}
	tr.Close(0)
	s.Add(tr)
	if err = s.WriteFile(path); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	logger.Infof("Wrote %d notes to %s", len(notes), path)
	return
}
