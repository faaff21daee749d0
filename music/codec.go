package music

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedSymbol is returned when a symbol does not parse back
// into a note. Check for it with errors.Is.
var ErrMalformedSymbol = errors.New("malformed symbol")

// symbolFields is the number of underscore-delimited fields in a symbol.
const symbolFields = 3

// overlapFactor is how much of a note's duration elapses before the
// next note starts. Notes overlap by half their duration, which makes
// generated passages sound less staccato.
const overlapFactor = 0.5

// Encode converts a note to its canonical symbol,
// "<pitch>_<start>_<duration>", with start and duration quantized to
// two decimal places. %.2f rounds half to even, so 0.125 becomes
// "0.12". Notes that quantize identically encode identically, which
// deduplicates the vocabulary on purpose.
func Encode(n Note) string {
	return fmt.Sprintf("%d_%.2f_%.2f", n.Pitch, n.Start, n.Duration)
}

// Decode parses a symbol back into a pitch and duration. The start
// field is parsed for validation but discarded: playback position is
// the caller's running clock, not the symbol's original timestamp.
func Decode(symbol string) (pitch int, duration float64, err error) {
	fields := strings.Split(symbol, "_")
	if len(fields) != symbolFields {
		err = errors.Wrapf(ErrMalformedSymbol, "%q: got %d fields, want %d", symbol, len(fields), symbolFields)
		return
	}
	pitch, err = strconv.Atoi(fields[0])
	if err != nil {
		err = errors.Wrapf(ErrMalformedSymbol, "%q: bad pitch %q", symbol, fields[0])
		return
	}
	if _, errStart := strconv.ParseFloat(fields[1], 64); errStart != nil {
		err = errors.Wrapf(ErrMalformedSymbol, "%q: bad start %q", symbol, fields[1])
		return
	}
	duration, err = strconv.ParseFloat(fields[2], 64)
	if err != nil {
		err = errors.Wrapf(ErrMalformedSymbol, "%q: bad duration %q", symbol, fields[2])
		return
	}
	return
}

// RenderSequence decodes a generated symbol sequence into a playable
// note list. Each note starts where the running clock is and the clock
// then advances by half the note's duration (see overlapFactor).
func RenderSequence(symbols []string) (notes Notes, err error) {
	notes = make(Notes, 0, len(symbols))
	currentTime := 0.0
	for _, symbol := range symbols {
		pitch, duration, errDecode := Decode(symbol)
		if errDecode != nil {
			err = errDecode
			return
		}
		notes = append(notes, Note{
			Pitch:    pitch,
			Start:    currentTime,
			Duration: duration,
			Velocity: 80,
		})
		currentTime += duration * overlapFactor
	}
	return
}
