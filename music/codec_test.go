package music

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	symbol := Encode(Note{Pitch: 60, Start: 1.0, Duration: 0.5})
	assert.Equal(t, "60_1.00_0.50", symbol)

	// quantization collapses near-identical notes to one symbol
	a := Encode(Note{Pitch: 72, Start: 1.001, Duration: 0.251})
	b := Encode(Note{Pitch: 72, Start: 1.002, Duration: 0.252})
	assert.Equal(t, a, b)
}

func TestDecode(t *testing.T) {
	pitch, duration, err := Decode("60_1.00_0.50")
	require.NoError(t, err)
	assert.Equal(t, 60, pitch)
	assert.Equal(t, 0.5, duration)
}

func TestDecodeMalformed(t *testing.T) {
	for _, symbol := range []string{
		"",
		"60",
		"60_1.00",
		"60_1.00_0.50_9",
		"sixty_1.00_0.50",
		"60_one_0.50",
		"60_1.00_half",
	} {
		_, _, err := Decode(symbol)
		assert.True(t, errors.Is(err, ErrMalformedSymbol), "symbol %q", symbol)
	}
}

func TestRoundTrip(t *testing.T) {
	n := Note{Pitch: 72, Start: 3.14159, Duration: 0.333}
	pitch, duration, err := Decode(Encode(n))
	require.NoError(t, err)
	assert.Equal(t, n.Pitch, pitch)
	assert.InDelta(t, n.Duration, duration, 0.005)
}

func TestRenderSequence(t *testing.T) {
	notes, err := RenderSequence([]string{"60_0.00_1.00", "64_0.00_0.50", "67_0.00_0.50"})
	require.NoError(t, err)
	require.Len(t, notes, 3)

	// each note starts half a duration after the previous one
	assert.Equal(t, 0.0, notes[0].Start)
	assert.Equal(t, 0.5, notes[1].Start)
	assert.Equal(t, 0.75, notes[2].Start)
	assert.Equal(t, []int{60, 64, 67}, []int{notes[0].Pitch, notes[1].Pitch, notes[2].Pitch})
}

func TestRenderSequenceMalformed(t *testing.T) {
	_, err := RenderSequence([]string{"60_0.00_1.00", "garbage"})
	assert.True(t, errors.Is(err, ErrMalformedSymbol))
}
