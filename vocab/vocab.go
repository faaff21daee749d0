// Package vocab builds and persists the bidirectional symbol<->index
// mapping a trained model depends on. Index assignment is
// deterministic (lexicographic symbol order) so rebuilding from the
// same corpus always reproduces the same mapping.
package vocab

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrCorruptVocabulary is returned by Load when the vocabulary file
// fails validation. Nothing is partially loaded.
var ErrCorruptVocabulary = errors.New("corrupt vocabulary")

// ErrUnknownSymbol is returned when a symbol is not in the vocabulary.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Vocabulary is an immutable symbol<->index mapping. Build it once
// from a whole corpus; a model trained against it is only valid with
// this exact mapping.
type Vocabulary struct {
	toIndex  map[string]int
	toSymbol []string
}

// Build collects the distinct symbols of the corpus, sorts them, and
// assigns indices in sorted order.
func Build(corpus []string) *Vocabulary {
	logger := log.WithFields(log.Fields{
		"function": "vocab.Build",
	})
	seen := make(map[string]bool)
	for _, s := range corpus {
		seen[s] = true
	}
	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	v := &Vocabulary{
		toIndex:  make(map[string]int, len(symbols)),
		toSymbol: symbols,
	}
	for i, s := range symbols {
		v.toIndex[s] = i
	}
	logger.Infof("Built vocabulary of %d symbols from corpus of %d", v.Size(), len(corpus))
	return v
}

// Size returns |V|, the width of the model's output layer.
func (v *Vocabulary) Size() int {
	return len(v.toSymbol)
}

// Index returns the index of a symbol.
func (v *Vocabulary) Index(symbol string) (int, error) {
	i, ok := v.toIndex[symbol]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownSymbol, "%q", symbol)
	}
	return i, nil
}

// Symbol returns the symbol at an index.
func (v *Vocabulary) Symbol(i int) (string, error) {
	if i < 0 || i >= len(v.toSymbol) {
		return "", errors.Errorf("index %d out of range [0,%d)", i, len(v.toSymbol))
	}
	return v.toSymbol[i], nil
}

// Encode maps an ordered corpus of symbols to their indices.
func (v *Vocabulary) Encode(corpus []string) (indices []int, err error) {
	indices = make([]int, len(corpus))
	for i, s := range corpus {
		indices[i], err = v.Index(s)
		if err != nil {
			return nil, err
		}
	}
	return
}

// Save writes the vocabulary as tab-separated "symbol<TAB>index" rows.
func (v *Vocabulary) Save(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "saving vocabulary")
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for i, s := range v.toSymbol {
		fmt.Fprintf(w, "%s\t%d\n", s, i)
	}
	return w.Flush()
}

// Load restores a vocabulary written by Save. It validates that no
// symbol repeats and that the indices form exactly [0,n) before
// returning anything.
func Load(path string) (v *Vocabulary, err error) {
	logger := log.WithFields(log.Fields{
		"function": "vocab.Load",
	})
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "loading vocabulary")
	}
	defer f.Close()

	type row struct {
		symbol string
		index  int
	}
	var rows []row
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			return nil, errors.Wrapf(ErrCorruptVocabulary, "%s:%d: got %d fields", path, lineNo, len(fields))
		}
		index, errParse := strconv.Atoi(fields[1])
		if errParse != nil {
			return nil, errors.Wrapf(ErrCorruptVocabulary, "%s:%d: bad index %q", path, lineNo, fields[1])
		}
		rows = append(rows, row{symbol: fields[0], index: index})
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "loading vocabulary")
	}

	v = &Vocabulary{
		toIndex:  make(map[string]int, len(rows)),
		toSymbol: make([]string, len(rows)),
	}
	seenIndex := make(map[int]bool, len(rows))
	for _, r := range rows {
		if _, dup := v.toIndex[r.symbol]; dup {
			return nil, errors.Wrapf(ErrCorruptVocabulary, "%s: duplicate symbol %q", path, r.symbol)
		}
		if r.index < 0 || r.index >= len(rows) {
			return nil, errors.Wrapf(ErrCorruptVocabulary, "%s: index %d outside [0,%d)", path, r.index, len(rows))
		}
		if seenIndex[r.index] {
			return nil, errors.Wrapf(ErrCorruptVocabulary, "%s: duplicate index %d", path, r.index)
		}
		seenIndex[r.index] = true
		v.toIndex[r.symbol] = r.index
		v.toSymbol[r.index] = r.symbol
	}
	logger.Debugf("Loaded %d symbols from %s", v.Size(), path)
	return v, nil
}
