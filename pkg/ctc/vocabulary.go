package ctc

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// OutOfVocabulary is the token of the slot the lookup layer reserves at index 0. An
// argmax on that column decodes to this token, as the inverted lookup layer does.
const OutOfVocabulary = "[UNK]"

// trainingCharacters is the character set of the handwriting model, in training order.
var trainingCharacters = []string{
	"!", "\"", "#", "'", "(", ")", "*", ",", "-", ".", "/",
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
	":", ";", "?",
	"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M",
	"N", "O", "P", "Q", "R", "S", "T", "U", "V", "W", "X", "Y", "Z",
	"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m",
	"n", "o", "p", "q", "r", "s", "t", "u", "v", "w", "x", "y", "z",
}

// Vocabulary maps matrix columns to symbols. It is immutable once built and safe to
// share between goroutines.
type Vocabulary struct {
	symbols []string
	index   map[string]int
	blank   int
	size    int
}

// NewVocabulary builds a vocabulary whose column i decodes to symbols[i]. The blank
// column may lie inside or past the symbol list; in both cases it never decodes.
func NewVocabulary(symbols []string, blank int) (*Vocabulary, error) {
	if blank < 0 {
		return nil, fmt.Errorf("blank index must not be negative, got %d", blank)
	}

	v := &Vocabulary{
		symbols: make([]string, len(symbols)),
		index:   make(map[string]int, len(symbols)),
		blank:   blank,
		size:    len(symbols),
	}
	copy(v.symbols, symbols)

	if blank >= v.size {
		v.size = blank + 1
	}

	for i, s := range v.symbols {
		if i == blank || s == "" || s == OutOfVocabulary {
			continue
		}
		if prev, ok := v.index[s]; ok {
			return nil, fmt.Errorf("symbol %q appears at both %d and %d", s, prev, i)
		}
		v.index[s] = i
	}

	return v, nil
}

// DefaultVocabulary matches the output layer of the handwriting model: the
// out-of-vocabulary slot, the 76 training characters, one unit without a symbol,
// and the blank in the last column.
func DefaultVocabulary() *Vocabulary {
	symbols := make([]string, 0, len(trainingCharacters)+1)
	symbols = append(symbols, OutOfVocabulary)
	symbols = append(symbols, trainingCharacters...)

	v, err := NewVocabulary(symbols, len(symbols)+1)
	if err != nil {
		panic(err)
	}
	return v
}

// LoadVocabulary reads one symbol per line. The first line is column 0 and the blank
// is the column after the last line. An empty line keeps its column without a
// symbol; it decodes to nothing.
func LoadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	var symbols []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		symbols = append(symbols, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("vocabulary %s is empty", path)
	}

	return NewVocabulary(symbols, len(symbols))
}

func (v *Vocabulary) Blank() int {
	return v.blank
}

// Size is the number of matrix columns the vocabulary accounts for, blank included.
func (v *Vocabulary) Size() int {
	return v.size
}

// Symbol returns the text of column i. ok is false for the blank and for columns
// without a symbol.
func (v *Vocabulary) Symbol(i int) (string, bool) {
	if i < 0 || i >= len(v.symbols) || i == v.blank {
		return "", false
	}
	return v.symbols[i], true
}

// Index returns the column of a symbol.
func (v *Vocabulary) Index(symbol string) (int, bool) {
	i, ok := v.index[symbol]
	return i, ok
}
