package ctc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput       = errors.New("invalid probability matrix")
	ErrVocabularyMismatch = errors.New("model output does not match vocabulary")
)

// Matrix is a T x C grid of per-timestep symbol scores. Probabilities and logits
// both work since only the argmax of each row is used.
type Matrix [][]float32

func (m Matrix) Timesteps() int {
	return len(m)
}

// Classes returns the width of the first row, or 0 for an empty matrix.
func (m Matrix) Classes() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// NewMatrix reshapes a flat row-major buffer into timesteps rows of classes columns.
func NewMatrix(data []float32, timesteps, classes int) (Matrix, error) {
	if timesteps <= 0 || classes <= 0 {
		return nil, fmt.Errorf("%w: shape (%d, %d)", ErrInvalidInput, timesteps, classes)
	}
	if len(data) != timesteps*classes {
		return nil, fmt.Errorf("%w: %d values for shape (%d, %d)", ErrInvalidInput, len(data), timesteps, classes)
	}

	m := make(Matrix, timesteps)
	for t := range m {
		m[t] = data[t*classes : (t+1)*classes]
	}
	return m, nil
}

func (m Matrix) validate() error {
	if len(m) == 0 {
		return fmt.Errorf("%w: zero timesteps", ErrInvalidInput)
	}

	classes := len(m[0])
	if classes == 0 {
		return fmt.Errorf("%w: zero classes", ErrInvalidInput)
	}
	for t, row := range m {
		if len(row) != classes {
			return fmt.Errorf("%w: row %d has %d classes, want %d", ErrInvalidInput, t, len(row), classes)
		}
	}
	return nil
}

// BestPath picks the highest scoring column of every row. Ties go to the lowest column.
func BestPath(m Matrix) ([]int, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	path := make([]int, len(m))
	for t, row := range m {
		best := 0
		for c := 1; c < len(row); c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		path[t] = best
	}
	return path, nil
}

// Collapse merges runs of the same index and then drops the blank.
func Collapse(path []int, blank int) []int {
	out := make([]int, 0, len(path))
	prev := -1
	for _, idx := range path {
		if idx != prev && idx != blank {
			out = append(out, idx)
		}
		prev = idx
	}
	return out
}

// Decode runs greedy best-path decoding and keeps at most maxLen symbols.
// A maxLen of zero or less disables truncation.
func Decode(m Matrix, vocab *Vocabulary, maxLen int) (string, error) {
	path, err := BestPath(m)
	if err != nil {
		return "", err
	}

	if classes := m.Classes(); classes != vocab.Size() {
		return "", fmt.Errorf("%w: model emits %d classes, vocabulary has %d", ErrVocabularyMismatch, classes, vocab.Size())
	}

	labels := Collapse(path, vocab.Blank())
	if maxLen > 0 && len(labels) > maxLen {
		labels = labels[:maxLen]
	}

	var sb strings.Builder
	for _, idx := range labels {
		symbol, ok := vocab.Symbol(idx)
		if !ok {
			return "", fmt.Errorf("%w: index %d has no symbol", ErrVocabularyMismatch, idx)
		}
		sb.WriteString(symbol)
	}

	return sb.String(), nil
}

// DecodeBatch decodes every matrix of a batch. It stops at the first failure.
func DecodeBatch(batch []Matrix, vocab *Vocabulary, maxLen int) ([]string, error) {
	out := make([]string, 0, len(batch))
	for i, m := range batch {
		text, err := Decode(m, vocab, maxLen)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		out = append(out, text)
	}
	return out, nil
}
