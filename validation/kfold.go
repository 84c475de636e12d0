// Package validation runs stratified k-fold cross-validation of binary
// classifiers and collects per-fold scores.
package validation

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/exp/rand"
)

var ErrTooFewSamples = errors.New("validation: too few samples for the requested folds")

// Split is one train/test partition of the row indices.
type Split struct {
	Train []int
	Test  []int
}

// Splitter partitions rows given their labels.
type Splitter interface {
	Split(y []float64) ([]Split, error)
}

// StratifiedKFold keeps the class ratio of y in every test fold.
type StratifiedKFold struct {
	K       int
	Shuffle bool
	Seed    uint64
}

// NewStratifiedKFold returns a k-fold splitter. With shuffle set the rows of
// each class are permuted with a source seeded by seed, so equal seeds give
// equal folds.
func NewStratifiedKFold(k int, shuffle bool, seed uint64) *StratifiedKFold {
	return &StratifiedKFold{K: k, Shuffle: shuffle, Seed: seed}
}

func (s *StratifiedKFold) Split(y []float64) ([]Split, error) {
	if s.K < 2 {
		return nil, fmt.Errorf("validation: need at least 2 folds, got %d", s.K)
	}

	byClass := map[float64][]int{}
	for i, v := range y {
		byClass[v] = append(byClass[v], i)
	}
	classes := make([]float64, 0, len(byClass))
	for c, idx := range byClass {
		if len(idx) < s.K {
			return nil, fmt.Errorf("%w: class %v has %d members, %d folds",
				ErrTooFewSamples, c, len(idx), s.K)
		}
		classes = append(classes, c)
	}
	sort.Float64s(classes)

	var rng *rand.Rand
	if s.Shuffle {
		rng = rand.New(rand.NewSource(s.Seed))
	}

	fold := make([]int, len(y))
	next := 0
	for _, c := range classes {
		idx := byClass[c]
		if rng != nil {
			rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		}
		// Continue the round robin across classes so fold sizes differ by at most one.
		for _, row := range idx {
			fold[row] = next
			next = (next + 1) % s.K
		}
	}

	splits := make([]Split, s.K)
	for row, f := range fold {
		for k := range splits {
			if k == f {
				splits[k].Test = append(splits[k].Test, row)
			} else {
				splits[k].Train = append(splits[k].Train, row)
			}
		}
	}
	return splits, nil
}
