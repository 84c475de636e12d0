// Package objective turns a feature mask into the two cross-validated
// objectives of the search: mean sensitivity and mean specificity.
package objective

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/Sharma-Saravanan/deep-radiomics/dataset"
	"github.com/Sharma-Saravanan/deep-radiomics/metrics"
	"github.com/Sharma-Saravanan/deep-radiomics/nsga2"
	"github.com/Sharma-Saravanan/deep-radiomics/validation"
)

var ErrEmptyMask = errors.New("objective: feature mask selects no columns")

// Validator runs cross-validation for a model factory on (x, y).
type Validator interface {
	CrossValidate(factory validation.Factory, x *mat.Dense, y []float64) (*validation.Results, error)
}

// Evaluator scores feature masks. It implements nsga2.Problem with both
// objectives maximised.
type Evaluator struct {
	data      *dataset.Dataset
	factory   validation.Factory
	validator Validator

	mu    sync.Mutex
	cache map[string][]float64
	runs  int
}

// NewEvaluator returns an evaluator over ds. With memoize set, a mask seen
// before returns its earlier objectives without re-running cross-validation.
func NewEvaluator(ds *dataset.Dataset, factory validation.Factory, validator Validator, memoize bool) *Evaluator {
	e := &Evaluator{
		data:      ds,
		factory:   factory,
		validator: validator,
	}
	if memoize {
		e.cache = make(map[string][]float64)
	}
	return e
}

func (e *Evaluator) NumVariables() int { return e.data.NumFeatures() }

func (e *Evaluator) Directions() []nsga2.Direction {
	return []nsga2.Direction{nsga2.Maximize, nsga2.Maximize}
}

// Evaluate returns [mean sensitivity, mean specificity] over the folds.
func (e *Evaluator) Evaluate(mask []bool) ([]float64, error) {
	key := Key(mask)
	if !strings.ContainsRune(key, '1') {
		return nil, ErrEmptyMask
	}
	if e.cache != nil {
		e.mu.Lock()
		obj, ok := e.cache[key]
		e.mu.Unlock()
		if ok {
			return append([]float64(nil), obj...), nil
		}
	}

	res, err := e.Validate(mask)
	if err != nil {
		return nil, err
	}
	obj := []float64{res.Mean(metrics.NameSensitivity), res.Mean(metrics.NameSpecificity)}

	e.mu.Lock()
	e.runs++
	if e.cache != nil {
		e.cache[key] = append([]float64(nil), obj...)
	}
	e.mu.Unlock()
	return obj, nil
}

// Validate cross-validates the model on the masked columns and returns every
// metric, not only the two objectives.
func (e *Evaluator) Validate(mask []bool) (*validation.Results, error) {
	x, err := e.data.Select(mask)
	if err != nil {
		return nil, err
	}
	_, cols := x.Dims()
	if cols == 0 {
		return nil, ErrEmptyMask
	}
	res, err := e.validator.CrossValidate(e.factory, x, e.data.Y)
	if err != nil {
		return nil, fmt.Errorf("objective: cross-validate %d features: %w", cols, err)
	}
	return res, nil
}

// Runs is the number of cross-validations actually executed.
func (e *Evaluator) Runs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs
}

// Key encodes a mask as a string of '0' and '1'.
func Key(mask []bool) string {
	var b strings.Builder
	b.Grow(len(mask))
	for _, on := range mask {
		if on {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}
