// Package hypervolume computes the hypervolume indicator of a solution set
// relative to a normalising box.
//
// Objective values are first mapped onto [0,1] with the box bounds, then
// turned into minimisation form (maximised objectives are flipped to 1-v).
// The indicator is the volume dominated by the set and bounded by the
// reference point (1,...,1), so a perfect set scores 1 and an empty set 0.
// Points outside the box on the worse side are ignored and values beyond
// the better side are clamped to it.
package hypervolume

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Sharma-Saravanan/deep-radiomics/nsga2"
)

var ErrDimension = errors.New("hypervolume: dimension mismatch")

// Indicator holds the normalising box.
type Indicator struct {
	minimum []float64
	maximum []float64
}

// New returns an indicator for the box [minimum, maximum]. Both bounds need
// one entry per objective.
func New(minimum, maximum []float64) (*Indicator, error) {
	if len(minimum) == 0 || len(minimum) != len(maximum) {
		return nil, fmt.Errorf("%w: minimum has %d bounds, maximum has %d",
			ErrDimension, len(minimum), len(maximum))
	}
	for i := range minimum {
		if maximum[i] <= minimum[i] {
			return nil, fmt.Errorf("hypervolume: bound %d is empty: [%v, %v]", i, minimum[i], maximum[i])
		}
	}
	return &Indicator{
		minimum: append([]float64(nil), minimum...),
		maximum: append([]float64(nil), maximum...),
	}, nil
}

// Calculate returns the hypervolume of points, each holding one value per
// objective in the order of dirs.
func (ind *Indicator) Calculate(points [][]float64, dirs []nsga2.Direction) (float64, error) {
	d := len(ind.minimum)
	if len(dirs) != d {
		return 0, fmt.Errorf("%w: %d objectives, %d bounds", ErrDimension, len(dirs), d)
	}

	norm := make([][]float64, 0, len(points))
outer:
	for _, p := range points {
		if len(p) != d {
			return 0, fmt.Errorf("%w: point has %d values, want %d", ErrDimension, len(p), d)
		}
		q := make([]float64, d)
		for i, v := range p {
			x := (v - ind.minimum[i]) / (ind.maximum[i] - ind.minimum[i])
			if dirs[i] == nsga2.Maximize {
				x = 1 - x
			}
			if x > 1 {
				continue outer
			}
			if x < 0 {
				x = 0
			}
			q[i] = x
		}
		norm = append(norm, q)
	}
	return volume(norm, d), nil
}

// Solutions is a convenience wrapper over Calculate for an NSGA-II result.
func (ind *Indicator) Solutions(sols []*nsga2.Solution, dirs []nsga2.Direction) (float64, error) {
	points := make([][]float64, len(sols))
	for i, s := range sols {
		points[i] = s.Objectives
	}
	return ind.Calculate(points, dirs)
}

// volume is the minimisation hypervolume of pts in the first d coordinates
// against reference (1,...,1), computed by slicing along coordinate d-1.
func volume(pts [][]float64, d int) float64 {
	if len(pts) == 0 {
		return 0
	}
	if d == 1 {
		lo := pts[0][0]
		for _, p := range pts[1:] {
			if p[0] < lo {
				lo = p[0]
			}
		}
		return 1 - lo
	}

	sorted := append([][]float64(nil), pts...)
	k := d - 1
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i][k] < sorted[j][k] })

	var total float64
	for i := range sorted {
		upper := 1.0
		if i+1 < len(sorted) {
			upper = sorted[i+1][k]
		}
		height := upper - sorted[i][k]
		if height <= 0 {
			continue
		}
		total += height * volume(sorted[:i+1], k)
	}
	return total
}
