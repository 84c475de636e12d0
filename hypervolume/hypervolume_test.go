package hypervolume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sharma-Saravanan/deep-radiomics/nsga2"
)

var maxMax = []nsga2.Direction{nsga2.Maximize, nsga2.Maximize}

func unitSquare(t *testing.T) *Indicator {
	t.Helper()
	ind, err := New([]float64{0, 0}, []float64{1, 1})
	require.NoError(t, err)
	return ind
}

func TestCalculateMaximize2D(t *testing.T) {
	ind := unitSquare(t)

	tests := []struct {
		name   string
		points [][]float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single point", [][]float64{{0.5, 0.4}}, 0.2},
		{"ideal point", [][]float64{{1, 1}}, 1},
		{"origin", [][]float64{{0, 0}}, 0},
		{"front", [][]float64{{0.9, 0.5}, {0.7, 0.7}, {0.6, 0.8}}, 0.65},
		{"dominated point adds nothing", [][]float64{{0.9, 0.5}, {0.7, 0.7}, {0.6, 0.8}, {0.5, 0.5}}, 0.65},
		{"duplicates", [][]float64{{0.7, 0.7}, {0.7, 0.7}}, 0.49},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ind.Calculate(tt.points, maxMax)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestCalculateMinimize(t *testing.T) {
	ind := unitSquare(t)
	got, err := ind.Calculate([][]float64{{0.2, 0.5}}, []nsga2.Direction{nsga2.Minimize, nsga2.Minimize})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got, 1e-12)
}

func TestCalculateNormalises(t *testing.T) {
	ind, err := New([]float64{0, 0}, []float64{10, 2})
	require.NoError(t, err)
	got, err := ind.Calculate([][]float64{{5, 1}}, maxMax)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, got, 1e-12)
}

func TestCalculateStaysInUnitRange(t *testing.T) {
	ind := unitSquare(t)
	got, err := ind.Calculate([][]float64{{1.5, 1.2}, {-0.5, 0.3}}, maxMax)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got, 0.0)
	assert.LessOrEqual(t, got, 1.0)
}

func TestCalculate3D(t *testing.T) {
	ind, err := New([]float64{0, 0, 0}, []float64{1, 1, 1})
	require.NoError(t, err)
	dirs := []nsga2.Direction{nsga2.Maximize, nsga2.Maximize, nsga2.Maximize}

	got, err := ind.Calculate([][]float64{{0.5, 0.5, 0.5}, {1, 0.25, 0.25}}, dirs)
	require.NoError(t, err)
	// 0.125 + 0.0625 - overlap 0.5*0.25*0.25
	assert.InDelta(t, 0.15625, got, 1e-12)
}

func TestDimensionMismatch(t *testing.T) {
	_, err := New([]float64{0, 0, 0}, []float64{1, 1})
	assert.ErrorIs(t, err, ErrDimension)

	ind, err := New([]float64{0, 0, 0}, []float64{1, 1, 1})
	require.NoError(t, err)
	_, err = ind.Calculate([][]float64{{0.5, 0.5}}, maxMax)
	assert.ErrorIs(t, err, ErrDimension)

	_, err = unitSquare(t).Calculate([][]float64{{0.5}}, maxMax)
	assert.ErrorIs(t, err, ErrDimension)

	_, err = New([]float64{1, 0}, []float64{1, 1})
	assert.Error(t, err)
}

func TestSolutions(t *testing.T) {
	sols := []*nsga2.Solution{
		{Objectives: []float64{0.9, 0.5}},
		{Objectives: []float64{0.6, 0.8}},
	}
	got, err := unitSquare(t).Solutions(sols, maxMax)
	require.NoError(t, err)
	assert.InDelta(t, 0.45+0.6*0.3, got, 1e-12)
}
