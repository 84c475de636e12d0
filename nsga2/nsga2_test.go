package nsga2

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// halves maximises the fraction of set bits in each half of the chromosome.
type halves struct {
	n     int
	calls int
	fail  error
}

func (h *halves) NumVariables() int       { return h.n }
func (h *halves) Directions() []Direction { return []Direction{Maximize, Maximize} }

func (h *halves) Evaluate(mask []bool) ([]float64, error) {
	h.calls++
	if h.fail != nil {
		return nil, h.fail
	}
	mid := h.n / 2
	var a, b float64
	for i, on := range mask {
		if !on {
			continue
		}
		if i < mid {
			a++
		} else {
			b++
		}
	}
	return []float64{a / float64(mid), b / float64(h.n-mid)}, nil
}

func sol(obj ...float64) *Solution { return &Solution{Objectives: obj} }

func TestDominates(t *testing.T) {
	max2 := []Direction{Maximize, Maximize}
	min2 := []Direction{Minimize, Minimize}

	assert.True(t, Dominates([]float64{0.8, 0.8}, []float64{0.7, 0.8}, max2))
	assert.False(t, Dominates([]float64{0.7, 0.8}, []float64{0.8, 0.8}, max2))
	assert.False(t, Dominates([]float64{0.8, 0.8}, []float64{0.8, 0.8}, max2))
	assert.False(t, Dominates([]float64{0.9, 0.1}, []float64{0.1, 0.9}, max2))
	assert.True(t, Dominates([]float64{0.1, 0.1}, []float64{0.2, 0.1}, min2))
}

func TestNonDominatedSort(t *testing.T) {
	dirs := []Direction{Maximize, Maximize}
	pop := []*Solution{
		sol(0.5, 0.5), // front 1
		sol(0.9, 0.5), // front 0
		sol(0.4, 0.4), // front 2
		sol(0.7, 0.7), // front 0
		sol(0.6, 0.8), // front 0
	}

	fronts := NonDominatedSort(pop, dirs)
	require.Len(t, fronts, 3)
	assert.Equal(t, []*Solution{pop[1], pop[3], pop[4]}, fronts[0])
	assert.Equal(t, []*Solution{pop[0]}, fronts[1])
	assert.Equal(t, []*Solution{pop[2]}, fronts[2])
	assert.Equal(t, 2, pop[2].Rank)
	assert.Equal(t, 0, pop[4].Rank)
}

func TestCrowdingDistance(t *testing.T) {
	front := []*Solution{sol(0.9, 0.1), sol(0.5, 0.5), sol(0.1, 0.9), sol(0.4, 0.6)}
	CrowdingDistance(front)

	assert.True(t, math.IsInf(front[0].Distance, 1))
	assert.True(t, math.IsInf(front[2].Distance, 1))
	// (0.9-0.4)/0.8 + (0.6-0.1)/0.8
	assert.InDelta(t, 1.25, front[1].Distance, 1e-12)
	// (0.5-0.1)/0.8 + (0.9-0.5)/0.8
	assert.InDelta(t, 1.0, front[3].Distance, 1e-12)
	assert.Equal(t, 0.9, front[0].Objectives[0], "order is preserved")

	pair := []*Solution{sol(1, 0), sol(0, 1)}
	CrowdingDistance(pair)
	assert.True(t, math.IsInf(pair[1].Distance, 1))
}

func TestNondominated(t *testing.T) {
	dirs := []Direction{Maximize, Maximize}
	in := []*Solution{sol(0.9, 0.5), sol(0.5, 0.5), sol(0.7, 0.7), sol(0.6, 0.8), sol(0.7, 0.7)}

	out := Nondominated(in, dirs)
	assert.Equal(t, []*Solution{in[0], in[2], in[3], in[4]}, out)
}

func TestNewValidatesConfig(t *testing.T) {
	p := &halves{n: 8}
	cfg := DefaultConfig()

	cfg.PopulationSize = 1
	_, err := New(p, cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.MinSelected = 9
	_, err = New(p, cfg)
	assert.Error(t, err)

	_, err = New(&halves{n: 0}, DefaultConfig())
	assert.Error(t, err)
}

func TestStepLifecycle(t *testing.T) {
	p := &halves{n: 12}
	cfg := DefaultConfig()
	cfg.PopulationSize = 10

	a, err := New(p, cfg)
	require.NoError(t, err)
	assert.Empty(t, a.Result())

	require.NoError(t, a.Step())
	assert.Equal(t, 1, a.Generation())
	assert.Equal(t, 10, a.Evaluations())
	assert.Len(t, a.Result(), 10)

	for i := 0; i < 4; i++ {
		require.NoError(t, a.Step())
	}
	assert.Equal(t, 5, a.Generation())
	assert.Equal(t, 50, a.Evaluations())
	assert.Equal(t, 50, p.calls)

	for _, s := range a.Result() {
		assert.Len(t, s.Mask, 12)
		assert.Len(t, s.Objectives, 2)
		assert.GreaterOrEqual(t, s.Selected(), 1)
	}
}

func TestStepIsSeeded(t *testing.T) {
	run := func() []*Solution {
		a, err := New(&halves{n: 16}, DefaultConfig())
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			require.NoError(t, a.Step())
		}
		return a.Result()
	}
	assert.Equal(t, run(), run())
}

func TestExtremeObjectiveNeverRegresses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PopulationSize = 20
	cfg.Seed = 3
	a, err := New(&halves{n: 16}, cfg)
	require.NoError(t, err)

	best := -1.0
	for g := 0; g < 30; g++ {
		require.NoError(t, a.Step())
		cur := 0.0
		for _, s := range a.Result() {
			cur = math.Max(cur, s.Objectives[0])
		}
		assert.GreaterOrEqual(t, cur, best, "generation %d", g)
		best = cur
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	a, err := New(&halves{n: 8}, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, a.Step())

	snap := a.Snapshot()
	assert.Equal(t, 1, snap.Generation)
	snap.Population[0].Mask[0] = !snap.Population[0].Mask[0]
	snap.Population[0].Objectives[0] = 42

	assert.NotEqual(t, 42.0, a.Result()[0].Objectives[0])
	require.NoError(t, a.Step())
	assert.Equal(t, 1, snap.Generation)
}

func TestSnapshotSolutions(t *testing.T) {
	a, err := New(&halves{n: 8}, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, a.Step())

	snap := a.Snapshot()
	sols := snap.Solutions()
	require.Len(t, sols, len(snap.Population))
	for i, s := range sols {
		assert.Equal(t, snap.Population[i].Objectives, s.Objectives)
	}
	sols[0].Rank = 99
	assert.Equal(t, 99, snap.Population[0].Rank, "pointers share the snapshot's storage")
	assert.NotEqual(t, 99, a.Result()[0].Rank)
}

func TestEvaluateErrorStopsStep(t *testing.T) {
	boom := errors.New("boom")
	a, err := New(&halves{n: 8, fail: boom}, DefaultConfig())
	require.NoError(t, err)

	err = a.Step()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, a.Generation())
}

func TestMinSelectedRepair(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSelected = 3
	cfg.MutationRate = 1
	a, err := New(&halves{n: 4}, cfg)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, a.Step())
		for _, s := range a.Result() {
			assert.GreaterOrEqual(t, s.Selected(), 3)
		}
	}
}
