package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/Sharma-Saravanan/deep-radiomics/config"
	"github.com/Sharma-Saravanan/deep-radiomics/hypervolume"
	"github.com/Sharma-Saravanan/deep-radiomics/nsga2"
)

// writeRadiomics writes a CSV with an id column, a label and five features,
// two of which carry the class signal.
func writeRadiomics(t *testing.T, dir string) string {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	var b strings.Builder
	b.WriteString("patient_id,label,shape_volume,glcm_contrast,firstorder_mean,noise_a,noise_b\n")
	for i := 0; i < 36; i++ {
		y := float64(i % 2)
		fmt.Fprintf(&b, "p%02d,%g,%.5f,%.5f,%.5f,%.5f,%.5f\n", i, y,
			3*y+rng.NormFloat64(),
			-2*y+rng.NormFloat64(),
			rng.NormFloat64(),
			rng.NormFloat64(),
			rng.NormFloat64())
	}
	path := filepath.Join(dir, "radiomics.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataPath = writeRadiomics(t, dir)
	cfg.DropColumns = []string{"patient_id"}
	cfg.PlotDir = filepath.Join(dir, "plots")
	cfg.PopulationSize = 6
	cfg.Generations = 4
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer

	require.NoError(t, run(cfg, "test-run", &out))

	for _, name := range []string{hypervolumePlot, frontPlot} {
		_, err := os.Stat(filepath.Join(cfg.PlotDir, "test-run", name))
		assert.NoError(t, err, name)
	}
	log := out.String()
	assert.Contains(t, log, "Dataset ")
	assert.Contains(t, log, "5 features")
	assert.Contains(t, log, "Generation   4/4")
	assert.Contains(t, log, "Final population (generation 4): 6 solutions")
	assert.Contains(t, log, "Selected solution:")
	assert.Contains(t, log, "Validation summary (3 folds)")
	assert.Contains(t, log, "Final model on all 36 samples")
}

func TestRunMissingDataset(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataPath = filepath.Join(t.TempDir(), "missing.csv")
	err := run(cfg, "x", &bytes.Buffer{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunSearchTrace(t *testing.T) {
	cfg := testConfig(t)
	cfg.Generations = 6
	ds, err := loadDataset(cfg)
	require.NoError(t, err)

	alg, err := nsga2.New(newEvaluator(cfg, ds, cfg.Model), nsga2.Config{
		PopulationSize: cfg.PopulationSize,
		CrossoverRate:  1,
		MinSelected:    1,
		Seed:           cfg.Seed,
	})
	require.NoError(t, err)
	hv, err := hypervolume.New(cfg.ReferenceMin, cfg.ReferenceMax)
	require.NoError(t, err)

	res, err := runSearch(alg, hv, cfg.Generations, &bytes.Buffer{})
	require.NoError(t, err)

	require.Len(t, res.Hypervolumes, cfg.Generations+1)
	assert.Equal(t, 0.0, res.Hypervolumes[0])
	for _, v := range res.Hypervolumes {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	require.Len(t, res.Snapshots, cfg.Generations)
	for i, snap := range res.Snapshots {
		assert.Equal(t, i+1, snap.Generation)
		assert.Len(t, snap.Population, cfg.PopulationSize)
		volume, err := hv.Solutions(snap.Solutions(), alg.Directions())
		require.NoError(t, err)
		assert.Equal(t, res.Hypervolumes[i+1], volume)
	}
	assert.NotEmpty(t, res.Front)
	for _, s := range res.Front {
		assert.GreaterOrEqual(t, s.Selected(), 1)
	}
}

// stubOptimizer replays fixed populations, one per step.
type stubOptimizer struct {
	steps [][]*nsga2.Solution
	gen   int
	fail  error
}

func (s *stubOptimizer) Step() error {
	if s.fail != nil {
		return s.fail
	}
	s.gen++
	return nil
}

func (s *stubOptimizer) Result() []*nsga2.Solution { return s.steps[s.gen-1] }

func (s *stubOptimizer) Snapshot() nsga2.Snapshot {
	pop := make([]nsga2.Solution, len(s.Result()))
	for i, p := range s.Result() {
		pop[i] = *p.Clone()
	}
	return nsga2.Snapshot{Generation: s.gen, Population: pop}
}

func (s *stubOptimizer) Directions() []nsga2.Direction {
	return []nsga2.Direction{nsga2.Maximize, nsga2.Maximize}
}

func (s *stubOptimizer) Evaluations() int { return s.gen * 3 }

func solution(obj ...float64) *nsga2.Solution {
	return &nsga2.Solution{Mask: []bool{true}, Objectives: obj}
}

func TestRunSearchWithStub(t *testing.T) {
	opt := &stubOptimizer{steps: [][]*nsga2.Solution{
		{solution(0.5, 0.4)},
		{solution(0.9, 0.5), solution(0.5, 0.5), solution(0.6, 0.8), solution(0.7, 0.7)},
	}}
	hv, err := hypervolume.New([]float64{0, 0}, []float64{1, 1})
	require.NoError(t, err)

	var out bytes.Buffer
	res, err := runSearch(opt, hv, 2, &out)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0, 0.2, 0.65}, res.Hypervolumes, 1e-12)
	require.Len(t, res.Front, 3)
	assert.Equal(t, []float64{0.9, 0.5}, res.Front[0].Objectives)
	assert.Contains(t, out.String(), "Generation   2/2: hypervolume=0.6500 evaluations=6")
}

func TestFitFinalWarnsAtIterationLimit(t *testing.T) {
	cfg := testConfig(t)
	ds, err := loadDataset(cfg)
	require.NoError(t, err)
	mask := make([]bool, ds.NumFeatures())
	mask[0] = true

	var out bytes.Buffer
	require.NoError(t, fitFinal(cfg.Model.WithProbability(), ds, mask, &out))
	assert.NotContains(t, out.String(), "iteration limit")

	short := cfg.Model.WithProbability()
	short.MaxIterations = 1
	out.Reset()
	require.NoError(t, fitFinal(short, ds, mask, &out))
	assert.Contains(t, out.String(), "stopped at the iteration limit (1)")
}

func TestRunSearchStepError(t *testing.T) {
	boom := errors.New("boom")
	hv, err := hypervolume.New([]float64{0, 0}, []float64{1, 1})
	require.NoError(t, err)

	_, err = runSearch(&stubOptimizer{fail: boom}, hv, 3, &bytes.Buffer{})
	assert.ErrorIs(t, err, boom)
}
