package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/optimize"

	"github.com/Sharma-Saravanan/deep-radiomics/config"
	"github.com/Sharma-Saravanan/deep-radiomics/dataset"
	"github.com/Sharma-Saravanan/deep-radiomics/hypervolume"
	"github.com/Sharma-Saravanan/deep-radiomics/metrics"
	"github.com/Sharma-Saravanan/deep-radiomics/nsga2"
	"github.com/Sharma-Saravanan/deep-radiomics/objective"
	"github.com/Sharma-Saravanan/deep-radiomics/report"
	"github.com/Sharma-Saravanan/deep-radiomics/svm"
	"github.com/Sharma-Saravanan/deep-radiomics/validation"
)

// ============================================================================
// Constants & Types
// ============================================================================

const (
	hypervolumePlot = "hypervolume.png"
	frontPlot       = "nondominated.png"
)

// optimizer is the search the driver steps through, one generation per call.
type optimizer interface {
	Step() error
	Snapshot() nsga2.Snapshot
	Directions() []nsga2.Direction
	Evaluations() int
}

// SearchResult is everything the reporting stage needs from a finished search.
type SearchResult struct {
	// Hypervolumes starts with 0 and has one entry per generation after it.
	Hypervolumes []float64
	// Snapshots[g-1] is the population after generation g.
	Snapshots []nsga2.Snapshot
	Front     []*nsga2.Solution
}

// ============================================================================
// Main
// ============================================================================

func main() {
	configPath := flag.String("config", "", "YAML run configuration (empty = built-in defaults)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if err := run(cfg, uuid.NewString(), os.Stdout); err != nil {
		log.Fatalf("Run failed: %v", err)
	}
	fmt.Println("Done.")
}

func run(cfg config.Config, runID string, out io.Writer) error {
	start := time.Now()
	fmt.Fprintf(out, "Run %s started %s\n", runID, start.Format(time.RFC3339))

	// ------------------------------------------------------------------------
	// 1) Load the radiomics table
	// ------------------------------------------------------------------------
	ds, err := loadDataset(cfg)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	fmt.Fprintf(out, "Dataset %s: %d samples, %d features, label %q\n",
		cfg.DataPath, ds.NumSamples(), ds.NumFeatures(), ds.Label)

	// ------------------------------------------------------------------------
	// 2) Build the objective and the search
	// ------------------------------------------------------------------------
	evaluator := newEvaluator(cfg, ds, cfg.Model)

	alg, err := nsga2.New(evaluator, nsga2.Config{
		PopulationSize: cfg.PopulationSize,
		TournamentSize: 2,
		CrossoverRate:  cfg.CrossoverRate,
		MutationRate:   cfg.MutationRate,
		MinSelected:    1,
		Seed:           cfg.Seed,
	})
	if err != nil {
		return err
	}
	hv, err := hypervolume.New(cfg.ReferenceMin, cfg.ReferenceMax)
	if err != nil {
		return err
	}

	// ------------------------------------------------------------------------
	// 3) Evolve
	// ------------------------------------------------------------------------
	fmt.Fprintf(out, "%s: population=%d generations=%d folds=%d workers=%d\n",
		nsga2.Name, cfg.PopulationSize, cfg.Generations, cfg.Folds, cfg.Workers)
	res, err := runSearch(alg, hv, cfg.Generations, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Search finished: %d evaluations, %d cross-validations, %s\n",
		alg.Evaluations(), evaluator.Runs(), time.Since(start).Round(time.Millisecond))

	// ------------------------------------------------------------------------
	// 4) Plot, select, validate
	// ------------------------------------------------------------------------
	return finish(cfg, runID, ds, res, out)
}

func loadDataset(cfg config.Config) (*dataset.Dataset, error) {
	return dataset.Load(cfg.DataPath, dataset.Options{
		LabelColumn: cfg.LabelColumn,
		Drop:        cfg.DropColumns,
	})
}

func newEvaluator(cfg config.Config, ds *dataset.Dataset, params svm.Params) *objective.Evaluator {
	factory := func() validation.Classifier { return svm.New(params) }
	validator := &validation.KFold{
		Splitter: validation.NewStratifiedKFold(cfg.Folds, cfg.ShuffleFold, cfg.FoldSeed),
		Options:  validation.Options{Workers: cfg.Workers},
	}
	return objective.NewEvaluator(ds, factory, validator, cfg.Memoize)
}

// runSearch steps opt for the given number of generations and records the
// hypervolume of each generation's snapshot. The front is taken from the
// last snapshot.
func runSearch(opt optimizer, hv *hypervolume.Indicator, generations int, out io.Writer) (*SearchResult, error) {
	res := &SearchResult{
		Hypervolumes: make([]float64, 1, generations+1),
		Snapshots:    make([]nsga2.Snapshot, 0, generations),
	}
	dirs := opt.Directions()

	for gen := 0; gen < generations; gen++ {
		if err := opt.Step(); err != nil {
			return nil, fmt.Errorf("generation %d: %w", gen, err)
		}
		snap := opt.Snapshot()
		res.Snapshots = append(res.Snapshots, snap)

		volume, err := hv.Solutions(snap.Solutions(), dirs)
		if err != nil {
			return nil, fmt.Errorf("generation %d: hypervolume: %w", gen, err)
		}
		res.Hypervolumes = append(res.Hypervolumes, volume)

		fmt.Fprintf(out, "Generation %3d/%d: hypervolume=%.4f evaluations=%d\n",
			gen+1, generations, volume, opt.Evaluations())
	}

	if n := len(res.Snapshots); n > 0 {
		res.Front = nsga2.Nondominated(res.Snapshots[n-1].Solutions(), dirs)
	}
	return res, nil
}

func finish(cfg config.Config, runID string, ds *dataset.Dataset, res *SearchResult, out io.Writer) error {
	plotDir := filepath.Join(cfg.PlotDir, runID)
	if err := report.PlotHypervolume(res.Hypervolumes, filepath.Join(plotDir, hypervolumePlot)); err != nil {
		return fmt.Errorf("plot hypervolume: %w", err)
	}

	selected, err := report.SelectBalanced(res.Front)
	if err != nil {
		return err
	}
	if err := report.PlotFront(res.Front, selected, filepath.Join(plotDir, frontPlot)); err != nil {
		return fmt.Errorf("plot front: %w", err)
	}
	fmt.Fprintf(out, "\nPlots written to %s\n", plotDir)
	if n := len(res.Snapshots); n > 0 {
		last := res.Snapshots[n-1]
		fmt.Fprintf(out, "Final population (generation %d): %d solutions\n", last.Generation, len(last.Population))
	}
	fmt.Fprintf(out, "Non-dominated solutions: %d\n", len(res.Front))
	for i, s := range res.Front {
		fmt.Fprintf(out, "  [%d] sensitivity=%.4f specificity=%.4f features=%d\n",
			i, s.Objectives[0], s.Objectives[1], s.Selected())
	}

	names, err := ds.Columns(selected.Mask)
	if err != nil {
		return err
	}
	report.PrintSelection(out, selected, names)

	// A fresh model with probability outputs, validated on the chosen columns.
	final := newEvaluator(cfg, ds, cfg.Model.WithProbability())
	summary, err := final.Validate(selected.Mask)
	if err != nil {
		return fmt.Errorf("validate selection: %w", err)
	}
	report.PrintSummary(out, summary)

	return fitFinal(cfg.Model.WithProbability(), ds, selected.Mask, out)
}

// fitFinal retrains on every row of the selected columns and reports the
// resubstitution scores next to the cross-validated ones.
func fitFinal(params svm.Params, ds *dataset.Dataset, mask []bool, out io.Writer) error {
	x, err := ds.Select(mask)
	if err != nil {
		return err
	}
	model := svm.New(params)
	if err := model.Fit(x, ds.Y); err != nil {
		return fmt.Errorf("fit final model: %w", err)
	}
	if model.Status() == optimize.IterationLimit {
		fmt.Fprintf(out, "warning: final model stopped at the iteration limit (%d); scores may be unconverged\n",
			params.MaxIterations)
	}
	pred, err := model.Predict(x)
	if err != nil {
		return err
	}
	proba, err := model.PredictProba(x)
	if err != nil {
		return err
	}

	fold := metrics.Fold{Truth: ds.Y, Predicted: pred, Confidence: proba}
	fmt.Fprintf(out, "\nFinal model on all %d samples:\n", ds.NumSamples())
	for _, s := range metrics.DefaultScorers() {
		fmt.Fprintf(out, "  Train %-11s %.4f\n", s.Name, s.Score(fold))
	}
	return nil
}
