package validation

import (
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/Sharma-Saravanan/deep-radiomics/metrics"
)

// Classifier is the estimator contract cross-validation needs.
type Classifier interface {
	Fit(x mat.Matrix, y []float64) error
	Predict(x mat.Matrix) ([]float64, error)
	Decision(x mat.Matrix) ([]float64, error)
}

// Prober is implemented by classifiers that can return P(y=1). When the
// model supports it, AUC is computed on probabilities instead of decision values.
type Prober interface {
	PredictProba(x mat.Matrix) ([]float64, error)
}

// Factory builds a fresh, untrained classifier for each fold.
type Factory func() Classifier

// Options for CrossValidate.
type Options struct {
	Scorers []metrics.Named
	// Workers bounds how many folds are fitted at once.
	Workers int
	// KeepEstimators retains the fitted per-fold models in Results.
	KeepEstimators bool
}

// Results holds per-fold scores keyed by scorer name, in fold order.
type Results struct {
	Names      []string
	Scores     map[string][]float64
	Estimators []Classifier
}

// Mean is the average of the named metric over folds.
func (r *Results) Mean(name string) float64 {
	return stat.Mean(r.Scores[name], nil)
}

// Std is the population standard deviation of the named metric over folds.
func (r *Results) Std(name string) float64 {
	_, std := stat.PopMeanStdDev(r.Scores[name], nil)
	return std
}

// CrossValidate fits one model per split on the training rows and scores it
// on the held-out rows. Folds run concurrently on at most opts.Workers
// goroutines; the first fold error is returned.
func CrossValidate(factory Factory, x *mat.Dense, y []float64, splitter Splitter, opts Options) (*Results, error) {
	rows, _ := x.Dims()
	if rows != len(y) {
		return nil, fmt.Errorf("validation: %d rows, %d labels", rows, len(y))
	}
	splits, err := splitter.Split(y)
	if err != nil {
		return nil, err
	}
	scorers := opts.Scorers
	if len(scorers) == 0 {
		scorers = metrics.DefaultScorers()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	perFold := make([]map[string]float64, len(splits))
	models := make([]Classifier, len(splits))

	p := pool.New().WithErrors().WithFirstError().WithMaxGoroutines(workers)
	for i, sp := range splits {
		i, sp := i, sp
		p.Go(func() error {
			model := factory()
			scores, err := fitAndScore(model, x, y, sp, scorers)
			if err != nil {
				return fmt.Errorf("fold %d: %w", i, err)
			}
			perFold[i] = scores
			models[i] = model
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	res := &Results{Scores: make(map[string][]float64, len(scorers))}
	for _, s := range scorers {
		res.Names = append(res.Names, s.Name)
		vals := make([]float64, len(splits))
		for i := range splits {
			vals[i] = perFold[i][s.Name]
		}
		res.Scores[s.Name] = vals
	}
	if opts.KeepEstimators {
		res.Estimators = models
	}
	return res, nil
}

func fitAndScore(model Classifier, x *mat.Dense, y []float64, sp Split, scorers []metrics.Named) (map[string]float64, error) {
	xTrain, yTrain := Rows(x, y, sp.Train)
	xTest, yTest := Rows(x, y, sp.Test)

	if err := model.Fit(xTrain, yTrain); err != nil {
		return nil, err
	}
	pred, err := model.Predict(xTest)
	if err != nil {
		return nil, err
	}

	var conf []float64
	if pr, ok := model.(Prober); ok {
		conf, err = pr.PredictProba(xTest)
	}
	if conf == nil || err != nil {
		conf, err = model.Decision(xTest)
		if err != nil {
			return nil, err
		}
	}

	fold := metrics.Fold{Truth: yTest, Predicted: pred, Confidence: conf}
	out := make(map[string]float64, len(scorers))
	for _, s := range scorers {
		out[s.Name] = s.Score(fold)
	}
	return out, nil
}

// Rows copies the given rows of x and y.
func Rows(x *mat.Dense, y []float64, idx []int) (*mat.Dense, []float64) {
	_, cols := x.Dims()
	out := mat.NewDense(len(idx), cols, nil)
	labels := make([]float64, len(idx))
	for i, r := range idx {
		out.SetRow(i, x.RawRowView(r))
		labels[i] = y[r]
	}
	return out, labels
}

// KFold binds a splitter and options into a reusable validator.
type KFold struct {
	Splitter Splitter
	Options  Options
}

// CrossValidate runs CrossValidate with the bound splitter and options.
func (v *KFold) CrossValidate(factory Factory, x *mat.Dense, y []float64) (*Results, error) {
	return CrossValidate(factory, x, y, v.Splitter, v.Options)
}
