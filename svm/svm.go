// Package svm provides a linear support vector classifier trained in the
// primal with gonum's L-BFGS optimizer, with optional Platt-scaled
// probability outputs.
//
// The training objective is the L2-regularised squared hinge loss
//
//	0.5*||w||^2 + C * sum_i s_i * max(0, 1 - t_i*(w.x_i + b))^2
//
// over standardised features, where t_i is -1/+1 and s_i a class weight.
package svm

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNotFitted     = errors.New("svm: classifier is not fitted")
	ErrSingleClass   = errors.New("svm: training labels hold a single class")
	ErrNoProbability = errors.New("svm: probability outputs were not requested")
	ErrShape         = errors.New("svm: dimension mismatch")
)

// Params are the fixed hyperparameters of a Classifier.
type Params struct {
	C             float64 `yaml:"c"`
	Tolerance     float64 `yaml:"tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
	Balanced      bool    `yaml:"balanced"`
	Probability   bool    `yaml:"probability"`
}

// DefaultParams mirrors the usual LinearSVC defaults.
func DefaultParams() Params {
	return Params{
		C:             1.0,
		Tolerance:     1e-6,
		MaxIterations: 1000,
	}
}

// WithProbability returns a copy of p with Platt scaling enabled.
func (p Params) WithProbability() Params {
	p.Probability = true
	return p
}

// Classifier is a binary linear SVM. Labels are 0 and 1.
type Classifier struct {
	params Params

	mean  []float64
	scale []float64
	w     []float64
	b     float64

	plattA float64
	plattB float64

	status optimize.Status
	fitted bool
}

// New returns an untrained classifier.
func New(p Params) *Classifier {
	return &Classifier{params: p}
}

// Fit trains the classifier on x (rows samples) and 0/1 labels y.
func (c *Classifier) Fit(x mat.Matrix, y []float64) error {
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return fmt.Errorf("%w: empty training matrix %dx%d", ErrShape, rows, cols)
	}
	if len(y) != rows {
		return fmt.Errorf("%w: %d rows, %d labels", ErrShape, rows, len(y))
	}

	var npos int
	for _, v := range y {
		if v == 1 {
			npos++
		}
	}
	if npos == 0 || npos == rows {
		return ErrSingleClass
	}

	c.mean = make([]float64, cols)
	c.scale = make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		m, sd := stat.MeanStdDev(col, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		c.mean[j], c.scale[j] = m, sd
	}
	z := c.standardize(x)

	t := make([]float64, rows)
	s := make([]float64, rows)
	posWeight, negWeight := 1.0, 1.0
	if c.params.Balanced {
		posWeight = float64(rows) / (2 * float64(npos))
		negWeight = float64(rows) / (2 * float64(rows-npos))
	}
	for i, v := range y {
		if v == 1 {
			t[i], s[i] = 1, posWeight
		} else {
			t[i], s[i] = -1, negWeight
		}
	}

	theta, status, err := c.minimizeHinge(z, t, s)
	if err != nil {
		return err
	}
	c.w = theta[:cols]
	c.b = theta[cols]
	c.status = status
	c.fitted = true

	if c.params.Probability {
		if err := c.fitPlatt(c.decision(z), y); err != nil {
			c.fitted = false
			return err
		}
	}
	return nil
}

func (c *Classifier) settings() *optimize.Settings {
	return &optimize.Settings{
		GradientThreshold: c.params.Tolerance,
		MajorIterations:   c.params.MaxIterations,
	}
}

// minimizeHinge returns [w..., b] for standardised rows z.
func (c *Classifier) minimizeHinge(z *mat.Dense, t, s []float64) ([]float64, optimize.Status, error) {
	rows, cols := z.Dims()
	cost := c.params.C
	margins := make([]float64, rows)

	// margins[i] = max(0, 1 - t_i*(w.z_i + b)); shared by Func and Grad.
	computeMargins := func(theta []float64) {
		w, b := theta[:cols], theta[cols]
		for i := 0; i < rows; i++ {
			m := 1 - t[i]*(floats.Dot(w, z.RawRowView(i))+b)
			if m < 0 {
				m = 0
			}
			margins[i] = m
		}
	}

	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			computeMargins(theta)
			w := theta[:cols]
			loss := 0.5 * floats.Dot(w, w)
			for i, m := range margins {
				loss += cost * s[i] * m * m
			}
			return loss
		},
		Grad: func(grad, theta []float64) {
			computeMargins(theta)
			copy(grad[:cols], theta[:cols])
			grad[cols] = 0
			for i, m := range margins {
				if m == 0 {
					continue
				}
				k := -2 * cost * s[i] * m * t[i]
				floats.AddScaled(grad[:cols], k, z.RawRowView(i))
				grad[cols] += k
			}
		},
	}

	x0 := make([]float64, cols+1)
	res, err := optimize.Minimize(problem, x0, c.settings(), &optimize.LBFGS{})
	if res == nil || len(res.X) != cols+1 || hasNaN(res.X) {
		return nil, optimize.Failure, fmt.Errorf("svm: optimize hinge loss: %w", noSolution(err))
	}
	return res.X, res.Status, nil
}

// fitPlatt fits P(y=1|f) = 1/(1+exp(A*f+B)) on decision values f using
// Platt's smoothed targets.
func (c *Classifier) fitPlatt(f, y []float64) error {
	var npos, nneg float64
	for _, v := range y {
		if v == 1 {
			npos++
		} else {
			nneg++
		}
	}
	hi := (npos + 1) / (npos + 2)
	lo := 1 / (nneg + 2)
	target := make([]float64, len(y))
	for i, v := range y {
		if v == 1 {
			target[i] = hi
		} else {
			target[i] = lo
		}
	}

	problem := optimize.Problem{
		Func: func(ab []float64) float64 {
			var nll float64
			for i, fi := range f {
				z := ab[0]*fi + ab[1]
				nll += softplus(z) - (1-target[i])*z
			}
			return nll
		},
		Grad: func(grad, ab []float64) {
			grad[0], grad[1] = 0, 0
			for i, fi := range f {
				z := ab[0]*fi + ab[1]
				d := sigmoid(z) - (1 - target[i])
				grad[0] += d * fi
				grad[1] += d
			}
		},
	}

	x0 := []float64{0, math.Log((nneg + 1) / (npos + 1))}
	res, err := optimize.Minimize(problem, x0, c.settings(), &optimize.LBFGS{})
	if res == nil || len(res.X) != 2 || hasNaN(res.X) {
		return fmt.Errorf("svm: optimize platt scaling: %w", noSolution(err))
	}
	c.plattA, c.plattB = res.X[0], res.X[1]
	return nil
}

func (c *Classifier) standardize(x mat.Matrix) *mat.Dense {
	rows, cols := x.Dims()
	z := mat.NewDense(rows, cols, nil)
	z.Apply(func(i, j int, v float64) float64 {
		return (v - c.mean[j]) / c.scale[j]
	}, x)
	return z
}

func (c *Classifier) decision(z *mat.Dense) []float64 {
	rows, _ := z.Dims()
	out := make([]float64, rows)
	for i := range out {
		out[i] = floats.Dot(c.w, z.RawRowView(i)) + c.b
	}
	return out
}

func (c *Classifier) check(x mat.Matrix) error {
	if !c.fitted {
		return ErrNotFitted
	}
	rows, cols := x.Dims()
	if rows == 0 {
		return fmt.Errorf("%w: no rows to score", ErrShape)
	}
	if cols != len(c.w) {
		return fmt.Errorf("%w: model has %d features, input has %d", ErrShape, len(c.w), cols)
	}
	return nil
}

// Decision returns the signed distance w.x+b of each row.
func (c *Classifier) Decision(x mat.Matrix) ([]float64, error) {
	if err := c.check(x); err != nil {
		return nil, err
	}
	return c.decision(c.standardize(x)), nil
}

// Predict returns 0/1 labels.
func (c *Classifier) Predict(x mat.Matrix) ([]float64, error) {
	d, err := c.Decision(x)
	if err != nil {
		return nil, err
	}
	for i, v := range d {
		if v > 0 {
			d[i] = 1
		} else {
			d[i] = 0
		}
	}
	return d, nil
}

// PredictProba returns P(y=1) for each row.
func (c *Classifier) PredictProba(x mat.Matrix) ([]float64, error) {
	if !c.params.Probability {
		return nil, ErrNoProbability
	}
	d, err := c.Decision(x)
	if err != nil {
		return nil, err
	}
	for i, v := range d {
		d[i] = sigmoid(-(c.plattA*v + c.plattB))
	}
	return d, nil
}

// Weights returns the coefficients in standardised feature space and the bias.
func (c *Classifier) Weights() ([]float64, float64) {
	w := make([]float64, len(c.w))
	copy(w, c.w)
	return w, c.b
}

// Status reports how the hinge-loss optimisation terminated.
func (c *Classifier) Status() optimize.Status { return c.status }

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}

func noSolution(err error) error {
	if err != nil {
		return err
	}
	return errors.New("no finite solution")
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}
