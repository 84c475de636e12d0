// Package report draws the search plots, picks the balanced solution and
// prints validation summaries.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Sharma-Saravanan/deep-radiomics/nsga2"
	"github.com/Sharma-Saravanan/deep-radiomics/validation"
)

var ErrEmptyFront = errors.New("report: no solutions to choose from")

// SelectBalanced returns the solution with the smallest gap between its first
// two objectives. Ties keep the earliest solution.
func SelectBalanced(front []*nsga2.Solution) (*nsga2.Solution, error) {
	if len(front) == 0 {
		return nil, ErrEmptyFront
	}
	best := front[0]
	bestGap := gap(best)
	for _, s := range front[1:] {
		if g := gap(s); g < bestGap {
			best, bestGap = s, g
		}
	}
	return best.Clone(), nil
}

func gap(s *nsga2.Solution) float64 {
	return math.Abs(s.Objectives[0] - s.Objectives[1])
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

// PlotHypervolume draws the hypervolume trace against the generation index
// and saves it to path (format from the extension, e.g. .png, .svg).
func PlotHypervolume(trace []float64, path string) error {
	p := plot.New()
	p.Title.Text = "Hypervolume vs Generations"
	p.X.Label.Text = "Generations"
	p.Y.Label.Text = "Hypervolume"
	p.Y.Min = 0
	p.Y.Max = 1

	pts := make(plotter.XYs, len(trace))
	for i, v := range trace {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	p.Add(line, plotter.NewGrid())

	if err := ensureDir(path); err != nil {
		return err
	}
	return p.Save(11*vg.Inch, 11*vg.Inch, path)
}

// PlotFront draws the first two objectives of front as a scatter on
// [0,1.1] x [0,1.1]. The selected solution, when given, is highlighted.
func PlotFront(front []*nsga2.Solution, selected *nsga2.Solution, path string) error {
	p := plot.New()
	p.Title.Text = "Non dominated results"
	p.X.Label.Text = "Sensitivity"
	p.Y.Label.Text = "Specificity"
	p.X.Min, p.X.Max = 0, 1.1
	p.Y.Min, p.Y.Max = 0, 1.1

	pts := make(plotter.XYs, len(front))
	for i, s := range front {
		pts[i].X = s.Objectives[0]
		pts[i].Y = s.Objectives[1]
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	p.Add(scatter, plotter.NewGrid())

	if selected != nil {
		mark, err := plotter.NewScatter(plotter.XYs{{X: selected.Objectives[0], Y: selected.Objectives[1]}})
		if err != nil {
			return err
		}
		mark.GlyphStyle.Radius = vg.Points(5)
		p.Add(mark)
		p.Legend.Add("selected", mark)
		p.Legend.Top = true
	}

	if err := ensureDir(path); err != nil {
		return err
	}
	return p.Save(11*vg.Inch, 11*vg.Inch, path)
}

// PrintSelection writes the chosen mask, its objectives and feature names.
func PrintSelection(w io.Writer, s *nsga2.Solution, names []string) {
	fmt.Fprintf(w, "Selected solution: sensitivity=%.4f specificity=%.4f gap=%.4f\n",
		s.Objectives[0], s.Objectives[1], gap(s))
	fmt.Fprintf(w, "Selected features (%d of %d):\n", s.Selected(), len(s.Mask))
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", n)
	}
}

// PrintSummary writes mean and standard deviation of every metric in res.
func PrintSummary(w io.Writer, res *validation.Results) {
	width := 0
	for _, n := range res.Names {
		if len(n) > width {
			width = len(n)
		}
	}
	folds := 0
	if len(res.Names) > 0 {
		folds = len(res.Scores[res.Names[0]])
	}
	fmt.Fprintf(w, "\n--- Validation summary (%d folds) ---\n", folds)
	for _, n := range res.Names {
		fmt.Fprintf(w, "%s%s  %.4f (+/- %.4f)\n", n, strings.Repeat(" ", width-len(n)), res.Mean(n), res.Std(n))
	}
}
