// Package metrics implements binary classification scorers over held-out folds.
//
// Labels are 0 (negative) and 1 (positive). Every scorer returns a value in
// [0,1]; ratios whose denominator is zero score 0, as scikit-learn does with
// zero_division=0.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Scorer names used as keys in cross-validation results.
const (
	NameAUC         = "AUC"
	NameAccuracy    = "ACC"
	NameF1          = "F1"
	NameSensitivity = "Sensitivity"
	NamePrecision   = "Precision"
	NameSpecificity = "Specificity"
)

// Fold is what a scorer sees: true labels, hard predictions and a continuous
// score (decision value or probability) per held-out sample.
type Fold struct {
	Truth      []float64
	Predicted  []float64
	Confidence []float64
}

// Scorer computes one metric for a fold.
type Scorer func(Fold) float64

// Named pairs a scorer with the key it reports under.
type Named struct {
	Name  string
	Score Scorer
}

// DefaultScorers returns the six metrics reported for every evaluation, in
// print order.
func DefaultScorers() []Named {
	return []Named{
		{NameAUC, AUC},
		{NameAccuracy, Accuracy},
		{NameF1, F1},
		{NameSensitivity, Recall},
		{NamePrecision, Precision},
		{NameSpecificity, Specificity},
	}
}

// ConfusionMatrix holds the four cells of a binary confusion matrix.
type ConfusionMatrix struct {
	TP, FP, TN, FN int
}

// Confusion tallies truth against predicted labels.
func Confusion(truth, predicted []float64) ConfusionMatrix {
	var cm ConfusionMatrix
	for i := range truth {
		pos := predicted[i] == 1
		switch {
		case truth[i] == 1 && pos:
			cm.TP++
		case truth[i] == 1:
			cm.FN++
		case pos:
			cm.FP++
		default:
			cm.TN++
		}
	}
	return cm
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Accuracy is the fraction of correct predictions.
func Accuracy(f Fold) float64 {
	cm := Confusion(f.Truth, f.Predicted)
	return ratio(cm.TP+cm.TN, len(f.Truth))
}

// Recall is the true-positive rate (sensitivity).
func Recall(f Fold) float64 {
	cm := Confusion(f.Truth, f.Predicted)
	return ratio(cm.TP, cm.TP+cm.FN)
}

// Specificity is the true-negative rate TN/(TN+FP).
func Specificity(f Fold) float64 {
	cm := Confusion(f.Truth, f.Predicted)
	return ratio(cm.TN, cm.TN+cm.FP)
}

// Precision is TP/(TP+FP).
func Precision(f Fold) float64 {
	cm := Confusion(f.Truth, f.Predicted)
	return ratio(cm.TP, cm.TP+cm.FP)
}

// F1 is the harmonic mean of precision and recall.
func F1(f Fold) float64 {
	cm := Confusion(f.Truth, f.Predicted)
	return ratio(2*cm.TP, 2*cm.TP+cm.FP+cm.FN)
}

// AUC is the area under the ROC curve of the fold's confidence scores.
// A fold holding a single class has no ROC curve and scores 0.5.
func AUC(f Fold) float64 {
	n := len(f.Confidence)
	if n == 0 {
		return 0.5
	}
	y := make([]float64, n)
	copy(y, f.Confidence)
	inds := make([]int, n)
	floats.Argsort(y, inds)

	classes := make([]bool, n)
	var pos int
	for i, j := range inds {
		classes[i] = f.Truth[j] == 1
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == n {
		return 0.5
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	auc := integrate.Trapezoidal(fpr, tpr)
	if math.IsNaN(auc) {
		return 0.5
	}
	return auc
}
