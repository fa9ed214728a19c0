package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Curve is a ROC curve: points ordered by decreasing threshold, starting at (0, 0) with an
// infinite threshold.
type Curve struct {
	FPR        []float64
	TPR        []float64
	Thresholds []float64
}

// ClassROC is the one-vs-rest curve of one class. Defined is false when the test split has
// no positive or no negative sample for the class; AUC is NaN then.
type ClassROC struct {
	Class   int
	Label   string
	Curve   Curve
	AUC     float64
	Defined bool
}

// Binarize one-hot encodes y over k classes.
func Binarize(y []int, k int) ([][]int, error) {
	out := make([][]int, len(y))
	for i, c := range y {
		if c < 0 || c >= k {
			return nil, fmt.Errorf("class %d outside [0, %d)", c, k)
		}
		row := make([]int, k)
		row[c] = 1
		out[i] = row
	}
	return out, nil
}

// ROCCurve sweeps the distinct scores from high to low. Samples sharing a score enter the
// curve together as one point.
func ROCCurve(truth []int, scores []float64) (Curve, error) {
	if len(truth) != len(scores) {
		return Curve{}, fmt.Errorf("got %d labels and %d scores", len(truth), len(scores))
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	curve := Curve{
		FPR:        []float64{0},
		TPR:        []float64{0},
		Thresholds: []float64{math.Inf(1)},
	}
	var tps, fps []float64
	tp, fp := 0.0, 0.0
	for n, i := range order {
		if truth[i] == 1 {
			tp++
		} else {
			fp++
		}
		last := n == len(order)-1
		if last || scores[order[n+1]] != scores[i] {
			tps = append(tps, tp)
			fps = append(fps, fp)
			curve.Thresholds = append(curve.Thresholds, scores[i])
		}
	}
	for n := range tps {
		curve.FPR = append(curve.FPR, safeRate(fps[n], fp))
		curve.TPR = append(curve.TPR, safeRate(tps[n], tp))
	}
	return curve, nil
}

func safeRate(count, total float64) float64 {
	if total == 0 {
		return math.NaN()
	}
	return count / total
}

// AUC integrates y over x with the trapezoidal rule; x must be monotonic.
func AUC(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("got %d x and %d y values", len(x), len(y))
	}
	if len(x) < 2 {
		return 0, fmt.Errorf("at least 2 points are needed to compute AUC, got %d", len(x))
	}
	direction := 1.0
	for i := 1; i < len(x); i++ {
		if x[i] < x[i-1] {
			direction = -1
			break
		}
	}
	area := 0.0
	for i := 1; i < len(x); i++ {
		dx := x[i] - x[i-1]
		if dx*direction < 0 {
			return 0, fmt.Errorf("x is neither increasing nor decreasing")
		}
		area += dx * (y[i] + y[i-1]) / 2
	}
	return direction * area, nil
}

// ROCPerClass computes an independent one-vs-rest curve for every class.
func ROCPerClass(yTrue []int, prob [][]float64, labels []string) ([]ClassROC, error) {
	k := len(labels)
	if len(prob) != len(yTrue) {
		return nil, fmt.Errorf("got %d probability rows for %d samples", len(prob), len(yTrue))
	}
	onehot, err := Binarize(yTrue, k)
	if err != nil {
		return nil, err
	}
	out := make([]ClassROC, k)
	truth := make([]int, len(yTrue))
	scores := make([]float64, len(yTrue))
	for c := 0; c < k; c++ {
		positives := 0
		for i := range yTrue {
			if len(prob[i]) != k {
				return nil, fmt.Errorf("probability row %d has %d classes, expected %d", i, len(prob[i]), k)
			}
			truth[i] = onehot[i][c]
			scores[i] = prob[i][c]
			positives += truth[i]
		}
		roc := ClassROC{Class: c, Label: labels[c], AUC: math.NaN()}
		curve, err := ROCCurve(truth, scores)
		if err != nil {
			return nil, err
		}
		roc.Curve = curve
		if positives > 0 && positives < len(yTrue) {
			roc.Defined = true
			if roc.AUC, err = AUC(curve.FPR, curve.TPR); err != nil {
				return nil, err
			}
		}
		out[c] = roc
	}
	return out, nil
}

type classROCJSON struct {
	Class      int       `json:"class"`
	Label      string    `json:"label"`
	FPR        []float64 `json:"fpr,omitempty"`
	TPR        []float64 `json:"tpr,omitempty"`
	Thresholds []float64 `json:"thresholds,omitempty"`
	AUC        *float64  `json:"auc"`
}

// MarshalJSON drops undefined curves and keeps the infinite first threshold out of the
// output, since JSON has neither NaN nor Inf.
func (r ClassROC) MarshalJSON() ([]byte, error) {
	out := classROCJSON{Class: r.Class, Label: r.Label}
	if r.Defined {
		auc := r.AUC
		out.AUC = &auc
		out.FPR = r.Curve.FPR
		out.TPR = r.Curve.TPR
		if len(r.Curve.Thresholds) > 1 {
			out.Thresholds = r.Curve.Thresholds[1:]
		}
	}
	return json.Marshal(out)
}
