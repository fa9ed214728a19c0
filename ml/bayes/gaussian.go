package bayes

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"

	"imwithroc.com/ensemble/ml"
)

const defaultVarSmoothing = 1e-9

// GaussianNB models every feature as an independent normal per class. Variances are widened
// by VarSmoothing times the largest feature variance for numerical stability.
type GaussianNB struct {
	VarSmoothing float64

	classes  []int
	logPrior []float64
	theta    [][]float64
	variance [][]float64
	k        int
	dim      int
}

func New(params ml.Params) (ml.Classifier, error) {
	vs, err := params.Float("var_smoothing", defaultVarSmoothing)
	if err != nil {
		return nil, err
	}
	if vs < 0 {
		return nil, errors.New("gaussian nb: var_smoothing must not be negative")
	}
	return &GaussianNB{VarSmoothing: vs}, nil
}

func (nb *GaussianNB) Name() string {
	return "naive bayes"
}

func (nb *GaussianNB) Fit(x [][]float64, y []int, k int) error {
	if err := ml.ValidateTrainingSet(x, y, k); err != nil {
		return err
	}
	n, d := len(x), len(x[0])

	// epsilon from the variance of each feature over the whole training set
	maxVar := 0.0
	col := make([]float64, n)
	for f := 0; f < d; f++ {
		for i := range x {
			col[i] = x[i][f]
		}
		if v := popVariance(col); v > maxVar {
			maxVar = v
		}
	}
	epsilon := nb.VarSmoothing * maxVar
	if epsilon == 0 {
		// constant data; keep the likelihood finite
		epsilon = nb.VarSmoothing
		if epsilon == 0 {
			epsilon = defaultVarSmoothing
		}
	}

	groups := make([][]int, k)
	for i, label := range y {
		groups[label] = append(groups[label], i)
	}
	nb.classes = nb.classes[:0]
	nb.logPrior, nb.theta, nb.variance = nil, nil, nil
	for label, members := range groups {
		if len(members) == 0 {
			continue
		}
		theta := make([]float64, d)
		variance := make([]float64, d)
		for _, s := range members {
			floats.Add(theta, x[s])
		}
		floats.Scale(1/float64(len(members)), theta)
		for _, s := range members {
			for f, v := range x[s] {
				diff := v - theta[f]
				variance[f] += diff * diff
			}
		}
		for f := range variance {
			variance[f] = variance[f]/float64(len(members)) + epsilon
		}
		nb.classes = append(nb.classes, label)
		nb.logPrior = append(nb.logPrior, math.Log(float64(len(members))/float64(n)))
		nb.theta = append(nb.theta, theta)
		nb.variance = append(nb.variance, variance)
	}
	nb.k, nb.dim = k, d
	return nil
}

func (nb *GaussianNB) PredictProba(x [][]float64) ([][]float64, error) {
	if len(nb.classes) == 0 {
		return nil, &ml.NotTrainedError{Model: nb.Name()}
	}
	if err := ml.CheckWidth(x, nb.dim); err != nil {
		return nil, err
	}
	out := make([][]float64, len(x))
	joint := make([]float64, len(nb.classes))
	for i, row := range x {
		for ci := range nb.classes {
			ll := nb.logPrior[ci]
			theta, variance := nb.theta[ci], nb.variance[ci]
			for f, v := range row {
				diff := v - theta[f]
				ll -= 0.5*math.Log(2*math.Pi*variance[f]) + diff*diff/(2*variance[f])
			}
			joint[ci] = ll
		}
		lse := floats.LogSumExp(joint)
		dist := make([]float64, nb.k)
		for ci, label := range nb.classes {
			dist[label] = math.Exp(joint[ci] - lse)
		}
		out[i] = dist
	}
	return out, nil
}

func popVariance(x []float64) float64 {
	mean := floats.Sum(x) / float64(len(x))
	v := 0.0
	for _, e := range x {
		v += (e - mean) * (e - mean)
	}
	return v / float64(len(x))
}
