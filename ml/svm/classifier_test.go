package svm

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"imwithroc.com/ensemble/ml"
)

func blobs(seed int64, perClass int) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	centers := [][]float64{{0, 0}, {5, 5}, {-5, 5}}
	var x [][]float64
	var y []int
	for cl, c := range centers {
		for i := 0; i < perClass; i++ {
			x = append(x, []float64{c[0] + rng.NormFloat64()*0.5, c[1] + rng.NormFloat64()*0.5})
			y = append(y, cl)
		}
	}
	return x, y
}

func TestClassifierSeparable(t *testing.T) {
	x, y := blobs(1, 15)
	for _, kernel := range []string{"linear", "rbf"} {
		t.Run(kernel, func(t *testing.T) {
			clf, err := NewClassifier(ml.Params{"C": 1.0, "kernel": kernel, "seed": 42})
			require.NoError(t, err)

			_, err = clf.PredictProba(x)
			var notTrained *ml.NotTrainedError
			require.True(t, errors.As(err, &notTrained))

			require.NoError(t, clf.Fit(x, y, 3))
			require.True(t, clf.Model().HasProbability())

			pred, err := clf.Predict(x)
			require.NoError(t, err)
			require.Equal(t, y, pred)

			prob, err := clf.PredictProba(x)
			require.NoError(t, err)
			agree := 0
			for i, row := range prob {
				require.Len(t, row, 3)
				sum := 0.0
				for _, p := range row {
					require.GreaterOrEqual(t, p, 0.0)
					sum += p
				}
				require.InDelta(t, 1, sum, 1e-6)
				if ml.Argmax(row) == y[i] {
					agree++
				}
			}
			require.GreaterOrEqual(t, agree, len(y)-2)
		})
	}
}

func TestClassifierDeterministic(t *testing.T) {
	x, y := blobs(2, 10)
	fit := func() [][]float64 {
		clf, err := NewClassifier(ml.Params{"kernel": "rbf", "C": 10.0, "seed": 7})
		require.NoError(t, err)
		require.NoError(t, clf.Fit(x, y, 3))
		prob, err := clf.PredictProba(x)
		require.NoError(t, err)
		return prob
	}
	require.Equal(t, fit(), fit())
}

func TestClassifierAbsentClass(t *testing.T) {
	x, y := blobs(3, 10)
	clf, err := NewClassifier(ml.Params{"kernel": "linear"})
	require.NoError(t, err)
	require.NoError(t, clf.Fit(x, y, 4))
	prob, err := clf.PredictProba(x[:3])
	require.NoError(t, err)
	for _, row := range prob {
		require.Len(t, row, 4)
		require.Zero(t, row[3])
	}

	var dim *ml.DimensionError
	_, err = clf.PredictProba([][]float64{{1, 2, 3}})
	require.True(t, errors.As(err, &dim))
}

func TestNewClassifierParams(t *testing.T) {
	clf, err := NewClassifier(ml.Params{"gamma": "scale", "kernel": "poly", "degree": 2})
	require.NoError(t, err)
	require.Equal(t, KernelTypePoly, clf.Param.KernelType)
	require.Equal(t, 2, clf.Param.Degree)
	require.Zero(t, clf.Param.Gamma)

	for name, params := range map[string]ml.Params{
		"unknown kernel":      {"kernel": "cubic"},
		"unknown gamma":       {"gamma": "auto"},
		"non positive C":      {"C": 0.0},
		"no probabilities":    {"probability_folds": 0},
		"single probability":  {"probability_folds": 1},
		"C of the wrong type": {"C": "large"},
	} {
		_, err := NewClassifier(params)
		require.Error(t, err, name)
	}
}
