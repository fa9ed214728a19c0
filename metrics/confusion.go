package metrics

import (
	"errors"
	"fmt"
)

// Accuracy is the fraction of exact matches.
func Accuracy(yTrue, yPred []int) (float64, error) {
	if err := checkAligned(yTrue, yPred); err != nil {
		return 0, err
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// ConfusionMatrix counts, at (i, j), the samples of true class i predicted as j.
func ConfusionMatrix(yTrue, yPred []int, k int) ([][]int, error) {
	if err := checkAligned(yTrue, yPred); err != nil {
		return nil, err
	}
	m := make([][]int, k)
	for i := range m {
		m[i] = make([]int, k)
	}
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t >= k || p < 0 || p >= k {
			return nil, fmt.Errorf("class pair (%d, %d) outside [0, %d)", t, p, k)
		}
		m[t][p]++
	}
	return m, nil
}

// Trace is the number of correct predictions in a confusion matrix.
func Trace(m [][]int) int {
	sum := 0
	for i := range m {
		sum += m[i][i]
	}
	return sum
}

func checkAligned(yTrue, yPred []int) error {
	if len(yTrue) == 0 {
		return errors.New("no samples to evaluate")
	}
	if len(yTrue) != len(yPred) {
		return fmt.Errorf("got %d true labels and %d predictions", len(yTrue), len(yPred))
	}
	return nil
}
