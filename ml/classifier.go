package ml

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Classifier is the capability every ensemble member provides: training on dense rows with
// labels in [0, k), and class-probability distributions over those k classes.
type Classifier interface {
	Name() string
	Fit(x [][]float64, y []int, k int) error
	PredictProba(x [][]float64) ([][]float64, error)
}

// Params are classifier hyperparameters by name.
type Params map[string]interface{}

// Factory builds an untrained classifier from hyperparameters.
type Factory func(params Params) (Classifier, error)

// Merge returns a copy of p with every entry of other set on top.
func (p Params) Merge(other Params) Params {
	out := make(Params, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (p Params) Float(name string, def float64) (float64, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	}
	return 0, fmt.Errorf("parameter %s: expected a number, got %T", name, v)
}

func (p Params) Int(name string, def int) (int, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		if val != float64(int(val)) {
			return 0, fmt.Errorf("parameter %s: expected an integer, got %v", name, val)
		}
		return int(val), nil
	}
	return 0, fmt.Errorf("parameter %s: expected an integer, got %T", name, v)
}

func (p Params) Text(name string, def string) (string, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s: expected a string, got %T", name, v)
	}
	return s, nil
}

func (p Params) Bool(name string, def bool) (bool, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %s: expected a bool, got %T", name, v)
	}
	return b, nil
}

// Argmax returns the index of the largest value, the lowest index on ties.
func Argmax(row []float64) int {
	return floats.MaxIdx(row)
}

// LabelPredictor is implemented by classifiers whose hard decision is not the argmax of
// their probabilities (one-vs-one SVM votes).
type LabelPredictor interface {
	Predict(x [][]float64) ([]int, error)
}

// PredictLabels returns hard predictions, from Predict when the classifier has its own
// decision rule and from the argmax of each probability row otherwise.
func PredictLabels(c Classifier, x [][]float64) ([]int, error) {
	if lp, ok := c.(LabelPredictor); ok {
		return lp.Predict(x)
	}
	prob, err := c.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return ArgmaxRows(prob), nil
}

func ArgmaxRows(prob [][]float64) []int {
	out := make([]int, len(prob))
	for i, row := range prob {
		out[i] = Argmax(row)
	}
	return out
}

// ValidateTrainingSet checks the shared preconditions of Fit.
func ValidateTrainingSet(x [][]float64, y []int, k int) error {
	if len(x) == 0 {
		return fmt.Errorf("empty training set")
	}
	if len(x) != len(y) {
		return fmt.Errorf("got %d rows and %d labels", len(x), len(y))
	}
	if err := checkWidth(x, len(x[0])); err != nil {
		return err
	}
	for _, c := range y {
		if c < 0 || c >= k {
			return fmt.Errorf("label %d outside [0, %d)", c, k)
		}
	}
	return nil
}

// CheckWidth reports a DimensionError for the first row whose width is not dim.
func CheckWidth(x [][]float64, dim int) error {
	return checkWidth(x, dim)
}
