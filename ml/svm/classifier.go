package svm

import (
	"fmt"

	"imwithroc.com/ensemble/ml"
)

// Classifier adapts Train/Predict to ml.Classifier.
type Classifier struct {
	Param Parameter
	model *Model
	k     int
	dim   int
}

// New builds an SVM from configuration params: C, kernel, gamma ("scale" or a number),
// degree, coef0, tol, probability_folds and seed.
func New(params ml.Params) (ml.Classifier, error) {
	return NewClassifier(params)
}

func NewClassifier(params ml.Params) (*Classifier, error) {
	p := DefaultParameter()
	var err error
	if p.C, err = params.Float("C", p.C); err != nil {
		return nil, err
	}
	kernel, err := params.Text("kernel", "rbf")
	if err != nil {
		return nil, err
	}
	if p.KernelType, err = KernelTypeFromName(kernel); err != nil {
		return nil, err
	}
	if g, ok := params["gamma"].(string); ok {
		if g != "scale" {
			return nil, fmt.Errorf("parameter gamma: unknown value %q", g)
		}
	} else if p.Gamma, err = params.Float("gamma", 0); err != nil {
		return nil, err
	}
	if p.Degree, err = params.Int("degree", p.Degree); err != nil {
		return nil, err
	}
	if p.Coef0, err = params.Float("coef0", p.Coef0); err != nil {
		return nil, err
	}
	if p.Eps, err = params.Float("tol", p.Eps); err != nil {
		return nil, err
	}
	if p.Probability, err = params.Int("probability_folds", p.Probability); err != nil {
		return nil, err
	}
	if p.Probability == 0 {
		return nil, fmt.Errorf("svm needs probability estimates for soft voting")
	}
	seed, err := params.Int("seed", 0)
	if err != nil {
		return nil, err
	}
	p.Seed = int64(seed)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{Param: p}, nil
}

func (c *Classifier) Name() string {
	return "svm"
}

func (c *Classifier) Model() *Model {
	return c.model
}

func (c *Classifier) Fit(x [][]float64, y []int, k int) error {
	if err := ml.ValidateTrainingSet(x, y, k); err != nil {
		return err
	}
	model, err := Train(x, y, c.Param)
	if err != nil {
		return err
	}
	c.model = model
	c.k = k
	c.dim = len(x[0])
	return nil
}

func (c *Classifier) PredictProba(x [][]float64) ([][]float64, error) {
	if c.model == nil {
		return nil, &ml.NotTrainedError{Model: c.Name()}
	}
	if err := ml.CheckWidth(x, c.dim); err != nil {
		return nil, err
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		probs := PredictProbability(c.model, row)
		dist := make([]float64, c.k)
		for j, label := range c.model.Label {
			dist[label] = probs[j]
		}
		out[i] = dist
	}
	return out, nil
}

// Predict returns the one-vs-one vote winners.
func (c *Classifier) Predict(x [][]float64) ([]int, error) {
	if c.model == nil {
		return nil, &ml.NotTrainedError{Model: c.Name()}
	}
	if err := ml.CheckWidth(x, c.dim); err != nil {
		return nil, err
	}
	out := make([]int, len(x))
	for i, row := range x {
		out[i] = Predict(c.model, row)
	}
	return out, nil
}
