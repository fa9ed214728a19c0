package ml

import (
	"errors"
	"fmt"
)

// Member is one named constituent of an Ensemble. Trained members (e.g. the winner of a
// grid search) are reused as they are when the ensemble is fitted.
type Member struct {
	Name       string
	Classifier Classifier
	Trained    bool
	Weight     float64
}

// Ensemble averages the probability distributions of its members (soft voting).
type Ensemble struct {
	members []Member
	k       int
	trained bool
}

func NewEnsemble(members ...Member) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, errors.New("ensemble needs at least one member")
	}
	ms := make([]Member, len(members))
	for i, m := range members {
		if m.Classifier == nil {
			return nil, fmt.Errorf("ensemble member %q has no classifier", m.Name)
		}
		if m.Weight < 0 {
			return nil, fmt.Errorf("ensemble member %q has negative weight", m.Name)
		}
		if m.Weight == 0 {
			m.Weight = 1
		}
		ms[i] = m
	}
	return &Ensemble{members: ms}, nil
}

func (e *Ensemble) Name() string {
	return "soft voting ensemble"
}

func (e *Ensemble) Trained() bool {
	return e.trained
}

func (e *Ensemble) Members() []Member {
	out := make([]Member, len(e.members))
	copy(out, e.members)
	return out
}

// Fit trains every member that is not trained yet. The ensemble becomes trained only if all
// of them succeed.
func (e *Ensemble) Fit(x [][]float64, y []int, k int) error {
	if e.trained {
		return &FitStateError{Component: "ensemble", Reason: "already trained"}
	}
	if err := ValidateTrainingSet(x, y, k); err != nil {
		return err
	}
	for _, m := range e.members {
		if m.Trained {
			continue
		}
		if err := m.Classifier.Fit(x, y, k); err != nil {
			return fmt.Errorf("training ensemble member %s: %w", m.Name, err)
		}
	}
	for i := range e.members {
		e.members[i].Trained = true
	}
	e.k = k
	e.trained = true
	return nil
}

func (e *Ensemble) PredictProba(x [][]float64) ([][]float64, error) {
	if !e.trained {
		return nil, &NotTrainedError{Model: e.Name()}
	}
	out := make([][]float64, len(x))
	for i := range out {
		out[i] = make([]float64, e.k)
	}
	totalWeight := 0.0
	for _, m := range e.members {
		prob, err := m.Classifier.PredictProba(x)
		if err != nil {
			return nil, fmt.Errorf("ensemble member %s: %w", m.Name, err)
		}
		if len(prob) != len(x) {
			return nil, fmt.Errorf("ensemble member %s returned %d rows for %d samples", m.Name, len(prob), len(x))
		}
		for i, row := range prob {
			if len(row) != e.k {
				return nil, fmt.Errorf("ensemble member %s returned %d classes, expected %d", m.Name, len(row), e.k)
			}
			for c, p := range row {
				out[i][c] += m.Weight * p
			}
		}
		totalWeight += m.Weight
	}
	for _, row := range out {
		for c := range row {
			row[c] /= totalWeight
		}
	}
	return out, nil
}

func (e *Ensemble) Predict(x [][]float64) ([]int, error) {
	if !e.trained {
		return nil, &NotTrainedError{Model: e.Name()}
	}
	prob, err := e.PredictProba(x)
	if err != nil {
		return nil, err
	}
	return ArgmaxRows(prob), nil
}
