package ml

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// StandardScaler standardizes every feature dimension with the mean and population
// standard deviation of the data it was fitted on. Dimensions with zero spread keep a
// divisor of 1, so they are only centered.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
	fit   bool
}

func (s *StandardScaler) Fit(x [][]float64) error {
	if s.fit {
		return &FitStateError{Component: "scaler", Reason: "already fitted"}
	}
	if len(x) == 0 {
		return &FitStateError{Component: "scaler", Reason: "no rows to fit"}
	}
	dim := len(x[0])
	if err := checkWidth(x, dim); err != nil {
		return err
	}
	mean := make([]float64, dim)
	scale := make([]float64, dim)
	col := make([]float64, len(x))
	for j := 0; j < dim; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		m, err := stats.Mean(col)
		if err != nil {
			return fmt.Errorf("mean of dimension %d: %w", j, err)
		}
		sd, err := stats.StandardDeviationPopulation(col)
		if err != nil {
			return fmt.Errorf("standard deviation of dimension %d: %w", j, err)
		}
		if sd == 0 {
			sd = 1
		}
		mean[j] = m
		scale[j] = sd
	}
	s.Mean = mean
	s.Scale = scale
	s.fit = true
	return nil
}

func (s *StandardScaler) Fitted() bool {
	return s.fit
}

// Transform returns standardized copies of the rows.
func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	if !s.fit {
		return nil, &FitStateError{Component: "scaler", Reason: "transform before fit"}
	}
	if err := checkWidth(x, len(s.Mean)); err != nil {
		return nil, err
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = r
	}
	return out, nil
}
