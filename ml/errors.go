package ml

import "fmt"

// InputError is returned when an image cannot be read, decoded or resized.
// It is the only error the pipeline recovers from: the sample is dropped.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %q: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// UnknownLabelError is returned when a label (or class index) was not seen during fit.
type UnknownLabelError struct {
	Label string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("unknown label %q", e.Label)
}

// NotTrainedError is returned when a model is asked for predictions before training.
type NotTrainedError struct {
	Model string
}

func (e *NotTrainedError) Error() string {
	return fmt.Sprintf("%s is not trained", e.Model)
}

// FitStateError is returned on a refit of fit-once state, or a transform before fit.
type FitStateError struct {
	Component string
	Reason    string
}

func (e *FitStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Component, e.Reason)
}

// DimensionError is returned when a feature vector does not have the expected width.
type DimensionError struct {
	Expected int
	Got      int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("feature dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

func checkWidth(x [][]float64, dim int) error {
	for _, row := range x {
		if len(row) != dim {
			return &DimensionError{Expected: dim, Got: len(row)}
		}
	}
	return nil
}
