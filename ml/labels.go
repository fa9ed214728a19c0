package ml

import (
	"sort"
	"strconv"
)

// LabelEncoder maps raw labels to dense indices in [0, K), in sorted label order.
// It can be fitted once; afterwards it is read-only.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

func (le *LabelEncoder) Fit(labels []string) error {
	if le.index != nil {
		return &FitStateError{Component: "label encoder", Reason: "already fitted"}
	}
	if len(labels) == 0 {
		return &FitStateError{Component: "label encoder", Reason: "no labels to fit"}
	}
	index := make(map[string]int)
	for _, l := range labels {
		index[l] = 0
	}
	classes := make([]string, 0, len(index))
	for l := range index {
		classes = append(classes, l)
	}
	sort.Strings(classes)
	for i, l := range classes {
		index[l] = i
	}
	le.classes = classes
	le.index = index
	return nil
}

func (le *LabelEncoder) Fitted() bool {
	return le.index != nil
}

func (le *LabelEncoder) Transform(labels []string) ([]int, error) {
	if le.index == nil {
		return nil, &FitStateError{Component: "label encoder", Reason: "transform before fit"}
	}
	out := make([]int, len(labels))
	for i, l := range labels {
		idx, ok := le.index[l]
		if !ok {
			return nil, &UnknownLabelError{Label: l}
		}
		out[i] = idx
	}
	return out, nil
}

func (le *LabelEncoder) InverseTransform(indices []int) ([]string, error) {
	if le.index == nil {
		return nil, &FitStateError{Component: "label encoder", Reason: "inverse transform before fit"}
	}
	out := make([]string, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(le.classes) {
			return nil, &UnknownLabelError{Label: strconv.Itoa(idx)}
		}
		out[i] = le.classes[idx]
	}
	return out, nil
}

// Classes returns a copy of the labels ordered by index.
func (le *LabelEncoder) Classes() []string {
	out := make([]string, len(le.classes))
	copy(out, le.classes)
	return out
}

func (le *LabelEncoder) Len() int {
	return len(le.classes)
}
