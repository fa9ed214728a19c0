package metrics

import (
	"fmt"
)

// Result bundles every metric computed on a test split.
type Result struct {
	Accuracy  float64    `json:"accuracy"`
	Labels    []string   `json:"labels"`
	Confusion [][]int    `json:"confusion_matrix"`
	Report    *Report    `json:"classification_report"`
	ROC       []ClassROC `json:"roc"`
}

// Evaluate scores hard predictions and class probabilities against the truth. prob rows are
// indexed by class in the order of labels.
func Evaluate(yTrue, yPred []int, prob [][]float64, labels []string) (*Result, error) {
	k := len(labels)
	if k == 0 {
		return nil, fmt.Errorf("no class labels to evaluate against")
	}
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	cm, err := ConfusionMatrix(yTrue, yPred, k)
	if err != nil {
		return nil, err
	}
	report, err := ClassificationReport(cm, labels)
	if err != nil {
		return nil, err
	}
	roc, err := ROCPerClass(yTrue, prob, labels)
	if err != nil {
		return nil, fmt.Errorf("computing ROC curves: %w", err)
	}
	return &Result{
		Accuracy:  acc,
		Labels:    append([]string(nil), labels...),
		Confusion: cm,
		Report:    report,
		ROC:       roc,
	}, nil
}
