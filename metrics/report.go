package metrics

import (
	"fmt"
	"strings"
)

type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// Report is the per-class precision/recall/F1 table with its averages. Ratios with a zero
// denominator are reported as 0. Classes that neither occur in the truth nor get predicted
// are left out of the table and of the averages.
type Report struct {
	Classes     []ClassMetrics `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	Total       int            `json:"total"`
}

func ClassificationReport(confusion [][]int, labels []string) (*Report, error) {
	k := len(confusion)
	if len(labels) != k {
		return nil, fmt.Errorf("got %d labels for %d classes", len(labels), k)
	}
	report := &Report{Classes: make([]ClassMetrics, 0, k)}
	total := 0
	for i := 0; i < k; i++ {
		tp, fp, fn := confusion[i][i], 0, 0
		for j := 0; j < k; j++ {
			if j == i {
				continue
			}
			fp += confusion[j][i]
			fn += confusion[i][j]
		}
		if tp+fp+fn == 0 {
			continue
		}
		precision := ratio(tp, tp+fp)
		recall := ratio(tp, tp+fn)
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		support := tp + fn
		total += support
		report.Classes = append(report.Classes, ClassMetrics{
			Label:     labels[i],
			Precision: precision,
			Recall:    recall,
			F1:        f1,
			Support:   support,
		})
	}
	report.Total = total
	report.Accuracy = ratio(Trace(confusion), total)

	macro := ClassMetrics{Label: "macro avg", Support: total}
	weighted := ClassMetrics{Label: "weighted avg", Support: total}
	present := float64(len(report.Classes))
	for _, c := range report.Classes {
		macro.Precision += c.Precision / present
		macro.Recall += c.Recall / present
		macro.F1 += c.F1 / present
		if total > 0 {
			w := float64(c.Support) / float64(total)
			weighted.Precision += c.Precision * w
			weighted.Recall += c.Recall * w
			weighted.F1 += c.F1 * w
		}
	}
	report.MacroAvg = macro
	report.WeightedAvg = weighted
	return report, nil
}

// String renders the report as a fixed-width table.
func (r *Report) String() string {
	width := len("weighted avg")
	for _, c := range r.Classes {
		if len(c.Label) > width {
			width = len(c.Label)
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for _, c := range r.Classes {
		fmt.Fprintf(&sb, "%*s %9.2f %9.2f %9.2f %9d\n", width, c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.Total)
	for _, c := range []ClassMetrics{r.MacroAvg, r.WeightedAvg} {
		fmt.Fprintf(&sb, "%*s %9.2f %9.2f %9.2f %9d\n", width, c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	return sb.String()
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
