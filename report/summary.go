package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"imwithroc.com/ensemble/metrics"
	"imwithroc.com/ensemble/ml"
	"imwithroc.com/ensemble/pipeline"
)

type TrialSummary struct {
	Params     string    `json:"params"`
	FoldScores []float64 `json:"fold_scores"`
	MeanScore  float64   `json:"mean_score"`
}

type SampleCounts struct {
	Found   int `json:"found"`
	Kept    int `json:"kept"`
	Skipped int `json:"skipped"`
	Train   int `json:"train"`
	Test    int `json:"test"`
}

// Summary is everything reported about one evaluated run.
type Summary struct {
	Config         string          `json:"config"`
	Classes        []string        `json:"classes"`
	Samples        SampleCounts    `json:"samples"`
	TunedModel     string          `json:"tuned_model"`
	BestParams     ml.Params       `json:"best_params"`
	BestCVAccuracy float64         `json:"best_cv_accuracy"`
	Trials         []TrialSummary  `json:"trials"`
	Evaluation     *metrics.Result `json:"evaluation"`
}

func NewSummary(c *pipeline.Context) (*Summary, error) {
	if c.Stage() != pipeline.StageEvaluated {
		return nil, &ml.FitStateError{Component: "report", Reason: fmt.Sprintf("context is at stage %s", c.Stage())}
	}
	s := &Summary{
		Config:  c.Config.Name,
		Classes: c.Encoder.Classes(),
		Samples: SampleCounts{
			Found:   c.Stats.Total,
			Kept:    c.Stats.Kept,
			Skipped: c.Stats.Skipped,
			Train:   len(c.TrainIdx),
			Test:    len(c.TestIdx),
		},
		TunedModel:     c.Config.Tuning.Classifier,
		BestParams:     c.Search.BestParams,
		BestCVAccuracy: c.Search.BestScore,
		Evaluation:     c.Evaluation,
	}
	for _, trial := range c.Search.Trials {
		s.Trials = append(s.Trials, TrialSummary{
			Params:     trial.Params.String(),
			FoldScores: trial.FoldScores,
			MeanScore:  trial.MeanScore,
		})
	}
	return s, nil
}

func (s *Summary) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Text renders the human readable report.
func (s *Summary) Text() string {
	var sb strings.Builder
	ev := s.Evaluation
	fmt.Fprintf(&sb, "Images: %d found, %d kept, %d skipped (train %d, test %d)\n",
		s.Samples.Found, s.Samples.Kept, s.Samples.Skipped, s.Samples.Train, s.Samples.Test)
	fmt.Fprintf(&sb, "Best %s Parameters: %s (cv accuracy %.4f)\n", strings.ToUpper(s.TunedModel), s.BestParams, s.BestCVAccuracy)
	fmt.Fprintf(&sb, "Ensemble Model Accuracy: %.2f%%\n", ev.Accuracy*100)
	sb.WriteString("\nClassification Report:\n")
	sb.WriteString(ev.Report.String())
	sb.WriteString("\nConfusion Matrix (rows: true, columns: predicted):\n")
	writeMatrix(&sb, ev.Labels, ev.Confusion)
	sb.WriteString("\nROC AUC (one vs rest):\n")
	for _, roc := range ev.ROC {
		if roc.Defined {
			fmt.Fprintf(&sb, "  %s: %.2f\n", roc.Label, roc.AUC)
		} else {
			fmt.Fprintf(&sb, "  %s: undefined, test split lacks positive or negative samples\n", roc.Label)
		}
	}
	return sb.String()
}

func writeMatrix(sb *strings.Builder, labels []string, m [][]int) {
	width := 0
	for _, l := range labels {
		if len(l) > width {
			width = len(l)
		}
	}
	for _, row := range m {
		for _, v := range row {
			if n := len(fmt.Sprint(v)); n > width {
				width = n
			}
		}
	}
	fmt.Fprintf(sb, "%*s", width, "")
	for _, l := range labels {
		fmt.Fprintf(sb, " %*s", width, l)
	}
	sb.WriteString("\n")
	for i, row := range m {
		fmt.Fprintf(sb, "%*s", width, labels[i])
		for _, v := range row {
			fmt.Fprintf(sb, " %*d", width, v)
		}
		sb.WriteString("\n")
	}
}
