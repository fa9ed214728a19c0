package pipeline

import (
	"context"

	"imwithroc.com/ensemble/ml"
)

type Prediction struct {
	Label         string             `json:"label"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Classify predicts the label of one encoded image with the fitted scaler and ensemble.
func (c *Context) Classify(ctx context.Context, name string, image []byte) (*Prediction, error) {
	if c.stage < StageEnsembled {
		return nil, &ml.NotTrainedError{Model: "pipeline"}
	}
	res := c.Extractor.ExtractBytes(ctx, name, image)
	if res.Err != nil {
		return nil, res.Err
	}
	x, err := c.Scaler.Transform([][]float64{res.Vector})
	if err != nil {
		return nil, err
	}
	prob, err := c.Model.PredictProba(x)
	if err != nil {
		return nil, err
	}
	classes := c.Encoder.Classes()
	labels, err := c.Encoder.InverseTransform([]int{ml.Argmax(prob[0])})
	if err != nil {
		return nil, err
	}
	out := &Prediction{Label: labels[0], Probabilities: make(map[string]float64, len(classes))}
	for i, p := range prob[0] {
		out.Probabilities[classes[i]] = p
	}
	return out, nil
}
