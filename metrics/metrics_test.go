package metrics

import (
	"encoding/json"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestConfusionMatrix(t *testing.T) {
	yTrue := []int{0, 0, 1, 1, 2, 2, 2}
	yPred := []int{0, 1, 1, 1, 2, 0, 2}
	cm, err := ConfusionMatrix(yTrue, yPred, 3)
	require.NoError(t, err)
	want := [][]int{
		{1, 1, 0},
		{0, 2, 0},
		{1, 0, 2},
	}
	if diff := cmp.Diff(want, cm); diff != "" {
		t.Errorf("confusion matrix mismatch (-want +got):\n%s", diff)
	}

	acc, err := Accuracy(yTrue, yPred)
	require.NoError(t, err)
	require.InDelta(t, 5.0/7.0, acc, 1e-12)
	require.Equal(t, int(math.Round(acc*float64(len(yTrue)))), Trace(cm))

	_, err = ConfusionMatrix([]int{0, 3}, []int{0, 1}, 3)
	require.Error(t, err)
	_, err = Accuracy([]int{0}, []int{0, 1})
	require.Error(t, err)
	_, err = Accuracy(nil, nil)
	require.Error(t, err)
}

func TestClassificationReport(t *testing.T) {
	t.Run("zero division", func(t *testing.T) {
		report, err := ClassificationReport([][]int{{2, 0}, {1, 0}}, []string{"a", "b"})
		require.NoError(t, err)
		a, b := report.Classes[0], report.Classes[1]
		require.InDelta(t, 2.0/3.0, a.Precision, 1e-12)
		require.InDelta(t, 1.0, a.Recall, 1e-12)
		require.InDelta(t, 0.8, a.F1, 1e-12)
		require.Equal(t, 2, a.Support)
		require.Zero(t, b.Precision)
		require.Zero(t, b.Recall)
		require.Zero(t, b.F1)
		require.Equal(t, 1, b.Support)

		require.Equal(t, 3, report.Total)
		require.InDelta(t, 2.0/3.0, report.Accuracy, 1e-12)
		require.InDelta(t, 1.0/3.0, report.MacroAvg.Precision, 1e-12)
		require.InDelta(t, 4.0/9.0, report.WeightedAvg.Precision, 1e-12)
	})
	t.Run("class missing from truth and predictions", func(t *testing.T) {
		report, err := ClassificationReport([][]int{{2, 0, 0}, {1, 1, 0}, {0, 0, 0}}, []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, report.Classes, 2)
		require.Equal(t, "b", report.Classes[1].Label)
		// precision a=2/3, b=1; recall a=1, b=1/2
		require.InDelta(t, (2.0/3.0+1.0)/2, report.MacroAvg.Precision, 1e-12)
		require.InDelta(t, 0.75, report.MacroAvg.Recall, 1e-12)
		require.Equal(t, 4, report.MacroAvg.Support)
	})
	t.Run("predicted class without support stays in the table", func(t *testing.T) {
		report, err := ClassificationReport([][]int{{1, 1, 0}, {0, 2, 0}, {0, 0, 0}}, []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, report.Classes, 2)

		report, err = ClassificationReport([][]int{{1, 0, 1}, {0, 2, 0}, {0, 0, 0}}, []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, report.Classes, 3)
		require.Zero(t, report.Classes[2].Support)
		require.Zero(t, report.Classes[2].Precision)
	})
	t.Run("label count mismatch", func(t *testing.T) {
		_, err := ClassificationReport([][]int{{1}}, []string{"a", "b"})
		require.Error(t, err)
	})
	t.Run("text table", func(t *testing.T) {
		report, err := ClassificationReport([][]int{{3, 1}, {0, 4}}, []string{"cat", "dog"})
		require.NoError(t, err)
		text := report.String()
		for _, want := range []string{"precision", "recall", "f1-score", "support", "cat", "dog", "accuracy", "macro avg", "weighted avg"} {
			require.True(t, strings.Contains(text, want), "report is missing %q:\n%s", want, text)
		}
	})
}

func TestROCCurve(t *testing.T) {
	t.Run("distinct scores", func(t *testing.T) {
		curve, err := ROCCurve([]int{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8})
		require.NoError(t, err)
		if diff := cmp.Diff([]float64{0, 0, 0.5, 0.5, 1}, curve.FPR); diff != "" {
			t.Errorf("fpr mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]float64{0, 0.5, 0.5, 1, 1}, curve.TPR); diff != "" {
			t.Errorf("tpr mismatch (-want +got):\n%s", diff)
		}
		require.True(t, math.IsInf(curve.Thresholds[0], 1))
		require.Equal(t, []float64{0.8, 0.4, 0.35, 0.1}, curve.Thresholds[1:])

		auc, err := AUC(curve.FPR, curve.TPR)
		require.NoError(t, err)
		require.InDelta(t, 0.75, auc, 1e-12)
	})
	t.Run("tied scores share a point", func(t *testing.T) {
		curve, err := ROCCurve([]int{1, 0, 1, 0}, []float64{0.5, 0.5, 0.9, 0.1})
		require.NoError(t, err)
		require.Equal(t, []float64{0, 0, 0.5, 1}, curve.FPR)
		require.Equal(t, []float64{0, 0.5, 1, 1}, curve.TPR)
		auc, err := AUC(curve.FPR, curve.TPR)
		require.NoError(t, err)
		require.InDelta(t, 0.875, auc, 1e-12)
	})
	t.Run("length mismatch", func(t *testing.T) {
		_, err := ROCCurve([]int{1}, []float64{0.5, 0.5})
		require.Error(t, err)
	})
}

func TestAUC(t *testing.T) {
	t.Run("perfect", func(t *testing.T) {
		curve, err := ROCCurve([]int{0, 0, 0, 1, 1}, []float64{0.1, 0.2, 0.3, 0.8, 0.9})
		require.NoError(t, err)
		auc, err := AUC(curve.FPR, curve.TPR)
		require.NoError(t, err)
		require.InDelta(t, 1.0, auc, 1e-12)
	})
	t.Run("random scores", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		n := 4000
		truth := make([]int, n)
		scores := make([]float64, n)
		for i := range truth {
			truth[i] = rng.Intn(2)
			scores[i] = rng.Float64()
		}
		curve, err := ROCCurve(truth, scores)
		require.NoError(t, err)
		auc, err := AUC(curve.FPR, curve.TPR)
		require.NoError(t, err)
		require.InDelta(t, 0.5, auc, 0.05)
	})
	t.Run("decreasing x", func(t *testing.T) {
		auc, err := AUC([]float64{1, 0.5, 0}, []float64{1, 1, 1})
		require.NoError(t, err)
		require.InDelta(t, 1.0, auc, 1e-12)
	})
	t.Run("non monotonic x", func(t *testing.T) {
		_, err := AUC([]float64{0, 1, 0.5}, []float64{0, 1, 1})
		require.Error(t, err)
	})
	t.Run("too few points", func(t *testing.T) {
		_, err := AUC([]float64{0}, []float64{0})
		require.Error(t, err)
	})
}

func TestROCPerClass(t *testing.T) {
	labels := []string{"cat", "dog", "fox"}
	yTrue := []int{0, 1, 0, 1}
	prob := [][]float64{
		{0.8, 0.1, 0.1},
		{0.2, 0.7, 0.1},
		{0.6, 0.3, 0.1},
		{0.3, 0.4, 0.3},
	}
	rocs, err := ROCPerClass(yTrue, prob, labels)
	require.NoError(t, err)
	require.Len(t, rocs, 3)

	require.True(t, rocs[0].Defined)
	require.Equal(t, 1.0, rocs[0].AUC)
	require.True(t, rocs[1].Defined)
	require.Equal(t, 1.0, rocs[1].AUC)

	// no fox in the test split
	require.False(t, rocs[2].Defined)
	require.True(t, math.IsNaN(rocs[2].AUC))

	b, err := json.Marshal(rocs[2])
	require.NoError(t, err)
	require.JSONEq(t, `{"class":2,"label":"fox","auc":null}`, string(b))

	b, err = json.Marshal(rocs[0])
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, 1.0, decoded["auc"])
	require.Len(t, decoded["thresholds"], len(rocs[0].Curve.Thresholds)-1)

	_, err = ROCPerClass(yTrue, prob[:2], labels)
	require.Error(t, err)
	_, err = ROCPerClass(yTrue, [][]float64{{1, 0}, {0, 1}, {1, 0}, {0, 1}}, labels)
	require.Error(t, err)
}

func TestBinarize(t *testing.T) {
	onehot, err := Binarize([]int{2, 0}, 3)
	require.NoError(t, err)
	require.Equal(t, [][]int{{0, 0, 1}, {1, 0, 0}}, onehot)
	_, err = Binarize([]int{3}, 3)
	require.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	labels := []string{"a", "b"}
	yTrue := []int{0, 0, 1, 1, 1}
	prob := [][]float64{
		{0.9, 0.1},
		{0.4, 0.6},
		{0.2, 0.8},
		{0.3, 0.7},
		{0.6, 0.4},
	}
	yPred := []int{0, 1, 1, 1, 0}
	res, err := Evaluate(yTrue, yPred, prob, labels)
	require.NoError(t, err)
	require.InDelta(t, 0.6, res.Accuracy, 1e-12)
	require.Equal(t, 3, Trace(res.Confusion))
	require.Equal(t, labels, res.Labels)
	require.Len(t, res.ROC, 2)
	require.InDelta(t, res.ROC[0].AUC, res.ROC[1].AUC, 1e-12)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	require.True(t, json.Valid(b))

	_, err = Evaluate(yTrue, yPred, prob, nil)
	require.Error(t, err)
}
