package report

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"imwithroc.com/ensemble/metrics"
)

// confusionGrid lays the matrix out with true class 0 on the top row.
type confusionGrid struct {
	m [][]int
}

func (g confusionGrid) Dims() (c, r int) {
	return len(g.m), len(g.m)
}

func (g confusionGrid) Z(c, r int) float64 {
	return float64(g.m[len(g.m)-1-r][c])
}

func (g confusionGrid) X(c int) float64 {
	return float64(c)
}

func (g confusionGrid) Y(r int) float64 {
	return float64(r)
}

type blues []color.Color

func (b blues) Colors() []color.Color {
	return b
}

func newBlues(n int) palette.Palette {
	out := make(blues, n)
	for i := range out {
		t := float64(i) / float64(max(n-1, 1))
		out[i] = color.RGBA{
			R: uint8(247 - t*(247-8)),
			G: uint8(251 - t*(251-48)),
			B: uint8(255 - t*(255-107)),
			A: 255,
		}
	}
	return out
}

// ConfusionMatrixPlot renders the matrix as an annotated heat map with class names on both
// axes, as PNG.
func ConfusionMatrixPlot(res *metrics.Result, size vg.Length) ([]byte, error) {
	k := len(res.Confusion)
	if k == 0 {
		return nil, fmt.Errorf("empty confusion matrix")
	}
	p := plot.New()
	p.Title.Text = "Confusion Matrix"
	p.X.Label.Text = "Predicted"
	p.Y.Label.Text = "True"

	grid := confusionGrid{m: res.Confusion}
	hm := plotter.NewHeatMap(grid, newBlues(64))
	peak := 0.0
	for _, row := range res.Confusion {
		for _, v := range row {
			if float64(v) > peak {
				peak = float64(v)
			}
		}
	}
	hm.Min, hm.Max = 0, peak
	if peak == 0 {
		hm.Max = 1
	}
	p.Add(hm)

	var xys plotter.XYs
	var texts []string
	for r := 0; r < k; r++ {
		for c := 0; c < k; c++ {
			xys = append(xys, plotter.XY{X: float64(c), Y: float64(r)})
			texts = append(texts, fmt.Sprint(grid.Z(c, r)))
		}
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: texts})
	if err != nil {
		return nil, err
	}
	p.Add(labels)

	xTicks := make([]plot.Tick, k)
	yTicks := make([]plot.Tick, k)
	for i, name := range res.Labels {
		xTicks[i] = plot.Tick{Value: float64(i), Label: name}
		yTicks[i] = plot.Tick{Value: float64(k - 1 - i), Label: name}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xTicks)
	p.Y.Tick.Marker = plot.ConstantTicks(yTicks)
	p.X.Min, p.X.Max = -0.5, float64(k)-0.5
	p.Y.Min, p.Y.Max = -0.5, float64(k)-0.5
	return render(p, size)
}

// ROCPlot draws every defined one-vs-rest curve with the chance diagonal.
func ROCPlot(res *metrics.Result, size vg.Length) ([]byte, error) {
	p := plot.New()
	p.Title.Text = "Receiver Operating Characteristic (ROC) Curve"
	p.X.Label.Text = "False Positive Rate"
	p.Y.Label.Text = "True Positive Rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1.05

	for i, roc := range res.ROC {
		if !roc.Defined {
			continue
		}
		pts := make(plotter.XYs, len(roc.Curve.FPR))
		for j := range pts {
			pts[j] = plotter.XY{X: roc.Curve.FPR[j], Y: roc.Curve.TPR[j]}
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		l.LineStyle.Color = plotutil.Color(i)
		l.LineStyle.Width = vg.Points(2)
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("ROC curve for class %s (area = %0.2f)", roc.Label, roc.AUC), l)
	}

	chance, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return nil, err
	}
	chance.LineStyle.Color = color.Black
	chance.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(chance)
	// lower right
	p.Legend.Top = false
	p.Legend.Left = false
	return render(p, size)
}

func render(p *plot.Plot, size vg.Length) ([]byte, error) {
	w, err := p.WriterTo(size, size, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
