package report

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gonum.org/v1/plot/vg"
)

const (
	TextReportName      = "report.txt"
	SummaryName         = "summary.json"
	ConfusionMatrixName = "confusion_matrix.png"
	ROCName             = "roc.png"
)

type Artifact struct {
	Name        string
	ContentType string
	Body        []byte
}

// Artifacts renders the text report, the JSON summary and, unless skipPlots, both plots.
// A plot that fails to render is logged and left out; it never fails the run.
func Artifacts(s *Summary, plotSize float64, skipPlots bool, logger *zerolog.Logger) ([]Artifact, error) {
	summary, err := s.JSON()
	if err != nil {
		return nil, fmt.Errorf("encoding summary: %w", err)
	}
	out := []Artifact{
		{Name: TextReportName, ContentType: "text/plain; charset=utf-8", Body: []byte(s.Text())},
		{Name: SummaryName, ContentType: "application/json", Body: summary},
	}
	if skipPlots {
		return out, nil
	}
	size := vg.Length(plotSize) * vg.Inch
	plots := []struct {
		name   string
		render func() ([]byte, error)
	}{
		{ConfusionMatrixName, func() ([]byte, error) { return ConfusionMatrixPlot(s.Evaluation, size) }},
		{ROCName, func() ([]byte, error) { return ROCPlot(s.Evaluation, size) }},
	}
	for _, pl := range plots {
		body, err := pl.render()
		if err != nil {
			logger.Err(err).Str("plot", pl.name).Msg("Failed to render plot")
			continue
		}
		out = append(out, Artifact{Name: pl.name, ContentType: "image/png", Body: body})
	}
	return out, nil
}

func WriteDir(fs afero.Fs, dir string, artifacts []Artifact) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, a := range artifacts {
		if err := afero.WriteFile(fs, filepath.Join(dir, a.Name), a.Body, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", a.Name, err)
		}
	}
	return nil
}
