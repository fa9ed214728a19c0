package worker

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"imwithroc.com/ensemble/extract"
	"imwithroc.com/ensemble/logger"
	"imwithroc.com/ensemble/pipeline"
	"imwithroc.com/ensemble/report"
	"imwithroc.com/ensemble/types"
)

// Outcome is what a finished training run leaves behind.
type Outcome struct {
	Summary   *report.Summary
	Artifacts []report.Artifact
}

// Trainer runs the whole pipeline for one job message.
type Trainer func(ctx context.Context, message *Message) (*Outcome, error)

// NewTrainer returns a Trainer resolving message configs by name among configs. An empty
// name selects the built-in default configuration. cache may be nil.
func NewTrainer(configs []types.Configuration, fs afero.Fs, cache extract.VectorCache) Trainer {
	byName := make(map[string]types.Configuration, len(configs))
	for _, cfg := range configs {
		byName[cfg.Name] = cfg
	}
	trainerLogger := logger.NewLogger("Trainer")
	return func(ctx context.Context, message *Message) (*Outcome, error) {
		cfg, ok := byName[message.Config]
		if !ok {
			if message.Config != "" {
				return nil, fmt.Errorf("unknown configuration %q", message.Config)
			}
			cfg = types.DefaultConfiguration()
		}
		jobLogger := trainerLogger.With().
			Str("job_id", message.JobID).
			Str("config", cfg.Name).
			Logger()

		extractor, err := pipeline.NewExtractor(cfg, fs, cache)
		if err != nil {
			return nil, err
		}
		c, err := pipeline.NewContext(cfg, fs, extractor).WithLogger(jobLogger).RunAll(ctx, message.CorpusRoot)
		if err != nil {
			return nil, err
		}
		summary, err := report.NewSummary(c)
		if err != nil {
			return nil, err
		}
		artifacts, err := report.Artifacts(summary, cfg.Report.PlotSize, cfg.Report.SkipPlots, &jobLogger)
		if err != nil {
			return nil, err
		}
		return &Outcome{Summary: summary, Artifacts: artifacts}, nil
	}
}
