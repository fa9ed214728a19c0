package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"imwithroc.com/ensemble/corpus"
	"imwithroc.com/ensemble/extract"
	"imwithroc.com/ensemble/logger"
	"imwithroc.com/ensemble/metrics"
	"imwithroc.com/ensemble/ml"
	"imwithroc.com/ensemble/types"
)

type Stage int

const (
	StageNew Stage = iota
	StageExtracted
	StageEncoded
	StageSplit
	StageScaled
	StageTuned
	StageEnsembled
	StageEvaluated
)

var stageNames = [...]string{"new", "extracted", "encoded", "split", "scaled", "tuned", "ensembled", "evaluated"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Context carries everything one run fits. Stages must run in order: Extract, Encode, Split,
// Scale, Tune, Ensemble, Evaluate.
type Context struct {
	Config    types.Configuration
	Fs        afero.Fs
	Extractor *extract.Extractor

	Items   []ml.Item
	Dataset *ml.Dataset
	Stats   ml.BuildStats
	Encoder *ml.LabelEncoder
	Y       []int

	TrainIdx, TestIdx []int
	TrainX, TestX     [][]float64
	TrainY, TestY     []int

	Scaler *ml.StandardScaler
	Search *ml.SearchResult
	Model  *ml.Ensemble

	Predictions   []int
	Probabilities [][]float64
	Evaluation    *metrics.Result

	stage  Stage
	logger zerolog.Logger
}

func NewContext(cfg types.Configuration, fs afero.Fs, extractor *extract.Extractor) *Context {
	return &Context{
		Config:    cfg,
		Fs:        fs,
		Extractor: extractor,
		logger:    logger.NewLogger("Pipeline"),
	}
}

// WithLogger replaces the context logger.
func (c *Context) WithLogger(l zerolog.Logger) *Context {
	c.logger = l
	return c
}

func (c *Context) Stage() Stage {
	return c.stage
}

func (c *Context) require(stage Stage, op string) error {
	if c.stage != stage {
		return &ml.FitStateError{
			Component: "pipeline",
			Reason:    fmt.Sprintf("%s needs stage %s, context is at %s", op, stage, c.stage),
		}
	}
	return nil
}

// Extract walks root and embeds every image. Images that fail to load are logged and dropped.
func (c *Context) Extract(ctx context.Context, root string) error {
	if err := c.require(StageNew, "extract"); err != nil {
		return err
	}
	items, err := corpus.Walk(c.Fs, root)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no images found under %s", root)
	}
	c.logger.Info().
		Str("root", root).
		Int("images", len(items)).
		Interface("per_label", corpus.Counts(items)).
		Msg("Extracting features")

	results := c.Extractor.ExtractAll(ctx, items, c.Config.Extraction.Workers)
	ds, stats, err := ml.BuildDataset(items, results, &c.logger)
	if err != nil {
		return err
	}
	c.Items, c.Dataset, c.Stats = items, ds, stats
	c.stage = StageExtracted
	c.logger.Info().
		Int("kept", stats.Kept).
		Int("skipped", stats.Skipped).
		Int("dim", ds.Dim()).
		Msg("Features extracted")
	return nil
}

// Encode maps every label of the dataset to a class index.
func (c *Context) Encode() error {
	if err := c.require(StageExtracted, "encode"); err != nil {
		return err
	}
	enc := &ml.LabelEncoder{}
	if err := enc.Fit(c.Dataset.Labels()); err != nil {
		return err
	}
	y, err := enc.Transform(c.Dataset.Labels())
	if err != nil {
		return err
	}
	c.Encoder, c.Y = enc, y
	c.stage = StageEncoded
	c.logger.Info().Strs("classes", enc.Classes()).Msg("Labels encoded")
	return nil
}

func (c *Context) Split() error {
	if err := c.require(StageEncoded, "split"); err != nil {
		return err
	}
	train, test, err := ml.TrainTestSplit(c.Dataset.Len(), c.Config.TestFraction, c.Config.Seed)
	if err != nil {
		return err
	}
	c.TrainIdx, c.TestIdx = train, test
	c.TrainX = c.Dataset.Subset(train).Matrix()
	c.TestX = c.Dataset.Subset(test).Matrix()
	c.TrainY = pick(c.Y, train)
	c.TestY = pick(c.Y, test)
	c.stage = StageSplit
	c.logger.Info().Int("train", len(train)).Int("test", len(test)).Msg("Dataset split")
	return nil
}

// Scale standardizes both splits with statistics of the train split.
func (c *Context) Scale() error {
	if err := c.require(StageSplit, "scale"); err != nil {
		return err
	}
	scaler := &ml.StandardScaler{}
	if err := scaler.Fit(c.TrainX); err != nil {
		return err
	}
	trainX, err := scaler.Transform(c.TrainX)
	if err != nil {
		return err
	}
	testX, err := scaler.Transform(c.TestX)
	if err != nil {
		return err
	}
	c.Scaler, c.TrainX, c.TestX = scaler, trainX, testX
	c.stage = StageScaled
	return nil
}

func (c *Context) Tune() error {
	if err := c.require(StageScaled, "tune"); err != nil {
		return err
	}
	factory, err := FactoryFor(c.Config.Tuning.Classifier)
	if err != nil {
		return err
	}
	search := &ml.GridSearch{
		Factory: factory,
		Base:    ml.Params(c.Config.Tuning.Params),
		Grid:    ml.Grid(c.Config.Tuning.Grid),
		Folds:   c.Config.Tuning.Folds,
		Seed:    c.Config.Seed,
		Workers: c.Config.Tuning.Workers,
		Logger:  &c.logger,
	}
	c.logger.Info().
		Str("classifier", c.Config.Tuning.Classifier).
		Int("candidates", len(search.Grid.Combinations())).
		Int("folds", search.Folds).
		Msg("Fitting grid search")
	result, err := search.Fit(c.TrainX, c.TrainY, c.Encoder.Len())
	if err != nil {
		return fmt.Errorf("grid search: %w", err)
	}
	c.Search = result
	c.stage = StageTuned
	c.logger.Info().
		Str("best_params", result.BestParams.String()).
		Float64("best_score", result.BestScore).
		Msg("Best parameters found")
	return nil
}

// Ensemble trains the voting members; the tuned member reuses the grid search winner.
func (c *Context) Ensemble() error {
	if err := c.require(StageTuned, "ensemble"); err != nil {
		return err
	}
	members := make([]ml.Member, 0, len(c.Config.Members))
	for _, m := range c.Config.Members {
		if m.Tuned {
			members = append(members, ml.Member{Name: m.Name, Classifier: c.Search.Best, Trained: true, Weight: m.Weight})
			continue
		}
		factory, err := FactoryFor(m.Classifier)
		if err != nil {
			return err
		}
		clf, err := factory(ml.Params(m.Params))
		if err != nil {
			return fmt.Errorf("member %s: %w", m.Name, err)
		}
		members = append(members, ml.Member{Name: m.Name, Classifier: clf, Weight: m.Weight})
	}
	model, err := ml.NewEnsemble(members...)
	if err != nil {
		return err
	}
	if err := model.Fit(c.TrainX, c.TrainY, c.Encoder.Len()); err != nil {
		return err
	}
	c.Model = model
	c.stage = StageEnsembled
	c.logger.Info().Int("members", len(members)).Msg("Ensemble trained")
	return nil
}

func (c *Context) Evaluate() error {
	if err := c.require(StageEnsembled, "evaluate"); err != nil {
		return err
	}
	prob, err := c.Model.PredictProba(c.TestX)
	if err != nil {
		return err
	}
	pred := ml.ArgmaxRows(prob)
	result, err := metrics.Evaluate(c.TestY, pred, prob, c.Encoder.Classes())
	if err != nil {
		return err
	}
	c.Predictions, c.Probabilities, c.Evaluation = pred, prob, result
	c.stage = StageEvaluated

	event := c.logger.Info().Float64("accuracy", result.Accuracy)
	for _, roc := range result.ROC {
		if roc.Defined {
			event = event.Float64("auc_"+roc.Label, roc.AUC)
		}
	}
	event.Msg("Ensemble evaluated")
	return nil
}

// Run executes every stage over root.
func Run(ctx context.Context, cfg types.Configuration, fs afero.Fs, extractor *extract.Extractor, root string) (*Context, error) {
	return NewContext(cfg, fs, extractor).RunAll(ctx, root)
}

func (c *Context) RunAll(ctx context.Context, root string) (*Context, error) {
	errLogger := c.logger.With().Caller().Logger()
	if err := c.Extract(ctx, root); err != nil {
		errLogger.Err(err).Str("root", root).Msg("Failed to extract features")
		return c, err
	}
	steps := []struct {
		name string
		run  func() error
	}{
		{"encode", c.Encode},
		{"split", c.Split},
		{"scale", c.Scale},
		{"tune", c.Tune},
		{"ensemble", c.Ensemble},
		{"evaluate", c.Evaluate},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return c, err
		}
		if err := step.run(); err != nil {
			errLogger.Err(err).Str("stage", step.name).Msg("Pipeline stage failed")
			return c, err
		}
	}
	return c, nil
}

func pick(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
