package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"imwithroc.com/ensemble/ml"
	"imwithroc.com/ensemble/types"
)

var palette = map[string]color.RGBA{
	"red":   {200, 30, 30, 255},
	"green": {30, 200, 30, 255},
	"blue":  {30, 30, 200, 255},
}

func solidImage(t *testing.T, rng *rand.Rand, base color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	jitter := func(v uint8) uint8 {
		return uint8(int(v) + rng.Intn(11) - 5)
	}
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetRGBA(x, y, color.RGBA{jitter(base.R), jitter(base.G), jitter(base.B), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testCorpus(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	rng := rand.New(rand.NewSource(1))
	for label, c := range palette {
		for i := 0; i < 8; i++ {
			path := fmt.Sprintf("/corpus/%s/%02d.png", label, i)
			require.NoError(t, afero.WriteFile(fs, path, solidImage(t, rng, c), 0o644))
		}
	}
	require.NoError(t, afero.WriteFile(fs, "/corpus/red/broken.png", []byte("truncated"), 0o644))
	return fs
}

func testConfig() types.Configuration {
	cfg := types.Configuration{
		Image:      types.ImageConfig{Width: 16, Height: 16},
		Backbone:   types.BackboneConfig{Filters: 4, HistogramBins: 4},
		Extraction: types.ExtractionConfig{Workers: 2},
		Tuning: types.TuningConfig{
			Folds:   2,
			Workers: 2,
			Grid: map[string][]interface{}{
				"C":      {1.0, 10.0},
				"kernel": {"linear"},
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func newTestContext(t *testing.T, fs afero.Fs) *Context {
	t.Helper()
	cfg := testConfig()
	require.NoError(t, cfg.Validate())
	extractor, err := NewExtractor(cfg, fs, nil)
	require.NoError(t, err)
	return NewContext(cfg, fs, extractor).WithLogger(zerolog.Nop())
}

func TestRun(t *testing.T) {
	fs := testCorpus(t)
	c, err := newTestContext(t, fs).RunAll(context.Background(), "/corpus")
	require.NoError(t, err)
	require.Equal(t, StageEvaluated, c.Stage())

	require.Equal(t, ml.BuildStats{Total: 25, Kept: 24, Skipped: 1}, c.Stats)
	require.Equal(t, []string{"blue", "green", "red"}, c.Encoder.Classes())
	require.Len(t, c.TestIdx, 8)
	require.Len(t, c.TrainIdx, 16)

	require.NotNil(t, c.Search.Best)
	require.Len(t, c.Search.Trials, 2)
	require.Equal(t, "linear", c.Search.BestParams["kernel"])

	result := c.Evaluation
	require.GreaterOrEqual(t, result.Accuracy, 0.9)
	for _, row := range c.Probabilities {
		sum := 0.0
		for _, p := range row {
			sum += p
		}
		require.InDelta(t, 1, sum, 1e-9)
	}
	trace := 0
	for i := range result.Confusion {
		trace += result.Confusion[i][i]
	}
	require.Equal(t, int(result.Accuracy*float64(len(c.TestY))+0.5), trace)

	t.Run("classify", func(t *testing.T) {
		rng := rand.New(rand.NewSource(99))
		pred, err := c.Classify(context.Background(), "upload.png", solidImage(t, rng, palette["green"]))
		require.NoError(t, err)
		require.Equal(t, "green", pred.Label)
		require.Len(t, pred.Probabilities, 3)
	})

	t.Run("classify rejects garbage", func(t *testing.T) {
		_, err := c.Classify(context.Background(), "upload.png", []byte("nope"))
		var inputErr *ml.InputError
		require.True(t, errors.As(err, &inputErr))
	})

	t.Run("stages run once", func(t *testing.T) {
		err := c.Encode()
		var stateErr *ml.FitStateError
		require.True(t, errors.As(err, &stateErr))
	})
}

func TestStageOrder(t *testing.T) {
	c := newTestContext(t, testCorpus(t))

	var stateErr *ml.FitStateError
	require.True(t, errors.As(c.Scale(), &stateErr))
	require.True(t, errors.As(c.Evaluate(), &stateErr))

	_, err := c.Classify(context.Background(), "a.png", nil)
	var notTrained *ml.NotTrainedError
	require.True(t, errors.As(err, &notTrained))

	require.NoError(t, c.Extract(context.Background(), "/corpus"))
	require.True(t, errors.As(c.Split(), &stateErr))
	require.NoError(t, c.Encode())
	require.NoError(t, c.Split())
	require.Equal(t, StageSplit, c.Stage())
}

func TestExtractErrors(t *testing.T) {
	t.Run("empty corpus", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("/empty/cat", 0o755))
		c := newTestContext(t, fs)
		require.Error(t, c.Extract(context.Background(), "/empty"))
		require.Equal(t, StageNew, c.Stage())
	})

	t.Run("nothing decodable", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/bad/cat/a.png", []byte("x"), 0o644))
		c := newTestContext(t, fs)
		require.Error(t, c.Extract(context.Background(), "/bad"))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c := newTestContext(t, testCorpus(t))
		require.ErrorIs(t, c.Extract(ctx, "/corpus"), context.Canceled)
	})
}

func TestFactoryFor(t *testing.T) {
	for _, name := range []string{types.SVMClassifier, types.LDAClassifier, types.NaiveBayesClassifier} {
		f, err := FactoryFor(name)
		require.NoError(t, err)
		clf, err := f(ml.Params{})
		require.NoError(t, err)
		require.NotEmpty(t, clf.Name())
	}
	_, err := FactoryFor("knn")
	require.Error(t, err)
}

func TestStageString(t *testing.T) {
	require.Equal(t, "tuned", StageTuned.String())
	require.Equal(t, "stage(42)", Stage(42).String())
}
