package types

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfiguration(t *testing.T) {
	cfg := DefaultConfiguration()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 0.3, cfg.TestFraction)
	require.Equal(t, int64(42), cfg.Seed)
	require.Equal(t, 224, cfg.Image.Width)
	require.Equal(t, 5, cfg.Tuning.Folds)
	require.Equal(t, []interface{}{0.1, 1.0, 10.0, 100.0}, cfg.Tuning.Grid["C"])
	require.Equal(t, []interface{}{"linear", "rbf"}, cfg.Tuning.Grid["kernel"])

	names := make([]string, len(cfg.Members))
	for i, m := range cfg.Members {
		names[i] = m.Name
	}
	require.Equal(t, []string{"lda", "svm", "nb"}, names)
	require.True(t, cfg.Members[1].Tuned)
}

func TestParseConfiguration(t *testing.T) {
	t.Run("overrides keep remaining defaults", func(t *testing.T) {
		cfg, err := ParseConfiguration([]byte(`
test_fraction: 0.25
seed: 7
extraction:
  timeout: 5s
tuning:
  folds: 3
  grid:
    C: [1, 10]
`))
		require.NoError(t, err)
		require.Equal(t, 0.25, cfg.TestFraction)
		require.Equal(t, int64(7), cfg.Seed)
		require.Equal(t, int64(7), cfg.Backbone.Seed)
		require.Equal(t, 5*time.Second, cfg.Extraction.Timeout)
		require.Equal(t, 3, cfg.Tuning.Folds)
		if diff := cmp.Diff(map[string][]interface{}{"C": {1, 10}}, cfg.Tuning.Grid); diff != "" {
			t.Errorf("grid mismatch (-want +got):\n%s", diff)
		}
		require.Len(t, cfg.Members, 3)
	})

	invalid := map[string]string{
		"fraction":        "test_fraction: 1.5",
		"backbone":        "backbone: {kind: vit}",
		"graph path":      "backbone: {kind: graph}",
		"folds":           "tuning: {folds: 1}",
		"empty grid":      "tuning: {grid: {C: []}}",
		"member kind":     "members: [{name: a, classifier: knn}]",
		"tuning kind":     "tuning: {classifier: knn}",
		"duplicate":       "members: [{name: a, classifier: lda}, {name: a, classifier: svm}]",
		"tuned mismatch":  "members: [{name: a, classifier: lda, tuned: true}]",
		"negative weight": "members: [{name: a, classifier: lda, weight: -1}]",
		"interpolation":   "image: {interpolation: lanczos}",
	}
	for name, doc := range invalid {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := ParseConfiguration([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestParseConfigurationZeroSeed(t *testing.T) {
	cfg, err := ParseConfiguration([]byte("seed: 0"))
	require.NoError(t, err)
	require.Equal(t, int64(0), cfg.Seed)
	require.Equal(t, int64(0), cfg.Backbone.Seed)
	require.Equal(t, int64(0), cfg.Tuning.Params["seed"])

	cfg, err = ParseConfiguration([]byte("seed: 5\nbackbone: {seed: 0}"))
	require.NoError(t, err)
	require.Equal(t, int64(5), cfg.Seed)
	require.Equal(t, int64(0), cfg.Backbone.Seed)

	cfg, err = ParseConfiguration([]byte("name: plain"))
	require.NoError(t, err)
	require.Equal(t, int64(42), cfg.Seed)
}

func TestValidateClassifiers(t *testing.T) {
	cfg := DefaultConfiguration()
	cfg.Tuning.Classifier = "knn"
	cfg.Members[1].Tuned = false
	require.ErrorContains(t, cfg.Validate(), "unknown tuning classifier")

	cfg = DefaultConfiguration()
	cfg.Members[0].Classifier = "knn"
	require.ErrorContains(t, cfg.Validate(), "unknown classifier")

	for _, name := range []string{SVMClassifier, LDAClassifier, NaiveBayesClassifier} {
		require.True(t, knownClassifier(name))
	}
}

func TestLoadConfigurations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("b.yaml", "seed: 1")
	write("a.yaml", "name: custom\nseed: 2")
	write("broken.yaml", "test_fraction: 3")
	write("notes.txt", "seed: 3")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755))

	cfgs, err := LoadConfigurations(dir)
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	require.Equal(t, "b", cfgs[0].Name)
	require.Equal(t, "custom", cfgs[1].Name)
	require.Equal(t, filepath.Join(dir, "a.yaml"), cfgs[1].FilePath)
}

func TestGetHashCode(t *testing.T) {
	a := DefaultConfiguration()
	b := DefaultConfiguration()
	b.Tuning.Folds = 10
	require.Equal(t, a.GetHashCode(), b.GetHashCode())

	b.Backbone.Seed++
	require.NotEqual(t, a.GetHashCode(), b.GetHashCode())
}
