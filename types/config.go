package types

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"imwithroc.com/ensemble/logger"
	"imwithroc.com/ensemble/utils"
)

const (
	// backbones
	RandomConvBackbone = "random_conv"
	GraphBackbone      = "graph"

	// classifiers
	SVMClassifier        = "svm"
	LDAClassifier        = "lda"
	NaiveBayesClassifier = "naive_bayes"

	// resize kernels
	InterpolationCatmullRom = "catmullrom"
	InterpolationBilinear   = "bilinear"
	InterpolationNearest    = "nearest"
)

type ImageConfig struct {
	Width         int    `yaml:"width" json:"width"`
	Height        int    `yaml:"height" json:"height"`
	Interpolation string `yaml:"interpolation" json:"interpolation"`
}

type BackboneConfig struct {
	Kind          string `yaml:"kind" json:"kind"`
	Seed          int64  `yaml:"seed" json:"seed"`
	Filters       int    `yaml:"filters" json:"filters"`
	HistogramBins int    `yaml:"histogram_bins" json:"histogram_bins"`
	GraphPath     string `yaml:"graph_path" json:"graph_path,omitempty"`
	InputNode     string `yaml:"input_node" json:"input_node,omitempty"`
	OutputNode    string `yaml:"output_node" json:"output_node,omitempty"`
}

type ExtractionConfig struct {
	Workers int           `yaml:"workers" json:"workers"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

type TuningConfig struct {
	Classifier string                   `yaml:"classifier" json:"classifier"`
	Folds      int                      `yaml:"folds" json:"folds"`
	Workers    int                      `yaml:"workers" json:"workers"`
	Params     map[string]interface{}   `yaml:"params" json:"params"`
	Grid       map[string][]interface{} `yaml:"grid" json:"grid"`
}

type MemberConfig struct {
	Name       string                 `yaml:"name" json:"name"`
	Classifier string                 `yaml:"classifier" json:"classifier"`
	Params     map[string]interface{} `yaml:"params" json:"params,omitempty"`
	Weight     float64                `yaml:"weight" json:"weight,omitempty"`
	// Tuned members take the grid search winner instead of being trained from Params.
	Tuned bool `yaml:"tuned" json:"tuned,omitempty"`
}

type ReportConfig struct {
	SkipPlots bool    `yaml:"skip_plots" json:"skip_plots"`
	PlotSize  float64 `yaml:"plot_size" json:"plot_size"`
}

type Configuration struct {
	Name         string           `yaml:"name" json:"name"`
	FilePath     string           `yaml:"-" json:"file_path,omitempty"`
	TestFraction float64          `yaml:"test_fraction" json:"test_fraction"`
	Seed         int64            `yaml:"seed" json:"seed"`
	Image        ImageConfig      `yaml:"image" json:"image"`
	Backbone     BackboneConfig   `yaml:"backbone" json:"backbone"`
	Extraction   ExtractionConfig `yaml:"extraction" json:"extraction"`
	Tuning       TuningConfig     `yaml:"tuning" json:"tuning"`
	Members      []MemberConfig   `yaml:"members" json:"members"`
	Report       ReportConfig     `yaml:"report" json:"report"`
}

// DefaultConfiguration reproduces the reference experiment: a 70/30 split seeded with 42,
// 224x224 inputs, the SVM tuned over C and kernel with 5 folds, and LDA, the tuned SVM and
// Gaussian naive Bayes voting softly with equal weights.
func DefaultConfiguration() Configuration {
	cfg := Configuration{Name: "default"}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field. A zero Seed counts as unset here; use
// ParseConfiguration to keep an explicit `seed: 0`.
func (cfg *Configuration) ApplyDefaults() {
	cfg.applyDefaults(cfg.Seed != 0, cfg.Backbone.Seed != 0)
}

func (cfg *Configuration) applyDefaults(seedSet, backboneSeedSet bool) {
	if cfg.TestFraction == 0 {
		cfg.TestFraction = 0.3
	}
	if !seedSet {
		cfg.Seed = 42
	}
	if cfg.Image.Width == 0 {
		cfg.Image.Width = 224
	}
	if cfg.Image.Height == 0 {
		cfg.Image.Height = 224
	}
	if cfg.Image.Interpolation == "" {
		cfg.Image.Interpolation = InterpolationCatmullRom
	}
	if cfg.Backbone.Kind == "" {
		cfg.Backbone.Kind = RandomConvBackbone
	}
	if !backboneSeedSet {
		cfg.Backbone.Seed = cfg.Seed
	}
	if cfg.Backbone.Filters == 0 {
		cfg.Backbone.Filters = 32
	}
	if cfg.Backbone.HistogramBins == 0 {
		cfg.Backbone.HistogramBins = 8
	}
	if cfg.Extraction.Workers == 0 {
		cfg.Extraction.Workers = 4
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 30 * time.Second
	}
	if cfg.Tuning.Classifier == "" {
		cfg.Tuning.Classifier = SVMClassifier
	}
	if cfg.Tuning.Folds == 0 {
		cfg.Tuning.Folds = 5
	}
	if cfg.Tuning.Workers == 0 {
		cfg.Tuning.Workers = 4
	}
	if cfg.Tuning.Params == nil {
		cfg.Tuning.Params = map[string]interface{}{"seed": cfg.Seed}
	}
	if cfg.Tuning.Grid == nil {
		cfg.Tuning.Grid = map[string][]interface{}{
			"C":      {0.1, 1.0, 10.0, 100.0},
			"kernel": {"linear", "rbf"},
		}
	}
	if len(cfg.Members) == 0 {
		cfg.Members = []MemberConfig{
			{Name: "lda", Classifier: LDAClassifier},
			{Name: "svm", Classifier: SVMClassifier, Tuned: true},
			{Name: "nb", Classifier: NaiveBayesClassifier},
		}
	}
	if cfg.Report.PlotSize == 0 {
		cfg.Report.PlotSize = 6
	}
}

func (cfg Configuration) Validate() error {
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		return fmt.Errorf("test_fraction must be in (0, 1), got %v", cfg.TestFraction)
	}
	if cfg.Image.Width <= 0 || cfg.Image.Height <= 0 {
		return fmt.Errorf("image size must be positive, got %dx%d", cfg.Image.Width, cfg.Image.Height)
	}
	switch cfg.Image.Interpolation {
	case InterpolationCatmullRom, InterpolationBilinear, InterpolationNearest:
	default:
		return fmt.Errorf("unknown interpolation %q", cfg.Image.Interpolation)
	}
	switch cfg.Backbone.Kind {
	case RandomConvBackbone:
	case GraphBackbone:
		if cfg.Backbone.GraphPath == "" {
			return errors.New("graph backbone requires graph_path")
		}
	default:
		return fmt.Errorf("unknown backbone %q", cfg.Backbone.Kind)
	}
	if cfg.Extraction.Workers < 1 || cfg.Tuning.Workers < 1 {
		return errors.New("worker counts must be positive")
	}
	if cfg.Tuning.Folds < 2 {
		return fmt.Errorf("tuning needs at least 2 folds, got %d", cfg.Tuning.Folds)
	}
	if !knownClassifier(cfg.Tuning.Classifier) {
		return fmt.Errorf("unknown tuning classifier %q", cfg.Tuning.Classifier)
	}
	for name, values := range cfg.Tuning.Grid {
		if len(values) == 0 {
			return fmt.Errorf("grid parameter %s has no values", name)
		}
	}
	if len(cfg.Members) == 0 {
		return errors.New("ensemble has no members")
	}
	tuned := 0
	names := make(map[string]bool, len(cfg.Members))
	for _, m := range cfg.Members {
		if m.Name == "" || names[m.Name] {
			return fmt.Errorf("member names must be unique and non empty, got %q", m.Name)
		}
		names[m.Name] = true
		if !knownClassifier(m.Classifier) {
			return fmt.Errorf("member %s: unknown classifier %q", m.Name, m.Classifier)
		}
		if m.Weight < 0 {
			return fmt.Errorf("member %s: negative weight", m.Name)
		}
		if m.Tuned {
			tuned++
			if m.Classifier != cfg.Tuning.Classifier {
				return fmt.Errorf("member %s is tuned but the search tunes %s", m.Name, cfg.Tuning.Classifier)
			}
		}
	}
	if tuned > 1 {
		return errors.New("at most one member can take the tuned classifier")
	}
	return nil
}

func knownClassifier(name string) bool {
	switch name {
	case SVMClassifier, LDAClassifier, NaiveBayesClassifier:
		return true
	}
	return false
}

// GetHashCode identifies the settings that change extracted features.
func (cfg Configuration) GetHashCode() uint64 {
	return utils.HashString(fmt.Sprintf("%s|%d|%d|%d|%s|%d|%d|%s",
		cfg.Backbone.Kind, cfg.Backbone.Seed, cfg.Backbone.Filters, cfg.Backbone.HistogramBins,
		cfg.Backbone.GraphPath, cfg.Image.Width, cfg.Image.Height, cfg.Image.Interpolation))
}

// seedFields records which seeds a document sets, zero included.
type seedFields struct {
	Seed     *int64 `yaml:"seed"`
	Backbone struct {
		Seed *int64 `yaml:"seed"`
	} `yaml:"backbone"`
}

func ParseConfiguration(buf []byte) (Configuration, error) {
	var cfg Configuration
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, err
	}
	var seeds seedFields
	if err := yaml.Unmarshal(buf, &seeds); err != nil {
		return cfg, err
	}
	cfg.applyDefaults(seeds.Seed != nil, seeds.Backbone.Seed != nil)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadConfiguration(filePath string) (Configuration, error) {
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return Configuration{}, err
	}
	cfg, err := ParseConfiguration(buf)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", filePath, err)
	}
	if cfg.Name == "" {
		cfg.Name = strings.TrimSuffix(path.Base(filePath), ".yaml")
	}
	cfg.FilePath = filePath
	return cfg, nil
}

// LoadConfigurations loads every .yaml file of dirPath; invalid files are logged and skipped.
func LoadConfigurations(dirPath string) ([]Configuration, error) {
	cfgLogger := logger.NewLogger("LoadConfigurations")

	files, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	configChan := make(chan Configuration, len(files))
	for _, f := range files {
		// Skip dirs and non-yaml files
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".yaml") {
			continue
		}

		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			cfg, err := LoadConfiguration(path.Join(dirPath, name))
			if err != nil {
				cfgLogger.Err(err).Str("file", name).Msg("Skipping configuration")
				return
			}
			configChan <- cfg
		}(f.Name())
	}

	go func() {
		wg.Wait()
		close(configChan)
	}()

	configs := make([]Configuration, 0, len(files))
	for cfg := range configChan {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs, nil
}
