package pipeline

import (
	"fmt"

	"github.com/spf13/afero"

	"imwithroc.com/ensemble/extract"
	"imwithroc.com/ensemble/logger"
	"imwithroc.com/ensemble/ml"
	"imwithroc.com/ensemble/ml/bayes"
	"imwithroc.com/ensemble/ml/lda"
	"imwithroc.com/ensemble/ml/svm"
	"imwithroc.com/ensemble/types"
)

var factories = map[string]ml.Factory{
	types.SVMClassifier:        svm.New,
	types.LDAClassifier:        lda.New,
	types.NaiveBayesClassifier: bayes.New,
}

func FactoryFor(name string) (ml.Factory, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown classifier %q", name)
	}
	return f, nil
}

// NewExtractor wires the decoder and backbone described by cfg. cache may be nil.
func NewExtractor(cfg types.Configuration, fs afero.Fs, cache extract.VectorCache) (*extract.Extractor, error) {
	decoder, err := extract.NewDecoder(fs, cfg.Image)
	if err != nil {
		return nil, err
	}
	backbone, err := extract.NewBackbone(cfg.Backbone)
	if err != nil {
		return nil, err
	}
	extLogger := logger.NewLogger("Feature extractor")
	return &extract.Extractor{
		Decoder:    decoder,
		Backbone:   backbone,
		Cache:      cache,
		CacheScope: cfg.GetHashCode(),
		Timeout:    cfg.Extraction.Timeout,
		Logger:     &extLogger,
	}, nil
}
