package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"imwithroc.com/ensemble/ml"
	"imwithroc.com/ensemble/types"
	"imwithroc.com/ensemble/utils"
)

// VectorCache stores extracted vectors by key. Lookups that fail are treated as misses.
type VectorCache interface {
	GetVector(ctx context.Context, key string) ([]float64, bool, error)
	SetVector(ctx context.Context, key string, v []float64) error
}

type Extractor struct {
	Decoder    *Decoder
	Backbone   Backbone
	Cache      VectorCache
	// CacheScope separates cached vectors of differently configured extractors.
	CacheScope uint64
	Timeout    time.Duration
	Logger     *zerolog.Logger
}

// NewBackbone builds the backbone named by cfg.
func NewBackbone(cfg types.BackboneConfig) (Backbone, error) {
	switch cfg.Kind {
	case "", types.RandomConvBackbone:
		return NewRandomConvBackbone(cfg.Seed, cfg.Filters, cfg.HistogramBins)
	case types.GraphBackbone:
		return NewGraphBackbone(cfg)
	}
	return nil, fmt.Errorf("unknown backbone %q", cfg.Kind)
}

// Extract reads, decodes and embeds one image file.
func (e *Extractor) Extract(ctx context.Context, path string) ml.Extraction {
	buf, err := e.Decoder.ReadFile(path)
	if err != nil {
		return ml.Extraction{Err: err}
	}
	return e.ExtractBytes(ctx, path, buf)
}

// ExtractBytes embeds an already read image. Decoding and the forward pass are bounded by
// Timeout; running out of it is an input error for that image only, while cancellation of
// ctx is returned as is.
func (e *Extractor) ExtractBytes(ctx context.Context, path string, buf []byte) ml.Extraction {
	key := e.cacheKey(buf)
	if v, ok := e.lookup(ctx, key, path); ok {
		return ml.Extraction{Vector: v}
	}

	itemCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	done := make(chan ml.Extraction, 1)
	go func() {
		var res ml.Extraction
		res.Vector, res.Err = e.embed(path, buf)
		done <- res
	}()

	select {
	case res := <-done:
		if res.Err == nil {
			e.store(ctx, key, path, res.Vector)
		}
		return res
	case <-itemCtx.Done():
		if ctx.Err() != nil {
			return ml.Extraction{Err: ctx.Err()}
		}
		return ml.Extraction{Err: &ml.InputError{Path: path, Err: fmt.Errorf("extraction timed out after %s", e.Timeout)}}
	}
}

// embed never panics and only fails with an *ml.InputError.
func (e *Extractor) embed(path string, buf []byte) (vec []float64, err error) {
	defer func() {
		if err == nil {
			return
		}
		vec = nil
		var inputErr *ml.InputError
		if !errors.As(err, &inputErr) {
			err = &ml.InputError{Path: path, Err: err}
		}
	}()
	defer utils.RecoverWithError(&err)

	t, err := e.Decoder.DecodeBytes(path, buf)
	if err != nil {
		return nil, err
	}
	return e.Backbone.Forward(t)
}

// ExtractAll runs Extract over items with at most workers concurrent extractions. The result
// at index i always belongs to items[i].
func (e *Extractor) ExtractAll(ctx context.Context, items []ml.Item, workers int) []ml.Extraction {
	if workers < 1 {
		workers = 1
	}
	workers = utils.MinInt(workers, len(items))

	results := make([]ml.Extraction, len(items))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if e.Logger != nil {
					e.Logger.Debug().Str("path", items[i].Path).Msg("Processing image")
				}
				results[i] = e.Extract(ctx, items[i].Path)
			}
		}()
	}
	for i := range items {
		if ctx.Err() != nil {
			results[i] = ml.Extraction{Err: ctx.Err()}
			continue
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (e *Extractor) cacheKey(buf []byte) string {
	return fmt.Sprintf("features:%s:%016x:%016x",
		e.Backbone.Name(), e.CacheScope, utils.HashBytes(buf))
}

func (e *Extractor) lookup(ctx context.Context, key, path string) ([]float64, bool) {
	if e.Cache == nil {
		return nil, false
	}
	v, ok, err := e.Cache.GetVector(ctx, key)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Err(err).Str("path", path).Msg("Feature cache lookup failed")
		}
		return nil, false
	}
	return v, ok
}

func (e *Extractor) store(ctx context.Context, key, path string, v []float64) {
	if e.Cache == nil {
		return
	}
	if err := e.Cache.SetVector(ctx, key, v); err != nil && e.Logger != nil {
		e.Logger.Err(err).Str("path", path).Msg("Feature cache store failed")
	}
}
