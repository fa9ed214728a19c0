package ml

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

type Sample struct {
	Features []float64
	Label    string
}

// Dataset is an ordered collection of samples sharing one feature width.
type Dataset struct {
	Samples []Sample
}

// Item is one (image path, raw label) pair as produced by corpus ingestion.
type Item struct {
	Path  string
	Label string
}

// Extraction is the per-item outcome of feature extraction: either a vector or an error.
type Extraction struct {
	Vector []float64
	Err    error
}

type BuildStats struct {
	Total   int
	Kept    int
	Skipped int
}

// BuildDataset pairs extraction results with their items. Results must be index-aligned
// with items. InputErrors drop the sample, any other error aborts.
func BuildDataset(items []Item, results []Extraction, logger *zerolog.Logger) (*Dataset, BuildStats, error) {
	stats := BuildStats{Total: len(items)}
	if len(items) != len(results) {
		return nil, stats, fmt.Errorf("got %d extraction results for %d items", len(results), len(items))
	}
	ds := &Dataset{Samples: make([]Sample, 0, len(items))}
	dim := -1
	for i, res := range results {
		if res.Err != nil {
			var inputErr *InputError
			if !errors.As(res.Err, &inputErr) {
				return nil, stats, fmt.Errorf("extraction of %s failed: %w", items[i].Path, res.Err)
			}
			logger.Err(res.Err).Str("path", items[i].Path).Msg("Error processing image, skipping")
			stats.Skipped++
			continue
		}
		if dim < 0 {
			dim = len(res.Vector)
		}
		if len(res.Vector) != dim {
			return nil, stats, fmt.Errorf("image %s: %w", items[i].Path, &DimensionError{Expected: dim, Got: len(res.Vector)})
		}
		ds.Samples = append(ds.Samples, Sample{Features: res.Vector, Label: items[i].Label})
		stats.Kept++
	}
	if ds.Len() == 0 {
		return nil, stats, errors.New("no image could be processed")
	}
	return ds, stats, nil
}

func (ds *Dataset) Len() int {
	return len(ds.Samples)
}

func (ds *Dataset) Dim() int {
	if len(ds.Samples) == 0 {
		return 0
	}
	return len(ds.Samples[0].Features)
}

// Labels returns the raw label of every sample, in sample order.
func (ds *Dataset) Labels() []string {
	labels := make([]string, len(ds.Samples))
	for i, s := range ds.Samples {
		labels[i] = s.Label
	}
	return labels
}

// DistinctLabels returns the sorted set of observed labels.
func (ds *Dataset) DistinctLabels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range ds.Samples {
		if !seen[s.Label] {
			seen[s.Label] = true
			out = append(out, s.Label)
		}
	}
	sort.Strings(out)
	return out
}

// Matrix returns the feature rows. Rows are shared with the dataset, not copied.
func (ds *Dataset) Matrix() [][]float64 {
	x := make([][]float64, len(ds.Samples))
	for i, s := range ds.Samples {
		x[i] = s.Features
	}
	return x
}

func (ds *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{Samples: make([]Sample, len(idx))}
	for i, j := range idx {
		out.Samples[i] = ds.Samples[j]
	}
	return out
}

// Split partitions the dataset with TrainTestSplit.
func (ds *Dataset) Split(testFraction float64, seed int64) (train *Dataset, test *Dataset, err error) {
	trainIdx, testIdx, err := TrainTestSplit(ds.Len(), testFraction, seed)
	if err != nil {
		return nil, nil, err
	}
	return ds.Subset(trainIdx), ds.Subset(testIdx), nil
}
