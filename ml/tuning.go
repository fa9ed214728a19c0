package ml

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"imwithroc.com/ensemble/utils"
)

// Grid maps a hyperparameter name to the candidate values, in the order they are tried.
type Grid map[string][]interface{}

// Combinations enumerates the cartesian product with keys in sorted order and the last key
// varying fastest.
func (g Grid) Combinations() []Params {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	combos := []Params{{}}
	for _, k := range keys {
		values := g[k]
		next := make([]Params, 0, len(combos)*len(values))
		for _, c := range combos {
			for _, v := range values {
				p := c.Merge(Params{k: v})
				next = append(next, p)
			}
		}
		combos = next
	}
	return combos
}

type Trial struct {
	Params     Params
	FoldScores []float64
	MeanScore  float64
}

type SearchResult struct {
	Best       Classifier
	BestParams Params
	BestScore  float64
	Trials     []Trial
}

// GridSearch runs exhaustive k-fold cross-validation over Grid and refits the best
// combination on the whole training set.
type GridSearch struct {
	Factory Factory
	Base    Params
	Grid    Grid
	Folds   int
	Seed    int64
	Workers int
	Logger  *zerolog.Logger
}

type trialJob struct {
	combo int
	fold  int
}

func (gs *GridSearch) Fit(x [][]float64, y []int, k int) (*SearchResult, error) {
	if gs.Factory == nil {
		return nil, errors.New("grid search has no classifier factory")
	}
	if err := ValidateTrainingSet(x, y, k); err != nil {
		return nil, err
	}
	combos := gs.Grid.Combinations()
	if len(combos) == 0 {
		return nil, errors.New("grid search has no parameter combinations")
	}
	folds, err := StratifiedKFold(y, gs.Folds, gs.Seed)
	if err != nil {
		return nil, err
	}
	scores := make([][]float64, len(combos))
	for i := range scores {
		scores[i] = make([]float64, len(folds))
	}

	workers := gs.Workers
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan trialJob)
	errCh := make(chan error, len(combos)*len(folds))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				score, err := gs.runTrial(x, y, k, combos[job.combo], folds[job.fold])
				if err != nil {
					errCh <- fmt.Errorf("trial %v fold %d: %w", combos[job.combo], job.fold, err)
					continue
				}
				// each (combo, fold) cell is written by exactly one job
				scores[job.combo][job.fold] = score
			}
		}()
	}
	for c := range combos {
		for f := range folds {
			jobs <- trialJob{combo: c, fold: f}
		}
	}
	close(jobs)
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return nil, err
	}

	result := &SearchResult{BestScore: -1}
	bestIdx := -1
	for c, params := range combos {
		mean := 0.0
		for _, s := range scores[c] {
			mean += s
		}
		mean /= float64(len(scores[c]))
		result.Trials = append(result.Trials, Trial{Params: params, FoldScores: scores[c], MeanScore: mean})
		if gs.Logger != nil {
			gs.Logger.Debug().
				Str("params", params.String()).
				Floats64("fold_scores", scores[c]).
				Float64("mean_score", mean).
				Msg("Grid search trial finished")
		}
		if bestIdx < 0 || mean > result.BestScore {
			result.BestScore = mean
			bestIdx = c
		}
	}
	result.BestParams = gs.Base.Merge(combos[bestIdx])
	best, err := gs.Factory(result.BestParams)
	if err != nil {
		return nil, err
	}
	if err := best.Fit(x, y, k); err != nil {
		return nil, fmt.Errorf("refitting best parameters %v: %w", result.BestParams, err)
	}
	result.Best = best
	return result, nil
}

func (gs *GridSearch) runTrial(x [][]float64, y []int, k int, combo Params, testIdx []int) (score float64, err error) {
	defer utils.RecoverWithError(&err)
	clf, err := gs.Factory(gs.Base.Merge(combo))
	if err != nil {
		return 0, err
	}
	trainIdx := FoldComplement(len(y), testIdx)
	if err := clf.Fit(selectRows(x, trainIdx), selectInts(y, trainIdx), k); err != nil {
		return 0, err
	}
	pred, err := PredictLabels(clf, selectRows(x, testIdx))
	if err != nil {
		return 0, err
	}
	correct := 0
	for i, j := range testIdx {
		if pred[i] == y[j] {
			correct++
		}
	}
	return float64(correct) / float64(len(testIdx)), nil
}
