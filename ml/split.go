package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// TrainTestSplit shuffles [0, n) with a seeded source and cuts ceil(testFraction*n)
// indices off for the test split. Classes are not stratified.
func TrainTestSplit(n int, testFraction float64, seed int64) (train []int, test []int, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}
	nTest := int(math.Ceil(testFraction * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, nil, fmt.Errorf("cannot split %d samples with test fraction %v", n, testFraction)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test = append([]int(nil), perm[:nTest]...)
	train = append([]int(nil), perm[nTest:]...)
	return train, test, nil
}

// StratifiedKFold assigns each index in [0, len(y)) to one of k folds. Every class is shuffled
// with the seeded source and dealt round-robin, with the dealing offset carried across
// classes so fold sizes differ by at most one.
func StratifiedKFold(y []int, k int, seed int64) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("need at least 2 folds, got %d", k)
	}
	if len(y) < k {
		return nil, fmt.Errorf("cannot make %d folds from %d samples", k, len(y))
	}
	byClass := make(map[int][]int)
	for i, c := range y {
		byClass[c] = append(byClass[c], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(seed))
	folds := make([][]int, k)
	next := 0
	for _, c := range classes {
		members := byClass[c]
		rng.Shuffle(len(members), func(i, j int) {
			members[i], members[j] = members[j], members[i]
		})
		for _, idx := range members {
			folds[next] = append(folds[next], idx)
			next = (next + 1) % k
		}
	}
	for _, f := range folds {
		sort.Ints(f)
	}
	return folds, nil
}

// FoldComplement returns every index in [0, n) that is not in fold.
func FoldComplement(n int, fold []int) []int {
	in := make([]bool, n)
	for _, i := range fold {
		in[i] = true
	}
	out := make([]int, 0, n-len(fold))
	for i := 0; i < n; i++ {
		if !in[i] {
			out = append(out, i)
		}
	}
	return out
}

func selectRows(x [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = x[j]
	}
	return out
}

func selectInts(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
