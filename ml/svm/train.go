package svm

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// Train fits a one-vs-one C-SVC on dense rows. Labels may be any ints; the model keeps them
// in ascending order.
func Train(x [][]float64, y []int, param Parameter) (*Model, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("svm: training set is empty or misaligned")
	}
	if param.Gamma == 0 && param.KernelType != KernelTypeLinear {
		param.Gamma = scaleGamma(x)
	}
	if err := param.Validate(); err != nil {
		return nil, err
	}

	labels, groups := groupClasses(y)
	nrClass := len(labels)
	model := &Model{Param: param, NrClass: nrClass, Label: labels}
	if nrClass == 1 {
		model.NSV = []int{0}
		return model, nil
	}

	gram := gramMatrix(x, param)
	rng := rand.New(rand.NewSource(param.Seed))

	nrPairs := nrClass * (nrClass - 1) / 2
	coefs := make([][]float64, nrPairs)
	model.Rho = make([]float64, nrPairs)
	if param.Probability > 0 {
		model.ProbA = make([]float64, nrPairs)
		model.ProbB = make([]float64, nrPairs)
	}
	nonzero := make(map[int]bool)

	p := 0
	for i := 0; i < nrClass; i++ {
		for j := i + 1; j < nrClass; j++ {
			idx := append(append([]int(nil), groups[i]...), groups[j]...)
			sub := make([]float64, len(idx))
			for k := range sub {
				if k < len(groups[i]) {
					sub[k] = 1
				} else {
					sub[k] = -1
				}
			}
			if param.Probability > 0 {
				model.ProbA[p], model.ProbB[p] = binaryProbability(gram, idx, sub, param, rng)
			}
			sol := newSolver(gram, idx, sub, param.C, param.Eps).solve()
			coefs[p] = sol.coef
			model.Rho[p] = sol.rho
			for k, c := range sol.coef {
				if c != 0 {
					nonzero[idx[k]] = true
				}
			}
			p++
		}
	}

	// support vectors grouped by class, each group in sample order
	nzStart := make([]int, nrClass)
	model.NSV = make([]int, nrClass)
	for c, members := range groups {
		if c > 0 {
			nzStart[c] = nzStart[c-1] + model.NSV[c-1]
		}
		for _, s := range members {
			if nonzero[s] {
				model.SV = append(model.SV, x[s])
				model.NSV[c]++
			}
		}
	}
	model.L = len(model.SV)

	model.SvCoef = make([][]float64, nrClass-1)
	for i := range model.SvCoef {
		model.SvCoef[i] = make([]float64, model.L)
	}
	p = 0
	for i := 0; i < nrClass; i++ {
		for j := i + 1; j < nrClass; j++ {
			ci := len(groups[i])
			q := nzStart[i]
			for k, s := range groups[i] {
				if nonzero[s] {
					model.SvCoef[j-1][q] = coefs[p][k]
					q++
				}
			}
			q = nzStart[j]
			for k, s := range groups[j] {
				if nonzero[s] {
					model.SvCoef[i][q] = coefs[p][ci+k]
					q++
				}
			}
			p++
		}
	}
	return model, nil
}

func groupClasses(y []int) ([]int, [][]int) {
	byLabel := make(map[int][]int)
	for i, c := range y {
		byLabel[c] = append(byLabel[c], i)
	}
	labels := make([]int, 0, len(byLabel))
	for c := range byLabel {
		labels = append(labels, c)
	}
	sort.Ints(labels)
	groups := make([][]int, len(labels))
	for i, c := range labels {
		groups[i] = byLabel[c]
	}
	return labels, groups
}

// binaryProbability fits Platt's sigmoid on decision values obtained by internal
// cross-validation of the binary problem.
func binaryProbability(gram kernelSource, idx []int, y []float64, param Parameter, rng *rand.Rand) (float64, float64) {
	l := len(idx)
	nrFold := param.Probability
	if nrFold > l {
		nrFold = l
	}
	perm := rng.Perm(l)
	decValues := make([]float64, l)
	for f := 0; f < nrFold; f++ {
		begin := f * l / nrFold
		end := (f + 1) * l / nrFold
		var trainIdx []int
		var trainY []float64
		pCount, nCount := 0, 0
		for k := 0; k < l; k++ {
			if k >= begin && k < end {
				continue
			}
			trainIdx = append(trainIdx, idx[perm[k]])
			trainY = append(trainY, y[perm[k]])
			if y[perm[k]] > 0 {
				pCount++
			} else {
				nCount++
			}
		}
		switch {
		case pCount == 0 && nCount == 0:
			for k := begin; k < end; k++ {
				decValues[perm[k]] = 0
			}
		case nCount == 0:
			for k := begin; k < end; k++ {
				decValues[perm[k]] = 1
			}
		case pCount == 0:
			for k := begin; k < end; k++ {
				decValues[perm[k]] = -1
			}
		default:
			sol := newSolver(gram, trainIdx, trainY, param.C, param.Eps).solve()
			for k := begin; k < end; k++ {
				target := idx[perm[k]]
				dec := -sol.rho
				for t, c := range sol.coef {
					if c != 0 {
						dec += c * gram.At(trainIdx[t], target)
					}
				}
				decValues[perm[k]] = dec
			}
		}
	}
	return sigmoidTrain(decValues, y)
}

// sigmoidTrain is Platt's method with the Newton iteration of Lin, Lin, Weng (2007).
func sigmoidTrain(decValues []float64, labels []float64) (float64, float64) {
	prior1, prior0 := 0.0, 0.0
	for _, l := range labels {
		if l > 0 {
			prior1++
		} else {
			prior0++
		}
	}
	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
		eps     = 1e-5
	)
	hiTarget := (prior1 + 1) / (prior1 + 2)
	loTarget := 1 / (prior0 + 2)
	t := make([]float64, len(labels))
	a, b := 0.0, math.Log((prior0+1)/(prior1+1))
	fval := 0.0
	for i, l := range labels {
		if l > 0 {
			t[i] = hiTarget
		} else {
			t[i] = loTarget
		}
		fval += logLoss(decValues[i]*a+b, t[i])
	}
	for iter := 0; iter < maxIter; iter++ {
		h11, h22, h21 := sigma, sigma, 0.0
		g1, g2 := 0.0, 0.0
		for i, dec := range decValues {
			fApB := dec*a + b
			var p, q float64
			if fApB >= 0 {
				p = math.Exp(-fApB) / (1 + math.Exp(-fApB))
				q = 1 / (1 + math.Exp(-fApB))
			} else {
				p = 1 / (1 + math.Exp(fApB))
				q = math.Exp(fApB) / (1 + math.Exp(fApB))
			}
			d2 := p * q
			h11 += dec * dec * d2
			h22 += d2
			h21 += dec * d2
			d1 := t[i] - p
			g1 += dec * d1
			g2 += d1
		}
		if math.Abs(g1) < eps && math.Abs(g2) < eps {
			break
		}
		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		step := 1.0
		for step >= minStep {
			newA := a + step*dA
			newB := b + step*dB
			newf := 0.0
			for i, dec := range decValues {
				newf += logLoss(dec*newA+newB, t[i])
			}
			if newf < fval+0.0001*step*gd {
				a, b, fval = newA, newB, newf
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}
	return a, b
}

func logLoss(fApB, t float64) float64 {
	if fApB >= 0 {
		return t*fApB + math.Log(1+math.Exp(-fApB))
	}
	return (t-1)*fApB + math.Log(1+math.Exp(fApB))
}
