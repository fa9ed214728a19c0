package svm

import (
	"math"
)

const minProb = 1e-7

func Predict(model *Model, x []float64) int {
	if model.NrClass == 1 {
		return model.Label[0]
	}
	decValues := make([]float64, model.NrClass*(model.NrClass-1)/2)
	return PredictValues(model, x, decValues)
}

// PredictValues fills the pairwise decision values and returns the label with most votes.
func PredictValues(model *Model, x []float64, decValues []float64) int {
	nrClass := model.NrClass
	if nrClass == 1 {
		return model.Label[0]
	}
	l := model.L

	kvalue := make([]float64, l)
	for i := 0; i < l; i++ {
		kvalue[i] = KFunction(x, model.SV[i], model.Param)
	}

	start := make([]int, nrClass)
	start[0] = 0

	for i := 1; i < nrClass; i++ {
		start[i] = start[i-1] + model.NSV[i-1]
	}

	vote := make([]int, nrClass)
	p := 0

	for i := 0; i < nrClass; i++ {
		for j := i + 1; j < nrClass; j++ {
			sum := 0.0
			si, sj := start[i], start[j]
			ci, cj := model.NSV[i], model.NSV[j]
			coef1, coef2 := model.SvCoef[j-1], model.SvCoef[i]

			for k := 0; k < ci; k++ {
				sum += coef1[si+k] * kvalue[si+k]
			}

			for k := 0; k < cj; k++ {
				sum += coef2[sj+k] * kvalue[sj+k]
			}

			sum -= model.Rho[p]
			decValues[p] = sum
			if decValues[p] > 0.0 {
				vote[i]++
			} else {
				vote[j]++
			}

			p++
		}
	}

	j := 0

	for i := 1; i < nrClass; i++ {
		if vote[i] > vote[j] {
			j = i
		}
	}

	return model.Label[j]
}

// PredictProbability returns one probability per entry of model.Label, obtained by pairwise
// coupling of the per-pair Platt estimates.
func PredictProbability(model *Model, x []float64) []float64 {
	nrClass := model.NrClass
	if nrClass == 1 {
		return []float64{1}
	}
	decValues := make([]float64, nrClass*(nrClass-1)/2)
	PredictValues(model, x, decValues)

	pairwise := make([][]float64, nrClass)
	for i := range pairwise {
		pairwise[i] = make([]float64, nrClass)
	}
	k := 0
	for i := 0; i < nrClass; i++ {
		for j := i + 1; j < nrClass; j++ {
			p := sigmoidPredict(decValues[k], model.ProbA[k], model.ProbB[k])
			p = math.Min(math.Max(p, minProb), 1-minProb)
			pairwise[i][j] = p
			pairwise[j][i] = 1 - p
			k++
		}
	}
	if nrClass == 2 {
		return []float64{pairwise[0][1], pairwise[1][0]}
	}
	return multiclassProbability(pairwise)
}

func sigmoidPredict(decValue, a, b float64) float64 {
	fApB := decValue*a + b
	if fApB >= 0 {
		return math.Exp(-fApB) / (1 + math.Exp(-fApB))
	}
	return 1 / (1 + math.Exp(fApB))
}

// multiclassProbability solves the second pairwise coupling method of Wu, Lin, Weng (2004).
func multiclassProbability(r [][]float64) []float64 {
	k := len(r)
	maxIter := 100
	if k > maxIter {
		maxIter = k
	}
	q := make([][]float64, k)
	for i := range q {
		q[i] = make([]float64, k)
	}
	qp := make([]float64, k)
	p := make([]float64, k)
	eps := 0.005 / float64(k)

	for t := 0; t < k; t++ {
		p[t] = 1 / float64(k)
		q[t][t] = 0
		for j := 0; j < t; j++ {
			q[t][t] += r[j][t] * r[j][t]
			q[t][j] = q[j][t]
		}
		for j := t + 1; j < k; j++ {
			q[t][t] += r[j][t] * r[j][t]
			q[t][j] = -r[j][t] * r[t][j]
		}
	}
	for iter := 0; iter < maxIter; iter++ {
		pQp := 0.0
		for t := 0; t < k; t++ {
			qp[t] = 0
			for j := 0; j < k; j++ {
				qp[t] += q[t][j] * p[j]
			}
			pQp += p[t] * qp[t]
		}
		maxError := 0.0
		for t := 0; t < k; t++ {
			if e := math.Abs(qp[t] - pQp); e > maxError {
				maxError = e
			}
		}
		if maxError < eps {
			break
		}
		for t := 0; t < k; t++ {
			diff := (-qp[t] + pQp) / q[t][t]
			p[t] += diff
			pQp = (pQp + diff*(diff*q[t][t]+2*qp[t])) / (1 + diff) / (1 + diff)
			for j := 0; j < k; j++ {
				qp[j] = (qp[j] + diff*q[t][j]) / (1 + diff)
				p[j] /= 1 + diff
			}
		}
	}
	return p
}
