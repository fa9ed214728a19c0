package svm

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func KFunction(x []float64, y []float64, param Parameter) float64 {
	switch param.KernelType {
	case KernelTypeLinear:
		return floats.Dot(x, y)
	case KernelTypePoly:
		return powi(param.Gamma*floats.Dot(x, y)+param.Coef0, param.Degree)
	case KernelTypeRbf:
		sum := 0.0
		for i := range x {
			d := x[i] - y[i]
			sum += d * d
		}
		return math.Exp(-param.Gamma * sum)
	case KernelTypeSigmoid:
		return math.Tanh(param.Gamma*floats.Dot(x, y) + param.Coef0)
	default:
		return 0.0
	}
}

// gramMatrix evaluates the kernel for every pair of training rows. All kernels are derived
// from the inner products, computed at once with a matrix product.
func gramMatrix(x [][]float64, param Parameter) *mat.SymDense {
	n, d := len(x), len(x[0])
	data := make([]float64, 0, n*d)
	for _, row := range x {
		data = append(data, row...)
	}
	a := mat.NewDense(n, d, data)
	var inner mat.SymDense
	inner.SymOuterK(1, a)

	if param.KernelType == KernelTypeLinear {
		return &inner
	}
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dot := inner.At(i, j)
			var v float64
			switch param.KernelType {
			case KernelTypePoly:
				v = powi(param.Gamma*dot+param.Coef0, param.Degree)
			case KernelTypeRbf:
				dist := inner.At(i, i) + inner.At(j, j) - 2*dot
				if dist < 0 {
					dist = 0
				}
				v = math.Exp(-param.Gamma * dist)
			case KernelTypeSigmoid:
				v = math.Tanh(param.Gamma*dot + param.Coef0)
			}
			k.SetSym(i, j, v)
		}
	}
	return k
}

// scaleGamma is the 1 / (n_features * Var(X)) heuristic over all entries of x.
func scaleGamma(x [][]float64) float64 {
	n := 0
	sum, sumSq := 0.0, 0.0
	for _, row := range x {
		for _, v := range row {
			sum += v
			sumSq += v * v
			n++
		}
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance <= 0 {
		return 1
	}
	return 1 / (float64(len(x[0])) * variance)
}

func powi(base float64, times int) float64 {
	tmp := base
	ret := 1.0

	for t := times; t > 0; t /= 2 {
		if t%2 == 1 {
			ret *= tmp
		}

		tmp *= tmp
	}

	return ret
}
