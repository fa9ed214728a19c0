// Package lda implements linear discriminant analysis with an SVD solver, which stays usable
// when the pooled covariance is singular (more feature dimensions than samples).
package lda

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"imwithroc.com/ensemble/ml"
)

const defaultTol = 1e-4

type Classifier struct {
	Tol float64

	classes   []int
	coef      *mat.Dense // classes x features
	intercept []float64
	k         int
	dim       int
}

// New builds the classifier from params; only "tol" is recognised.
func New(params ml.Params) (ml.Classifier, error) {
	tol, err := params.Float("tol", defaultTol)
	if err != nil {
		return nil, err
	}
	if tol <= 0 {
		return nil, errors.New("lda: tol must be positive")
	}
	return &Classifier{Tol: tol}, nil
}

func (c *Classifier) Name() string {
	return "lda"
}

func (c *Classifier) Fit(x [][]float64, y []int, k int) error {
	if err := ml.ValidateTrainingSet(x, y, k); err != nil {
		return err
	}
	tol := c.Tol
	if tol == 0 {
		tol = defaultTol
	}
	n, d := len(x), len(x[0])

	groups := make(map[int][]int)
	for i, label := range y {
		groups[label] = append(groups[label], i)
	}
	var classes []int
	for label := 0; label < k; label++ {
		if len(groups[label]) > 0 {
			classes = append(classes, label)
		}
	}
	nc := len(classes)
	c.classes, c.k, c.dim = classes, k, d
	if nc == 1 {
		c.coef = nil
		c.intercept = []float64{0}
		return nil
	}

	priors := make([]float64, nc)
	means := mat.NewDense(nc, d, nil)
	for ci, label := range classes {
		members := groups[label]
		priors[ci] = float64(len(members)) / float64(n)
		row := make([]float64, d)
		for _, s := range members {
			floats.Add(row, x[s])
		}
		floats.Scale(1/float64(len(members)), row)
		means.SetRow(ci, row)
	}
	classPos := make(map[int]int, nc)
	for ci, label := range classes {
		classPos[label] = ci
	}

	// within-class centered data, standardized per dimension
	xc := mat.NewDense(n, d, nil)
	for i, row := range x {
		m := means.RawRowView(classPos[y[i]])
		for f := 0; f < d; f++ {
			xc.Set(i, f, row[f]-m[f])
		}
	}
	std := make([]float64, d)
	for f := 0; f < d; f++ {
		col := mat.Col(nil, f, xc)
		mean := floats.Sum(col) / float64(n)
		v := 0.0
		for _, e := range col {
			v += (e - mean) * (e - mean)
		}
		std[f] = math.Sqrt(v / float64(n))
		if std[f] == 0 {
			std[f] = 1
		}
	}
	fac := 1.0
	if n > nc {
		fac = 1 / float64(n-nc)
	}
	sf := math.Sqrt(fac)
	for i := 0; i < n; i++ {
		for f := 0; f < d; f++ {
			xc.Set(i, f, sf*xc.At(i, f)/std[f])
		}
	}

	var svd mat.SVD
	if !svd.Factorize(xc, mat.SVDThin) {
		return errors.New("lda: SVD of within-class scatter did not converge")
	}
	s := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v)
	rank := 0
	for _, sv := range s {
		if sv > tol {
			rank++
		}
	}
	if rank == 0 {
		return errors.New("lda: within-class scatter has rank 0")
	}
	scalings := mat.NewDense(d, rank, nil)
	for f := 0; f < d; f++ {
		for r := 0; r < rank; r++ {
			scalings.Set(f, r, v.At(f, r)/std[f]/s[r])
		}
	}

	// between-class scatter in the whitened space
	xbar := make([]float64, d)
	for ci := 0; ci < nc; ci++ {
		floats.AddScaled(xbar, priors[ci], means.RawRowView(ci))
	}
	fac2 := 1 / float64(nc-1)
	centered := mat.NewDense(nc, d, nil)
	weighted := mat.NewDense(nc, d, nil)
	for ci := 0; ci < nc; ci++ {
		w := math.Sqrt(float64(n) * priors[ci] * fac2)
		for f := 0; f < d; f++ {
			diff := means.At(ci, f) - xbar[f]
			centered.Set(ci, f, diff)
			weighted.Set(ci, f, w*diff)
		}
	}
	var between mat.Dense
	between.Mul(weighted, scalings)

	var svd2 mat.SVD
	if !svd2.Factorize(&between, mat.SVDThin) {
		return errors.New("lda: SVD of between-class scatter did not converge")
	}
	s2 := svd2.Values(nil)
	var v2 mat.Dense
	svd2.VTo(&v2)
	rank2 := 0
	for _, sv := range s2 {
		if sv > tol*s2[0] {
			rank2++
		}
	}
	if rank2 == 0 {
		// class means coincide: decision falls back to the priors
		rank2 = 1
	}
	var proj mat.Dense
	proj.Mul(scalings, v2.Slice(0, v2.RawMatrix().Rows, 0, rank2))

	var coefLow mat.Dense
	coefLow.Mul(centered, &proj)
	intercept := make([]float64, nc)
	for ci := 0; ci < nc; ci++ {
		row := coefLow.RawRowView(ci)
		intercept[ci] = -0.5*floats.Dot(row, row) + math.Log(priors[ci])
	}
	var coef mat.Dense
	coef.Mul(&coefLow, proj.T())
	for ci := 0; ci < nc; ci++ {
		intercept[ci] -= floats.Dot(xbar, coef.RawRowView(ci))
	}
	c.coef = &coef
	c.intercept = intercept
	return nil
}

func (c *Classifier) PredictProba(x [][]float64) ([][]float64, error) {
	if c.classes == nil {
		return nil, &ml.NotTrainedError{Model: c.Name()}
	}
	if err := ml.CheckWidth(x, c.dim); err != nil {
		return nil, err
	}
	out := make([][]float64, len(x))
	dec := make([]float64, len(c.classes))
	for i, row := range x {
		for ci := range c.classes {
			dec[ci] = c.intercept[ci]
			if c.coef != nil {
				dec[ci] += floats.Dot(c.coef.RawRowView(ci), row)
			}
		}
		probs := softmax(dec)
		dist := make([]float64, c.k)
		for ci, label := range c.classes {
			dist[label] = probs[ci]
		}
		out[i] = dist
	}
	return out, nil
}

func softmax(z []float64) []float64 {
	out := make([]float64, len(z))
	lse := floats.LogSumExp(z)
	for i, v := range z {
		out[i] = math.Exp(v - lse)
	}
	return out
}
