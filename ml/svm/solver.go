package svm

import "math"

const tau = 1e-12

// solver is the SMO dual solver for one binary C-SVC problem with second-order working set
// selection (Fan, Chen, Lin 2005). Kernel values come from a precomputed Gram matrix,
// indexed through idx.
type solver struct {
	l     int
	y     []float64
	idx   []int
	k     kernelSource
	c     float64
	eps   float64
	alpha []float64
	g     []float64
	qd    []float64
}

type kernelSource interface {
	At(i, j int) float64
}

type solution struct {
	// coef is alpha[i]*y[i] for every sample of the problem
	coef []float64
	rho  float64
}

func newSolver(k kernelSource, idx []int, y []float64, c, eps float64) *solver {
	l := len(idx)
	s := &solver{
		l:     l,
		y:     y,
		idx:   idx,
		k:     k,
		c:     c,
		eps:   eps,
		alpha: make([]float64, l),
		g:     make([]float64, l),
		qd:    make([]float64, l),
	}
	for i := 0; i < l; i++ {
		s.g[i] = -1
		s.qd[i] = k.At(idx[i], idx[i])
	}
	return s
}

func (s *solver) q(i, j int) float64 {
	return s.y[i] * s.y[j] * s.k.At(s.idx[i], s.idx[j])
}

func (s *solver) isUpper(i int) bool {
	return s.alpha[i] >= s.c
}

func (s *solver) isLower(i int) bool {
	return s.alpha[i] <= 0
}

func (s *solver) solve() solution {
	maxIter := 100 * s.l
	if maxIter < 10000000 {
		maxIter = 10000000
	}
	qi := make([]float64, s.l)
	qj := make([]float64, s.l)
	for iter := 0; iter < maxIter; iter++ {
		i, j, optimal := s.selectWorkingSet()
		if optimal {
			break
		}
		for t := 0; t < s.l; t++ {
			qi[t] = s.q(i, t)
			qj[t] = s.q(j, t)
		}
		oldAi, oldAj := s.alpha[i], s.alpha[j]
		s.updatePair(i, j, qi[j])
		dAi := s.alpha[i] - oldAi
		dAj := s.alpha[j] - oldAj
		for t := 0; t < s.l; t++ {
			s.g[t] += qi[t]*dAi + qj[t]*dAj
		}
	}

	coef := make([]float64, s.l)
	for i := range coef {
		coef[i] = s.alpha[i] * s.y[i]
	}
	return solution{coef: coef, rho: s.calculateRho()}
}

func (s *solver) updatePair(i, j int, qij float64) {
	c := s.c
	if s.y[i] != s.y[j] {
		quad := s.qd[i] + s.qd[j] + 2*qij
		if quad <= 0 {
			quad = tau
		}
		delta := (-s.g[i] - s.g[j]) / quad
		diff := s.alpha[i] - s.alpha[j]
		s.alpha[i] += delta
		s.alpha[j] += delta
		if diff > 0 {
			if s.alpha[j] < 0 {
				s.alpha[j] = 0
				s.alpha[i] = diff
			}
		} else if s.alpha[i] < 0 {
			s.alpha[i] = 0
			s.alpha[j] = -diff
		}
		if diff > 0 {
			if s.alpha[i] > c {
				s.alpha[i] = c
				s.alpha[j] = c - diff
			}
		} else if s.alpha[j] > c {
			s.alpha[j] = c
			s.alpha[i] = c + diff
		}
		return
	}

	quad := s.qd[i] + s.qd[j] - 2*qij
	if quad <= 0 {
		quad = tau
	}
	delta := (s.g[i] - s.g[j]) / quad
	sum := s.alpha[i] + s.alpha[j]
	s.alpha[i] -= delta
	s.alpha[j] += delta
	if sum > c {
		if s.alpha[i] > c {
			s.alpha[i] = c
			s.alpha[j] = sum - c
		}
	} else if s.alpha[j] < 0 {
		s.alpha[j] = 0
		s.alpha[i] = sum
	}
	if sum > c {
		if s.alpha[j] > c {
			s.alpha[j] = c
			s.alpha[i] = sum - c
		}
	} else if s.alpha[i] < 0 {
		s.alpha[i] = 0
		s.alpha[j] = sum
	}
}

// selectWorkingSet returns the maximal violating pair, or optimal once the gap is below eps.
func (s *solver) selectWorkingSet() (int, int, bool) {
	gmax := math.Inf(-1)
	gmax2 := math.Inf(-1)
	gmaxIdx, gminIdx := -1, -1
	objDiffMin := math.Inf(1)

	for t := 0; t < s.l; t++ {
		if s.y[t] == 1 {
			if !s.isUpper(t) && -s.g[t] >= gmax {
				gmax = -s.g[t]
				gmaxIdx = t
			}
		} else if !s.isLower(t) && s.g[t] >= gmax {
			gmax = s.g[t]
			gmaxIdx = t
		}
	}
	if gmaxIdx == -1 {
		return 0, 0, true
	}
	i := gmaxIdx

	for j := 0; j < s.l; j++ {
		if s.y[j] == 1 {
			if s.isLower(j) {
				continue
			}
			gradDiff := gmax + s.g[j]
			if s.g[j] >= gmax2 {
				gmax2 = s.g[j]
			}
			if gradDiff > 0 {
				quad := s.qd[i] + s.qd[j] - 2*s.y[i]*s.q(i, j)
				objDiff := -(gradDiff * gradDiff) / tau
				if quad > 0 {
					objDiff = -(gradDiff * gradDiff) / quad
				}
				if objDiff <= objDiffMin {
					gminIdx = j
					objDiffMin = objDiff
				}
			}
		} else {
			if s.isUpper(j) {
				continue
			}
			gradDiff := gmax - s.g[j]
			if -s.g[j] >= gmax2 {
				gmax2 = -s.g[j]
			}
			if gradDiff > 0 {
				quad := s.qd[i] + s.qd[j] + 2*s.y[i]*s.q(i, j)
				objDiff := -(gradDiff * gradDiff) / tau
				if quad > 0 {
					objDiff = -(gradDiff * gradDiff) / quad
				}
				if objDiff <= objDiffMin {
					gminIdx = j
					objDiffMin = objDiff
				}
			}
		}
	}
	if gmax+gmax2 < s.eps || gminIdx == -1 {
		return 0, 0, true
	}
	return i, gminIdx, false
}

func (s *solver) calculateRho() float64 {
	nrFree := 0
	ub, lb := math.Inf(1), math.Inf(-1)
	sumFree := 0.0
	for i := 0; i < s.l; i++ {
		yG := s.y[i] * s.g[i]
		switch {
		case s.isUpper(i):
			if s.y[i] == -1 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		case s.isLower(i):
			if s.y[i] == 1 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		default:
			nrFree++
			sumFree += yG
		}
	}
	if nrFree > 0 {
		return sumFree / float64(nrFree)
	}
	return (ub + lb) / 2
}
