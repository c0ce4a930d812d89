package model

import "math"

// Adam implements the Adam update rule over the network's parameter
// slices. Moment buffers are allocated on the first step and keyed by
// slice position, which is stable because paramSlices ordering is.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	step int
	m    [][]float64
	v    [][]float64
}

// NewAdam creates an optimizer with the usual defaults.
func NewAdam(lr float64) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

// Step applies one update of the network parameters from the
// accumulated gradients. This is the single mutation point for model
// parameters; callers must not run it concurrently.
func (a *Adam) Step(n *Network, g *Grads) {
	params := n.paramSlices()
	grads := g.slices()

	if a.m == nil {
		a.m = make([][]float64, len(params))
		a.v = make([][]float64, len(params))
		for i, p := range params {
			a.m[i] = make([]float64, len(p))
			a.v[i] = make([]float64, len(p))
		}
	}

	a.step++
	c1 := 1 - math.Pow(a.Beta1, float64(a.step))
	c2 := 1 - math.Pow(a.Beta2, float64(a.step))

	for i, p := range params {
		gi := grads[i]
		mi, vi := a.m[i], a.v[i]
		for j := range p {
			grad := gi[j]
			mi[j] = a.Beta1*mi[j] + (1-a.Beta1)*grad
			vi[j] = a.Beta2*vi[j] + (1-a.Beta2)*grad*grad
			mHat := mi[j] / c1
			vHat := vi[j] / c2
			p[j] -= a.LR * mHat / (math.Sqrt(vHat) + a.Eps)
		}
	}
}
