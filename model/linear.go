package model

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Linear is a fully connected projection y = Wx + b.
type Linear struct {
	In     int         `json:"in"`
	Out    int         `json:"out"`
	Weight [][]float64 `json:"weight"` // [Out][In]
	Bias   []float64   `json:"bias"`
}

// NewLinear creates a randomly initialized projection.
func NewLinear(rng *rand.Rand, in, out int) *Linear {
	return &Linear{
		In:     in,
		Out:    out,
		Weight: randMatrix(rng, out, in, in),
		Bias:   make([]float64, out),
	}
}

// Forward applies the projection to one vector.
func (l *Linear) Forward(x []float64) []float64 {
	y := make([]float64, l.Out)
	for o := 0; o < l.Out; o++ {
		y[o] = l.Bias[o] + floats.Dot(l.Weight[o], x)
	}
	return y
}

// Backward accumulates parameter gradients into gw/gb and the input
// gradient into gradX.
func (l *Linear) Backward(x, gradOut []float64, gw [][]float64, gb []float64, gradX []float64) {
	for o, g := range gradOut {
		if g == 0 {
			continue
		}
		gb[o] += g
		floats.AddScaled(gw[o], g, x)
		floats.AddScaled(gradX, g, l.Weight[o])
	}
}
