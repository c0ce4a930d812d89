package model

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// ConvSpec describes one convolution branch. Kernel and Padding must
// satisfy Kernel == 2*Padding+1 so output length equals input length.
type ConvSpec struct {
	Channels int `json:"channel_size" yaml:"channel_size"`
	Kernel   int `json:"kernel_size" yaml:"kernel_size"`
	Padding  int `json:"padding" yaml:"padding"`
}

// Conv is a 1-D same-length convolution over the time axis followed by
// ReLU. Weights are stored row-per-channel with the kernel window
// flattened, so each output value is a single dot product.
type Conv struct {
	Spec   ConvSpec    `json:"spec"`
	InDim  int         `json:"in_dim"`
	Weight [][]float64 `json:"weight"` // [Channels][Kernel*InDim]
	Bias   []float64   `json:"bias"`
}

// NewConv creates a randomly initialized branch for the given spec.
func NewConv(rng *rand.Rand, spec ConvSpec, inDim int) *Conv {
	return &Conv{
		Spec:   spec,
		InDim:  inDim,
		Weight: randMatrix(rng, spec.Channels, spec.Kernel*inDim, spec.Kernel*inDim),
		Bias:   make([]float64, spec.Channels),
	}
}

// window flattens the kernel-sized slice of x centered (with padding)
// at position t into dst, zero-filling outside the sequence. Positions
// past the sequence end contribute zeros, so shape invariants hold even
// when the kernel exceeds the sequence length (including T=1).
func (c *Conv) window(x [][]float64, t int, dst []float64) {
	D := c.InDim
	for j := 0; j < c.Spec.Kernel; j++ {
		src := t - c.Spec.Padding + j
		seg := dst[j*D : (j+1)*D]
		if src < 0 || src >= len(x) {
			for d := range seg {
				seg[d] = 0
			}
			continue
		}
		copy(seg, x[src])
	}
}

// Forward computes the [T][Channels] ReLU feature map.
func (c *Conv) Forward(x [][]float64) [][]float64 {
	T := len(x)
	out := make([][]float64, T)
	win := make([]float64, c.Spec.Kernel*c.InDim)
	for t := 0; t < T; t++ {
		c.window(x, t, win)
		out[t] = make([]float64, c.Spec.Channels)
		for ch := 0; ch < c.Spec.Channels; ch++ {
			v := c.Bias[ch] + floats.Dot(c.Weight[ch], win)
			if v > 0 {
				out[t][ch] = v
			}
		}
	}
	return out
}

// Backward accumulates weight/bias gradients into gw/gb and the input
// gradient into gradX. out is the cached Forward result; its zeros
// double as the ReLU mask.
func (c *Conv) Backward(x, out, gradOut [][]float64, gw [][]float64, gb []float64, gradX [][]float64) {
	D := c.InDim
	win := make([]float64, c.Spec.Kernel*D)
	for t := range x {
		c.window(x, t, win)
		for ch := 0; ch < c.Spec.Channels; ch++ {
			if out[t][ch] <= 0 {
				continue
			}
			g := gradOut[t][ch]
			gb[ch] += g
			floats.AddScaled(gw[ch], g, win)
			for j := 0; j < c.Spec.Kernel; j++ {
				src := t - c.Spec.Padding + j
				if src < 0 || src >= len(x) {
					continue
				}
				floats.AddScaled(gradX[src], g, c.Weight[ch][j*D:(j+1)*D])
			}
		}
	}
}

// Extractor runs the configured convolution branches in parallel over
// the same input and concatenates their feature maps. Branch order
// follows the configuration so the parameter layout is reproducible.
type Extractor struct {
	Branches []*Conv `json:"branches"`
	OutDim   int     `json:"out_dim"`
}

// NewExtractor instantiates one Conv per spec, in spec order.
func NewExtractor(rng *rand.Rand, specs []ConvSpec, inDim int) *Extractor {
	ex := &Extractor{Branches: make([]*Conv, len(specs))}
	for i, spec := range specs {
		ex.Branches[i] = NewConv(rng, spec, inDim)
		ex.OutDim += spec.Channels
	}
	return ex
}

// Forward returns the [T][OutDim] concatenated features plus the
// per-branch outputs needed for Backward.
func (ex *Extractor) Forward(x [][]float64) ([][]float64, [][][]float64) {
	T := len(x)
	branchOuts := make([][][]float64, len(ex.Branches))
	out := newMatrix(T, ex.OutDim)
	offset := 0
	for i, br := range ex.Branches {
		bo := br.Forward(x)
		branchOuts[i] = bo
		for t := 0; t < T; t++ {
			copy(out[t][offset:offset+br.Spec.Channels], bo[t])
		}
		offset += br.Spec.Channels
	}
	return out, branchOuts
}

// Backward splits the concatenated gradient per branch and accumulates
// each branch's parameter and input gradients.
func (ex *Extractor) Backward(x [][]float64, branchOuts [][][]float64, gradOut [][]float64, gw []*ConvGrads) [][]float64 {
	T := len(x)
	gradX := newMatrix(T, len(x[0]))
	offset := 0
	for i, br := range ex.Branches {
		gradBranch := make([][]float64, T)
		for t := 0; t < T; t++ {
			gradBranch[t] = gradOut[t][offset : offset+br.Spec.Channels]
		}
		br.Backward(x, branchOuts[i], gradBranch, gw[i].W, gw[i].B, gradX)
		offset += br.Spec.Channels
	}
	return gradX
}

// ConvGrads mirrors one branch's parameters.
type ConvGrads struct {
	W [][]float64
	B []float64
}
