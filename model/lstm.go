package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// LSTMCell holds the parameters of one directional LSTM. The four gate
// blocks (input, forget, cell, output) are stacked row-wise in W so the
// whole step is one matrix-vector product against [x_t ; h_{t-1}].
type LSTMCell struct {
	InDim  int         `json:"in_dim"`
	Hidden int         `json:"hidden"`
	W      [][]float64 `json:"w"` // [4*Hidden][InDim+Hidden]
	B      []float64   `json:"b"` // [4*Hidden]
}

// NewLSTMCell creates a cell with fan-in scaled init and forget-gate
// biases set to 1 so early training does not wash out the cell state.
func NewLSTMCell(rng *rand.Rand, inDim, hidden int) *LSTMCell {
	c := &LSTMCell{
		InDim:  inDim,
		Hidden: hidden,
		W:      randMatrix(rng, 4*hidden, inDim+hidden, inDim+hidden),
		B:      make([]float64, 4*hidden),
	}
	for h := 0; h < hidden; h++ {
		c.B[hidden+h] = 1 // forget gate block
	}
	return c
}

// cellCache stores everything the backward pass needs, indexed by
// processing step (not original time position).
type cellCache struct {
	order []int       // processing step -> original t
	z     [][]float64 // concatenated [x_t ; h_{t-1}]
	i     [][]float64 // gate activations
	f     [][]float64
	g     [][]float64
	o     [][]float64
	c     [][]float64 // cell states
	tanhC [][]float64
	h     [][]float64 // hidden states
}

func sigmoid(v float64) float64 {
	// Split on sign so exp never overflows.
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	ev := math.Exp(v)
	return ev / (1 + ev)
}

func tanh(v float64) float64 { return math.Tanh(v) }

// Forward runs the cell over the sequence, in reverse time order when
// reverse is set. Hidden states are returned indexed by original time
// position regardless of direction, so sequence order is preserved for
// the layers above.
func (c *LSTMCell) Forward(xs [][]float64, reverse bool) ([][]float64, *cellCache) {
	T := len(xs)
	H := c.Hidden
	cache := &cellCache{
		order: make([]int, T),
		z:     make([][]float64, T),
		i:     make([][]float64, T),
		f:     make([][]float64, T),
		g:     make([][]float64, T),
		o:     make([][]float64, T),
		c:     make([][]float64, T),
		tanhC: make([][]float64, T),
		h:     make([][]float64, T),
	}
	hs := make([][]float64, T)

	hPrev := make([]float64, H)
	cPrev := make([]float64, H)
	for k := 0; k < T; k++ {
		t := k
		if reverse {
			t = T - 1 - k
		}
		cache.order[k] = t

		z := make([]float64, c.InDim+H)
		copy(z, xs[t])
		copy(z[c.InDim:], hPrev)

		it := make([]float64, H)
		ft := make([]float64, H)
		gt := make([]float64, H)
		ot := make([]float64, H)
		ct := make([]float64, H)
		tc := make([]float64, H)
		ht := make([]float64, H)
		for h := 0; h < H; h++ {
			it[h] = sigmoid(c.B[h] + floats.Dot(c.W[h], z))
			ft[h] = sigmoid(c.B[H+h] + floats.Dot(c.W[H+h], z))
			gt[h] = tanh(c.B[2*H+h] + floats.Dot(c.W[2*H+h], z))
			ot[h] = sigmoid(c.B[3*H+h] + floats.Dot(c.W[3*H+h], z))
			ct[h] = ft[h]*cPrev[h] + it[h]*gt[h]
			tc[h] = tanh(ct[h])
			ht[h] = ot[h] * tc[h]
		}

		cache.z[k] = z
		cache.i[k] = it
		cache.f[k] = ft
		cache.g[k] = gt
		cache.o[k] = ot
		cache.c[k] = ct
		cache.tanhC[k] = tc
		cache.h[k] = ht
		hs[t] = ht
		hPrev = ht
		cPrev = ct
	}
	return hs, cache
}

// Backward runs truncated-free BPTT over the cached sequence. gradH is
// indexed by original time position. Parameter gradients accumulate
// into gw/gb; the returned input gradients are indexed by original
// time position as well.
func (c *LSTMCell) Backward(cache *cellCache, gradH [][]float64, gw [][]float64, gb []float64) [][]float64 {
	T := len(cache.order)
	H := c.Hidden
	gradX := make([][]float64, T)

	dhNext := make([]float64, H)
	dcNext := make([]float64, H)
	dz := make([]float64, 4*H)
	for k := T - 1; k >= 0; k-- {
		t := cache.order[k]
		it, ft, gt, ot := cache.i[k], cache.f[k], cache.g[k], cache.o[k]
		tc := cache.tanhC[k]

		var cPrev []float64
		if k > 0 {
			cPrev = cache.c[k-1]
		}

		for h := 0; h < H; h++ {
			dh := gradH[t][h] + dhNext[h]
			dc := dcNext[h] + dh*ot[h]*(1-tc[h]*tc[h])
			do := dh * tc[h]

			prev := 0.0
			if cPrev != nil {
				prev = cPrev[h]
			}
			dz[h] = dc * gt[h] * it[h] * (1 - it[h])   // input gate pre-activation
			dz[H+h] = dc * prev * ft[h] * (1 - ft[h])  // forget gate
			dz[2*H+h] = dc * it[h] * (1 - gt[h]*gt[h]) // candidate
			dz[3*H+h] = do * ot[h] * (1 - ot[h])       // output gate
			dcNext[h] = dc * ft[h]
		}

		z := cache.z[k]
		dxh := make([]float64, c.InDim+H)
		for r := 0; r < 4*H; r++ {
			if dz[r] == 0 {
				continue
			}
			floats.AddScaled(gw[r], dz[r], z)
			gb[r] += dz[r]
			floats.AddScaled(dxh, dz[r], c.W[r])
		}

		gradX[t] = dxh[:c.InDim:c.InDim]
		copy(dhNext, dxh[c.InDim:])
	}
	return gradX
}

// BiLayer pairs a forward and a backward cell over the same input.
type BiLayer struct {
	Fwd *LSTMCell `json:"fwd"`
	Bwd *LSTMCell `json:"bwd"`
}

// BiLSTM stacks bidirectional layers with inter-layer dropout.
type BiLSTM struct {
	Layers  []*BiLayer `json:"layers"`
	Hidden  int        `json:"hidden"`
	Dropout float64    `json:"dropout"`
}

// NewBiLSTM builds numLayers stacked bidirectional layers. The first
// layer consumes inDim features, deeper layers consume the 2*hidden
// concatenated output of the layer below.
func NewBiLSTM(rng *rand.Rand, inDim, hidden, numLayers int, dropout float64) *BiLSTM {
	b := &BiLSTM{Hidden: hidden, Dropout: dropout}
	for l := 0; l < numLayers; l++ {
		in := inDim
		if l > 0 {
			in = 2 * hidden
		}
		b.Layers = append(b.Layers, &BiLayer{
			Fwd: NewLSTMCell(rng, in, hidden),
			Bwd: NewLSTMCell(rng, in, hidden),
		})
	}
	return b
}

type biLayerCache struct {
	input    [][]float64
	fwd, bwd *cellCache
	mask     []float64 // inverted dropout scale per unit; nil outside training
}

type biCache struct {
	layers []*biLayerCache
}

// Forward produces [T][2*Hidden] context vectors. Dropout applies
// between layers during training only and is disabled at inference.
func (b *BiLSTM) Forward(x [][]float64, train bool, rng *rand.Rand) ([][]float64, *biCache) {
	T := len(x)
	cache := &biCache{}
	input := x
	var out [][]float64
	for li, layer := range b.Layers {
		lc := &biLayerCache{input: input}
		hF, cF := layer.Fwd.Forward(input, false)
		hB, cB := layer.Bwd.Forward(input, true)
		lc.fwd, lc.bwd = cF, cB

		out = make([][]float64, T)
		for t := 0; t < T; t++ {
			out[t] = make([]float64, 2*b.Hidden)
			copy(out[t], hF[t])
			copy(out[t][b.Hidden:], hB[t])
		}

		if train && b.Dropout > 0 && li < len(b.Layers)-1 {
			keep := 1 - b.Dropout
			mask := make([]float64, 2*b.Hidden)
			for u := range mask {
				if rng.Float64() < keep {
					mask[u] = 1 / keep
				}
			}
			for t := 0; t < T; t++ {
				for u := range out[t] {
					out[t][u] *= mask[u]
				}
			}
			lc.mask = mask
		}

		cache.layers = append(cache.layers, lc)
		input = out
	}
	return out, cache
}

// Backward propagates gradOut through every layer, accumulating cell
// gradients into gw (indexed like Layers) and returning the gradient
// with respect to the original input.
func (b *BiLSTM) Backward(cache *biCache, gradOut [][]float64, gw []*BiLayerGrads) [][]float64 {
	T := len(gradOut)
	grad := gradOut
	for li := len(b.Layers) - 1; li >= 0; li-- {
		layer := b.Layers[li]
		lc := cache.layers[li]

		if lc.mask != nil {
			masked := make([][]float64, T)
			for t := 0; t < T; t++ {
				masked[t] = make([]float64, len(grad[t]))
				for u := range grad[t] {
					masked[t][u] = grad[t][u] * lc.mask[u]
				}
			}
			grad = masked
		}

		gradF := make([][]float64, T)
		gradB := make([][]float64, T)
		for t := 0; t < T; t++ {
			gradF[t] = grad[t][:b.Hidden]
			gradB[t] = grad[t][b.Hidden:]
		}

		gxF := layer.Fwd.Backward(lc.fwd, gradF, gw[li].FwdW, gw[li].FwdB)
		gxB := layer.Bwd.Backward(lc.bwd, gradB, gw[li].BwdW, gw[li].BwdB)

		next := make([][]float64, T)
		for t := 0; t < T; t++ {
			next[t] = gxF[t]
			floats.Add(next[t], gxB[t])
		}
		grad = next
	}
	return grad
}

// BiLayerGrads mirrors one BiLayer's parameters.
type BiLayerGrads struct {
	FwdW [][]float64
	FwdB []float64
	BwdW [][]float64
	BwdB []float64
}
