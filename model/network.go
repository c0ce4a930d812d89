package model

import (
	"math/rand"

	"github.com/happyhackingspace/slu/crf"
)

// Config fixes the network architecture. VocabSize and the label counts
// come from the built vocabularies; the rest mirrors the configuration
// file's model.parameters block.
type Config struct {
	WordEmbeddingDims int        `json:"word_embedding_dims"`
	HiddenDims        int        `json:"hidden_dims"`
	ConvSpecs         []ConvSpec `json:"conv_configs"`
	LSTMNumLayers     int        `json:"lstm_num_layers"`
	LSTMDropout       float64    `json:"lstm_dropout"`
	VocabSize         int        `json:"vocab_size"`
	NumSlots          int        `json:"num_slots"`
	NumIntents        int        `json:"num_intents"`
}

// Network is the full cnn_bilstm_crf model.
//
// Intent pooling policy: element-wise max over all (unpadded) positions
// of the encoder output. The policy is fixed here and identical for
// training and inference.
type Network struct {
	Cfg        Config     `json:"config"`
	Embed      *Embedding `json:"embed"`
	Extractor  *Extractor `json:"extractor"`
	Encoder    *BiLSTM    `json:"encoder"`
	SlotHead   *Linear    `json:"slot_head"`
	IntentHead *Linear    `json:"intent_head"`
	CRF        *crf.Layer `json:"crf"`
}

// New builds a randomly initialized network from the architecture
// config. Conv branches are instantiated in config order so the
// parameter layout is reproducible for a given seed.
func New(cfg Config, rng *rand.Rand) *Network {
	embed := NewEmbedding(rng, cfg.VocabSize, cfg.WordEmbeddingDims)
	extractor := NewExtractor(rng, cfg.ConvSpecs, cfg.WordEmbeddingDims)
	encoder := NewBiLSTM(rng, extractor.OutDim, cfg.HiddenDims, cfg.LSTMNumLayers, cfg.LSTMDropout)
	return &Network{
		Cfg:        cfg,
		Embed:      embed,
		Extractor:  extractor,
		Encoder:    encoder,
		SlotHead:   NewLinear(rng, 2*cfg.HiddenDims, cfg.NumSlots),
		IntentHead: NewLinear(rng, 2*cfg.HiddenDims, cfg.NumIntents),
		CRF:        crf.NewLayer(cfg.NumSlots),
	}
}

// Cache carries every intermediate of one example's forward pass that
// the backward pass needs.
type Cache struct {
	IDs        []int
	Embedded   [][]float64
	ConvOut    [][]float64
	branchOuts [][][]float64
	EncOut     [][]float64
	encCache   *biCache
	Pooled     []float64
	poolIdx    []int
}

// Forward runs one token-id sequence through the network, returning the
// [T][NumSlots] CRF emissions and the intent logits. Dropout is active
// only when train is set.
func (n *Network) Forward(ids []int, train bool, rng *rand.Rand) ([][]float64, []float64, *Cache) {
	cache := &Cache{IDs: ids}
	cache.Embedded = n.Embed.Forward(ids)
	cache.ConvOut, cache.branchOuts = n.Extractor.Forward(cache.Embedded)
	cache.EncOut, cache.encCache = n.Encoder.Forward(cache.ConvOut, train, rng)

	T := len(ids)
	dim := 2 * n.Cfg.HiddenDims
	cache.Pooled = make([]float64, dim)
	cache.poolIdx = make([]int, dim)
	copy(cache.Pooled, cache.EncOut[0])
	for t := 1; t < T; t++ {
		for d, v := range cache.EncOut[t] {
			if v > cache.Pooled[d] {
				cache.Pooled[d] = v
				cache.poolIdx[d] = t
			}
		}
	}

	emissions := make([][]float64, T)
	for t := 0; t < T; t++ {
		emissions[t] = n.SlotHead.Forward(cache.EncOut[t])
	}
	intentLogits := n.IntentHead.Forward(cache.Pooled)
	return emissions, intentLogits, cache
}

// Backward accumulates the gradients of the joint loss into g given the
// upstream gradients with respect to emissions and intent logits. The
// CRF transition gradient is added by the caller, which owns the CRF
// loss computation.
func (n *Network) Backward(cache *Cache, gradEmissions [][]float64, gradLogits []float64, g *Grads) {
	T := len(cache.IDs)
	dim := 2 * n.Cfg.HiddenDims

	gradEnc := newMatrix(T, dim)
	for t := 0; t < T; t++ {
		n.SlotHead.Backward(cache.EncOut[t], gradEmissions[t], g.SlotW, g.SlotB, gradEnc[t])
	}

	gradPooled := make([]float64, dim)
	n.IntentHead.Backward(cache.Pooled, gradLogits, g.IntentW, g.IntentB, gradPooled)
	// Max pooling routes each unit's gradient to its argmax position.
	for d, t := range cache.poolIdx {
		gradEnc[t][d] += gradPooled[d]
	}

	gradConv := n.Encoder.Backward(cache.encCache, gradEnc, g.Lstm)
	gradEmbed := n.Extractor.Backward(cache.Embedded, cache.branchOuts, gradConv, g.Conv)
	n.Embed.Backward(cache.IDs, gradEmbed, g.Embed)
}

// Grads mirrors every parameter tensor of the network. Workers
// accumulate into private Grads and merge them before the single
// optimizer step per batch.
type Grads struct {
	Embed   [][]float64
	Conv    []*ConvGrads
	Lstm    []*BiLayerGrads
	SlotW   [][]float64
	SlotB   []float64
	IntentW [][]float64
	IntentB []float64
	Trans   [][]float64
}

// NewGrads allocates zeroed gradient buffers shaped like the network.
func (n *Network) NewGrads() *Grads {
	g := &Grads{
		Embed:   newMatrix(n.Cfg.VocabSize, n.Cfg.WordEmbeddingDims),
		SlotW:   newMatrix(n.SlotHead.Out, n.SlotHead.In),
		SlotB:   make([]float64, n.SlotHead.Out),
		IntentW: newMatrix(n.IntentHead.Out, n.IntentHead.In),
		IntentB: make([]float64, n.IntentHead.Out),
		Trans:   newMatrix(n.Cfg.NumSlots+2, n.Cfg.NumSlots+2),
	}
	for _, br := range n.Extractor.Branches {
		g.Conv = append(g.Conv, &ConvGrads{
			W: newMatrix(br.Spec.Channels, br.Spec.Kernel*br.InDim),
			B: make([]float64, br.Spec.Channels),
		})
	}
	for _, layer := range n.Encoder.Layers {
		g.Lstm = append(g.Lstm, &BiLayerGrads{
			FwdW: newMatrix(4*layer.Fwd.Hidden, layer.Fwd.InDim+layer.Fwd.Hidden),
			FwdB: make([]float64, 4*layer.Fwd.Hidden),
			BwdW: newMatrix(4*layer.Bwd.Hidden, layer.Bwd.InDim+layer.Bwd.Hidden),
			BwdB: make([]float64, 4*layer.Bwd.Hidden),
		})
	}
	return g
}

// Merge adds other into g element-wise.
func (g *Grads) Merge(other *Grads) {
	a, b := g.slices(), other.slices()
	for i := range a {
		for j := range a[i] {
			a[i][j] += b[i][j]
		}
	}
}

// Scale multiplies every gradient by v (for batch-size averaging).
func (g *Grads) Scale(v float64) {
	for _, s := range g.slices() {
		for j := range s {
			s[j] *= v
		}
	}
}

// paramSlices returns every parameter row of the network in a stable
// order. gradSlices on Grads must match this order exactly; the
// optimizer relies on the correspondence.
func (n *Network) paramSlices() [][]float64 {
	var out [][]float64
	out = append(out, n.Embed.Weight...)
	for _, br := range n.Extractor.Branches {
		out = append(out, br.Weight...)
		out = append(out, br.Bias)
	}
	for _, layer := range n.Encoder.Layers {
		out = append(out, layer.Fwd.W...)
		out = append(out, layer.Fwd.B)
		out = append(out, layer.Bwd.W...)
		out = append(out, layer.Bwd.B)
	}
	out = append(out, n.SlotHead.Weight...)
	out = append(out, n.SlotHead.Bias)
	out = append(out, n.IntentHead.Weight...)
	out = append(out, n.IntentHead.Bias)
	out = append(out, n.CRF.Trans...)
	return out
}

func (g *Grads) slices() [][]float64 {
	var out [][]float64
	out = append(out, g.Embed...)
	for _, c := range g.Conv {
		out = append(out, c.W...)
		out = append(out, c.B)
	}
	for _, l := range g.Lstm {
		out = append(out, l.FwdW...)
		out = append(out, l.FwdB)
		out = append(out, l.BwdW...)
		out = append(out, l.BwdB)
	}
	out = append(out, g.SlotW...)
	out = append(out, g.SlotB)
	out = append(out, g.IntentW...)
	out = append(out, g.IntentB)
	out = append(out, g.Trans...)
	return out
}
