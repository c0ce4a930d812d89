package model

import "math/rand"

// Embedding maps token ids to dense vectors.
type Embedding struct {
	VocabSize int         `json:"vocab_size"`
	Dim       int         `json:"dim"`
	Weight    [][]float64 `json:"weight"` // [VocabSize][Dim]
}

// NewEmbedding creates a randomly initialized embedding table.
func NewEmbedding(rng *rand.Rand, vocabSize, dim int) *Embedding {
	return &Embedding{
		VocabSize: vocabSize,
		Dim:       dim,
		Weight:    randMatrix(rng, vocabSize, dim, dim),
	}
}

// Forward looks up the embedding row for every token id.
// Rows are copied so downstream layers cannot alias the table.
func (e *Embedding) Forward(ids []int) [][]float64 {
	out := make([][]float64, len(ids))
	for t, id := range ids {
		out[t] = make([]float64, e.Dim)
		copy(out[t], e.Weight[id])
	}
	return out
}

// Backward scatters the incoming gradient back onto the rows that were
// looked up. gw mirrors Weight.
func (e *Embedding) Backward(ids []int, grad [][]float64, gw [][]float64) {
	for t, id := range ids {
		row := gw[id]
		for d, v := range grad[t] {
			row[d] += v
		}
	}
}
