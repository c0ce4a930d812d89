// Package model implements the cnn_bilstm_crf network: an embedding
// layer, a multi-scale convolutional feature extractor, a stacked
// bidirectional LSTM encoder and the intent/slot output heads, with
// analytic backpropagation throughout. Parameters are plain float64
// slices; batching and parameter updates live in the trainer.
package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

func newMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		m[i] = make([]float64, cols)
	}
	return m
}

// randMatrix initializes a [rows][cols] matrix uniformly in
// [-1/sqrt(fanIn), 1/sqrt(fanIn)].
func randMatrix(rng *rand.Rand, rows, cols, fanIn int) [][]float64 {
	scale := 1.0 / math.Sqrt(float64(fanIn))
	m := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		m[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			m[i][j] = (rng.Float64()*2 - 1) * scale
		}
	}
	return m
}

// SoftmaxCrossEntropy computes the categorical cross-entropy of logits
// against the gold class and its gradient with respect to the logits.
func SoftmaxCrossEntropy(logits []float64, gold int) (float64, []float64) {
	logZ := floats.LogSumExp(logits)
	grad := make([]float64, len(logits))
	for i, v := range logits {
		grad[i] = math.Exp(v - logZ)
	}
	loss := logZ - logits[gold]
	grad[gold] -= 1
	return loss, grad
}

// Argmax returns the index of the maximum value; ties resolve to the
// lowest index so classification is deterministic.
func Argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
