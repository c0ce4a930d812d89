// Package crf implements a linear-chain Conditional Random Field layer
// scoring dense per-token emission matrices.
//
// The transition matrix is augmented with START and END pseudo-labels at
// indices NumLabels and NumLabels+1, so boundary scores live in the same
// matrix as pairwise scores. Transitions into START and out of END are
// never read.
package crf

import (
	"fmt"
	"math"
)

// Layer holds the CRF transition parameters.
type Layer struct {
	NumLabels int         `json:"num_labels"`
	Trans     [][]float64 `json:"trans"` // [L+2][L+2]; Trans[i][j] scores j following i
}

// ErrEmptySequence is returned for zero-length inputs; the chain has no
// well-defined score without at least one emission.
var ErrEmptySequence = fmt.Errorf("crf: empty sequence")

// NumericError reports a non-finite partition function, which means the
// emission or transition scores have diverged.
type NumericError struct {
	LogZ float64
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("crf: non-finite log partition function %v", e.LogZ)
}

// NewLayer creates a CRF layer for numLabels slot labels with zeroed
// transitions.
func NewLayer(numLabels int) *Layer {
	size := numLabels + 2
	trans := make([][]float64, size)
	for i := 0; i < size; i++ {
		trans[i] = make([]float64, size)
	}
	return &Layer{NumLabels: numLabels, Trans: trans}
}

// Start returns the START pseudo-label index.
func (l *Layer) Start() int { return l.NumLabels }

// End returns the END pseudo-label index.
func (l *Layer) End() int { return l.NumLabels + 1 }

// Score computes the unnormalized score of one label sequence:
// emissions plus start, pairwise and end transitions.
func (l *Layer) Score(emissions [][]float64, labels []int) (float64, error) {
	T := len(emissions)
	if T == 0 {
		return 0, ErrEmptySequence
	}
	if len(labels) != T {
		return 0, fmt.Errorf("crf: %d labels for %d emissions", len(labels), T)
	}
	for t, y := range labels {
		if y < 0 || y >= l.NumLabels {
			return 0, fmt.Errorf("crf: label id %d out of range at position %d", y, t)
		}
	}

	score := l.Trans[l.Start()][labels[0]] + emissions[0][labels[0]]
	for t := 1; t < T; t++ {
		score += l.Trans[labels[t-1]][labels[t]] + emissions[t][labels[t]]
	}
	score += l.Trans[labels[T-1]][l.End()]
	return score, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func exp(v float64) float64 { return math.Exp(v) }
