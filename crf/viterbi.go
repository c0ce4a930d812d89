package crf

import "math"

// Decode finds the best label sequence with the Viterbi algorithm
// (log-domain, carrying back-pointers).
//
// Labels are scanned in ascending id order with a strict-greater
// comparison, so among equal-scoring alternatives the lowest label id
// wins at every step. Decoding is deterministic given identical
// emissions and transitions.
func (l *Layer) Decode(emissions [][]float64) ([]int, float64, error) {
	T := len(emissions)
	if T == 0 {
		return nil, math.Inf(-1), ErrEmptySequence
	}
	L := l.NumLabels

	// delta[t][y] = best score of any path ending at t with label y
	delta := make([][]float64, T)
	// psi[t][y] = predecessor label of that path
	psi := make([][]int, T)

	delta[0] = make([]float64, L)
	psi[0] = make([]int, L)
	for y := 0; y < L; y++ {
		delta[0][y] = l.Trans[l.Start()][y] + emissions[0][y]
	}

	for t := 1; t < T; t++ {
		delta[t] = make([]float64, L)
		psi[t] = make([]int, L)
		for y := 0; y < L; y++ {
			bestScore := math.Inf(-1)
			bestPrev := 0
			for yp := 0; yp < L; yp++ {
				score := delta[t-1][yp] + l.Trans[yp][y]
				if score > bestScore {
					bestScore = score
					bestPrev = yp
				}
			}
			delta[t][y] = bestScore + emissions[t][y]
			psi[t][y] = bestPrev
		}
	}

	bestScore := math.Inf(-1)
	bestLabel := 0
	for y := 0; y < L; y++ {
		score := delta[T-1][y] + l.Trans[y][l.End()]
		if score > bestScore {
			bestScore = score
			bestLabel = y
		}
	}

	path := make([]int, T)
	path[T-1] = bestLabel
	for t := T - 2; t >= 0; t-- {
		path[t] = psi[t+1][path[t+1]]
	}
	return path, bestScore, nil
}
