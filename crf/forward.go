package crf

import "gonum.org/v1/gonum/floats"

// Forward runs the log-domain forward algorithm.
// emissions: [T][L] scores. Returns the log partition function and the
// [T][L] alpha table. Log-sum-exp is computed with max subtraction
// (gonum floats.LogSumExp); summing raw exponentials overflows for
// realistic sequence lengths.
func (l *Layer) Forward(emissions [][]float64) (float64, [][]float64, error) {
	T := len(emissions)
	if T == 0 {
		return 0, nil, ErrEmptySequence
	}
	L := l.NumLabels

	alpha := make([][]float64, T)
	scratch := make([]float64, L)

	alpha[0] = make([]float64, L)
	for j := 0; j < L; j++ {
		alpha[0][j] = l.Trans[l.Start()][j] + emissions[0][j]
	}

	for t := 1; t < T; t++ {
		alpha[t] = make([]float64, L)
		for j := 0; j < L; j++ {
			for i := 0; i < L; i++ {
				scratch[i] = alpha[t-1][i] + l.Trans[i][j]
			}
			alpha[t][j] = emissions[t][j] + floats.LogSumExp(scratch)
		}
	}

	for j := 0; j < L; j++ {
		scratch[j] = alpha[T-1][j] + l.Trans[j][l.End()]
	}
	logZ := floats.LogSumExp(scratch)
	if !isFinite(logZ) {
		return 0, nil, &NumericError{LogZ: logZ}
	}
	return logZ, alpha, nil
}

// backward computes the [T][L] beta table, the mirror recurrence of
// Forward: beta[t][i] sums over all continuations from label i at t.
func (l *Layer) backward(emissions [][]float64) [][]float64 {
	T := len(emissions)
	L := l.NumLabels

	beta := make([][]float64, T)
	scratch := make([]float64, L)

	beta[T-1] = make([]float64, L)
	for i := 0; i < L; i++ {
		beta[T-1][i] = l.Trans[i][l.End()]
	}

	for t := T - 2; t >= 0; t-- {
		beta[t] = make([]float64, L)
		for i := 0; i < L; i++ {
			for j := 0; j < L; j++ {
				scratch[j] = l.Trans[i][j] + emissions[t+1][j] + beta[t+1][j]
			}
			beta[t][i] = floats.LogSumExp(scratch)
		}
	}
	return beta
}

// Loss computes the negative log-likelihood of the gold label sequence
// together with its analytic gradients.
//
// gradEmissions[t][j] = P(y_t=j|x) - 1{gold_t=j}
// gradTrans[i][j]     = E_model[count(i->j)] - count_gold(i->j)
//
// gradTrans has the same [L+2][L+2] shape as Trans; rows and columns of
// the unused pseudo-label slots stay zero. The loss is >= 0 for any
// finite scores; a negative value indicates an indexing or numeric bug
// upstream.
func (l *Layer) Loss(emissions [][]float64, gold []int) (float64, [][]float64, [][]float64, error) {
	goldScore, err := l.Score(emissions, gold)
	if err != nil {
		return 0, nil, nil, err
	}
	logZ, alpha, err := l.Forward(emissions)
	if err != nil {
		return 0, nil, nil, err
	}
	beta := l.backward(emissions)

	T := len(emissions)
	L := l.NumLabels
	start, end := l.Start(), l.End()

	gradE := make([][]float64, T)
	gradTrans := make([][]float64, L+2)
	for i := 0; i < L+2; i++ {
		gradTrans[i] = make([]float64, L+2)
	}

	// Unary marginals minus gold indicators.
	for t := 0; t < T; t++ {
		gradE[t] = make([]float64, L)
		for j := 0; j < L; j++ {
			gradE[t][j] = exp(alpha[t][j] + beta[t][j] - logZ)
		}
		gradE[t][gold[t]] -= 1
	}

	// Boundary transitions.
	for j := 0; j < L; j++ {
		gradTrans[start][j] = exp(alpha[0][j] + beta[0][j] - logZ)
		gradTrans[j][end] = exp(alpha[T-1][j] + beta[T-1][j] - logZ)
	}
	gradTrans[start][gold[0]] -= 1
	gradTrans[gold[T-1]][end] -= 1

	// Pairwise marginals minus gold transition counts.
	for t := 0; t < T-1; t++ {
		for i := 0; i < L; i++ {
			for j := 0; j < L; j++ {
				p := exp(alpha[t][i] + l.Trans[i][j] + emissions[t+1][j] + beta[t+1][j] - logZ)
				gradTrans[i][j] += p
			}
		}
		gradTrans[gold[t]][gold[t+1]] -= 1
	}

	return logZ - goldScore, gradE, gradTrans, nil
}

// Marginals returns the [T][L] per-position label posteriors P(y_t=j|x).
func (l *Layer) Marginals(emissions [][]float64) ([][]float64, error) {
	logZ, alpha, err := l.Forward(emissions)
	if err != nil {
		return nil, err
	}
	beta := l.backward(emissions)

	T := len(emissions)
	L := l.NumLabels
	marginals := make([][]float64, T)
	for t := 0; t < T; t++ {
		marginals[t] = make([]float64, L)
		for j := 0; j < L; j++ {
			marginals[t][j] = exp(alpha[t][j] + beta[t][j] - logZ)
		}
	}
	return marginals, nil
}
