package cluster

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
)

// NCC returns the normalized cross-correlation of a and b maximized over
// integer lags in [-maxLag, maxLag]. Both inputs are demeaned and normalized
// by their full-length energy, so the result lies in [-1, 1]. A trace with
// zero variance correlates at 0 with everything.
func NCC(a, b []float64, maxLag int) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	da := demeaned(a[:n])
	db := demeaned(b[:n])

	na := floats.Norm(da, 2)
	nb := floats.Norm(db, 2)
	if na == 0 || nb == 0 {
		return 0
	}

	maxLag = min(max(maxLag, 0), n-1)
	best := math.Inf(-1)
	for lag := -maxLag; lag <= maxLag; lag++ {
		var dot float64
		if lag >= 0 {
			dot = floats.Dot(da[:n-lag], db[lag:])
		} else {
			dot = floats.Dot(da[-lag:], db[:n+lag])
		}
		if dot > best {
			best = dot
		}
	}

	return clamp(best/(na*nb), -1, 1)
}

// SimilarityMatrix computes the symmetric NCC matrix of equal-length traces.
// The diagonal is 1.
func SimilarityMatrix(ctx context.Context, traces [][]float64, maxLag int) ([][]float64, error) {
	n := len(traces)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1
	}

	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < n; j++ {
			s := NCC(traces[i], traces[j], maxLag)
			matrix[i][j] = s
			matrix[j][i] = s
		}
	}
	return matrix, nil
}

func demeaned(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	mean := floats.Sum(out) / float64(len(out))
	floats.AddConst(-mean, out)
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
