package subspace

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Statistic returns the projection-energy ratio ||Uᵀx||² / ||x||² of window
// onto the orthonormal vectors. With demean the window mean is removed first.
// The result is clamped to [0,1]; a window with no energy scores 0.
func Statistic(vectors [][]float64, window []float64, demean bool) float64 {
	x := window
	if demean {
		x = demeaned(window)
	}

	energy := floats.Dot(x, x)
	if energy == 0 || math.IsNaN(energy) {
		return 0
	}

	var projected float64
	for _, u := range vectors {
		c := floats.Dot(u, x)
		projected += c * c
	}
	return math.Max(0, math.Min(1, projected/energy))
}

// Correlation returns the Pearson correlation coefficient of template and
// window, in [-1,1]. Constant inputs score 0.
func Correlation(template, window []float64) float64 {
	n := min(len(template), len(window))
	if n == 0 {
		return 0
	}
	a := demeaned(template[:n])
	b := demeaned(window[:n])

	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 || math.IsNaN(na*nb) {
		return 0
	}
	return math.Max(-1, math.Min(1, floats.Dot(a, b)/(na*nb)))
}

// unitNormalized returns x demeaned and scaled to unit norm, and false when x
// has no variance.
func unitNormalized(x []float64) ([]float64, bool) {
	out := demeaned(x)
	norm := floats.Norm(out, 2)
	if norm == 0 || math.IsNaN(norm) {
		return out, false
	}
	floats.Scale(1/norm, out)
	return out, true
}

func demeaned(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	if len(out) == 0 {
		return out
	}
	floats.AddConst(-floats.Sum(out)/float64(len(out)), out)
	return out
}
