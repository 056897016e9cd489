package montecarlo

import (
	"math"
	"slices"
)

// Quantile returns the p-quantile of x by linear interpolation between the
// order statistics at rank (n-1)*p. x is not modified.
//
// gonum's stat.Quantile offers stat.LinInterp, but that estimator uses a
// different plotting position and disagrees with the (n-1)*p convention
// reporting consumers calibrate against.
func Quantile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}

	sorted := slices.Clone(x)
	slices.Sort(sorted)

	h := float64(len(sorted)-1) * p
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// TailMean is the mean of all values at or above threshold. With an empty
// tail it returns threshold itself.
func TailMean(x []float64, threshold float64) float64 {
	var sum float64
	var n int
	for _, v := range x {
		if v >= threshold {
			sum += v
			n++
		}
	}
	if n == 0 {
		return threshold
	}
	return sum / float64(n)
}
