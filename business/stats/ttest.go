package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// WelchTTest compares two samples of a continuous metric (e.g. revenue
// per visitor) without assuming equal variances and returns the
// two-tailed p-value. Empty samples return 1.0.
func WelchTTest(dataA, dataB []float64) float64 {
	if len(dataA) == 0 || len(dataB) == 0 {
		return 1.0
	}

	meanA, varA := stat.MeanVariance(dataA, nil)
	meanB, varB := stat.MeanVariance(dataB, nil)
	nA := float64(len(dataA))
	nB := float64(len(dataB))

	seSq := varA/nA + varB/nB
	if seSq == 0 {
		if meanA == meanB {
			return 1.0
		}
		return 0.0
	}

	t := (meanA - meanB) / math.Sqrt(seSq)

	// Welch-Satterthwaite degrees of freedom
	df := seSq * seSq / ((varA*varA)/(nA*nA*(nA-1)) + (varB*varB)/(nB*nB*(nB-1)))
	if math.IsNaN(df) || df <= 0 {
		return 1.0
	}

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.CDF(-math.Abs(t))
}

// BonferroniAlpha shrinks a significance threshold for the number of
// pairwise comparisons sharing it.
func BonferroniAlpha(alpha float64, comparisons int) float64 {
	if comparisons <= 1 {
		return alpha
	}
	return alpha / float64(comparisons)
}
