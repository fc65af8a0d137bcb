// Package stats provides the pure significance functions behind winner
// determination: Wilson intervals, frequentist tests, Bayesian win
// probabilities and the sequential probability ratio test. Functions
// operate on raw (conversions, impressions) counts or value slices and
// keep no state.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// clampConversions keeps conversions within [0, impressions]; counter
// rows can briefly disagree between a write-through conversion and a
// buffered impression flush.
func clampConversions(conversions, impressions int) int {
	if conversions < 0 {
		return 0
	}
	if conversions > impressions {
		return impressions
	}
	return conversions
}

// WilsonInterval returns the Wilson score confidence interval for a
// proportion. Zero trials yield (0, 0).
func WilsonInterval(successes, trials int, confidenceLevel float64) (float64, float64) {
	if trials == 0 {
		return 0.0, 0.0
	}
	successes = clampConversions(successes, trials)

	z := distuv.UnitNormal.Quantile(1 - (1-confidenceLevel)/2)
	n := float64(trials)
	pHat := float64(successes) / n

	denominator := 1 + z*z/n
	center := pHat + z*z/(2*n)
	interval := z * math.Sqrt(pHat*(1-pHat)/n+z*z/(4*n*n))

	lower := math.Max(0, (center-interval)/denominator)
	upper := math.Min(1, (center+interval)/denominator)

	return lower, upper
}

// ProportionsZTest performs a pooled two-proportion z-test and returns
// the two-tailed p-value. Degenerate inputs return 1.0 (no evidence).
func ProportionsZTest(c1, n1, c2, n2 int) float64 {
	if n1 == 0 || n2 == 0 {
		return 1.0
	}
	c1 = clampConversions(c1, n1)
	c2 = clampConversions(c2, n2)

	p1 := float64(c1) / float64(n1)
	p2 := float64(c2) / float64(n2)
	pPooled := float64(c1+c2) / float64(n1+n2)

	if pPooled <= 0 || pPooled >= 1 {
		return 1.0
	}

	se := math.Sqrt(pPooled * (1 - pPooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 1.0
	}

	zScore := (p1 - p2) / se
	return 2 * (1 - distuv.UnitNormal.CDF(math.Abs(zScore)))
}

// EffectSizeCohenH returns Cohen's h between two proportions. The
// epsilon clamp keeps the arcsine transform inside its domain for
// proportions at exactly 0 or 1.
func EffectSizeCohenH(c1, n1, c2, n2 int) float64 {
	const epsilon = 1e-6

	if n1 == 0 || n2 == 0 {
		return 0.0
	}

	p1 := math.Max(epsilon, math.Min(1-epsilon, float64(c1)/float64(n1)))
	p2 := math.Max(epsilon, math.Min(1-epsilon, float64(c2)/float64(n2)))

	return 2 * (math.Asin(math.Sqrt(p1)) - math.Asin(math.Sqrt(p2)))
}

// ChiSquareTest runs a chi-square independence test over the
// conversion/impression contingency table of two or more variants and
// returns the p-value. Degenerate tables return 1.0.
func ChiSquareTest(conversions, impressions []int) float64 {
	if len(conversions) < 2 || len(conversions) != len(impressions) {
		return 1.0
	}

	k := len(conversions)
	successes := make([]float64, k)
	failures := make([]float64, k)
	grand := 0.0
	successTotal := 0.0
	failureTotal := 0.0

	for i := 0; i < k; i++ {
		c := clampConversions(conversions[i], impressions[i])
		successes[i] = float64(c)
		failures[i] = float64(impressions[i] - c)
		successTotal += successes[i]
		failureTotal += failures[i]
		grand += float64(impressions[i])
	}

	if grand == 0 || successTotal == 0 || failureTotal == 0 {
		return 1.0
	}

	chi2 := 0.0
	for i := 0; i < k; i++ {
		colTotal := successes[i] + failures[i]
		if colTotal == 0 {
			continue
		}
		expSuccess := successTotal * colTotal / grand
		expFailure := failureTotal * colTotal / grand
		chi2 += (successes[i] - expSuccess) * (successes[i] - expSuccess) / expSuccess
		chi2 += (failures[i] - expFailure) * (failures[i] - expFailure) / expFailure
	}

	dist := distuv.ChiSquared{K: float64(k - 1)}
	return 1 - dist.CDF(chi2)
}
