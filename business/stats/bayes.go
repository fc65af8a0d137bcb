package stats

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// bayesianSamples is the Monte-Carlo draw count per posterior.
const bayesianSamples = 10000

// SampleBeta draws one sample from Beta(1+conversions,
// 1+impressions-conversions), the posterior belief over a variant's
// conversion rate under a uniform prior. This is the Thompson Sampling
// primitive.
func SampleBeta(conversions, impressions int) float64 {
	if impressions <= 0 {
		impressions = 1
	}
	conversions = clampConversions(conversions, impressions)

	dist := distuv.Beta{
		Alpha: 1 + float64(conversions),
		Beta:  1 + float64(impressions-conversions),
	}
	return dist.Rand()
}

// BayesianProbBBeatsA estimates P(rate_B > rate_A) by sampling both
// Beta posteriors (prior alpha=beta=1) and counting wins.
func BayesianProbBBeatsA(cA, nA, cB, nB int) float64 {
	cA = clampConversions(cA, nA)
	cB = clampConversions(cB, nB)

	distA := distuv.Beta{Alpha: 1 + float64(cA), Beta: 1 + float64(nA-cA)}
	distB := distuv.Beta{Alpha: 1 + float64(cB), Beta: 1 + float64(nB-cB)}

	wins := 0
	for i := 0; i < bayesianSamples; i++ {
		if distB.Rand() > distA.Rand() {
			wins++
		}
	}
	return float64(wins) / float64(bayesianSamples)
}
