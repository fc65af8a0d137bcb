package stats

import "math"

// SPRTVerdict is the outcome of a sequential probability ratio test.
type SPRTVerdict string

const (
	// AcceptH1: B's conversion rate exceeds A's by at least the minimum
	// detectable effect.
	AcceptH1 SPRTVerdict = "accept_h1"
	// AcceptH0: no meaningful difference.
	AcceptH0 SPRTVerdict = "accept_h0"
	// Continue: insufficient evidence either way; keep collecting.
	Continue SPRTVerdict = "continue"
)

// SPRT tests whether variant B's conversion rate exceeds variant A's
// by at least minEffect, valid under continuous monitoring. A's
// observed rate forms the null hypothesis; B's counts are the observed
// data. Boundaries derive from the target error rates: evidence above
// ln((1-beta)/alpha) accepts H1, below ln(alpha/(1-beta)) accepts H0,
// anything between keeps collecting.
func SPRT(cA, nA, cB, nB int, alpha, beta, minEffect float64) SPRTVerdict {
	if nA == 0 || nB == 0 {
		return Continue
	}
	cA = clampConversions(cA, nA)
	cB = clampConversions(cB, nB)

	p0 := float64(cA) / float64(nA)
	p1 := p0 + minEffect

	// Degenerate hypotheses: both log terms would leave the domain.
	if p0 <= 0 {
		p0 = math.SmallestNonzeroFloat64
	}
	if p1 >= 1 {
		p1 = 1 - 1e-12
	}

	upper := math.Log((1 - beta) / alpha)
	lower := math.Log(alpha / (1 - beta))

	llr := float64(cB)*math.Log(p1/p0) +
		float64(nB-cB)*math.Log((1-p1)/(1-p0))

	switch {
	case llr > upper:
		return AcceptH1
	case llr < lower:
		return AcceptH0
	default:
		return Continue
	}
}
