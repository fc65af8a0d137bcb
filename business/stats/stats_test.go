//go:build !integration

package stats

import (
	"math"
	"testing"
)

func TestWilsonInterval_BoundsAndWidth(t *testing.T) {
	cases := []struct {
		name       string
		successes  int
		trials     int
	}{
		{"small sample", 10, 20},
		{"large sample", 100, 200},
		{"zero successes", 0, 50},
		{"all successes", 50, 50},
	}

	for _, tc := range cases {
		lower, upper := WilsonInterval(tc.successes, tc.trials, 0.95)
		if lower < 0 || upper > 1 || lower > upper {
			t.Errorf("%s: interval [%f, %f] outside [0,1] or inverted", tc.name, lower, upper)
		}
	}

	// Same rate, fewer impressions -> wider interval.
	smallLower, smallUpper := WilsonInterval(10, 20, 0.95)
	largeLower, largeUpper := WilsonInterval(100, 200, 0.95)
	if (smallUpper - smallLower) <= (largeUpper - largeLower) {
		t.Errorf("expected 10/20 interval wider than 100/200: got %f vs %f",
			smallUpper-smallLower, largeUpper-largeLower)
	}
}

func TestWilsonInterval_ZeroTrials(t *testing.T) {
	lower, upper := WilsonInterval(0, 0, 0.95)
	if lower != 0 || upper != 0 {
		t.Errorf("zero trials should give (0,0), got (%f,%f)", lower, upper)
	}
}

func TestProportionsZTest(t *testing.T) {
	if p := ProportionsZTest(0, 0, 5, 100); p != 1.0 {
		t.Errorf("zero trials should give p=1.0, got %f", p)
	}
	if p := ProportionsZTest(0, 100, 0, 100); p != 1.0 {
		t.Errorf("pooled proportion 0 should give p=1.0, got %f", p)
	}
	if p := ProportionsZTest(100, 100, 100, 100); p != 1.0 {
		t.Errorf("pooled proportion 1 should give p=1.0, got %f", p)
	}

	// Clearly different rates should be significant.
	if p := ProportionsZTest(5, 200, 25, 200); p >= 0.05 {
		t.Errorf("5/200 vs 25/200 should be significant, got p=%f", p)
	}

	// Identical rates carry no evidence.
	if p := ProportionsZTest(10, 100, 10, 100); p < 0.95 {
		t.Errorf("identical rates should give p close to 1, got %f", p)
	}
}

func TestEffectSizeCohenH(t *testing.T) {
	if h := EffectSizeCohenH(0, 0, 5, 10); h != 0 {
		t.Errorf("zero trials should give h=0, got %f", h)
	}

	// Extreme proportions must not produce NaN thanks to the epsilon
	// clamp.
	h := EffectSizeCohenH(0, 100, 100, 100)
	if math.IsNaN(h) {
		t.Error("expected clamped Cohen's h, got NaN")
	}

	// Sign follows the order of arguments.
	if h := EffectSizeCohenH(30, 100, 10, 100); h <= 0 {
		t.Errorf("higher first proportion should give positive h, got %f", h)
	}
}

func TestBayesianProbBBeatsA_Symmetry(t *testing.T) {
	pBBeatsA := BayesianProbBBeatsA(50, 1000, 100, 1000)
	pABeatsB := BayesianProbBBeatsA(100, 1000, 50, 1000)

	if sum := pBBeatsA + pABeatsB; math.Abs(sum-1.0) > 0.03 {
		t.Errorf("P(B>A)+P(A>B) should be ~1 within sampling tolerance, got %f", sum)
	}

	if pBBeatsA < 0.95 {
		t.Errorf("100/1000 should beat 50/1000 almost surely, got %f", pBBeatsA)
	}
}

func TestSampleBeta_Range(t *testing.T) {
	for i := 0; i < 100; i++ {
		s := SampleBeta(10, 100)
		if s < 0 || s > 1 {
			t.Fatalf("beta sample out of range: %f", s)
		}
	}
}

func TestSPRT(t *testing.T) {
	cases := []struct {
		name           string
		cA, nA, cB, nB int
		want           SPRTVerdict
	}{
		{"clear winner", 50, 1000, 100, 1000, AcceptH1},
		{"too close to call", 10, 1000, 11, 1000, Continue},
		{"clearly worse", 100, 1000, 50, 1000, AcceptH0},
		{"no data", 0, 0, 100, 1000, Continue},
	}

	for _, tc := range cases {
		got := SPRT(tc.cA, tc.nA, tc.cB, tc.nB, 0.05, 0.2, 0.01)
		if got != tc.want {
			t.Errorf("%s: SPRT(%d/%d vs %d/%d) = %s, want %s",
				tc.name, tc.cA, tc.nA, tc.cB, tc.nB, got, tc.want)
		}
	}
}

func TestChiSquareTest(t *testing.T) {
	if p := ChiSquareTest([]int{5}, []int{100}); p != 1.0 {
		t.Errorf("single variant should give p=1.0, got %f", p)
	}
	if p := ChiSquareTest([]int{0, 0}, []int{0, 0}); p != 1.0 {
		t.Errorf("empty table should give p=1.0, got %f", p)
	}

	if p := ChiSquareTest([]int{5, 25}, []int{200, 200}); p >= 0.05 {
		t.Errorf("clearly unequal variants should be significant, got p=%f", p)
	}
	if p := ChiSquareTest([]int{20, 20, 20}, []int{200, 200, 200}); p < 0.9 {
		t.Errorf("identical variants should give p close to 1, got %f", p)
	}
}

func TestWelchTTest(t *testing.T) {
	if p := WelchTTest(nil, []float64{1, 2}); p != 1.0 {
		t.Errorf("empty sample should give p=1.0, got %f", p)
	}

	a := []float64{10, 11, 9, 10.5, 9.5, 10.2, 9.8, 10.1}
	b := []float64{20, 21, 19, 20.5, 19.5, 20.2, 19.8, 20.1}
	if p := WelchTTest(a, b); p >= 0.01 {
		t.Errorf("well-separated samples should be significant, got p=%f", p)
	}

	if p := WelchTTest(a, a); p < 0.99 {
		t.Errorf("identical samples should give p=1, got %f", p)
	}
}

func TestBonferroniAlpha(t *testing.T) {
	if got := BonferroniAlpha(0.05, 5); got != 0.01 {
		t.Errorf("expected 0.01, got %f", got)
	}
	if got := BonferroniAlpha(0.05, 0); got != 0.05 {
		t.Errorf("expected unchanged alpha, got %f", got)
	}
}
