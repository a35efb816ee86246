package fusion

import (
	"math"
	"testing"
)

func TestBlendCoefficientIsReferenceWhenCoefficientsAgree(t *testing.T) {
	got := BlendCoefficient(10, 10, 1, 5.0)
	if got != 10 {
		t.Fatalf("expected agreeing coefficients to blend to their shared value, got %f", got)
	}
}

func TestBlendCoefficientMovesFurtherFromReferenceAsDifferenceGrows(t *testing.T) {
	x := 10.0
	average := func(y float64) float64 { return (x + y) / 2 }
	small := BlendCoefficient(x, 10.5, 1, 5.0)
	large := BlendCoefficient(x, 1000, 1, 5.0)
	if math.Abs(large-x) <= math.Abs(small-x) {
		t.Fatalf("expected a larger reference/candidate disagreement to push the blend further from x (fused = x + m*(x-y) with m growing toward 1): small=%f large=%f avg(large)=%f", small, large, average(1000))
	}
}

func TestWeightNeverBelowOne(t *testing.T) {
	w := Weight(10000, 10, 0.1)
	if w < 1 {
		t.Fatalf("expected weight floor of 1, got %f", w)
	}
}
