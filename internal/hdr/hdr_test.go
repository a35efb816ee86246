package hdr

import (
	"testing"

	"github.com/warpcomdev/rawcore/internal/exposure"
)

func TestAcceptThresholdsAtMaxError(t *testing.T) {
	if !Accept(0.05) {
		t.Fatalf("expected error below MaxError to be accepted")
	}
	if Accept(0.06) {
		t.Fatalf("expected error equal to MaxError to be rejected")
	}
	if Accept(0.2) {
		t.Fatalf("expected error above MaxError to be rejected")
	}
}

func TestReducedShadowsFloorsAtFour(t *testing.T) {
	if got := ReducedShadows(20); got != 15 {
		t.Fatalf("expected 0.75*20=15, got %f", got)
	}
	if got := ReducedShadows(2); got != 4 {
		t.Fatalf("expected floor of 4, got %f", got)
	}
}

func TestOrderByEVSortsAscending(t *testing.T) {
	candidates := []Candidate{
		{EV: -1.0, Histogram: exposure.Histogram{}},
		{EV: -3.0, Histogram: exposure.Histogram{}},
		{EV: -2.0, Histogram: exposure.Histogram{}},
	}
	ordered := OrderByEV(candidates)
	if ordered[0].EV != -3.0 || ordered[1].EV != -2.0 || ordered[2].EV != -1.0 {
		t.Fatalf("expected ascending EV order, got %+v", ordered)
	}
}
