package denoise

import (
	"math"
	"testing"

	"github.com/warpcomdev/rawcore/internal/wavelet"
)

func TestEstimateSigmaFromConstantPlane(t *testing.T) {
	p := wavelet.NewPlane(4, 4)
	for i := range p.Data {
		p.Data[i] = 2.0
	}
	sigma := EstimateSigma(p)
	want := 2.0 / 0.6745
	if math.Abs(sigma-want) > 1e-9 {
		t.Fatalf("expected sigma %f, got %f", want, sigma)
	}
}

func TestHardThresholdShrinksSmallCoefficientsMore(t *testing.T) {
	small := ThresholdCoefficient(1, 5, Hard)
	large := ThresholdCoefficient(100, 5, Hard)
	smallRatio := small / 1
	largeRatio := large / 100
	if smallRatio >= largeRatio {
		t.Fatalf("expected hard threshold to shrink small coefficients proportionally more than large ones: smallRatio=%f largeRatio=%f", smallRatio, largeRatio)
	}
}

func TestSoftThresholdZeroesBelowTau(t *testing.T) {
	got := ThresholdCoefficient(3, 5, Soft)
	if got != 0 {
		t.Fatalf("expected coefficient below tau to be zeroed, got %f", got)
	}
}
