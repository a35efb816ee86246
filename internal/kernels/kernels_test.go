package kernels

import (
	"testing"

	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/wavelet"
)

func TestDeinterleaveRawSplitsRGGBQuad(t *testing.T) {
	raw := []uint16{
		10, 20,
		30, 40,
	}
	channels := DeinterleaveRaw(raw, 2, 2, metadata.RGGB)
	if channels[0].Data[0] != 10 {
		t.Fatalf("expected R=10, got %f", channels[0].Data[0])
	}
	if channels[1].Data[0] != 20 {
		t.Fatalf("expected Gr=20, got %f", channels[1].Data[0])
	}
	if channels[2].Data[0] != 30 {
		t.Fatalf("expected Gb=30, got %f", channels[2].Data[0])
	}
	if channels[3].Data[0] != 40 {
		t.Fatalf("expected B=40, got %f", channels[3].Data[0])
	}
}

func TestLinearImageClampsToExpandedRange(t *testing.T) {
	p := wavelet.NewPlane(1, 1)
	p.Data[0] = 1000
	out := LinearImage(p, 0, 100, 16384)
	if out.Data[0] != 16384 {
		t.Fatalf("expected clamp to expanded range 16384, got %f", out.Data[0])
	}
}

func TestMeasureShadowsBoundedBetweenOneAndThirtyTwo(t *testing.T) {
	hist := make([]float64, 256)
	for i := range hist {
		hist[i] = 1.0 / 256
	}
	m := Measure(hist)
	if m.Shadows < 1 || m.Shadows > 32 {
		t.Fatalf("expected shadows in [1,32], got %f", m.Shadows)
	}
}

func TestNoiseSigmaZeroForConstantPlane(t *testing.T) {
	p := wavelet.NewPlane(5, 5)
	for i := range p.Data {
		p.Data[i] = 42
	}
	if got := NoiseSigma(p); got != 0 {
		t.Fatalf("expected zero noise sigma for a constant plane, got %f", got)
	}
}

func TestGenerateEdgesZeroForConstantPlane(t *testing.T) {
	p := wavelet.NewPlane(5, 5)
	for i := range p.Data {
		p.Data[i] = 7
	}
	edges := GenerateEdges(p)
	for _, v := range edges.Data {
		if v != 0 {
			t.Fatalf("expected zero gradient for a flat plane, got %f", v)
		}
	}
}
