package processor

import (
	"testing"

	"github.com/warpcomdev/rawcore/internal/archive"
)

func TestSplitBracketKeepsAllAsBaseWhenEVSpreadSmall(t *testing.T) {
	frames := []*frame{{ts: 1, ev: 0}, {ts: 2, ev: 0.2}, {ts: 3, ev: 0.4}}
	base, under := splitBracket(frames)
	if len(base) != 3 || len(under) != 0 {
		t.Fatalf("expected all 3 frames to stay base, got base=%d under=%d", len(base), len(under))
	}
}

func TestSplitBracketSplitsOnWideEVSpread(t *testing.T) {
	frames := []*frame{{ts: 1, ev: 0}, {ts: 2, ev: 2.0}}
	base, under := splitBracket(frames)
	if len(base) == 0 || len(under) == 0 {
		t.Fatalf("expected both base and under to be non-empty, got base=%d under=%d", len(base), len(under))
	}
}

func TestUnpackRaw16RoundTripsLittleEndian(t *testing.T) {
	data := []byte{0x34, 0x12}
	out := unpackRaw16(data, 1, 1)
	if out[0] != 0x1234 {
		t.Fatalf("expected 0x1234, got 0x%x", out[0])
	}
}

func TestUnpackRaw10ProducesFourSamplesFromFiveBytes(t *testing.T) {
	data := []byte{0xFF, 0x00, 0x80, 0x40, 0b11100100}
	out := unpackRaw10(data, 2, 2)
	if len(out) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(out))
	}
	if out[0] != (0xFF<<2 | 0x00) {
		t.Fatalf("unexpected first sample: %d", out[0])
	}
}

func TestUnpackRaw12ProducesTwoSamplesFromThreeBytes(t *testing.T) {
	data := []byte{0xAB, 0xCD, 0xEF}
	out := unpackRaw12(data, 2, 1)
	if len(out) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(out))
	}
}

func TestEVFromEntryHigherForFasterShutter(t *testing.T) {
	fast := archive.FrameEntry{ExposureTime: int64(1e9 / 1000), Iso: 100}
	slow := archive.FrameEntry{ExposureTime: int64(1e9 / 30), Iso: 100}
	if evFromEntry(fast) <= evFromEntry(slow) {
		t.Fatalf("expected a faster shutter to report a higher EV")
	}
}

func TestCropAndBuildImageShrinksByTwiceMargin(t *testing.T) {
	width, height, margin := 20, 10, 2
	rgb := make([]byte, width*height*3)
	img := cropAndBuildImage(rgb, width, height, margin)
	bounds := img.Bounds()
	if bounds.Dx() != width-2*margin || bounds.Dy() != height-2*margin {
		t.Fatalf("expected cropped dims %dx%d, got %dx%d", width-2*margin, height-2*margin, bounds.Dx(), bounds.Dy())
	}
}
