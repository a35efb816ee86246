// Package registration aligns a candidate preview frame to the
// reference frame via dense optical flow, per spec.md §4.6 step 3a:
// "pyramid scales, patch 16, stride 8, ultrafast preset". Grounded on
// other_examples/45abd999_n0remac-robot-webrtc/cvpipe-pipeline.go, the
// pack's one gocv consumer, for the Mat lifecycle conventions (always
// paired New*/Close).
package registration

import (
	"gocv.io/x/gocv"
)

// FarnebackUltrafast mirrors spec.md's named preset: a shallow pyramid
// (2 scales), 16px window, 1 iteration, 5-pixel polynomial-expansion
// neighborhood, flow sampled every 8 pixels —
// tuned for throughput over precision, matching "ultrafast" presets in
// other real-time optical-flow pipelines.
var FarnebackUltrafast = FlowParams{
	PyrScale:   0.5,
	Levels:     2,
	WinSize:    16,
	Iterations: 1,
	PolyN:      5,
	PolySigma:  1.1,
	Stride:     8,
}

// FlowParams configures CalcOpticalFlowFarneback.
type FlowParams struct {
	PyrScale   float64
	Levels     int
	WinSize    int
	Iterations int
	PolyN      int
	PolySigma  float64
	Stride     int
}

// Flow is a dense 2-component (dx, dy) displacement field at Stride
// resolution relative to the reference image.
type Flow struct {
	Width, Height int
	DX, DY        []float32
}

// At returns the flow vector nearest pixel (x, y).
func (f Flow) At(x, y int) (dx, dy float32) {
	idx := y*f.Width + x
	if idx < 0 || idx >= len(f.DX) {
		return 0, 0
	}
	return f.DX[idx], f.DY[idx]
}

// DenseFlow computes the reference->candidate displacement field over
// two equally-sized 8-bit grayscale preview buffers, implementing
// spec.md §4.6 step 3a. The returned Flow samples the dense field every
// params.Stride pixels.
func DenseFlow(referenceGray, candidateGray []byte, width, height int, params FlowParams) (Flow, error) {
	prev, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, referenceGray)
	if err != nil {
		return Flow{}, err
	}
	defer prev.Close()
	next, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, candidateGray)
	if err != nil {
		return Flow{}, err
	}
	defer next.Close()

	flowMat := gocv.NewMat()
	defer flowMat.Close()

	gocv.CalcOpticalFlowFarneback(prev, next, &flowMat,
		params.PyrScale, params.Levels, params.WinSize,
		params.Iterations, params.PolyN, params.PolySigma,
		gocv.OptflowFarnebackGaussian)

	stride := params.Stride
	if stride < 1 {
		stride = 1
	}
	fw, fh := (width+stride-1)/stride, (height+stride-1)/stride
	out := Flow{Width: fw, Height: fh, DX: make([]float32, fw*fh), DY: make([]float32, fw*fh)}
	for y := 0; y < fh; y++ {
		for x := 0; x < fw; x++ {
			v := flowMat.GetVecfAt(y*stride, x*stride)
			idx := y*fw + x
			out.DX[idx] = v[0]
			out.DY[idx] = v[1]
		}
	}
	return out, nil
}

// Magnitude2 returns |flow|^2 at (x, y), the quantity spec.md §4.7's
// detail-subband weight uses.
func Magnitude2(f Flow, x, y int) float64 {
	dx, dy := f.At(x, y)
	return float64(dx)*float64(dx) + float64(dy)*float64(dy)
}

// WarpPlane resamples src by flow at Flow's resolution scaled up to
// src's own dimensions via nearest-neighbor lookup (the flow field is
// computed at Stride granularity per spec.md and upsampled here).
func WarpPlane(src []float64, width, height int, f Flow, stride int) []float64 {
	out := make([]float64, width*height)
	fw, fh := f.Width, f.Height
	for y := 0; y < height; y++ {
		fy := y / stride
		if fy >= fh {
			fy = fh - 1
		}
		for x := 0; x < width; x++ {
			fx := x / stride
			if fx >= fw {
				fx = fw - 1
			}
			dx, dy := f.At(fx, fy)
			sx := clampInt(x+int(dx), 0, width-1)
			sy := clampInt(y+int(dy), 0, height-1)
			out[y*width+x] = src[sy*width+sx]
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
