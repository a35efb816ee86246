// Package denoise implements the wavelet-shrinkage spatial denoise of
// spec.md §4.6 step 5 / §4.7: per-channel sigma estimated from the
// finest HH subband, then soft or hard thresholding applied
// independently to every detail subband (LH, HL, HH) before the inverse
// transform; the LL subband is left unchanged.
package denoise

import (
	"math"
	"sort"

	"github.com/warpcomdev/rawcore/internal/wavelet"
)

// Mode selects the thresholding rule; spec.md names hard as the
// offline default.
type Mode int

const (
	Hard Mode = iota
	Soft
)

// EstimateSigma implements spec.md §4.6 step 5: sigma is the median
// absolute value of the finest HH subband divided by 0.6745 (the
// standard MAD-to-sigma scale factor for a Gaussian).
func EstimateSigma(finestHH wavelet.Plane) float64 {
	if len(finestHH.Data) == 0 {
		return 0
	}
	abs := make([]float64, len(finestHH.Data))
	for i, v := range finestHH.Data {
		abs[i] = math.Abs(v)
	}
	sort.Float64s(abs)
	median := abs[len(abs)/2]
	return median / 0.6745
}

// ThresholdCoefficient applies spec.md §4.7's shrinkage rule: soft mode
// scales by max(|c|-tau,0)/|c|; hard mode by |c|/(|c|+tau).
func ThresholdCoefficient(c, tau float64, mode Mode) float64 {
	abs := math.Abs(c)
	if abs == 0 {
		return 0
	}
	switch mode {
	case Soft:
		scale := math.Max(abs-tau, 0) / abs
		return c * scale
	default:
		scale := abs / (abs + tau)
		return c * scale
	}
}

// ThresholdPlane applies ThresholdCoefficient to every coefficient of p.
func ThresholdPlane(p wavelet.Plane, aggressiveness, sigma float64, mode Mode) wavelet.Plane {
	tau := aggressiveness * sigma
	out := wavelet.NewPlane(p.Width, p.Height)
	for i, c := range p.Data {
		out.Data[i] = ThresholdCoefficient(c, tau, mode)
	}
	return out
}

// ThresholdSubbands denoises all three detail subbands of a level; LL
// (the low-pass residual) is never thresholded since it carries no
// noise-dominated high-frequency content.
func ThresholdSubbands(sb wavelet.Subbands, aggressiveness, sigma float64, mode Mode) wavelet.Subbands {
	return wavelet.Subbands{
		LL: sb.LL,
		LH: ThresholdPlane(sb.LH, aggressiveness, sigma, mode),
		HL: ThresholdPlane(sb.HL, aggressiveness, sigma, mode),
		HH: ThresholdPlane(sb.HH, aggressiveness, sigma, mode),
	}
}

// ThresholdPyramid denoises every level of p.
func ThresholdPyramid(p wavelet.Pyramid, aggressiveness, sigma float64, mode Mode) wavelet.Pyramid {
	out := wavelet.Pyramid{Levels: make([]wavelet.Subbands, len(p.Levels))}
	for i, sb := range p.Levels {
		out.Levels[i] = ThresholdSubbands(sb, aggressiveness, sigma, mode)
	}
	return out
}
