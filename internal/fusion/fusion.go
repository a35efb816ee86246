// Package fusion implements the weighted temporal-fusion blend of
// spec.md §4.6 step 3 / §4.7: at each wavelet subband, a reference
// coefficient x and a flow-warped candidate coefficient y combine into
// fused = x + m*(x-y), where m depends on how far the coefficients
// disagree relative to a noise floor.
package fusion

import (
	"math"

	"github.com/warpcomdev/rawcore/internal/wavelet"
)

// Wmv is the flow-magnitude-squared normalizer from spec.md §4.7.
const Wmv = 20 * 20

// Weight computes w = max(1, exp(-|flow|²/Wmv) * Wd * exp(-256*D)) for
// the squared flow magnitude, the low-pass difference D and the
// EV-linear Wd.
func Weight(flowMagnitude2, lowpassDiff, evWd float64) float64 {
	w := math.Exp(-flowMagnitude2/Wmv) * evWd * math.Exp(-256*lowpassDiff)
	if w < 1 {
		w = 1
	}
	return w
}

// BlendCoefficient implements spec.md §4.7's per-coefficient fusion:
// m = |d|/(|d| + w*T), fused = x + m*(x-y), where d = x-y and T is the
// noise threshold for this subband.
func BlendCoefficient(x, y, w, noiseThreshold float64) float64 {
	d := x - y
	absD := math.Abs(d)
	m := absD / (absD + w*noiseThreshold)
	return x + m*(x-y)
}

// BlendPlane fuses two equally-sized planes coefficient-wise with one
// weight w for the whole plane; callers choose w per subband.
func BlendPlane(x, y wavelet.Plane, w, noiseThreshold float64) wavelet.Plane {
	out := wavelet.NewPlane(x.Width, x.Height)
	for i := range x.Data {
		out.Data[i] = BlendCoefficient(x.Data[i], y.Data[i], w, noiseThreshold)
	}
	return out
}

// BlendSubbands fuses an entire level's four subbands. flowMagnitude2
// and evWd feed Weight (with D = 0) for the three detail subbands; the
// LL subband's weight is Weight with zero flow and D set to the mean
// absolute LL difference between the two levels.
func BlendSubbands(ref, cand wavelet.Subbands, flowMagnitude2, evWd, noiseThreshold float64) wavelet.Subbands {
	var llDiff float64
	for i := range ref.LL.Data {
		llDiff += math.Abs(ref.LL.Data[i] - cand.LL.Data[i])
	}
	if n := len(ref.LL.Data); n > 0 {
		llDiff /= float64(n)
	}
	llWeight := Weight(0, llDiff, evWd)
	detailWeight := Weight(flowMagnitude2, 0, evWd)

	return wavelet.Subbands{
		LL: BlendPlane(ref.LL, cand.LL, llWeight, noiseThreshold),
		LH: BlendPlane(ref.LH, cand.LH, detailWeight, noiseThreshold),
		HL: BlendPlane(ref.HL, cand.HL, detailWeight, noiseThreshold),
		HH: BlendPlane(ref.HH, cand.HH, detailWeight, noiseThreshold),
	}
}

// BlendPyramid fuses every level of accum with cand and returns the
// blended pyramid as a new value; accum itself is not modified, and
// adding the result into a running sum is left to Accumulate.
func BlendPyramid(accum wavelet.Pyramid, cand wavelet.Pyramid, flowMagnitude2, evWd, noiseThreshold float64) wavelet.Pyramid {
	out := wavelet.Pyramid{Levels: make([]wavelet.Subbands, len(accum.Levels))}
	for i := range accum.Levels {
		out.Levels[i] = BlendSubbands(accum.Levels[i], cand.Levels[i], flowMagnitude2, evWd, noiseThreshold)
	}
	return out
}

// Accumulate adds src into dst in place, implementing the "running sum"
// spec.md step 3 describes before step 4's division by (N-1).
func Accumulate(dst, src wavelet.Plane) {
	for i := range dst.Data {
		dst.Data[i] += src.Data[i]
	}
}

// Average divides every coefficient of p by n, implementing spec.md
// step 4's temporal average.
func Average(p wavelet.Plane, n int) wavelet.Plane {
	out := wavelet.NewPlane(p.Width, p.Height)
	if n == 0 {
		n = 1
	}
	for i, v := range p.Data {
		out.Data[i] = v / float64(n)
	}
	return out
}
