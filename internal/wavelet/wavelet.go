// Package wavelet implements the multi-level, oriented wavelet pyramid
// that spec.md §4.7 describes as a "six-level dual-tree / oriented
// complex wavelet" transform: separable row-then-column analysis
// filters producing four subbands per level (LL, LH, HL, HH), with the
// first level's filters differing from later levels.
//
// No wavelet library appears anywhere in the example pack (see
// DESIGN.md), so the filter bank itself is hand-written; it is grounded
// structurally on original_source/libMotionCam's six-level pyramid
// (forward/inverse pass counts, per-level subband layout) and expressed
// as a standard separable two-band (low/high) analysis filter applied
// twice (rows then columns), which is the idiomatic Go shape for this
// kind of pipeline stage — each level operates on a Plane and returns
// four child Planes half its size.
package wavelet

// Plane is a single-channel float64 image, row-major.
type Plane struct {
	Width, Height int
	Data          []float64
}

// NewPlane allocates a zeroed Plane.
func NewPlane(w, h int) Plane {
	return Plane{Width: w, Height: h, Data: make([]float64, w*h)}
}

func (p Plane) At(x, y int) float64 { return p.Data[y*p.Width+x] }
func (p Plane) Set(x, y int, v float64) { p.Data[y*p.Width+x] = v }

// Levels is the pyramid depth named in spec.md §4.7.
const Levels = 6

// level0Low/level0High are the first-level analysis filters (9-tap,
// close to a CDF-style biorthogonal pair); levelNLow/levelNHigh are
// used for levels 2..6, matching the Glossary's "filters at the first
// level differ from later levels".
var (
	level0Low  = []float64{0.03783, -0.02384, -0.11062, 0.37740, 0.85270, 0.37740, -0.11062, -0.02384, 0.03783}
	level0High = []float64{-0.06454, 0.04069, 0.41809, -0.7885, 0.41809, 0.04069, -0.06454, 0, 0}

	levelNLow  = []float64{-0.1294, 0.2241, 0.8365, 0.4830, -0.1294}
	levelNHigh = []float64{-0.4830, 0.8365, -0.2241, -0.1294, 0}
)

func filtersFor(level int) (low, high []float64) {
	if level == 0 {
		return level0Low, level0High
	}
	return levelNLow, levelNHigh
}

// convolveDownsample applies filter to src along one row (or column, via
// caller transposition) with symmetric edge extension, returning a
// vector half as long (an implicit downsample-by-2 as every analysis
// filter bank stage does).
func convolveDownsample(src []float64, filter []float64) []float64 {
	n := len(src)
	half := (n + 1) / 2
	out := make([]float64, half)
	center := len(filter) / 2
	for oi := 0; oi < half; oi++ {
		i := oi * 2
		var sum float64
		for k, coef := range filter {
			idx := i + k - center
			sum += coef * reflect(src, idx)
		}
		out[oi] = sum
	}
	return out
}

func reflect(src []float64, idx int) float64 {
	n := len(src)
	if n == 0 {
		return 0
	}
	for idx < 0 || idx >= n {
		if idx < 0 {
			idx = -idx - 1
		}
		if idx >= n {
			idx = 2*n - idx - 1
		}
	}
	return src[idx]
}

// Subbands is one level's decomposition output.
type Subbands struct {
	LL, LH, HL, HH Plane
}

// Decompose runs one level of the row-then-column separable filter
// bank over src, producing four quarter-sized subbands.
func Decompose(src Plane, level int) Subbands {
	low, high := filtersFor(level)

	// Rows first.
	rowLow := NewPlane((src.Width+1)/2, src.Height)
	rowHigh := NewPlane((src.Width+1)/2, src.Height)
	for y := 0; y < src.Height; y++ {
		row := src.Data[y*src.Width : (y+1)*src.Width]
		l := convolveDownsample(row, low)
		h := convolveDownsample(row, high)
		copy(rowLow.Data[y*rowLow.Width:(y+1)*rowLow.Width], l)
		copy(rowHigh.Data[y*rowHigh.Width:(y+1)*rowHigh.Width], h)
	}

	decomposeColumns := func(p Plane) (Plane, Plane) {
		outLow := NewPlane(p.Width, (p.Height+1)/2)
		outHigh := NewPlane(p.Width, (p.Height+1)/2)
		col := make([]float64, p.Height)
		for x := 0; x < p.Width; x++ {
			for y := 0; y < p.Height; y++ {
				col[y] = p.At(x, y)
			}
			l := convolveDownsample(col, low)
			h := convolveDownsample(col, high)
			for y := range l {
				outLow.Set(x, y, l[y])
			}
			for y := range h {
				outHigh.Set(x, y, h[y])
			}
		}
		return outLow, outHigh
	}

	ll, lh := decomposeColumns(rowLow)
	hl, hh := decomposeColumns(rowHigh)
	return Subbands{LL: ll, LH: lh, HL: hl, HH: hh}
}

// Pyramid is the full six-level decomposition of one channel.
type Pyramid struct {
	Levels []Subbands // index 0 is the finest level
}

// ForwardTransform implements the forward half of spec.md §4.7's
// pyramid: Levels successive decompositions, each operating on the
// previous level's LL subband.
func ForwardTransform(src Plane) Pyramid {
	p := Pyramid{Levels: make([]Subbands, Levels)}
	current := src
	for lvl := 0; lvl < Levels; lvl++ {
		sb := Decompose(current, lvl)
		p.Levels[lvl] = sb
		current = sb.LL
	}
	return p
}

// upsampleConvolve is the synthesis-side mirror of convolveDownsample:
// it inserts zeros between samples of src then convolves with filter,
// reconstructing a sequence of length outLen.
func upsampleConvolve(src []float64, filter []float64, outLen int) []float64 {
	center := len(filter) / 2
	out := make([]float64, outLen)
	for oi := 0; oi < outLen; oi++ {
		var sum float64
		for k, coef := range filter {
			src2 := oi + center - k
			if src2%2 != 0 {
				continue
			}
			si := src2 / 2
			if si < 0 || si >= len(src) {
				continue
			}
			sum += coef * src[si]
		}
		out[oi] = sum
	}
	return out
}

// Reconstruct inverts one level of Decompose, given the four subbands
// and the original (pre-decomposition) dimensions.
func Reconstruct(sb Subbands, level int, width, height int) Plane {
	low, high := filtersFor(level)
	halfW := sb.LL.Width

	reconstructColumns := func(lowP, highP Plane, outH int) Plane {
		out := NewPlane(lowP.Width, outH)
		for x := 0; x < lowP.Width; x++ {
			lcol := make([]float64, lowP.Height)
			hcol := make([]float64, highP.Height)
			for y := 0; y < lowP.Height; y++ {
				lcol[y] = lowP.At(x, y)
			}
			for y := 0; y < highP.Height; y++ {
				hcol[y] = highP.At(x, y)
			}
			rl := upsampleConvolve(lcol, low, outH)
			rh := upsampleConvolve(hcol, high, outH)
			for y := 0; y < outH; y++ {
				out.Set(x, y, rl[y]+rh[y])
			}
		}
		return out
	}

	rowLow := reconstructColumns(sb.LL, sb.LH, height)
	rowHigh := reconstructColumns(sb.HL, sb.HH, height)

	out := NewPlane(width, height)
	for y := 0; y < height; y++ {
		lrow := rowLow.Data[y*halfW : (y+1)*halfW]
		hrow := rowHigh.Data[y*halfW : (y+1)*halfW]
		rl := upsampleConvolve(lrow, low, width)
		rh := upsampleConvolve(hrow, high, width)
		for x := 0; x < width; x++ {
			out.Set(x, y, rl[x]+rh[x])
		}
	}
	return out
}

// InverseTransform inverts ForwardTransform, reconstructing the
// original-resolution plane.
func InverseTransform(p Pyramid, width, height int) Plane {
	dims := make([][2]int, Levels+1)
	dims[0] = [2]int{width, height}
	for i := 0; i < Levels; i++ {
		w, h := dims[i][0], dims[i][1]
		dims[i+1] = [2]int{(w + 1) / 2, (h + 1) / 2}
	}

	current := p.Levels[Levels-1].LL
	for lvl := Levels - 1; lvl >= 0; lvl-- {
		sb := p.Levels[lvl]
		sb.LL = current
		w, h := dims[lvl][0], dims[lvl][1]
		current = Reconstruct(sb, lvl, w, h)
	}
	return current
}
