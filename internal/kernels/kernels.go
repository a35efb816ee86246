// Package kernels implements the external pixel-kernel contracts of
// spec.md §4.10: pure functions over plane/byte buffers that the
// offline processor (internal/processor) composes into a pipeline.
// Each kernel's scheduling (SIMD, GPU, tiling) is explicitly out of
// scope per spec.md §1 and §4.10 — these are reference
// implementations in plain Go, grounded on the teacher's preference
// for small composable stages (internal/jpeg's encode/decode split)
// and on the wavelet/fusion/denoise/colorscience/registration/hdr
// packages they wire together.
package kernels

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/warpcomdev/rawcore/internal/colorscience"
	"github.com/warpcomdev/rawcore/internal/denoise"
	"github.com/warpcomdev/rawcore/internal/fusion"
	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/wavelet"
)

// DeinterleaveRaw implements spec.md's deinterleave_raw kernel: splits
// a packed Bayer-pattern raw buffer into 4 channel planes at half the
// source resolution, ordered per the sensor's color-filter arrangement.
func DeinterleaveRaw(raw []uint16, width, height int, arrangement metadata.SensorArrangement) [4]wavelet.Plane {
	cw, ch := width/2, height/2
	channels := [4]wavelet.Plane{
		wavelet.NewPlane(cw, ch),
		wavelet.NewPlane(cw, ch),
		wavelet.NewPlane(cw, ch),
		wavelet.NewPlane(cw, ch),
	}
	order := channelOrder(arrangement)
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			tl := raw[(2*y)*width+2*x]
			tr := raw[(2*y)*width+2*x+1]
			bl := raw[(2*y+1)*width+2*x]
			br := raw[(2*y+1)*width+2*x+1]
			quad := [4]uint16{tl, tr, bl, br}
			for i, ch := range order {
				channels[ch].Set(x, y, float64(quad[i]))
			}
		}
	}
	return channels
}

// channelOrder maps the top-left/top-right/bottom-left/bottom-right
// positions of a Bayer quad to (R, Gr, Gb, B) channel indices per
// sensor arrangement.
func channelOrder(a metadata.SensorArrangement) [4]int {
	switch a {
	case metadata.GRBG:
		return [4]int{1, 0, 3, 2}
	case metadata.GBRG:
		return [4]int{2, 3, 0, 1}
	case metadata.BGGR:
		return [4]int{3, 2, 1, 0}
	default: // RGGB
		return [4]int{0, 1, 2, 3}
	}
}

// LinearImage implements spec.md's linear_image kernel: black-level
// subtraction and white-level normalization of a raw channel plane,
// producing values mapped to [0, expandedRange].
func LinearImage(p wavelet.Plane, black, white, expandedRange float64) wavelet.Plane {
	out := wavelet.NewPlane(p.Width, p.Height)
	span := white - black
	if span <= 0 {
		span = 1
	}
	for i, v := range p.Data {
		normalized := (v - black) / span
		if normalized < 0 {
			normalized = 0
		}
		if normalized > 1 {
			normalized = 1
		}
		out.Data[i] = normalized * expandedRange
	}
	return out
}

// Preview implements spec.md's preview kernel: a fast, low-resolution
// demosaic used for focus-peaking, flow estimation, and the live
// preview feed, averaging the 4 Bayer channels into a single luma
// plane at channel resolution.
func Preview(channels [4]wavelet.Plane) wavelet.Plane {
	out := wavelet.NewPlane(channels[0].Width, channels[0].Height)
	for i := range out.Data {
		sum := channels[0].Data[i] + channels[1].Data[i] + channels[2].Data[i] + channels[3].Data[i]
		out.Data[i] = sum / 4
	}
	return out
}

// ForwardTransform wraps wavelet.ForwardTransform, exposed as spec.md's
// named kernel.
func ForwardTransform(p wavelet.Plane) wavelet.Pyramid {
	return wavelet.ForwardTransform(p)
}

// InverseTransform wraps wavelet.InverseTransform, exposed as spec.md's
// named kernel.
func InverseTransform(p wavelet.Pyramid, width, height int) wavelet.Plane {
	return wavelet.InverseTransform(p, width, height)
}

// FuseDenoiseParams bundles the tuning scalars spec.md §4.10 lists for
// the fuse_denoise kernel.
type FuseDenoiseParams struct {
	FlowMagnitude2 float64
	EvWd           float64
	NoiseThreshold float64
	Aggressiveness float64
	Mode           denoise.Mode
}

// FuseDenoise implements spec.md's fuse_denoise kernel: blends a
// reference pyramid with a candidate, accumulates, and (on the final
// candidate) applies wavelet-shrinkage denoise before the caller
// inverse-transforms the result.
func FuseDenoise(accum, candidate wavelet.Pyramid, params FuseDenoiseParams, finestHH wavelet.Plane, isFinal bool) wavelet.Pyramid {
	blended := fusion.BlendPyramid(accum, candidate, params.FlowMagnitude2, params.EvWd, params.NoiseThreshold)
	if !isFinal {
		return blended
	}
	sigma := denoise.EstimateSigma(finestHH)
	return denoise.ThresholdPyramid(blended, params.Aggressiveness, sigma, params.Mode)
}

// MeasureImage implements spec.md step 2's histogram-derived
// post-process estimation: shadows, exposure compensation, blacks, and
// white point from a linearized reference histogram.
type MeasureImage struct {
	Shadows              float64
	ExposureCompensation float64
	Blacks               float64
	WhitePoint           float64
}

const keyValue = 0.22

// Measure implements spec.md §4.6 step 2's four histogram-derived
// scalars. hist must be a normalized (sums to 1) luminance histogram
// over ncols bins in [0, 255].
func Measure(hist []float64) MeasureImage {
	ncols := len(hist)
	if ncols == 0 {
		return MeasureImage{Shadows: 1, WhitePoint: 1}
	}

	avgLum := 0.0
	for i, h := range hist {
		avgLum += h * math.Log(float64(i)/255.0+1e-5)
	}
	avgLum = math.Exp(avgLum)
	shadows := keyValue / avgLum
	if shadows < 1 {
		shadows = 1
	}
	if shadows > 32 {
		shadows = 32
	}

	cumFromTop := 0.0
	expComp := 0.0
	for b := ncols - 1; b >= 0; b-- {
		cumFromTop += hist[b]
		if cumFromTop >= 1e-2 {
			expComp = math.Log2(float64(ncols) / float64(b+1))
			break
		}
	}

	blacks := 0.0
	cumFromBottom := 0.0
	for b := 0; b < ncols && b <= 12; b++ {
		cumFromBottom += hist[b]
		if cumFromBottom > 0.03 {
			blacks = float64(b-1) / 255.0
			break
		}
	}

	whitePoint := 1.0
	cumFromTop2 := 0.0
	for b := ncols - 1; b >= 0; b-- {
		cumFromTop2 += hist[b]
		if cumFromTop2 < 0.005 {
			whitePoint = float64(b) / 255.0
			continue
		}
		break
	}

	return MeasureImage{
		Shadows:              shadows,
		ExposureCompensation: expComp,
		Blacks:               blacks,
		WhitePoint:            whitePoint,
	}
}

// NoiseSigma implements spec.md step 2's Laplacian-response noise
// estimate over a raw reference channel.
func NoiseSigma(p wavelet.Plane) float64 {
	w, h := p.Width, p.Height
	if w <= 2 || h <= 2 {
		return 0
	}
	sum := 0.0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			resp := 4*p.At(x, y) - p.At(x-1, y) - p.At(x+1, y) - p.At(x, y-1) - p.At(x, y+1)
			sum += math.Abs(resp)
		}
	}
	return math.Sqrt(math.Pi/2) / (6 * float64(w-2) * float64(h-2)) * sum
}

// GenerateEdges implements spec.md's generate_edges kernel, a Sobel
// gradient-magnitude map used to steer post-process sharpening.
func GenerateEdges(p wavelet.Plane) wavelet.Plane {
	out := wavelet.NewPlane(p.Width, p.Height)
	w, h := p.Width, p.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := sobelSample(p, x, y, true)
			gy := sobelSample(p, x, y, false)
			out.Set(x, y, math.Hypot(gx, gy))
		}
	}
	return out
}

func sobelSample(p wavelet.Plane, x, y int, horizontal bool) float64 {
	at := func(dx, dy int) float64 {
		xx, yy := x+dx, y+dy
		if xx < 0 {
			xx = 0
		}
		if xx >= p.Width {
			xx = p.Width - 1
		}
		if yy < 0 {
			yy = 0
		}
		if yy >= p.Height {
			yy = p.Height - 1
		}
		return p.At(xx, yy)
	}
	if horizontal {
		return (at(1, -1) + 2*at(1, 0) + at(1, 1)) - (at(-1, -1) + 2*at(-1, 0) + at(-1, 1))
	}
	return (at(-1, 1) + 2*at(0, 1) + at(1, 1)) - (at(-1, -1) + 2*at(0, -1) + at(1, -1))
}

// PostProcessParams bundles spec.md §4.10's tuning scalars for the
// postprocess kernel.
type PostProcessParams struct {
	CameraToPCS, PCSToSRGB     *mat.Dense
	CameraWhite                [3]float64
	Shadows, Gamma             float64
	TonemapVariance            float64
	Blacks, Exposure           float64
	WhitePoint                 float64
	Contrast, Saturation       float64
	BlueSaturation             float64
	GreenSaturation            float64
	Sharpen0, Sharpen1         float64
	ChromaEps                  float64
}

// PostProcess implements spec.md's postprocess kernel: converts
// demosaiced linear RGB channel planes through the camera->PCS->sRGB
// matrices, applies exposure/black/white adjustment, a Reinhard-style
// tonemap controlled by TonemapVariance, a per-channel saturation gain
// and a linear contrast stretch about 0.5, producing 8-bit sRGB bytes
// (width*height*3, RGB interleaved). No sharpening or chroma denoise is
// applied: edges, Sharpen0, Sharpen1 and ChromaEps are accepted but not
// used.
func PostProcess(r, g, b wavelet.Plane, params PostProcessParams, edges wavelet.Plane) []byte {
	w, h := r.Width, r.Height
	out := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		lin := [3]float64{r.Data[i], g.Data[i], b.Data[i]}
		pcs := applyMatrix(params.CameraToPCS, lin)
		srgb := applyMatrix(params.PCSToSRGB, pcs)

		for c := 0; c < 3; c++ {
			v := srgb[c]
			v = (v - params.Blacks) / (params.WhitePoint - params.Blacks + 1e-9)
			v *= math.Exp2(params.Exposure)
			v *= params.Shadows
			v = v / (v + params.TonemapVariance)
			v = applySaturation(v, c, params)
			v = applyContrast(v, params.Contrast)
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			v = math.Pow(v, 1.0/params.Gamma)
			out[i*3+c] = byte(clamp255(v * 255))
		}
	}
	return out
}

func applyMatrix(m *mat.Dense, v [3]float64) [3]float64 {
	if m == nil {
		return v
	}
	in := mat.NewVecDense(3, v[:])
	var res mat.VecDense
	res.MulVec(m, in)
	return [3]float64{res.AtVec(0), res.AtVec(1), res.AtVec(2)}
}

func applySaturation(v float64, channel int, params PostProcessParams) float64 {
	s := params.Saturation
	switch channel {
	case 2:
		s *= params.BlueSaturation
	case 1:
		s *= params.GreenSaturation
	}
	if s == 0 {
		s = 1
	}
	return v * s
}

func applyContrast(v, contrast float64) float64 {
	if contrast == 0 {
		return v
	}
	return 0.5 + (v-0.5)*(1+contrast)
}

func clamp255(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// TemperatureFromNeutral re-exposes colorscience.TemperatureFromNeutral
// under the kernel-contract name spec.md §4.8 uses.
func TemperatureFromNeutral(neutral [3]float64) (temperature, tint float64) {
	return colorscience.TemperatureFromNeutral(neutral)
}

// CameraToPCS re-exposes colorscience.CameraToPCS under the
// kernel-contract name spec.md §4.8 uses.
func CameraToPCS(temperature, illuminantTemp1, illuminantTemp2 float64, colorMatrix1, colorMatrix2, forwardMatrix1, forwardMatrix2 [9]float64, hasForward bool) (cameraToPCS, pcsToSRGB *mat.Dense, cameraWhite [3]float64) {
	return colorscience.CameraToPCS(temperature, illuminantTemp1, illuminantTemp2, colorMatrix1, colorMatrix2, forwardMatrix1, forwardMatrix2, hasForward)
}
