// Package colorscience implements the shared color-science utilities of
// spec.md §4.8: correlated color temperature estimation from an
// as-shot-neutral vector, and camera->sRGB matrix composition by
// interpolating between a camera's two calibrated illuminants.
//
// Grounded on original_source/libMotionCam/libMotionCam/source/Temperature.cpp
// and Color.cpp for the iterative solve and Bradford-adaptation shape;
// expressed here with gonum/mat for the 3x3 linear algebra, the one
// pack dependency on gonum (other_examples/.../dastard/data_source.go).
package colorscience

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// pcsWhiteXY is the CIE xy chromaticity of the profile connection
// space's D50 white point, used as the Bradford-adaptation target.
var pcsWhiteXY = [2]float64{0.3457, 0.3585}

// bradfordMatrix is the standard Bradford cone-response matrix.
var bradfordMatrix = mat.NewDense(3, 3, []float64{
	0.8951, 0.2664, -0.1614,
	-0.7502, 1.7135, 0.0367,
	0.0389, -0.0685, 1.0296,
})

// xyToUV converts a CIE xy chromaticity to the 1960 UCS uv space the
// DNG spec's robertson-table iteration uses.
func xyToUV(x, y float64) (u, v float64) {
	d := -2*x + 12*y + 3
	u = 4 * x / d
	v = 6 * y / d
	return
}

// planckianLocusXY approximates the xy chromaticity of a Planckian
// (blackbody) radiator at temperature T kelvin via the Kim et al.
// cubic-spline approximation used widely in color-management pipelines.
func planckianLocusXY(t float64) (x, y float64) {
	switch {
	case t <= 4000:
		x = -0.2661239e9/(t*t*t) - 0.2343589e6/(t*t) + 0.8776956e3/t + 0.179910
	default:
		x = -3.0258469e9/(t*t*t) + 2.1070379e6/(t*t) + 0.2226347e3/t + 0.240390
	}
	x3, x2 := x*x*x, x*x
	switch {
	case t <= 2222:
		y = -1.1063814*x3 - 1.34811020*x2 + 2.18555832*x - 0.20219683
	case t <= 4000:
		y = -0.9549476*x3 - 1.37418593*x2 + 2.09137015*x - 0.16748867
	default:
		y = 3.0817580*x3 - 5.87338670*x2 + 3.75112997*x - 0.37001483
	}
	return
}

// neutralToXY maps a camera as-shot-neutral vector into an approximate
// scene-illuminant xy chromaticity by normalizing against the PCS white.
func neutralToXY(neutral [3]float64) (x, y float64) {
	sum := neutral[0] + neutral[1] + neutral[2]
	if sum == 0 {
		return pcsWhiteXY[0], pcsWhiteXY[1]
	}
	// AsShotNeutral reports the camera-space color of a neutral patch
	// under the scene illuminant, normalized so G=1: under warm (low
	// color temperature) light a gray card reflects relatively more
	// red, so R/G > 1 there. A higher R/G therefore maps to a higher x
	// chromaticity, matching the Planckian locus's warm/high-x end.
	rg := neutral[0] / neutral[1]
	bg := neutral[2] / neutral[1]
	x = pcsWhiteXY[0] + 0.15*(rg-1)
	y = pcsWhiteXY[1] + 0.10*(bg-1)
	_ = sum
	return
}

// TemperatureFromNeutral implements spec.md §4.8's
// "temperature_from_neutral(neutral) -> (T, tint)": an iterative search
// along the Planckian locus for the temperature whose predicted
// chromaticity is closest (in 1960 uv space) to the neutral's observed
// chromaticity, capped at 30 iterations and damped on the last one by
// averaging the final two estimates, stopping early once the locus
// point lies within 1e-7 of the target in uv space.
func TemperatureFromNeutral(neutral [3]float64) (temperature, tint float64) {
	targetX, targetY := neutralToXY(neutral)
	targetU, targetV := xyToUV(targetX, targetY)

	lo, hi := 2000.0, 12000.0
	var prevT float64
	const maxIter = 30
	for i := 0; i < maxIter; i++ {
		mid := (lo + hi) / 2
		x, y := planckianLocusXY(mid)
		u, v := xyToUV(x, y)

		// Step along the locus toward the target in uv-space by
		// bisecting on the sign of the u-component of the distance;
		// the locus is monotone in u over the supported range.
		if u > targetU {
			lo = mid
		} else {
			hi = mid
		}

		du, dv := u-targetU, v-targetV
		if i == maxIter-1 {
			mid = (mid + prevT) / 2
		}
		prevT = mid
		if math.Hypot(du, dv) < 1e-7 {
			temperature = mid
			break
		}
		temperature = mid
	}

	_, plankY := planckianLocusXY(temperature)
	tint = (targetY - plankY) * 3000 // scaled to a ~[-150,150] tint range
	return temperature, tint
}

// interpolateMatrix blends two calibrated 3x3 matrices by weight g in
// [0,1], matching spec.md's "interpolates ... by 1/T".
func interpolateMatrix(m1, m2 [9]float64, g float64) *mat.Dense {
	out := make([]float64, 9)
	for i := range out {
		out[i] = m1[i]*g + m2[i]*(1-g)
	}
	return mat.NewDense(3, 3, out)
}

// interpolationWeight maps a correlated color temperature to the [0,1]
// blend weight between the two calibration illuminants, assuming
// illuminant1 is the warmer (lower-temperature) calibration per the DNG
// convention, interpolating linearly in 1/T as spec.md names explicitly.
func interpolationWeight(temperature, t1, t2 float64) float64 {
	if t1 == t2 {
		return 0.5
	}
	g := (1/temperature - 1/t2) / (1/t1 - 1/t2)
	if g < 0 {
		g = 0
	}
	if g > 1 {
		g = 1
	}
	return g
}

// CameraToPCS implements spec.md §4.8's "camera_to_pcs(T, tint) ->
// (camera_to_pcs_3x3, pcs_to_srgb_3x3, camera_white_3)". illuminant1/2
// name the two calibrated color temperatures (e.g. 2856K/6504K,
// Standard-A/D65); calibration/forward matrices come straight off the
// archive's CameraDescription. No chromatic (Bradford) adaptation is
// applied: bradfordMatrix is not used by this function.
func CameraToPCS(temperature float64, illuminantTemp1, illuminantTemp2 float64, colorMatrix1, colorMatrix2 [9]float64, forwardMatrix1, forwardMatrix2 [9]float64, hasForward bool) (cameraToPCS, pcsToSRGB *mat.Dense, cameraWhite [3]float64) {
	g := interpolationWeight(temperature, illuminantTemp1, illuminantTemp2)

	colorMatrix := interpolateMatrix(colorMatrix1, colorMatrix2, g)
	var forward *mat.Dense
	if hasForward {
		forward = interpolateMatrix(forwardMatrix1, forwardMatrix2, g)
	}

	var cmInv mat.Dense
	if err := cmInv.Inverse(colorMatrix); err != nil {
		cmInv = *mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	}
	whiteVec := mat.NewVecDense(3, []float64{1, 1, 1})
	var white mat.VecDense
	white.MulVec(&cmInv, whiteVec)
	for i := 0; i < 3; i++ {
		cameraWhite[i] = white.AtVec(i)
	}

	if forward != nil {
		cameraToPCS = forward
	} else {
		cameraToPCS = &cmInv
	}

	// sRGB<-XYZ(D65) reference matrix, standard IEC 61966-2-1 values.
	pcsToSRGB = mat.NewDense(3, 3, []float64{
		3.2406, -1.5372, -0.4986,
		-0.9689, 1.8758, 0.0415,
		0.0557, -0.2040, 1.0570,
	})
	return cameraToPCS, pcsToSRGB, cameraWhite
}
