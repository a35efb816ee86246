// Package processor implements the offline fusion pipeline of
// spec.md §4.6: load an archive, estimate post-process settings,
// temporally fuse the base frames, denoise, optionally merge an
// HDR bracket, post-process to 8-bit sRGB, and write a JPEG plus a
// separate thumbnail JPEG. No DNG is written, even when the settings'
// Dng flag is set. Grounded on
// original_source/libMotionCam/include/motioncam/ImageProcessorProgress.h
// for the Progress contract's shape.
package processor

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	"github.com/warpcomdev/rawcore/internal/archive"
	"github.com/warpcomdev/rawcore/internal/denoise"
	"github.com/warpcomdev/rawcore/internal/exposure"
	"github.com/warpcomdev/rawcore/internal/hdr"
	"github.com/warpcomdev/rawcore/internal/kernels"
	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/registration"
	"github.com/warpcomdev/rawcore/internal/wavelet"
)

// ExpandedRange is spec.md step 4's EXPANDED_RANGE constant.
const ExpandedRange = 16384

// EVSplitThreshold is spec.md step 1's bracket-split threshold.
const EVSplitThreshold = 0.49

// ThumbnailWidth is spec.md step 8's embedded-thumbnail width.
const ThumbnailWidth = 320

// CropMargin is spec.md step 7's per-edge registration-artifact trim.
const CropMargin = 8

// DefaultSettings fills the zero-value gaps Process leaves unestimated
// (temperature and tint are derived from the reference frame when
// Temperature is 0; shadows, exposure, blacks and white point are
// always re-derived) with the tuning scalars the post-process kernel assumes when
// a manifest carries no explicit overrides.
func DefaultSettings() metadata.PostProcessSettings {
	return metadata.PostProcessSettings{
		SpatialDenoiseAggressiveness: 1.0,
		Gamma:                        2.2,
		TonemapVariance:              0.25,
		WhitePoint:                   1.0,
		Contrast:                     0.0,
		Saturation:                   1.0,
		BlueSaturation:               1.0,
		GreenSaturation:              1.0,
		ChromaEps:                    1e-4,
		JpegQuality:                  95,
	}
}

// Progress mirrors ImageProcessorProgress.h's callback set, collapsed
// to the three calls original_source's header actually distinguishes:
// a running percentage, a terminal success with the output path, and a
// terminal failure.
type Progress interface {
	OnProgress(progress int)
	OnCompleted(path string)
	OnError(err error)
}

// NoopProgress discards every callback; useful for tests and for
// callers that only want the final image.
type NoopProgress struct{}

func (NoopProgress) OnProgress(int)     {}
func (NoopProgress) OnCompleted(string) {}
func (NoopProgress) OnError(error)      {}

// frame is one manifest entry resolved against its pixel bytes and
// parsed as 4 linear channel planes.
type frame struct {
	entry    archive.FrameEntry
	ts       int64
	ev       float64
	channels [4]wavelet.Plane
}

// Process implements spec.md §4.6's full pipeline for one archive.
func Process(archivePath, outputPath string, camera metadata.CameraDescription, settings metadata.PostProcessSettings, progress Progress) (err error) {
	if progress == nil {
		progress = NoopProgress{}
	}
	defer func() {
		if err != nil {
			progress.OnError(err)
		}
	}()

	a, err := archive.Read(archivePath)
	if err != nil {
		return fmt.Errorf("processor: %w", err)
	}

	frames, err := loadFrames(a, camera)
	if err != nil {
		return fmt.Errorf("processor: %w", err)
	}
	if len(frames) == 0 {
		return fmt.Errorf("processor: archive has no frames")
	}

	base, under := splitBracket(frames)
	sort.Slice(base, func(i, j int) bool { return base[i].ts < base[j].ts })

	refTsStr := a.Manifest.ReferenceTimestamp
	refTs, _ := strconv.ParseInt(refTsStr, 10, 64)
	reference := pickReference(base, refTs)

	if settings.Temperature == 0 {
		temperature, tint := kernels.TemperatureFromNeutral(toFloat64Neutral(reference.entry.AsShotNeutral))
		settings.Temperature = temperature
		settings.Tint = tint
	}

	measured := estimateSettings(reference, settings)
	settings.Shadows = measured.Shadows
	settings.Exposure = measured.ExposureCompensation
	settings.Blacks = measured.Blacks
	settings.WhitePoint = measured.WhitePoint

	fused, err := fuseBase(reference, base, settings, progress)
	if err != nil {
		return fmt.Errorf("processor: %w", err)
	}

	if len(under) > 0 {
		fused = tryHDRMerge(reference, fused, under, &settings)
	}
	progress.OnProgress(95)

	cameraToPCS, pcsToSRGB, _ := kernels.CameraToPCS(
		settings.Temperature, 2856, 6504,
		camera.ColorMatrix1, camera.ColorMatrix2,
		camera.ForwardMatrix1, camera.ForwardMatrix2,
		camera.ForwardMatrix1 != [9]float64{},
	)

	edges := kernels.GenerateEdges(fused[1])
	rgb := kernels.PostProcess(fused[0], fused[1], fused[2], kernels.PostProcessParams{
		CameraToPCS:     cameraToPCS,
		PCSToSRGB:       pcsToSRGB,
		Shadows:         settings.Shadows,
		Gamma:           gammaOrDefault(settings.Gamma),
		TonemapVariance: tonemapOrDefault(settings.TonemapVariance),
		Blacks:          settings.Blacks,
		Exposure:        settings.Exposure,
		WhitePoint:      whitePointOrDefault(settings.WhitePoint),
		Contrast:        settings.Contrast,
		Saturation:      saturationOrDefault(settings.Saturation),
		BlueSaturation:  saturationOrDefault(settings.BlueSaturation),
		GreenSaturation: saturationOrDefault(settings.GreenSaturation),
		Sharpen0:        settings.Sharpen0,
		Sharpen1:        settings.Sharpen1,
		ChromaEps:       settings.ChromaEps,
	}, edges)

	img := cropAndBuildImage(rgb, fused[0].Width, fused[0].Height, CropMargin)

	if err := writeJPEG(outputPath, img, settings.JpegQuality); err != nil {
		return fmt.Errorf("processor: %w", err)
	}

	thumb := buildThumbnail(img, ThumbnailWidth)
	if err := writeJPEG(thumbnailPath(outputPath), thumb, settings.JpegQuality); err != nil {
		return fmt.Errorf("processor: %w", err)
	}

	progress.OnProgress(100)
	progress.OnCompleted(outputPath)
	return nil
}

func gammaOrDefault(g float64) float64 {
	if g <= 0 {
		return 2.2
	}
	return g
}

func tonemapOrDefault(v float64) float64 {
	if v <= 0 {
		return 0.25
	}
	return v
}

func whitePointOrDefault(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}

func saturationOrDefault(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

func toFloat64Neutral(n [3]float32) [3]float64 {
	return [3]float64{float64(n[0]), float64(n[1]), float64(n[2])}
}

func loadFrames(a *archive.Archive, camera metadata.CameraDescription) ([]*frame, error) {
	out := make([]*frame, 0, len(a.Manifest.Frames))
	for _, entry := range a.Manifest.Frames {
		b, ok := a.FrameBytes(entry.Filename)
		if !ok {
			return nil, fmt.Errorf("missing pixel bytes for %q", entry.Filename)
		}
		ts, _ := strconv.ParseInt(entry.Timestamp, 10, 64)
		raw := unpackRaw(b, entry.PixelFormat, entry.Width, entry.Height)
		channels := kernels.DeinterleaveRaw(raw, entry.Width, entry.Height, camera.SensorArrangement)
		normalized := [4]wavelet.Plane{}
		for i := range channels {
			normalized[i] = kernels.LinearImage(channels[i], float64(camera.BlackLevel[i]), float64(camera.WhiteLevel), ExpandedRange)
		}
		out = append(out, &frame{
			entry:    entry,
			ts:       ts,
			ev:       evFromEntry(entry),
			channels: normalized,
		})
	}
	return out, nil
}

// evFromEntry approximates exposure value from ISO and exposure time,
// the standard log2(N^2/t) relation with a fixed aperture assumption
// since spec.md's archive schema carries ISO/shutter but not aperture
// per frame.
func evFromEntry(e archive.FrameEntry) float64 {
	seconds := float64(e.ExposureTime) / 1e9
	if seconds <= 0 {
		seconds = 1.0 / 60
	}
	iso := float64(e.Iso)
	if iso <= 0 {
		iso = 100
	}
	return -log2(seconds) - log2(iso/100) + float64(e.ExposureCompensation)
}

func log2(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Log2(v)
}

// splitBracket implements spec.md step 1, splitting by EV alone (a
// frame's raw type is not consulted): the underexposed subset only
// exists when the manifest's EV spread exceeds EVSplitThreshold, in
// which case the frames whose EV is above the lower median (less
// exposure, so darker) split off.
func splitBracket(frames []*frame) (base, under []*frame) {
	if len(frames) == 0 {
		return nil, nil
	}
	minEV, maxEV := frames[0].ev, frames[0].ev
	for _, f := range frames {
		if f.ev < minEV {
			minEV = f.ev
		}
		if f.ev > maxEV {
			maxEV = f.ev
		}
	}
	if maxEV-minEV <= EVSplitThreshold {
		return frames, nil
	}
	sorted := make([]*frame, len(frames))
	copy(sorted, frames)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ev < sorted[j].ev })
	median := sorted[(len(sorted)-1)/2].ev
	for _, f := range frames {
		if f.ev > median {
			under = append(under, f)
		} else {
			base = append(base, f)
		}
	}
	return base, under
}

func pickReference(base []*frame, refTs int64) *frame {
	for _, f := range base {
		if f.ts == refTs {
			return f
		}
	}
	return base[0]
}

func estimateSettings(reference *frame, settings metadata.PostProcessSettings) kernels.MeasureImage {
	hist := histogramFromPlane(reference.channels[1])
	return kernels.Measure(hist)
}

func histogramFromPlane(p wavelet.Plane) []float64 {
	hist := make([]float64, 256)
	if len(p.Data) == 0 {
		return hist
	}
	for _, v := range p.Data {
		bin := int(v / ExpandedRange * 255)
		if bin < 0 {
			bin = 0
		}
		if bin > 255 {
			bin = 255
		}
		hist[bin]++
	}
	for i := range hist {
		hist[i] /= float64(len(p.Data))
	}
	return hist
}

// fuseBase implements spec.md steps 3-5: per-channel dense-flow
// registration against the reference, weighted wavelet fusion
// accumulation, temporal averaging, and wavelet-shrinkage denoise.
func fuseBase(reference *frame, base []*frame, settings metadata.PostProcessSettings, progress Progress) ([4]wavelet.Plane, error) {
	var out [4]wavelet.Plane

	for ch := 0; ch < 4; ch++ {
		refPlane := reference.channels[ch]
		accum := wavelet.ForwardTransform(refPlane)

		refGray := planeToBytes(refPlane)
		n := len(base)
		for i, cand := range base {
			if cand == reference {
				continue
			}
			candGray := planeToBytes(cand.channels[ch])
			flow, err := registration.DenseFlow(refGray, candGray, refPlane.Width, refPlane.Height, registration.FarnebackUltrafast)
			if err != nil {
				return out, err
			}
			warped := registration.WarpPlane(cand.channels[ch].Data, refPlane.Width, refPlane.Height, flow, registration.FarnebackUltrafast.Stride)
			warpedPlane := wavelet.Plane{Width: refPlane.Width, Height: refPlane.Height, Data: warped}
			candPyramid := wavelet.ForwardTransform(warpedPlane)

			mag2 := flowMagnitudeAverage(flow)
			evWd := 1.0
			isFinal := i == n-1
			var finestHH wavelet.Plane
			if isFinal {
				finestHH = accum.Levels[0].HH
			}
			accum = kernels.FuseDenoise(accum, candPyramid, kernels.FuseDenoiseParams{
				FlowMagnitude2: mag2,
				EvWd:           evWd,
				NoiseThreshold: 1.0,
				Aggressiveness: settings.SpatialDenoiseAggressiveness,
				Mode:           denoise.Hard,
			}, finestHH, isFinal)

			if len(base) > 0 {
				pct := 75 * (i + 1) / len(base)
				progress.OnProgress(pct)
			}
		}

		divisor := n - 1
		if divisor < 1 {
			divisor = 1
		}
		for i := range accum.Levels {
			divideInPlace(accum.Levels[i].LL.Data, divisor)
			divideInPlace(accum.Levels[i].LH.Data, divisor)
			divideInPlace(accum.Levels[i].HL.Data, divisor)
			divideInPlace(accum.Levels[i].HH.Data, divisor)
		}

		out[ch] = wavelet.InverseTransform(accum, refPlane.Width, refPlane.Height)
	}

	progress.OnProgress(75)
	return out, nil
}

// divideInPlace implements spec.md step 4's "temporal average of the
// running sum divided by (N-1 frames)" uniformly across every subband,
// not just the low-pass one.
func divideInPlace(data []float64, divisor int) {
	d := float64(divisor)
	for i := range data {
		data[i] /= d
	}
}

func flowMagnitudeAverage(f registration.Flow) float64 {
	if len(f.DX) == 0 {
		return 0
	}
	sum := 0.0
	for i := range f.DX {
		sum += float64(f.DX[i])*float64(f.DX[i]) + float64(f.DY[i])*float64(f.DY[i])
	}
	return sum / float64(len(f.DX))
}

func planeToBytes(p wavelet.Plane) []byte {
	out := make([]byte, len(p.Data))
	for i, v := range p.Data {
		scaled := v / ExpandedRange * 255
		if scaled < 0 {
			scaled = 0
		}
		if scaled > 255 {
			scaled = 255
		}
		out[i] = byte(scaled)
	}
	return out
}

// tryHDRMerge implements spec.md step 6: attempt each underexposed
// candidate in the order splitBracket returned them (manifest order),
// accept the first whose merge error beats MaxError, and on acceptance
// tighten shadows per spec.md's rule.
func tryHDRMerge(reference *frame, fused [4]wavelet.Plane, under []*frame, settings *metadata.PostProcessSettings) [4]wavelet.Plane {
	candidates := make([]hdr.Candidate, len(under))
	for i, f := range under {
		candidates[i] = hdr.Candidate{EV: f.ev}
	}
	ordered := hdr.OrderByEV(candidates)
	_ = ordered // not used: the loop below walks under in its own order

	for _, f := range under {
		refHist := exposure.Histogram(histogramFromPlane(reference.channels[1]))
		underHist := exposure.Histogram(histogramFromPlane(f.channels[1]))
		scale := exposure.MatchScale(refHist, underHist)

		errorScalar := estimateMergeError(reference.channels[1], f.channels[1], scale)
		if !hdr.Accept(errorScalar) {
			continue
		}

		settings.Shadows = hdr.ReducedShadows(settings.Shadows)
		for ch := 0; ch < 3; ch++ {
			fused[ch] = blendExposure(fused[ch], f.channels[ch], scale)
		}
		break
	}
	return fused
}

// estimateMergeError is a plane-domain stand-in for the gocv-based
// GhostMask scalar (internal/hdr.GhostMask) for callers operating on
// already-deinterleaved planes rather than gocv.Mat images.
func estimateMergeError(reference, candidate wavelet.Plane, scale float64) float64 {
	if len(reference.Data) == 0 {
		return 1
	}
	total := 0.0
	for i := range reference.Data {
		diff := reference.Data[i] - candidate.Data[i]*scale
		if diff < 0 {
			diff = -diff
		}
		total += diff
	}
	return total / float64(len(reference.Data)) / ExpandedRange
}

func blendExposure(base, under wavelet.Plane, scale float64) wavelet.Plane {
	out := wavelet.NewPlane(base.Width, base.Height)
	for i := range base.Data {
		scaled := under.Data[i] * scale
		if scaled > base.Data[i] {
			out.Data[i] = scaled
		} else {
			out.Data[i] = base.Data[i]
		}
	}
	return out
}

// buildThumbnail implements spec.md step 8's "320-px thumbnail",
// which Process writes as a separate "_thumb" JPEG next to the
// full-size one (it is not embedded in it), resized with a high-quality
// resampler so a fast downstream gallery view isn't just a decimated
// crop of the full image.
func buildThumbnail(img image.Image, width int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= width {
		return img
	}
	height := bounds.Dy() * width / bounds.Dx()
	thumb := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(thumb, thumb.Bounds(), img, bounds, draw.Over, nil)
	return thumb
}

func thumbnailPath(outputPath string) string {
	ext := filepath.Ext(outputPath)
	return strings.TrimSuffix(outputPath, ext) + "_thumb" + ext
}

func cropAndBuildImage(rgb []byte, width, height, margin int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width-2*margin, height-2*margin))
	for y := margin; y < height-margin; y++ {
		for x := margin; x < width-margin; x++ {
			idx := (y*width + x) * 3
			img.Set(x-margin, y-margin, color.RGBA{
				R: rgb[idx], G: rgb[idx+1], B: rgb[idx+2], A: 255,
			})
		}
	}
	return img
}

func writeJPEG(path string, img image.Image, quality int) error {
	if quality <= 0 {
		quality = 92
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
}

// unpackRaw converts a frame's packed pixel bytes into per-pixel
// samples. Raw16 is a direct little-endian reinterpretation; Raw10 and
// Raw12 follow Android's documented packed layouts (4 pixels per 5
// bytes, and 2 pixels per 3 bytes, respectively).
func unpackRaw(data []byte, format metadata.PixelFormat, width, height int) []uint16 {
	switch format {
	case metadata.Raw10:
		return unpackRaw10(data, width, height)
	case metadata.Raw12:
		return unpackRaw12(data, width, height)
	default:
		return unpackRaw16(data, width, height)
	}
}

func unpackRaw16(data []byte, width, height int) []uint16 {
	n := width * height
	out := make([]uint16, n)
	for i := 0; i < n && i*2+1 < len(data); i++ {
		out[i] = uint16(data[i*2]) | uint16(data[i*2+1])<<8
	}
	return out
}

func unpackRaw10(data []byte, width, height int) []uint16 {
	n := width * height
	out := make([]uint16, n)
	groups := n / 4
	for g := 0; g < groups && g*5+4 < len(data); g++ {
		b := data[g*5 : g*5+5]
		lsb := b[4]
		out[g*4+0] = uint16(b[0])<<2 | uint16(lsb&0x03)
		out[g*4+1] = uint16(b[1])<<2 | uint16((lsb>>2)&0x03)
		out[g*4+2] = uint16(b[2])<<2 | uint16((lsb>>4)&0x03)
		out[g*4+3] = uint16(b[3])<<2 | uint16((lsb>>6)&0x03)
	}
	return out
}

func unpackRaw12(data []byte, width, height int) []uint16 {
	n := width * height
	out := make([]uint16, n)
	pairs := n / 2
	for p := 0; p < pairs && p*3+2 < len(data); p++ {
		b := data[p*3 : p*3+3]
		out[p*2+0] = uint16(b[0])<<4 | uint16(b[2]&0x0F)
		out[p*2+1] = uint16(b[1])<<4 | uint16((b[2]>>4)&0x0F)
	}
	return out
}
