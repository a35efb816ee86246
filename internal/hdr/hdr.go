// Package hdr implements the optional HDR merge step of spec.md §4.6
// step 6: exposure-match an underexposed candidate against the fused
// base image, register it by feature matching, build a ghost mask, and
// accept or reject the merge by its registration error.
package hdr

import (
	"fmt"
	"sort"

	"gocv.io/x/gocv"

	"github.com/warpcomdev/rawcore/internal/exposure"
)

// MaxError is spec.md's MAX_HDR_ERROR acceptance threshold.
const MaxError = 0.06

// LoweRatio is the nearest/second-nearest descriptor distance ratio
// test threshold from spec.md §4.6 step 6b.
const LoweRatio = 0.75

// MaskBlurKernel is the Gaussian blur kernel spec.md names for the
// ghost mask ("11x11 Gaussian").
const MaskBlurKernel = 11

// Registration holds the homography mapping the underexposed preview
// onto the reference frame, plus the quality metrics used to gate
// acceptance.
type Registration struct {
	Homography     gocv.Mat
	MatchedPairs   int
	ReprojectError float64
}

// Close releases the underlying homography matrix.
func (r *Registration) Close() {
	if !r.Homography.Empty() {
		r.Homography.Close()
	}
}

// Register implements spec.md §4.6 step 6b: ORB keypoint detection on
// both previews, Lowe-ratio-filtered brute-force matching, and a
// RANSAC homography fit. API shape grounded on gocv's documented ORB
// and FindHomography bindings; the example pack's one gocv consumer
// (other_examples' cvpipe-pipeline.go) demonstrates only cascade
// classification and basic filtering, not feature matching, so this
// call sequence is not a literal pack match.
func Register(referenceGray, candidateGray gocv.Mat) (*Registration, error) {
	orb := gocv.NewORB()
	defer orb.Close()

	refKp, refDesc := orb.DetectAndCompute(referenceGray, gocv.NewMat())
	defer refDesc.Close()
	candKp, candDesc := orb.DetectAndCompute(candidateGray, gocv.NewMat())
	defer candDesc.Close()

	if len(refKp) < 4 || len(candKp) < 4 {
		return nil, fmt.Errorf("hdr: insufficient keypoints for registration (ref=%d cand=%d)", len(refKp), len(candKp))
	}

	matcher := gocv.NewBFMatcher()
	defer matcher.Close()

	knnMatches := matcher.KnnMatch(candDesc, refDesc, 2)

	var srcPts, dstPts []gocv.Point2f
	for _, pair := range knnMatches {
		if len(pair) < 2 {
			continue
		}
		if pair[0].Distance < LoweRatio*pair[1].Distance {
			c := candKp[pair[0].QueryIdx].X
			cy := candKp[pair[0].QueryIdx].Y
			r := refKp[pair[0].TrainIdx].X
			ry := refKp[pair[0].TrainIdx].Y
			srcPts = append(srcPts, gocv.Point2f{X: float32(c), Y: float32(cy)})
			dstPts = append(dstPts, gocv.Point2f{X: float32(r), Y: float32(ry)})
		}
	}

	if len(srcPts) < 4 {
		return nil, fmt.Errorf("hdr: insufficient matches after ratio test (%d)", len(srcPts))
	}

	srcVec := gocv.NewPoint2fVectorFromPoints(srcPts)
	defer srcVec.Close()
	dstVec := gocv.NewPoint2fVectorFromPoints(dstPts)
	defer dstVec.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	homography := gocv.FindHomography(srcVec, dstVec, &mask, gocv.HomographyMethodRANSAC, 3.0)
	if homography.Empty() {
		return nil, fmt.Errorf("hdr: homography estimation failed")
	}

	inliers := countNonZero(mask)
	reprojErr := 1.0 - float64(inliers)/float64(len(srcPts))

	return &Registration{
		Homography:     homography,
		MatchedPairs:   len(srcPts),
		ReprojectError: reprojErr,
	}, nil
}

func countNonZero(mask gocv.Mat) int {
	count := 0
	for i := 0; i < mask.Rows(); i++ {
		if mask.GetUCharAt(i, 0) != 0 {
			count++
		}
	}
	return count
}

// GhostMask computes a per-pixel acceptance weight and an aggregate
// error scalar from the absolute difference between the reference and
// the warped, exposure-matched candidate (spec.md §4.6 step 6d): a
// Gaussian-blurred, 2x-upscaled weight map plus the mean normalized
// difference as the scalar "error" used against MaxError.
func GhostMask(referenceGray, warpedCandidateGray gocv.Mat) (weight gocv.Mat, errorScalar float64, err error) {
	if referenceGray.Rows() != warpedCandidateGray.Rows() || referenceGray.Cols() != warpedCandidateGray.Cols() {
		return gocv.NewMat(), 0, fmt.Errorf("hdr: ghost mask inputs must share dimensions")
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(referenceGray, warpedCandidateGray, &diff)

	blurred := gocv.NewMat()
	gocv.GaussianBlur(diff, &blurred, imageSize(MaskBlurKernel, MaskBlurKernel), 0, 0, gocv.BorderDefault)

	upscaled := gocv.NewMat()
	gocv.Resize(blurred, &upscaled, imageSizeScaled(blurred, 2), 0, 0, gocv.InterpolationLinear)
	blurred.Close()

	errorScalar = meanNormalized(diff)
	return upscaled, errorScalar, nil
}

func imageSize(w, h int) gocv.ImgSize { return gocv.ImgSize{Width: w, Height: h} }

func imageSizeScaled(m gocv.Mat, factor int) gocv.ImgSize {
	return gocv.ImgSize{Width: m.Cols() * factor, Height: m.Rows() * factor}
}

func meanNormalized(diff gocv.Mat) float64 {
	total := 0.0
	n := 0
	for y := 0; y < diff.Rows(); y++ {
		for x := 0; x < diff.Cols(); x++ {
			total += float64(diff.GetUCharAt(y, x)) / 255.0
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// Accept implements spec.md §4.6 step 6e's acceptance gate.
func Accept(errorScalar float64) bool {
	return errorScalar < MaxError
}

// ReducedShadows implements spec.md's "on accept, reduce shadows to
// max(0.75*shadows, 4)".
func ReducedShadows(shadows float64) float64 {
	reduced := 0.75 * shadows
	if reduced < 4 {
		return 4
	}
	return reduced
}

// Candidate pairs a candidate frame's exposure histogram with its EV;
// it carries no pixel buffers.
type Candidate struct {
	Histogram exposure.Histogram
	EV        float64
}

// OrderByEV returns a copy of candidates sorted by EV ascending (lowest
// EV first).
func OrderByEV(candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	sort.Slice(out, func(i, j int) bool { return out[i].EV < out[j].EV })
	return out
}
