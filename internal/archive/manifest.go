// Package archive reads and writes the self-contained capture archive
// of spec.md §6: a ZIP-style uncompressed bundle holding one JSON
// manifest entry and one raw-bytes entry per frame. The stdlib
// archive/zip + encoding/json pair is the direct match for a "ZIP-style
// uncompressed bundle" named explicitly in the wire format (see
// DESIGN.md for why no third-party container library replaces it).
package archive

import "github.com/warpcomdev/rawcore/internal/metadata"

// Manifest is the exact JSON shape of the archive's "metadata" entry.
type Manifest struct {
	ReferenceTimestamp string `json:"referenceTimestamp"`
	WriteDNG           bool   `json:"writeDNG"`

	ColorIlluminant1 string     `json:"colorIlluminant1"`
	ColorIlluminant2 string     `json:"colorIlluminant2"`
	ForwardMatrix1   [9]float64 `json:"forwardMatrix1"`
	ForwardMatrix2   [9]float64 `json:"forwardMatrix2"`
	ColorMatrix1     [9]float64 `json:"colorMatrix1"`
	ColorMatrix2     [9]float64 `json:"colorMatrix2"`
	CalibrationMatrix1 [9]float64 `json:"calibrationMatrix1"`
	CalibrationMatrix2 [9]float64 `json:"calibrationMatrix2"`

	BlackLevel  [4]int `json:"blackLevel"`
	WhiteLevel  int    `json:"whiteLevel"`

	SensorArrangement string `json:"sensorArrangment"`

	Apertures    []float64 `json:"apertures"`
	FocalLengths []float64 `json:"focalLengths"`

	PostProcessingSettings metadata.PostProcessSettings `json:"postProcessingSettings"`

	Frames []FrameEntry `json:"frames"`
}

// FrameEntry is one element of the manifest's "frames" array.
type FrameEntry struct {
	Timestamp            string                  `json:"timestamp"`
	Filename              string                  `json:"filename"`
	Width                 int                     `json:"width"`
	Height                int                     `json:"height"`
	RowStride             int                     `json:"rowStride"`
	PixelFormat           metadata.PixelFormat    `json:"pixelFormat"`
	AsShotNeutral         [3]float32              `json:"asShotNeutral"`
	Iso                   int                     `json:"iso"`
	ExposureCompensation  int                     `json:"exposureCompensation"`
	ExposureTime          int64                   `json:"exposureTime"`
	Orientation           metadata.ScreenOrientation `json:"orientation"`
	LensShadingMapWidth   int                     `json:"lensShadingMapWidth"`
	LensShadingMapHeight  int                     `json:"lensShadingMapHeight"`
	LensShadingMap        [4][]float32            `json:"lensShadingMap"`
}
