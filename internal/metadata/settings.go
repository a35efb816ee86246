package metadata

// PostProcessSettings is the tunable knob set of spec.md §6's
// "postProcessingSettings" object. A zero value is not meaningful on
// its own; internal/processor.DefaultSettings fills in the defaults
// the original post-process kernel otherwise assumes.
type PostProcessSettings struct {
	SpatialDenoiseAggressiveness float64 `json:"spatialDenoiseAggressiveness"`
	Temperature                  float64 `json:"temperature"`
	Tint                         float64 `json:"tint"`
	Gamma                        float64 `json:"gamma"`
	TonemapVariance              float64 `json:"tonemapVariance"`
	Shadows                      float64 `json:"shadows"`
	WhitePoint                   float64 `json:"whitePoint"`
	Blacks                       float64 `json:"blacks"`
	Contrast                     float64 `json:"contrast"`
	Sharpen0                     float64 `json:"sharpen0"`
	Sharpen1                     float64 `json:"sharpen1"`
	Saturation                   float64 `json:"saturation"`
	BlueSaturation               float64 `json:"blueSaturation"`
	GreenSaturation              float64 `json:"greenSaturation"`
	Exposure                     float64 `json:"exposure"`
	ChromaEps                    float64 `json:"chromaEps"`
	JpegQuality                  int     `json:"jpegQuality"`
	Flipped                      bool    `json:"flipped"`
	Dng                          bool    `json:"dng"`
}
