package archive

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/pool"
)

const manifestName = "metadata"

// frameFilename is deterministic so Write/Read round-trip byte
// identically regardless of map iteration order.
func frameFilename(ts int64) string {
	return fmt.Sprintf("frame_%d.raw", ts)
}

// Write emits camera, settings and frames into a ZIP archive at path.
// referenceTimestamp identifies the reference frame. The manifest
// carries no flag saying whether the bundle is an HDR bracket.
func Write(path string, camera metadata.CameraDescription, settings metadata.PostProcessSettings, referenceTimestamp int64, frames []*pool.RawFrame) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	manifest := Manifest{
		ReferenceTimestamp: strconv.FormatInt(referenceTimestamp, 10),
		WriteDNG:           settings.Dng,
		ColorIlluminant1:   camera.ColorIlluminant1,
		ColorIlluminant2:   camera.ColorIlluminant2,
		ForwardMatrix1:     camera.ForwardMatrix1,
		ForwardMatrix2:     camera.ForwardMatrix2,
		ColorMatrix1:       camera.ColorMatrix1,
		ColorMatrix2:       camera.ColorMatrix2,
		CalibrationMatrix1: camera.CalibrationMatrix1,
		CalibrationMatrix2: camera.CalibrationMatrix2,
		BlackLevel:         camera.BlackLevel,
		WhiteLevel:         camera.WhiteLevel,
		SensorArrangement:  camera.SensorArrangement.String(),
		Apertures:          camera.Apertures,
		FocalLengths:       camera.FocalLengths,
		PostProcessingSettings: settings,
	}

	for _, f := range frames {
		name := frameFilename(f.Metadata.TimestampNs)
		entry := FrameEntry{
			Timestamp:            strconv.FormatInt(f.Metadata.TimestampNs, 10),
			Filename:             name,
			Width:                f.Width,
			Height:               f.Height,
			RowStride:            f.RowStride,
			PixelFormat:          f.PixelFmt,
			AsShotNeutral:        f.Metadata.AsShotNeutral,
			Iso:                  f.Metadata.Iso,
			ExposureCompensation: f.Metadata.ExposureCompensation,
			ExposureTime:         f.Metadata.ExposureTimeNs,
			Orientation:          f.Metadata.ScreenOrientation,
		}
		if w := f.Metadata.LensShadingMap[0].Width; w > 0 {
			entry.LensShadingMapWidth = w
			entry.LensShadingMapHeight = f.Metadata.LensShadingMap[0].Height
			for i := 0; i < 4; i++ {
				entry.LensShadingMap[i] = f.Metadata.LensShadingMap[i].Values
			}
		}
		manifest.Frames = append(manifest.Frames, entry)
	}

	mw, err := zw.Create(manifestName)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(mw)
	if err := enc.Encode(manifest); err != nil {
		return err
	}

	for _, f := range frames {
		name := frameFilename(f.Metadata.TimestampNs)
		fw, err := zw.Create(name)
		if err != nil {
			return err
		}
		data := f.Lock(false)
		_, err = fw.Write(data)
		f.Unlock()
		if err != nil {
			return err
		}
	}

	return zw.Close()
}

// Archive is an in-memory, read-only view of a loaded capture bundle.
type Archive struct {
	Manifest Manifest
	bytes    map[string][]byte
}

// FrameBytes returns the raw pixel bytes for the given manifest filename.
func (a *Archive) FrameBytes(filename string) ([]byte, bool) {
	b, ok := a.bytes[filename]
	return b, ok
}

// Read loads path into memory.
func Read(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	a := &Archive{bytes: make(map[string][]byte, len(zr.File))}
	var manifestFound bool
	for _, zf := range zr.File {
		rc, err := zf.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		if zf.Name == manifestName {
			if err := json.Unmarshal(data, &a.Manifest); err != nil {
				return nil, fmt.Errorf("archive: invalid manifest: %w", err)
			}
			manifestFound = true
			continue
		}
		a.bytes[zf.Name] = data
	}
	if !manifestFound {
		return nil, fmt.Errorf("archive: missing %q entry", manifestName)
	}
	return a, nil
}
