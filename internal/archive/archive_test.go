package archive

import (
	"archive/zip"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/pool"
)

func newTestFrame(ts int64, w, h, stride int, fill byte) *pool.RawFrame {
	f := pool.NewRawFrame(stride * h)
	data := f.Lock(true)
	for i := range data {
		data[i] = fill
	}
	f.Unlock()
	f.Width, f.Height, f.RowStride = w, h, stride
	f.PixelFmt = metadata.Raw16
	f.Metadata = metadata.FrameMetadata{TimestampNs: ts, Iso: 100}
	return f
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.zip")

	camera := metadata.CameraDescription{SensorArrangement: metadata.RGGB, WhiteLevel: 1023}
	settings := metadata.PostProcessSettings{JpegQuality: 92, Gamma: 2.2}

	frames := []*pool.RawFrame{
		newTestFrame(100, 4000, 3000, 8000, 0x11),
		newTestFrame(200, 4000, 3000, 8000, 0x22),
	}

	if err := Write(path, camera, settings, 100, frames); err != nil {
		t.Fatalf("Write: %v", err)
	}

	a, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if a.Manifest.ReferenceTimestamp != "100" {
		t.Fatalf("expected reference timestamp 100, got %s", a.Manifest.ReferenceTimestamp)
	}
	if len(a.Manifest.Frames) != 2 {
		t.Fatalf("expected 2 frame entries, got %d", len(a.Manifest.Frames))
	}
	if a.Manifest.PostProcessingSettings.JpegQuality != 92 {
		t.Fatalf("expected settings round-tripped, got %+v", a.Manifest.PostProcessingSettings)
	}

	for i, entry := range a.Manifest.Frames {
		data, ok := a.FrameBytes(entry.Filename)
		if !ok {
			t.Fatalf("missing frame bytes for %s", entry.Filename)
		}
		if len(data) != 8000*3000 {
			t.Fatalf("unexpected frame length %d", len(data))
		}
		want := byte(0x11)
		if i == 1 {
			want = 0x22
		}
		if data[0] != want {
			t.Fatalf("frame %d: expected fill byte %x, got %x", i, want, data[0])
		}
	}
}

// TestByteIdenticalRoundTrip matches spec.md §8 scenario 6: writing and
// re-reading a single frame must produce byte-identical sensor data.
func TestByteIdenticalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "one.zip")

	orig := newTestFrame(42, 4000, 3000, 8000, 0x7a)
	origBytes := append([]byte(nil), orig.Lock(false)...)
	orig.Unlock()

	if err := Write(path, metadata.CameraDescription{}, metadata.PostProcessSettings{}, 42, []*pool.RawFrame{orig}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	a, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	data, ok := a.FrameBytes(a.Manifest.Frames[0].Filename)
	if !ok {
		t.Fatalf("missing frame bytes")
	}
	if sha256.Sum256(origBytes) != sha256.Sum256(data) {
		t.Fatalf("round-tripped frame bytes differ from original")
	}
}

func TestReadMissingManifestFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nomanifest.zip")

	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(out)
	w, err := zw.Create("frame_1.raw")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	out.Close()

	if _, err := Read(path); err == nil {
		t.Fatalf("expected error reading archive with no manifest entry")
	}
}
