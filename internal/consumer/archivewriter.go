package consumer

import (
	"sort"

	"github.com/warpcomdev/rawcore/internal/archive"
	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/pool"
)

// ArchiveWriter implements the ZSL "save" operation of spec.md §4.5: it
// locks the whole ring, selects a reference frame plus n neighbors
// alternating earlier/later by timestamp distance, writes them to an
// archive, and releases every selected frame back to the pool.
type ArchiveWriter struct {
	pool   *pool.BufferPool
	camera metadata.CameraDescription
}

// NewArchiveWriter builds an ArchiveWriter over p.
func NewArchiveWriter(p *pool.BufferPool, camera metadata.CameraDescription) *ArchiveWriter {
	return &ArchiveWriter{pool: p, camera: camera}
}

// Save implements spec.md §4.5's "Archive writer. On save(timestamp_ref,
// n, …)" steps 1-4.
func (w *ArchiveWriter) Save(path string, timestampRef int64, n int, settings metadata.PostProcessSettings) error {
	handle := w.pool.LockAll()
	frames := handle.Frames()

	selected := selectFrames(frames, timestampRef, n)

	var referenceTs int64
	if len(selected) > 0 {
		referenceTs = selected[0].Metadata.TimestampNs
	}
	err := archive.Write(path, w.camera, settings, referenceTs, selected)
	handle.Consume()
	return err
}

// selectFrames picks the frame closest to timestampRef as the
// reference, then greedily adds the next n closest by timestamp
// distance, always taking whichever remaining earlier/later candidate
// has the smaller distance; on a tie the earlier frame is taken. The
// reference is returned first, followed by the rest in
// the order they were picked.
func selectFrames(frames []*pool.RawFrame, timestampRef int64, n int) []*pool.RawFrame {
	if len(frames) == 0 {
		return nil
	}
	ordered := make([]*pool.RawFrame, len(frames))
	copy(ordered, frames)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Metadata.TimestampNs < ordered[j].Metadata.TimestampNs
	})

	refIdx := 0
	best := int64(-1)
	for i, f := range ordered {
		d := abs64(f.Metadata.TimestampNs - timestampRef)
		if best < 0 || d < best {
			best = d
			refIdx = i
		}
	}

	selected := []*pool.RawFrame{ordered[refIdx]}
	lo, hi := refIdx-1, refIdx+1
	for len(selected) <= n && (lo >= 0 || hi < len(ordered)) {
		var loDist, hiDist int64 = -1, -1
		if lo >= 0 {
			loDist = abs64(ordered[lo].Metadata.TimestampNs - timestampRef)
		}
		if hi < len(ordered) {
			hiDist = abs64(ordered[hi].Metadata.TimestampNs - timestampRef)
		}
		switch {
		case lo >= 0 && (hi >= len(ordered) || loDist <= hiDist):
			selected = append(selected, ordered[lo])
			lo--
		case hi < len(ordered):
			selected = append(selected, ordered[hi])
			hi++
		}
	}
	return selected
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
