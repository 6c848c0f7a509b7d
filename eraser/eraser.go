// Package eraser implements the blanking filter from spec.md §4.8: a
// filter registered at the deepest negative bias on a ring (i.e. trailing
// the writer by nearly a full revolution) that zero-fills each slot just
// before the writer is about to reclaim it, so that a reader who ever
// falls behind by a full revolution sees black/silence instead of a stale
// frame from the previous lap.
//
// Grounded on original_source/memcom/mc_blank.py.
package eraser

import (
	"github.com/wheresjames/memcom-go/audio"
	"github.com/wheresjames/memcom-go/filter"
	"github.com/wheresjames/memcom-go/video"
)

// Eraser is a filter.Callbacks implementation that does nothing but zero
// the slot content it's handed. Register it on a ring with
// Filter.AddVideoInput/AddAudioInput using a bias close to -1 (e.g. -0.75,
// spec.md §4.8) so it runs deep behind the writer.
type Eraser struct {
	filter.BaseCallbacks
}

// New returns an Eraser ready to register against one or more rings.
func New() *Eraser { return &Eraser{} }

// OnVideo zero-fills the full frame plane for the delivered slot.
func (e *Eraser) OnVideo(f *filter.Filter, ring *video.Ring, fi video.FrameInfo, buf video.Plane) error {
	for y := 0; y < buf.Height; y++ {
		row := buf.Row(y)
		for i := range row {
			row[i] = 0
		}
	}
	return nil
}

// OnAudio zero-fills the PCM block for the delivered slot (digital
// silence).
func (e *Eraser) OnAudio(f *filter.Filter, ring *audio.Ring, fi audio.FrameInfo, buf []byte) error {
	for i := range buf {
		buf[i] = 0
	}
	return nil
}
