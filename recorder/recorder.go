// Package recorder implements the recording filter's delivery contract from
// spec.md §4.7. It does not contain a codec or a muxer (spec.md's
// Non-goals explicitly exclude both), but it defines the Sink interface a
// real encoder/muxer would implement and wires it into the filter runtime.
//
// Grounded on original_source/memcom/mc_record.py.
package recorder

import (
	"github.com/wheresjames/memcom-go/audio"
	"github.com/wheresjames/memcom-go/filter"
	"github.com/wheresjames/memcom-go/video"
)

// Sink is the delivery contract a real encoder/muxer implements. Recorder
// calls it once per slot it is handed by the filter runtime, in writer
// order; it never buffers or reorders on Sink's behalf.
type Sink interface {
	WriteVideoFrame(idx, pts int64, plane video.Plane) error
	WriteAudioBlock(idx, pts int64, pcm []byte) error
}

// Options configures a Recorder.
type Options struct {
	// BitrateTolerance is the encoder bitrate tolerance, in bits per
	// second, a real encoder would pass to its codec configuration when
	// it is set up. mc_record.py hardcodes this to int(width*height*2)
	// regardless of frame rate or codec (spec.md §9 flags it as
	// heuristic); SPEC_FULL.md resolves the open question by making it a
	// caller-supplied field instead. Use BitrateToleranceFor to compute
	// the original heuristic's default when no better figure is known.
	BitrateTolerance int64
}

// BitrateToleranceFor reproduces mc_record.py's default bitrate tolerance
// heuristic (width*height*2) for callers that don't have a better number.
func BitrateToleranceFor(width, height int) int64 {
	return int64(width) * int64(height) * 2
}

// Recorder is a filter.Callbacks implementation that forwards every slot it
// sees to a Sink.
type Recorder struct {
	filter.BaseCallbacks

	sink Sink
	opts Options
}

// New returns a Recorder delivering to sink.
func New(sink Sink, opts Options) *Recorder {
	return &Recorder{sink: sink, opts: opts}
}

// Options returns the tolerance/settings this Recorder was constructed
// with, so code that sets up the Sink's encoder can read
// BitrateTolerance. Sink itself has no initialization hook.
func (r *Recorder) Options() Options { return r.opts }

// OnVideo forwards the frame to the sink unchanged.
func (r *Recorder) OnVideo(f *filter.Filter, ring *video.Ring, fi video.FrameInfo, buf video.Plane) error {
	return r.sink.WriteVideoFrame(fi.Idx, fi.Pts, buf)
}

// OnAudio forwards the block to the sink unchanged.
func (r *Recorder) OnAudio(f *filter.Filter, ring *audio.Ring, fi audio.FrameInfo, buf []byte) error {
	return r.sink.WriteAudioBlock(fi.Idx, fi.Pts, buf)
}
