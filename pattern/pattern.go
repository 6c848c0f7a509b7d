// Package pattern implements the illustrative test-pattern source from
// spec.md §4.6: a bouncing filled rectangle on a black field for video, and
// a frequency-swept (chirp) tone for audio, useful for exercising a pipeline
// end to end without a real capture source.
//
// Grounded on original_source/memcom/mc_testvid.py (bouncing box) and
// mc_shapes.py (rectangle fill), with the chirp generator modeled after
// mc_testvid.py's audio tone.
package pattern

import (
	"math"

	"github.com/wheresjames/memcom-go/audio"
	"github.com/wheresjames/memcom-go/rect"
	"github.com/wheresjames/memcom-go/video"
)

// Generator produces one bouncing-box video stream and one chirp audio
// stream. Its FillVideo and FillAudio methods satisfy
// clock.VideoFillFunc/clock.AudioFillFunc.
type Generator struct {
	box      rect.Rect
	dx, dy   int
	color    [3]byte
	phase    float64
	minFreq  float64
	maxFreq  float64
	sweepSec float64
}

// NewGenerator returns a Generator for a frame of the given dimensions. The
// box starts at the top-left corner sized to 1/8th of the frame and moves
// diagonally. minFreq/maxFreq/sweepSec control the audio chirp: it sweeps
// linearly from minFreq to maxFreq over sweepSec seconds, then repeats.
func NewGenerator(width, height int, minFreq, maxFreq, sweepSec float64) *Generator {
	w := width / 8
	h := height / 8
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return &Generator{
		box:      rect.Rect{X: 0, Y: 0, W: w, H: h},
		dx:       1,
		dy:       1,
		color:    [3]byte{255, 80, 0},
		minFreq:  minFreq,
		maxFreq:  maxFreq,
		sweepSec: sweepSec,
	}
}

// FillVideo draws the current frame (advancing the box position) into
// ring's slot idx, returning idx as the pts.
func (g *Generator) FillVideo(ring *video.Ring, idx int64) int64 {
	plane := ring.GetBuf(idx)

	for y := 0; y < plane.Height; y++ {
		row := plane.Row(y)
		for i := range row {
			row[i] = 0
		}
	}

	roi, err := ring.GetROI(idx, g.box)
	if err == nil {
		for y := 0; y < roi.Height; y++ {
			row := roi.Row(y)
			for x := 0; x < roi.Width; x++ {
				px := row[x*3 : x*3+3]
				px[0], px[1], px[2] = g.color[0], g.color[1], g.color[2]
			}
		}
	}

	g.advance(plane.Width, plane.Height)
	return idx
}

func (g *Generator) advance(width, height int) {
	g.box.X += g.dx
	g.box.Y += g.dy
	if g.box.X <= 0 {
		g.box.X = 0
		g.dx = 1
	} else if g.box.X+g.box.W >= width {
		g.box.X = width - g.box.W
		g.dx = -1
	}
	if g.box.Y <= 0 {
		g.box.Y = 0
		g.dy = 1
	} else if g.box.Y+g.box.H >= height {
		g.box.Y = height - g.box.H
		g.dy = -1
	}
}

// FillAudio writes one chirp block into ring's slot idx, returning idx as
// the pts.
func (g *Generator) FillAudio(ring *audio.Ring, idx int64) int64 {
	buf := ring.GetBuf(idx)
	rate := float64(ring.Bitrate())
	channels := ring.Channels()
	blockSize := ring.BlockSize()

	sweep := g.sweepSec
	if sweep <= 0 {
		sweep = 1
	}

	for i := 0; i < blockSize; i++ {
		t := g.phase / rate
		frac := math.Mod(t, sweep) / sweep
		freq := g.minFreq + (g.maxFreq-g.minFreq)*frac
		sample := int16(0.4 * 32767 * math.Sin(2*math.Pi*freq*t))
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			buf[off] = byte(uint16(sample))
			buf[off+1] = byte(uint16(sample) >> 8)
		}
		g.phase++
	}
	return idx
}
