// Package clock implements the clock source from spec.md §4.5: the single
// writer process driving a video ring (and, usually, a matching audio
// ring) forward at wall-clock rate, publishing each new slot's idx only
// after its content and bookkeeping header are fully written.
//
// Grounded on original_source/memcom/mc_clock.py. Video is stamped at the
// writer's own current index; audio is stamped one slot ahead of its
// writer's current index, a deliberate asymmetry (spec.md §4.5
// "Ordering") that gives downstream consumers a soft phase lead on audio
// so they don't starve for samples on startup. This file preserves that
// asymmetry; it is not a bug.
package clock

import (
	"context"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wheresjames/memcom-go/audio"
	"github.com/wheresjames/memcom-go/video"
)

// VideoFillFunc writes slot idx's pixel content into ring and returns the
// pts to stamp it with (normally idx itself; see video.Ring.PtsInc).
type VideoFillFunc func(ring *video.Ring, idx int64) (pts int64)

// AudioFillFunc writes slot idx's PCM content into ring and returns the pts
// to stamp it with.
type AudioFillFunc func(ring *audio.Ring, idx int64) (pts int64)

// VideoOutput pairs a video ring with the function that fills each new
// slot and the real-time rate (frames per second) it advances at.
type VideoOutput struct {
	Ring *video.Ring
	Fill VideoFillFunc

	// Fps overrides ring.Fps() for pacing purposes; zero uses the ring's
	// own configured rate.
	Fps int

	ind int64
}

// AudioOutput pairs an audio ring with the function that fills each new
// slot and the real-time rate (slots per second) it advances at.
type AudioOutput struct {
	Ring *audio.Ring
	Fill AudioFillFunc

	// Fps overrides ring.Fps() for pacing purposes; zero uses the ring's
	// own configured rate.
	Fps int

	ind int64
}

// Clock drives one or more video/audio ring outputs forward at wall-clock
// rate, divided by Div.
//
// State mirrors mc_clock.py's: startTime is the monotonic instant the
// first Tick observed, each output's ind is the next logical frame/block number to
// stamp, and clk is the current simulated clock in seconds (startTime
// forward, scaled by Div).
type Clock struct {
	log *log.Logger

	video []*VideoOutput
	audio []*AudioOutput

	// Div is the wall-clock divider: 1 runs at real time, 4 runs at
	// quarter speed. New replaces zero or a negative value with 1; Tick
	// uses the field as it is.
	Div float64

	startTime time.Time
	started   bool
}

// New creates a clock with the given wall-clock divider (1 = real time).
func New(div float64) *Clock {
	if div <= 0 {
		div = 1
	}
	return &Clock{
		log: log.With("component", "clock"),
		Div: div,
	}
}

// AddVideo registers a video ring this clock writes to.
func (c *Clock) AddVideo(out VideoOutput) {
	o := out
	c.video = append(c.video, &o)
}

// AddAudio registers an audio ring this clock writes to.
func (c *Clock) AddAudio(out AudioOutput) {
	o := out
	c.audio = append(c.audio, &o)
}

// Run blocks, ticking at the pace OnIdle/Tick requests until ctx is done.
func (c *Clock) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		delay := c.Tick()
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// Tick implements spec.md §4.5's on_idle step: for every registered
// output whose deadline has passed, it fills and publishes exactly one
// slot, then returns the smallest delay (never negative) until the next
// output's deadline, the duration a caller should sleep before calling
// Tick again.
func (c *Clock) Tick() time.Duration {
	now := time.Now()
	if !c.started {
		c.startTime = now
		c.started = true
	}
	elapsed := now.Sub(c.startTime).Seconds()
	clk := elapsed / c.Div

	minDelay := time.Second // arbitrary upper bound; any real stream rewrites it below
	haveDelay := false

	for _, out := range c.video {
		fps := out.Fps
		if fps <= 0 {
			fps = out.Ring.Fps()
		}
		delay := c.step(fps, &out.ind, func(idx int64) {
			c.stampVideo(out, idx, clk)
		})
		if !haveDelay || delay < minDelay {
			minDelay = delay
			haveDelay = true
		}
	}

	for _, out := range c.audio {
		fps := out.Fps
		if fps <= 0 {
			fps = out.Ring.Fps()
		}
		delay := c.step(fps, &out.ind, func(idx int64) {
			c.stampAudio(out, idx, clk)
		})
		if !haveDelay || delay < minDelay {
			minDelay = delay
			haveDelay = true
		}
	}

	if minDelay < 0 {
		minDelay = 0
	}
	return minDelay
}

// step computes this stream's deadline from its rate and *ind, publishes a
// slot via publish if the deadline has passed, and returns the delay (may
// be negative, meaning the stream is lagging) until the next deadline.
func (c *Clock) step(fps int, ind *int64, publish func(idx int64)) time.Duration {
	if fps <= 0 {
		return time.Second
	}
	rate := float64(fps) / c.Div

	now := time.Now()
	elapsed := now.Sub(c.startTime).Seconds()
	deadline := float64(*ind) / rate
	delay := deadline - elapsed

	if delay <= 0 {
		publish(*ind)
		*ind++
		if delay < -1 {
			c.log.Warn("lagging", "behind_sec", -delay)
		}
		// Recompute the delay to the (now incremented) next deadline so
		// Tick's minimum reflects real future work, not the slot just
		// produced.
		deadline = float64(*ind) / rate
		delay = deadline - elapsed
	}
	return time.Duration(delay * float64(time.Second))
}

// stampVideo fills and publishes video slot idx at the writer's own
// current index, then advances the writer forward one slot (spec.md
// §4.5's "Ordering": video is stamped at the writer's current index).
// The clock's own stamp is pts=0 (spec.md §4.5 step 3, mc_clock.py); a
// non-nil Fill returning something else is the producer's own concern, not
// the clock's.
func (c *Clock) stampVideo(out *VideoOutput, idx int64, clk float64) {
	r := out.Ring
	slot := r.GetIdx()
	pts := int64(0)
	if out.Fill != nil {
		pts = out.Fill(r, slot)
	}
	r.SetFrameInfo(slot, video.FrameInfo{Pts: pts, Idx: idx, Clk: int64(math.Round(clk * 1000))})
	r.AddIdx(1)
}

// stampAudio fills and publishes audio slot idx one position ahead of the
// writer's current index, then advances the writer forward one slot
// (spec.md §4.5's "Ordering": audio gets a one-slot lead).
func (c *Clock) stampAudio(out *AudioOutput, idx int64, clk float64) {
	r := out.Ring
	slot := r.CalcIdx(1)
	pts := int64(0)
	if out.Fill != nil {
		pts = out.Fill(r, slot)
	}
	r.SetFrameInfo(slot, audio.FrameInfo{Pts: pts, Idx: idx, Clk: int64(math.Round(clk * 1000))})
	r.AddIdx(1)
}
