// Package filter implements the filter runtime from spec.md §4.4: a
// cooperative loop per process that watches one or more video/audio ring
// inputs, tracks a read cursor per stream, and delivers newly-written slots
// to callbacks in writer order while detecting two failure conditions: a
// reader that has fallen further behind the writer than its configured
// window (a window breach), and a writer that has lapped a reader before it
// consumed a slot (an overrun).
//
// Grounded on original_source/memcom/mc_filter.py.
package filter

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wheresjames/memcom-go/audio"
	"github.com/wheresjames/memcom-go/video"
)

// Callbacks is the set of hooks a filter implementation can provide. Embed
// BaseCallbacks to get no-op defaults and override only what you need,
// matching the capability-style interfaces mc_filter.py's subclasses use
// (most override one or two of the six methods, never all of them).
type Callbacks interface {
	OnInit(f *Filter) error
	OnIdle(f *Filter) (time.Duration, error)
	OnEnd(f *Filter)
	OnError(f *Filter, err error)
	OnVideo(f *Filter, ring *video.Ring, fi video.FrameInfo, buf video.Plane) error
	OnAudio(f *Filter, ring *audio.Ring, fi audio.FrameInfo, buf []byte) error
}

// BaseCallbacks implements Callbacks with no-op bodies, except OnError,
// which logs the error through the filter's logger. Embed it in a
// filter's own callback type so only the methods that matter need
// overriding.
type BaseCallbacks struct{}

func (BaseCallbacks) OnInit(*Filter) error { return nil }
func (BaseCallbacks) OnIdle(*Filter) (time.Duration, error) { return 0, nil }
func (BaseCallbacks) OnEnd(*Filter)           {}
func (BaseCallbacks) OnError(f *Filter, err error) {
	if f != nil {
		f.log.Error("filter error", "err", err)
	}
}
func (BaseCallbacks) OnVideo(*Filter, *video.Ring, video.FrameInfo, video.Plane) error {
	return nil
}
func (BaseCallbacks) OnAudio(*Filter, *audio.Ring, audio.FrameInfo, []byte) error {
	return nil
}

// videoInput tracks one video ring a filter reads from: ptr is the next
// slot to read, idxLast the last FrameInfo.Idx successfully consumed
// (-1 until the first slot), biasf/winf the bias/window already scaled to
// slot counts (spec.md §4.4's "biasf = round(bias*buffers), winf =
// round(win*buffers)").
type videoInput struct {
	ring  *video.Ring
	biasf int64
	winf  int64
	ptr   int64
	last  int64
}

// audioInput tracks one audio ring a filter reads from. See videoInput.
type audioInput struct {
	ring  *audio.Ring
	biasf int64
	winf  int64
	ptr   int64
	last  int64
}

// Filter is a single filter's runtime state: its inputs and the callbacks
// that receive delivered slots.
type Filter struct {
	cb  Callbacks
	log *log.Logger

	videoInputs []*videoInput
	audioInputs []*audioInput

	defaultIdle time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// round matches Python's round-half-to-even-ish behavior closely enough
// for slot-count scaling: spec.md §4.4 just says "round", and ties at
// exactly .5 are rare for realistic buffer counts.
func round(f float64) int64 { return int64(math.Round(f)) }

// New creates a filter runtime around cb. defaultIdle overrides the sleep
// duration RunLoop uses when OnIdle is unset or returns 0; pass 0 to get
// spec.md §4.4's own default instead (1 / max(fps) / 2, across whatever
// rings are attached by the time RunLoop sleeps). Callers driving the loop
// themselves (tests, or single-shot tools) can ignore it and call Step
// directly.
func New(cb Callbacks, defaultIdle time.Duration) *Filter {
	return &Filter{
		cb:          cb,
		log:         log.With("component", "filter"),
		defaultIdle: defaultIdle,
	}
}

// maxFps returns the highest Fps() across every attached ring, or 0 if none
// are attached yet.
func (f *Filter) maxFps() int {
	max := 0
	for _, in := range f.videoInputs {
		if fps := in.ring.Fps(); fps > max {
			max = fps
		}
	}
	for _, in := range f.audioInputs {
		if fps := in.ring.Fps(); fps > max {
			max = fps
		}
	}
	return max
}

// specIdle is spec.md §4.4's own idle default: "the loop sleeps for
// 1 / max(fps) / 2". Falls back to a small fixed sleep if no ring is
// attached to take a rate from.
func (f *Filter) specIdle() time.Duration {
	if fps := f.maxFps(); fps > 0 {
		return time.Duration(float64(time.Second) / float64(fps) / 2)
	}
	return 10 * time.Millisecond
}

// AddVideoInput registers a video ring to poll. bias is the reader's
// target offset from the writer's current index, as a fraction of the
// ring's buffer count in [-1, 1] (spec.md §4.4); negative values trail the
// writer, which is what every consumer except the clock source wants.
// window is the tolerance, as a fraction of the buffer count in (0, 1],
// before a reader that falls behind is considered to have breached its
// window.
func (f *Filter) AddVideoInput(ring *video.Ring, bias, window float64) {
	n := float64(ring.Buffers())
	in := &videoInput{
		ring:  ring,
		biasf: round(bias * n),
		winf:  round(window * n),
		last:  -1,
	}
	in.ptr = ring.CalcIdx(in.biasf)
	f.videoInputs = append(f.videoInputs, in)
}

// AddAudioInput registers an audio ring to poll. See AddVideoInput.
func (f *Filter) AddAudioInput(ring *audio.Ring, bias, window float64) {
	n := float64(ring.Buffers())
	in := &audioInput{
		ring:  ring,
		biasf: round(bias * n),
		winf:  round(window * n),
		last:  -1,
	}
	in.ptr = ring.CalcIdx(in.biasf)
	f.audioInputs = append(f.audioInputs, in)
}

// Start runs the filter's loop on a dedicated goroutine until Close is
// called or ctx is cancelled. OnInit runs synchronously before Start
// returns, so an initialization failure surfaces to the caller directly
// instead of only through OnError (spec.md §7: "Unrecoverable errors ...
// abort create and the filter does not start").
func (f *Filter) Start(ctx context.Context) error {
	if err := f.cb.OnInit(f); err != nil {
		return fmt.Errorf("filter: init: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)
		defer f.cb.OnEnd(f)
		f.RunLoop(ctx)
	}()
	return nil
}

// Close stops a filter started with Start and waits (best-effort) for its
// goroutine to exit after its current callback, per spec.md §5
// ("Cancellation").
func (f *Filter) Close() error {
	if f.cancel == nil {
		return nil
	}
	f.cancel()
	<-f.done
	return nil
}

// RunLoop blocks, calling Step repeatedly until ctx is done, sleeping
// between passes that made no progress. It is exported directly (not just
// reachable via Start) so a command-line tool that wants to own its own
// goroutine/signal handling can drive it inline (spec.md §9 makes this
// concurrency model explicit, where the original's runLoop was nominally
// async with no real suspension).
func (f *Filter) RunLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Step already reports every error to OnError as it occurs; do not
		// report its returned err again here, or a single window breach or
		// overrun surfaces as two OnError calls instead of one.
		progressed, _ := f.Step()
		if progressed {
			continue
		}

		sleep := f.defaultIdle
		if sleep <= 0 {
			sleep = f.specIdle()
		}
		if d, ierr := f.cb.OnIdle(f); ierr != nil {
			f.cb.OnError(f, fmt.Errorf("filter: on_idle: %w", ierr))
		} else if d > 0 {
			sleep = d
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// Step runs the "repeat while progress was made" pass from spec.md §4.4
// once to completion: it keeps cycling every registered input until a full
// round delivers nothing, then returns. progressed reports whether any
// slot was delivered across the whole call; err is the last non-nil error
// encountered (all errors are also reported to OnError as they occur, so
// callers that only care about idle/continue can ignore it).
func (f *Filter) Step() (progressed bool, err error) {
	for {
		round := false
		for _, in := range f.videoInputs {
			moved, derr := f.stepVideo(in)
			if derr != nil {
				err = derr
				f.cb.OnError(f, derr)
			}
			if moved {
				round = true
			}
		}
		for _, in := range f.audioInputs {
			moved, derr := f.stepAudio(in)
			if derr != nil {
				err = derr
				f.cb.OnError(f, derr)
			}
			if moved {
				round = true
			}
		}
		if !round {
			return progressed, err
		}
		progressed = true
	}
}

func (f *Filter) stepVideo(in *videoInput) (moved bool, err error) {
	n := int64(in.ring.Buffers())
	target := in.ring.CalcIdx(in.biasf)
	drift := in.ring.CalcDrift(target, in.ptr)

	switch {
	case drift <= -in.winf:
		in.ptr = (in.ptr + 1) % n
		return false, fmt.Errorf("video: window breach (OWIN) on %q: drift=%d window=%d", in.ring.Name(), drift, in.winf)

	case drift < 0:
		fi, ok := in.ring.GetFrameInfo(in.ptr)
		buf := in.ring.GetBuf(in.ptr)
		cur := in.ptr
		in.ptr = (in.ptr + 1) % n
		if !ok {
			// Benign: the producer hasn't stamped this slot yet.
			return false, nil
		}
		if fi.Idx <= in.last {
			return false, fmt.Errorf("video: overrun on %q at slot %d: idx %d <= last %d", in.ring.Name(), cur, fi.Idx, in.last)
		}
		in.last = fi.Idx
		if cerr := f.cb.OnVideo(f, in.ring, fi, buf); cerr != nil {
			return true, fmt.Errorf("video: callback: %w", cerr)
		}
		return true, nil

	default:
		return false, nil
	}
}

func (f *Filter) stepAudio(in *audioInput) (moved bool, err error) {
	n := int64(in.ring.Buffers())
	target := in.ring.CalcIdx(in.biasf)
	drift := in.ring.CalcDrift(target, in.ptr)

	switch {
	case drift <= -in.winf:
		in.ptr = (in.ptr + 1) % n
		return false, fmt.Errorf("audio: window breach (OWIN) on %q: drift=%d window=%d", in.ring.Name(), drift, in.winf)

	case drift < 0:
		fi, ok := in.ring.GetFrameInfo(in.ptr)
		buf := in.ring.GetBuf(in.ptr)
		cur := in.ptr
		in.ptr = (in.ptr + 1) % n
		if !ok {
			return false, nil
		}
		if fi.Idx <= in.last {
			return false, fmt.Errorf("audio: overrun on %q at slot %d: idx %d <= last %d", in.ring.Name(), cur, fi.Idx, in.last)
		}
		in.last = fi.Idx
		if cerr := f.cb.OnAudio(f, in.ring, fi, buf); cerr != nil {
			return true, fmt.Errorf("audio: callback: %w", cerr)
		}
		return true, nil

	default:
		return false, nil
	}
}
