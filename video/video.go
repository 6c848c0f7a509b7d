// Package video implements the video ring from spec.md §3.1 and §4: a fixed
// number of RGB24 frame slots mapped over a POSIX shared memory region, with
// a single writer cursor (idx) and any number of readers trailing it by a
// bias window.
//
// Layout and field semantics are grounded on
// original_source/memcom/mc_video.py; the mmap/region lifecycle (Create,
// Open, Close) follows pault.ag/go/go-diskring's Create/Open/Close shape.
package video

import (
	"fmt"

	"github.com/wheresjames/memcom-go/internal/shm"
	"github.com/wheresjames/memcom-go/rect"
)

// headerMagic identifies a video ring header.
const headerMagic = 0x1DDA5A7A2C4C8918

// slotMagic identifies a fully-written video slot header.
const slotMagic = 0x1E6BA49114CE2619

// Header field offsets, in the 48-byte (6 int64) ring header.
const (
	offMagic   = 0
	offBuffers = 8
	offIdx     = 16
	offWidth   = 24
	offHeight  = 32
	offFps     = 40
	headerSize = 48
)

// Slot header field offsets, in the 48-byte (6 int64) per-slot header that
// precedes each frame's pixel data.
const (
	slotOffMagic = 0
	slotOffPts   = 8
	slotOffIdx   = 16
	slotOffClk   = 24
	slotOffRds   = 32
	slotOffWts   = 40
	slotHeaderSz = 48
)

// Shape describes the dimensions of a video ring. It is only consulted when
// a ring is actually created; an attach to an existing ring always reads
// these back out of the header instead (spec.md §3.4).
type Shape struct {
	Buffers int
	Width   int
	Height  int
	Fps     int
}

// Ring is a live attachment to a video ring, either as the sole writer or as
// one of many readers.
type Ring struct {
	region *shm.Region
	idx    shm.IdxCell

	buffers int64
	width   int64
	height  int64
	fps     int64

	frameSize  int64
	packetSize int64
}

// Plane is a view over a rectangle of RGB24 pixels, three bytes per pixel,
// row-major. Stride is the number of bytes between the start of one row and
// the next in the backing slot buffer; for a sub-rectangle (see Ring.GetROI) it
// can be larger than Width*3, since the view shares memory with the full
// frame rather than copying it.
type Plane struct {
	Width, Height int
	Stride        int
	Pix           []byte
}

// Row returns the bytes for row y.
func (p Plane) Row(y int) []byte {
	off := y * p.Stride
	return p.Pix[off : off+p.Width*3]
}

// At returns the 3-byte RGB pixel at (x, y).
func (p Plane) At(x, y int) []byte {
	off := y*p.Stride + x*3
	return p.Pix[off : off+3]
}

// FrameInfo is the per-slot bookkeeping header: presentation timestamp,
// writer idx at the time of the write, wall clock stamp, and the two
// advisory counters (spec.md §9).
type FrameInfo struct {
	Pts, Idx, Clk, Rds, Wts int64
}

// Create attaches to, or creates, a named video ring per mode (spec.md §6).
// shape is only used if the ring must be created; otherwise the ring's
// actual dimensions are read back from its header.
func Create(name string, mode shm.Mode, shape Shape, cleanup bool) (*Ring, error) {
	valid := shape.Buffers > 0 && shape.Width > 0 && shape.Height > 0 && shape.Fps > 0

	var size int64
	if valid {
		frameSize := int64(shape.Width) * int64(shape.Height) * 3
		packetSize := slotHeaderSz + frameSize
		size = headerSize + int64(shape.Buffers)*packetSize
	}

	region, err := shm.Open(name, mode, size, cleanup)
	if err != nil {
		if !valid {
			return nil, fmt.Errorf("video: invalid parameters: buffers=%d width=%d height=%d fps=%d: %w",
				shape.Buffers, shape.Width, shape.Height, shape.Fps, err)
		}
		return nil, err
	}

	b := region.Bytes()
	if len(b) < headerSize {
		region.Close()
		return nil, fmt.Errorf("video: region %q too small for a header: %d bytes", name, len(b))
	}

	if !region.Existing() {
		shm.PutInt64(b, offBuffers, int64(shape.Buffers))
		shm.PutInt64(b, offIdx, 0)
		shm.PutInt64(b, offWidth, int64(shape.Width))
		shm.PutInt64(b, offHeight, int64(shape.Height))
		shm.PutInt64(b, offFps, int64(shape.Fps))
		// Magic goes last: any concurrent opener spinning on it sees a
		// fully-written header or nothing.
		shm.PutInt64(b, offMagic, headerMagic)
	}

	if got := shm.GetInt64(b, offMagic); got != headerMagic {
		region.Close()
		return nil, fmt.Errorf("video: bad header magic in %q: got %#x want %#x", name, got, headerMagic)
	}

	r := &Ring{
		region:  region,
		idx:     shm.NewIdxCell(b, offIdx),
		buffers: shm.GetInt64(b, offBuffers),
		width:   shm.GetInt64(b, offWidth),
		height:  shm.GetInt64(b, offHeight),
		fps:     shm.GetInt64(b, offFps),
	}
	r.frameSize = r.width * r.height * 3
	r.packetSize = slotHeaderSz + r.frameSize

	want := headerSize + r.buffers*r.packetSize
	if int64(len(b)) < want {
		region.Close()
		return nil, fmt.Errorf("video: region %q too small: have %d bytes, header wants %d", name, len(b), want)
	}

	return r, nil
}

// Close unmaps the ring.
func (r *Ring) Close() error { return r.region.Close() }

// Name returns the backing share's name.
func (r *Ring) Name() string { return r.region.Name() }

// Buffers, Width, Height and Fps return the ring's dimensions, as read from
// its header.
func (r *Ring) Buffers() int { return int(r.buffers) }
func (r *Ring) Width() int   { return int(r.width) }
func (r *Ring) Height() int  { return int(r.height) }
func (r *Ring) Fps() int     { return int(r.fps) }

// PtsInc is the presentation-timestamp increment of one video frame: always
// exactly 1, since video advances the writer idx one slot per frame
// (compare audio.Ring.PtsInc, which depends on sample rate and block size).
func (r *Ring) PtsInc() int64 { return 1 }

// GetIdx returns the writer's current slot index.
func (r *Ring) GetIdx() int64 { return r.idx.Load() }

// SetIdx sets the writer's current slot index directly, normalized mod
// buffers so GetIdx() always reports a value in [0, buffers). Most callers
// want AddIdx instead.
func (r *Ring) SetIdx(v int64) { r.idx.Store(mod(v, r.buffers)) }

// AddIdx advances the writer's slot index by delta (normally PtsInc(), but
// spec.md §8.5 exercises negative deltas too) and returns the new value,
// normalized mod buffers. There is exactly one writer per ring (spec.md
// §3.4), so this needs no compare-and-swap: a plain aligned 64-bit store is
// sufficient.
func (r *Ring) AddIdx(delta int64) int64 {
	next := mod(r.idx.Load()+delta, r.buffers)
	r.idx.Store(next)
	return next
}

// CalcIdx returns (idx+off) mod buffers: the absolute slot number offset
// steps away from the current writer position. off may be negative.
func (r *Ring) CalcIdx(off int64) int64 {
	return mod(r.GetIdx()+off, r.buffers)
}

// CalcDrift returns the signed distance from off to ref (spec.md §4.1):
// -(((off - ref) mod buffers)). It is always <= 0 by construction (spec.md
// §8): 0 means "off and ref name the same slot", and the magnitude grows
// the further behind ref is of off. Pass GetIdx() explicitly as ref for the
// "distance from the writer's current position" case; the ring itself has
// no notion of a default.
func (r *Ring) CalcDrift(off, ref int64) int64 {
	return -mod(off-ref, r.buffers)
}

func mod(a, n int64) int64 {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

func (r *Ring) slotOffset(n int64) int64 {
	return headerSize + mod(n, r.buffers)*r.packetSize
}

// GetFrameInfo returns the bookkeeping header for slot n. ok is false if the
// slot has never been written (its magic is unset), in which case info is
// the zero value.
func (r *Ring) GetFrameInfo(n int64) (info FrameInfo, ok bool) {
	b := r.region.Bytes()
	off := r.slotOffset(n)
	if shm.GetInt64(b, int(off)+slotOffMagic) != slotMagic {
		return FrameInfo{}, false
	}
	return FrameInfo{
		Pts: shm.GetInt64(b, int(off)+slotOffPts),
		Idx: shm.GetInt64(b, int(off)+slotOffIdx),
		Clk: shm.GetInt64(b, int(off)+slotOffClk),
		Rds: shm.GetInt64(b, int(off)+slotOffRds),
		Wts: shm.GetInt64(b, int(off)+slotOffWts),
	}, true
}

// SetFrameInfo writes the bookkeeping header for slot n. The magic is
// written last, so a concurrent GetFrameInfo never observes a partially
// updated slot as valid (spec.md §4.4).
func (r *Ring) SetFrameInfo(n int64, info FrameInfo) {
	b := r.region.Bytes()
	off := int(r.slotOffset(n))
	shm.PutInt64(b, off+slotOffPts, info.Pts)
	shm.PutInt64(b, off+slotOffIdx, info.Idx)
	shm.PutInt64(b, off+slotOffClk, info.Clk)
	shm.PutInt64(b, off+slotOffRds, info.Rds)
	shm.PutInt64(b, off+slotOffWts, info.Wts)
	shm.PutInt64(b, off+slotOffMagic, slotMagic)
}

// TouchRds bumps the advisory read counter for slot n. It is a plain,
// unsynchronized increment: concurrent readers may race and under-count,
// which is fine since rds/wts are diagnostics, never correctness-load
// bearing (spec.md §9).
func (r *Ring) TouchRds(n int64) {
	b := r.region.Bytes()
	off := int(r.slotOffset(n))
	shm.PutInt64(b, off+slotOffRds, shm.GetInt64(b, off+slotOffRds)+1)
}

// TouchWts bumps the advisory write counter for slot n. See TouchRds.
func (r *Ring) TouchWts(n int64) {
	b := r.region.Bytes()
	off := int(r.slotOffset(n))
	shm.PutInt64(b, off+slotOffWts, shm.GetInt64(b, off+slotOffWts)+1)
}

// GetBuf returns the full frame plane for slot n.
func (r *Ring) GetBuf(n int64) Plane {
	b := r.region.Bytes()
	off := int(r.slotOffset(n)) + slotHeaderSz
	return Plane{
		Width:  int(r.width),
		Height: int(r.height),
		Stride: int(r.width) * 3,
		Pix:    b[off : off+int(r.frameSize)],
	}
}

// GetROI returns a view over the sub-rectangle roi of slot n's frame. It
// shares memory with the full frame; writes through it land directly in the
// ring. roi must lie entirely within the frame.
func (r *Ring) GetROI(n int64, roi rect.Rect) (Plane, error) {
	if roi.X < 0 || roi.Y < 0 || roi.W <= 0 || roi.H <= 0 ||
		roi.X+roi.W > int(r.width) || roi.Y+roi.H > int(r.height) {
		return Plane{}, fmt.Errorf("video: roi %+v out of bounds for %dx%d frame", roi, r.width, r.height)
	}
	full := r.GetBuf(n)
	start := roi.Y*full.Stride + roi.X*3
	end := (roi.H-1)*full.Stride + roi.W*3 + start
	return Plane{
		Width:  roi.W,
		Height: roi.H,
		Stride: full.Stride,
		Pix:    full.Pix[start:end],
	}, nil
}
