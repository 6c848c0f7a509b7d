// Package audio implements the audio ring from spec.md §3.2 and §4: fixed
// PCM sample blocks mapped over a POSIX shared memory region, laid out the
// same way as the video ring but carrying channel/rate/sample-format fields
// instead of width/height, and with its own stamp-index convention (writer
// idx + 1, not idx; see clock.AudioOutput and DESIGN.md's clock
// section).
//
// Grounded on original_source/memcom/mc_audio.py.
package audio

import (
	"fmt"

	"github.com/wheresjames/memcom-go/internal/shm"
)

// headerMagic identifies an audio ring header. Fixed by spec.md §3.2; any
// implementation claiming wire compatibility MUST use this verbatim.
const headerMagic = 0x1D13E088FF530CBB

// slotMagic identifies a fully-written audio slot header.
const slotMagic = 0x16881400350AF97E

// Header field offsets, in the 64-byte (8 int64) ring header (spec.md
// §3.2). [7] is reserved and always zero.
const (
	offMagic   = 0
	offBuffers = 8
	offIdx     = 16
	offChannels = 24
	offBps     = 32
	offBitrate = 40
	offFps     = 48
	offReserved = 56
	headerSize = 64
)

// Slot header field offsets: identical shape to the video ring's.
const (
	slotOffMagic = 0
	slotOffPts   = 8
	slotOffIdx   = 16
	slotOffClk   = 24
	slotOffRds   = 32
	slotOffWts   = 40
	slotHeaderSz = 48
)

// Shape describes the format of an audio ring. Only consulted at creation;
// an attach to an existing ring reads these back out of the header.
//
// Field names and units follow spec.md §3.2 literally: Bps is bits per
// sample (8 or 16, not bytes), and Bitrate is samples per second per
// channel (what most audio APIs call the sample rate; spec.md's own
// terminology, kept here so the wire layout and the field names agree).
// The number of samples per channel in one slot (what mc_audio.py calls
// the block size) is derived, not stored: Bitrate/Fps.
type Shape struct {
	Buffers  int
	Channels int
	Bps      int // bits per sample: 8 or 16
	Bitrate  int // samples per second per channel
	Fps      int // slots per second
}

// Ring is a live attachment to an audio ring.
type Ring struct {
	region *shm.Region
	idx    shm.IdxCell

	buffers  int64
	channels int64
	bps      int64
	bitrate  int64
	fps      int64

	blockSize  int64 // samples per channel per slot: bitrate/fps
	frameSize  int64
	packetSize int64
}

// FrameInfo is the per-slot bookkeeping header, identical in shape to the
// video ring's.
type FrameInfo struct {
	Pts, Idx, Clk, Rds, Wts int64
}

// Create attaches to, or creates, a named audio ring per mode (spec.md §6).
func Create(name string, mode shm.Mode, shape Shape, cleanup bool) (*Ring, error) {
	valid := shape.Buffers > 0 && shape.Channels > 0 && shape.Bitrate > 0 && shape.Fps > 0 &&
		(shape.Bps == 8 || shape.Bps == 16) && shape.Bitrate%shape.Fps == 0

	var size int64
	if valid {
		blockSize := int64(shape.Bitrate / shape.Fps)
		frameSize := int64(shape.Channels) * (int64(shape.Bps) / 8) * blockSize
		packetSize := slotHeaderSz + frameSize
		size = headerSize + int64(shape.Buffers)*packetSize
	}

	region, err := shm.Open(name, mode, size, cleanup)
	if err != nil {
		if !valid {
			return nil, fmt.Errorf("audio: invalid parameters: buffers=%d channels=%d bps=%d bitrate=%d fps=%d: %w",
				shape.Buffers, shape.Channels, shape.Bps, shape.Bitrate, shape.Fps, err)
		}
		return nil, err
	}

	b := region.Bytes()
	if len(b) < headerSize {
		region.Close()
		return nil, fmt.Errorf("audio: region %q too small for a header: %d bytes", name, len(b))
	}

	if !region.Existing() {
		shm.PutInt64(b, offBuffers, int64(shape.Buffers))
		shm.PutInt64(b, offIdx, 0)
		shm.PutInt64(b, offChannels, int64(shape.Channels))
		shm.PutInt64(b, offBps, int64(shape.Bps))
		shm.PutInt64(b, offBitrate, int64(shape.Bitrate))
		shm.PutInt64(b, offFps, int64(shape.Fps))
		shm.PutInt64(b, offReserved, 0)
		// Magic goes last: any concurrent opener spinning on it sees a
		// fully-written header or nothing.
		shm.PutInt64(b, offMagic, headerMagic)
	}

	if got := shm.GetInt64(b, offMagic); got != headerMagic {
		region.Close()
		return nil, fmt.Errorf("audio: bad header magic in %q: got %#x want %#x", name, got, headerMagic)
	}

	r := &Ring{
		region:   region,
		idx:      shm.NewIdxCell(b, offIdx),
		buffers:  shm.GetInt64(b, offBuffers),
		channels: shm.GetInt64(b, offChannels),
		bps:      shm.GetInt64(b, offBps),
		bitrate:  shm.GetInt64(b, offBitrate),
		fps:      shm.GetInt64(b, offFps),
	}
	if r.fps == 0 {
		region.Close()
		return nil, fmt.Errorf("audio: ring %q has zero fps in its header", name)
	}
	r.blockSize = r.bitrate / r.fps
	r.frameSize = r.channels * (r.bps / 8) * r.blockSize
	r.packetSize = slotHeaderSz + r.frameSize

	want := headerSize + r.buffers*r.packetSize
	if int64(len(b)) < want {
		region.Close()
		return nil, fmt.Errorf("audio: region %q too small: have %d bytes, header wants %d", name, len(b), want)
	}

	return r, nil
}

// Close unmaps the ring.
func (r *Ring) Close() error { return r.region.Close() }

// Name returns the backing share's name.
func (r *Ring) Name() string { return r.region.Name() }

func (r *Ring) Buffers() int  { return int(r.buffers) }
func (r *Ring) Channels() int { return int(r.channels) }
func (r *Ring) Bps() int      { return int(r.bps) }
func (r *Ring) Bitrate() int  { return int(r.bitrate) }
func (r *Ring) Fps() int      { return int(r.fps) }

// BlockSize returns the number of samples per channel carried in one slot:
// Bitrate()/Fps(), per spec.md §3.2's slot-size formula.
func (r *Ring) BlockSize() int { return int(r.blockSize) }

// PtsInc is the presentation-timestamp increment of one audio block: the
// number of samples (per channel) it carries (spec.md §4.1).
func (r *Ring) PtsInc() int64 { return r.blockSize }

func (r *Ring) GetIdx() int64  { return r.idx.Load() }
func (r *Ring) SetIdx(v int64) { r.idx.Store(mod(v, r.buffers)) }

// AddIdx advances the writer's slot index by delta (positive or negative;
// spec.md §9 leaves the direction unconstrained for the ring itself, only
// the clock source always advances forward) and returns the new value,
// normalized mod buffers so GetIdx() always reports a value in [0,
// buffers). There is exactly one writer per ring (spec.md §3.4), so this
// needs no compare-and-swap: a plain aligned 64-bit store is sufficient.
func (r *Ring) AddIdx(delta int64) int64 {
	next := mod(r.idx.Load()+delta, r.buffers)
	r.idx.Store(next)
	return next
}

// CalcIdx returns (idx+off) mod buffers.
func (r *Ring) CalcIdx(off int64) int64 {
	return mod(r.GetIdx()+off, r.buffers)
}

// CalcDrift returns the signed distance from off to ref (spec.md §4.1):
// -(((off - ref) mod buffers)). It is always <= 0 by construction (spec.md
// §8): 0 means "off and ref name the same slot", and the magnitude grows
// the further behind ref is of off. If ref is not supplied by the caller,
// pass GetIdx() explicitly (the ring itself has no notion of a default).
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

// GetFrameInfo returns the bookkeeping header for slot n.
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

// SetFrameInfo writes the bookkeeping header for slot n, magic last.
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

// TouchRds and TouchWts bump the advisory counters; see video.Ring's.
func (r *Ring) TouchRds(n int64) {
	b := r.region.Bytes()
	off := int(r.slotOffset(n))
	shm.PutInt64(b, off+slotOffRds, shm.GetInt64(b, off+slotOffRds)+1)
}

func (r *Ring) TouchWts(n int64) {
	b := r.region.Bytes()
	off := int(r.slotOffset(n))
	shm.PutInt64(b, off+slotOffWts, shm.GetInt64(b, off+slotOffWts)+1)
}

// GetBuf returns the raw PCM bytes for slot n: channels interleaved
// sample-by-sample ([l,r,l,r,…] for stereo), BlockSize() samples per
// channel, Bps()/8 bytes per sample, in little-endian signed integer
// encoding. spec.md §9 notes the source's ambiguity between an interleaved
// single row and one row per channel; this module picks interleaved
// single-row for all channel counts (recommended by spec.md §9 for <= 2
// channels, and generalized here rather than branching the wire format on
// channel count).
func (r *Ring) GetBuf(n int64) []byte {
	b := r.region.Bytes()
	off := int(r.slotOffset(n)) + slotHeaderSz
	return b[off : off+int(r.frameSize)]
}

// MixInto adds the 16-bit little-endian PCM samples in src onto dst in
// place, clamping to the int16 range instead of wrapping on overflow. Both
// slices must have the same length and represent the same channel count and
// block size. This mirrors mc_audio.py's mixAudio, which mixes a filter's
// output into a downstream ring rather than overwriting it, so that
// multiple audio sources feeding the same ring combine instead of stomping
// on each other.
func MixInto(dst, src []byte) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	n -= n % 2
	for i := 0; i < n; i += 2 {
		a := int16(uint16(dst[i]) | uint16(dst[i+1])<<8)
		b := int16(uint16(src[i]) | uint16(src[i+1])<<8)
		sum := int32(a) + int32(b)
		switch {
		case sum > 32767:
			sum = 32767
		case sum < -32768:
			sum = -32768
		}
		dst[i] = byte(uint16(sum))
		dst[i+1] = byte(uint16(sum) >> 8)
	}
}
