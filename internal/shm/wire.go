package shm

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// GetInt64 reads a little-endian int64 out of b at off. The wire format
// (spec.md §3) is fixed little-endian regardless of host byte order, so
// this always goes through encoding/binary rather than a native unsafe
// cast (unlike diskring's uintptr tricks, which only ever need to agree
// with themselves on one host).
func GetInt64(b []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(b[off : off+8]))
}

// PutInt64 writes v as a little-endian int64 into b at off.
func PutInt64(b []byte, off int, v int64) {
	binary.LittleEndian.PutUint64(b[off:off+8], uint64(v))
}

// GetInt32 reads a little-endian int32 out of b at off. The message ring's
// per-record header (spec.md §3.3) is two 32-bit fields, narrower than the
// 64-bit fields the video/audio ring headers use.
func GetInt32(b []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(b[off : off+4]))
}

// PutInt32 writes v as a little-endian int32 into b at off.
func PutInt32(b []byte, off int, v int32) {
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(v))
}

// IdxCell is an atomic view over a ring's idx field. It is only valid for
// the header-level idx (always at a fixed, 8-byte-aligned offset), per
// spec.md §4.1's requirement that add_idx "MUST at minimum use aligned
// 64-bit writes". Per-slot advisory counters (rds/wts) are not promoted to
// atomics; see SPEC_FULL.md's DOMAIN STACK section for why.
type IdxCell struct {
	p *int64
}

// NewIdxCell returns an IdxCell backed by the int64 at b[off:off+8]. The
// caller must only ever use offsets that are multiples of 8 within an
// mmap'd (hence page-aligned) region.
func NewIdxCell(b []byte, off int) IdxCell {
	return IdxCell{p: (*int64)(unsafe.Pointer(&b[off]))}
}

// Load returns the current value.
func (c IdxCell) Load() int64 { return atomic.LoadInt64(c.p) }

// Store sets the value.
func (c IdxCell) Store(v int64) { atomic.StoreInt64(c.p, v) }

// Add adds delta and returns the new value.
func (c IdxCell) Add(delta int64) int64 { return atomic.AddInt64(c.p, delta) }
