// Package message implements the variable-length message ring from
// spec.md §3.3: a single-producer/single-consumer text queue backed by a
// plain byte buffer, with no ring-level header at all (unlike the video
// and audio rings, there is no shape to agree on up front beyond the
// region's own size, which every attacher discovers from the mapped
// region itself, internal/shm.Region.Size via stat on attach, rather than
// from a stored field). Each record is self-delimiting: a 4-byte magic plus
// a 4-byte length, so a reader can tell "no message yet" (length 0), "the
// writer wrapped, restart at offset 0" (length -1), and "corrupt" (bad
// magic, or a length too small to hold its own header) apart without any
// shared read/write cursor, relying entirely on the single-writer/
// single-reader discipline spec.md §3.4 calls out.
//
// Grounded on original_source/memcom/mc_message.py.
package message

import (
	"fmt"

	"github.com/wheresjames/memcom-go/internal/shm"
)

// recordMagic identifies a valid record header. Fixed by spec.md §3.3; any
// implementation claiming wire compatibility MUST use this verbatim.
const recordMagic = 0x148219F8

// recordHeaderSize is the 4-byte magic plus the 4-byte length field that
// precedes every record's payload, per spec.md §3.3.
const recordHeaderSize = 8

// wrapMarker is the sentinel length value meaning "the writer wrapped
// here; the reader must reset to offset 0".
const wrapMarker = -1

// noRecord is the sentinel length value meaning "nothing written here yet".
const noRecord = 0

// defaultCapacity is the region size Create uses when capacity <= 0
// (spec.md §4.2).
const defaultCapacity = 64 * 1024

// Ring is a live attachment to a message ring. Exactly one process may call
// Send and exactly one may call Read against a given ring (spec.md §3.4).
// Both cursors are process-local Go state, never stored in
// the shared region: the wire format in spec.md §3.3 has nowhere to put
// them.
type Ring struct {
	region *shm.Region
	size   int64

	write int64
	read  int64
}

// Create attaches to, or creates, a named message ring per mode (spec.md
// §6). capacity is the size in bytes of the region and is only used when
// the ring must be created; it defaults to 64 KiB if <= 0.
func Create(name string, mode shm.Mode, capacity int, cleanup bool) (*Ring, error) {
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	region, err := shm.Open(name, mode, int64(capacity), cleanup)
	if err != nil {
		return nil, err
	}

	b := region.Bytes()
	if len(b) < recordHeaderSize {
		region.Close()
		return nil, fmt.Errorf("message: region %q too small for a record header: %d bytes", name, len(b))
	}

	if !region.Existing() {
		// A fresh ring starts with a sentinel at offset 0: nothing has
		// been sent yet.
		putRecordHeader(b, 0, noRecord)
	}

	return &Ring{
		region: region,
		size:   int64(len(b)),
	}, nil
}

// Close unmaps the ring.
func (r *Ring) Close() error { return r.region.Close() }

// Name returns the backing share's name.
func (r *Ring) Name() string { return r.region.Name() }

// Capacity returns the size in bytes of the region.
func (r *Ring) Capacity() int { return int(r.size) }

func putRecordHeader(b []byte, off int64, length int32) {
	shm.PutInt32(b, int(off), recordMagic)
	shm.PutInt32(b, int(off)+4, length)
}

// Send appends data as one record (spec.md §4.2). It rejects an empty
// message and any message whose framed size would not leave room for the
// wrap marker, i.e. whose payload is not strictly less than
// Capacity()/2 - 8 bytes (spec.md §6).
func (r *Ring) Send(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("message: refusing to send an empty message")
	}
	maxPayload := r.size/2 - recordHeaderSize
	if int64(len(data)) >= maxPayload {
		return fmt.Errorf("message: payload of %d bytes does not fit a %d byte ring (max %d)",
			len(data), r.size, maxPayload-1)
	}

	b := r.region.Bytes()
	framed := int64(recordHeaderSize + len(data))

	if r.write+framed+recordHeaderSize > r.size {
		// Not enough room before the end of the region for this record
		// plus the sentinel that must follow it: mark the wrap point and
		// restart at offset 0.
		putRecordHeader(b, r.write, wrapMarker)
		r.write = 0
	}

	// Payload first, then the sentinel that terminates the written
	// region, and only then this record's own header: a reader must never
	// be able to race past a published record into undefined memory.
	copy(b[r.write+recordHeaderSize:], data)
	putRecordHeader(b, r.write+framed, noRecord)
	putRecordHeader(b, r.write, int32(framed))

	r.write += framed
	return nil
}

// Read returns the next message, if any (spec.md §4.2). ok is false with a
// nil error when the reader has caught up to the writer (no message
// available yet); callers should poll and retry rather than treat that as
// an error. A non-nil error means the ring's record stream is corrupt at
// the reader's current position (bad magic, or an invalid length) and the
// read cursor has been reset to 0.
func (r *Ring) Read() (msg string, ok bool, err error) {
	b := r.region.Bytes()
	for {
		if r.read+recordHeaderSize >= r.size {
			r.read = 0
		}

		magic := shm.GetInt32(b, int(r.read))
		length := shm.GetInt32(b, int(r.read)+4)

		if magic != recordMagic {
			bad := r.read
			r.read = 0
			return "", false, fmt.Errorf("message: corrupt record header at offset %d: bad magic %#x", bad, uint32(magic))
		}

		switch {
		case length == noRecord:
			return "", false, nil
		case length == wrapMarker:
			r.read = 0
			continue
		case length <= recordHeaderSize || r.read+int64(length) > r.size:
			bad, badLen := r.read, length
			r.read = 0
			return "", false, fmt.Errorf("message: invalid record length %d at offset %d", badLen, bad)
		default:
			start := r.read + recordHeaderSize
			end := r.read + int64(length)
			payload := make([]byte, end-start)
			copy(payload, b[start:end])
			r.read = end
			return string(payload), true, nil
		}
	}
}
