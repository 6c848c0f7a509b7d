// {{{ Copyright (c) Paul R. Tagliamonte <paultag@gmail.com> 2020-2021
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

package shm

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// Mode controls how Create attaches to (or creates) a named region, per the
// table in spec.md §6.
type Mode string

const (
	// ModeAlways attaches to the share if it exists, otherwise creates it.
	ModeAlways Mode = "always"
	// ModeExisting attaches only if the share already exists; it fails
	// otherwise.
	ModeExisting Mode = "existing"
	// ModeNew always creates a fresh share, unlinking any existing one
	// with the same name first.
	ModeNew Mode = "new"
)

// nameAlphabet is the 36-character alphabet (A-Z, 0-9) random share names
// are drawn from when the caller does not supply one.
const nameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomName returns a 32-character random name drawn from nameAlphabet,
// suitable for an anonymous share.
func RandomName() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand reading from the OS CSPRNG failing is not a
		// condition callers can sensibly recover from.
		panic(fmt.Sprintf("shm: could not generate random name: %s", err))
	}
	for i, b := range buf {
		buf[i] = nameAlphabet[int(b)%len(nameAlphabet)]
	}
	return string(buf)
}

// Dir is the POSIX shared-memory namespace directory. It is a var, not a
// const, so tests can point it at a scratch directory instead of the real
// /dev/shm.
var Dir = "/dev/shm"

// Path returns the backing file path for a share name.
func Path(name string) string {
	return filepath.Join(Dir, name)
}

// Region is a single process's local mapping of a named shared memory
// object. It owns that mapping exclusively; unlink authority is a separate
// capability (Unlink) so that multiple attachers don't race to remove the
// same name out from under each other (spec.md §9, "Shared region handles
// and ownership").
type Region struct {
	name     string
	mode     Mode
	existing bool
	cleanup  bool

	file *os.File
	data []byte
}

// Open attaches to, or creates, a named shared memory region according to
// mode. size is the desired size in bytes and is only used when the region
// is actually created (ModeNew, or ModeAlways against an absent share);
// when attaching to an existing share the size already on disk wins,
// matching spec.md §3.4: "readers compute [size] and MUST NOT trust any
// external size hint."
//
// If name is empty, a random name is generated (RandomName).
func Open(name string, mode Mode, size int64, cleanup bool) (*Region, error) {
	if name == "" {
		name = RandomName()
	}
	if size < 0 {
		return nil, fmt.Errorf("shm: invalid size: %d", size)
	}

	path := Path(name)
	r := &Region{name: name, mode: mode, cleanup: cleanup}

	if mode == ModeNew {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("shm: unlink existing share %q: %w", name, err)
		}
	}

	f, existing, err := openOrCreate(path, mode, size)
	if err != nil {
		return nil, err
	}
	r.file = f
	r.existing = existing

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: stat %q: %w", name, err)
	}
	mapSize := stat.Size()
	if !existing {
		mapSize = size
	}
	if mapSize <= 0 {
		f.Close()
		return nil, fmt.Errorf("shm: invalid region size: %d", mapSize)
	}

	data, err := mmap(f, mapSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap %q: %w", name, err)
	}
	r.data = data

	return r, nil
}

// openOrCreate implements the mode table from spec.md §6.
func openOrCreate(path string, mode Mode, size int64) (*os.File, bool, error) {
	switch mode {
	case ModeExisting:
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return nil, false, fmt.Errorf("shm: share does not exist: %s: %w", path, err)
		}
		return f, true, nil

	case ModeNew:
		f, err := createTruncated(path, size)
		if err != nil {
			return nil, false, err
		}
		return f, false, nil

	case ModeAlways, "":
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err == nil {
			return f, true, nil
		}
		if !os.IsNotExist(err) {
			return nil, false, fmt.Errorf("shm: open %q: %w", path, err)
		}
		f, err = createTruncated(path, size)
		if err != nil {
			return nil, false, err
		}
		return f, false, nil

	default:
		return nil, false, fmt.Errorf("shm: unknown mode: %q", mode)
	}
}

func createTruncated(path string, size int64) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("shm: create %q: %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("shm: truncate %q to %d: %w", path, size, err)
	}
	return f, nil
}

// Name returns the share's name.
func (r *Region) Name() string { return r.name }

// Mode returns the mode the region was opened with.
func (r *Region) Mode() Mode { return r.mode }

// Existing reports whether the region was already present when Open was
// called (as opposed to freshly created by this call).
func (r *Region) Existing() bool { return r.existing }

// Size returns the mapped size in bytes.
func (r *Region) Size() int { return len(r.data) }

// Bytes returns the whole mapped region. Callers slice it for headers and
// slots; Region itself has no opinion on wire layout.
func (r *Region) Bytes() []byte { return r.data }

// Close unmaps the region and closes the backing file descriptor. If the
// region was opened with cleanup=true, the share is also unlinked from the
// shared-memory namespace.
func (r *Region) Close() error {
	if r.data != nil {
		if err := munmap(r.data); err != nil {
			return fmt.Errorf("shm: munmap %q: %w", r.name, err)
		}
		r.data = nil
	}
	var closeErr error
	if r.file != nil {
		closeErr = r.file.Close()
		r.file = nil
	}
	if r.cleanup {
		if err := r.Unlink(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}

// Unlink removes the share from the shared-memory namespace. It is a
// distinct capability from Close/cleanup precisely so that a process that
// merely attached to a share doesn't accidentally race another attacher to
// remove it (spec.md §9).
func (r *Region) Unlink() error {
	if err := os.Remove(Path(r.name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("shm: unlink %q: %w", r.name, err)
	}
	return nil
}

// Unlink removes a named share without needing an open Region, for cleaning
// up orphaned shares left behind by a crashed creator (spec.md §6,
// "Cleanup").
func Unlink(name string) error {
	if err := os.Remove(Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("shm: unlink %q: %w", name, err)
	}
	return nil
}
