package target

import (
	"io"
	"os"
	"sync"

	"github.com/dreamware/hermes/internal/herrors"
)

// backend is the storage medium underneath a Target's slab allocator: RAM
// keeps slabs as byte slices, a file backend writes/reads at byte offsets.
// Offsets are assigned by Target's bump allocator and never overlap, so a
// backend never needs to know about slab size-classes itself.
type backend interface {
	// carve materializes the storage for a newly (re)carved slab so that
	// reads against it before any write return zero bytes.
	carve(offset, size int64) error
	writeAt(offset, offInBuffer int64, data []byte) error
	readAt(offset, offInBuffer int64, out []byte) error
	// release lets the backend reclaim resources for a freed slab. It is
	// advisory: the slab may be handed back out at the same offset later.
	release(offset int64)
	flush() error
	close() error
}

// ramBackend stores each live slab as its own zero-filled byte slice in a
// map keyed by offset, so capacity is only ever materialized for slabs
// that are actually carved.
type ramBackend struct {
	mu    sync.RWMutex
	slabs map[int64][]byte
}

func newRAMBackend() *ramBackend {
	return &ramBackend{slabs: make(map[int64][]byte)}
}

func (b *ramBackend) carve(offset, size int64) error {
	b.mu.Lock()
	b.slabs[offset] = make([]byte, size)
	b.mu.Unlock()
	return nil
}

func (b *ramBackend) writeAt(offset, offInBuffer int64, data []byte) error {
	b.mu.RLock()
	slab, ok := b.slabs[offset]
	b.mu.RUnlock()
	if !ok {
		return herrors.New(herrors.Io, "target: write to uncarved slab")
	}
	copy(slab[offInBuffer:], data)
	return nil
}

func (b *ramBackend) readAt(offset, offInBuffer int64, out []byte) error {
	b.mu.RLock()
	slab, ok := b.slabs[offset]
	b.mu.RUnlock()
	if !ok {
		return herrors.New(herrors.Io, "target: read from uncarved slab")
	}
	copy(out, slab[offInBuffer:])
	return nil
}

func (b *ramBackend) release(offset int64) {
	b.mu.Lock()
	delete(b.slabs, offset)
	b.mu.Unlock()
}

func (b *ramBackend) flush() error { return nil }
func (b *ramBackend) close() error { return nil }

// fileBackend addresses slabs as byte ranges of a single *os.File, relying
// on sparse-file semantics so a range never written reads back as zero;
// carve zeroes a range that still holds an earlier slab's data.
type fileBackend struct {
	f *os.File
}

func newFileBackend(path string) (*fileBackend, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, herrors.Wrap(herrors.Io, "target: opening backing file", err)
	}
	return &fileBackend{f: f}, nil
}

func (b *fileBackend) carve(offset, size int64) error {
	info, err := b.f.Stat()
	if err != nil {
		return herrors.Wrap(herrors.Io, "target: stat of backing file failed", err)
	}
	if offset >= info.Size() {
		return nil
	}
	if _, err := b.f.WriteAt(make([]byte, size), offset); err != nil {
		return herrors.Wrap(herrors.Io, "target: zeroing a reused slab failed", err)
	}
	return nil
}

func (b *fileBackend) writeAt(offset, offInBuffer int64, data []byte) error {
	_, err := b.f.WriteAt(data, offset+offInBuffer)
	return err
}

// readAt zero-fills any portion of out that falls past the file's current
// end, since an unwritten slab range (never extended by a prior WriteAt)
// reads back as zero just like the RAM backend's freshly-carved slices.
func (b *fileBackend) readAt(offset, offInBuffer int64, out []byte) error {
	n, err := b.f.ReadAt(out, offset+offInBuffer)
	if err == io.EOF && n < len(out) {
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		return nil
	}
	return err
}

func (b *fileBackend) release(offset int64) {}

func (b *fileBackend) flush() error { return b.f.Sync() }
func (b *fileBackend) close() error { return b.f.Close() }
