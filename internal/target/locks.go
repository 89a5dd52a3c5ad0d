package target

import "sync"

// numLockStripes bounds how many buffer ranges can be mutated concurrently
// on one target before two unrelated buffers start sharing a lock.
const numLockStripes = 64

// bufferLocks stripes advisory locks across buffer offsets so Read/Write
// on two different buffers almost never contend, without allocating one
// mutex per live buffer.
type bufferLocks struct {
	stripes [numLockStripes]sync.Mutex
}

func newBufferLocks() *bufferLocks {
	return &bufferLocks{}
}

func (l *bufferLocks) forOffset(offset int64) *sync.Mutex {
	idx := uint64(offset) % uint64(len(l.stripes))
	return &l.stripes[idx]
}
