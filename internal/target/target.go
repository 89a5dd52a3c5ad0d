package target

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/ids"
)

// DeviceKind names the class of physical device a Target fronts. Only
// DeviceRAM is held entirely in process memory; every other kind is
// file-backed (spec.md §3 lists these as the valid tiers).
type DeviceKind int

const (
	DeviceRAM DeviceKind = iota
	DeviceNVMe
	DeviceSSD
	DeviceHDD
	DevicePFS
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceRAM:
		return "ram"
	case DeviceNVMe:
		return "nvme"
	case DeviceSSD:
		return "ssd"
	case DeviceHDD:
		return "hdd"
	case DevicePFS:
		return "pfs"
	default:
		return fmt.Sprintf("DeviceKind(%d)", int(k))
	}
}

// ParseDeviceKind parses a config.TargetConfig.Kind string into a
// DeviceKind, rejecting anything that isn't one of the five tiers spec.md
// §3 names.
func ParseDeviceKind(s string) (DeviceKind, error) {
	switch s {
	case "ram":
		return DeviceRAM, nil
	case "nvme":
		return DeviceNVMe, nil
	case "ssd":
		return DeviceSSD, nil
	case "hdd":
		return DeviceHDD, nil
	case "pfs":
		return DevicePFS, nil
	default:
		return 0, herrors.New(herrors.InvalidArgument, fmt.Sprintf("target: unrecognized device kind %q", s))
	}
}

// BufferInfo is a reservation on a Target: Size contiguous bytes starting
// at OffsetInTarget, carved from the slab identified by SlabIndex. It is
// owned by exactly one blob's buffer list at a time (spec.md §3) and
// travels over both the control and bulk RPC planes, so every field is
// exported and wire-stable.
type BufferInfo struct {
	TargetID       ids.TargetID
	SlabIndex      int
	OffsetInTarget int64
	Size           int64
}

// Stats is a point-in-time snapshot of a Target's capacity, performance,
// and placement score, used by the DPE to choose a schema and by the
// control plane to answer PollTarget (spec.md §3, §4.3).
type Stats struct {
	ID            ids.TargetID
	Capacity      int64
	Remaining     int64
	BandwidthMBps float64
	LatencyUs     float64
	SlabSizes     []int64
	Score         float64
}

// scoreOf computes a target's saturating placement score from its
// bandwidth and latency: higher bandwidth and lower latency both push the
// score toward 1. Grounded on spec.md §4.3's requirement that Score order
// targets the same way DPE.sortByScoreDesc already assumes.
func scoreOf(bandwidthMBps, latencyUs float64) float64 {
	if bandwidthMBps <= 0 {
		return 0
	}
	if latencyUs < 0 {
		latencyUs = 0
	}
	return bandwidthMBps / (bandwidthMBps + latencyUs)
}

// slabSlot is one carved (or free) slab: its address and a stable index
// within its size class, preserved across Free/Reserve reuse.
type slabSlot struct {
	offset int64
	index  int
}

// slabClass is the free list for one slab size, guarded by its own lock so
// Free never contends with a different size class (spec.md §4.1).
type slabClass struct {
	size      int64
	mu        sync.Mutex
	free      []slabSlot
	nextIndex int
}

// Target is a single storage device: a fixed byte capacity carved into one
// or more slab size-classes, backed by RAM or a file. All exported fields
// besides ID are read-only after construction except Remaining, which is
// updated atomically on every Reserve/Free.
type Target struct {
	ID            ids.TargetID
	Kind          DeviceKind
	Capacity      int64
	BandwidthMBps float64
	LatencyUs     float64
	SlabSizes     []int64
	Score         float64

	// Remaining is the live capacity counter: Capacity minus the sum of
	// every currently-reserved buffer's Size. Updated via CAS retry so
	// concurrent Reserve calls never over-commit (spec.md §4.1).
	Remaining atomic.Int64

	backend backend

	allocMu    sync.Mutex // guards nextOffset, the arena bump pointer
	nextOffset int64

	classes map[int64]*slabClass

	locks *bufferLocks
}

func newTarget(id ids.TargetID, kind DeviceKind, capacity int64, bandwidthMBps, latencyUs float64, slabSizes []int64, be backend) (*Target, error) {
	if capacity <= 0 {
		return nil, herrors.New(herrors.InvalidArgument, "target: capacity must be positive")
	}
	if len(slabSizes) == 0 {
		return nil, herrors.New(herrors.InvalidArgument, "target: at least one slab size is required")
	}
	sizes := append([]int64(nil), slabSizes...)
	slices.Sort(sizes)
	classes := make(map[int64]*slabClass, len(sizes))
	for _, size := range sizes {
		if size <= 0 {
			return nil, herrors.New(herrors.InvalidArgument, "target: slab sizes must be positive")
		}
		if _, ok := classes[size]; ok {
			continue
		}
		classes[size] = &slabClass{size: size}
	}

	t := &Target{
		ID:            id,
		Kind:          kind,
		Capacity:      capacity,
		BandwidthMBps: bandwidthMBps,
		LatencyUs:     latencyUs,
		SlabSizes:     sizes,
		Score:         scoreOf(bandwidthMBps, latencyUs),
		backend:       be,
		classes:       classes,
		locks:         newBufferLocks(),
	}
	t.Remaining.Store(capacity)
	return t, nil
}

// NewRAMTarget constructs an in-memory Target. Its backing store is a map
// of lazily-materialized byte slices, one per carved slab, so capacity
// never requires a giant up-front allocation (spec.md §3's "ram" tier).
func NewRAMTarget(id ids.TargetID, capacity int64, bandwidthMBps, latencyUs float64, slabSizes []int64) (*Target, error) {
	return newTarget(id, DeviceRAM, capacity, bandwidthMBps, latencyUs, slabSizes, newRAMBackend())
}

// NewFileTarget constructs a file-backed Target of the given non-RAM kind.
// The file is created (or truncated) at path; slabs are addressed by
// plain byte offset within it via WriteAt/ReadAt, so unwritten regions
// read back as zero like the RAM backend (spec.md §3's "nvme"/"ssd"/
// "hdd"/"pfs" tiers).
func NewFileTarget(id ids.TargetID, path string, kind DeviceKind, capacity int64, bandwidthMBps, latencyUs float64, slabSizes []int64) (*Target, error) {
	if kind == DeviceRAM {
		return nil, herrors.New(herrors.InvalidArgument, "target: NewFileTarget does not accept DeviceRAM")
	}
	be, err := newFileBackend(path)
	if err != nil {
		return nil, err
	}
	t, err := newTarget(id, kind, capacity, bandwidthMBps, latencyUs, slabSizes, be)
	if err != nil {
		_ = be.close()
		return nil, err
	}
	return t, nil
}

// sortedSlabSizes returns the target's slab sizes in ascending order. The
// slice is already sorted and never mutated after construction, so callers
// get the backing array directly.
func (t *Target) sortedSlabSizes() []int64 {
	return t.SlabSizes
}

func (t *Target) classFor(size int64) *slabClass {
	return t.classes[size]
}

// tryReserveCapacity atomically reserves size bytes of Remaining via a CAS
// retry loop, reporting false without mutating state if not enough
// capacity remains (spec.md §4.1).
func (t *Target) tryReserveCapacity(size int64) bool {
	for {
		cur := t.Remaining.Load()
		if cur < size {
			return false
		}
		if t.Remaining.CompareAndSwap(cur, cur-size) {
			return true
		}
	}
}

// takeSlot returns a slab slot of the given size: a freed one if the
// class's free list has one, otherwise a freshly bump-allocated one.
// Capacity must already have been reserved by the caller.
func (t *Target) takeSlot(size int64) slabSlot {
	c := t.classFor(size)
	c.mu.Lock()
	if n := len(c.free); n > 0 {
		slot := c.free[n-1]
		c.free = c.free[:n-1]
		c.mu.Unlock()
		return slot
	}
	idx := c.nextIndex
	c.nextIndex++
	c.mu.Unlock()

	t.allocMu.Lock()
	off := t.nextOffset
	t.nextOffset += size
	t.allocMu.Unlock()
	return slabSlot{offset: off, index: idx}
}

// allocClass reserves capacity and carves (or reuses) one slab of the
// given size, reporting false if capacity isn't available.
func (t *Target) allocClass(size int64) (BufferInfo, bool) {
	if !t.tryReserveCapacity(size) {
		return BufferInfo{}, false
	}
	slot := t.takeSlot(size)
	if err := t.backend.carve(slot.offset, size); err != nil {
		t.Remaining.Add(size)
		return BufferInfo{}, false
	}
	return BufferInfo{TargetID: t.ID, SlabIndex: slot.index, OffsetInTarget: slot.offset, Size: size}, true
}

// Reserve carves buffers summing to at least wantBytes, preferring the
// smallest single slab that covers the request outright and falling back
// to a largest-fit-first combination of slabs when none does (spec.md
// §4.1). It fails with herrors.NoSpace only when no combination of this
// target's slabs suffices.
func (t *Target) Reserve(wantBytes int64) ([]BufferInfo, error) {
	if wantBytes <= 0 {
		return nil, herrors.New(herrors.InvalidArgument, "target: reserve requires a positive byte count")
	}
	if buf, ok := t.reserveSingle(wantBytes); ok {
		return []BufferInfo{buf}, nil
	}
	return t.reserveMulti(wantBytes)
}

func (t *Target) reserveSingle(wantBytes int64) (BufferInfo, bool) {
	for _, size := range t.sortedSlabSizes() {
		if size < wantBytes {
			continue
		}
		if buf, ok := t.allocClass(size); ok {
			return buf, true
		}
	}
	return BufferInfo{}, false
}

func (t *Target) reserveMulti(wantBytes int64) ([]BufferInfo, error) {
	sizes := t.sortedSlabSizes()
	var out []BufferInfo
	remaining := wantBytes
	for i := len(sizes) - 1; i >= 0 && remaining > 0; i-- {
		size := sizes[i]
		for remaining > 0 {
			buf, ok := t.allocClass(size)
			if !ok {
				break
			}
			out = append(out, buf)
			remaining -= size
		}
	}
	if remaining > 0 {
		for _, b := range out {
			t.Free(b)
		}
		return nil, herrors.New(herrors.NoSpace, "target: out of capacity")
	}
	return out, nil
}

// Free releases buf back to its size class's free list and restores its
// bytes to Remaining. O(1): it only ever touches buf's own size class.
func (t *Target) Free(buf BufferInfo) {
	c := t.classFor(buf.Size)
	if c == nil {
		return
	}
	c.mu.Lock()
	c.free = append(c.free, slabSlot{offset: buf.OffsetInTarget, index: buf.SlabIndex})
	c.mu.Unlock()
	t.backend.release(buf.OffsetInTarget)
	t.Remaining.Add(buf.Size)
}

// Write copies data into buf starting at offInBuffer, under an advisory
// lock scoped to buf's address and released on every return path,
// including error (spec.md §4.1).
func (t *Target) Write(buf BufferInfo, data []byte, offInBuffer int64) error {
	if offInBuffer < 0 || offInBuffer+int64(len(data)) > buf.Size {
		return herrors.New(herrors.InvalidArgument, "target: write exceeds buffer bounds")
	}
	mu := t.locks.forOffset(buf.OffsetInTarget)
	mu.Lock()
	defer mu.Unlock()
	if err := t.backend.writeAt(buf.OffsetInTarget, offInBuffer, data); err != nil {
		return herrors.Wrap(herrors.Io, "target: write failed", err)
	}
	return nil
}

// Read copies buf's bytes starting at offInBuffer into out, under the same
// advisory lock Write uses. A range that was never written reads back as
// zero, matching the RAM backend's lazily-materialized slabs.
func (t *Target) Read(buf BufferInfo, out []byte, offInBuffer int64) error {
	if offInBuffer < 0 || offInBuffer+int64(len(out)) > buf.Size {
		return herrors.New(herrors.InvalidArgument, "target: read exceeds buffer bounds")
	}
	mu := t.locks.forOffset(buf.OffsetInTarget)
	mu.Lock()
	defer mu.Unlock()
	if err := t.backend.readAt(buf.OffsetInTarget, offInBuffer, out); err != nil {
		return herrors.Wrap(herrors.Io, "target: read failed", err)
	}
	return nil
}

// Flush is a durability barrier: a no-op on RAM, fsync on file-backed
// targets (spec.md §4.1).
func (t *Target) Flush() error {
	if err := t.backend.flush(); err != nil {
		return herrors.Wrap(herrors.Io, "target: flush failed", err)
	}
	return nil
}

// Snapshot returns a point-in-time Stats, safe to call concurrently with
// Reserve/Free/Write/Read.
func (t *Target) Snapshot() Stats {
	return Stats{
		ID:            t.ID,
		Capacity:      t.Capacity,
		Remaining:     t.Remaining.Load(),
		BandwidthMBps: t.BandwidthMBps,
		LatencyUs:     t.LatencyUs,
		SlabSizes:     append([]int64(nil), t.SlabSizes...),
		Score:         t.Score,
	}
}

// Close releases the target's backend resources (the open file handle for
// file-backed kinds; a no-op for RAM).
func (t *Target) Close() error {
	return t.backend.close()
}
