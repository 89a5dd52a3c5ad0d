// Package target implements Hermes's Target and BufferPool layer (spec.md
// §3, §4.1): the device abstraction that owns physical storage capacity,
// carves it into slabs, and hands out/reclaims BufferInfo reservations.
//
// A Target carves its backing store into slab size-classes declared at
// construction. Reserve first tries the smallest single slab that covers
// the request outright, then falls back to a largest-fit-first combination
// of slabs when no single one suffices, failing with herrors.NoSpace only
// when no combination does either. Capacity accounting is a single atomic
// counter (Remaining) updated via compare-and-swap before a buffer is
// published to the caller, so concurrent Reserve calls never over-commit.
// Each slab size-class keeps its own free list behind its own mutex, so
// Free is O(1) and never contends across size classes — grounded on the
// teacher's internal/storage.MemoryStore (one lock per logical unit of
// state) and internal/shard.Shard (per-entity locking instead of one global
// lock).
//
// RAM and file-backed devices share one allocation path and differ only in
// their backend: a RAM target keeps slabs in a map of byte slices, a file
// target writes/reads at byte offsets into an *os.File. Read and Write
// hold a striped advisory lock keyed by the buffer's offset for the
// duration of the call, released on every return path including error.
package target
