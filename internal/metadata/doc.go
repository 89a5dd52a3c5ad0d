// Package metadata implements Hermes's MetadataManager (MDM): the
// authoritative tables of blob, tag, and target records for one node's
// shard of the cluster keyspace, plus the score histogram BORG uses to
// find promotion/demotion candidates without sorting (spec.md §4.2).
//
// # Overview
//
// The MDM holds three tables — blobs, tags, targets — each internally
// striped across a fixed number of buckets so that contention on one
// blob's record never blocks an unrelated blob's record. This generalizes
// the teacher's single sync.RWMutex per MemoryStore/ShardRegistry (whose
// key cardinality was small enough that one lock sufficed) to the higher
// cardinality Hermes expects.
//
// # Record mutation and the commit point
//
// Each BlobInfo and TagInfo record is stored behind an atomic.Pointer.
// Mutating a record never mutates the pointee in place: the caller builds
// a new, fully-formed record value (normally by cloning the current one
// and changing a handful of fields) and the MDM publishes it with a single
// atomic.Pointer.CompareAndSwap. That swap is the linearisation point
// spec.md §4.4 and §4.5 both describe: readers that loaded the old pointer
// keep observing a perfectly consistent pre-write snapshot; readers that
// load after the swap see a perfectly consistent post-write snapshot; no
// reader ever observes a record half-updated. BORG's "abort if mod_count
// changed between read and swap" (spec.md §4.5 step 4) falls directly out
// of this: the CompareAndSwap simply fails if another writer already
// published a newer pointer, and BORG treats that failure as a signal to
// retry on the next tick rather than retrying in a loop itself.
package metadata
