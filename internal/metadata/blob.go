package metadata

import (
	"github.com/dreamware/hermes/internal/ids"
	"github.com/dreamware/hermes/internal/target"
)

// Ticks is a monotonic timestamp, used for recency scoring rather than
// wall-clock time so that score computation is immune to clock jumps
// (spec.md §3: "last_access: monotonic_ticks").
type Ticks int64

// BlobInfo is the heart of Hermes's data model (spec.md §3). Values
// returned from the MDM are immutable snapshots: callers must go through
// MDM.UpdateBlob (or a narrower helper) to change a record, never mutate
// fields of a returned *BlobInfo directly.
type BlobInfo struct {
	BlobID      ids.BlobID
	TagID       ids.TagID
	Name        string
	Buffers     []target.BufferInfo
	Tags        map[ids.TagID]struct{}
	BlobSize    int64
	MaxBlobSize int64
	Score       float64
	AccessFreq  uint32
	LastAccess  Ticks
	ModCount    uint64
}

// clone returns a deep copy of b suitable for building the next version of
// the record to CompareAndSwap in.
func (b *BlobInfo) clone() *BlobInfo {
	out := *b
	out.Buffers = append([]target.BufferInfo(nil), b.Buffers...)
	out.Tags = make(map[ids.TagID]struct{}, len(b.Tags))
	for t := range b.Tags {
		out.Tags[t] = struct{}{}
	}
	return &out
}

// TotalBufferBytes sums buffer sizes, used to check the spec.md §3
// invariant sum(buffers[i].size) >= blob_size.
func (b *BlobInfo) TotalBufferBytes() int64 {
	var total int64
	for _, buf := range b.Buffers {
		total += buf.Size
	}
	return total
}

// TagInfo is a bucket: a namespace grouping blobs and associating them
// with traits (spec.md §3).
type TagInfo struct {
	TagID        ids.TagID
	Name         string
	Blobs        map[ids.BlobID]struct{}
	Traits       []string
	InternalSize int64
	PageSize     int64
	Owner        string
}

func (t *TagInfo) clone() *TagInfo {
	out := *t
	out.Blobs = make(map[ids.BlobID]struct{}, len(t.Blobs))
	for b := range t.Blobs {
		out.Blobs[b] = struct{}{}
	}
	out.Traits = append([]string(nil), t.Traits...)
	return &out
}
