package bulk

// BufferRef names one slab reservation on a remote target, the wire form
// of target.BufferInfo (spec.md §3).
type BufferRef struct {
	TargetNodeID   uint32
	TargetHash     uint32
	TargetUnique   uint64
	SlabIndex      int
	OffsetInTarget int64
	Size           int64
}

// Chunk is one frame of a BulkWrite stream: a slice of bytes destined for
// Buffer starting at OffsetInBuffer. The client may split one logical
// write into several Chunks; the server reassembles them in order.
type Chunk struct {
	Buffer         BufferRef
	OffsetInBuffer int64
	Data           []byte
}

// Ack is BulkWrite's single reply, sent once the server has applied every
// Chunk in the stream.
type Ack struct {
	Ok      bool
	Message string
}

// ReadRequest is BulkRead's single request; the server replies with a
// stream of Chunks covering [OffsetInBuffer, OffsetInBuffer+Length).
type ReadRequest struct {
	Buffer         BufferRef
	OffsetInBuffer int64
	Length         int64
}
