// Package blobio implements Hermes's BlobIO path: turning a logical
// (blob, offset, length) read or write into operations against the
// buffers a blob's record actually owns, generalizing the teacher's
// single-backend Shard.Get/Put/Delete into a multi-buffer, multi-node
// path (spec.md §4.4).
//
// A blob's Buffers slice is treated as an ordered list of contiguous
// logical extents: the first buffer covers [0, size0), the second
// [size0, size0+size1), and so on. Write extends that list (via the DPE
// and BufferPool) when new data runs past the end of the last extent,
// then fans writes out to each buffer's owning target — locally through
// target.Write or remotely through a RemoteIO seam — before publishing
// the updated record with a single MDM.UpdateBlob call, which is the
// commit point spec.md §4.4 describes: readers never observe a blob
// record whose buffer list and blob_size disagree.
package blobio
