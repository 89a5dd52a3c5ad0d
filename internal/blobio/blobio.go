package blobio

import (
	"context"
	"sync"
	"time"

	"github.com/dreamware/hermes/internal/bufferpool"
	"github.com/dreamware/hermes/internal/dpe"
	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/ids"
	"github.com/dreamware/hermes/internal/metadata"
	"github.com/dreamware/hermes/internal/metrics"
	"github.com/dreamware/hermes/internal/target"
)

// RemoteIO performs buffer-level reads and writes against a target owned
// by a different node, over the bulk RPC transport. The rpc package's
// client satisfies this; blobio depends only on this narrow seam to
// avoid an import cycle with rpc.
type RemoteIO interface {
	WriteRemote(ctx context.Context, nodeID uint32, buf target.BufferInfo, data []byte, offInBuffer int64) error
	ReadRemote(ctx context.Context, nodeID uint32, buf target.BufferInfo, out []byte, offInBuffer int64) error
}

// LaneSubmitter dispatches a fire-and-forget function onto one of a
// blob's own scheduler lanes, so background metadata touch-ups stay
// serialized against that blob's other lane work instead of racing it
// from a bare goroutine. The scheduler's Queue satisfies this; blobio
// depends only on this narrow seam to avoid importing scheduler.
type LaneSubmitter interface {
	SubmitLane(laneHash uint32, run func(ctx context.Context) (any, error)) error
}

// BlobIO is the node-local entry point for the Write/Read/Append path.
type BlobIO struct {
	nodeID uint32
	mdm    *metadata.MDM
	pool   *bufferpool.BufferPool
	policy dpe.Policy
	remote RemoteIO
	lanes  LaneSubmitter
	m      *metrics.Registry
}

// New constructs a BlobIO. remote, lanes, and m may be nil; with a nil
// lanes, background access-stat updates fall back to a detached
// goroutine instead of a scheduled lane task.
func New(nodeID uint32, mdm *metadata.MDM, pool *bufferpool.BufferPool, policy dpe.Policy, remote RemoteIO, lanes LaneSubmitter, m *metrics.Registry) *BlobIO {
	return &BlobIO{nodeID: nodeID, mdm: mdm, pool: pool, policy: policy, remote: remote, lanes: lanes, m: m}
}

// Write stores data at offset within blobID's logical byte range,
// extending the blob's buffer list through the DPE when offset+len(data)
// runs past the current extent, and commits the new blob_size, buffer
// list, access stats, and score as one MDM.UpdateBlob swap (spec.md §4.4
// commit-point rule).
func (b *BlobIO) Write(ctx context.Context, blobID ids.BlobID, offset int64, data []byte) (*metadata.BlobInfo, error) {
	if b.m != nil {
		timer := prometheusTimer(b.m, "write")
		defer timer()
	}

	cur, err := b.mdm.GetBlob(blobID)
	if err != nil {
		return nil, err
	}

	needed := offset + int64(len(data))
	if cur.MaxBlobSize > 0 && needed > cur.MaxBlobSize {
		return nil, herrors.New(herrors.InvalidArgument, "blobio: write exceeds max_blob_size")
	}

	buffers := cur.Buffers
	existing := totalSize(buffers)
	var reserved []target.BufferInfo
	if needed > existing {
		gap := needed - existing
		schema, err := b.policy.Place(ctx, gap, b.pool.Capacity())
		if err != nil {
			return nil, err
		}
		for _, entry := range schema {
			bufs, err := b.pool.Reserve(ctx, entry.TargetID, entry.Bytes)
			if err != nil {
				for _, rb := range reserved {
					_ = b.pool.Free(rb)
				}
				return nil, err
			}
			reserved = append(reserved, bufs...)
		}
		buffers = append(append([]target.BufferInfo(nil), buffers...), reserved...)
	}

	extents := buildExtents(buffers)
	if err := b.fanOutWrite(ctx, extents, offset, data); err != nil {
		for _, rb := range reserved {
			_ = b.pool.Free(rb)
		}
		return nil, err
	}

	newSize := cur.BlobSize
	if needed > newSize {
		newSize = needed
	}

	updated, err := b.mdm.UpdateBlob(blobID, func(info *metadata.BlobInfo) error {
		info.Buffers = buffers
		info.BlobSize = newSize
		info.AccessFreq++
		info.LastAccess = b.mdm.Now()
		return nil
	})
	if err != nil {
		for _, rb := range reserved {
			_ = b.pool.Free(rb)
		}
		return nil, err
	}
	return updated, nil
}

// Append is a thin wrapper over Write at the blob's current size.
func (b *BlobIO) Append(ctx context.Context, blobID ids.BlobID, data []byte) (*metadata.BlobInfo, error) {
	cur, err := b.mdm.GetBlob(blobID)
	if err != nil {
		return nil, err
	}
	return b.Write(ctx, blobID, cur.BlobSize, data)
}

// Read returns length bytes starting at offset (nil for length <= 0). It is
// an InvalidArgument error when offset is beyond blob_size, or equal to a
// nonzero blob_size; a range that merely extends past blob_size is
// zero-filled for its tail rather than rejected (spec.md §4.4/§6).
func (b *BlobIO) Read(ctx context.Context, blobID ids.BlobID, offset, length int64) ([]byte, error) {
	if b.m != nil {
		timer := prometheusTimer(b.m, "read")
		defer timer()
	}

	cur, err := b.mdm.GetBlob(blobID)
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		return nil, nil
	}
	if offset > cur.BlobSize || (offset == cur.BlobSize && cur.BlobSize > 0) {
		return nil, herrors.New(herrors.InvalidArgument, "blobio: read offset beyond blob size")
	}

	effectiveEnd := offset + length
	if effectiveEnd > cur.BlobSize {
		effectiveEnd = cur.BlobSize
	}

	result := make([]byte, length)
	if effectiveEnd > offset {
		extents := buildExtents(cur.Buffers)
		if err := b.fanOutRead(ctx, extents, offset, effectiveEnd, result); err != nil {
			return nil, err
		}
	}

	b.bumpAccessStatsAsync(blobID)
	return result, nil
}

// bumpAccessStatsAsync records a read's effect on access_freq/last_access
// without blocking the caller on a metadata write. When lanes is set the
// update runs on the blob's own lane, serialized against that blob's
// writes and promotions instead of racing them; a lost race on the
// fallback goroutine just means one read's contribution to the score
// histogram is dropped, which is tolerable since scoring is a heuristic
// rather than an audited counter.
func (b *BlobIO) bumpAccessStatsAsync(blobID ids.BlobID) {
	if b.lanes != nil {
		_ = b.lanes.SubmitLane(blobID.Hash, func(ctx context.Context) (any, error) {
			b.bumpAccessStats(blobID)
			return nil, nil
		})
		return
	}
	go b.bumpAccessStats(blobID)
}

func (b *BlobIO) bumpAccessStats(blobID ids.BlobID) {
	_, _ = b.mdm.UpdateBlob(blobID, func(info *metadata.BlobInfo) error {
		info.AccessFreq++
		info.LastAccess = b.mdm.Now()
		return nil
	})
}

func (b *BlobIO) fanOutWrite(ctx context.Context, extents []extent, offset int64, data []byte) error {
	targets := overlapping(extents, offset, offset+int64(len(data)))
	if len(targets) == 0 {
		return nil
	}
	var wg sync.WaitGroup
	errs := make(chan error, len(targets))
	for _, e := range targets {
		e := e
		start := maxInt64(offset, e.start)
		end := minInt64(offset+int64(len(data)), e.end)
		segment := data[start-offset : end-offset]
		offInBuffer := start - e.start

		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.routeWrite(ctx, e.buf, segment, offInBuffer)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *BlobIO) fanOutRead(ctx context.Context, extents []extent, start, end int64, out []byte) error {
	targets := overlapping(extents, start, end)
	if len(targets) == 0 {
		return nil
	}
	outStart := start

	var wg sync.WaitGroup
	errs := make(chan error, len(targets))
	for _, e := range targets {
		e := e
		segStart := maxInt64(start, e.start)
		segEnd := minInt64(end, e.end)
		offInBuffer := segStart - e.start
		dst := out[segStart-outStart : segEnd-outStart]

		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.routeRead(ctx, e.buf, dst, offInBuffer)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// CopyBuffer reads from's full contents and writes them into to, used by
// BORG to relocate a buffer between targets without going through a
// blob's logical offset space (spec.md §4.5 step 3: "copies buffer-by-
// buffer").
func (b *BlobIO) CopyBuffer(ctx context.Context, from, to target.BufferInfo) error {
	data := make([]byte, from.Size)
	if err := b.routeRead(ctx, from, data, 0); err != nil {
		return err
	}
	n := from.Size
	if to.Size < n {
		n = to.Size
	}
	return b.routeWrite(ctx, to, data[:n], 0)
}

func (b *BlobIO) routeWrite(ctx context.Context, buf target.BufferInfo, data []byte, offInBuffer int64) error {
	if t, ok := b.pool.LocalTarget(buf.TargetID); ok {
		return t.Write(buf, data, offInBuffer)
	}
	owner, ok := b.pool.OwnerOf(buf.TargetID)
	if !ok || b.remote == nil {
		return herrors.New(herrors.RpcUnreachable, "blobio: no remote io route for target")
	}
	return b.remote.WriteRemote(ctx, owner, buf, data, offInBuffer)
}

func (b *BlobIO) routeRead(ctx context.Context, buf target.BufferInfo, out []byte, offInBuffer int64) error {
	if t, ok := b.pool.LocalTarget(buf.TargetID); ok {
		return t.Read(buf, out, offInBuffer)
	}
	owner, ok := b.pool.OwnerOf(buf.TargetID)
	if !ok || b.remote == nil {
		return herrors.New(herrors.RpcUnreachable, "blobio: no remote io route for target")
	}
	return b.remote.ReadRemote(ctx, owner, buf, out, offInBuffer)
}

func prometheusTimer(m *metrics.Registry, op string) func() {
	start := time.Now()
	return func() {
		m.BlobIOLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
