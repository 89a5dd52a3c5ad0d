package hermes

import (
	"context"

	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/ids"
	"github.com/dreamware/hermes/internal/metadata"
	"github.com/dreamware/hermes/internal/scheduler"
	"github.com/dreamware/hermes/internal/target"
)

// Range is an optional byte range for Get; a nil *Range reads the entire
// blob.
type Range struct {
	Offset int64
	Length int64
}

// MetadataSnapshot is the fuzzy, non-transactional point-in-time view
// CollectMetadataSnapshot returns (spec.md §6: "collect_metadata_snapshot
// ... consistency: fuzzy, no global lock").
type MetadataSnapshot struct {
	NodeID  uint32
	Blobs   []*metadata.BlobInfo
	Tags    []*metadata.TagInfo
	Targets []target.Stats
}

// submit routes run through the scheduler under the given priority and
// lane, blocking until it completes, the caller's ctx is cancelled, or the
// caller's deadline passes.
func (s *Service) submit(ctx context.Context, priority scheduler.PriorityClass, laneHash uint32, run func(context.Context) (any, error)) (any, error) {
	done := make(chan scheduler.Result, 1)
	task := &scheduler.Task{Priority: priority, LaneHash: laneHash, Run: run, Done: done}
	if dl, ok := ctx.Deadline(); ok {
		task.Deadline = dl
	}
	if err := s.Queue.Submit(task); err != nil {
		return nil, err
	}
	select {
	case res := <-done:
		return res.Value, res.Err
	case <-ctx.Done():
		task.Cancel()
		return nil, herrors.Wrap(herrors.Cancelled, "hermes: caller context cancelled", ctx.Err())
	}
}

// tagLaneHash selects the admin lane a tag-table mutation runs in.
func tagLaneHash(tagID ids.TagID) uint32 {
	return ids.Identifier(tagID).Hash
}

// blobLaneHash selects the lane a blob mutation runs in, the at-most-one-
// concurrent-writer-per-blob affinity spec.md §4.6 requires. It is
// identical to the Hash component ids.NewBlobID derives from (tag, name),
// so Put (before the blob exists) and every later op against the same
// blob land in the same lane.
func blobLaneHash(blobID ids.BlobID) uint32 {
	return blobID.Hash
}

// CreateTag publishes a new, empty tag under name, failing with Conflict if
// name is already bound to a different tag (spec.md §6).
func (s *Service) CreateTag(ctx context.Context, name string, pageSize int64) (ids.TagID, error) {
	tagID := ids.NewTagID(s.NodeID, name)
	_, err := s.submit(ctx, scheduler.PriorityAdmin, tagLaneHash(tagID), func(ctx context.Context) (any, error) {
		return s.MDM.CreateTag(tagID, name, "", nil, pageSize)
	})
	if err != nil {
		return ids.TagID{}, err
	}
	return tagID, nil
}

// GetTagID resolves a tag name to its id. It is a pure lookup and does not
// go through the scheduler.
func (s *Service) GetTagID(name string) (ids.TagID, bool) {
	return s.MDM.GetTagID(name)
}

// DestroyTag removes a tag's record, refusing (InvalidArgument) if it still
// owns blobs (spec.md §6).
func (s *Service) DestroyTag(ctx context.Context, tagID ids.TagID) error {
	_, err := s.submit(ctx, scheduler.PriorityAdmin, tagLaneHash(tagID), func(ctx context.Context) (any, error) {
		return nil, s.MDM.DestroyTag(tagID)
	})
	return err
}

// RegisterTrait attaches trait to tagID, recording it in both the tag's
// trait list and this node's name-keyed trait registry (spec.md §6, §9).
func (s *Service) RegisterTrait(ctx context.Context, tagID ids.TagID, trait Trait) error {
	s.traits.register(trait)
	_, err := s.submit(ctx, scheduler.PriorityAdmin, tagLaneHash(tagID), func(ctx context.Context) (any, error) {
		return s.MDM.AddTagTrait(tagID, trait.Name())
	})
	return err
}

// defaultMaxBlobSizeFor returns the max_blob_size Put provisions for a
// freshly created blob: double the first write's length so a subsequent
// Append has headroom without needing a fresh DPE placement call for every
// grown byte (spec.md §3: "buffers may be over-provisioned to accept
// appends"), floored at 4KiB so an empty or tiny first Put still leaves
// room to append into.
func defaultMaxBlobSizeFor(firstWriteLen int) int64 {
	const floor = 4096
	want := int64(firstWriteLen) * 2
	if want < floor {
		return floor
	}
	return want
}

// Put writes data as the entire content of (tag, name), creating the blob
// on first use and provisioning its initial buffers through the DPE, or
// overwriting an existing blob's content from offset zero otherwise
// (spec.md §6). scoreOverride, if non-nil, forcibly sets the blob's score
// instead of leaving it to the access-stats formula.
func (s *Service) Put(ctx context.Context, tagID ids.TagID, name string, data []byte, scoreOverride *float64) (ids.BlobID, error) {
	laneHash := ids.HashKey(ids.Identifier(tagID).String(), name)
	v, err := s.submit(ctx, scheduler.PriorityLowLatency, laneHash, func(ctx context.Context) (any, error) {
		return s.put(ctx, tagID, name, data, scoreOverride)
	})
	if err != nil {
		return ids.BlobID{}, err
	}
	return v.(ids.BlobID), nil
}

func (s *Service) put(ctx context.Context, tagID ids.TagID, name string, data []byte, scoreOverride *float64) (ids.BlobID, error) {
	blobID, created := s.MDM.GetOrCreateBlobID(tagID, name)

	if created {
		maxBlobSize := defaultMaxBlobSizeFor(len(data))
		schema, err := s.Policy.Place(ctx, int64(len(data)), s.Pool.Capacity())
		if err != nil {
			return ids.BlobID{}, err
		}
		var reserved []target.BufferInfo
		for _, entry := range schema {
			bufs, err := s.Pool.Reserve(ctx, entry.TargetID, entry.Bytes)
			if err != nil {
				for _, rb := range reserved {
					_ = s.Pool.Free(rb)
				}
				return ids.BlobID{}, err
			}
			reserved = append(reserved, bufs...)
		}
		if _, err := s.MDM.CreateBlobRecord(blobID, tagID, name, reserved, 0, maxBlobSize); err != nil {
			for _, rb := range reserved {
				_ = s.Pool.Free(rb)
			}
			return ids.BlobID{}, err
		}
		if err := s.MDM.TagBlob(blobID, tagID); err != nil {
			return ids.BlobID{}, err
		}
	} else {
		// A re-Put fully replaces the blob's logical content: reset
		// BlobSize to zero first so a shorter overwrite doesn't leave a
		// stale tail visible to a later Get past the new length, and grow
		// MaxBlobSize up front if this write is bigger than the headroom
		// the original Put provisioned.
		if _, err := s.MDM.UpdateBlob(blobID, func(info *metadata.BlobInfo) error {
			info.BlobSize = 0
			if need := defaultMaxBlobSizeFor(len(data)); need > info.MaxBlobSize {
				info.MaxBlobSize = need
			}
			return nil
		}); err != nil {
			return ids.BlobID{}, err
		}
	}

	if _, err := s.BlobIO.Write(ctx, blobID, 0, data); err != nil {
		return ids.BlobID{}, err
	}
	if scoreOverride != nil {
		if _, err := s.MDM.OverrideScore(blobID, *scoreOverride); err != nil {
			return ids.BlobID{}, err
		}
	}
	return blobID, nil
}

// Get reads rng from blobID, or the blob's entire content if rng is nil
// (spec.md §6). It does not go through the scheduler: reads may run
// concurrently with each other and with the blob's own writer lane.
func (s *Service) Get(ctx context.Context, blobID ids.BlobID, rng *Range) ([]byte, error) {
	info, err := s.MDM.GetBlob(blobID)
	if err != nil {
		return nil, err
	}
	offset, length := int64(0), info.BlobSize
	if rng != nil {
		offset, length = rng.Offset, rng.Length
	}
	return s.BlobIO.Read(ctx, blobID, offset, length)
}

// Append writes data past blobID's current end, returning the blob's new
// size (spec.md §6).
func (s *Service) Append(ctx context.Context, blobID ids.BlobID, data []byte) (int64, error) {
	v, err := s.submit(ctx, scheduler.PriorityLowLatency, blobLaneHash(blobID), func(ctx context.Context) (any, error) {
		return s.BlobIO.Append(ctx, blobID, data)
	})
	if err != nil {
		return 0, err
	}
	return v.(*metadata.BlobInfo).BlobSize, nil
}

// Destroy removes blobID's record and frees its buffers. It is idempotent:
// destroying an already-absent blob succeeds (spec.md §6).
func (s *Service) Destroy(ctx context.Context, blobID ids.BlobID) error {
	_, err := s.submit(ctx, scheduler.PriorityLowLatency, blobLaneHash(blobID), func(ctx context.Context) (any, error) {
		return nil, s.destroy(blobID)
	})
	return err
}

func (s *Service) destroy(blobID ids.BlobID) error {
	info, err := s.MDM.DestroyBlob(blobID)
	if err != nil {
		if herrors.Is(err, herrors.NotFound) {
			return nil
		}
		return err
	}
	for _, buf := range info.Buffers {
		_ = s.Pool.Free(buf)
	}
	return nil
}

// Flush is a durability barrier across every target this node hosts. tag is
// accepted for API symmetry with spec.md §6's flush(tag?) but unused: the
// data model has no per-tag target affinity to scope a flush to.
func (s *Service) Flush(ctx context.Context, tag *ids.TagID) error {
	for _, t := range s.MDM.ListTargets() {
		if err := t.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// CollectMetadataSnapshot gathers every live blob, tag, and target record
// this node's MDM holds, without a global lock (spec.md §6): the result may
// reflect a mutation that completed mid-scan and miss one that started
// after the scan began.
func (s *Service) CollectMetadataSnapshot(ctx context.Context) MetadataSnapshot {
	snap := MetadataSnapshot{NodeID: s.NodeID}

	for _, id := range s.MDM.ListBlobIDs() {
		if b, err := s.MDM.GetBlob(id); err == nil {
			snap.Blobs = append(snap.Blobs, b)
		}
	}
	for _, id := range s.MDM.ListTagIDs() {
		if t, err := s.MDM.GetTag(id); err == nil {
			snap.Tags = append(snap.Tags, t)
		}
	}
	for _, t := range s.MDM.ListTargets() {
		snap.Targets = append(snap.Targets, t.Snapshot())
	}
	return snap
}
