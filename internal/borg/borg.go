package borg

import (
	"context"

	"github.com/dreamware/hermes/internal/blobio"
	"github.com/dreamware/hermes/internal/bufferpool"
	"github.com/dreamware/hermes/internal/config"
	"github.com/dreamware/hermes/internal/dpe"
	"github.com/dreamware/hermes/internal/ids"
	"github.com/dreamware/hermes/internal/metadata"
	"github.com/dreamware/hermes/internal/scheduler"
	"github.com/dreamware/hermes/internal/target"
)

// defaultBatchSize matches spec.md §4.5's documented default for how many
// candidate blobs a single Tick examines.
const defaultBatchSize = 256

// BORG organises buffers across targets by blob score.
type BORG struct {
	mdm    *metadata.MDM
	pool   *bufferpool.BufferPool
	policy dpe.Policy
	bio    *blobio.BlobIO
	cfg    config.BORGConfig
}

// New constructs a BORG instance over the given node's components.
func New(mdm *metadata.MDM, pool *bufferpool.BufferPool, policy dpe.Policy, bio *blobio.BlobIO, cfg config.BORGConfig) *BORG {
	return &BORG{mdm: mdm, pool: pool, policy: policy, bio: bio, cfg: cfg}
}

// StartPeriodic schedules Tick on q at the configured period (default
// 250ms), priority LongRunning so it never starves client traffic.
func (borg *BORG) StartPeriodic(q *scheduler.Queue) (*scheduler.Task, error) {
	periodMs := uint32(borg.cfg.PeriodMs)
	if periodMs == 0 {
		periodMs = 250
	}
	return scheduler.Periodic(q, scheduler.PriorityLongRunning, 0, periodMs, func(ctx context.Context) (any, error) {
		return nil, borg.Tick(ctx)
	})
}

// Tick refreshes histogram percentiles and streams up to BatchSize
// candidate blobs, promoting those at or above p90 and demoting those at
// or below p10 (spec.md §4.5 step 1-2). Individual move failures (a lost
// mod_count race, a target out of space) are swallowed here: the blob
// simply stays where it is and gets reconsidered on the next tick.
func (borg *BORG) Tick(ctx context.Context) error {
	batch := borg.cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	p90 := borg.mdm.Histogram.Quantile(90)
	p10 := borg.mdm.Histogram.Quantile(10)

	ids := borg.mdm.ListBlobIDs()
	for i, id := range ids {
		if i >= batch {
			break
		}
		blob, err := borg.mdm.GetBlob(id)
		if err != nil {
			continue
		}
		switch {
		case blob.Score >= p90:
			_ = borg.move(ctx, id, true)
		case blob.Score <= p10:
			_ = borg.move(ctx, id, false)
		}
	}
	return nil
}

// move relocates blobID toward a faster target (promote) or a slower one
// (demote), reserving new buffers via the DPE, copying data
// buffer-by-buffer through BlobIO, and committing the new buffer list with
// a single mod_count-guarded CompareAndSwap (spec.md §4.5 step 3-4).
func (borg *BORG) move(ctx context.Context, blobID ids.BlobID, promote bool) error {
	blob, err := borg.mdm.GetBlob(blobID)
	if err != nil {
		return err
	}

	dest := borg.chooseTarget(promote, blob)
	if dest == nil || allBuffersOn(blob.Buffers, dest.ID) {
		return nil
	}

	want := blob.TotalBufferBytes()
	if want == 0 {
		return nil
	}
	schema, err := borg.policy.Place(ctx, want, []target.Stats{dest.Snapshot()})
	if err != nil {
		return err
	}

	var newBuffers []target.BufferInfo
	for _, entry := range schema {
		bufs, err := borg.pool.Reserve(ctx, entry.TargetID, entry.Bytes)
		if err != nil {
			for _, nb := range newBuffers {
				_ = borg.pool.Free(nb)
			}
			return err
		}
		newBuffers = append(newBuffers, bufs...)
	}

	for i := 0; i < len(blob.Buffers) && i < len(newBuffers); i++ {
		if err := borg.bio.CopyBuffer(ctx, blob.Buffers[i], newBuffers[i]); err != nil {
			for _, nb := range newBuffers {
				_ = borg.pool.Free(nb)
			}
			return err
		}
	}

	oldBuffers := blob.Buffers
	_, err = borg.mdm.TryUpdateBlob(blobID, blob.ModCount, func(info *metadata.BlobInfo) error {
		info.Buffers = newBuffers
		return nil
	})
	if err != nil {
		// Another writer won the race; abandon this move and let the next
		// tick reconsider rather than retrying in a loop (spec.md §4.5
		// step 4).
		for _, nb := range newBuffers {
			_ = borg.pool.Free(nb)
		}
		return err
	}

	for _, ob := range oldBuffers {
		_ = borg.pool.Free(ob)
	}
	return nil
}

// chooseTarget picks the lowest-latency target for a promotion or the
// highest-latency target for a demotion, from every target this node's
// MDM knows about.
func (borg *BORG) chooseTarget(promote bool, blob *metadata.BlobInfo) *target.Target {
	targets := borg.mdm.ListTargets()
	if len(targets) == 0 {
		return nil
	}

	best := targets[0]
	for _, t := range targets[1:] {
		if promote && t.LatencyUs < best.LatencyUs {
			best = t
		}
		if !promote && t.LatencyUs > best.LatencyUs {
			best = t
		}
	}
	return best
}

func allBuffersOn(buffers []target.BufferInfo, id ids.TargetID) bool {
	if len(buffers) == 0 {
		return false
	}
	for _, b := range buffers {
		if b.TargetID != id {
			return false
		}
	}
	return true
}
