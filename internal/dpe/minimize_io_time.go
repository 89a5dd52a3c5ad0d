package dpe

import (
	"context"

	"github.com/dreamware/hermes/internal/target"
)

// MinimizeIOTime balances bytes across targets so that every target's
// estimated transfer time (bytes/bandwidth) is as close to equal as
// possible, per spec.md §4.3. It falls back to RoundRobin whenever the
// underlying LP is infeasible (not enough aggregate capacity, or every
// target reports zero bandwidth).
type MinimizeIOTime struct {
	Fallback Policy
}

// Place implements Policy.
func (p MinimizeIOTime) Place(ctx context.Context, blobSize int64, targets []target.Stats) (Schema, error) {
	if len(targets) == 0 {
		return nil, errNoTargets
	}
	if blobSize <= 0 {
		return Schema{}, nil
	}

	// Fragmentation rule first (spec.md §4.3): if the highest-scoring
	// target that can take the whole blob in a single slab has room for
	// it, place it there outright rather than letting the balancing LP
	// spread it thinner across targets to equalize transfer time.
	for _, t := range sortByScoreDesc(targets) {
		if slab, ok := singleSlabFit(t, blobSize); ok {
			return Schema{{TargetID: t.ID, SlabSize: slab, Bytes: blobSize}}, nil
		}
	}

	bw := make([]float64, len(targets))
	capacity := make([]int64, len(targets))
	for i, t := range targets {
		bw[i] = t.BandwidthMBps
		capacity[i] = availableBytes(t)
	}

	alloc, ok := minimizeMakespan(blobSize, bw, capacity)
	if !ok {
		return p.fallback().Place(ctx, blobSize, targets)
	}

	var schema Schema
	for i, t := range targets {
		want := alloc[i]
		for want > 0 {
			entry, placed := quantize(t, want)
			if placed == 0 {
				break
			}
			schema = append(schema, entry)
			want -= placed
		}
	}

	if schema.TotalBytes() < blobSize {
		return p.fallback().Place(ctx, blobSize, targets)
	}
	return schema, nil
}

func (p MinimizeIOTime) fallback() Policy {
	if p.Fallback != nil {
		return p.Fallback
	}
	return RoundRobin{}
}

// NewPolicy constructs the Policy named by a config.DPEConfig.Policy
// string, defaulting to RoundRobin for an empty or unrecognized name —
// config.Validate already rejects unrecognized names before this is
// reached in production, but NewPolicy stays total so tests can call it
// directly.
func NewPolicy(name string) Policy {
	switch name {
	case "minimize_io_time":
		return MinimizeIOTime{}
	case "round_robin", "":
		return RoundRobin{}
	default:
		return RoundRobin{}
	}
}
