package dpe

import (
	"context"

	"golang.org/x/exp/slices"

	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/ids"
	"github.com/dreamware/hermes/internal/target"
)

// SchemaEntry is one target's share of a placement decision.
type SchemaEntry struct {
	TargetID ids.TargetID
	SlabSize int64
	Bytes    int64
}

// Schema is a full placement decision: the targets a blob's bytes should
// be written to and how many bytes go to each.
type Schema []SchemaEntry

// TotalBytes sums every entry's Bytes.
func (s Schema) TotalBytes() int64 {
	var total int64
	for _, e := range s {
		total += e.Bytes
	}
	return total
}

// Policy decides how to spread blobSize bytes across targets.
type Policy interface {
	Place(ctx context.Context, blobSize int64, targets []target.Stats) (Schema, error)
}

// quantize walks a per-target byte allocation down to whole slabs,
// preferring a target's largest slab that still fits the remaining
// allocation so a contiguous range is never split across targets when one
// target's own slab could hold it outright (spec.md §4.3 fragmentation
// rule).
func quantize(t target.Stats, want int64) (SchemaEntry, int64) {
	if want <= 0 || len(t.SlabSizes) == 0 {
		return SchemaEntry{}, 0
	}
	best := int64(0)
	for _, size := range t.SlabSizes {
		if size <= want && size > best {
			best = size
		}
	}
	if best == 0 {
		// want is smaller than every slab size; take the smallest slab.
		best = t.SlabSizes[0]
		for _, size := range t.SlabSizes {
			if size < best {
				best = size
			}
		}
	}
	placed := best
	if placed > want {
		placed = want
	}
	return SchemaEntry{TargetID: t.ID, SlabSize: best, Bytes: placed}, placed
}

// sortByScoreDesc orders targets highest-score-first, matching the
// teacher's coordinator node-list sort (cmd/coordinator) but using Score
// as the sort key instead of node id.
func sortByScoreDesc(targets []target.Stats) []target.Stats {
	out := append([]target.Stats(nil), targets...)
	slices.SortFunc(out, func(a, b target.Stats) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return out
}

// singleSlabFit reports whether t can hold want bytes outright in one of
// its own slabs — the smallest slab size that is still >= want — with
// enough remaining capacity to back it. It implements spec.md §4.3's
// fragmentation rule ("a single byte-range placement never spans two
// targets if a single target can hold it in a single slab"): callers use
// it to short-circuit multi-target splitting whenever one target alone
// suffices, even if an even split would otherwise look attractive.
func singleSlabFit(t target.Stats, want int64) (int64, bool) {
	if want <= 0 || availableBytes(t) < want {
		return 0, false
	}
	best := int64(0)
	for _, size := range t.SlabSizes {
		if size >= want && (best == 0 || size < best) {
			best = size
		}
	}
	if best == 0 {
		return 0, false
	}
	return best, true
}

// availableBytes returns how many bytes t can still accept.
func availableBytes(t target.Stats) int64 {
	if t.Remaining < 0 {
		return 0
	}
	return t.Remaining
}

var errNoTargets = herrors.New(herrors.NoSpace, "dpe: no targets available")
