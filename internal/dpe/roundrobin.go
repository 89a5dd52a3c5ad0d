package dpe

import (
	"context"

	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/target"
)

// RoundRobin fills the highest-scoring targets first, taking
// min(remaining, need) from each before moving to the next, per spec.md
// §4.3. Despite the name it isn't a rotating round-robin in the classic
// sense; it keeps the teacher-facing name spec.md uses for this policy.
type RoundRobin struct{}

// Place implements Policy.
func (RoundRobin) Place(ctx context.Context, blobSize int64, targets []target.Stats) (Schema, error) {
	if len(targets) == 0 {
		return nil, errNoTargets
	}
	if blobSize <= 0 {
		return Schema{}, nil
	}

	ordered := sortByScoreDesc(targets)
	remaining := blobSize
	var schema Schema

	for _, t := range ordered {
		if remaining <= 0 {
			break
		}
		avail := availableBytes(t)
		if avail <= 0 {
			continue
		}
		want := remaining
		if avail < want {
			want = avail
		}
		for want > 0 {
			entry, placed := quantize(t, want)
			if placed == 0 {
				break
			}
			schema = append(schema, entry)
			want -= placed
			remaining -= placed
			avail -= placed
			if avail <= 0 {
				break
			}
		}
	}

	if remaining > 0 {
		return nil, herrors.New(herrors.NoSpace, "dpe: round_robin could not place all requested bytes")
	}
	return schema, nil
}
