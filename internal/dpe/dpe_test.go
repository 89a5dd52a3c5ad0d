package dpe

import (
	"context"
	"testing"

	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/ids"
	"github.com/dreamware/hermes/internal/target"
)

func stat(id string, remaining int64, score float64, slabs ...int64) target.Stats {
	return target.Stats{
		ID:            ids.NewTargetID(1, id),
		Capacity:      remaining,
		Remaining:     remaining,
		BandwidthMBps: 100,
		SlabSizes:     slabs,
		Score:         score,
	}
}

func TestRoundRobinPrefersHighestScoreFirst(t *testing.T) {
	targets := []target.Stats{
		stat("cold", 1 << 20, 0.1, 4096),
		stat("hot", 1 << 20, 0.9, 4096),
	}
	schema, err := RoundRobin{}.Place(context.Background(), 4096, targets)
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if len(schema) == 0 || schema[0].TargetID != targets[1].ID {
		t.Errorf("expected first entry on the highest-score target, got %+v", schema)
	}
}

func TestRoundRobinSpillsToSecondTargetWhenFirstIsFull(t *testing.T) {
	targets := []target.Stats{
		stat("a", 4096, 0.9, 4096),
		stat("b", 1 << 20, 0.1, 4096),
	}
	schema, err := RoundRobin{}.Place(context.Background(), 8192, targets)
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if schema.TotalBytes() < 8192 {
		t.Errorf("TotalBytes() = %d, want >= 8192", schema.TotalBytes())
	}
	seen := map[ids.TargetID]bool{}
	for _, e := range schema {
		seen[e.TargetID] = true
	}
	if !seen[targets[0].ID] || !seen[targets[1].ID] {
		t.Errorf("expected both targets used when the first one is full, got %+v", schema)
	}
}

func TestRoundRobinReturnsNoSpaceWhenCapacityExhausted(t *testing.T) {
	targets := []target.Stats{stat("a", 100, 0.5, 4096)}
	_, err := RoundRobin{}.Place(context.Background(), 1<<20, targets)
	if !herrors.Is(err, herrors.NoSpace) {
		t.Errorf("expected NoSpace, got %v", err)
	}
}

func TestRoundRobinNoTargetsIsNoSpace(t *testing.T) {
	_, err := RoundRobin{}.Place(context.Background(), 100, nil)
	if !herrors.Is(err, herrors.NoSpace) {
		t.Errorf("expected NoSpace for an empty target list, got %v", err)
	}
}

func TestMinimizeIOTimeBalancesProportionalToBandwidth(t *testing.T) {
	fast := target.Stats{ID: ids.NewTargetID(1, "fast"), Remaining: 1 << 30, BandwidthMBps: 200, SlabSizes: []int64{4096}}
	slow := target.Stats{ID: ids.NewTargetID(1, "slow"), Remaining: 1 << 30, BandwidthMBps: 100, SlabSizes: []int64{4096}}

	schema, err := MinimizeIOTime{}.Place(context.Background(), 300*4096, []target.Stats{fast, slow})
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}

	byTarget := map[ids.TargetID]int64{}
	for _, e := range schema {
		byTarget[e.TargetID] += e.Bytes
	}
	if byTarget[fast.ID] <= byTarget[slow.ID] {
		t.Errorf("expected the faster target to receive more bytes: fast=%d slow=%d", byTarget[fast.ID], byTarget[slow.ID])
	}
}

func TestMinimizeIOTimeFallsBackWhenInfeasible(t *testing.T) {
	targets := []target.Stats{
		{ID: ids.NewTargetID(1, "a"), Remaining: 0, BandwidthMBps: 0, SlabSizes: []int64{4096}},
	}
	_, err := MinimizeIOTime{}.Place(context.Background(), 1<<20, targets)
	if !herrors.Is(err, herrors.NoSpace) {
		t.Errorf("expected NoSpace once both the LP and its fallback fail, got %v", err)
	}
}

func TestQuantizeNeverSplitsBelowASingleSlab(t *testing.T) {
	ts := target.Stats{ID: ids.NewTargetID(1, "a"), SlabSizes: []int64{4096, 64 * 1024, 1 << 20}}
	entry, placed := quantize(ts, 1<<20)
	if entry.SlabSize != 1<<20 || placed != 1<<20 {
		t.Errorf("expected a single top-level slab to satisfy an exact-fit request, got slab=%d placed=%d", entry.SlabSize, placed)
	}
}

func TestNewPolicyDefaultsToRoundRobin(t *testing.T) {
	if _, ok := NewPolicy("").(RoundRobin); !ok {
		t.Error("expected empty policy name to default to RoundRobin")
	}
	if _, ok := NewPolicy("bogus").(RoundRobin); !ok {
		t.Error("expected unrecognized policy name to default to RoundRobin")
	}
	if _, ok := NewPolicy("minimize_io_time").(MinimizeIOTime); !ok {
		t.Error("expected minimize_io_time to construct MinimizeIOTime")
	}
}
