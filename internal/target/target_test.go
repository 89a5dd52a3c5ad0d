package target

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/ids"
)

func newRAM(t *testing.T, capacity int64, slabSizes ...int64) *Target {
	t.Helper()
	tgt, err := NewRAMTarget(ids.NewTargetID(1, "mem0"), capacity, 10000, 1, slabSizes)
	if err != nil {
		t.Fatalf("NewRAMTarget failed: %v", err)
	}
	return tgt
}

func TestParseDeviceKind(t *testing.T) {
	cases := map[string]DeviceKind{
		"ram": DeviceRAM, "nvme": DeviceNVMe, "ssd": DeviceSSD, "hdd": DeviceHDD, "pfs": DevicePFS,
	}
	for s, want := range cases {
		got, err := ParseDeviceKind(s)
		if err != nil || got != want {
			t.Errorf("ParseDeviceKind(%q) = %v, %v; want %v, nil", s, got, err, want)
		}
	}
	if _, err := ParseDeviceKind("tape"); !herrors.Is(err, herrors.InvalidArgument) {
		t.Errorf("expected InvalidArgument for unrecognized kind, got %v", err)
	}
}

func TestReservePrefersSmallestSingleSlab(t *testing.T) {
	tgt := newRAM(t, 1<<20, 4096, 64*1024, 1<<20)

	bufs, err := tgt.Reserve(3000)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if len(bufs) != 1 || bufs[0].Size != 4096 {
		t.Fatalf("expected a single 4096-byte slab, got %+v", bufs)
	}
}

func TestReserveFallsBackToMultiBufferLargestFirst(t *testing.T) {
	tgt := newRAM(t, 1<<20, 4096, 64*1024)

	// Bigger than the largest slab: must combine buffers, largest first.
	bufs, err := tgt.Reserve(100 * 1024)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	var total int64
	for _, b := range bufs {
		total += b.Size
	}
	if total < 100*1024 {
		t.Fatalf("reserved buffers only cover %d bytes, want >= %d", total, 100*1024)
	}
	if bufs[0].Size != 64*1024 {
		t.Errorf("expected largest-fit-first to start with a 64KiB slab, got %d", bufs[0].Size)
	}
}

func TestReserveOutOfCapacityRollsBack(t *testing.T) {
	tgt := newRAM(t, 8192, 4096)

	if _, err := tgt.Reserve(4096); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}
	before := tgt.Remaining.Load()

	if _, err := tgt.Reserve(1 << 20); !herrors.Is(err, herrors.NoSpace) {
		t.Fatalf("expected NoSpace, got %v", err)
	}
	if got := tgt.Remaining.Load(); got != before {
		t.Errorf("failed reservation leaked capacity: remaining went from %d to %d", before, got)
	}
}

func TestFreeRestoresCapacityAndAllowsReuse(t *testing.T) {
	tgt := newRAM(t, 4096, 4096)

	bufs, err := tgt.Reserve(4096)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if tgt.Remaining.Load() != 0 {
		t.Fatalf("expected capacity fully reserved, got remaining=%d", tgt.Remaining.Load())
	}

	tgt.Free(bufs[0])
	if got := tgt.Remaining.Load(); got != 4096 {
		t.Errorf("Free did not restore capacity: remaining=%d", got)
	}

	if _, err := tgt.Reserve(4096); err != nil {
		t.Fatalf("reserve after free failed: %v", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	tgt := newRAM(t, 1<<20, 4096)
	bufs, err := tgt.Reserve(100)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	buf := bufs[0]

	want := []byte("hermes buffer contents")
	if err := tgt.Write(buf, want, 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got := make([]byte, len(want))
	if err := tgt.Read(buf, got, 0); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("round trip mismatch: got %q, want %q", got, want)
	}
}

func TestReadUnwrittenRangeIsZeroFilled(t *testing.T) {
	tgt := newRAM(t, 1<<20, 4096)
	bufs, err := tgt.Reserve(100)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	out := make([]byte, 100)
	if err := tgt.Read(bufs[0], out, 0); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for i, b := range out {
		if b != 0 {
			t.Fatalf("expected zero-filled buffer at byte %d, got %d", i, b)
		}
	}
}

func TestWriteOutOfBoundsIsRejected(t *testing.T) {
	tgt := newRAM(t, 1<<20, 4096)
	bufs, err := tgt.Reserve(100)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := tgt.Write(bufs[0], make([]byte, 10), bufs[0].Size-5); !herrors.Is(err, herrors.InvalidArgument) {
		t.Errorf("expected InvalidArgument for an out-of-bounds write, got %v", err)
	}
}

func TestConcurrentReserveNeverOverCommits(t *testing.T) {
	tgt := newRAM(t, 64*4096, 4096)

	var wg sync.WaitGroup
	results := make(chan bool, 128)
	for i := 0; i < 128; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tgt.Reserve(4096)
			results <- err == nil
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for ok := range results {
		if ok {
			succeeded++
		}
	}
	if succeeded != 64 {
		t.Errorf("expected exactly 64 successful reservations to exhaust capacity, got %d", succeeded)
	}
	if got := tgt.Remaining.Load(); got != 0 {
		t.Errorf("expected capacity fully committed, got remaining=%d", got)
	}
}

func TestFileTargetWriteReadAndFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ssd0.bin")
	tgt, err := NewFileTarget(ids.NewTargetID(1, path), path, DeviceSSD, 1<<20, 500, 200, []int64{4096})
	if err != nil {
		t.Fatalf("NewFileTarget failed: %v", err)
	}
	defer tgt.Close()

	bufs, err := tgt.Reserve(50)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	want := []byte("spilled to disk")
	if err := tgt.Write(bufs[0], want, 10); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got := make([]byte, len(want))
	if err := tgt.Read(bufs[0], got, 10); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("round trip mismatch: got %q, want %q", got, want)
	}
	if err := tgt.Flush(); err != nil {
		t.Errorf("Flush failed: %v", err)
	}
}

func TestSnapshotReflectsLiveRemaining(t *testing.T) {
	tgt := newRAM(t, 1<<20, 4096)
	if _, err := tgt.Reserve(4096); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	snap := tgt.Snapshot()
	if snap.Remaining != tgt.Remaining.Load() {
		t.Errorf("Snapshot.Remaining=%d does not match live counter %d", snap.Remaining, tgt.Remaining.Load())
	}
	if snap.Capacity != 1<<20 {
		t.Errorf("Snapshot.Capacity = %d, want %d", snap.Capacity, 1<<20)
	}
}
