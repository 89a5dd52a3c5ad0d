package metadata

import (
	"sync"
	"testing"

	"github.com/dreamware/hermes/internal/config"
	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/ids"
	"github.com/dreamware/hermes/internal/target"
)

type fakeClock struct{ now Ticks }

func (c *fakeClock) Now() Ticks { return c.now }

func newTestMDM() *MDM {
	return New(1, config.DefaultScoreWeights(), &fakeClock{now: 1000})
}

func TestGetOrCreateBlobIDIsIdempotent(t *testing.T) {
	m := newTestMDM()
	tag := ids.NewTagID(1, "bucket-a")

	id1, created1 := m.GetOrCreateBlobID(tag, "file.bin")
	if !created1 {
		t.Fatal("expected first call to create a new id")
	}
	id2, created2 := m.GetOrCreateBlobID(tag, "file.bin")
	if created2 {
		t.Error("expected second call to reuse the existing id")
	}
	if id1 != id2 {
		t.Errorf("GetOrCreateBlobID returned different ids for the same name: %v vs %v", id1, id2)
	}
}

func TestCreateAndGetBlobRecord(t *testing.T) {
	m := newTestMDM()
	tag := ids.NewTagID(1, "bucket-a")
	id, _ := m.GetOrCreateBlobID(tag, "file.bin")
	buf := target.BufferInfo{TargetID: ids.NewTargetID(1, "mem0"), Size: 4096}

	info, err := m.CreateBlobRecord(id, tag, "file.bin", []target.BufferInfo{buf}, 100, 4096)
	if err != nil {
		t.Fatalf("CreateBlobRecord failed: %v", err)
	}
	if info.ModCount != 1 {
		t.Errorf("ModCount = %d, want 1 for a fresh record", info.ModCount)
	}

	got, err := m.GetBlob(id)
	if err != nil {
		t.Fatalf("GetBlob failed: %v", err)
	}
	if got.Name != "file.bin" || got.BlobSize != 100 {
		t.Errorf("GetBlob returned unexpected record: %+v", got)
	}
}

func TestCreateBlobRecordTwiceConflicts(t *testing.T) {
	m := newTestMDM()
	tag := ids.NewTagID(1, "bucket-a")
	id, _ := m.GetOrCreateBlobID(tag, "file.bin")

	if _, err := m.CreateBlobRecord(id, tag, "file.bin", nil, 0, 4096); err != nil {
		t.Fatalf("first CreateBlobRecord failed: %v", err)
	}
	if _, err := m.CreateBlobRecord(id, tag, "file.bin", nil, 0, 4096); !herrors.Is(err, herrors.Conflict) {
		t.Errorf("expected Conflict on duplicate CreateBlobRecord, got %v", err)
	}
}

func TestGetBlobNotFound(t *testing.T) {
	m := newTestMDM()
	_, err := m.GetBlob(ids.NewBlobID(1, ids.NewTagID(1, "x"), "missing"))
	if !herrors.Is(err, herrors.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestUpdateBlobAppliesMutationAndBumpsModCount(t *testing.T) {
	m := newTestMDM()
	tag := ids.NewTagID(1, "bucket-a")
	id, _ := m.GetOrCreateBlobID(tag, "file.bin")
	if _, err := m.CreateBlobRecord(id, tag, "file.bin", nil, 0, 4096); err != nil {
		t.Fatalf("CreateBlobRecord failed: %v", err)
	}

	updated, err := m.UpdateBlob(id, func(b *BlobInfo) error {
		b.BlobSize = 2048
		b.AccessFreq++
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateBlob failed: %v", err)
	}
	if updated.BlobSize != 2048 {
		t.Errorf("BlobSize = %d, want 2048", updated.BlobSize)
	}
	if updated.ModCount != 2 {
		t.Errorf("ModCount = %d, want 2 after one update", updated.ModCount)
	}
}

func TestTryUpdateBlobAbortsOnStaleModCount(t *testing.T) {
	m := newTestMDM()
	tag := ids.NewTagID(1, "bucket-a")
	id, _ := m.GetOrCreateBlobID(tag, "file.bin")
	info, err := m.CreateBlobRecord(id, tag, "file.bin", nil, 0, 4096)
	if err != nil {
		t.Fatalf("CreateBlobRecord failed: %v", err)
	}

	// Someone else updates the record between BORG's read and its attempt.
	if _, err := m.UpdateBlob(id, func(b *BlobInfo) error { b.AccessFreq++; return nil }); err != nil {
		t.Fatalf("concurrent UpdateBlob failed: %v", err)
	}

	_, err = m.TryUpdateBlob(id, info.ModCount, func(b *BlobInfo) error {
		b.BlobSize = 999
		return nil
	})
	if !herrors.Is(err, herrors.Conflict) {
		t.Errorf("expected Conflict when mod_count is stale, got %v", err)
	}

	current, _ := m.GetBlob(id)
	if current.BlobSize == 999 {
		t.Error("TryUpdateBlob must not apply its mutation when it aborts")
	}
}

func TestTryUpdateBlobSucceedsWithFreshModCount(t *testing.T) {
	m := newTestMDM()
	tag := ids.NewTagID(1, "bucket-a")
	id, _ := m.GetOrCreateBlobID(tag, "file.bin")
	info, err := m.CreateBlobRecord(id, tag, "file.bin", nil, 0, 4096)
	if err != nil {
		t.Fatalf("CreateBlobRecord failed: %v", err)
	}

	updated, err := m.TryUpdateBlob(id, info.ModCount, func(b *BlobInfo) error {
		b.BlobSize = 512
		return nil
	})
	if err != nil {
		t.Fatalf("TryUpdateBlob with fresh mod_count should succeed: %v", err)
	}
	if updated.BlobSize != 512 {
		t.Errorf("BlobSize = %d, want 512", updated.BlobSize)
	}
}

func TestDestroyBlobRemovesRecordAndNameIndex(t *testing.T) {
	m := newTestMDM()
	tag := ids.NewTagID(1, "bucket-a")
	id, _ := m.GetOrCreateBlobID(tag, "file.bin")
	if _, err := m.CreateBlobRecord(id, tag, "file.bin", nil, 0, 4096); err != nil {
		t.Fatalf("CreateBlobRecord failed: %v", err)
	}

	if _, err := m.DestroyBlob(id); err != nil {
		t.Fatalf("DestroyBlob failed: %v", err)
	}
	if _, err := m.GetBlob(id); !herrors.Is(err, herrors.NotFound) {
		t.Errorf("expected NotFound after DestroyBlob, got %v", err)
	}

	newID, created := m.GetOrCreateBlobID(tag, "file.bin")
	if !created {
		t.Error("expected name to be free for reuse after DestroyBlob")
	}
	if newID == id {
		t.Error("expected a freshly minted id, not the destroyed one")
	}
}

func TestTagAndUntagBlobMaintainBothSides(t *testing.T) {
	m := newTestMDM()
	tag := ids.NewTagID(1, "bucket-a")
	id, _ := m.GetOrCreateBlobID(tag, "file.bin")
	if _, err := m.CreateBlobRecord(id, tag, "file.bin", nil, 0, 4096); err != nil {
		t.Fatalf("CreateBlobRecord failed: %v", err)
	}
	if _, err := m.CreateTag(tag, "bucket-a", "owner", nil, 4096); err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}

	secondTag := ids.NewTagID(1, "bucket-b")
	if _, err := m.CreateTag(secondTag, "bucket-b", "owner", nil, 4096); err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}

	if err := m.TagBlob(id, secondTag); err != nil {
		t.Fatalf("TagBlob failed: %v", err)
	}
	blob, _ := m.GetBlob(id)
	if _, ok := blob.Tags[secondTag]; !ok {
		t.Error("expected blob to carry the new tag")
	}
	tagInfo, _ := m.GetTag(secondTag)
	if _, ok := tagInfo.Blobs[id]; !ok {
		t.Error("expected tag to carry the blob membership")
	}

	if err := m.UntagBlob(id, secondTag); err != nil {
		t.Fatalf("UntagBlob failed: %v", err)
	}
	blob, _ = m.GetBlob(id)
	if _, ok := blob.Tags[secondTag]; ok {
		t.Error("expected tag removed from blob after UntagBlob")
	}
	tagInfo, _ = m.GetTag(secondTag)
	if _, ok := tagInfo.Blobs[id]; ok {
		t.Error("expected blob membership removed from tag after UntagBlob")
	}
}

func TestDestroyTagRefusesWhileItOwnsBlobs(t *testing.T) {
	m := newTestMDM()
	tag := ids.NewTagID(1, "bucket-a")
	id, _ := m.GetOrCreateBlobID(tag, "file.bin")
	if _, err := m.CreateBlobRecord(id, tag, "file.bin", nil, 0, 4096); err != nil {
		t.Fatalf("CreateBlobRecord failed: %v", err)
	}
	if _, err := m.CreateTag(tag, "bucket-a", "owner", nil, 4096); err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}
	if err := m.TagBlob(id, tag); err != nil {
		t.Fatalf("TagBlob failed: %v", err)
	}

	if err := m.DestroyTag(tag); !herrors.Is(err, herrors.InvalidArgument) {
		t.Errorf("expected InvalidArgument while tag owns blobs, got %v", err)
	}

	if err := m.UntagBlob(id, tag); err != nil {
		t.Fatalf("UntagBlob failed: %v", err)
	}
	if err := m.DestroyTag(tag); err != nil {
		t.Errorf("DestroyTag should succeed once the tag owns no blobs: %v", err)
	}
}

func TestGetTagIDResolvesCreatedTag(t *testing.T) {
	m := newTestMDM()
	tag := ids.NewTagID(1, "bucket-a")
	if _, err := m.CreateTag(tag, "bucket-a", "owner", []string{"posix"}, 4096); err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}
	got, ok := m.GetTagID("bucket-a")
	if !ok || got != tag {
		t.Errorf("GetTagID = (%v, %v), want (%v, true)", got, ok, tag)
	}
}

func TestRegisterAndPollTargetMetadata(t *testing.T) {
	m := newTestMDM()
	tgt, err := target.NewRAMTarget(ids.NewTargetID(1, "mem0"), 1<<20, 10000, 1, []int64{4096})
	if err != nil {
		t.Fatalf("NewRAMTarget failed: %v", err)
	}
	m.RegisterTarget(tgt)

	stats, err := m.PollTargetMetadata(tgt.ID)
	if err != nil {
		t.Fatalf("PollTargetMetadata failed: %v", err)
	}
	if stats.Capacity != 1<<20 {
		t.Errorf("Capacity = %d, want %d", stats.Capacity, int64(1<<20))
	}
}

func TestHistogramTracksLiveBlobCount(t *testing.T) {
	m := newTestMDM()
	tag := ids.NewTagID(1, "bucket-a")

	const n = 20
	for i := 0; i < n; i++ {
		name := string(rune('a' + i))
		id, _ := m.GetOrCreateBlobID(tag, name)
		if _, err := m.CreateBlobRecord(id, tag, name, nil, 0, 4096); err != nil {
			t.Fatalf("CreateBlobRecord failed: %v", err)
		}
	}
	if got := m.Histogram.Total(); got != n {
		t.Errorf("Histogram.Total() = %d, want %d", got, n)
	}

	id, _ := m.GetOrCreateBlobID(tag, "a")
	if _, err := m.DestroyBlob(id); err != nil {
		t.Fatalf("DestroyBlob failed: %v", err)
	}
	if got := m.Histogram.Total(); got != n-1 {
		t.Errorf("Histogram.Total() after destroy = %d, want %d", got, n-1)
	}
}

func TestConcurrentUpdateBlobNeverLosesAnIncrement(t *testing.T) {
	m := newTestMDM()
	tag := ids.NewTagID(1, "bucket-a")
	id, _ := m.GetOrCreateBlobID(tag, "counter")
	if _, err := m.CreateBlobRecord(id, tag, "counter", nil, 0, 4096); err != nil {
		t.Fatalf("CreateBlobRecord failed: %v", err)
	}

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := m.UpdateBlob(id, func(b *BlobInfo) error {
					b.AccessFreq++
					return nil
				})
				if err == nil {
					return
				}
			}
		}()
	}
	wg.Wait()

	final, err := m.GetBlob(id)
	if err != nil {
		t.Fatalf("GetBlob failed: %v", err)
	}
	if final.AccessFreq != writers+1 {
		t.Errorf("AccessFreq = %d, want %d (initial 1 plus %d increments)", final.AccessFreq, writers+1, writers)
	}
}
