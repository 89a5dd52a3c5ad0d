package metadata

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreamware/hermes/internal/config"
	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/ids"
	"github.com/dreamware/hermes/internal/target"
)

// numBuckets stripes the blob and tag tables to bound lock contention
// independently of key cardinality (doc.go).
const numBuckets = 64

// maxUpdateRetries bounds MDM.UpdateBlob's optimistic-concurrency retry
// loop. A writer that loses maxUpdateRetries consecutive CompareAndSwaps is
// almost certainly racing a pathological number of concurrent writers to
// the same blob, which spec.md §7 treats as a Conflict rather than livelock.
const maxUpdateRetries = 8

type blobBucket struct {
	mu      sync.RWMutex
	records map[ids.BlobID]*atomic.Pointer[BlobInfo]
}

type tagBucket struct {
	mu      sync.RWMutex
	records map[ids.TagID]*atomic.Pointer[TagInfo]
}

type nameKey struct {
	tag  ids.TagID
	name string
}

// MDM is the MetadataManager: one node's authoritative tables of blob, tag,
// and target records (spec.md §4.2).
type MDM struct {
	nodeID  uint32
	weights config.ScoreWeights
	clock   Clock

	blobBuckets [numBuckets]blobBucket
	tagBuckets  [numBuckets]tagBucket

	nameMu sync.RWMutex
	names  map[nameKey]ids.BlobID

	tagNameMu sync.RWMutex
	tagNames  map[string]ids.TagID

	targetsMu sync.RWMutex
	targets   map[ids.TargetID]*target.Target

	// Histogram tracks the live score distribution so BORG can find
	// promote/demote candidates via Percentile/Quantile (spec.md §4.5).
	Histogram *ScoreHistogram
}

// New constructs an empty MDM for nodeID using weights for score
// computation. A nil clock defaults to SystemClock.
func New(nodeID uint32, weights config.ScoreWeights, clock Clock) *MDM {
	if clock == nil {
		clock = SystemClock
	}
	m := &MDM{
		nodeID:   nodeID,
		weights:  weights,
		clock:    clock,
		names:    make(map[nameKey]ids.BlobID),
		tagNames: make(map[string]ids.TagID),
		targets:  make(map[ids.TargetID]*target.Target),

		Histogram: NewScoreHistogram(DefaultHistogramBins),
	}
	for i := range m.blobBuckets {
		m.blobBuckets[i].records = make(map[ids.BlobID]*atomic.Pointer[BlobInfo])
	}
	for i := range m.tagBuckets {
		m.tagBuckets[i].records = make(map[ids.TagID]*atomic.Pointer[TagInfo])
	}
	return m
}

// Now exposes the MDM's configured clock so other packages (blobio, borg)
// stamp LastAccess consistently with the Ticks values computeScore itself
// reads against, instead of each maintaining a clock of its own.
func (m *MDM) Now() Ticks { return m.clock.Now() }

func blobBucketIndex(id ids.BlobID) int { return int(id.Hash % numBuckets) }
func tagBucketIndex(id ids.TagID) int   { return int(id.Hash % numBuckets) }

func (m *MDM) blobBucketFor(id ids.BlobID) *blobBucket { return &m.blobBuckets[blobBucketIndex(id)] }
func (m *MDM) tagBucketFor(id ids.TagID) *tagBucket     { return &m.tagBuckets[tagBucketIndex(id)] }

// GetOrCreateBlobID resolves (tag, name) to the BlobID that owns it,
// minting a fresh one homed on this node if the pair hasn't been seen
// before (spec.md §4.2: "PutBlob resolves name to blob_id, creating one on
// first write"). The returned bool is true when a new id was minted.
func (m *MDM) GetOrCreateBlobID(tag ids.TagID, name string) (ids.BlobID, bool) {
	key := nameKey{tag: tag, name: name}

	m.nameMu.RLock()
	if id, ok := m.names[key]; ok {
		m.nameMu.RUnlock()
		return id, false
	}
	m.nameMu.RUnlock()

	m.nameMu.Lock()
	defer m.nameMu.Unlock()
	if id, ok := m.names[key]; ok {
		return id, false
	}
	id := ids.NewBlobID(m.nodeID, tag, name)
	m.names[key] = id
	return id, true
}

// CreateBlobRecord publishes the first version of a blob record. It fails
// with a Conflict error if id already has a record, which should not
// happen for an id minted by GetOrCreateBlobID but is checked defensively
// since the caller may be replaying an RPC.
func (m *MDM) CreateBlobRecord(id ids.BlobID, tag ids.TagID, name string, buffers []target.BufferInfo, blobSize, maxBlobSize int64) (*BlobInfo, error) {
	now := m.clock.Now()
	info := &BlobInfo{
		BlobID:      id,
		TagID:       tag,
		Name:        name,
		Buffers:     append([]target.BufferInfo(nil), buffers...),
		Tags:        map[ids.TagID]struct{}{tag: {}},
		BlobSize:    blobSize,
		MaxBlobSize: maxBlobSize,
		AccessFreq:  1,
		LastAccess:  now,
		ModCount:    1,
	}
	info.Score = m.computeScore(info.AccessFreq, info.LastAccess, info.BlobSize, info.MaxBlobSize)

	bucket := m.blobBucketFor(id)
	bucket.mu.Lock()
	if _, exists := bucket.records[id]; exists {
		bucket.mu.Unlock()
		return nil, herrors.New(herrors.Conflict, "blob record already exists")
	}
	ptr := &atomic.Pointer[BlobInfo]{}
	ptr.Store(info)
	bucket.records[id] = ptr
	bucket.mu.Unlock()

	m.Histogram.Increment(info.Score)
	return info.clone(), nil
}

// GetBlob returns the current record for id, or a NotFound error.
func (m *MDM) GetBlob(id ids.BlobID) (*BlobInfo, error) {
	bucket := m.blobBucketFor(id)
	bucket.mu.RLock()
	ptr, ok := bucket.records[id]
	bucket.mu.RUnlock()
	if !ok {
		return nil, herrors.New(herrors.NotFound, "blob not found")
	}
	cur := ptr.Load()
	if cur == nil {
		return nil, herrors.New(herrors.NotFound, "blob not found")
	}
	return cur.clone(), nil
}

// UpdateBlob applies mutate to the current record and publishes the result
// via CompareAndSwap, retrying up to maxUpdateRetries times if another
// writer wins the race. mutate receives a private clone it may modify
// freely; UpdateBlob takes care of bumping ModCount and rebucketing the
// score histogram if the score changed.
func (m *MDM) UpdateBlob(id ids.BlobID, mutate func(*BlobInfo) error) (*BlobInfo, error) {
	bucket := m.blobBucketFor(id)
	bucket.mu.RLock()
	ptr, ok := bucket.records[id]
	bucket.mu.RUnlock()
	if !ok {
		return nil, herrors.New(herrors.NotFound, "blob not found")
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		cur := ptr.Load()
		if cur == nil {
			return nil, herrors.New(herrors.NotFound, "blob not found")
		}
		next := cur.clone()
		if err := mutate(next); err != nil {
			return nil, err
		}
		next.ModCount = cur.ModCount + 1
		next.Score = m.computeScore(next.AccessFreq, next.LastAccess, next.BlobSize, next.MaxBlobSize)

		if ptr.CompareAndSwap(cur, next) {
			if next.Score != cur.Score {
				m.Histogram.Rebucket(cur.Score, next.Score)
			}
			return next.clone(), nil
		}
	}
	return nil, herrors.New(herrors.Conflict, "blob update lost too many races")
}

// TryUpdateBlob is the single-shot counterpart BORG uses (spec.md §4.5 step
// 4): it fails immediately with a Conflict error, rather than retrying, if
// the record's ModCount no longer matches expectedModCount — signalling
// that BORG should abandon this move and reconsider on its next tick
// instead of retrying in a loop that could starve the blob's normal
// writers.
func (m *MDM) TryUpdateBlob(id ids.BlobID, expectedModCount uint64, mutate func(*BlobInfo) error) (*BlobInfo, error) {
	bucket := m.blobBucketFor(id)
	bucket.mu.RLock()
	ptr, ok := bucket.records[id]
	bucket.mu.RUnlock()
	if !ok {
		return nil, herrors.New(herrors.NotFound, "blob not found")
	}

	cur := ptr.Load()
	if cur == nil {
		return nil, herrors.New(herrors.NotFound, "blob not found")
	}
	if cur.ModCount != expectedModCount {
		return nil, herrors.New(herrors.Conflict, "blob mod_count changed since read")
	}
	next := cur.clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ModCount = cur.ModCount + 1
	next.Score = m.computeScore(next.AccessFreq, next.LastAccess, next.BlobSize, next.MaxBlobSize)

	if !ptr.CompareAndSwap(cur, next) {
		return nil, herrors.New(herrors.Conflict, "blob mod_count changed since read")
	}
	if next.Score != cur.Score {
		m.Histogram.Rebucket(cur.Score, next.Score)
	}
	return next.clone(), nil
}

// DestroyBlob removes a blob's record and name-index entry, then drops the
// blob from the membership set of every tag it belonged to. A tag that no
// longer exists is skipped.
func (m *MDM) DestroyBlob(id ids.BlobID) (*BlobInfo, error) {
	bucket := m.blobBucketFor(id)
	bucket.mu.Lock()
	ptr, ok := bucket.records[id]
	if ok {
		delete(bucket.records, id)
	}
	bucket.mu.Unlock()
	if !ok {
		return nil, herrors.New(herrors.NotFound, "blob not found")
	}
	old := ptr.Load()
	if old == nil {
		return nil, herrors.New(herrors.NotFound, "blob not found")
	}

	m.nameMu.Lock()
	delete(m.names, nameKey{tag: old.TagID, name: old.Name})
	m.nameMu.Unlock()

	m.Histogram.Decrement(old.Score)

	for tagID := range old.Tags {
		_, _ = m.updateTag(tagID, func(ti *TagInfo) error {
			delete(ti.Blobs, id)
			return nil
		})
	}
	return old.clone(), nil
}

// TagBlob adds tagID to blobID's tag set and blobID to tagID's blob set.
// Lock order is always blob-record-then-tag-record (spec.md §5's lock
// ordering rule), regardless of whether this is called from TagBlob or
// UntagBlob, so two goroutines tagging/untagging the same pair from
// opposite directions can never deadlock.
func (m *MDM) TagBlob(blobID ids.BlobID, tagID ids.TagID) error {
	if _, err := m.UpdateBlob(blobID, func(b *BlobInfo) error {
		b.Tags[tagID] = struct{}{}
		return nil
	}); err != nil {
		return err
	}
	_, err := m.updateTag(tagID, func(t *TagInfo) error {
		t.Blobs[blobID] = struct{}{}
		return nil
	})
	return err
}

// UntagBlob removes tagID from blobID's tag set and blobID from tagID's
// blob set, in the same blob-before-tag order TagBlob uses.
func (m *MDM) UntagBlob(blobID ids.BlobID, tagID ids.TagID) error {
	if _, err := m.UpdateBlob(blobID, func(b *BlobInfo) error {
		delete(b.Tags, tagID)
		return nil
	}); err != nil {
		return err
	}
	_, err := m.updateTag(tagID, func(t *TagInfo) error {
		delete(t.Blobs, blobID)
		return nil
	})
	return err
}

// PollBlobMetadata is GetBlob under the name spec.md §4.2 gives the
// client-facing metadata poll used for monitoring/debugging tools.
func (m *MDM) PollBlobMetadata(id ids.BlobID) (*BlobInfo, error) { return m.GetBlob(id) }

// PollTagMetadata is GetTag under the client-facing poll name.
func (m *MDM) PollTagMetadata(id ids.TagID) (*TagInfo, error) { return m.GetTag(id) }

// PollTargetMetadata returns a point-in-time capacity/bandwidth snapshot
// for a registered target.
func (m *MDM) PollTargetMetadata(id ids.TargetID) (target.Stats, error) {
	m.targetsMu.RLock()
	t, ok := m.targets[id]
	m.targetsMu.RUnlock()
	if !ok {
		return target.Stats{}, herrors.New(herrors.NotFound, "target not found")
	}
	return t.Snapshot(), nil
}

// CreateTag publishes a new TagInfo record, failing with Conflict if one
// already exists for id or name is already bound to a different tag.
func (m *MDM) CreateTag(id ids.TagID, name, owner string, traits []string, pageSize int64) (*TagInfo, error) {
	m.tagNameMu.Lock()
	if existing, ok := m.tagNames[name]; ok && existing != id {
		m.tagNameMu.Unlock()
		return nil, herrors.New(herrors.Conflict, "tag name already bound to a different tag_id")
	}
	m.tagNames[name] = id
	m.tagNameMu.Unlock()

	info := &TagInfo{
		TagID:    id,
		Name:     name,
		Owner:    owner,
		Traits:   append([]string(nil), traits...),
		PageSize: pageSize,
		Blobs:    make(map[ids.BlobID]struct{}),
	}

	bucket := m.tagBucketFor(id)
	bucket.mu.Lock()
	if _, exists := bucket.records[id]; exists {
		bucket.mu.Unlock()
		return nil, herrors.New(herrors.Conflict, "tag record already exists")
	}
	ptr := &atomic.Pointer[TagInfo]{}
	ptr.Store(info)
	bucket.records[id] = ptr
	bucket.mu.Unlock()

	return info.clone(), nil
}

// GetTagID resolves a tag name to its TagID.
func (m *MDM) GetTagID(name string) (ids.TagID, bool) {
	m.tagNameMu.RLock()
	defer m.tagNameMu.RUnlock()
	id, ok := m.tagNames[name]
	return id, ok
}

// GetTag returns the current record for id, or a NotFound error.
func (m *MDM) GetTag(id ids.TagID) (*TagInfo, error) {
	bucket := m.tagBucketFor(id)
	bucket.mu.RLock()
	ptr, ok := bucket.records[id]
	bucket.mu.RUnlock()
	if !ok {
		return nil, herrors.New(herrors.NotFound, "tag not found")
	}
	cur := ptr.Load()
	if cur == nil {
		return nil, herrors.New(herrors.NotFound, "tag not found")
	}
	return cur.clone(), nil
}

// DestroyTag removes a tag's record. It refuses to destroy a tag that
// still owns blobs, since dropping those blobs' only name-index entry
// without an explicit DestroyBlob would orphan their buffers.
func (m *MDM) DestroyTag(id ids.TagID) error {
	bucket := m.tagBucketFor(id)
	bucket.mu.Lock()
	ptr, ok := bucket.records[id]
	if !ok {
		bucket.mu.Unlock()
		return herrors.New(herrors.NotFound, "tag not found")
	}
	cur := ptr.Load()
	if cur != nil && len(cur.Blobs) > 0 {
		bucket.mu.Unlock()
		return herrors.New(herrors.InvalidArgument, "tag still owns blobs")
	}
	delete(bucket.records, id)
	bucket.mu.Unlock()

	m.tagNameMu.Lock()
	if cur != nil {
		delete(m.tagNames, cur.Name)
	}
	m.tagNameMu.Unlock()
	return nil
}

// updateTag is TagInfo's analogue of UpdateBlob: a bounded CAS retry loop.
// Unexported because every tag-table caller within this package already
// holds the blob-before-tag ordering contract; it is not exposed as a
// general-purpose mutator to keep that invariant centralized in
// TagBlob/UntagBlob.
func (m *MDM) updateTag(id ids.TagID, mutate func(*TagInfo) error) (*TagInfo, error) {
	bucket := m.tagBucketFor(id)
	bucket.mu.RLock()
	ptr, ok := bucket.records[id]
	bucket.mu.RUnlock()
	if !ok {
		return nil, herrors.New(herrors.NotFound, "tag not found")
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		cur := ptr.Load()
		if cur == nil {
			return nil, herrors.New(herrors.NotFound, "tag not found")
		}
		next := cur.clone()
		if err := mutate(next); err != nil {
			return nil, err
		}
		if ptr.CompareAndSwap(cur, next) {
			return next.clone(), nil
		}
	}
	return nil, herrors.New(herrors.Conflict, "tag update lost too many races")
}

// RegisterTarget adds t to the set of targets this MDM can place buffers
// on and poll stats from.
func (m *MDM) RegisterTarget(t *target.Target) {
	m.targetsMu.Lock()
	defer m.targetsMu.Unlock()
	m.targets[t.ID] = t
}

// GetTarget returns a registered target by id.
func (m *MDM) GetTarget(id ids.TargetID) (*target.Target, bool) {
	m.targetsMu.RLock()
	defer m.targetsMu.RUnlock()
	t, ok := m.targets[id]
	return t, ok
}

// ListBlobIDs returns every live blob id across all buckets, in no
// particular order. BORG uses this to stream candidates for its
// promote/demote scan (spec.md §4.5); callers that need a stable
// iteration order should sort the result themselves.
func (m *MDM) ListBlobIDs() []ids.BlobID {
	var out []ids.BlobID
	for i := range m.blobBuckets {
		bucket := &m.blobBuckets[i]
		bucket.mu.RLock()
		for id := range bucket.records {
			out = append(out, id)
		}
		bucket.mu.RUnlock()
	}
	return out
}

// ListTagIDs returns every live tag id across all buckets, in no
// particular order, used by CollectMetadataSnapshot (spec.md §6).
func (m *MDM) ListTagIDs() []ids.TagID {
	var out []ids.TagID
	for i := range m.tagBuckets {
		bucket := &m.tagBuckets[i]
		bucket.mu.RLock()
		for id := range bucket.records {
			out = append(out, id)
		}
		bucket.mu.RUnlock()
	}
	return out
}

// AddTagTrait appends traitName to tagID's trait list if not already
// present, the effect of the client API's register_trait operation
// (spec.md §6, §9's tagged-variant trait design).
func (m *MDM) AddTagTrait(tagID ids.TagID, traitName string) (*TagInfo, error) {
	return m.updateTag(tagID, func(t *TagInfo) error {
		for _, tr := range t.Traits {
			if tr == traitName {
				return nil
			}
		}
		t.Traits = append(t.Traits, traitName)
		return nil
	})
}

// OverrideScore forcibly sets a blob's score outside the computeScore
// formula, the effect of Put's optional score_override parameter (spec.md
// §6). Unlike UpdateBlob it does not recompute the score from access
// stats afterward, since the caller is explicitly asserting a value.
func (m *MDM) OverrideScore(id ids.BlobID, score float64) (*BlobInfo, error) {
	bucket := m.blobBucketFor(id)
	bucket.mu.RLock()
	ptr, ok := bucket.records[id]
	bucket.mu.RUnlock()
	if !ok {
		return nil, herrors.New(herrors.NotFound, "blob not found")
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		cur := ptr.Load()
		if cur == nil {
			return nil, herrors.New(herrors.NotFound, "blob not found")
		}
		next := cur.clone()
		next.Score = score
		next.ModCount = cur.ModCount + 1
		if ptr.CompareAndSwap(cur, next) {
			if next.Score != cur.Score {
				m.Histogram.Rebucket(cur.Score, next.Score)
			}
			return next.clone(), nil
		}
	}
	return nil, herrors.New(herrors.Conflict, "blob update lost too many races")
}

// ListTargets returns a snapshot of every registered target, in no
// particular order; the DPE sorts it by whatever criteria its policy
// needs.
func (m *MDM) ListTargets() []*target.Target {
	m.targetsMu.RLock()
	defer m.targetsMu.RUnlock()
	out := make([]*target.Target, 0, len(m.targets))
	for _, t := range m.targets {
		out = append(out, t)
	}
	return out
}

// computeScore implements spec.md §4.2's scoring formula: score =
// w_f*freq_score + w_r*recency + w_s*size_pressure, where recency decays
// exponentially with time-since-last-access over the configured tau, and
// freq_score saturates rather than growing unbounded so a handful of very
// hot blobs can't permanently dominate the histogram's top bin (DESIGN.md
// open-question decision).
func (m *MDM) computeScore(accessFreq uint32, lastAccess Ticks, blobSize, maxBlobSize int64) float64 {
	now := m.clock.Now()
	dt := float64(now-lastAccess) / float64(time.Second)
	if dt < 0 {
		dt = 0
	}
	tau := m.weights.Tau.Seconds()
	if tau <= 0 {
		tau = 1
	}
	recency := math.Exp(-dt / tau)

	freqScore := float64(accessFreq) / float64(accessFreq+1)

	var sizePressure float64
	if maxBlobSize > 0 {
		sizePressure = float64(blobSize) / float64(maxBlobSize)
		if sizePressure > 1 {
			sizePressure = 1
		}
	}

	return m.weights.Frequency*freqScore + m.weights.Recency*recency + m.weights.Size*sizePressure
}
