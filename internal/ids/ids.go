package ids

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Identifier is the 128-bit value that names every blob, tag, and target in
// a Hermes cluster: {node_id, hash, unique}. NodeID identifies the home
// node where the authoritative record lives; Unique is locally monotonic on
// that node. The null identifier has all fields zero.
type Identifier struct {
	NodeID uint32
	Hash   uint32
	Unique uint64
}

// BlobID, TagID, and TargetID are structurally identical to Identifier but
// kept in distinct type-spaces (spec.md §3) so the compiler catches
// accidental cross-use.
type (
	BlobID   Identifier
	TagID    Identifier
	TargetID Identifier
)

// IsNull reports whether id is the all-zero null identifier.
func (id Identifier) IsNull() bool {
	return id.NodeID == 0 && id.Hash == 0 && id.Unique == 0
}

func (id BlobID) IsNull() bool   { return Identifier(id).IsNull() }
func (id TagID) IsNull() bool    { return Identifier(id).IsNull() }
func (id TargetID) IsNull() bool { return Identifier(id).IsNull() }

func (id BlobID) String() string   { return Identifier(id).String() }
func (id TagID) String() string    { return Identifier(id).String() }
func (id TargetID) String() string { return Identifier(id).String() }

func (id Identifier) String() string {
	return fmt.Sprintf("%08x-%08x-%016x", id.NodeID, id.Hash, id.Unique)
}

// uniqueCounters holds one monotonic counter per node id this process has
// generated identifiers for. In practice a single daemon only ever
// generates identifiers for its own node id, but tests and the in-process
// multi-node harness construct identifiers for several.
var uniqueCounters = newCounterTable()

type counterTable struct {
	mu       sync.Mutex
	counters map[uint32]*atomic.Uint64
}

func newCounterTable() *counterTable {
	return &counterTable{counters: make(map[uint32]*atomic.Uint64)}
}

func (ct *counterTable) next(nodeID uint32) uint64 {
	ct.mu.Lock()
	c, ok := ct.counters[nodeID]
	if !ok {
		c = &atomic.Uint64{}
		c.Store(seedCounter())
		ct.counters[nodeID] = c
	}
	ct.mu.Unlock()
	return c.Add(1)
}

// seedCounter produces a starting value for a fresh per-node counter. A
// random 48-bit seed (rather than starting at zero) keeps identifiers from
// two independently-booted processes sharing a node id from colliding
// immediately; crypto/rand failures (should not happen in practice) fall
// back to a UUID-derived seed.
func seedCounter() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err == nil {
		return binary.BigEndian.Uint64(buf[:]) >> 16
	}
	u := uuid.New()
	return binary.BigEndian.Uint64(u[:8]) >> 16
}

// HashKey computes the FNV-1a hash of a natural key, used both as the Hash
// field of a freshly minted Identifier and as the input to home-node
// selection. Grounded on the teacher's shard.OwnsKey key hashing.
func HashKey(parts ...string) uint32 {
	h := fnv.New32a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0}) // separator, avoids "ab","c" == "a","bc" collisions
	}
	return h.Sum32()
}

// HomeNode returns the index (0..numNodes) of the node that owns the given
// hash, per spec.md §3: "hash(tag_id, name) mod num_nodes".
func HomeNode(hash uint32, numNodes int) uint32 {
	if numNodes <= 0 {
		return 0
	}
	return hash % uint32(numNodes)
}

// New allocates a fresh Identifier homed on nodeID, deriving Hash from the
// natural key and Unique from nodeID's local counter.
func New(nodeID uint32, keyParts ...string) Identifier {
	return Identifier{
		NodeID: nodeID,
		Hash:   HashKey(keyParts...),
		Unique: uniqueCounters.next(nodeID),
	}
}

// NewBlobID, NewTagID, NewTargetID are typed convenience wrappers over New.
func NewBlobID(nodeID uint32, tag TagID, name string) BlobID {
	return BlobID(New(nodeID, tag.String(), name))
}

func NewTagID(nodeID uint32, name string) TagID {
	return TagID(New(nodeID, name))
}

func NewTargetID(nodeID uint32, devicePath string) TargetID {
	return TargetID(New(nodeID, devicePath))
}

// Marshal encodes an Identifier as 16 little-endian bytes: node_id, hash,
// unique (spec.md §6 wire format).
func (id Identifier) Marshal() [16]byte {
	var out [16]byte
	binary.LittleEndian.PutUint32(out[0:4], id.NodeID)
	binary.LittleEndian.PutUint32(out[4:8], id.Hash)
	binary.LittleEndian.PutUint64(out[8:16], id.Unique)
	return out
}

// Unmarshal decodes an Identifier from its 16-byte little-endian wire form.
func Unmarshal(b []byte) (Identifier, error) {
	if len(b) != 16 {
		return Identifier{}, fmt.Errorf("ids: wire identifier must be 16 bytes, got %d", len(b))
	}
	return Identifier{
		NodeID: binary.LittleEndian.Uint32(b[0:4]),
		Hash:   binary.LittleEndian.Uint32(b[4:8]),
		Unique: binary.LittleEndian.Uint64(b[8:16]),
	}, nil
}

func (id BlobID) Marshal() [16]byte   { return Identifier(id).Marshal() }
func (id TagID) Marshal() [16]byte    { return Identifier(id).Marshal() }
func (id TargetID) Marshal() [16]byte { return Identifier(id).Marshal() }
