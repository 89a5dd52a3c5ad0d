package bufferpool

import (
	"context"
	"sync"

	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/ids"
	"github.com/dreamware/hermes/internal/metrics"
	"github.com/dreamware/hermes/internal/target"
)

// RemoteReserver issues a bulk-RPC reservation against a target that does
// not live on this node. The rpc package's client satisfies this
// interface; bufferpool depends only on the narrow seam it needs, so it
// never imports rpc directly and there is no import cycle.
type RemoteReserver interface {
	ReserveRemote(ctx context.Context, nodeID uint32, targetID ids.TargetID, wantBytes int64) ([]target.BufferInfo, error)
}

// BufferPool owns every *target.Target local to this node and routes
// reservations for remote targets through a RemoteReserver.
type BufferPool struct {
	nodeID uint32
	remote RemoteReserver
	m      *metrics.Registry

	mu      sync.RWMutex
	local   map[ids.TargetID]*target.Target
	ownerOf map[ids.TargetID]uint32 // node id owning each known target, local or remote
}

// New constructs an empty BufferPool for nodeID. remote and m may be nil
// (tests commonly run single-node, metrics-free).
func New(nodeID uint32, remote RemoteReserver, m *metrics.Registry) *BufferPool {
	return &BufferPool{
		nodeID:  nodeID,
		remote:  remote,
		m:       m,
		local:   make(map[ids.TargetID]*target.Target),
		ownerOf: make(map[ids.TargetID]uint32),
	}
}

// AddLocal registers a target owned by this node.
func (p *BufferPool) AddLocal(t *target.Target) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local[t.ID] = t
	p.ownerOf[t.ID] = p.nodeID
}

// AddRemote records that targetID is owned by a different node, so
// Reserve knows to route through RemoteReserver instead of failing with
// NotFound.
func (p *BufferPool) AddRemote(targetID ids.TargetID, ownerNodeID uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ownerOf[targetID] = ownerNodeID
}

// Reserve allocates wantBytes from targetID, local or remote.
func (p *BufferPool) Reserve(ctx context.Context, targetID ids.TargetID, wantBytes int64) ([]target.BufferInfo, error) {
	p.mu.RLock()
	t, isLocal := p.local[targetID]
	owner, known := p.ownerOf[targetID]
	p.mu.RUnlock()

	if !known {
		return nil, herrors.New(herrors.NotFound, "bufferpool: unknown target")
	}

	if isLocal {
		bufs, err := t.Reserve(wantBytes)
		p.recordReservation(targetID, err)
		return bufs, err
	}

	if p.remote == nil {
		return nil, herrors.New(herrors.RpcUnreachable, "bufferpool: no remote reserver configured")
	}
	bufs, err := p.remote.ReserveRemote(ctx, owner, targetID, wantBytes)
	p.recordReservation(targetID, err)
	return bufs, err
}

// Free returns buf to its owning target's free list. Only local targets are
// handled: a buffer on a remote target is rejected with InvalidArgument, and
// this node never frees it on the owner's side.
func (p *BufferPool) Free(buf target.BufferInfo) error {
	p.mu.RLock()
	t, ok := p.local[buf.TargetID]
	p.mu.RUnlock()
	if !ok {
		return herrors.New(herrors.InvalidArgument, "bufferpool: Free called on a non-local target")
	}
	t.Free(buf)
	return nil
}

func (p *BufferPool) recordReservation(targetID ids.TargetID, err error) {
	if p.m == nil {
		return
	}
	label := targetID.String()
	p.m.BPMReservations.WithLabelValues(label).Inc()
	if err == nil {
		if t, ok := p.LocalTarget(targetID); ok {
			p.m.BPMRemainingBytes.WithLabelValues(label).Set(float64(t.Remaining.Load()))
		}
	}
}

// LocalTarget returns the local *target.Target for id, if any.
func (p *BufferPool) LocalTarget(id ids.TargetID) (*target.Target, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.local[id]
	return t, ok
}

// OwnerOf returns the node id that owns id, if known. BlobIO uses this to
// decide whether a buffer read/write goes straight to the local target or
// through the remote transport.
func (p *BufferPool) OwnerOf(id ids.TargetID) (uint32, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	owner, ok := p.ownerOf[id]
	return owner, ok
}

// Capacity returns a Stats snapshot of every local target, for the DPE.
func (p *BufferPool) Capacity() []target.Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]target.Stats, 0, len(p.local))
	for _, t := range p.local {
		out = append(out, t.Snapshot())
	}
	return out
}

// Bandwidth is an alias of Capacity: target.Stats already carries
// BandwidthMBps, so the DPE's bandwidth-aware MinimizeIOTime policy reads
// the same snapshot Capacity produces.
func (p *BufferPool) Bandwidth() []target.Stats { return p.Capacity() }
