// Package health periodically probes peer nodes' control planes and tracks
// which ones are currently reachable. BORG and the DPE do not consult it;
// its only consumer is the warning the Service logs when a peer goes dark.
package health

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dreamware/hermes/internal/rpc"
)

// NodeHealth is the current liveness record for one peer node.
type NodeHealth struct {
	NodeID           uint32
	Status           string // "healthy", "unhealthy", "unknown"
	LastCheck        time.Time
	LastHealthy      time.Time
	ConsecutiveFails int
}

// PeerHealthMonitor periodically calls Health on every peer an
// rpc.Directory knows about, marking a node unhealthy after maxFailures
// consecutive misses and healthy again on its next success.
type PeerHealthMonitor struct {
	dir       *rpc.Directory
	nodeIDs   []uint32
	checkFunc func(ctx context.Context, nodeID uint32) error

	onUnhealthy func(nodeID uint32)

	interval    time.Duration
	timeout     time.Duration
	maxFailures int

	mu    sync.RWMutex
	nodes map[uint32]*NodeHealth

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPeerHealthMonitor builds a monitor over dir's nodeIDs, probing each one
// every interval. maxFailures consecutive misses mark a node unhealthy.
func NewPeerHealthMonitor(dir *rpc.Directory, nodeIDs []uint32, interval time.Duration) *PeerHealthMonitor {
	m := &PeerHealthMonitor{
		dir:         dir,
		nodeIDs:     nodeIDs,
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: 3,
		nodes:       make(map[uint32]*NodeHealth),
	}
	m.checkFunc = m.defaultCheck
	return m
}

// SetOnUnhealthy installs a callback invoked (on its own goroutine) the
// moment a node crosses from healthy/unknown to unhealthy.
func (m *PeerHealthMonitor) SetOnUnhealthy(callback func(nodeID uint32)) {
	m.onUnhealthy = callback
}

// Start runs the check loop until ctx is cancelled or Stop is called. It
// performs one check pass immediately, then one every interval.
func (m *PeerHealthMonitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.checkAll(ctx)
		for {
			select {
			case <-ticker.C:
				m.checkAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the check loop and waits for it to exit.
func (m *PeerHealthMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *PeerHealthMonitor) checkAll(ctx context.Context) {
	for _, nodeID := range m.nodeIDs {
		m.checkNode(ctx, nodeID)
	}
}

func (m *PeerHealthMonitor) checkNode(ctx context.Context, nodeID uint32) {
	m.mu.Lock()
	rec, ok := m.nodes[nodeID]
	if !ok {
		rec = &NodeHealth{NodeID: nodeID, Status: "unknown", LastCheck: time.Now()}
		m.nodes[nodeID] = rec
	}
	m.mu.Unlock()

	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.checkFunc(checkCtx, nodeID)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	rec.LastCheck = time.Now()

	if err != nil {
		rec.ConsecutiveFails++
		if rec.ConsecutiveFails >= m.maxFailures {
			wasHealthy := rec.Status != "unhealthy"
			rec.Status = "unhealthy"
			if wasHealthy && m.onUnhealthy != nil {
				go m.onUnhealthy(nodeID)
			}
		}
		return
	}
	rec.Status = "healthy"
	rec.ConsecutiveFails = 0
	rec.LastHealthy = time.Now()
}

func (m *PeerHealthMonitor) defaultCheck(ctx context.Context, nodeID uint32) error {
	addr, err := m.dir.Lookup(nodeID)
	if err != nil {
		return err
	}
	client := rpc.NewControlClient(nil, "http://"+addr)
	if err := client.Health(ctx); err != nil {
		log.Printf("health: node %d at %s unreachable: %v", nodeID, addr, err)
		return err
	}
	return nil
}

// Snapshot returns the current health record for nodeID, or nil if it isn't
// monitored.
func (m *PeerHealthMonitor) Snapshot(nodeID uint32) *NodeHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.nodes[nodeID]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// IsHealthy reports whether nodeID's status is "healthy": it has passed a
// check and has not since missed maxFailures checks in a row (fewer misses
// leave it healthy). An unmonitored or never-passed node is reported
// unhealthy.
func (m *PeerHealthMonitor) IsHealthy(nodeID uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.nodes[nodeID]
	return ok && rec.Status == "healthy"
}
