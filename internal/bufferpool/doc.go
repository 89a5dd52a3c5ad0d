// Package bufferpool implements Hermes's BufferPoolManager (BPM): the
// per-node owner of every local target's buffer allocator, plus the owning
// node id of each known remote target; it keeps no capacity or bandwidth
// figures for remote targets (spec.md §4.1, §4.2).
//
// BufferPool routes a reservation request to the local target's own
// Reserve when the target lives on this node, or to a RemoteReserver
// (backed by the rpc package's bulk transport) otherwise — mirroring the
// teacher's Node type, which routes a shard operation to either a local
// shard.Shard or a remote, coordinator-addressed node.
package bufferpool
