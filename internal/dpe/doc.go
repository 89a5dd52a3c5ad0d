// Package dpe implements Hermes's DataPlacementEngine: given a byte count
// and the current capacity/bandwidth snapshot of every target, it decides
// how many bytes go to each target and at what slab granularity
// (spec.md §4.3).
//
// Two policies are provided. RoundRobin greedily fills the
// highest-scoring targets first and is the default. MinimizeIOTime casts
// placement as a small linear program that balances bytes across targets
// so every target finishes transferring at roughly the same time. It first
// places the whole blob in one slab on the highest-scoring target that can
// hold it, and falls back to RoundRobin whenever the LP is infeasible or
// its slab-quantized split falls short of the blob size.
package dpe
