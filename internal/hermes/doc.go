// Package hermes threads every per-node component (metadata, buffer pool,
// placement, blob I/O, background organiser, scheduler, transport) into one
// Service and exposes the client-facing operations spec.md §6 describes:
// CreateTag, GetTagID, DestroyTag, Put, Get, Append, Destroy, Flush,
// CollectMetadataSnapshot, and RegisterTrait.
//
// # Collapsing singletons
//
// The teacher's coordinator and node processes each hold one package-level
// struct built by a constructor and threaded explicitly through its HTTP
// handlers; Service generalizes that into a single value a daemon builds
// once with New and tears down once with Shutdown, holding every component
// above as a field rather than scattering them across package-level
// variables.
//
// # Task routing
//
// Every mutating client operation runs as a scheduler.Task submitted to the
// node's Queue, lane-selected by hashing the (tag, name) or blob id the
// operation targets, so two mutations against the same blob never run
// concurrently (spec.md §4.6). Reads bypass the queue entirely: MDM and
// BlobIO are already safe for concurrent readers, and spec.md §4.6 allows a
// read to run on any lane.
package hermes
