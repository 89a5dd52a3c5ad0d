// Package rpc implements Hermes's inter-node transport (spec.md §4.7): a
// small JSON-over-HTTP control plane (remote reservation, target
// registration, target polling, shutdown, health) shaped like the teacher's cmd/node
// "/control" handler, plus a streaming bulk-transfer service built on
// google.golang.org/grpc for buffer-sized reads and writes, where a typed
// binary stream earns its keep over ad-hoc JSON bodies.
//
// Client implements bufferpool.RemoteReserver and blobio.RemoteIO so the
// rest of Hermes never imports rpc directly, avoiding an import cycle.
package rpc
