// Package herrors implements Hermes's error-kind taxonomy (spec.md §7):
// NotFound, Conflict, NoSpace, Io, RpcTimeout, RpcUnreachable,
// RpcRemoteAbort, InvalidArgument, Cancelled, and Shutdown.
//
// Every error that crosses a component boundary in Hermes — MDM, DPE,
// BlobIO, BORG, the scheduler, the RPC transport — is either one of these
// kinds or wraps one, so that the scheduler's retry policy (§7) and the
// client API's error surface (§6) can dispatch on Kind without parsing
// error strings. This generalizes the teacher's single ErrKeyNotFound
// sentinel (internal/storage/store.go) into a richer, still-sentinel-like
// taxonomy: each Kind has a package-level sentinel usable with errors.Is,
// and New/Wrap attach an optional cause.
package herrors
