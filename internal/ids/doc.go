// Package ids implements Hermes's 128-bit identifiers for blobs, tags, and
// targets, and the hashing used to pick each identifier's home node.
//
// # Overview
//
// Every named thing in Hermes — a blob, a tag (bucket), or a target — is
// addressed by a 128-bit Identifier{NodeID, Hash, Unique}. NodeID names the
// home node, the node that holds the authoritative metadata record; Hash is
// derived from the thing's natural key (tag+name for a blob, name for a
// tag, device path for a target) so that routing decisions never need to
// consult the metadata tables; Unique disambiguates identifiers that
// collide on Hash, and is handed out from a local monotonic counter so that
// concurrent allocation on one node never produces duplicates.
//
// # Type-spaces
//
// BlobID, TagID, and TargetID all share the same underlying 128-bit layout
// but are distinct Go types, so a BlobID can never be passed where a TagID
// is expected without an explicit conversion — the spec calls this out as
// "structurally identical but kept in distinct type-spaces" (see spec.md
// §3).
package ids
