// Package nodeid defines node identifiers and the per-graph allocator that
// issues them.
//
// An identifier is a type tag followed by a sequence number ("Model3").
// Sequence numbers are unique among nodes sharing a tag and are handed out
// from a monotonic counter, so an identifier is never reissued while its
// graph is alive.
package nodeid
