// Package dataset models the Thread Operational Dataset.
//
// A Dataset carries the parameters that identify and secure one network:
// active timestamp, network key, network name, extended PAN ID, PAN ID,
// channel and channel mask. Every field is optional; an unset field means
// "leave the engine default". Resolved reports whether all fields required
// to enable Thread are present.
//
// Datasets round-trip bit-exactly through the MeshCoP TLV encoding used by
// Thread tooling (MarshalTLV / UnmarshalTLV), and through a hex form of
// that encoding (the "dataset hex" printed by most Thread CLIs).
package dataset
