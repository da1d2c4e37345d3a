// Package entity defines identities and attribute values for objects held in
// the graph store.
//
// An entity is identified by a Ref (kind plus opaque ID). The same entity may
// be represented by distinct in-memory instances in different contexts; the Ref
// is the only thing that is safe to pass between them.
//
// Attribute values are a closed set of types:
//   - Null, String, Int, Bool, List
//   - NO floats: integers are int64, so equality and canonical encoding stay
//     deterministic across store round trips
//
// Attributes are persisted as canonical JSON (sorted keys, NFC-normalized
// strings, no HTML escaping). Fingerprint hashes the canonical form with a
// domain prefix and is used for change detection.
//
// This package imports nothing internal.
package entity
