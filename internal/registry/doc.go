// Package registry holds the declarative subsystem catalog.
//
// The catalog is authored in HCL: one subsystem block per engine concern
// (hashing, TLS, threading, ...), each listing the variants that can
// provide it, the predicate under which a variant applies, and the
// build-time symbols it activates. Conflict blocks declare pairs of
// selections that must never be active together.
//
// Loading parses and decodes the catalog, then validates it as a whole:
// predicates must be satisfiable, same-priority variants must be provably
// disjoint, conflict endpoints must exist, and no symbol may be claimed
// twice. Every defect is collected and reported in one error so a broken
// catalog is fixed in one round trip. A loaded Registry is immutable and
// safe for concurrent readers.
package registry
