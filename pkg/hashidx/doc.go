// Package hashidx provides a chained hash table with explicit resize control.
//
// Unlike the built-in map, the table exposes its capacity and keeps its
// load factor inside a fixed band, growing and shrinking by powers of two.
// Iteration order is deterministic for a given internal state, which the
// storage engine relies on when sweeping expired entries.
package hashidx
