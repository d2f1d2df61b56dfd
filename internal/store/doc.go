// Package store implements the BlinkDB storage engine.
//
// The engine owns the key-value state: a hash index over entries, an LRU
// recency tracker, and a byte counter that it keeps under the configured
// memory budget by evicting least-recently-used keys. Entries may carry a
// TTL; expired entries are removed lazily on read and by a background
// sweeper that scans the index at a fixed cadence.
//
// All public operations, the sweeper included, serialize on one mutex, so
// the engine may be shared between the event loop and the sweeper
// goroutine.
package store
