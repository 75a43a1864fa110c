// Package densemap provides DenseMap, a slot-indexed collection of values with
// stable identifiers.
//
// # Purpose
//
// Actors in the hub hold sets of peer handles (nodes of a chain, feeds
// watching a chain, feeds connected to the aggregator) that are inserted and
// removed constantly while being broadcast to. A plain slice would need
// compaction on removal and would renumber its elements; a map would lose the
// dense layout that makes broadcast a linear scan.
//
// # Characteristics
//
//   - **Stable IDs:** an ID returned by Add addresses the same value until it
//     is removed. Removing one entry never moves or renumbers another.
//   - **O(1) removal:** freed slots go onto a free list and are handed out
//     again by the next Add.
//   - **Restartable iteration:** All and Values return iterators that can be
//     ranged over any number of times; vacant slots are skipped.
//
// # Concurrency Model
//
// A DenseMap is not safe for concurrent use. Every instance is owned by
// exactly one actor goroutine, which is the only code that reads or writes it.
package densemap
