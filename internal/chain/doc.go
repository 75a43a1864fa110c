// Package chain implements the per-chain unit: one actor per chain name that
// owns the chain's nodes and the feeds watching it.
//
// A unit is started by the aggregator and retires on its own. When its last
// node leaves (disconnect or stale pruning) it closes its mailbox, sends
// removed_chain to its feeds and DropChain to its Parent, then hands any
// registrations that raced with its retirement back to the Parent so they
// land on a fresh unit.
package chain
