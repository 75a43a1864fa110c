// Package node accepts producer connections. Each node dials the hub over
// WebSocket, announces itself with a system.connected message naming its
// chain, and then streams system.interval reports.
//
// The connection is the node's producer callback: the aggregator forwards it
// to the chain unit, which calls Initialize with a ChainRef. Until then
// interval reports are discarded. Closing the socket removes the node from
// its chain.
package node
