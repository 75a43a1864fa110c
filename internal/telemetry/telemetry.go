// Package telemetry defines the contracts exchanged between producers, chain
// units, the aggregator, and feeds. Payloads are opaque to the aggregator; it
// only forwards them.
package telemetry

// NodeID identifies a node within its chain unit.
type NodeID int

// NodeDetails is the static description a node reports once on connect.
type NodeDetails struct {
	Name           string `json:"name"`
	Implementation string `json:"implementation"`
	Version        string `json:"version"`
	Validator      string `json:"validator,omitempty"`
	NetworkID      string `json:"network_id,omitempty"`
	StartupTime    string `json:"startup_time,omitempty"`
}

// NodeStats is the periodic state a node reports.
type NodeStats struct {
	Peers           int    `json:"peers"`
	TxCount         int    `json:"txcount"`
	BestHeight      uint64 `json:"height"`
	BestHash        string `json:"best"`
	FinalizedHeight uint64 `json:"finalized_height,omitempty"`
	FinalizedHash   string `json:"finalized_hash,omitempty"`
}

// NodeConn is the producer side of a node registration. The chain unit calls
// Initialize once the node has been assigned an ID, and Removed if it later
// drops the node on its own (stale pruning). Neither may block.
type NodeConn interface {
	Initialize(id NodeID, chain ChainRef)
	Removed(id NodeID)
}

// ChainRef lets a producer report to the unit that owns its node. Both
// methods are fire-and-forget and report false when the unit is gone.
type ChainRef interface {
	Update(stats NodeStats) bool
	Remove() bool
}

// Subscriber receives events for a chain or for the chain list.
type Subscriber interface {
	// Push hands ev over without blocking. It reports false once the
	// subscriber has gone away; holders drop it then.
	Push(ev Event) bool
}

// Kind names a feed event.
type Kind string

const (
	KindAddedChain   Kind = "added_chain"
	KindRemovedChain Kind = "removed_chain"
	KindSubscribed   Kind = "subscribed"
	KindAddedNode    Kind = "added_node"
	KindRemovedNode  Kind = "removed_node"
	KindNodeStats    Kind = "node_stats"
	KindBestBlock    Kind = "best_block"
)

// Event is one update delivered to subscribers.
type Event struct {
	Kind    Kind `json:"kind"`
	Payload any  `json:"payload"`
}

// ChainPayload accompanies chain list and subscription events.
type ChainPayload struct {
	Chain string `json:"chain"`
}

// NodePayload accompanies node events. Details is set on added_node, Stats on
// node_stats and on added_node when known.
type NodePayload struct {
	ID      NodeID       `json:"id"`
	Details *NodeDetails `json:"details,omitempty"`
	Stats   *NodeStats   `json:"stats,omitempty"`
}

// BlockPayload accompanies best_block events.
type BlockPayload struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}
