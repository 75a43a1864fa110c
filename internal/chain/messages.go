package chain

import (
	"github.com/specialistvlad/telemetryhub/internal/actor"
	"github.com/specialistvlad/telemetryhub/internal/telemetry"
)

// Message is anything a chain unit accepts.
type Message interface {
	chainMessage()
}

// AddNode registers a node. Conn is called back with the node's ID.
type AddNode struct {
	Details telemetry.NodeDetails
	Conn    telemetry.NodeConn
}

// UpdateNode carries fresh stats for a node. Conn must be the connection the
// node was registered with, otherwise the update is ignored.
type UpdateNode struct {
	ID    telemetry.NodeID
	Conn  telemetry.NodeConn
	Stats telemetry.NodeStats
}

// RemoveNode unregisters a node, under the same Conn check as UpdateNode.
type RemoveNode struct {
	ID   telemetry.NodeID
	Conn telemetry.NodeConn
}

// Subscribe adds a feed to the chain's fan-out set.
type Subscribe struct {
	Feed telemetry.Subscriber
}

type prune struct{}

type emptyCheck struct{}

func (AddNode) chainMessage()    {}
func (UpdateNode) chainMessage() {}
func (RemoveNode) chainMessage() {}
func (Subscribe) chainMessage()  {}
func (prune) chainMessage()      {}
func (emptyCheck) chainMessage() {}

// Addr is the handle to a running chain unit.
type Addr = actor.Addr[Message]

// Parent is the unit's back-reference to the registry that started it.
type Parent interface {
	// DropChain reports that unit, registered under name, became empty.
	DropChain(name string, unit *Addr)
	// AddNode and Subscribe re-route work that reached a retiring unit.
	AddNode(details telemetry.NodeDetails, chain string, conn telemetry.NodeConn)
	Subscribe(chain string, feed telemetry.Subscriber)
}

// nodeRef is the telemetry.ChainRef handed to a registered node.
type nodeRef struct {
	unit *Addr
	id   telemetry.NodeID
	conn telemetry.NodeConn
}

func (r nodeRef) Update(stats telemetry.NodeStats) bool {
	return r.unit.Send(UpdateNode{ID: r.id, Conn: r.conn, Stats: stats})
}

func (r nodeRef) Remove() bool {
	return r.unit.Send(RemoveNode{ID: r.id, Conn: r.conn})
}
