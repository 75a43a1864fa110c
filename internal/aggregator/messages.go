package aggregator

import (
	"context"
	"errors"

	"github.com/specialistvlad/telemetryhub/internal/actor"
	"github.com/specialistvlad/telemetryhub/internal/chain"
	"github.com/specialistvlad/telemetryhub/internal/densemap"
	"github.com/specialistvlad/telemetryhub/internal/telemetry"
)

// Message is anything the aggregator accepts.
type Message interface {
	aggregatorMessage()
}

// AddNode is sent by a producer once its details are known.
type AddNode struct {
	Details telemetry.NodeDetails
	Chain   string
	Conn    telemetry.NodeConn
}

// DropChain is sent by a chain unit when it loses all its nodes. Unit is the
// sender's own address.
type DropChain struct {
	Chain string
	Unit  *chain.Addr
}

// Subscribe is sent by a feed that wants updates for one chain.
type Subscribe struct {
	Chain string
	Feed  telemetry.Subscriber
}

// Connect adds a feed to the aggregator's chain list broadcast. The slot ID
// is written to Reply, which must be buffered.
type Connect struct {
	Feed  telemetry.Subscriber
	Reply chan<- densemap.ID
}

// Disconnect removes a feed added by Connect. Feed guards against the slot
// having been pruned and reused.
type Disconnect struct {
	ID   densemap.ID
	Feed telemetry.Subscriber
}

type chainsQuery struct {
	reply chan<- []ChainSummary
}

type shutdown struct{}

func (AddNode) aggregatorMessage()     {}
func (DropChain) aggregatorMessage()   {}
func (Subscribe) aggregatorMessage()   {}
func (Connect) aggregatorMessage()     {}
func (Disconnect) aggregatorMessage()  {}
func (chainsQuery) aggregatorMessage() {}
func (shutdown) aggregatorMessage()    {}

// ChainSummary describes one live chain entry.
type ChainSummary struct {
	Name string `json:"name"`
}

// ErrStopped is returned by request/reply calls on a stopped aggregator.
var ErrStopped = errors.New("aggregator stopped")

// Handle is the address of a running aggregator. It satisfies chain.Parent,
// which is how units get their back-reference.
type Handle struct {
	addr *actor.Addr[Message]
}

var _ chain.Parent = Handle{}

// AddNode routes a node registration to the chain's unit.
func (h Handle) AddNode(details telemetry.NodeDetails, chainName string, conn telemetry.NodeConn) {
	h.addr.Send(AddNode{Details: details, Chain: chainName, Conn: conn})
}

// DropChain reports that unit, registered under name, became empty.
func (h Handle) DropChain(name string, unit *chain.Addr) {
	h.addr.Send(DropChain{Chain: name, Unit: unit})
}

// Subscribe routes feed to the chain's unit.
func (h Handle) Subscribe(chainName string, feed telemetry.Subscriber) {
	h.addr.Send(Subscribe{Chain: chainName, Feed: feed})
}

// Connect registers feed for chain list updates and returns its slot ID.
func (h Handle) Connect(ctx context.Context, feed telemetry.Subscriber) (densemap.ID, error) {
	reply := make(chan densemap.ID, 1)
	if !h.addr.Send(Connect{Feed: feed, Reply: reply}) {
		return 0, ErrStopped
	}
	select {
	case id := <-reply:
		return id, nil
	case <-h.addr.Done():
		select {
		case id := <-reply:
			return id, nil
		default:
			return 0, ErrStopped
		}
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Disconnect removes a feed registered with Connect.
func (h Handle) Disconnect(id densemap.ID, feed telemetry.Subscriber) {
	h.addr.Send(Disconnect{ID: id, Feed: feed})
}

// Chains lists the chains whose units are alive, sorted by name.
func (h Handle) Chains(ctx context.Context) ([]ChainSummary, error) {
	reply := make(chan []ChainSummary, 1)
	if !h.addr.Send(chainsQuery{reply: reply}) {
		return nil, ErrStopped
	}
	select {
	case chains := <-reply:
		return chains, nil
	case <-h.addr.Done():
		select {
		case chains := <-reply:
			return chains, nil
		default:
			return nil, ErrStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop stops every chain unit and then the aggregator. Messages queued
// before Stop are handled first.
func (h Handle) Stop() {
	h.addr.Send(shutdown{})
}

// Done is closed once the aggregator goroutine has exited.
func (h Handle) Done() <-chan struct{} {
	return h.addr.Done()
}
