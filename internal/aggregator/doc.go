// Package aggregator implements the hub's registry: the actor that maps chain
// names to chain units and routes producer and subscriber traffic to them.
//
// # Ownership
//
// The chain map and the set of connected feeds live inside the aggregator's
// actor goroutine and are never shared. Every operation is a message; a
// handler invocation is the unit of atomicity, so no locks are needed.
//
// # Unit lifecycle
//
// A chain entry is created on first reference (AddNode or Subscribe). On each
// lookup the stored unit is checked with Connected, a local flag read that
// never waits on the unit; a dead unit is replaced by a fresh one before the
// message is forwarded. Units retire on their own when they become empty and
// report it with DropChain. The drop is identity guarded: the entry is
// removed only while it still points at the unit that reported, so a notice
// from a unit that has already been replaced leaves the new unit in place.
//
// # Subscriptions
//
// Subscribe is routed exactly like AddNode: it resolves (or creates) the
// chain's unit and forwards the feed to it. Feeds that Connect to the
// aggregator itself receive the chain list as added_chain and removed_chain
// events. A chain is announced only once a node has been forwarded to it;
// units created by Subscribe alone retire after their empty grace without
// ever reaching the list.
package aggregator
