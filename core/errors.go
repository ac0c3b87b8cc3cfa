package core

import "errors"

// Sentinel errors surfaced by the simulator. Callers match them with
// errors.Is; the simulator wraps them with call-site detail.
//
// Only ErrInvalidParameter and ErrInvalidNode escape Step: routing-time
// conditions (full buffers, exhausted routes, hop ceilings) are absorbed
// into packet state transitions and reported through metrics instead.
var (
	// ErrInvalidParameter marks bad construction or call arguments.
	// Simulator state is unaffected by the failed call.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidNode marks a reference to an unknown node id, or to an
	// inactive source in SendPacket. Fatal to that call only.
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidPacket marks a reference to an unknown or already
	// terminal packet id.
	ErrInvalidPacket = errors.New("invalid packet")

	// ErrBufferFull is returned when a packet cannot be accepted because
	// the source buffer is at capacity at send time.
	ErrBufferFull = errors.New("buffer full")

	// ErrNoRoute is returned by directed-hop execution when the requested
	// next hop is not a live, unvisited neighbor of the packet's holder.
	ErrNoRoute = errors.New("no route")

	// ErrNoActivePair is returned by random traffic injection when fewer
	// than two nodes are active.
	ErrNoActivePair = errors.New("no active pair")
)
