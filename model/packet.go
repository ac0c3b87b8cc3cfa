package model

import "fmt"

// PacketStatus tracks a packet through its lifecycle. Terminal states are
// absorbing: once a packet is delivered, lost, or timed out it never moves
// again.
type PacketStatus int

const (
	PacketCreated   PacketStatus = iota // allocated, not yet dispatched
	PacketInFlight                      // queued at some node, awaiting hops
	PacketDelivered                     // reached its destination
	PacketLost                          // dropped: no route, full buffer, or dead holder
	PacketTimedOut                      // exceeded the hop ceiling
)

// String returns the wire name of the status.
func (s PacketStatus) String() string {
	switch s {
	case PacketCreated:
		return "created"
	case PacketInFlight:
		return "in_flight"
	case PacketDelivered:
		return "delivered"
	case PacketLost:
		return "lost"
	case PacketTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is absorbing.
func (s PacketStatus) Terminal() bool {
	return s == PacketDelivered || s == PacketLost || s == PacketTimedOut
}

// LossReason is a coarse classification of why a packet was dropped.
type LossReason string

const (
	LossNone       LossReason = ""
	LossNoRoute    LossReason = "no_route"
	LossBufferFull LossReason = "buffer_full"
	LossHopLimit   LossReason = "hop_limit"
	LossNodeFailed LossReason = "node_failed"
)

// Packet is one unit of data moving through the mesh. Packets are owned by
// the simulator's packet table for their whole lifetime; a node buffer only
// references them by id, so moving a packet means updating Current, never
// copying the record.
type Packet struct {
	ID          int `json:"ID"`
	Source      int `json:"Source"`
	Destination int `json:"Destination"`

	// Current is the node holding the packet. For terminal packets it is
	// the node the packet ended at.
	Current int          `json:"Current"`
	Status  PacketStatus `json:"Status"`

	// Path lists every node the packet has visited, source first.
	// It never contains a repeated id.
	Path []int `json:"Path"`
	Hops int   `json:"Hops"`

	CreatedTick int `json:"CreatedTick"`
	// TerminalTick is the tick the packet reached a terminal status,
	// or -1 while still in flight.
	TerminalTick int `json:"TerminalTick"`

	// LatencyMs accumulates the per-hop transmission latency.
	LatencyMs float64 `json:"LatencyMs"`

	// Reward accumulates the routing feedback earned along the path:
	// one per-hop cost for every intermediate hop plus a single terminal
	// reward or penalty.
	Reward float64 `json:"Reward"`

	LossReason LossReason `json:"LossReason,omitempty"`
}

// NewPacket returns an in-flight packet held at its source.
func NewPacket(id, source, destination, tick int) *Packet {
	return &Packet{
		ID:           id,
		Source:       source,
		Destination:  destination,
		Current:      source,
		Status:       PacketInFlight,
		Path:         []int{source},
		CreatedTick:  tick,
		TerminalTick: -1,
	}
}

// HasVisited reports whether the packet's path already contains id.
func (p *Packet) HasVisited(id int) bool {
	for _, v := range p.Path {
		if v == id {
			return true
		}
	}
	return false
}

// RecordHop moves the packet to node id and accumulates the hop latency.
func (p *Packet) RecordHop(id int, latencyMs float64) {
	p.Current = id
	p.Path = append(p.Path, id)
	p.Hops++
	p.LatencyMs += latencyMs
}

// MarkDelivered transitions the packet to Delivered at the given tick.
func (p *Packet) MarkDelivered(tick int) {
	p.Status = PacketDelivered
	p.TerminalTick = tick
}

// MarkLost transitions the packet to Lost at the given tick.
func (p *Packet) MarkLost(tick int, reason LossReason) {
	p.Status = PacketLost
	p.TerminalTick = tick
	p.LossReason = reason
}

// MarkTimedOut transitions the packet to TimedOut at the given tick.
func (p *Packet) MarkTimedOut(tick int) {
	p.Status = PacketTimedOut
	p.TerminalTick = tick
	p.LossReason = LossHopLimit
}

// Clone returns a deep copy of the packet.
func (p *Packet) Clone() *Packet {
	out := *p
	out.Path = append([]int(nil), p.Path...)
	return &out
}

// String renders a short human-readable summary for logs.
func (p *Packet) String() string {
	return fmt.Sprintf("packet %d: %d->%d (%s, hops %d)", p.ID, p.Source, p.Destination, p.Status, p.Hops)
}
