package model

import "sort"

// Node is a single relief device in the field: a radio with a position,
// a battery, a bounded packet queue, and a cached set of in-range peers.
//
// Nodes do not own the packets in their buffer; the buffer holds packet ids
// and the simulator's packet table owns the records. Neighbor ids are kept
// sorted ascending so observation vectors and action indices are stable.
type Node struct {
	ID       int      `json:"ID"`
	Position Position `json:"Position"`

	// Active reflects whether the device is currently powered and reachable.
	// A failed node keeps its position, energy, and (stale) neighbor ids;
	// only the maintenance pass prunes it from other nodes' sets.
	Active bool `json:"Active"`

	// Energy is the remaining battery charge. It starts at MaxEnergy and
	// never drops below zero. A drained node keeps relaying; energy only
	// feeds routing rewards and observations.
	Energy    float64 `json:"Energy"`
	MaxEnergy float64 `json:"MaxEnergy"`

	// Buffer holds the ids of packets currently queued at this node,
	// oldest first. Its length never exceeds BufferCap.
	Buffer    []int `json:"Buffer,omitempty"`
	BufferCap int   `json:"BufferCap"`

	Neighbors []int `json:"Neighbors,omitempty"`
}

// NewNode returns an active node at the given position with a full battery
// and an empty buffer.
func NewNode(id int, pos Position, maxEnergy float64, bufferCap int) *Node {
	return &Node{
		ID:        id,
		Position:  pos,
		Active:    true,
		Energy:    maxEnergy,
		MaxEnergy: maxEnergy,
		BufferCap: bufferCap,
	}
}

// Fail marks the node as failed. Buffer and neighbor ids are left in place;
// the caller decides what happens to queued packets.
func (n *Node) Fail() {
	n.Active = false
}

// Repair marks the node as active again. Energy is not restored; a repaired
// node resumes with whatever charge it had when it went down.
func (n *Node) Repair() {
	n.Active = true
}

// AddNeighbor inserts id into the neighbor set, keeping it sorted.
// Self-loops and duplicates are ignored.
func (n *Node) AddNeighbor(id int) {
	if id == n.ID {
		return
	}
	i := sort.SearchInts(n.Neighbors, id)
	if i < len(n.Neighbors) && n.Neighbors[i] == id {
		return
	}
	n.Neighbors = append(n.Neighbors, 0)
	copy(n.Neighbors[i+1:], n.Neighbors[i:])
	n.Neighbors[i] = id
}

// RemoveNeighbor deletes id from the neighbor set if present.
func (n *Node) RemoveNeighbor(id int) {
	i := sort.SearchInts(n.Neighbors, id)
	if i < len(n.Neighbors) && n.Neighbors[i] == id {
		n.Neighbors = append(n.Neighbors[:i], n.Neighbors[i+1:]...)
	}
}

// HasNeighbor reports whether id is in the neighbor set.
func (n *Node) HasNeighbor(id int) bool {
	i := sort.SearchInts(n.Neighbors, id)
	return i < len(n.Neighbors) && n.Neighbors[i] == id
}

// SetNeighbors replaces the neighbor set with a sorted copy of ids,
// dropping self-loops and duplicates.
func (n *Node) SetNeighbors(ids []int) {
	n.Neighbors = n.Neighbors[:0]
	for _, id := range ids {
		n.AddNeighbor(id)
	}
}

// NeighborIDs returns a copy of the neighbor set in ascending order.
func (n *Node) NeighborIDs() []int {
	out := make([]int, len(n.Neighbors))
	copy(out, n.Neighbors)
	return out
}

// EnqueuePacket appends a packet id to the buffer. It returns false when
// the buffer is at capacity, in which case the buffer is unchanged.
func (n *Node) EnqueuePacket(packetID int) bool {
	if len(n.Buffer) >= n.BufferCap {
		return false
	}
	n.Buffer = append(n.Buffer, packetID)
	return true
}

// RemovePacket deletes the first occurrence of packetID from the buffer,
// reporting whether it was present.
func (n *Node) RemovePacket(packetID int) bool {
	for i, id := range n.Buffer {
		if id == packetID {
			n.Buffer = append(n.Buffer[:i], n.Buffer[i+1:]...)
			return true
		}
	}
	return false
}

// DrainBuffer empties the buffer and returns the packet ids it held,
// oldest first.
func (n *Node) DrainBuffer() []int {
	drained := n.Buffer
	n.Buffer = nil
	return drained
}

// BufferOccupancy returns the buffer fill fraction in [0,1].
func (n *Node) BufferOccupancy() float64 {
	if n.BufferCap <= 0 {
		return 1
	}
	return float64(len(n.Buffer)) / float64(n.BufferCap)
}

// ConsumeEnergy subtracts amount from the battery, clamping at zero.
func (n *Node) ConsumeEnergy(amount float64) {
	n.Energy -= amount
	if n.Energy < 0 {
		n.Energy = 0
	}
}

// NormalizedEnergy returns the remaining charge as a fraction in [0,1].
func (n *Node) NormalizedEnergy() float64 {
	if n.MaxEnergy <= 0 {
		return 0
	}
	return n.Energy / n.MaxEnergy
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	out := *n
	out.Buffer = append([]int(nil), n.Buffer...)
	out.Neighbors = append([]int(nil), n.Neighbors...)
	return &out
}
