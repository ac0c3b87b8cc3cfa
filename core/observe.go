package core

import (
	"fmt"

	"github.com/dr-isosan/LifeNode/model"
)

// Routing feedback contract. The same numbers apply no matter which policy
// produced a hop, so learned and reference policies are scored identically.
const (
	// RewardDelivered is granted once when a packet reaches its
	// destination, replacing the per-hop cost of the final move.
	RewardDelivered = 100.0
	// RewardLost is charged once when a packet is lost or times out.
	RewardLost = -1.0

	rewardHopBase      = -5.0
	rewardEnergyWeight = -50.0
)

// HopReward returns the feedback for one intermediate hop given the chosen
// relay's normalized remaining energy after the transfer. Relaying through
// a full battery costs the flat base; the emptier the relay, the steeper
// the penalty.
func HopReward(energy float64) float64 {
	return rewardHopBase + (1-energy)*rewardEnergyWeight
}

// Observation vector layout: one distance-to-destination feature followed
// by observationFeatures values per neighbor slot. Empty slots read as
// "no neighbor, queue full" so the vector length never varies.
const observationFeatures = 3

const (
	padSignal = 0.0
	padEnergy = 0.0
	padBuffer = 1.0
)

// ObservationSize returns the fixed length of observation vectors under
// this configuration.
func (c Config) ObservationSize() int {
	return 1 + observationFeatures*c.NeighborSlots
}

// Observe builds the state vector a routing learner sees at nodeID for a
// packet addressed to destID: normalized distance to the destination, then
// for each of the first NeighborSlots active neighbors (ascending id) the
// link signal strength, the neighbor's normalized energy, and its buffer
// occupancy. Unused slots are padded with (0, 0, 1).
func (s *Simulator) Observe(nodeID, destID int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", nodeID, ErrInvalidNode)
	}
	dest, ok := s.nodes[destID]
	if !ok {
		return nil, fmt.Errorf("destination node %d: %w", destID, ErrInvalidNode)
	}

	vec := make([]float64, 0, s.cfg.ObservationSize())

	dist := node.Position.DistanceTo(dest.Position)
	norm := dist / s.cfg.ObserveMaxDistance
	if norm > 1 {
		norm = 1
	}
	vec = append(vec, norm)

	slots := 0
	for _, nid := range node.Neighbors {
		if slots >= s.cfg.NeighborSlots {
			break
		}
		neighbor, ok := s.nodes[nid]
		if !ok || !neighbor.Active {
			continue
		}
		d := node.Position.DistanceTo(neighbor.Position)
		vec = append(vec,
			SignalStrength(d, s.cfg.CommRange),
			neighbor.NormalizedEnergy(),
			neighbor.BufferOccupancy(),
		)
		slots++
	}
	for ; slots < s.cfg.NeighborSlots; slots++ {
		vec = append(vec, padSignal, padEnergy, padBuffer)
	}

	return vec, nil
}

// ResolveAction maps an action index from a routing learner to the concrete
// neighbor it addresses: index i selects the i-th active neighbor of nodeID
// in ascending id order, counting only the first NeighborSlots. An index
// beyond the live neighbor count resolves to ErrNoRoute, never to a guess.
func (s *Simulator) ResolveAction(nodeID, action int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return 0, fmt.Errorf("node %d: %w", nodeID, ErrInvalidNode)
	}
	if action < 0 || action >= s.cfg.NeighborSlots {
		return 0, fmt.Errorf("action %d outside %d slots: %w", action, s.cfg.NeighborSlots, ErrNoRoute)
	}

	slots := 0
	for _, nid := range node.Neighbors {
		if slots >= s.cfg.NeighborSlots {
			break
		}
		neighbor, ok := s.nodes[nid]
		if !ok || !neighbor.Active {
			continue
		}
		if slots == action {
			return nid, nil
		}
		slots++
	}
	return 0, fmt.Errorf("action %d with %d live neighbors: %w", action, slots, ErrNoRoute)
}

// HopResult reports the outcome of one directed hop.
type HopResult struct {
	PacketID int `json:"PacketID"`
	From     int `json:"From"`
	To       int `json:"To"`

	Distance      float64 `json:"Distance"`
	LatencyMs     float64 `json:"LatencyMs"`
	EnergyCost    float64 `json:"EnergyCost"`
	Signal        float64 `json:"Signal"`
	BandwidthMbps float64 `json:"BandwidthMbps"`

	// TargetEnergy is the relay's normalized energy after paying its share
	// of the transfer, the value the hop reward is computed from.
	TargetEnergy float64 `json:"TargetEnergy"`

	// Reward is the single feedback value for this move: the terminal
	// reward when the move ended the packet's life, the per-hop cost
	// otherwise.
	Reward float64 `json:"Reward"`

	Status   model.PacketStatus `json:"Status"`
	Terminal bool               `json:"Terminal"`
}

// ExecuteHop carries packetID over exactly one directed hop to targetID,
// applying the same buffer, latency, energy, and lifecycle rules as the
// tick loop. It is the integration point for external policies: resolve an
// action to a neighbor, then execute it.
//
// Unknown ids fail with ErrInvalidPacket/ErrInvalidNode; a target that is
// not a live, unvisited neighbor of the packet's holder fails with
// ErrNoRoute and leaves all state unchanged. A full target buffer is not an
// error: the packet is lost and the result reports the terminal transition.
// Unlike the tick loop, delivery and timeout are resolved immediately so a
// caller driving a packet hop by hop sees terminal outcomes on the move
// that caused them.
func (s *Simulator) ExecuteHop(packetID, targetID int) (*HopResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.packets[packetID]
	if !ok {
		return nil, fmt.Errorf("packet %d: %w", packetID, ErrInvalidPacket)
	}
	if p.Status != model.PacketInFlight {
		return nil, fmt.Errorf("packet %d already %s: %w", packetID, p.Status, ErrInvalidPacket)
	}
	target, ok := s.nodes[targetID]
	if !ok {
		return nil, fmt.Errorf("target node %d: %w", targetID, ErrInvalidNode)
	}

	holder := s.nodes[p.Current]
	if !holder.HasNeighbor(targetID) || !target.Active {
		return nil, fmt.Errorf("node %d unreachable from %d: %w", targetID, p.Current, ErrNoRoute)
	}
	if p.HasVisited(targetID) {
		return nil, fmt.Errorf("node %d already on path of packet %d: %w", targetID, packetID, ErrNoRoute)
	}

	result := &HopResult{
		PacketID: packetID,
		From:     p.Current,
		To:       targetID,
	}

	if !target.EnqueuePacket(p.ID) {
		holder.RemovePacket(p.ID)
		p.MarkLost(s.tick, model.LossBufferFull)
		p.Reward += RewardLost
		s.stats.recordLoss(model.LossBufferFull)
		s.removeFromFlightLocked(p.ID)
		result.Reward = RewardLost
		result.Status = model.PacketLost
		result.Terminal = true
		return result, nil
	}

	holder.RemovePacket(p.ID)
	dist := holder.Position.DistanceTo(target.Position)
	p.RecordHop(targetID, s.cfg.Radio.HopLatencyMs(dist))

	cost := s.cfg.Radio.HopEnergyCost(dist)
	holder.ConsumeEnergy(cost)
	target.ConsumeEnergy(cost / 2)

	result.Distance = dist
	result.LatencyMs = s.cfg.Radio.HopLatencyMs(dist)
	result.EnergyCost = cost
	result.Signal = SignalStrength(dist, s.cfg.CommRange)
	result.BandwidthMbps = s.cfg.Radio.Bandwidth(dist, s.cfg.CommRange)
	result.TargetEnergy = target.NormalizedEnergy()

	switch {
	case p.Current == p.Destination:
		target.RemovePacket(p.ID)
		p.MarkDelivered(s.tick)
		p.Reward += RewardDelivered
		s.stats.recordDelivery(p)
		s.removeFromFlightLocked(p.ID)
		result.Reward = RewardDelivered
		result.Status = model.PacketDelivered
		result.Terminal = true

	case p.Hops >= s.cfg.MaxHops:
		target.RemovePacket(p.ID)
		p.MarkTimedOut(s.tick)
		p.Reward += RewardLost
		s.stats.recordTimeout()
		s.removeFromFlightLocked(p.ID)
		result.Reward = RewardLost
		result.Status = model.PacketTimedOut
		result.Terminal = true

	default:
		reward := HopReward(target.NormalizedEnergy())
		p.Reward += reward
		result.Reward = reward
		result.Status = model.PacketInFlight
	}

	return result, nil
}
