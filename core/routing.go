package core

import (
	"math"
	"math/rand"

	"github.com/dr-isosan/LifeNode/model"
)

// Candidate is one admissible next hop for a packet: a live, in-range,
// not-yet-visited neighbor of the packet's holder, together with the link
// and node quality a policy may weigh.
type Candidate struct {
	ID              int
	Position        model.Position
	Signal          float64
	BandwidthMbps   float64
	Energy          float64 // normalized remaining charge
	BufferOccupancy float64
}

// RouteQuery is everything the simulator hands the installed policy for one
// packet hop. Candidates are sorted by ascending node id and already
// filtered to reachable, unvisited neighbors; Path is the packet's visited
// sequence and must be treated as read-only.
type RouteQuery struct {
	PacketID       int
	Current        int
	CurrentPos     model.Position
	Destination    int
	DestinationPos model.Position
	Path           []int
	Candidates     []Candidate
}

// RoutingPolicy chooses the next hop for a packet. Implementations return
// the chosen candidate id, or ok=false to signal no route. The simulator
// verifies the returned id is actually among the candidates, so a buggy or
// adversarial policy cannot create loops or dead links.
//
// Policies are called synchronously inside the tick loop and must not
// block; an implementation backed by an asynchronous learner has to resolve
// its decision before the tick, never inside this call.
type RoutingPolicy interface {
	NextHop(q RouteQuery) (int, bool)
}

// RandomGreedyPolicy is the reference policy: with probability randomProb it
// relays to a uniformly random candidate, otherwise to the candidate
// geographically closest to the destination. It shares the simulator's
// random source so runs stay reproducible.
type RandomGreedyPolicy struct {
	rng        *rand.Rand
	randomProb float64
}

// NewRandomGreedyPolicy returns the reference policy drawing from rng.
func NewRandomGreedyPolicy(rng *rand.Rand, randomProb float64) *RandomGreedyPolicy {
	return &RandomGreedyPolicy{rng: rng, randomProb: randomProb}
}

// NextHop picks a candidate as described on the type. With no candidates it
// reports no route without consuming randomness.
func (p *RandomGreedyPolicy) NextHop(q RouteQuery) (int, bool) {
	if len(q.Candidates) == 0 {
		return 0, false
	}

	if p.rng.Float64() < p.randomProb {
		return q.Candidates[p.rng.Intn(len(q.Candidates))].ID, true
	}

	bestID := -1
	bestDist := math.Inf(1)
	for _, c := range q.Candidates {
		if d := c.Position.DistanceTo(q.DestinationPos); d < bestDist {
			bestDist = d
			bestID = c.ID
		}
	}
	return bestID, true
}
