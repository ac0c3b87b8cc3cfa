package core

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/dr-isosan/LifeNode/internal/logging"
	"github.com/dr-isosan/LifeNode/model"
)

// Simulator owns the whole mesh: the node table, the derived neighbor
// caches, the packet table, and the run statistics. It advances in discrete
// ticks; Step is the single entry point for progress and is serialized by an
// internal mutex, so a Simulator is safe to share between a stepping loop
// and read-side consumers.
//
// All randomness comes from one private generator seeded at construction.
// Two simulators built from equal Configs and stepped identically produce
// identical trajectories; independent instances never interfere.
type Simulator struct {
	mu sync.Mutex

	cfg    Config
	logger logging.Logger
	rng    *rand.Rand

	nodes   map[int]*model.Node
	packets map[int]*model.Packet

	// inFlight holds ids of non-terminal packets in ascending order.
	// Packet ids are allocated monotonically, so appends keep it sorted.
	inFlight []int

	nextPacketID int
	nextNodeID   int
	tick         int
	stats        Stats

	policy     RoutingPolicy
	maintainer *NeighborMaintainer
}

// NewSimulator validates cfg, generates the topology from the seed, and
// returns a ready simulator. A nil policy installs the reference
// random/greedy policy sharing the simulator's random source; a nil logger
// disables logging.
func NewSimulator(cfg Config, policy RoutingPolicy, logger logging.Logger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Noop()
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	if policy == nil {
		policy = NewRandomGreedyPolicy(rng, cfg.RandomProb)
	}

	s := &Simulator{
		cfg:        cfg,
		logger:     logger,
		rng:        rng,
		policy:     policy,
		maintainer: NewNeighborMaintainer(cfg.CommRange),
	}
	if err := s.createNetworkLocked(); err != nil {
		return nil, err
	}

	edges := 0
	for _, id := range sortedNodeIDs(s.nodes) {
		edges += len(s.nodes[id].Neighbors)
	}
	logger.Info(context.Background(), "simulator ready",
		logging.Int("nodes", cfg.NumNodes),
		logging.Int("links", edges/2),
		logging.Float64("comm_range", cfg.CommRange),
		logging.Any("seed", cfg.Seed),
	)

	return s, nil
}

// CreateNetwork rebuilds the topology from the configured seed and resets
// the packet table, statistics, and tick counter to zero. The random stream
// restarts too, so a recreated simulator walks the same trajectory as a
// freshly constructed one.
func (s *Simulator) CreateNetwork() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createNetworkLocked()
}

func (s *Simulator) createNetworkLocked() error {
	// Reset in place: the reference policy holds the same generator.
	s.rng.Seed(s.cfg.Seed)

	nodes, err := GenerateTopology(s.cfg, s.rng)
	if err != nil {
		return err
	}

	s.nodes = nodes
	s.packets = make(map[int]*model.Packet)
	s.inFlight = nil
	s.nextPacketID = 0
	s.nextNodeID = s.cfg.NumNodes
	s.tick = 0
	s.stats = newStats()
	return nil
}

// Config returns the configuration the simulator was built with.
func (s *Simulator) Config() Config {
	return s.cfg
}

// Tick returns the current simulated time.
func (s *Simulator) Tick() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Stats returns a copy of the run statistics.
func (s *Simulator) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.Clone()
}

// Node returns a deep copy of the node with the given id.
func (s *Simulator) Node(id int) (*model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, ErrInvalidNode)
	}
	return node.Clone(), nil
}

// NodesSnapshot returns deep copies of all nodes in ascending id order.
func (s *Simulator) NodesSnapshot() []*model.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Node, 0, len(s.nodes))
	for _, id := range sortedNodeIDs(s.nodes) {
		out = append(out, s.nodes[id].Clone())
	}
	return out
}

// Packet returns a deep copy of the packet with the given id.
func (s *Simulator) Packet(id int) (*model.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packets[id]
	if !ok {
		return nil, fmt.Errorf("packet %d: %w", id, ErrInvalidPacket)
	}
	return p.Clone(), nil
}

// ActiveNodeIDs returns the ids of all active nodes in ascending order.
func (s *Simulator) ActiveNodeIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeIDsLocked()
}

func (s *Simulator) activeIDsLocked() []int {
	ids := make([]int, 0, len(s.nodes))
	for _, id := range sortedNodeIDs(s.nodes) {
		if s.nodes[id].Active {
			ids = append(ids, id)
		}
	}
	return ids
}

// ConnectivityRatio returns the fraction of active nodes inside the largest
// connected component of the active topology, or zero with no active nodes.
// A fully connected mesh reads 1.0.
func (s *Simulator) ConnectivityRatio() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.activeIDsLocked()
	if len(active) == 0 {
		return 0
	}

	visited := make(map[int]bool, len(active))
	largest := 0
	for _, id := range active {
		if visited[id] {
			continue
		}
		visited[id] = true
		size := 0
		queue := []int{id}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			size++
			for _, nid := range s.nodes[cur].Neighbors {
				peer, ok := s.nodes[nid]
				if !ok || !peer.Active || visited[nid] {
					continue
				}
				visited[nid] = true
				queue = append(queue, nid)
			}
		}
		if size > largest {
			largest = size
		}
	}
	return float64(largest) / float64(len(active))
}

// Snapshot is a consistent deep copy of the whole simulation state, ids
// ascending, taken under a single lock acquisition.
type Snapshot struct {
	Tick    int             `json:"Tick"`
	Nodes   []*model.Node   `json:"Nodes"`
	Packets []*model.Packet `json:"Packets,omitempty"`
	Stats   Stats           `json:"Stats"`
}

// Snapshot returns the full state view for state endpoints and recorders.
func (s *Simulator) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		Tick:  s.tick,
		Nodes: make([]*model.Node, 0, len(s.nodes)),
		Stats: s.stats.Clone(),
	}
	for _, id := range sortedNodeIDs(s.nodes) {
		snap.Nodes = append(snap.Nodes, s.nodes[id].Clone())
	}
	// Packet ids are dense from zero and never deleted.
	for id := 0; id < s.nextPacketID; id++ {
		snap.Packets = append(snap.Packets, s.packets[id].Clone())
	}
	return snap
}

// SendPacket injects a new packet at sourceID addressed to destID and
// returns its id. It fails with ErrInvalidNode when either id is unknown or
// the source is inactive, and with ErrBufferFull when the source queue is
// at capacity; in every failure case simulator state is unchanged.
func (s *Simulator) SendPacket(sourceID, destID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendPacketLocked(sourceID, destID)
}

func (s *Simulator) sendPacketLocked(sourceID, destID int) (int, error) {
	src, ok := s.nodes[sourceID]
	if !ok {
		return 0, fmt.Errorf("source node %d: %w", sourceID, ErrInvalidNode)
	}
	if _, ok := s.nodes[destID]; !ok {
		return 0, fmt.Errorf("destination node %d: %w", destID, ErrInvalidNode)
	}
	if !src.Active {
		return 0, fmt.Errorf("source node %d inactive: %w", sourceID, ErrInvalidNode)
	}

	id := s.nextPacketID
	if !src.EnqueuePacket(id) {
		return 0, fmt.Errorf("source node %d queue at capacity %d: %w", sourceID, src.BufferCap, ErrBufferFull)
	}
	s.nextPacketID++

	p := model.NewPacket(id, sourceID, destID, s.tick)
	s.packets[id] = p
	s.inFlight = append(s.inFlight, id)
	s.stats.TotalSent++
	s.stats.InFlight++

	s.logger.Debug(context.Background(), "packet sent",
		logging.Int("packet", id),
		logging.Int("source", sourceID),
		logging.Int("destination", destID),
		logging.Int("tick", s.tick),
	)
	return id, nil
}

// RandomActivePair draws a uniformly random ordered pair of distinct active
// nodes from the simulator's random source. It fails with ErrNoActivePair
// when fewer than two nodes are active.
func (s *Simulator) RandomActivePair() (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.randomActivePairLocked()
}

func (s *Simulator) randomActivePairLocked() (int, int, error) {
	active := s.activeIDsLocked()
	if len(active) < 2 {
		return 0, 0, fmt.Errorf("%d active nodes: %w", len(active), ErrNoActivePair)
	}

	si := s.rng.Intn(len(active))
	di := s.rng.Intn(len(active) - 1)
	if di >= si {
		di++
	}
	return active[si], active[di], nil
}

// SendRandomPacket injects a packet between a random pair of distinct
// active nodes, as background traffic generators do.
func (s *Simulator) SendRandomPacket() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, dst, err := s.randomActivePairLocked()
	if err != nil {
		return 0, err
	}
	return s.sendPacketLocked(src, dst)
}

// AddNode registers a new active node at the given position, links it to
// every active node in range, and returns its id.
func (s *Simulator) AddNode(pos model.Position) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextNodeID
	s.nextNodeID++
	s.nodes[id] = model.NewNode(id, pos, s.cfg.InitialEnergy, s.cfg.BufferCapacity)
	s.maintainer.OnRepairs(s.nodes, []int{id})

	s.logger.Info(context.Background(), "node added",
		logging.Int("node", id),
		logging.Int("neighbors", len(s.nodes[id].Neighbors)),
	)
	return id
}

// RemoveNode unregisters a node entirely. Packets queued at it are lost
// with reason node_failed.
func (s *Simulator) RemoveNode(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("node %d: %w", id, ErrInvalidNode)
	}

	s.loseBufferedPacketsLocked(node)
	s.maintainer.OnFailures(s.nodes, []int{id})
	delete(s.nodes, id)

	s.logger.Info(context.Background(), "node removed", logging.Int("node", id))
	return nil
}

// FailNode forces a node down, as churn would. Queued packets are lost.
func (s *Simulator) FailNode(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("node %d: %w", id, ErrInvalidNode)
	}
	if !node.Active {
		return nil
	}

	node.Fail()
	s.loseBufferedPacketsLocked(node)
	s.maintainer.OnFailures(s.nodes, []int{id})
	return nil
}

// RepairNode forces a failed node back up and relinks it.
func (s *Simulator) RepairNode(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("node %d: %w", id, ErrInvalidNode)
	}
	if node.Active {
		return nil
	}

	node.Repair()
	s.maintainer.OnRepairs(s.nodes, []int{id})
	return nil
}

// Step advances the simulation one tick: churn first, then neighbor
// maintenance, then one hop for every in-flight packet against the updated
// topology. failureRate is the per-node failure probability for this tick;
// repairs always use the configured repair rate.
//
// Routing-time conditions (no route, full buffers, hop ceilings, dead
// holders) never fail the call; they are absorbed into packet transitions
// and surfaced in the returned report. Only a rate outside [0,1] is an
// error, and it leaves the simulation untouched.
func (s *Simulator) Step(failureRate float64) (*TickReport, error) {
	if failureRate < 0 || failureRate > 1 {
		return nil, fmt.Errorf("failure rate %.3f: %w", failureRate, ErrInvalidParameter)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	s.tick++
	s.stats.Ticks++

	report := &TickReport{
		Tick:        s.tick,
		FailureRate: failureRate,
		LossReasons: make(map[model.LossReason]int),
	}

	report.Failed, report.Repaired = s.applyChurnLocked(failureRate)
	s.maintainer.OnFailures(s.nodes, report.Failed)
	s.maintainer.OnRepairs(s.nodes, report.Repaired)

	// Packets stranded on a node that just went down are dropped before
	// routing, so this tick's advancement only sees live holders.
	for _, id := range report.Failed {
		s.loseBufferedPacketsLocked(s.nodes[id], report)
	}

	advancing := make([]int, len(s.inFlight))
	copy(advancing, s.inFlight)
	for _, pid := range advancing {
		p := s.packets[pid]
		if p.Status != model.PacketInFlight {
			continue
		}
		report.Advanced++
		s.advanceOneLocked(p, report)
	}

	report.ActiveNodes = len(s.activeIDsLocked())
	report.InFlight = s.stats.InFlight
	report.Duration = time.Since(start)

	s.logger.Debug(context.Background(), "tick complete",
		logging.Int("tick", s.tick),
		logging.Int("failed", len(report.Failed)),
		logging.Int("repaired", len(report.Repaired)),
		logging.Int("advanced", report.Advanced),
		logging.Int("delivered", report.Delivered),
		logging.Int("lost", report.Lost),
		logging.Int("timed_out", report.TimedOut),
		logging.Duration("took", report.Duration),
	)
	return report, nil
}

// applyChurnLocked runs one Bernoulli trial per node: active nodes fail at
// failureRate, failed nodes repair at the configured repair rate. Exactly
// one draw is consumed per node per tick regardless of outcome, so the
// random stream stays aligned across runs with different rates.
func (s *Simulator) applyChurnLocked(failureRate float64) (failed, repaired []int) {
	for _, id := range sortedNodeIDs(s.nodes) {
		node := s.nodes[id]
		draw := s.rng.Float64()
		switch {
		case node.Active && draw < failureRate:
			node.Fail()
			failed = append(failed, id)
		case !node.Active && draw < s.cfg.RepairRate:
			node.Repair()
			repaired = append(repaired, id)
		}
	}
	return failed, repaired
}

// loseBufferedPacketsLocked drops every packet queued at node with reason
// node_failed.
func (s *Simulator) loseBufferedPacketsLocked(node *model.Node, reports ...*TickReport) {
	for _, pid := range node.DrainBuffer() {
		p, ok := s.packets[pid]
		if !ok || p.Status != model.PacketInFlight {
			continue
		}
		p.MarkLost(s.tick, model.LossNodeFailed)
		p.Reward += RewardLost
		s.stats.recordLoss(model.LossNodeFailed)
		s.removeFromFlightLocked(pid)
		for _, rep := range reports {
			rep.Lost++
			rep.LossReasons[model.LossNodeFailed]++
		}
	}
}

// advanceOneLocked moves one in-flight packet through a single lifecycle
// transition: delivery, timeout, loss, or one hop.
func (s *Simulator) advanceOneLocked(p *model.Packet, report *TickReport) {
	holder := s.nodes[p.Current]

	// Delivery is checked before anything else. A packet that reached its
	// destination last tick is delivered even if the destination has since
	// failed or the hop ceiling was hit.
	if p.Current == p.Destination {
		holder.RemovePacket(p.ID)
		p.MarkDelivered(s.tick)
		p.Reward += RewardDelivered
		s.stats.recordDelivery(p)
		s.removeFromFlightLocked(p.ID)
		report.Delivered++
		report.DeliveredLatencyMs = append(report.DeliveredLatencyMs, p.LatencyMs)
		return
	}

	if p.Hops >= s.cfg.MaxHops {
		holder.RemovePacket(p.ID)
		p.MarkTimedOut(s.tick)
		p.Reward += RewardLost
		s.stats.recordTimeout()
		s.removeFromFlightLocked(p.ID)
		report.TimedOut++
		return
	}

	candidates := s.candidatesLocked(p)
	query := RouteQuery{
		PacketID:       p.ID,
		Current:        p.Current,
		CurrentPos:     holder.Position,
		Destination:    p.Destination,
		DestinationPos: s.nodes[p.Destination].Position,
		Path:           p.Path,
		Candidates:     candidates,
	}

	next, ok := s.policy.NextHop(query)
	if !ok || !candidateSetContains(candidates, next) {
		holder.RemovePacket(p.ID)
		p.MarkLost(s.tick, model.LossNoRoute)
		p.Reward += RewardLost
		s.stats.recordLoss(model.LossNoRoute)
		s.removeFromFlightLocked(p.ID)
		report.Lost++
		report.LossReasons[model.LossNoRoute]++
		return
	}

	target := s.nodes[next]
	if !target.EnqueuePacket(p.ID) {
		holder.RemovePacket(p.ID)
		p.MarkLost(s.tick, model.LossBufferFull)
		p.Reward += RewardLost
		s.stats.recordLoss(model.LossBufferFull)
		s.removeFromFlightLocked(p.ID)
		report.Lost++
		report.LossReasons[model.LossBufferFull]++
		return
	}

	holder.RemovePacket(p.ID)
	dist := holder.Position.DistanceTo(target.Position)
	p.RecordHop(next, s.cfg.Radio.HopLatencyMs(dist))

	cost := s.cfg.Radio.HopEnergyCost(dist)
	holder.ConsumeEnergy(cost)
	target.ConsumeEnergy(cost / 2)

	// Landing on the destination earns no per-hop cost; the delivery
	// reward replaces it when the packet is collected next tick.
	if p.Current != p.Destination {
		p.Reward += HopReward(target.NormalizedEnergy())
	}
}

// candidatesLocked lists the admissible next hops for p: active, in-range,
// unvisited neighbors of its holder, ascending by id.
func (s *Simulator) candidatesLocked(p *model.Packet) []Candidate {
	holder := s.nodes[p.Current]
	candidates := make([]Candidate, 0, len(holder.Neighbors))
	for _, nid := range holder.Neighbors {
		target, ok := s.nodes[nid]
		if !ok || !target.Active || p.HasVisited(nid) {
			continue
		}
		dist := holder.Position.DistanceTo(target.Position)
		candidates = append(candidates, Candidate{
			ID:              nid,
			Position:        target.Position,
			Signal:          SignalStrength(dist, s.cfg.CommRange),
			BandwidthMbps:   s.cfg.Radio.Bandwidth(dist, s.cfg.CommRange),
			Energy:          target.NormalizedEnergy(),
			BufferOccupancy: target.BufferOccupancy(),
		})
	}
	return candidates
}

func (s *Simulator) removeFromFlightLocked(packetID int) {
	for i, id := range s.inFlight {
		if id == packetID {
			s.inFlight = append(s.inFlight[:i], s.inFlight[i+1:]...)
			return
		}
	}
}

func candidateSetContains(candidates []Candidate, id int) bool {
	for _, c := range candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}
