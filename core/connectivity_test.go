package core

import (
	"math/rand"
	"testing"

	"github.com/dr-isosan/LifeNode/model"
)

// lineNodes builds nodes 0..n-1 spaced 10 m apart on a line, linked to
// their immediate neighbors (range 15).
func lineNodes(t *testing.T, n int) map[int]*model.Node {
	t.Helper()
	nodes := make(map[int]*model.Node, n)
	for i := 0; i < n; i++ {
		nodes[i] = model.NewNode(i, model.Position{X: float64(i) * 10, Y: 0}, 100, 10)
	}
	for i := 0; i < n-1; i++ {
		nodes[i].AddNeighbor(i + 1)
		nodes[i+1].AddNeighbor(i)
	}
	return nodes
}

// checkActiveSymmetry verifies that over active nodes the neighbor caches
// describe an undirected graph and never reference an inactive peer.
// Inactive nodes keep stale sets on purpose; those are ignored.
func checkActiveSymmetry(t *testing.T, nodes map[int]*model.Node) {
	t.Helper()
	for id, n := range nodes {
		if !n.Active {
			continue
		}
		for _, nid := range n.Neighbors {
			peer, ok := nodes[nid]
			if !ok {
				t.Fatalf("node %d references unknown neighbor %d", id, nid)
			}
			if !peer.Active {
				t.Fatalf("active node %d still lists failed node %d", id, nid)
			}
			if !peer.HasNeighbor(id) {
				t.Fatalf("symmetry broken: %d in neighbors(%d) but not vice versa", nid, id)
			}
		}
	}
}

func TestOnFailuresPrunesFailedNode(t *testing.T) {
	nodes := lineNodes(t, 3)
	m := NewNeighborMaintainer(15)

	nodes[1].Fail()
	m.OnFailures(nodes, []int{1})

	if nodes[0].HasNeighbor(1) || nodes[2].HasNeighbor(1) {
		t.Fatalf("failed node 1 still referenced: %v / %v", nodes[0].Neighbors, nodes[2].Neighbors)
	}
	// The failed node's own set is left stale by contract.
	if !nodes[1].HasNeighbor(0) || !nodes[1].HasNeighbor(2) {
		t.Fatalf("failed node's own set was modified: %v", nodes[1].Neighbors)
	}
	checkActiveSymmetry(t, nodes)
}

func TestOnRepairsRebuildsFromScratch(t *testing.T) {
	nodes := lineNodes(t, 3)
	m := NewNeighborMaintainer(15)

	nodes[1].Fail()
	m.OnFailures(nodes, []int{1})

	nodes[1].Repair()
	m.OnRepairs(nodes, []int{1})

	if !nodes[1].HasNeighbor(0) || !nodes[1].HasNeighbor(2) {
		t.Fatalf("repaired node 1 not relinked: %v", nodes[1].Neighbors)
	}
	if !nodes[0].HasNeighbor(1) || !nodes[2].HasNeighbor(1) {
		t.Fatalf("peers not relinked to repaired node: %v / %v", nodes[0].Neighbors, nodes[2].Neighbors)
	}
	checkActiveSymmetry(t, nodes)
}

func TestOnRepairsIgnoresInactivePeers(t *testing.T) {
	nodes := lineNodes(t, 3)
	m := NewNeighborMaintainer(15)

	nodes[0].Fail()
	nodes[1].Fail()
	m.OnFailures(nodes, []int{0, 1})

	// Only node 1 comes back; node 0 stays down and must not be linked.
	nodes[1].Repair()
	m.OnRepairs(nodes, []int{1})

	if nodes[1].HasNeighbor(0) {
		t.Fatalf("repaired node linked to inactive peer: %v", nodes[1].Neighbors)
	}
	if !nodes[1].HasNeighbor(2) {
		t.Fatalf("repaired node missing active peer: %v", nodes[1].Neighbors)
	}
	checkActiveSymmetry(t, nodes)
}

func TestSymmetricOverActiveDetectsCorruption(t *testing.T) {
	nodes := lineNodes(t, 3)
	m := NewNeighborMaintainer(15)

	if err := m.SymmetricOverActive(nodes); err != nil {
		t.Fatalf("healthy graph flagged: %v", err)
	}

	// A one-sided edge must be reported.
	nodes[0].RemoveNeighbor(1)
	if err := m.SymmetricOverActive(nodes); err == nil {
		t.Fatalf("one-sided edge not detected")
	}
	nodes[0].AddNeighbor(1)

	// So must a live node still pointing at a failed one.
	nodes[2].Fail()
	if err := m.SymmetricOverActive(nodes); err == nil {
		t.Fatalf("stale edge to failed node not detected")
	}
	m.OnFailures(nodes, []int{2})
	if err := m.SymmetricOverActive(nodes); err != nil {
		t.Fatalf("graph flagged after maintenance: %v", err)
	}
}

func TestSymmetryHoldsUnderRandomChurn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumNodes = 30
	rng := rand.New(rand.NewSource(99))

	nodes, err := GenerateTopology(cfg, rng)
	if err != nil {
		t.Fatalf("GenerateTopology: %v", err)
	}
	m := NewNeighborMaintainer(cfg.CommRange)

	for round := 0; round < 200; round++ {
		var failed, repaired []int
		for id := 0; id < cfg.NumNodes; id++ {
			node := nodes[id]
			draw := rng.Float64()
			switch {
			case node.Active && draw < 0.15:
				node.Fail()
				failed = append(failed, id)
			case !node.Active && draw < 0.5:
				node.Repair()
				repaired = append(repaired, id)
			}
		}
		m.OnFailures(nodes, failed)
		m.OnRepairs(nodes, repaired)
		checkActiveSymmetry(t, nodes)
	}
}
