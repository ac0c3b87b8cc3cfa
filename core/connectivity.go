package core

import (
	"fmt"
	"sort"

	"github.com/dr-isosan/LifeNode/model"
)

// NeighborMaintainer keeps the per-node neighbor caches consistent with the
// link rule (both endpoints active, distance <= range) as nodes churn.
//
// The caches are a derived index over positions and active flags, never an
// independent source of truth: every failure and repair must pass through
// here so the symmetry invariant (v in neighbors(u) iff u in neighbors(v))
// holds over active nodes after every tick.
type NeighborMaintainer struct {
	commRange float64
}

// NewNeighborMaintainer returns a maintainer using the given link range.
func NewNeighborMaintainer(commRange float64) *NeighborMaintainer {
	return &NeighborMaintainer{commRange: commRange}
}

// OnFailures prunes each failed id from every other node's neighbor set.
// The failed node's own set is left as-is; it is ignored while inactive and
// rebuilt on repair.
func (m *NeighborMaintainer) OnFailures(nodes map[int]*model.Node, failed []int) {
	for _, failedID := range failed {
		for _, id := range sortedNodeIDs(nodes) {
			if id == failedID {
				continue
			}
			nodes[id].RemoveNeighbor(failedID)
		}
	}
}

// OnRepairs recomputes each repaired node's neighbor set from scratch
// against all currently active nodes, and symmetrically inserts the
// repaired id into each peer's set.
func (m *NeighborMaintainer) OnRepairs(nodes map[int]*model.Node, repaired []int) {
	for _, repairedID := range repaired {
		node, ok := nodes[repairedID]
		if !ok {
			continue
		}

		fresh := make([]int, 0, len(nodes))
		for _, id := range sortedNodeIDs(nodes) {
			if id == repairedID {
				continue
			}
			peer := nodes[id]
			if !peer.Active {
				continue
			}
			if node.Position.DistanceTo(peer.Position) <= m.commRange {
				fresh = append(fresh, id)
				peer.AddNeighbor(repairedID)
			}
		}
		node.SetNeighbors(fresh)
	}
}

// SymmetricOverActive checks the symmetry invariant across all active nodes:
// every listed neighbor must exist, be active, and list the node back. It is
// a debug assertion; the maintainer's own operations never violate it.
func (m *NeighborMaintainer) SymmetricOverActive(nodes map[int]*model.Node) error {
	for _, id := range sortedNodeIDs(nodes) {
		node := nodes[id]
		if !node.Active {
			continue
		}
		for _, nid := range node.Neighbors {
			peer, ok := nodes[nid]
			if !ok {
				return fmt.Errorf("node %d lists unknown neighbor %d", id, nid)
			}
			if !peer.Active {
				return fmt.Errorf("node %d lists inactive neighbor %d", id, nid)
			}
			if !peer.HasNeighbor(id) {
				return fmt.Errorf("node %d lists %d but not vice versa", id, nid)
			}
		}
	}
	return nil
}

func sortedNodeIDs(nodes map[int]*model.Node) []int {
	ids := make([]int, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
