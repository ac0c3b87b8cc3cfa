package core

import (
	"fmt"
	"math/rand"

	"github.com/dr-isosan/LifeNode/model"
)

// GenerateTopology builds a random geometric graph: numNodes positions drawn
// uniformly over the deployment area, with an edge between every pair at
// distance <= commRange. Node ids are assigned 0..numNodes-1 in draw order,
// so the same generator state always yields the same topology.
//
// The pairwise check is O(n^2), which is fine at the tens-to-hundreds scale
// this simulator targets.
func GenerateTopology(cfg Config, rng *rand.Rand) (map[int]*model.Node, error) {
	if cfg.NumNodes < 1 {
		return nil, fmt.Errorf("topology with %d nodes: %w", cfg.NumNodes, ErrInvalidParameter)
	}
	if cfg.CommRange <= 0 {
		return nil, fmt.Errorf("topology with range %.2f: %w", cfg.CommRange, ErrInvalidParameter)
	}
	if rng == nil {
		return nil, fmt.Errorf("topology without a random source: %w", ErrInvalidParameter)
	}

	nodes := make(map[int]*model.Node, cfg.NumNodes)
	for id := 0; id < cfg.NumNodes; id++ {
		pos := model.Position{
			X: rng.Float64() * cfg.Width,
			Y: rng.Float64() * cfg.Height,
		}
		nodes[id] = model.NewNode(id, pos, cfg.InitialEnergy, cfg.BufferCapacity)
	}

	for i := 0; i < cfg.NumNodes; i++ {
		for j := i + 1; j < cfg.NumNodes; j++ {
			if nodes[i].Position.DistanceTo(nodes[j].Position) <= cfg.CommRange {
				nodes[i].AddNeighbor(j)
				nodes[j].AddNeighbor(i)
			}
		}
	}

	return nodes, nil
}
