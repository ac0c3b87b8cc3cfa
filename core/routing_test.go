package core

import (
	"math/rand"
	"testing"

	"github.com/dr-isosan/LifeNode/model"
)

func routeQuery(candidates ...Candidate) RouteQuery {
	return RouteQuery{
		PacketID:       1,
		Current:        0,
		CurrentPos:     model.Position{X: 0, Y: 0},
		Destination:    99,
		DestinationPos: model.Position{X: 100, Y: 0},
		Path:           []int{0},
		Candidates:     candidates,
	}
}

func TestRandomGreedyPolicyNoCandidates(t *testing.T) {
	p := NewRandomGreedyPolicy(rand.New(rand.NewSource(1)), 0.7)

	if id, ok := p.NextHop(routeQuery()); ok {
		t.Fatalf("NextHop with no candidates = (%d, true), want no route", id)
	}
}

func TestRandomGreedyPolicyGreedyPicksClosest(t *testing.T) {
	// randomProb 0 forces the greedy branch every time.
	p := NewRandomGreedyPolicy(rand.New(rand.NewSource(1)), 0)

	q := routeQuery(
		Candidate{ID: 3, Position: model.Position{X: 10, Y: 0}},
		Candidate{ID: 5, Position: model.Position{X: 60, Y: 0}},
		Candidate{ID: 8, Position: model.Position{X: 40, Y: 0}},
	)

	for i := 0; i < 20; i++ {
		id, ok := p.NextHop(q)
		if !ok || id != 5 {
			t.Fatalf("greedy NextHop = (%d, %v), want (5, true)", id, ok)
		}
	}
}

func TestRandomGreedyPolicyGreedyTieBreaksLowestID(t *testing.T) {
	p := NewRandomGreedyPolicy(rand.New(rand.NewSource(1)), 0)

	// Both candidates are equidistant from the destination; candidates
	// arrive sorted by id, so the first strict improvement wins.
	q := routeQuery(
		Candidate{ID: 2, Position: model.Position{X: 50, Y: 10}},
		Candidate{ID: 7, Position: model.Position{X: 50, Y: -10}},
	)

	if id, ok := p.NextHop(q); !ok || id != 2 {
		t.Fatalf("tie-break NextHop = (%d, %v), want (2, true)", id, ok)
	}
}

func TestRandomGreedyPolicyRandomStaysInCandidates(t *testing.T) {
	// randomProb 1 forces the random branch every time.
	p := NewRandomGreedyPolicy(rand.New(rand.NewSource(7)), 1)

	q := routeQuery(
		Candidate{ID: 2, Position: model.Position{X: 1, Y: 0}},
		Candidate{ID: 4, Position: model.Position{X: 2, Y: 0}},
		Candidate{ID: 9, Position: model.Position{X: 3, Y: 0}},
	)

	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		id, ok := p.NextHop(q)
		if !ok {
			t.Fatalf("random NextHop reported no route with candidates present")
		}
		if id != 2 && id != 4 && id != 9 {
			t.Fatalf("random NextHop chose %d, not a candidate", id)
		}
		seen[id] = true
	}
	if len(seen) != 3 {
		t.Fatalf("uniform choice over 200 draws hit %d of 3 candidates", len(seen))
	}
}

func TestRandomGreedyPolicyDeterministicPerSeed(t *testing.T) {
	q := routeQuery(
		Candidate{ID: 2, Position: model.Position{X: 1, Y: 0}},
		Candidate{ID: 4, Position: model.Position{X: 2, Y: 0}},
		Candidate{ID: 9, Position: model.Position{X: 3, Y: 0}},
	)

	a := NewRandomGreedyPolicy(rand.New(rand.NewSource(11)), 0.7)
	b := NewRandomGreedyPolicy(rand.New(rand.NewSource(11)), 0.7)

	for i := 0; i < 100; i++ {
		idA, okA := a.NextHop(q)
		idB, okB := b.NextHop(q)
		if idA != idB || okA != okB {
			t.Fatalf("same-seed policies diverged at call %d: (%d,%v) vs (%d,%v)", i, idA, okA, idB, okB)
		}
	}
}
