package model

import (
	"math"
	"testing"
)

func TestPositionDistanceTo(t *testing.T) {
	a := Position{X: 0, Y: 0}
	b := Position{X: 3, Y: 4}

	if got := a.DistanceTo(b); got != 5 {
		t.Fatalf("DistanceTo = %v, want 5", got)
	}
	if got := b.DistanceTo(a); got != 5 {
		t.Fatalf("DistanceTo should be symmetric, got %v", got)
	}
	if got := a.DistanceTo(a); got != 0 {
		t.Fatalf("DistanceTo self = %v, want 0", got)
	}
}

func TestNodeNeighborSetStaysSortedAndUnique(t *testing.T) {
	n := NewNode(1, Position{}, 100, 10)

	for _, id := range []int{7, 3, 9, 3, 5, 1} {
		n.AddNeighbor(id)
	}

	want := []int{3, 5, 7, 9}
	if len(n.Neighbors) != len(want) {
		t.Fatalf("neighbor count = %d, want %d (%v)", len(n.Neighbors), len(want), n.Neighbors)
	}
	for i, id := range want {
		if n.Neighbors[i] != id {
			t.Fatalf("Neighbors = %v, want %v", n.Neighbors, want)
		}
	}

	if !n.HasNeighbor(5) {
		t.Fatalf("HasNeighbor(5) = false, want true")
	}
	if n.HasNeighbor(1) {
		t.Fatalf("self-loop was inserted into neighbor set")
	}

	n.RemoveNeighbor(5)
	if n.HasNeighbor(5) {
		t.Fatalf("HasNeighbor(5) = true after removal")
	}
	n.RemoveNeighbor(42) // absent id is a no-op
	if got := len(n.Neighbors); got != 3 {
		t.Fatalf("neighbor count after removals = %d, want 3", got)
	}
}

func TestNodeSetNeighborsReplacesSet(t *testing.T) {
	n := NewNode(2, Position{}, 100, 10)
	n.AddNeighbor(1)
	n.AddNeighbor(3)

	n.SetNeighbors([]int{9, 2, 4, 9, 4})

	want := []int{4, 9}
	if len(n.Neighbors) != len(want) {
		t.Fatalf("Neighbors = %v, want %v", n.Neighbors, want)
	}
	for i, id := range want {
		if n.Neighbors[i] != id {
			t.Fatalf("Neighbors = %v, want %v", n.Neighbors, want)
		}
	}
}

func TestNodeBufferCapacity(t *testing.T) {
	n := NewNode(1, Position{}, 100, 2)

	if !n.EnqueuePacket(10) || !n.EnqueuePacket(11) {
		t.Fatalf("enqueue below capacity failed")
	}
	if n.EnqueuePacket(12) {
		t.Fatalf("enqueue above capacity succeeded")
	}
	if got := n.BufferOccupancy(); got != 1.0 {
		t.Fatalf("BufferOccupancy = %v, want 1.0", got)
	}

	if !n.RemovePacket(10) {
		t.Fatalf("RemovePacket(10) = false, want true")
	}
	if n.RemovePacket(10) {
		t.Fatalf("RemovePacket(10) succeeded twice")
	}
	if got := n.BufferOccupancy(); got != 0.5 {
		t.Fatalf("BufferOccupancy = %v, want 0.5", got)
	}

	drained := n.DrainBuffer()
	if len(drained) != 1 || drained[0] != 11 {
		t.Fatalf("DrainBuffer = %v, want [11]", drained)
	}
	if len(n.Buffer) != 0 {
		t.Fatalf("buffer not empty after drain: %v", n.Buffer)
	}
}

func TestNodeEnergyClampsAtZero(t *testing.T) {
	n := NewNode(1, Position{}, 100, 10)

	n.ConsumeEnergy(30)
	if got := n.NormalizedEnergy(); math.Abs(got-0.7) > 1e-9 {
		t.Fatalf("NormalizedEnergy = %v, want 0.7", got)
	}

	n.ConsumeEnergy(1000)
	if n.Energy != 0 {
		t.Fatalf("Energy = %v, want 0 after over-drain", n.Energy)
	}
	if got := n.NormalizedEnergy(); got != 0 {
		t.Fatalf("NormalizedEnergy = %v, want 0", got)
	}
}

func TestNodeFailRepairKeepsEnergy(t *testing.T) {
	n := NewNode(4, Position{X: 1, Y: 1}, 100, 10)
	n.ConsumeEnergy(40)

	n.Fail()
	if n.Active {
		t.Fatalf("node active after Fail")
	}
	n.Repair()
	if !n.Active {
		t.Fatalf("node inactive after Repair")
	}
	if n.Energy != 60 {
		t.Fatalf("Energy = %v after repair, want 60 (repair must not recharge)", n.Energy)
	}
}

func TestNodeCloneIsDeep(t *testing.T) {
	n := NewNode(1, Position{X: 2, Y: 3}, 100, 10)
	n.AddNeighbor(2)
	n.EnqueuePacket(5)

	c := n.Clone()
	c.AddNeighbor(9)
	c.EnqueuePacket(6)
	c.ConsumeEnergy(50)

	if n.HasNeighbor(9) {
		t.Fatalf("clone mutation leaked into original neighbor set")
	}
	if len(n.Buffer) != 1 {
		t.Fatalf("clone mutation leaked into original buffer: %v", n.Buffer)
	}
	if n.Energy != 100 {
		t.Fatalf("clone mutation leaked into original energy: %v", n.Energy)
	}
}
