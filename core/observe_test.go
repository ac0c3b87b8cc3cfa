package core

import (
	"errors"
	"math"
	"testing"

	"github.com/dr-isosan/LifeNode/model"
)

func floatsClose(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

func TestObservationLayout(t *testing.T) {
	cfg := fixtureConfig()
	sim := chainSim(t, cfg)

	vec, err := sim.Observe(2, 3)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if len(vec) != cfg.ObservationSize() {
		t.Fatalf("len = %d, want %d", len(vec), cfg.ObservationSize())
	}

	// Distance 2->3 is 10 m against a 1000 m normalization ceiling.
	if !floatsClose(vec[0], 0.01) {
		t.Fatalf("distance feature = %v, want 0.01", vec[0])
	}

	// Both neighbors sit 10 m out on a 15 m radio.
	ratio := 10.0 / 15.0
	signal := 1 - ratio*ratio
	for slot, nid := range []int{1, 3} {
		base := 1 + slot*observationFeatures
		if !floatsClose(vec[base], signal) {
			t.Fatalf("slot %d (node %d) signal = %v, want %v", slot, nid, vec[base], signal)
		}
		if vec[base+1] != 1.0 {
			t.Fatalf("slot %d (node %d) energy = %v, want 1.0", slot, nid, vec[base+1])
		}
		if vec[base+2] != 0.0 {
			t.Fatalf("slot %d (node %d) buffer = %v, want 0.0", slot, nid, vec[base+2])
		}
	}

	// Remaining slots are padded as absent neighbors with full queues.
	for slot := 2; slot < cfg.NeighborSlots; slot++ {
		base := 1 + slot*observationFeatures
		if vec[base] != padSignal || vec[base+1] != padEnergy || vec[base+2] != padBuffer {
			t.Fatalf("slot %d padding = %v, want (0, 0, 1)", slot, vec[base:base+3])
		}
	}
}

func TestObservationDropsFailedNeighbors(t *testing.T) {
	sim := chainSim(t, fixtureConfig())
	if err := sim.FailNode(3); err != nil {
		t.Fatalf("FailNode: %v", err)
	}

	vec, err := sim.Observe(2, 3)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}

	// Only node 1 remains; slot 1 onward must read as padding even though
	// the observation still targets the (now failed) destination.
	if vec[2] != 1.0 {
		t.Fatalf("slot 0 energy = %v, want the surviving neighbor", vec[2])
	}
	base := 1 + observationFeatures
	if vec[base] != padSignal || vec[base+1] != padEnergy || vec[base+2] != padBuffer {
		t.Fatalf("slot 1 = %v, want padding after neighbor failure", vec[base:base+3])
	}
}

func TestObservationClampsDistance(t *testing.T) {
	sim := chainSim(t, fixtureConfig())
	far := sim.AddNode(model.Position{X: 40, Y: 2000})

	vec, err := sim.Observe(1, far)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if vec[0] != 1.0 {
		t.Fatalf("distance feature = %v, want clamp at 1.0", vec[0])
	}
}

func TestObserveUnknownNodes(t *testing.T) {
	sim := chainSim(t, fixtureConfig())

	if _, err := sim.Observe(99, 1); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("unknown observer: err = %v, want ErrInvalidNode", err)
	}
	if _, err := sim.Observe(1, 99); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("unknown destination: err = %v, want ErrInvalidNode", err)
	}
}

func TestHopRewardScalesWithRelayDepletion(t *testing.T) {
	cases := []struct {
		energy float64
		want   float64
	}{
		{1.0, -5.0},
		{0.9, -10.0},
		{0.5, -30.0},
		{0.2, -45.0},
		{0.0, -55.0},
	}
	for _, tc := range cases {
		if got := HopReward(tc.energy); !floatsClose(got, tc.want) {
			t.Errorf("HopReward(%v) = %v, want %v", tc.energy, got, tc.want)
		}
	}
}

func TestResolveAction(t *testing.T) {
	sim := chainSim(t, fixtureConfig())

	// Node 2 sees nodes 1 and 3, ascending.
	if got, err := sim.ResolveAction(2, 0); err != nil || got != 1 {
		t.Fatalf("ResolveAction(2, 0) = %d, %v; want 1", got, err)
	}
	if got, err := sim.ResolveAction(2, 1); err != nil || got != 3 {
		t.Fatalf("ResolveAction(2, 1) = %d, %v; want 3", got, err)
	}

	// Indexes past the live neighbor count or outside the slot range do
	// not clamp; they are routing failures.
	for _, action := range []int{2, -1, 5} {
		if _, err := sim.ResolveAction(2, action); !errors.Is(err, ErrNoRoute) {
			t.Fatalf("ResolveAction(2, %d): err = %v, want ErrNoRoute", action, err)
		}
	}
	if _, err := sim.ResolveAction(99, 0); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("unknown node: err = %v, want ErrInvalidNode", err)
	}

	// A failed neighbor drops out of the index space entirely.
	if err := sim.FailNode(1); err != nil {
		t.Fatalf("FailNode: %v", err)
	}
	if got, err := sim.ResolveAction(2, 0); err != nil || got != 3 {
		t.Fatalf("ResolveAction(2, 0) after failure = %d, %v; want 3", got, err)
	}
}

func TestExecuteHopMovesAndCharges(t *testing.T) {
	sim := chainSim(t, fixtureConfig())

	id, err := sim.SendPacket(1, 3)
	if err != nil {
		t.Fatalf("SendPacket: %v", err)
	}

	res, err := sim.ExecuteHop(id, 2)
	if err != nil {
		t.Fatalf("ExecuteHop: %v", err)
	}
	if res.From != 1 || res.To != 2 || res.Terminal {
		t.Fatalf("result = %+v, want non-terminal 1->2", res)
	}
	if !floatsClose(res.Distance, 10) || !floatsClose(res.LatencyMs, 2.0) || !floatsClose(res.EnergyCost, 0.6) {
		t.Fatalf("hop physics = %+v", res)
	}
	ratio := 10.0 / 15.0
	if !floatsClose(res.Signal, 1-ratio*ratio) {
		t.Fatalf("signal = %v", res.Signal)
	}
	// Signal 0.56 lands in the half-rate tier: 54 * 0.5 * (1 - 0.3*2/3).
	if !floatsClose(res.BandwidthMbps, 21.6) {
		t.Fatalf("bandwidth = %v, want 21.6", res.BandwidthMbps)
	}
	if !floatsClose(res.TargetEnergy, 0.997) {
		t.Fatalf("target energy = %v, want 0.997 after the half charge", res.TargetEnergy)
	}
	if !floatsClose(res.Reward, HopReward(0.997)) {
		t.Fatalf("reward = %v, want %v", res.Reward, HopReward(0.997))
	}

	n1, _ := sim.Node(1)
	n2, _ := sim.Node(2)
	if !floatsClose(n1.Energy, 99.4) || !floatsClose(n2.Energy, 99.7) {
		t.Fatalf("energies = %v / %v, want 99.4 / 99.7", n1.Energy, n2.Energy)
	}
	p, _ := sim.Packet(id)
	if p.Current != 2 || p.Hops != 1 {
		t.Fatalf("packet = %+v", p)
	}

	// Revisiting the source is refused and changes nothing.
	if _, err := sim.ExecuteHop(id, 1); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("revisit: err = %v, want ErrNoRoute", err)
	}
	if _, err := sim.ExecuteHop(id, 99); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("unknown target: err = %v, want ErrInvalidNode", err)
	}
	if _, err := sim.ExecuteHop(99, 2); !errors.Is(err, ErrInvalidPacket) {
		t.Fatalf("unknown packet: err = %v, want ErrInvalidPacket", err)
	}

	// Landing on the destination resolves delivery immediately.
	res, err = sim.ExecuteHop(id, 3)
	if err != nil {
		t.Fatalf("ExecuteHop: %v", err)
	}
	if !res.Terminal || res.Status != model.PacketDelivered || res.Reward != RewardDelivered {
		t.Fatalf("arrival result = %+v", res)
	}

	p, _ = sim.Packet(id)
	if p.Status != model.PacketDelivered {
		t.Fatalf("status = %s, want delivered", p.Status)
	}
	wantReward := HopReward(0.997) + RewardDelivered
	if !floatsClose(p.Reward, wantReward) {
		t.Fatalf("accumulated reward = %v, want %v", p.Reward, wantReward)
	}

	if _, err := sim.ExecuteHop(id, 2); !errors.Is(err, ErrInvalidPacket) {
		t.Fatalf("hop on terminal packet: err = %v, want ErrInvalidPacket", err)
	}

	st := sim.Stats()
	if st.Delivered != 1 {
		t.Fatalf("stats = %+v", st)
	}
	checkConservation(t, st)
}

func TestExecuteHopIntoFullBufferIsTerminalLoss(t *testing.T) {
	cfg := fixtureConfig()
	cfg.BufferCapacity = 1
	sim := mustSimulator(t, cfg)
	sim.AddNode(model.Position{X: 40, Y: 0})  // 1
	sim.AddNode(model.Position{X: 50, Y: 0})  // 2
	sim.AddNode(model.Position{X: 60, Y: 0})  // 3
	sim.AddNode(model.Position{X: 50, Y: 12}) // 4

	first, err := sim.SendPacket(4, 3)
	if err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	if _, err := sim.ExecuteHop(first, 2); err != nil {
		t.Fatalf("ExecuteHop: %v", err)
	}

	second, err := sim.SendPacket(1, 3)
	if err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	res, err := sim.ExecuteHop(second, 2)
	if err != nil {
		t.Fatalf("full buffer must not be an error, got %v", err)
	}
	if !res.Terminal || res.Status != model.PacketLost || res.Reward != RewardLost {
		t.Fatalf("result = %+v, want terminal buffer_full loss", res)
	}

	p, _ := sim.Packet(second)
	if p.Status != model.PacketLost || p.LossReason != model.LossBufferFull {
		t.Fatalf("packet = %s/%s", p.Status, p.LossReason)
	}
	checkConservation(t, sim.Stats())
}

func TestExecuteHopEnforcesHopCeiling(t *testing.T) {
	cfg := fixtureConfig()
	cfg.MaxHops = 1
	sim := chainSim(t, cfg)

	id, err := sim.SendPacket(1, 3)
	if err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	res, err := sim.ExecuteHop(id, 2)
	if err != nil {
		t.Fatalf("ExecuteHop: %v", err)
	}
	if !res.Terminal || res.Status != model.PacketTimedOut || res.Reward != RewardLost {
		t.Fatalf("result = %+v, want timeout on the hop that spent the budget", res)
	}

	p, _ := sim.Packet(id)
	if p.Status != model.PacketTimedOut || p.Hops != 1 {
		t.Fatalf("packet = %+v", p)
	}
	checkConservation(t, sim.Stats())
}
