package core

import "fmt"

// Config carries every tunable of a simulation run. Construction-time
// validation is strict: a Config that passes Validate never causes a
// parameter error later.
type Config struct {
	// NumNodes is the number of devices placed by topology generation.
	NumNodes int `json:"NumNodes" yaml:"numNodes"`

	// Width and Height bound the deployment area in metres.
	Width  float64 `json:"Width" yaml:"width"`
	Height float64 `json:"Height" yaml:"height"`

	// CommRange is the radio range: two nodes link up iff their distance
	// is at most this.
	CommRange float64 `json:"CommRange" yaml:"commRange"`

	// FailureRate is the default per-tick probability that an active node
	// fails. Step takes the rate per call; run loops use this value.
	FailureRate float64 `json:"FailureRate" yaml:"failureRate"`
	// RepairRate is the per-tick probability that a failed node comes back.
	RepairRate float64 `json:"RepairRate" yaml:"repairRate"`

	// BufferCapacity bounds each node's packet queue.
	BufferCapacity int `json:"BufferCapacity" yaml:"bufferCapacity"`
	// MaxHops is the hop ceiling: a packet that moves beyond it times out.
	MaxHops int `json:"MaxHops" yaml:"maxHops"`

	// NeighborSlots is K, the fixed number of neighbor slots encoded in
	// observation vectors and addressable by action indices.
	NeighborSlots int `json:"NeighborSlots" yaml:"neighborSlots"`

	// RandomProb is the exploration fraction of the reference routing
	// policy: with this probability it picks a uniform random candidate
	// instead of the geographically greedy one.
	RandomProb float64 `json:"RandomProb" yaml:"randomProb"`

	// InitialEnergy is the battery charge every node starts with.
	InitialEnergy float64 `json:"InitialEnergy" yaml:"initialEnergy"`

	// ObserveMaxDistance caps the distance-to-destination normalization in
	// observation vectors; anything farther reads as 1.0.
	ObserveMaxDistance float64 `json:"ObserveMaxDistance" yaml:"observeMaxDistance"`

	// MaxEpisodeSteps truncates directed-routing episodes.
	MaxEpisodeSteps int `json:"MaxEpisodeSteps" yaml:"maxEpisodeSteps"`

	// Seed drives the simulator's private random source. Two simulators
	// built from equal Configs walk identical trajectories.
	Seed int64 `json:"Seed" yaml:"seed"`

	Radio RadioModel `json:"Radio" yaml:"radio"`
}

// DefaultConfig returns the reference deployment: 20 nodes over a
// 100x100 m area with a 25 m radio range and mild churn.
func DefaultConfig() Config {
	return Config{
		NumNodes:           20,
		Width:              100.0,
		Height:             100.0,
		CommRange:          25.0,
		FailureRate:        0.02,
		RepairRate:         0.5,
		BufferCapacity:     10,
		MaxHops:            10,
		NeighborSlots:      5,
		RandomProb:         0.7,
		InitialEnergy:      100.0,
		ObserveMaxDistance: 1000.0,
		MaxEpisodeSteps:    50,
		Seed:               1,
		Radio:              DefaultRadioModel(),
	}
}

// Validate checks every field and returns an error wrapping
// ErrInvalidParameter on the first violation.
func (c Config) Validate() error {
	if c.NumNodes < 1 {
		return fmt.Errorf("num nodes %d: %w", c.NumNodes, ErrInvalidParameter)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("area %.2fx%.2f: %w", c.Width, c.Height, ErrInvalidParameter)
	}
	if c.CommRange <= 0 {
		return fmt.Errorf("comm range %.2f: %w", c.CommRange, ErrInvalidParameter)
	}
	if c.FailureRate < 0 || c.FailureRate > 1 {
		return fmt.Errorf("failure rate %.3f: %w", c.FailureRate, ErrInvalidParameter)
	}
	if c.RepairRate < 0 || c.RepairRate > 1 {
		return fmt.Errorf("repair rate %.3f: %w", c.RepairRate, ErrInvalidParameter)
	}
	if c.BufferCapacity < 1 {
		return fmt.Errorf("buffer capacity %d: %w", c.BufferCapacity, ErrInvalidParameter)
	}
	if c.MaxHops < 1 {
		return fmt.Errorf("max hops %d: %w", c.MaxHops, ErrInvalidParameter)
	}
	if c.NeighborSlots < 1 {
		return fmt.Errorf("neighbor slots %d: %w", c.NeighborSlots, ErrInvalidParameter)
	}
	if c.RandomProb < 0 || c.RandomProb > 1 {
		return fmt.Errorf("random prob %.3f: %w", c.RandomProb, ErrInvalidParameter)
	}
	if c.InitialEnergy <= 0 {
		return fmt.Errorf("initial energy %.2f: %w", c.InitialEnergy, ErrInvalidParameter)
	}
	if c.ObserveMaxDistance <= 0 {
		return fmt.Errorf("observe max distance %.2f: %w", c.ObserveMaxDistance, ErrInvalidParameter)
	}
	if c.MaxEpisodeSteps < 1 {
		return fmt.Errorf("max episode steps %d: %w", c.MaxEpisodeSteps, ErrInvalidParameter)
	}
	return c.validateRadio()
}

func (c Config) validateRadio() error {
	r := c.Radio
	if r.MaxBandwidthMbps <= 0 {
		return fmt.Errorf("max bandwidth %.2f: %w", r.MaxBandwidthMbps, ErrInvalidParameter)
	}
	if r.MinBandwidthMbps < 0 || r.MinBandwidthMbps > r.MaxBandwidthMbps {
		return fmt.Errorf("min bandwidth %.2f: %w", r.MinBandwidthMbps, ErrInvalidParameter)
	}
	if r.DistancePenalty < 0 || r.DistancePenalty > 1 {
		return fmt.Errorf("distance penalty %.3f: %w", r.DistancePenalty, ErrInvalidParameter)
	}
	if r.LatencyBaseMs < 0 || r.LatencyPerMeterMs < 0 {
		return fmt.Errorf("latency constants %.3f/%.3f: %w", r.LatencyBaseMs, r.LatencyPerMeterMs, ErrInvalidParameter)
	}
	if r.EnergyBaseCost < 0 || r.EnergyPerMeterCost < 0 {
		return fmt.Errorf("energy constants %.3f/%.3f: %w", r.EnergyBaseCost, r.EnergyPerMeterCost, ErrInvalidParameter)
	}
	if len(r.Tiers) == 0 {
		return fmt.Errorf("empty bandwidth tiers: %w", ErrInvalidParameter)
	}
	prev := 1.1
	for i, tier := range r.Tiers {
		if tier.MinSignal < 0 || tier.MinSignal > 1 {
			return fmt.Errorf("tier %d min signal %.3f: %w", i, tier.MinSignal, ErrInvalidParameter)
		}
		if tier.MinSignal >= prev {
			return fmt.Errorf("tier %d out of order: %w", i, ErrInvalidParameter)
		}
		if tier.Fraction <= 0 || tier.Fraction > 1 {
			return fmt.Errorf("tier %d fraction %.3f: %w", i, tier.Fraction, ErrInvalidParameter)
		}
		prev = tier.MinSignal
	}
	return nil
}
