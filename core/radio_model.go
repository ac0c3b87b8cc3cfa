package core

// SignalStrength estimates link quality between two radios from their
// distance, as a fraction in [0,1]. The model is a free-space path loss
// approximation with quadratic falloff:
//
//	signal = max(0, 1 - (distance/range)^2)
//
// It is pure: the same inputs always produce the same output. Anything at
// or beyond the communication range reads as zero.
func SignalStrength(distance, commRange float64) float64 {
	if commRange <= 0 || distance >= commRange {
		return 0
	}
	if distance < 0 {
		distance = 0
	}
	ratio := distance / commRange
	signal := 1 - ratio*ratio
	if signal < 0 {
		return 0
	}
	if signal > 1 {
		return 1
	}
	return signal
}

// BandwidthTier maps a signal strength floor to the fraction of the link
// ceiling that modulation grade sustains.
type BandwidthTier struct {
	MinSignal float64 `json:"MinSignal" yaml:"minSignal"`
	Fraction  float64 `json:"Fraction" yaml:"fraction"`
}

// RadioModel is the physical layer: it turns pairwise distance into signal
// strength, adaptive-modulation bandwidth, per-hop latency, and per-hop
// transmit energy. All methods are pure functions of the model parameters.
type RadioModel struct {
	// MaxBandwidthMbps is the link ceiling a perfect signal sustains.
	MaxBandwidthMbps float64 `json:"MaxBandwidthMbps" yaml:"maxBandwidthMbps"`
	// MinBandwidthMbps is the floor guaranteed to any in-range link.
	MinBandwidthMbps float64 `json:"MinBandwidthMbps" yaml:"minBandwidthMbps"`
	// DistancePenalty shaves bandwidth linearly with normalized distance
	// on top of the modulation tier.
	DistancePenalty float64 `json:"DistancePenalty" yaml:"distancePenalty"`

	LatencyBaseMs     float64 `json:"LatencyBaseMs" yaml:"latencyBaseMs"`
	LatencyPerMeterMs float64 `json:"LatencyPerMeterMs" yaml:"latencyPerMeterMs"`

	EnergyBaseCost     float64 `json:"EnergyBaseCost" yaml:"energyBaseCost"`
	EnergyPerMeterCost float64 `json:"EnergyPerMeterCost" yaml:"energyPerMeterCost"`

	// Tiers maps signal strength to a bandwidth fraction, checked in
	// order. The last tier should have MinSignal 0 so every in-range
	// link lands somewhere.
	Tiers []BandwidthTier `json:"Tiers" yaml:"tiers"`
}

// DefaultRadioModel returns an 802.11g-class link model: 54 Mbps ceiling,
// four modulation grades stepping down at signal 0.8/0.6/0.4/0.2, and a
// 10% floor tier for barely-in-range links.
func DefaultRadioModel() RadioModel {
	return RadioModel{
		MaxBandwidthMbps:   54.0,
		MinBandwidthMbps:   1.0,
		DistancePenalty:    0.3,
		LatencyBaseMs:      1.0,
		LatencyPerMeterMs:  0.1,
		EnergyBaseCost:     0.5,
		EnergyPerMeterCost: 0.01,
		Tiers: []BandwidthTier{
			{MinSignal: 0.8, Fraction: 1.0},
			{MinSignal: 0.6, Fraction: 0.75},
			{MinSignal: 0.4, Fraction: 0.5},
			{MinSignal: 0.2, Fraction: 0.25},
			{MinSignal: 0.0, Fraction: 0.1},
		},
	}
}

// Bandwidth returns the usable data rate in Mbps for a link of the given
// length. Out-of-range links carry nothing; in-range links get their tier
// fraction of the ceiling, reduced by the distance penalty and floored at
// MinBandwidthMbps.
func (m RadioModel) Bandwidth(distance, commRange float64) float64 {
	signal := SignalStrength(distance, commRange)
	if signal <= 0 {
		return 0
	}

	fraction := 0.0
	for _, tier := range m.Tiers {
		if signal >= tier.MinSignal {
			fraction = tier.Fraction
			break
		}
	}

	bw := m.MaxBandwidthMbps * fraction * (1 - m.DistancePenalty*(distance/commRange))
	if bw < m.MinBandwidthMbps {
		bw = m.MinBandwidthMbps
	}
	return bw
}

// HopLatencyMs returns the transmission latency of a single hop across the
// given distance.
func (m RadioModel) HopLatencyMs(distance float64) float64 {
	return m.LatencyBaseMs + m.LatencyPerMeterMs*distance
}

// HopEnergyCost returns the battery charge a sender spends pushing one
// packet across the given distance. The receiver pays half of this.
func (m RadioModel) HopEnergyCost(distance float64) float64 {
	return m.EnergyBaseCost + m.EnergyPerMeterCost*distance
}
