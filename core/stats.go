package core

import (
	"time"

	"github.com/dr-isosan/LifeNode/model"
)

// Stats accumulates packet accounting across a whole run. The counters
// always satisfy Delivered+Lost+TimedOut+InFlight == TotalSent; timed-out
// packets count as failures for the delivery rate but are tracked apart.
type Stats struct {
	Ticks     int `json:"Ticks"`
	TotalSent int `json:"TotalSent"`
	Delivered int `json:"Delivered"`
	Lost      int `json:"Lost"`
	TimedOut  int `json:"TimedOut"`
	InFlight  int `json:"InFlight"`

	// TotalLatencyMs sums end-to-end latency over delivered packets.
	TotalLatencyMs float64 `json:"TotalLatencyMs"`
	// TotalHops sums path lengths over delivered packets.
	TotalHops int `json:"TotalHops"`

	Losses map[model.LossReason]int `json:"Losses,omitempty"`
}

func newStats() Stats {
	return Stats{Losses: make(map[model.LossReason]int)}
}

func (s *Stats) recordLoss(reason model.LossReason) {
	s.Lost++
	s.InFlight--
	if s.Losses == nil {
		s.Losses = make(map[model.LossReason]int)
	}
	s.Losses[reason]++
}

func (s *Stats) recordTimeout() {
	s.TimedOut++
	s.InFlight--
}

func (s *Stats) recordDelivery(p *model.Packet) {
	s.Delivered++
	s.InFlight--
	s.TotalLatencyMs += p.LatencyMs
	s.TotalHops += p.Hops
}

// DeliveryRate returns delivered/sent in [0,1]; zero before any send.
func (s Stats) DeliveryRate() float64 {
	if s.TotalSent == 0 {
		return 0
	}
	return float64(s.Delivered) / float64(s.TotalSent)
}

// AvgLatencyMs returns the mean end-to-end latency over delivered packets.
func (s Stats) AvgLatencyMs() float64 {
	if s.Delivered == 0 {
		return 0
	}
	return s.TotalLatencyMs / float64(s.Delivered)
}

// AvgHops returns the mean path length over delivered packets.
func (s Stats) AvgHops() float64 {
	if s.Delivered == 0 {
		return 0
	}
	return float64(s.TotalHops) / float64(s.Delivered)
}

// Clone returns a copy safe to hand outside the simulator lock.
func (s Stats) Clone() Stats {
	out := s
	out.Losses = make(map[model.LossReason]int, len(s.Losses))
	for k, v := range s.Losses {
		out.Losses[k] = v
	}
	return out
}

// TickReport summarizes what a single Step changed, so telemetry consumers
// can publish a tick without re-reading simulator state under the lock.
type TickReport struct {
	Tick        int     `json:"Tick"`
	FailureRate float64 `json:"FailureRate"`

	Failed   []int `json:"Failed,omitempty"`
	Repaired []int `json:"Repaired,omitempty"`

	// Advanced counts the in-flight packets this tick touched.
	Advanced  int `json:"Advanced"`
	Delivered int `json:"Delivered"`
	Lost      int `json:"Lost"`
	TimedOut  int `json:"TimedOut"`

	LossReasons map[model.LossReason]int `json:"LossReasons,omitempty"`
	// DeliveredLatencyMs lists the end-to-end latency of every packet
	// delivered this tick.
	DeliveredLatencyMs []float64 `json:"DeliveredLatencyMs,omitempty"`

	ActiveNodes int `json:"ActiveNodes"`
	InFlight    int `json:"InFlight"`

	// Duration is the wall-clock cost of the Step call.
	Duration time.Duration `json:"Duration"`
}
