package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles Prometheus metrics for the simulation core: traffic
// counters, packet outcome accounting, tick cost, and topology gauges. It is
// fed by the run loop after each tick; the simulator itself stays metrics-free.
type SimCollector struct {
	gatherer prometheus.Gatherer

	PacketsSent    prometheus.Counter
	PacketOutcomes *prometheus.CounterVec
	PacketLosses   *prometheus.CounterVec

	TickDuration      prometheus.Histogram
	DeliveryLatencyMs prometheus.Histogram

	ActiveNodes     prometheus.Gauge
	PacketsInFlight prometheus.Gauge
}

// TickSample carries one tick's accounting into the collector.
type TickSample struct {
	Duration  time.Duration
	Delivered int
	Lost      int
	TimedOut  int

	// LossReasons counts this tick's losses by reason string.
	LossReasons map[string]int
	// DeliveredLatencyMs lists end-to-end latencies of packets delivered
	// this tick, in simulated milliseconds.
	DeliveredLatencyMs []float64

	ActiveNodes int
	InFlight    int
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sent, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_packets_sent_total",
		Help: "Total number of packets injected into the mesh.",
	}), "sim_packets_sent_total")
	if err != nil {
		return nil, err
	}

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_packet_outcomes_total",
		Help: "Terminal packet outcomes, labeled delivered, lost, or timed_out.",
	}, []string{"outcome"})
	outcomes, err = registerCounterVec(reg, outcomes, "sim_packet_outcomes_total")
	if err != nil {
		return nil, err
	}

	losses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_packet_losses_total",
		Help: "Lost packets by reason (no_route, buffer_full, node_failed).",
	}, []string{"reason"})
	losses, err = registerCounterVec(reg, losses, "sim_packet_losses_total")
	if err != nil {
		return nil, err
	}

	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Wall-clock cost of one simulation tick.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})
	tickDuration, err = registerHistogram(reg, tickDuration, "sim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	deliveryLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_delivery_latency_milliseconds",
		Help:    "End-to-end latency of delivered packets in simulated milliseconds.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
	})
	deliveryLatency, err = registerHistogram(reg, deliveryLatency, "sim_delivery_latency_milliseconds")
	if err != nil {
		return nil, err
	}

	activeNodes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_active_nodes",
		Help: "Number of currently active nodes.",
	}), "sim_active_nodes")
	if err != nil {
		return nil, err
	}
	inFlight, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_packets_in_flight",
		Help: "Number of packets currently in flight.",
	}), "sim_packets_in_flight")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:          gatherer,
		PacketsSent:       sent,
		PacketOutcomes:    outcomes,
		PacketLosses:      losses,
		TickDuration:      tickDuration,
		DeliveryLatencyMs: deliveryLatency,
		ActiveNodes:       activeNodes,
		PacketsInFlight:   inFlight,
	}, nil
}

// AddPacketsSent records n new packet injections.
func (c *SimCollector) AddPacketsSent(n int) {
	if c == nil || c.PacketsSent == nil || n <= 0 {
		return
	}
	c.PacketsSent.Add(float64(n))
}

// ObserveTick ingests one tick's accounting.
func (c *SimCollector) ObserveTick(s TickSample) {
	if c == nil {
		return
	}
	if c.TickDuration != nil {
		c.TickDuration.Observe(s.Duration.Seconds())
	}
	if c.PacketOutcomes != nil {
		if s.Delivered > 0 {
			c.PacketOutcomes.WithLabelValues("delivered").Add(float64(s.Delivered))
		}
		if s.Lost > 0 {
			c.PacketOutcomes.WithLabelValues("lost").Add(float64(s.Lost))
		}
		if s.TimedOut > 0 {
			c.PacketOutcomes.WithLabelValues("timed_out").Add(float64(s.TimedOut))
		}
	}
	if c.PacketLosses != nil {
		for reason, n := range s.LossReasons {
			c.PacketLosses.WithLabelValues(reason).Add(float64(n))
		}
	}
	if c.DeliveryLatencyMs != nil {
		for _, ms := range s.DeliveredLatencyMs {
			c.DeliveryLatencyMs.Observe(ms)
		}
	}
	if c.ActiveNodes != nil {
		c.ActiveNodes.Set(float64(s.ActiveNodes))
	}
	if c.PacketsInFlight != nil {
		c.PacketsInFlight.Set(float64(s.InFlight))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
