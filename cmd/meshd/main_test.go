package main

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dr-isosan/LifeNode/core"
	"github.com/dr-isosan/LifeNode/internal/logging"
	"github.com/dr-isosan/LifeNode/internal/observability"
	"github.com/dr-isosan/LifeNode/internal/telemetry"
	"github.com/dr-isosan/LifeNode/timectrl"
)

func newTestDriver(t *testing.T, sendRate float64) (*tickDriver, *telemetry.Bus) {
	t.Helper()

	sc := core.DefaultScenario()
	sc.SendRate = sendRate
	sc.Config.NumNodes = 10
	sc.Config.Seed = 3
	sc.Config.FailureRate = 0

	sim, err := core.NewSimulator(sc.Config, nil, logging.Noop())
	if err != nil {
		t.Fatalf("NewSimulator error: %v", err)
	}
	metrics, err := observability.NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSimCollector error: %v", err)
	}
	bus := telemetry.NewBus(logging.Noop())

	return &tickDriver{
		sim:     sim,
		sc:      sc,
		bus:     bus,
		metrics: metrics,
		log:     logging.Noop(),
	}, bus
}

func TestTickDriverPublishesTelemetry(t *testing.T) {
	driver, bus := newTestDriver(t, 2)

	events, cancel := bus.Subscribe(16)
	defer cancel()

	driver.onTick(time.Now())

	counts := map[telemetry.EventType]int{}
drain:
	for {
		select {
		case ev := <-events:
			counts[ev.Type]++
		default:
			break drain
		}
	}

	if got := counts[telemetry.EventPacketSent]; got != 2 {
		t.Fatalf("packet_sent events = %d, want 2", got)
	}
	if got := counts[telemetry.EventTick]; got != 1 {
		t.Fatalf("tick events = %d, want 1", got)
	}
	if got := testutil.ToFloat64(driver.metrics.PacketsSent); got != 2 {
		t.Fatalf("PacketsSent = %v, want 2", got)
	}
	if got := driver.sim.Tick(); got != 1 {
		t.Fatalf("sim tick = %d, want 1", got)
	}
}

func TestTickDriverCarriesFractionalSendRate(t *testing.T) {
	driver, _ := newTestDriver(t, 0.5)

	driver.onTick(time.Now())
	driver.onTick(time.Now())

	if got := testutil.ToFloat64(driver.metrics.PacketsSent); got != 1 {
		t.Fatalf("PacketsSent after two ticks = %v, want 1", got)
	}
}

func TestTickDriverThroughController(t *testing.T) {
	driver, _ := newTestDriver(t, 1)

	tc := timectrl.NewTimeController(time.Now(), 2*time.Millisecond, timectrl.Accelerated)
	tc.AddListener(driver.onTick)

	done := tc.Start(context.Background(), 20*time.Millisecond)
	<-done

	if got := driver.sim.Tick(); got != 10 {
		t.Fatalf("sim tick = %d, want 10", got)
	}
	if got := testutil.ToFloat64(driver.metrics.PacketsSent); got != 10 {
		t.Fatalf("PacketsSent = %v, want 10", got)
	}
}
