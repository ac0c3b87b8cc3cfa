package core

import (
	"math"
	"testing"

	"github.com/dr-isosan/LifeNode/model"
)

func TestStatsAccounting(t *testing.T) {
	st := newStats()
	st.TotalSent = 4
	st.InFlight = 4

	delivered := model.NewPacket(0, 1, 2, 0)
	delivered.RecordHop(2, 2.5)
	delivered.RecordHop(3, 1.5)
	st.recordDelivery(delivered)

	st.recordLoss(model.LossNoRoute)
	st.recordLoss(model.LossBufferFull)
	st.recordTimeout()

	if st.Delivered != 1 || st.Lost != 2 || st.TimedOut != 1 || st.InFlight != 0 {
		t.Fatalf("counters = %+v", st)
	}
	if st.Losses[model.LossNoRoute] != 1 || st.Losses[model.LossBufferFull] != 1 {
		t.Fatalf("loss reasons = %v", st.Losses)
	}
	if st.Delivered+st.Lost+st.TimedOut+st.InFlight != st.TotalSent {
		t.Fatalf("conservation broken: %+v", st)
	}

	if got := st.DeliveryRate(); math.Abs(got-0.25) > 1e-9 {
		t.Fatalf("DeliveryRate = %v, want 0.25", got)
	}
	if got := st.AvgLatencyMs(); math.Abs(got-4.0) > 1e-9 {
		t.Fatalf("AvgLatencyMs = %v, want 4.0", got)
	}
	if got := st.AvgHops(); math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("AvgHops = %v, want 2.0", got)
	}
}

func TestStatsAveragesBeforeTraffic(t *testing.T) {
	st := newStats()
	if st.DeliveryRate() != 0 || st.AvgLatencyMs() != 0 || st.AvgHops() != 0 {
		t.Fatalf("zero-traffic averages must be zero: %+v", st)
	}
}

func TestStatsCloneIsIndependent(t *testing.T) {
	st := newStats()
	st.recordLoss(model.LossNoRoute)

	clone := st.Clone()
	clone.Losses[model.LossNodeFailed] = 7
	clone.Lost = 99

	if st.Lost != 1 || len(st.Losses) != 1 {
		t.Fatalf("mutating a clone leaked back: %+v", st)
	}
}
