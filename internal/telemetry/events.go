package telemetry

import (
	"github.com/dr-isosan/LifeNode/core"
)

// EventsFromReport expands one tick report into the events stream consumers
// see: node failures and repairs first, then the tick summary.
func EventsFromReport(report core.TickReport) []Event {
	events := make([]Event, 0, len(report.Failed)+len(report.Repaired)+1)
	for _, id := range report.Failed {
		events = append(events, Event{
			Type:    EventNodeFailed,
			Tick:    report.Tick,
			Payload: NodePayload{NodeID: id},
		})
	}
	for _, id := range report.Repaired {
		events = append(events, Event{
			Type:    EventNodeRepaired,
			Tick:    report.Tick,
			Payload: NodePayload{NodeID: id},
		})
	}

	reasons := make(map[string]int, len(report.LossReasons))
	for reason, n := range report.LossReasons {
		reasons[string(reason)] = n
	}
	if len(reasons) == 0 {
		reasons = nil
	}
	events = append(events, Event{
		Type: EventTick,
		Tick: report.Tick,
		Payload: TickPayload{
			FailureRate:        report.FailureRate,
			Advanced:           report.Advanced,
			Delivered:          report.Delivered,
			Lost:               report.Lost,
			TimedOut:           report.TimedOut,
			LossReasons:        reasons,
			DeliveredLatencyMs: report.DeliveredLatencyMs,
			ActiveNodes:        report.ActiveNodes,
			InFlight:           report.InFlight,
		},
	})
	return events
}

// PacketSentEvent builds the event for a freshly injected packet.
func PacketSentEvent(tick, packetID, source, destination int) Event {
	return Event{
		Type: EventPacketSent,
		Tick: tick,
		Payload: PacketPayload{
			PacketID:    packetID,
			Source:      source,
			Destination: destination,
		},
	}
}

// NodeAddedEvent builds the event for a node joining the mesh.
func NodeAddedEvent(tick, nodeID int) Event {
	return Event{Type: EventNodeAdded, Tick: tick, Payload: NodePayload{NodeID: nodeID}}
}

// NodeRemovedEvent builds the event for a node leaving the mesh.
func NodeRemovedEvent(tick, nodeID int) Event {
	return Event{Type: EventNodeRemoved, Tick: tick, Payload: NodePayload{NodeID: nodeID}}
}
