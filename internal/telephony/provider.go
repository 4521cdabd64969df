// Package telephony surfaces call lifecycle events and live call audio to
// the detection pipeline.
package telephony

import (
	"github.com/rs/zerolog"

	"github.com/veristream/callshield/internal/capture"
	"github.com/veristream/callshield/internal/observability"
)

// CallState is the lifecycle state of a phone call
type CallState string

const (
	StateRinging      CallState = "RINGING"
	StateActive       CallState = "ACTIVE"
	StateDisconnected CallState = "DISCONNECTED"
)

// CallEvent announces a call state change. Source is non-nil only for
// ACTIVE events and streams the call's audio until disconnect.
type CallEvent struct {
	CallID string
	State  CallState
	Source capture.Source
}

// Hub fans call events out to the detection event loop. Publishing never
// blocks a media connection: if the subscriber falls behind, events are
// dropped and logged rather than stalling audio ingest.
type Hub struct {
	events chan CallEvent
	logger zerolog.Logger
}

// NewHub creates a hub with the given event buffer depth
func NewHub(depth int) *Hub {
	if depth <= 0 {
		depth = 16
	}
	return &Hub{
		events: make(chan CallEvent, depth),
		logger: observability.GetLogger().With().Str("component", "telephony_hub").Logger(),
	}
}

// Events returns the stream of call state changes
func (h *Hub) Events() <-chan CallEvent {
	return h.events
}

// Publish delivers an event to the subscriber without blocking
func (h *Hub) Publish(ev CallEvent) {
	select {
	case h.events <- ev:
	default:
		h.logger.Warn().
			Str("call_id", ev.CallID).
			Str("state", string(ev.State)).
			Msg("Event dropped, subscriber not keeping up")
	}
}
