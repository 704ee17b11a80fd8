package telemetry

import (
	"context"
	"log/slog"
	"time"
)

const channelRoutingKey = "channel_events.rooms"

// ChannelEvent describes one push channel lifecycle edge.
type ChannelEvent struct {
	Event      string `json:"event"`
	RoomID     string `json:"room_id"`
	BookingID  string `json:"booking_id"`
	ConnID     string `json:"conn_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

// EventEnvelope wraps a telemetry payload with routing metadata.
type EventEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	ActorID       string       `json:"actor_id"`
	Payload       ChannelEvent `json:"payload"`
}

// Emitter publishes channel lifecycle events for the audit pipeline.
type Emitter struct {
	publisher   Publisher
	service     string
	environment string
	actorID     string
	log         *slog.Logger
}

// NewEmitter constructs an Emitter.
func NewEmitter(publisher Publisher, service, environment, actorID string, log *slog.Logger) *Emitter {
	return &Emitter{
		publisher:   publisher,
		service:     service,
		environment: environment,
		actorID:     actorID,
		log:         log,
	}
}

// EmitChannel publishes one channel lifecycle event. Failures are logged and
// swallowed; telemetry never disturbs the sync path.
func (e *Emitter) EmitChannel(ctx context.Context, event ChannelEvent) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := EventEnvelope{
		SchemaVersion: 1,
		EventType:     "channel_events",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		ActorID:       e.actorID,
		Payload:       event,
	}
	if err := e.publisher.Publish(ctx, channelRoutingKey, envelope); err != nil {
		e.log.Warn("telemetry publish failed", "event", event.Event, "error", err)
	}
}
