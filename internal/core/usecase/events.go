package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
	"github.com/atvirokodosprendimai/swmanager/internal/core/ports"
)

// eventEmitter publishes best effort. Failures are logged and never reach
// the caller.
type eventEmitter struct {
	publisher ports.EventPublisher
	logger    *slog.Logger
}

func newEventEmitter(publisher ports.EventPublisher, logger *slog.Logger) *eventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &eventEmitter{publisher: publisher, logger: logger}
}

func (e *eventEmitter) emit(ctx context.Context, eventType string, softwareID int64, payload any) {
	if e.publisher == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("encode event payload", "event_type", eventType, "error", err)
		return
	}

	envelope := domain.EventEnvelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		SoftwareID: softwareID,
		OccurredAt: time.Now().UTC(),
		RequestID:  domain.RequestIDFromContext(ctx),
		Payload:    raw,
	}
	if err := e.publisher.Publish(ctx, "events."+eventType, envelope); err != nil {
		e.logger.Warn("publish event", "event_type", eventType, "event_id", envelope.EventID, "error", err)
	}
}
