package domain

import (
	"encoding/json"
	"time"
)

const (
	EventSoftwareCreated        = "software.created"
	EventSoftwareDeleted        = "software.deleted"
	EventSoftwareStatusChanged  = "software.status_changed"
	EventSoftwareVersionUpdated = "software.version_updated"
	EventTransitionScheduled    = "software.transition_scheduled"
)

type EventEnvelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	SoftwareID int64           `json:"software_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	RequestID  string          `json:"request_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}
