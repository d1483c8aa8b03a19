package pubsub

import (
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Event types published by the sync core.
const (
	EventTypeSyncCompleted     = "com.vitalsync.garmin.sync.completed"
	EventTypeBackfillCompleted = "com.vitalsync.garmin.backfill.completed"
	EventSourceSync            = "//vitalsync/garmin-sync"
)

// SyncCompleted is the payload for both completion event types.
type SyncCompleted struct {
	UserID   string `json:"user_id"`
	Mode     string `json:"mode"` // on_demand | scheduled | backfill
	SyncedAt string `json:"synced_at"`
}

// NewCloudEvent creates a standardized CloudEvent v1.0.
func NewCloudEvent(source, eventType string, data interface{}) (cloudevents.Event, error) {
	e := cloudevents.NewEvent()
	e.SetSpecVersion("1.0")
	e.SetType(eventType)
	e.SetSource(source)

	if err := e.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return e, err
	}

	return e, nil
}
