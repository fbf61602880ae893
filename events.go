package installer

import (
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is an alias for the CloudEvents Event type for convenience.
type CloudEvent = cloudevents.Event

// NewCloudEvent creates a properly formed CloudEvent with the given type,
// source, JSON data and extension attributes.
func NewCloudEvent(eventType, source string, data interface{}, extensions map[string]interface{}) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range extensions {
		event.SetExtension(key, value)
	}
	return event
}

// generateEventID generates a unique identifier using UUIDv7, which embeds
// a timestamp and therefore sorts by creation time.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails for any reason
		id = uuid.New()
	}
	return id.String()
}

// NewInstallationID creates an opaque, stable identifier for a new
// installation record.
func NewInstallationID() string {
	return generateEventID()
}

// CorrelationID derives the correlation id used to tag all lifecycle
// events of one installation.
func CorrelationID(installationID string) string {
	return "install-" + installationID
}
