package installer

import (
	"context"
)

// eventSource is the CloudEvents source attribute for events emitted by
// this package.
const eventSource = "modworks/installer"

// EventPublisher publishes module lifecycle events to a Subject.
//
// Publishing is fire-and-forget: a publish failure is logged and never
// aborts the calling operation. The publisher is a best-effort notifier,
// not a transactional participant.
type EventPublisher struct {
	subject Subject
	logger  Logger
}

// NewEventPublisher creates a publisher over the given subject. A nil
// subject disables publishing entirely, which is valid for embedders that
// do not consume lifecycle events.
func NewEventPublisher(subject Subject, logger Logger) *EventPublisher {
	return &EventPublisher{subject: subject, logger: logger}
}

// moduleEventData is the JSON payload of a module lifecycle event.
type moduleEventData struct {
	ModuleID       string `json:"moduleId,omitempty"`
	InstallationID string `json:"installationId,omitempty"`
	TenantID       string `json:"tenantId,omitempty"`
	Version        string `json:"version,omitempty"`
}

// PublishModuleLifecycleEvent emits a lifecycle event for the given loaded
// module, tagged with the correlation id. The loaded module may be nil for
// events published after an unload.
func (p *EventPublisher) PublishModuleLifecycleEvent(ctx context.Context, eventType string, loaded *LoadedModule, correlationID string) {
	if p.subject == nil {
		return
	}

	var data moduleEventData
	if loaded != nil {
		data = moduleEventData{
			ModuleID:       loaded.ModuleID,
			InstallationID: loaded.InstallationID,
			TenantID:       loaded.TenantID,
			Version:        loaded.Version,
		}
	}
	event := NewCloudEvent(eventType, eventSource, data, map[string]interface{}{
		"correlationid": correlationID,
	})

	if err := p.subject.NotifyObservers(ctx, event); err != nil {
		p.logger.Warn("Lifecycle event publish failed",
			"eventType", eventType, "correlationId", correlationID, "error", err)
	}
}
