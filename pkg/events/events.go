package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// EventType identifies the kind of a controller event. The set is closed:
// messages carrying any other value are dropped by the dispatcher.
type EventType string

const (
	EventHostReady                 EventType = "DCV_HOST_READY_EVENT"
	EventHostRebootComplete        EventType = "DCV_HOST_REBOOT_COMPLETE_EVENT"
	EventValidateSessionCreation   EventType = "VALIDATE_DCV_SESSION_CREATION_EVENT"
	EventValidateSessionDeletion   EventType = "VALIDATE_DCV_SESSION_DELETION_EVENT"
	EventValidateSoftwareStack     EventType = "VALIDATE_SOFTWARE_STACK_CREATION_EVENT"
	EventInstanceStateChanged      EventType = "EC2_INSTANCE_STATE_CHANGED_EVENT"
	EventDBEntryCreated            EventType = "DB_ENTRY_CREATED_EVENT"
	EventDBEntryUpdated            EventType = "DB_ENTRY_UPDATED_EVENT"
	EventDBEntryDeleted            EventType = "DB_ENTRY_DELETED_EVENT"
	EventScheduled                 EventType = "SCHEDULED_EVENT"
	EventSessionScheduledResume    EventType = "SESSION_SCHEDULED_RESUME_EVENT"
	EventSessionScheduledStop      EventType = "SESSION_SCHEDULED_STOP_EVENT"
	EventSessionTerminate          EventType = "SESSION_TERMINATE_EVENT"
	EventSessionPermissionsEnforce EventType = "SESSION_PERMISSIONS_ENFORCE_EVENT"
	EventSessionPermissionsUpdate  EventType = "SESSION_PERMISSIONS_UPDATE_EVENT"
	EventSessionStackUpdated       EventType = "SESSION_SOFTWARE_STACK_UPDATED_EVENT"
	EventResumeCommandProgress     EventType = "RESUME_SESSION_COMMAND_PROGRESS_EVENT"
	EventCPUUtilizationProgress    EventType = "CPU_UTILIZATION_COMMAND_PROGRESS_EVENT"
	EventEnableUserdataProgress    EventType = "ENABLE_USERDATA_WINDOWS_COMMAND_PROGRESS_EVENT"
	EventDisableUserdataProgress   EventType = "DISABLE_USERDATA_WINDOWS_COMMAND_PROGRESS_EVENT"
)

// Event is the message envelope carried on the event bus. GroupID drives
// FIFO ordering: all events for one session share its session id, so they
// are delivered and processed in order relative to each other. Detail is a
// free-form payload whose keys depend on the event type.
type Event struct {
	GroupID string         `json:"event_group_id"`
	Type    EventType      `json:"event_type"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// Marshal encodes the event as its wire (message body) representation.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes a message body into an event.
func Unmarshal(body []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &e, nil
}

// DetailString returns the string value for key, or "" when absent or of
// another type.
func (e *Event) DetailString(key string) string {
	v, _ := e.Detail[key].(string)
	return v
}

// DetailBool returns the bool value for key, defaulting to false.
func (e *Event) DetailBool(key string) bool {
	v, _ := e.Detail[key].(bool)
	return v
}

// DetailFloat returns the numeric value for key, defaulting to 0.
// JSON numbers decode as float64.
func (e *Event) DetailFloat(key string) float64 {
	switch v := e.Detail[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// DetailMap returns the nested object for key, or nil.
func (e *Event) DetailMap(key string) map[string]any {
	v, _ := e.Detail[key].(map[string]any)
	return v
}

// Publisher publishes controller events onto the event bus.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Sender is the transmit side of the event queue.
type Sender interface {
	Send(ctx context.Context, body []byte, groupID, senderID string) error
}

// QueuePublisher publishes events to a FIFO queue, stamping every message
// with the controller's own sender identity.
type QueuePublisher struct {
	queue    Sender
	senderID string
}

// NewQueuePublisher creates a publisher backed by the given queue.
func NewQueuePublisher(queue Sender, senderID string) *QueuePublisher {
	return &QueuePublisher{queue: queue, senderID: senderID}
}

// Publish encodes the event and sends it. Group ids must not contain
// whitespace on the wire.
func (p *QueuePublisher) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return nil
	}
	body, err := event.Marshal()
	if err != nil {
		return err
	}
	groupID := strings.ReplaceAll(event.GroupID, " ", "_")
	return p.queue.Send(ctx, body, groupID, p.senderID)
}
