package handlers

import (
	"github.com/deskhive/deskhive/pkg/events"
)

// Dispatcher builds the event dispatcher with every handler bound to
// its event type. The mapping is the single source of truth for what
// the controller consumes; anything else is dropped as unprocessable.
func (h *Handlers) Dispatcher() *events.Dispatcher {
	d := events.NewDispatcher()

	d.Register(events.EventHostReady, events.HandlerFunc(h.HostReady))
	d.Register(events.EventHostRebootComplete, events.HandlerFunc(h.HostRebootComplete))
	d.Register(events.EventValidateSessionCreation, events.HandlerFunc(h.ValidateSessionCreation))
	d.Register(events.EventValidateSessionDeletion, events.HandlerFunc(h.ValidateSessionDeletion))
	d.Register(events.EventValidateSoftwareStack, events.HandlerFunc(h.ValidateSoftwareStack))
	d.Register(events.EventInstanceStateChanged, events.HandlerFunc(h.InstanceStateChanged))
	d.Register(events.EventDBEntryCreated, events.HandlerFunc(h.DBEntryCreated))
	d.Register(events.EventDBEntryUpdated, events.HandlerFunc(h.DBEntryUpdated))
	d.Register(events.EventDBEntryDeleted, events.HandlerFunc(h.DBEntryDeleted))
	d.Register(events.EventScheduled, events.HandlerFunc(h.Scheduled))
	d.Register(events.EventSessionScheduledResume, events.HandlerFunc(h.ScheduledResume))
	d.Register(events.EventSessionScheduledStop, events.HandlerFunc(h.ScheduledStop))
	d.Register(events.EventSessionTerminate, events.HandlerFunc(h.SessionTerminate))
	d.Register(events.EventSessionPermissionsEnforce, events.HandlerFunc(h.PermissionsEnforce))
	d.Register(events.EventSessionPermissionsUpdate, events.HandlerFunc(h.PermissionsUpdate))
	d.Register(events.EventSessionStackUpdated, events.HandlerFunc(h.SessionStackUpdated))
	d.Register(events.EventResumeCommandProgress, events.HandlerFunc(h.ResumeCommandProgress))
	d.Register(events.EventCPUUtilizationProgress, events.HandlerFunc(h.CPUUtilizationProgress))
	d.Register(events.EventEnableUserdataProgress, events.HandlerFunc(h.EnableUserdataProgress))
	d.Register(events.EventDisableUserdataProgress, events.HandlerFunc(h.DisableUserdataProgress))

	return d
}
