package events

// Constructors for the follow-up events the controller publishes to
// itself. Session-scoped events use the session id as group id so they
// stay ordered behind other events for the same session.

// NewValidateSessionCreation asks the controller to confirm with the
// broker that a session reached READY.
func NewValidateSessionCreation(sessionID, owner string) *Event {
	return &Event{
		GroupID: sessionID,
		Type:    EventValidateSessionCreation,
		Detail: map[string]any{
			"session_id": sessionID,
			"owner":      owner,
		},
	}
}

// NewValidateSessionDeletion asks the controller to confirm with the
// broker that a session was deleted.
func NewValidateSessionDeletion(sessionID, owner string) *Event {
	return &Event{
		GroupID: sessionID,
		Type:    EventValidateSessionDeletion,
		Detail: map[string]any{
			"session_id": sessionID,
			"owner":      owner,
		},
	}
}

// NewScheduledResume resumes a stopped session on behalf of its schedule.
func NewScheduledResume(sessionID, owner string) *Event {
	return &Event{
		GroupID: sessionID,
		Type:    EventSessionScheduledResume,
		Detail: map[string]any{
			"session_id": sessionID,
			"owner":      owner,
		},
	}
}

// NewScheduledStop stops a running session on behalf of its schedule.
func NewScheduledStop(sessionID, owner string) *Event {
	return &Event{
		GroupID: sessionID,
		Type:    EventSessionScheduledStop,
		Detail: map[string]any{
			"session_id": sessionID,
			"owner":      owner,
		},
	}
}

// NewSessionTerminate force-deletes a session and its host.
func NewSessionTerminate(sessionID, owner string) *Event {
	return &Event{
		GroupID: sessionID,
		Type:    EventSessionTerminate,
		Detail: map[string]any{
			"session_id": sessionID,
			"owner":      owner,
		},
	}
}

// NewHostRebootComplete stands in for the boot notification a host
// never sends when it wakes from hibernation: the agent only announces
// fresh boots, so the controller synthesizes the event from the
// instance running state change.
func NewHostRebootComplete(sessionID, instanceID string) *Event {
	return &Event{
		GroupID: sessionID,
		Type:    EventHostRebootComplete,
		Detail: map[string]any{
			"session_id":  sessionID,
			"instance_id": instanceID,
		},
	}
}

// NewPermissionsEnforce asks the controller to push the stored
// permissions for a session to the broker.
func NewPermissionsEnforce(sessionID, owner string) *Event {
	return &Event{
		GroupID: sessionID,
		Type:    EventSessionPermissionsEnforce,
		Detail: map[string]any{
			"session_id": sessionID,
			"owner":      owner,
		},
	}
}

// NewCommandProgress reports progress of a remote command issued against
// a session's host. The event type depends on the command kind.
func NewCommandProgress(t EventType, sessionID, commandID, instanceID string) *Event {
	return &Event{
		GroupID: sessionID,
		Type:    t,
		Detail: map[string]any{
			"session_id":  sessionID,
			"command_id":  commandID,
			"instance_id": instanceID,
		},
	}
}
