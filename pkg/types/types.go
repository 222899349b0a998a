package types

import (
	"time"
)

// SessionState represents the lifecycle state of a virtual desktop session.
type SessionState string

const (
	SessionStateProvisioning SessionState = "PROVISIONING"
	SessionStateCreating     SessionState = "CREATING"
	SessionStateInitializing SessionState = "INITIALIZING"
	SessionStateReady        SessionState = "READY"
	SessionStateResuming     SessionState = "RESUMING"
	SessionStateStopping     SessionState = "STOPPING"
	SessionStateStopped      SessionState = "STOPPED"
	SessionStateStoppedIdle  SessionState = "STOPPED_IDLE"
	SessionStateDeleting     SessionState = "DELETING"
	SessionStateDeleted      SessionState = "DELETED"
	SessionStateError        SessionState = "ERROR"
)

// OneOf reports whether the state matches any of the given states.
func (s SessionState) OneOf(states ...SessionState) bool {
	for _, state := range states {
		if s == state {
			return true
		}
	}
	return false
}

// ServerState represents the current state of a desktop host instance.
type ServerState string

const (
	ServerStateCreated     ServerState = "CREATED"
	ServerStateStopping    ServerState = "STOPPING"
	ServerStateStopped     ServerState = "STOPPED"
	ServerStateStoppedIdle ServerState = "STOPPED_IDLE"
	ServerStateHibernated  ServerState = "HIBERNATED"
)

// BrokerSessionState is the session state as reported by the remote
// desktop broker. The broker owns the remote side of a session; the
// controller never assumes a broker call completed synchronously and
// re-validates every transition asynchronously.
type BrokerSessionState string

const (
	BrokerSessionCreating BrokerSessionState = "CREATING"
	BrokerSessionReady    BrokerSessionState = "READY"
	BrokerSessionDeleting BrokerSessionState = "DELETING"
	BrokerSessionDeleted  BrokerSessionState = "DELETED"
	BrokerSessionUnknown  BrokerSessionState = "UNKNOWN"
)

// BaseOS identifies the operating system family of a software stack.
type BaseOS string

const (
	BaseOSAmazonLinux2 BaseOS = "amazonlinux2"
	BaseOSRHEL8        BaseOS = "rhel8"
	BaseOSUbuntu2204   BaseOS = "ubuntu2204"
	BaseOSWindows      BaseOS = "windows"
)

// Session represents one user's virtual desktop.
// BrokerSessionID stays empty until the broker accepts the create call,
// i.e. until the session has progressed past INITIALIZING provisioning.
type Session struct {
	SessionID          string         `json:"session_id"`
	Owner              string         `json:"owner"`
	Name               string         `json:"name"`
	State              SessionState   `json:"state"`
	BrokerSessionID    string         `json:"broker_session_id,omitempty"`
	Server             *Server        `json:"server,omitempty"`
	SoftwareStack      *SoftwareStack `json:"software_stack,omitempty"`
	Schedule           *Schedule      `json:"schedule,omitempty"`
	IsIdle             bool           `json:"is_idle"`
	HibernationEnabled bool           `json:"hibernation_enabled"`
	Locked             bool           `json:"locked"`
	FailureReason      string         `json:"failure_reason,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Server represents the compute instance hosting a session.
// One server backs at most one session at a time.
type Server struct {
	InstanceID   string      `json:"instance_id"`
	InstanceType string      `json:"instance_type"`
	State        ServerState `json:"state"`
	IsIdle       bool        `json:"is_idle"`
	Locked       bool        `json:"locked"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// SessionPermission grants session access to another actor. The session
// name, instance type and state fields are denormalized copies kept in
// sync by the permission projection whenever the source session changes.
type SessionPermission struct {
	SessionID           string       `json:"session_id"`
	SessionOwner        string       `json:"session_owner"`
	ActorName           string       `json:"actor_name"`
	PermissionProfileID string       `json:"permission_profile_id,omitempty"`
	ExpiryDate          time.Time    `json:"expiry_date"`
	SessionName         string       `json:"session_name,omitempty"`
	SessionInstanceType string       `json:"session_instance_type,omitempty"`
	SessionState        SessionState `json:"session_state,omitempty"`
}

// CounterType scopes a retry counter to one purpose.
type CounterType string

const (
	CounterSessionCreation  CounterType = "SESSION_CREATION_COUNTER"
	CounterValidateCreation CounterType = "VALIDATE_SESSION_CREATION_COUNTER"
	CounterValidateDeletion CounterType = "VALIDATE_SESSION_DELETION_COUNTER"
	CounterSessionDeleted   CounterType = "SESSION_DELETED_COUNTER"
	CounterSessionResumed   CounterType = "SESSION_RESUMED_COUNTER"
)

// SessionCounter is a persisted bounded-retry counter scoped to one
// session and one purpose. It is incremented on each unresolved retry
// and deleted once the condition resolves, success or terminal failure.
type SessionCounter struct {
	SessionID string      `json:"session_id"`
	Type      CounterType `json:"counter_type"`
	Count     int         `json:"count"`
}

// CommandType identifies the purpose of an in-flight remote command.
type CommandType string

const (
	CommandResumeSession          CommandType = "RESUME_SESSION"
	CommandCPUUtilization         CommandType = "CPU_UTILIZATION"
	CommandEnableUserdataWindows  CommandType = "ENABLE_USERDATA_WINDOWS"
	CommandDisableUserdataWindows CommandType = "DISABLE_USERDATA_WINDOWS"
)

// RemoteCommand tracks a remote-execution command issued to a host.
// The record is deleted once the corresponding progress event resolves.
type RemoteCommand struct {
	CommandID         string            `json:"command_id"`
	CommandType       CommandType       `json:"command_type"`
	InstanceID        string            `json:"instance_id"`
	AdditionalPayload map[string]string `json:"additional_payload,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// SoftwareStack describes a machine image sessions can be launched from.
type SoftwareStack struct {
	StackID     string    `json:"stack_id"`
	BaseOS      BaseOS    `json:"base_os"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ImageID     string    `json:"image_id"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ScheduleType defines the kind of start/stop schedule attached to a session.
type ScheduleType string

const (
	ScheduleWorkingHours ScheduleType = "WORKING_HOURS"
	ScheduleStartAllDay  ScheduleType = "START_ALL_DAY"
	ScheduleStopAllDay   ScheduleType = "STOP_ALL_DAY"
	ScheduleCustom       ScheduleType = "CUSTOM"
	ScheduleNoSchedule   ScheduleType = "NO_SCHEDULE"
)

// DayOfWeek as used by schedule records.
type DayOfWeek string

const (
	Monday    DayOfWeek = "monday"
	Tuesday   DayOfWeek = "tuesday"
	Wednesday DayOfWeek = "wednesday"
	Thursday  DayOfWeek = "thursday"
	Friday    DayOfWeek = "friday"
	Saturday  DayOfWeek = "saturday"
	Sunday    DayOfWeek = "sunday"
)

// DaysOfWeek lists schedule days starting on Monday.
var DaysOfWeek = []DayOfWeek{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// DayOfWeekFor maps a time to its schedule day.
func DayOfWeekFor(t time.Time) DayOfWeek {
	// time.Weekday puts Sunday first; schedule days start on Monday.
	idx := (int(t.Weekday()) + 6) % 7
	return DaysOfWeek[idx]
}

// Schedule defines when a session is automatically resumed or stopped.
type Schedule struct {
	ScheduleID   string       `json:"schedule_id"`
	SessionID    string       `json:"session_id"`
	SessionOwner string       `json:"session_owner"`
	Type         ScheduleType `json:"schedule_type"`
	DayOfWeek    DayOfWeek    `json:"day_of_week"`
	StartUpTime  string       `json:"start_up_time,omitempty"`  // "HH:MM", 24h
	ShutDownTime string       `json:"shut_down_time,omitempty"` // "HH:MM", 24h
}
