package storage

import (
	"errors"

	"github.com/deskhive/deskhive/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// IsNotFound reports whether err means a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store defines the interface for controller state storage.
// Implemented by BoltDB-backed storage.
type Store interface {
	// Sessions
	CreateSession(session *types.Session) error
	GetSession(owner, sessionID string) (*types.Session, error)
	GetSessionByID(sessionID string) (*types.Session, error)
	GetSessionByInstanceID(instanceID string) (*types.Session, error)
	ListSessions() ([]*types.Session, error)
	ListSessionsByState(states ...types.SessionState) ([]*types.Session, error)
	UpdateSession(session *types.Session) error
	DeleteSession(owner, sessionID string) error

	// Servers
	CreateServer(server *types.Server) error
	GetServer(instanceID string) (*types.Server, error)
	ListServers() ([]*types.Server, error)
	UpdateServer(server *types.Server) error
	DeleteServer(instanceID string) error

	// Session permissions
	PutSessionPermission(perm *types.SessionPermission) error
	GetSessionPermission(sessionID, actorName string) (*types.SessionPermission, error)
	ListSessionPermissions() ([]*types.SessionPermission, error)
	ListPermissionsBySession(sessionID string) ([]*types.SessionPermission, error)
	DeleteSessionPermission(sessionID, actorName string) error
	DeletePermissionsBySession(sessionID string) error

	// Retry counters
	GetCounter(sessionID string, t types.CounterType) (*types.SessionCounter, error)
	IncrementCounter(sessionID string, t types.CounterType) (int, error)
	DeleteCounter(sessionID string, t types.CounterType) error
	DeleteCountersBySession(sessionID string) error

	// Remote commands
	CreateCommand(cmd *types.RemoteCommand) error
	GetCommand(commandID string) (*types.RemoteCommand, error)
	DeleteCommand(commandID string) error

	// Software stacks
	CreateSoftwareStack(stack *types.SoftwareStack) error
	GetSoftwareStack(baseOS types.BaseOS, stackID string) (*types.SoftwareStack, error)
	ListSoftwareStacks() ([]*types.SoftwareStack, error)
	UpdateSoftwareStack(stack *types.SoftwareStack) error

	// Schedules
	CreateSchedule(schedule *types.Schedule) error
	GetSchedule(scheduleID string) (*types.Schedule, error)
	ListSchedules() ([]*types.Schedule, error)
	UpdateSchedule(schedule *types.Schedule) error
	DeleteSchedulesBySession(sessionID string) error

	// Utility
	Close() error
}
