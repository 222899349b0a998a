package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/deskhive/deskhive/pkg/broker"
	"github.com/deskhive/deskhive/pkg/cloud"
	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/storage"
	"github.com/deskhive/deskhive/pkg/types"
)

// Manager performs the session and host lifecycle actions shared by
// event handlers and the scheduled sweep.
type Manager struct {
	store     storage.Store
	broker    broker.Client
	compute   cloud.Compute
	commands  cloud.Commands
	publisher events.Publisher
	logger    zerolog.Logger
}

// NewManager wires a lifecycle manager.
func NewManager(store storage.Store, brokerClient broker.Client, compute cloud.Compute, commands cloud.Commands, publisher events.Publisher) *Manager {
	return &Manager{
		store:     store,
		broker:    brokerClient,
		compute:   compute,
		commands:  commands,
		publisher: publisher,
		logger:    log.WithComponent("lifecycle"),
	}
}

// ResumeSession starts a stopped session's host and moves the session
// to RESUMING. The remote session itself is restarted later, once the
// host reports boot completion. Sessions in any other state are left
// untouched.
func (m *Manager) ResumeSession(ctx context.Context, session *types.Session) error {
	if !session.State.OneOf(types.SessionStateStopped, types.SessionStateStoppedIdle) {
		m.logger.Debug().Str("session_id", session.SessionID).
			Str("state", string(session.State)).
			Msg("Session not resumable, skipping")
		return nil
	}
	if session.Server == nil {
		return fmt.Errorf("session %s has no server", session.SessionID)
	}

	if err := m.compute.StartInstances(ctx, []string{session.Server.InstanceID}); err != nil {
		return fmt.Errorf("failed to start instance %s: %w", session.Server.InstanceID, err)
	}

	session.State = types.SessionStateResuming
	session.IsIdle = false
	session.UpdatedAt = time.Now()
	if err := m.store.UpdateSession(session); err != nil {
		return err
	}

	m.logger.Info().Str("session_id", session.SessionID).
		Str("instance_id", session.Server.InstanceID).
		Msg("Resuming session")
	return nil
}

// StopSession begins stopping a READY session: the remote broker
// session is deleted, the session moves to STOPPING and a deletion
// validation event confirms the broker side is gone before the host is
// actually stopped. With idle set, the session lands in STOPPED_IDLE
// instead of STOPPED once the instance stops.
func (m *Manager) StopSession(ctx context.Context, session *types.Session, idle bool) error {
	if session.State != types.SessionStateReady {
		m.logger.Debug().Str("session_id", session.SessionID).
			Str("state", string(session.State)).
			Msg("Session not stoppable, skipping")
		return nil
	}
	if session.Server == nil {
		return fmt.Errorf("session %s has no server", session.SessionID)
	}

	// Windows hosts that stop without hibernating must re-enable
	// userdata so the agent reinitializes on the next boot.
	if !session.HibernationEnabled && session.SoftwareStack != nil && session.SoftwareStack.BaseOS == types.BaseOSWindows {
		if err := m.SendEnableUserdataCommand(ctx, session); err != nil {
			return err
		}
	}

	if session.BrokerSessionID != "" {
		if err := m.broker.DeleteSessions(ctx, []string{session.BrokerSessionID}, false); err != nil {
			return fmt.Errorf("failed to delete broker session %s: %w", session.BrokerSessionID, err)
		}
	}

	session.State = types.SessionStateStopping
	session.IsIdle = idle
	session.UpdatedAt = time.Now()
	if err := m.store.UpdateSession(session); err != nil {
		return err
	}

	m.logger.Info().Str("session_id", session.SessionID).
		Str("instance_id", session.Server.InstanceID).
		Bool("hibernate", session.HibernationEnabled).
		Msg("Stopping session")
	return m.publisher.Publish(ctx, events.NewValidateSessionDeletion(session.SessionID, session.Owner))
}

// FinishSessionStop stops the host of a STOPPING session once its
// broker session is confirmed gone, hibernating when the session has
// hibernation enabled. The stopped instance-state notification then
// completes the transition to STOPPED or STOPPED_IDLE.
func (m *Manager) FinishSessionStop(ctx context.Context, session *types.Session) error {
	if session.Server == nil {
		return fmt.Errorf("session %s has no server", session.SessionID)
	}

	instanceIDs := []string{session.Server.InstanceID}
	var err error
	if session.HibernationEnabled {
		err = m.compute.HibernateInstances(ctx, instanceIDs)
	} else {
		err = m.compute.StopInstances(ctx, instanceIDs)
	}
	if err != nil {
		return fmt.Errorf("failed to stop instance %s: %w", session.Server.InstanceID, err)
	}

	m.logger.Info().Str("session_id", session.SessionID).
		Str("instance_id", session.Server.InstanceID).
		Bool("hibernate", session.HibernationEnabled).
		Msg("Stopping session host")
	return nil
}

// DeleteSession starts deletion of a session: the broker session is
// dropped (forcibly when requested), the session moves to DELETING, and
// a deletion validation event is published to confirm completion. A
// session with no broker session skips straight to host teardown.
func (m *Manager) DeleteSession(ctx context.Context, session *types.Session, force bool) error {
	if session.State == types.SessionStateDeleted {
		return nil
	}

	if session.BrokerSessionID != "" {
		if err := m.broker.DeleteSessions(ctx, []string{session.BrokerSessionID}, force); err != nil {
			return fmt.Errorf("failed to delete broker session %s: %w", session.BrokerSessionID, err)
		}
	}

	session.State = types.SessionStateDeleting
	session.UpdatedAt = time.Now()
	if err := m.store.UpdateSession(session); err != nil {
		return err
	}

	m.logger.Info().Str("session_id", session.SessionID).Bool("force", force).
		Msg("Deleting session")
	return m.publisher.Publish(ctx, events.NewValidateSessionDeletion(session.SessionID, session.Owner))
}

// FinishSessionDeletion tears down everything left of a session whose
// broker side is gone: the host is terminated and the session record is
// removed along with its schedules, permissions and counters.
func (m *Manager) FinishSessionDeletion(ctx context.Context, session *types.Session) error {
	if session.Server != nil {
		if err := m.compute.TerminateInstances(ctx, []string{session.Server.InstanceID}); err != nil {
			return fmt.Errorf("failed to terminate instance %s: %w", session.Server.InstanceID, err)
		}
		if err := m.store.DeleteServer(session.Server.InstanceID); err != nil {
			return err
		}
	}

	if err := m.store.DeleteSchedulesBySession(session.SessionID); err != nil {
		return err
	}
	if err := m.store.DeletePermissionsBySession(session.SessionID); err != nil {
		return err
	}
	if err := m.store.DeleteCountersBySession(session.SessionID); err != nil {
		return err
	}

	// The record goes through DELETED before it is dropped so the
	// change notification carries the terminal state.
	session.State = types.SessionStateDeleted
	session.UpdatedAt = time.Now()
	if err := m.store.UpdateSession(session); err != nil {
		return err
	}
	if err := m.store.DeleteSession(session.Owner, session.SessionID); err != nil {
		return err
	}

	m.logger.Info().Str("session_id", session.SessionID).Msg("Session deleted")
	return nil
}

// UnlockSession lifts the lock placed on a session and its host while a
// machine image was captured from it. Already unlocked records are left
// untouched.
func (m *Manager) UnlockSession(ctx context.Context, session *types.Session) error {
	if session.Locked {
		session.Locked = false
		session.UpdatedAt = time.Now()
		if err := m.store.UpdateSession(session); err != nil {
			return err
		}
		m.logger.Info().Str("session_id", session.SessionID).Msg("Session unlocked")
	}

	if session.Server == nil {
		return nil
	}
	server, err := m.store.GetServer(session.Server.InstanceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !server.Locked {
		return nil
	}
	server.Locked = false
	server.UpdatedAt = time.Now()
	return m.store.UpdateServer(server)
}

// MarkSessionError moves a session to the terminal ERROR state, clears
// its broker linkage and drops its retry counters.
func (m *Manager) MarkSessionError(ctx context.Context, session *types.Session, reason string) error {
	session.State = types.SessionStateError
	session.BrokerSessionID = ""
	session.FailureReason = reason
	session.UpdatedAt = time.Now()
	if err := m.store.UpdateSession(session); err != nil {
		return err
	}
	if err := m.store.DeleteCountersBySession(session.SessionID); err != nil {
		return err
	}

	m.logger.Error().Str("session_id", session.SessionID).Str("reason", reason).
		Msg("Session moved to ERROR")
	return nil
}

// sendCommand runs a script on the session's host, records the command
// for correlation and publishes its progress event.
func (m *Manager) sendCommand(ctx context.Context, session *types.Session, commandType types.CommandType, progressEvent events.EventType) error {
	if session.Server == nil {
		return fmt.Errorf("session %s has no server", session.SessionID)
	}
	payload := map[string]string{"session_id": session.SessionID, "owner": session.Owner}
	commandID, err := m.commands.SendCommand(ctx, session.Server.InstanceID, commandType, payload)
	if err != nil {
		return fmt.Errorf("failed to send %s command: %w", commandType, err)
	}
	cmd := &types.RemoteCommand{
		CommandID:         commandID,
		CommandType:       commandType,
		InstanceID:        session.Server.InstanceID,
		AdditionalPayload: payload,
		CreatedAt:         time.Now(),
	}
	if err := m.store.CreateCommand(cmd); err != nil {
		return err
	}
	event := events.NewCommandProgress(progressEvent, session.SessionID, commandID, session.Server.InstanceID)
	event.Detail["owner"] = session.Owner
	return m.publisher.Publish(ctx, event)
}

// SendResumeCommand runs the in-place resume script on a session's host.
func (m *Manager) SendResumeCommand(ctx context.Context, session *types.Session) error {
	return m.sendCommand(ctx, session, types.CommandResumeSession, events.EventResumeCommandProgress)
}

// SendCPUUtilizationCommand samples CPU utilization on a session's host
// for idle detection.
func (m *Manager) SendCPUUtilizationCommand(ctx context.Context, session *types.Session) error {
	return m.sendCommand(ctx, session, types.CommandCPUUtilization, events.EventCPUUtilizationProgress)
}

// SendEnableUserdataCommand re-enables userdata execution on a Windows
// host before it stops, so the next boot reinitializes the agent.
func (m *Manager) SendEnableUserdataCommand(ctx context.Context, session *types.Session) error {
	return m.sendCommand(ctx, session, types.CommandEnableUserdataWindows, events.EventEnableUserdataProgress)
}

// SendDisableUserdataCommand disables userdata execution on a Windows
// host after resume, so later reboots skip reinitialization.
func (m *Manager) SendDisableUserdataCommand(ctx context.Context, session *types.Session) error {
	return m.sendCommand(ctx, session, types.CommandDisableUserdataWindows, events.EventDisableUserdataProgress)
}

// EnforcePermissions pushes the stored permission set of a session to
// the broker. Expired permissions are excluded; an empty remainder
// revokes all shared access.
func (m *Manager) EnforcePermissions(ctx context.Context, session *types.Session) error {
	if session.BrokerSessionID == "" {
		m.logger.Debug().Str("session_id", session.SessionID).
			Msg("Session has no broker session, skipping permission enforcement")
		return nil
	}

	perms, err := m.store.ListPermissionsBySession(session.SessionID)
	if err != nil {
		return err
	}

	now := time.Now()
	actors := make([]broker.ActorPermission, 0, len(perms))
	for _, perm := range perms {
		// A permission expires the moment its expiry date is reached.
		if !perm.ExpiryDate.IsZero() && !perm.ExpiryDate.After(now) {
			continue
		}
		actors = append(actors, broker.ActorPermission{
			ActorName:           perm.ActorName,
			PermissionProfileID: perm.PermissionProfileID,
		})
	}

	return m.broker.EnforceSessionPermissions(ctx, session.BrokerSessionID, actors)
}
