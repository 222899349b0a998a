package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/deskhive/deskhive/pkg/cloud"
	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/storage"
	"github.com/deskhive/deskhive/pkg/types"
)

// InstanceStateChanged reconciles session state with compute provider
// instance state notifications. A host that stops or dies while its
// session is being provisioned is unrecoverable and errors the session;
// an expected stop completes the STOPPING transition.
func (h *Handlers) InstanceStateChanged(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Cloud); !ok {
		return outcome
	}

	instanceID := d.Event.DetailString(detailInstanceID)
	state := cloud.InstanceState(d.Event.DetailString(detailState))
	if instanceID == "" || state == "" {
		return events.Fatalf("instance state event missing instance_id or state")
	}
	logger := log.WithMessage(h.logger, d.MessageID)

	session, err := h.store.GetSessionByInstanceID(instanceID)
	if err != nil {
		if storage.IsNotFound(err) {
			logger.Debug().Str("instance_id", instanceID).
				Msg("State change for untracked instance, ignoring")
			return events.Success()
		}
		return events.Retryf("failed to look up instance %s: %v", instanceID, err)
	}

	switch state {
	case cloud.InstanceStopping, cloud.InstanceStopped:
		// A host stopping before the session ever reached READY means
		// provisioning failed underneath us.
		if session.State.OneOf(types.SessionStateProvisioning, types.SessionStateCreating, types.SessionStateInitializing) {
			if err := h.lifecycle.MarkSessionError(ctx, session, "host stopped during provisioning"); err != nil {
				return events.Retryf("failed to mark session %s errored: %v", session.SessionID, err)
			}
			return events.Success()
		}
		if state == cloud.InstanceStopped && session.State == types.SessionStateStopping {
			if session.IsIdle {
				session.State = types.SessionStateStoppedIdle
			} else {
				session.State = types.SessionStateStopped
			}
			session.UpdatedAt = time.Now()
			if err := h.store.UpdateSession(session); err != nil {
				return events.Retryf("failed to update session %s: %v", session.SessionID, err)
			}
			if err := h.updateServerState(session); err != nil {
				return events.Retryf("failed to update server: %v", err)
			}
			logger.Info().Str("session_id", session.SessionID).
				Str("state", string(session.State)).
				Msg("Session stopped")
		}
		return events.Success()

	case cloud.InstanceTerminated, cloud.InstanceShuttingDown:
		if session.State.OneOf(types.SessionStateDeleting, types.SessionStateDeleted, types.SessionStateError) {
			return events.Success()
		}
		if err := h.lifecycle.MarkSessionError(ctx, session, "host terminated unexpectedly"); err != nil {
			return events.Retryf("failed to mark session %s errored: %v", session.SessionID, err)
		}
		return events.Success()

	case cloud.InstanceRunning:
		return h.instanceRunning(ctx, session, instanceID, logger)

	default:
		// pending transitions carry no work.
		return events.Success()
	}
}

// instanceRunning records that a session's host is up again. A
// hibernated host resumes without a fresh boot, so the agent never
// announces it; the controller publishes the reboot completion on its
// behalf to keep the resume moving.
func (h *Handlers) instanceRunning(ctx context.Context, session *types.Session, instanceID string, logger zerolog.Logger) events.Outcome {
	if session.IsIdle {
		session.IsIdle = false
		session.UpdatedAt = time.Now()
		if err := h.store.UpdateSession(session); err != nil {
			return events.Retryf("failed to update session %s: %v", session.SessionID, err)
		}
	}

	server, err := h.store.GetServer(instanceID)
	if err != nil && !storage.IsNotFound(err) {
		return events.Retryf("failed to load server %s: %v", instanceID, err)
	}
	if server != nil && server.State != types.ServerStateCreated {
		server.State = types.ServerStateCreated
		server.IsIdle = false
		server.UpdatedAt = time.Now()
		if err := h.store.UpdateServer(server); err != nil {
			return events.Retryf("failed to update server %s: %v", instanceID, err)
		}
	}

	if session.HibernationEnabled && session.State == types.SessionStateResuming {
		if err := h.publisher.Publish(ctx, events.NewHostRebootComplete(session.SessionID, instanceID)); err != nil {
			return events.Retryf("failed to publish reboot completion: %v", err)
		}
		logger.Info().Str("session_id", session.SessionID).
			Str("instance_id", instanceID).
			Msg("Hibernated host running again, resuming session")
	}
	return events.Success()
}

func (h *Handlers) updateServerState(session *types.Session) error {
	if session.Server == nil {
		return nil
	}
	server, err := h.store.GetServer(session.Server.InstanceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil
		}
		return err
	}
	if session.HibernationEnabled {
		server.State = types.ServerStateHibernated
	} else if session.IsIdle {
		server.State = types.ServerStateStoppedIdle
	} else {
		server.State = types.ServerStateStopped
	}
	server.IsIdle = session.IsIdle
	server.UpdatedAt = time.Now()
	return h.store.UpdateServer(server)
}
