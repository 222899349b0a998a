package handlers

import (
	"context"

	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/storage"
	"github.com/deskhive/deskhive/pkg/types"
)

// HostRebootComplete handles the notification that a host finished
// booting after a stop or hibernation. Freshly booted hosts publish it
// themselves; for hibernated hosts, which wake without a boot, the
// controller synthesizes it from the instance state change. For a
// RESUMING session it restarts the remote broker session: directly for
// Linux hosts, via the in-place resume command for Windows hosts, whose
// desktop service needs host-side coaxing after hibernation. The resume
// counter bounds repeated attempts.
func (h *Handlers) HostRebootComplete(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Host, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}

	instanceID := d.Event.DetailString(detailInstanceID)
	if instanceID == "" {
		return events.Fatalf("reboot complete event missing instance_id")
	}
	logger := log.WithMessage(h.logger, d.MessageID)

	session, err := h.store.GetSessionByInstanceID(instanceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return events.Retryf("no session for instance %s yet", instanceID)
		}
		return events.Retryf("failed to look up instance %s: %v", instanceID, err)
	}

	if session.State != types.SessionStateResuming {
		logger.Debug().Str("session_id", session.SessionID).
			Str("state", string(session.State)).
			Msg("Stale reboot complete event, ignoring")
		return events.Success()
	}

	count, exhausted, err := h.bumpCounter(session, types.CounterSessionResumed)
	if err != nil {
		return events.Retryf("failed to bump resume counter: %v", err)
	}
	if exhausted {
		return h.exhaust(ctx, d, session, types.CounterSessionResumed, count)
	}

	if session.SoftwareStack != nil && session.SoftwareStack.BaseOS == types.BaseOSWindows {
		if err := h.lifecycle.SendResumeCommand(ctx, session); err != nil {
			return events.Retryf("failed to send resume command: %v", err)
		}
		logger.Info().Str("session_id", session.SessionID).
			Msg("Resume command sent to Windows host")
		return events.Success()
	}

	if err := h.broker.ResumeSession(ctx, session); err != nil {
		return events.Retryf("broker resume for session %s failed: %v", session.SessionID, err)
	}
	if err := h.store.DeleteCounter(session.SessionID, types.CounterSessionResumed); err != nil {
		return events.Retryf("failed to clear resume counter: %v", err)
	}

	logger.Info().Str("session_id", session.SessionID).
		Msg("Broker session resumed, validating readiness")
	if err := h.publisher.Publish(ctx, events.NewValidateSessionCreation(session.SessionID, session.Owner)); err != nil {
		return events.Retryf("failed to publish creation validation: %v", err)
	}
	return events.Success()
}
