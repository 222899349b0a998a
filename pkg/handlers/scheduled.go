package handlers

import (
	"context"
	"time"

	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/types"
)

// Scheduled runs the periodic sweep: schedules are evaluated against
// the configured timezone and expired permissions are revoked. The
// sweep only publishes follow-up events; actual transitions happen in
// their own handlers under their sessions' ordering groups.
func (h *Handlers) Scheduled(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Scheduler); !ok {
		return outcome
	}

	now := time.Now().In(h.cfg.Location())
	if err := h.lifecycle.TriggerSchedules(ctx, now); err != nil {
		return events.Retryf("schedule sweep failed: %v", err)
	}
	if err := h.lifecycle.SweepExpiredPermissions(ctx, now); err != nil {
		return events.Retryf("permission sweep failed: %v", err)
	}
	return events.Success()
}

// ScheduledResume resumes a stopped session on behalf of its schedule.
func (h *Handlers) ScheduledResume(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}

	session, outcome := h.sessionFromDetail(d)
	if session == nil {
		return outcome
	}
	if err := h.lifecycle.ResumeSession(ctx, session); err != nil {
		return events.Retryf("failed to resume session %s: %v", session.SessionID, err)
	}
	return events.Success()
}

// ScheduledStop handles a schedule's stop request. Instead of stopping
// outright, it samples the host's CPU utilization; the decision to stop
// lands in the command progress handler, so an actively used session
// survives its shutdown time.
func (h *Handlers) ScheduledStop(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}

	session, outcome := h.sessionFromDetail(d)
	if session == nil {
		return outcome
	}
	if session.State != types.SessionStateReady {
		return events.Success()
	}

	if h.cfg.Scheduler.CPUUtilizationThreshold <= 0 {
		if err := h.lifecycle.StopSession(ctx, session, false); err != nil {
			return events.Retryf("failed to stop session %s: %v", session.SessionID, err)
		}
		return events.Success()
	}

	if err := h.lifecycle.SendCPUUtilizationCommand(ctx, session); err != nil {
		return events.Retryf("failed to sample cpu utilization: %v", err)
	}
	logger := log.WithMessage(h.logger, d.MessageID)
	logger.Info().
		Str("session_id", session.SessionID).
		Msg("Checking host utilization before scheduled stop")
	return events.Success()
}

// SessionTerminate force-deletes a session regardless of connected
// clients, then lets deletion validation tear down the host.
func (h *Handlers) SessionTerminate(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}

	session, outcome := h.sessionFromDetail(d)
	if session == nil {
		return outcome
	}
	if session.State.OneOf(types.SessionStateDeleting, types.SessionStateDeleted) {
		return events.Success()
	}
	if err := h.lifecycle.DeleteSession(ctx, session, true); err != nil {
		return events.Retryf("failed to delete session %s: %v", session.SessionID, err)
	}
	return events.Success()
}
