package handlers

import (
	"context"

	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/types"
)

// ValidateSessionDeletion polls the broker until a session's remote
// side is gone, then finishes what the session was doing: a DELETING
// session gets its host terminated and its records removed, a STOPPING
// session gets its host stopped or hibernated.
func (h *Handlers) ValidateSessionDeletion(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}

	session, outcome := h.sessionFromDetail(d)
	if session == nil {
		// A missing record means teardown already removed it.
		if outcome.Kind == events.OutcomeRetry {
			return events.Success()
		}
		return outcome
	}
	logger := log.WithMessage(h.logger, d.MessageID)

	if session.State == types.SessionStateDeleted {
		return events.Success()
	}
	if !session.State.OneOf(types.SessionStateDeleting, types.SessionStateStopping) {
		logger.Debug().Str("session_id", session.SessionID).
			Str("state", string(session.State)).
			Msg("Session not deleting or stopping, ignoring deletion validation")
		return events.Success()
	}

	count, exhausted, err := h.bumpCounter(session, types.CounterValidateDeletion)
	if err != nil {
		return events.Retryf("failed to bump deletion counter: %v", err)
	}
	if exhausted {
		return h.exhaust(ctx, d, session, types.CounterValidateDeletion, count)
	}

	if session.BrokerSessionID != "" {
		descriptions, err := h.broker.DescribeSessions(ctx, []string{session.BrokerSessionID})
		if err != nil {
			return events.Retryf("broker describe failed: %v", err)
		}
		if desc := descriptions[session.BrokerSessionID]; desc != nil && desc.State != types.BrokerSessionDeleted {
			return events.Retryf("broker session %s still in state %s", session.BrokerSessionID, desc.State)
		}
	}

	if session.State == types.SessionStateStopping {
		if err := h.lifecycle.FinishSessionStop(ctx, session); err != nil {
			return events.Retryf("failed to finish stop of session %s: %v", session.SessionID, err)
		}
		if err := h.store.DeleteCounter(session.SessionID, types.CounterValidateDeletion); err != nil {
			return events.Retryf("failed to clear deletion counter: %v", err)
		}
		return events.Success()
	}

	if err := h.lifecycle.FinishSessionDeletion(ctx, session); err != nil {
		return events.Retryf("failed to finish deletion of session %s: %v", session.SessionID, err)
	}
	return events.Success()
}
