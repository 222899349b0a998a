package handlers

import (
	"context"
	"time"

	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/types"
)

// ValidateSessionCreation polls the broker until a session that was
// created or resumed reports READY. Two counters bound the wait: the
// validation counter caps total polls, and the deleted counter caps
// polls where the broker claims the session does not exist at all,
// which resolves much faster.
func (h *Handlers) ValidateSessionCreation(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}

	session, outcome := h.sessionFromDetail(d)
	if session == nil {
		return outcome
	}
	logger := log.WithMessage(h.logger, d.MessageID)

	if session.State == types.SessionStateReady {
		return events.Success()
	}
	if !session.State.OneOf(types.SessionStateInitializing, types.SessionStateResuming) {
		logger.Debug().Str("session_id", session.SessionID).
			Str("state", string(session.State)).
			Msg("Session no longer awaiting creation validation, ignoring")
		return events.Success()
	}
	if session.BrokerSessionID == "" {
		return events.Fatalf("session %s awaits validation but has no broker session id", session.SessionID)
	}

	count, exhausted, err := h.bumpCounter(session, types.CounterValidateCreation)
	if err != nil {
		return events.Retryf("failed to bump validation counter: %v", err)
	}
	if exhausted {
		return h.exhaust(ctx, d, session, types.CounterValidateCreation, count)
	}

	descriptions, err := h.broker.DescribeSessions(ctx, []string{session.BrokerSessionID})
	if err != nil {
		return events.Retryf("broker describe failed: %v", err)
	}

	// UNKNOWN is a transient broker answer and stays on the slower
	// validation counter; only a definitive miss counts as deleted.
	desc := descriptions[session.BrokerSessionID]
	if desc == nil || desc.State == types.BrokerSessionDeleted {
		deleted, exhausted, err := h.bumpCounter(session, types.CounterSessionDeleted)
		if err != nil {
			return events.Retryf("failed to bump deleted counter: %v", err)
		}
		if exhausted {
			return h.exhaust(ctx, d, session, types.CounterSessionDeleted, deleted)
		}
		return events.Retryf("broker does not know session %s (attempt %d)", session.BrokerSessionID, deleted)
	}

	if desc.State != types.BrokerSessionReady {
		return events.Retryf("broker session %s in state %s", session.BrokerSessionID, desc.State)
	}

	session.State = types.SessionStateReady
	session.IsIdle = false
	session.FailureReason = ""
	session.UpdatedAt = time.Now()
	if err := h.store.UpdateSession(session); err != nil {
		return events.Retryf("failed to update session %s: %v", session.SessionID, err)
	}
	// READY resolves every pending creation/resume counter.
	if err := h.store.DeleteCountersBySession(session.SessionID); err != nil {
		return events.Retryf("failed to clear counters: %v", err)
	}

	logger.Info().Str("session_id", session.SessionID).Msg("Session is ready")
	if err := h.publisher.Publish(ctx, events.NewPermissionsEnforce(session.SessionID, session.Owner)); err != nil {
		return events.Retryf("failed to publish permission enforcement: %v", err)
	}
	return events.Success()
}
