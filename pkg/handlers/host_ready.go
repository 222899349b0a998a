package handlers

import (
	"context"
	"time"

	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/storage"
	"github.com/deskhive/deskhive/pkg/types"
)

// HostReady handles the boot notification a desktop host publishes once
// its agent is up. It drives the session from PROVISIONING through the
// broker create call into INITIALIZING, then hands off to creation
// validation. Every failed broker create bumps the creation counter;
// crossing its threshold moves the session to ERROR.
func (h *Handlers) HostReady(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Host); !ok {
		return outcome
	}

	instanceID := d.Event.DetailString(detailInstanceID)
	if instanceID == "" {
		return events.Fatalf("host ready event missing instance_id")
	}
	logger := log.WithMessage(h.logger, d.MessageID)

	session, err := h.store.GetSessionByInstanceID(instanceID)
	if err != nil {
		if storage.IsNotFound(err) {
			return events.Retryf("no session for instance %s yet", instanceID)
		}
		return events.Retryf("failed to look up instance %s: %v", instanceID, err)
	}

	// A host can re-announce readiness after a reboot; only sessions
	// still working toward READY care.
	if !session.State.OneOf(types.SessionStateProvisioning, types.SessionStateCreating, types.SessionStateInitializing) {
		logger.Debug().Str("session_id", session.SessionID).
			Str("state", string(session.State)).
			Msg("Stale host ready event, ignoring")
		return events.Success()
	}

	if session.State == types.SessionStateProvisioning {
		session.State = types.SessionStateCreating
		session.UpdatedAt = time.Now()
		if err := h.store.UpdateSession(session); err != nil {
			return events.Retryf("failed to update session %s: %v", session.SessionID, err)
		}
	}

	if session.BrokerSessionID == "" {
		brokerSessionID, err := h.broker.CreateSession(ctx, session)
		if err != nil {
			// Only failed attempts count against the threshold; the
			// session keeps its full budget of actual create calls.
			count, exhausted, cerr := h.bumpCounter(session, types.CounterSessionCreation)
			if cerr != nil {
				return events.Retryf("failed to bump creation counter: %v", cerr)
			}
			if exhausted {
				return h.exhaust(ctx, d, session, types.CounterSessionCreation, count)
			}
			return events.Retryf("broker create for session %s failed (attempt %d): %v", session.SessionID, count, err)
		}
		session.BrokerSessionID = brokerSessionID
	}

	session.State = types.SessionStateInitializing
	session.UpdatedAt = time.Now()
	if err := h.store.UpdateSession(session); err != nil {
		return events.Retryf("failed to update session %s: %v", session.SessionID, err)
	}
	if err := h.store.DeleteCounter(session.SessionID, types.CounterSessionCreation); err != nil {
		return events.Retryf("failed to clear creation counter: %v", err)
	}

	logger.Info().Str("session_id", session.SessionID).
		Str("broker_session_id", session.BrokerSessionID).
		Msg("Broker session created, validating readiness")
	if err := h.publisher.Publish(ctx, events.NewValidateSessionCreation(session.SessionID, session.Owner)); err != nil {
		return events.Retryf("failed to publish creation validation: %v", err)
	}
	return events.Success()
}
