package handlers

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/deskhive/deskhive/pkg/broker"
	"github.com/deskhive/deskhive/pkg/cloud"
	"github.com/deskhive/deskhive/pkg/config"
	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/lifecycle"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/metrics"
	"github.com/deskhive/deskhive/pkg/storage"
	"github.com/deskhive/deskhive/pkg/types"
)

// Detail keys common across event types.
const (
	detailSessionID  = "session_id"
	detailOwner      = "owner"
	detailInstanceID = "instance_id"
	detailCommandID  = "command_id"
	detailState      = "state"
	detailStackID    = "stack_id"
	detailBaseOS     = "base_os"
)

// Handlers holds the dependencies shared by all event handlers.
type Handlers struct {
	store     storage.Store
	lifecycle *lifecycle.Manager
	broker    broker.Client
	compute   cloud.Compute
	commands  cloud.Commands
	publisher events.Publisher
	cfg       *config.Config
	logger    zerolog.Logger
}

// New wires the handler set.
func New(store storage.Store, lc *lifecycle.Manager, brokerClient broker.Client, compute cloud.Compute, commands cloud.Commands, publisher events.Publisher, cfg *config.Config) *Handlers {
	return &Handlers{
		store:     store,
		lifecycle: lc,
		broker:    brokerClient,
		compute:   compute,
		commands:  commands,
		publisher: publisher,
		cfg:       cfg,
		logger:    log.WithComponent("handlers"),
	}
}

// checkSender validates the message sender against the identities
// allowed for this event type. Untrusted messages must not touch any
// state: the returned fatal outcome is the handler's entire response.
func (h *Handlers) checkSender(d events.Delivery, allowed ...string) (events.Outcome, bool) {
	for _, id := range allowed {
		if id != "" && d.SenderID == id {
			return events.Success(), true
		}
	}
	metrics.SenderRejections.Inc()
	h.logger.Error().
		Str("msg_id", d.MessageID).
		Str("sender_id", d.SenderID).
		Str("event_type", string(d.Event.Type)).
		Msg("Message sender validation failed")
	return events.Fatalf("sender %q not trusted for %s", d.SenderID, d.Event.Type), false
}

// sessionFromDetail loads the session named by the event detail.
func (h *Handlers) sessionFromDetail(d events.Delivery) (*types.Session, events.Outcome) {
	sessionID := d.Event.DetailString(detailSessionID)
	owner := d.Event.DetailString(detailOwner)
	if sessionID == "" || owner == "" {
		return nil, events.Fatalf("event %s missing session_id or owner", d.Event.Type)
	}
	session, err := h.store.GetSession(owner, sessionID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, events.Retryf("session %s not found yet", sessionID)
		}
		return nil, events.Retryf("failed to load session %s: %v", sessionID, err)
	}
	return session, events.Success()
}

// bumpCounter increments the session's counter of the given type and
// reports whether the configured threshold is now exhausted.
func (h *Handlers) bumpCounter(session *types.Session, t types.CounterType) (int, bool, error) {
	count, err := h.store.IncrementCounter(session.SessionID, t)
	if err != nil {
		return 0, false, err
	}
	return count, count >= h.cfg.Threshold(t), nil
}

// exhaust moves a session to ERROR after a counter crossed its
// threshold. The message is consumed: ERROR is terminal and retrying
// cannot help.
func (h *Handlers) exhaust(ctx context.Context, d events.Delivery, session *types.Session, t types.CounterType, count int) events.Outcome {
	metrics.SessionErrors.WithLabelValues(string(t)).Inc()
	reason := string(t) + " exhausted"
	logger := log.WithMessage(h.logger, d.MessageID)
	logger.Error().
		Str("session_id", session.SessionID).
		Str("counter_type", string(t)).
		Int("count", count).
		Msg("Retry counter exhausted")
	if err := h.lifecycle.MarkSessionError(ctx, session, reason); err != nil {
		return events.Retryf("failed to mark session %s errored: %v", session.SessionID, err)
	}
	return events.Success()
}
