package handlers

import (
	"context"
	"time"

	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/types"
)

// PermissionsEnforce pushes the stored permission set of a session to
// the broker. Only sessions whose broker side is live or coming up are
// enforced; for stopped or tearing-down sessions the message retries
// until the session either settles in an enforceable state or the queue
// drops it.
func (h *Handlers) PermissionsEnforce(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}

	session, outcome := h.sessionFromDetail(d)
	if session == nil {
		return outcome
	}
	if !session.State.OneOf(types.SessionStateReady, types.SessionStateResuming,
		types.SessionStateCreating, types.SessionStateInitializing) {
		return events.Retryf("session %s in state %s, deferring permission enforcement",
			session.SessionID, session.State)
	}
	if err := h.lifecycle.EnforcePermissions(ctx, session); err != nil {
		return events.Retryf("failed to enforce permissions for session %s: %v", session.SessionID, err)
	}
	return events.Success()
}

// PermissionsUpdate replaces the stored permission set of a session
// with the actors carried in the event, stamps the denormalized session
// fields onto each record, and queues a broker enforcement.
//
// Event detail:
//
//	{"session_id": ..., "owner": ..., "permissions": [
//	    {"actor_name": ..., "permission_profile_id": ..., "expiry_date": RFC3339}, ...]}
func (h *Handlers) PermissionsUpdate(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller, h.cfg.TrustedSenders.Broker); !ok {
		return outcome
	}

	session, outcome := h.sessionFromDetail(d)
	if session == nil {
		return outcome
	}
	logger := log.WithMessage(h.logger, d.MessageID)

	entries, ok := d.Event.Detail["permissions"].([]any)
	if !ok {
		return events.Fatalf("permissions update event missing permissions list")
	}

	wanted := make(map[string]bool, len(entries))
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			return events.Fatalf("malformed permission entry")
		}
		actor, _ := entry["actor_name"].(string)
		if actor == "" {
			return events.Fatalf("permission entry missing actor_name")
		}
		profile, _ := entry["permission_profile_id"].(string)

		var expiry time.Time
		if raw, ok := entry["expiry_date"].(string); ok && raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return events.Fatalf("invalid expiry_date %q: %v", raw, err)
			}
			expiry = parsed
		}

		perm := &types.SessionPermission{
			SessionID:           session.SessionID,
			SessionOwner:        session.Owner,
			ActorName:           actor,
			PermissionProfileID: profile,
			ExpiryDate:          expiry,
			SessionName:         session.Name,
			SessionState:        session.State,
		}
		if session.Server != nil {
			perm.SessionInstanceType = session.Server.InstanceType
		}
		if err := h.store.PutSessionPermission(perm); err != nil {
			return events.Retryf("failed to store permission for %s: %v", actor, err)
		}
		wanted[actor] = true
	}

	// Drop permissions for actors no longer granted.
	existing, err := h.store.ListPermissionsBySession(session.SessionID)
	if err != nil {
		return events.Retryf("failed to list permissions: %v", err)
	}
	for _, perm := range existing {
		if !wanted[perm.ActorName] {
			if err := h.store.DeleteSessionPermission(session.SessionID, perm.ActorName); err != nil {
				return events.Retryf("failed to delete permission for %s: %v", perm.ActorName, err)
			}
		}
	}

	logger.Info().Str("session_id", session.SessionID).
		Int("actors", len(wanted)).
		Msg("Session permissions updated")
	if err := h.publisher.Publish(ctx, events.NewPermissionsEnforce(session.SessionID, session.Owner)); err != nil {
		return events.Retryf("failed to publish permission enforcement: %v", err)
	}
	return events.Success()
}
