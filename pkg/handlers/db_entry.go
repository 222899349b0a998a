package handlers

import (
	"context"

	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/notifier"
	"github.com/deskhive/deskhive/pkg/types"
)

// DBEntryCreated reacts to new records. A freshly provisioned session
// gets its host tagged with owner and session identifiers so operators
// can trace instances back to desktops.
func (h *Handlers) DBEntryCreated(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}

	if d.Event.DetailString(notifier.DetailTableName) != notifier.TableSessions {
		return events.Success()
	}

	entry := d.Event.DetailMap(notifier.DetailNewEntry)
	if entry == nil {
		return events.Fatalf("db entry created event missing new_entry")
	}
	sessionID, _ := entry["session_id"].(string)
	server, _ := entry["server"].(map[string]any)
	instanceID, _ := server["instance_id"].(string)
	owner, _ := entry["owner"].(string)
	if sessionID == "" || instanceID == "" {
		return events.Success()
	}

	tags := map[string]string{
		"deskhive:session-id": sessionID,
		"deskhive:owner":      owner,
	}
	if err := h.compute.CreateTags(ctx, instanceID, tags); err != nil {
		return events.Retryf("failed to tag instance %s: %v", instanceID, err)
	}
	logger := log.WithMessage(h.logger, d.MessageID)
	logger.Debug().
		Str("session_id", sessionID).
		Str("instance_id", instanceID).
		Msg("Tagged session host")
	return events.Success()
}

// DBEntryUpdated keeps the denormalized session fields on permission
// records in sync when their source session changes, and queues a
// broker enforcement when a permission record itself changed. Both
// projections are idempotent, so redelivery converges to the same
// state.
func (h *Handlers) DBEntryUpdated(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}

	switch d.Event.DetailString(notifier.DetailTableName) {
	case notifier.TableSessions:
		return h.syncPermissionProjections(ctx, d)
	case notifier.TableSessionPermissions:
		return h.enforceChangedPermission(ctx, d)
	}
	return events.Success()
}

// DBEntryDeleted queues a broker enforcement when a permission record
// was removed, revoking the actor's remote access.
func (h *Handlers) DBEntryDeleted(ctx context.Context, d events.Delivery) events.Outcome {
	if outcome, ok := h.checkSender(d, h.cfg.TrustedSenders.Controller); !ok {
		return outcome
	}

	if d.Event.DetailString(notifier.DetailTableName) != notifier.TableSessionPermissions {
		return events.Success()
	}
	entry := d.Event.DetailMap(notifier.DetailOldEntry)
	if entry == nil {
		return events.Success()
	}
	sessionID, _ := entry["session_id"].(string)
	owner, _ := entry["session_owner"].(string)
	if sessionID == "" || owner == "" {
		return events.Success()
	}
	if err := h.publisher.Publish(ctx, events.NewPermissionsEnforce(sessionID, owner)); err != nil {
		return events.Retryf("failed to publish permission enforcement: %v", err)
	}
	return events.Success()
}

func (h *Handlers) syncPermissionProjections(ctx context.Context, d events.Delivery) events.Outcome {
	entry := d.Event.DetailMap(notifier.DetailNewEntry)
	if entry == nil {
		return events.Success()
	}
	sessionID, _ := entry["session_id"].(string)
	owner, _ := entry["owner"].(string)
	if sessionID == "" || owner == "" {
		return events.Success()
	}

	session, err := h.store.GetSession(owner, sessionID)
	if err != nil {
		return events.Retryf("failed to load session %s: %v", sessionID, err)
	}

	perms, err := h.store.ListPermissionsBySession(sessionID)
	if err != nil {
		return events.Retryf("failed to list permissions: %v", err)
	}

	instanceType := ""
	if session.Server != nil {
		instanceType = session.Server.InstanceType
	}

	synced := 0
	for _, perm := range perms {
		if perm.SessionName == session.Name &&
			perm.SessionInstanceType == instanceType &&
			perm.SessionState == session.State {
			continue
		}
		perm.SessionName = session.Name
		perm.SessionInstanceType = instanceType
		perm.SessionState = session.State
		if err := h.store.PutSessionPermission(perm); err != nil {
			return events.Retryf("failed to sync permission for %s: %v", perm.ActorName, err)
		}
		synced++
	}

	if synced > 0 {
		logger := log.WithMessage(h.logger, d.MessageID)
		logger.Debug().
			Str("session_id", sessionID).
			Int("permissions", synced).
			Msg("Synced permission projections")
	}

	// A state change also changes what shared actors may do remotely.
	oldEntry := d.Event.DetailMap(notifier.DetailOldEntry)
	oldState, _ := oldEntry["state"].(string)
	if oldState != "" && types.SessionState(oldState) != session.State {
		if err := h.publisher.Publish(ctx, events.NewPermissionsEnforce(sessionID, owner)); err != nil {
			return events.Retryf("failed to publish permission enforcement: %v", err)
		}
	}
	return events.Success()
}

func (h *Handlers) enforceChangedPermission(ctx context.Context, d events.Delivery) events.Outcome {
	entry := d.Event.DetailMap(notifier.DetailNewEntry)
	if entry == nil {
		return events.Success()
	}
	sessionID, _ := entry["session_id"].(string)
	owner, _ := entry["session_owner"].(string)
	if sessionID == "" || owner == "" {
		return events.Success()
	}

	// Only re-enforce when broker-relevant fields changed; projection
	// syncs of denormalized session fields would loop otherwise.
	oldEntry := d.Event.DetailMap(notifier.DetailOldEntry)
	if oldEntry != nil {
		oldProfile, _ := oldEntry["permission_profile_id"].(string)
		newProfile, _ := entry["permission_profile_id"].(string)
		oldExpiry, _ := oldEntry["expiry_date"].(string)
		newExpiry, _ := entry["expiry_date"].(string)
		if oldProfile == newProfile && oldExpiry == newExpiry {
			return events.Success()
		}
	}

	if err := h.publisher.Publish(ctx, events.NewPermissionsEnforce(sessionID, owner)); err != nil {
		return events.Retryf("failed to publish permission enforcement: %v", err)
	}
	return events.Success()
}
