package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/notifier"
	"github.com/deskhive/deskhive/pkg/types"
)

func TestDBEntryCreatedTagsSessionHost(t *testing.T) {
	e := newTestEnv(t)
	e.seedSession(t, "s1", types.SessionStateProvisioning)

	d := delivery(events.EventDBEntryCreated, e.cfg.TrustedSenders.Controller, map[string]any{
		notifier.DetailTableName: notifier.TableSessions,
		notifier.DetailNewEntry: map[string]any{
			"session_id": "s1",
			"owner":      "alice",
			"server":     map[string]any{"instance_id": "i-s1"},
		},
	})
	outcome := e.h.DBEntryCreated(context.Background(), d)
	require.Equal(t, events.OutcomeSuccess, outcome.Kind)

	tags := e.compute.Tags("i-s1")
	assert.Equal(t, "s1", tags["deskhive:session-id"])
	assert.Equal(t, "alice", tags["deskhive:owner"])
}

func TestDBEntryCreatedIgnoresOtherTables(t *testing.T) {
	e := newTestEnv(t)

	d := delivery(events.EventDBEntryCreated, e.cfg.TrustedSenders.Controller, map[string]any{
		notifier.DetailTableName: notifier.TableSessionPermissions,
		notifier.DetailNewEntry:  map[string]any{"session_id": "s1"},
	})
	outcome := e.h.DBEntryCreated(context.Background(), d)
	assert.Equal(t, events.OutcomeSuccess, outcome.Kind)
}

func TestDBEntryUpdatedSyncsPermissionProjections(t *testing.T) {
	e := newTestEnv(t)
	session := e.seedSession(t, "s1", types.SessionStateReady)
	require.NoError(t, e.store.PutSessionPermission(&types.SessionPermission{
		SessionID: "s1", SessionOwner: "alice", ActorName: "bob",
		SessionName:  "stale-name",
		SessionState: types.SessionStateStopped,
	}))

	d := delivery(events.EventDBEntryUpdated, e.cfg.TrustedSenders.Controller, map[string]any{
		notifier.DetailTableName: notifier.TableSessions,
		notifier.DetailOldEntry: map[string]any{
			"session_id": "s1",
			"owner":      "alice",
			"state":      string(types.SessionStateStopped),
		},
		notifier.DetailNewEntry: map[string]any{
			"session_id": "s1",
			"owner":      "alice",
			"state":      string(types.SessionStateReady),
		},
	})
	outcome := e.h.DBEntryUpdated(context.Background(), d)
	require.Equal(t, events.OutcomeSuccess, outcome.Kind)

	perm, err := e.store.GetSessionPermission("s1", "bob")
	require.NoError(t, err)
	assert.Equal(t, session.Name, perm.SessionName)
	assert.Equal(t, "t3.large", perm.SessionInstanceType)
	assert.Equal(t, types.SessionStateReady, perm.SessionState)

	// A state change is visible to shared actors, so it re-enforces.
	require.Len(t, e.pub.byType(events.EventSessionPermissionsEnforce), 1)
}

func TestDBEntryUpdatedProjectionSyncIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	session := e.seedSession(t, "s1", types.SessionStateReady)
	require.NoError(t, e.store.PutSessionPermission(&types.SessionPermission{
		SessionID: "s1", SessionOwner: "alice", ActorName: "bob",
		SessionName:         session.Name,
		SessionInstanceType: "t3.large",
		SessionState:        types.SessionStateReady,
	}))

	d := delivery(events.EventDBEntryUpdated, e.cfg.TrustedSenders.Controller, map[string]any{
		notifier.DetailTableName: notifier.TableSessions,
		notifier.DetailOldEntry: map[string]any{
			"session_id": "s1",
			"owner":      "alice",
			"state":      string(types.SessionStateReady),
		},
		notifier.DetailNewEntry: map[string]any{
			"session_id": "s1",
			"owner":      "alice",
			"state":      string(types.SessionStateReady),
		},
	})
	outcome := e.h.DBEntryUpdated(context.Background(), d)
	require.Equal(t, events.OutcomeSuccess, outcome.Kind)

	// Records already in sync and an unchanged state publish nothing,
	// which keeps projection updates from looping.
	assert.Empty(t, e.pub.byType(events.EventSessionPermissionsEnforce))
}

func TestDBEntryUpdatedPermissionProfileChangeEnforces(t *testing.T) {
	e := newTestEnv(t)
	e.seedSession(t, "s1", types.SessionStateReady)

	d := delivery(events.EventDBEntryUpdated, e.cfg.TrustedSenders.Controller, map[string]any{
		notifier.DetailTableName: notifier.TableSessionPermissions,
		notifier.DetailOldEntry: map[string]any{
			"session_id":            "s1",
			"session_owner":         "alice",
			"permission_profile_id": "viewer",
		},
		notifier.DetailNewEntry: map[string]any{
			"session_id":            "s1",
			"session_owner":         "alice",
			"permission_profile_id": "collaborator",
		},
	})
	outcome := e.h.DBEntryUpdated(context.Background(), d)
	require.Equal(t, events.OutcomeSuccess, outcome.Kind)
	require.Len(t, e.pub.byType(events.EventSessionPermissionsEnforce), 1)
}

func TestDBEntryUpdatedProjectionOnlyChangeDoesNotEnforce(t *testing.T) {
	e := newTestEnv(t)
	e.seedSession(t, "s1", types.SessionStateReady)

	d := delivery(events.EventDBEntryUpdated, e.cfg.TrustedSenders.Controller, map[string]any{
		notifier.DetailTableName: notifier.TableSessionPermissions,
		notifier.DetailOldEntry: map[string]any{
			"session_id":            "s1",
			"session_owner":         "alice",
			"permission_profile_id": "viewer",
			"session_name":          "old-name",
		},
		notifier.DetailNewEntry: map[string]any{
			"session_id":            "s1",
			"session_owner":         "alice",
			"permission_profile_id": "viewer",
			"session_name":          "new-name",
		},
	})
	outcome := e.h.DBEntryUpdated(context.Background(), d)
	require.Equal(t, events.OutcomeSuccess, outcome.Kind)
	assert.Empty(t, e.pub.byType(events.EventSessionPermissionsEnforce))
}

func TestDBEntryDeletedPermissionEnforcesRevocation(t *testing.T) {
	e := newTestEnv(t)
	e.seedSession(t, "s1", types.SessionStateReady)

	d := delivery(events.EventDBEntryDeleted, e.cfg.TrustedSenders.Controller, map[string]any{
		notifier.DetailTableName: notifier.TableSessionPermissions,
		notifier.DetailOldEntry: map[string]any{
			"session_id":    "s1",
			"session_owner": "alice",
			"actor_name":    "bob",
		},
	})
	outcome := e.h.DBEntryDeleted(context.Background(), d)
	require.Equal(t, events.OutcomeSuccess, outcome.Kind)
	require.Len(t, e.pub.byType(events.EventSessionPermissionsEnforce), 1)
}
