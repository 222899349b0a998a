package notifier

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/storage"
	"github.com/deskhive/deskhive/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
}

type capturePublisher struct {
	published []*events.Event
	err       error
}

func (p *capturePublisher) Publish(ctx context.Context, event *events.Event) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	return nil
}

func newNotifyingStore(t *testing.T) (*Store, *capturePublisher) {
	t.Helper()
	inner, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { inner.Close() })
	pub := &capturePublisher{}
	return New(inner, pub), pub
}

func testSession() *types.Session {
	return &types.Session{
		SessionID: "s1",
		Owner:     "alice",
		Name:      "desktop",
		State:     types.SessionStateProvisioning,
	}
}

func TestCreateSessionPublishesCreatedEvent(t *testing.T) {
	s, pub := newNotifyingStore(t)

	require.NoError(t, s.CreateSession(testSession()))

	require.Len(t, pub.published, 1)
	event := pub.published[0]
	assert.Equal(t, events.EventDBEntryCreated, event.Type)
	assert.Equal(t, "alice-s1", event.GroupID)
	assert.Equal(t, TableSessions, event.DetailString(DetailTableName))
	assert.Equal(t, "alice", event.DetailString(DetailHashKey))
	assert.Equal(t, "s1", event.DetailString(DetailRangeKey))
	assert.Nil(t, event.DetailMap(DetailOldEntry))

	entry := event.DetailMap(DetailNewEntry)
	require.NotNil(t, entry)
	assert.Equal(t, "s1", entry["session_id"])
	assert.Equal(t, string(types.SessionStateProvisioning), entry["state"])
}

func TestUpdateSessionCarriesOldAndNewSnapshots(t *testing.T) {
	s, pub := newNotifyingStore(t)
	session := testSession()
	require.NoError(t, s.CreateSession(session))

	session.State = types.SessionStateReady
	require.NoError(t, s.UpdateSession(session))

	require.Len(t, pub.published, 2)
	event := pub.published[1]
	assert.Equal(t, events.EventDBEntryUpdated, event.Type)

	oldEntry := event.DetailMap(DetailOldEntry)
	require.NotNil(t, oldEntry)
	assert.Equal(t, string(types.SessionStateProvisioning), oldEntry["state"])
	newEntry := event.DetailMap(DetailNewEntry)
	require.NotNil(t, newEntry)
	assert.Equal(t, string(types.SessionStateReady), newEntry["state"])
}

func TestDeleteSessionPublishesOldEntry(t *testing.T) {
	s, pub := newNotifyingStore(t)
	require.NoError(t, s.CreateSession(testSession()))

	require.NoError(t, s.DeleteSession("alice", "s1"))

	require.Len(t, pub.published, 2)
	event := pub.published[1]
	assert.Equal(t, events.EventDBEntryDeleted, event.Type)
	require.NotNil(t, event.DetailMap(DetailOldEntry))
	assert.Nil(t, event.DetailMap(DetailNewEntry))
}

func TestPutSessionPermissionDistinguishesCreateFromUpdate(t *testing.T) {
	s, pub := newNotifyingStore(t)
	perm := &types.SessionPermission{
		SessionID: "s1", SessionOwner: "alice", ActorName: "bob",
		PermissionProfileID: "viewer",
	}

	require.NoError(t, s.PutSessionPermission(perm))
	require.Len(t, pub.published, 1)
	assert.Equal(t, events.EventDBEntryCreated, pub.published[0].Type)
	assert.Equal(t, TableSessionPermissions, pub.published[0].DetailString(DetailTableName))

	// Permission changes are ordered per session-actor pair.
	assert.Equal(t, "s1-bob", pub.published[0].GroupID)
	assert.Equal(t, "s1", pub.published[0].DetailString(DetailHashKey))
	assert.Equal(t, "bob", pub.published[0].DetailString(DetailRangeKey))

	perm.PermissionProfileID = "collaborator"
	require.NoError(t, s.PutSessionPermission(perm))
	require.Len(t, pub.published, 2)
	event := pub.published[1]
	assert.Equal(t, events.EventDBEntryUpdated, event.Type)
	assert.Equal(t, "viewer", event.DetailMap(DetailOldEntry)["permission_profile_id"])
	assert.Equal(t, "collaborator", event.DetailMap(DetailNewEntry)["permission_profile_id"])
}

func TestDeletePermissionsBySessionPublishesPerActor(t *testing.T) {
	s, pub := newNotifyingStore(t)
	for _, actor := range []string{"bob", "carol"} {
		require.NoError(t, s.PutSessionPermission(&types.SessionPermission{
			SessionID: "s1", SessionOwner: "alice", ActorName: actor,
		}))
	}
	pub.published = nil

	require.NoError(t, s.DeletePermissionsBySession("s1"))

	require.Len(t, pub.published, 2)
	actors := map[string]bool{}
	for _, event := range pub.published {
		assert.Equal(t, events.EventDBEntryDeleted, event.Type)
		actor, _ := event.DetailMap(DetailOldEntry)["actor_name"].(string)
		actors[actor] = true
	}
	assert.True(t, actors["bob"])
	assert.True(t, actors["carol"])
}

func TestDeleteMissingPermissionPublishesNothing(t *testing.T) {
	s, pub := newNotifyingStore(t)

	require.NoError(t, s.DeleteSessionPermission("s1", "nobody"))
	assert.Empty(t, pub.published)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	s, pub := newNotifyingStore(t)
	pub.err = assert.AnError

	require.NoError(t, s.CreateSession(testSession()))

	// The mutation went through even though the event did not.
	got, err := s.GetSession("alice", "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
}

func TestUnwatchedMutationsPassThrough(t *testing.T) {
	s, pub := newNotifyingStore(t)

	require.NoError(t, s.CreateServer(&types.Server{InstanceID: "i-1"}))
	require.NoError(t, s.CreateSchedule(&types.Schedule{
		ScheduleID: "sch1", SessionID: "s1", SessionOwner: "alice",
		Type: types.ScheduleStartAllDay, DayOfWeek: types.Monday,
	}))
	assert.Empty(t, pub.published)
}
