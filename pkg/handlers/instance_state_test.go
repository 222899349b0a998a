package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhive/deskhive/pkg/cloud"
	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/types"
)

func instanceStateDelivery(e *testEnv, instanceID string, state cloud.InstanceState) events.Delivery {
	return delivery(events.EventInstanceStateChanged, e.cfg.TrustedSenders.Cloud, map[string]any{
		"instance_id": instanceID,
		"state":       string(state),
	})
}

func TestInstanceStoppedCompletesStop(t *testing.T) {
	e := newTestEnv(t)
	e.seedSession(t, "s1", types.SessionStateStopping)

	outcome := e.h.InstanceStateChanged(context.Background(), instanceStateDelivery(e, "i-s1", cloud.InstanceStopped))
	require.Equal(t, events.OutcomeSuccess, outcome.Kind)

	got := e.session(t, "s1")
	assert.Equal(t, types.SessionStateStopped, got.State)

	server, err := e.store.GetServer("i-s1")
	require.NoError(t, err)
	assert.Equal(t, types.ServerStateStopped, server.State)
}

func TestInstanceStoppedLandsIdleSessionInStoppedIdle(t *testing.T) {
	e := newTestEnv(t)
	session := e.seedSession(t, "s1", types.SessionStateStopping)
	session.IsIdle = true
	require.NoError(t, e.store.UpdateSession(session))

	outcome := e.h.InstanceStateChanged(context.Background(), instanceStateDelivery(e, "i-s1", cloud.InstanceStopped))
	require.Equal(t, events.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, types.SessionStateStoppedIdle, e.session(t, "s1").State)
}

func TestInstanceStoppingDuringProvisioningErrorsSession(t *testing.T) {
	e := newTestEnv(t)
	e.seedSession(t, "s1", types.SessionStateProvisioning)

	outcome := e.h.InstanceStateChanged(context.Background(), instanceStateDelivery(e, "i-s1", cloud.InstanceStopping))
	require.Equal(t, events.OutcomeSuccess, outcome.Kind)

	got := e.session(t, "s1")
	assert.Equal(t, types.SessionStateError, got.State)
	assert.NotEmpty(t, got.FailureReason)
}

func TestInstanceTerminatedUnexpectedlyErrorsSession(t *testing.T) {
	e := newTestEnv(t)
	e.seedSession(t, "s1", types.SessionStateReady)

	outcome := e.h.InstanceStateChanged(context.Background(), instanceStateDelivery(e, "i-s1", cloud.InstanceTerminated))
	require.Equal(t, events.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, types.SessionStateError, e.session(t, "s1").State)
}

func TestInstanceTerminatedDuringDeletionIsExpected(t *testing.T) {
	e := newTestEnv(t)
	e.seedSession(t, "s1", types.SessionStateDeleting)

	outcome := e.h.InstanceStateChanged(context.Background(), instanceStateDelivery(e, "i-s1", cloud.InstanceTerminated))
	require.Equal(t, events.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, types.SessionStateDeleting, e.session(t, "s1").State)
}

func TestInstanceRunningPublishesRebootCompletionForHibernatedResume(t *testing.T) {
	e := newTestEnv(t)
	session := e.seedSession(t, "s1", types.SessionStateResuming)
	session.HibernationEnabled = true
	session.IsIdle = true
	require.NoError(t, e.store.UpdateSession(session))

	server, err := e.store.GetServer("i-s1")
	require.NoError(t, err)
	server.State = types.ServerStateHibernated
	server.IsIdle = true
	require.NoError(t, e.store.UpdateServer(server))

	outcome := e.h.InstanceStateChanged(context.Background(), instanceStateDelivery(e, "i-s1", cloud.InstanceRunning))
	require.Equal(t, events.OutcomeSuccess, outcome.Kind)

	got := e.session(t, "s1")
	assert.Equal(t, types.SessionStateResuming, got.State)
	assert.False(t, got.IsIdle)

	server, err = e.store.GetServer("i-s1")
	require.NoError(t, err)
	assert.Equal(t, types.ServerStateCreated, server.State)
	assert.False(t, server.IsIdle)

	// The hibernated host never boots, so the controller fills in the
	// reboot completion the agent would otherwise publish.
	published := e.pub.byType(events.EventHostRebootComplete)
	require.Len(t, published, 1)
	assert.Equal(t, "s1", published[0].GroupID)
	assert.Equal(t, "i-s1", published[0].DetailString("instance_id"))
}

func TestInstanceRunningWithoutHibernationAwaitsHostAnnouncement(t *testing.T) {
	e := newTestEnv(t)
	e.seedSession(t, "s1", types.SessionStateResuming)

	outcome := e.h.InstanceStateChanged(context.Background(), instanceStateDelivery(e, "i-s1", cloud.InstanceRunning))
	require.Equal(t, events.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, types.SessionStateResuming, e.session(t, "s1").State)
	assert.Empty(t, e.pub.byType(events.EventHostRebootComplete))
}

func TestInstanceStateForUntrackedInstanceIsConsumed(t *testing.T) {
	e := newTestEnv(t)

	outcome := e.h.InstanceStateChanged(context.Background(), instanceStateDelivery(e, "i-unknown", cloud.InstanceStopped))
	assert.Equal(t, events.OutcomeSuccess, outcome.Kind)
}

func TestInstanceStateRejectsUntrustedSender(t *testing.T) {
	e := newTestEnv(t)
	e.seedSession(t, "s1", types.SessionStateStopping)

	d := delivery(events.EventInstanceStateChanged, "evil-sender", map[string]any{
		"instance_id": "i-s1",
		"state":       string(cloud.InstanceStopped),
	})
	outcome := e.h.InstanceStateChanged(context.Background(), d)
	assert.Equal(t, events.OutcomeFatal, outcome.Kind)
	assert.Equal(t, types.SessionStateStopping, e.session(t, "s1").State)
}
