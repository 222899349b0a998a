package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	event := &Event{
		GroupID: "s1",
		Type:    EventHostReady,
		Detail: map[string]any{
			"instance_id": "i-123",
			"forced":      true,
		},
	}

	body, err := event.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(body)
	require.NoError(t, err)
	assert.Equal(t, "s1", decoded.GroupID)
	assert.Equal(t, EventHostReady, decoded.Type)
	assert.Equal(t, "i-123", decoded.DetailString("instance_id"))
	assert.True(t, decoded.DetailBool("forced"))
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := Unmarshal([]byte("not json"))
	assert.Error(t, err)
}

func TestDetailAccessorsTolerateMissingKeys(t *testing.T) {
	event := &Event{Type: EventScheduled}
	assert.Equal(t, "", event.DetailString("missing"))
	assert.False(t, event.DetailBool("missing"))
	assert.Equal(t, 0.0, event.DetailFloat("missing"))
	assert.Nil(t, event.DetailMap("missing"))
}

func TestDispatcherRoutesByType(t *testing.T) {
	d := NewDispatcher()
	var handled EventType
	d.Register(EventHostReady, HandlerFunc(func(ctx context.Context, del Delivery) Outcome {
		handled = del.Event.Type
		return Success()
	}))

	outcome := d.Dispatch(context.Background(), Delivery{Event: &Event{Type: EventHostReady}})
	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, EventHostReady, handled)
}

func TestDispatcherUnknownTypeIsFatal(t *testing.T) {
	d := NewDispatcher()

	outcome := d.Dispatch(context.Background(), Delivery{Event: &Event{Type: "BOGUS_EVENT"}})
	assert.Equal(t, OutcomeFatal, outcome.Kind)

	outcome = d.Dispatch(context.Background(), Delivery{Event: &Event{}})
	assert.Equal(t, OutcomeFatal, outcome.Kind)

	outcome = d.Dispatch(context.Background(), Delivery{})
	assert.Equal(t, OutcomeFatal, outcome.Kind)
}

func TestOutcomeConstructors(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Success().Kind)

	retry := Retryf("broker session %s not ready", "b1")
	assert.Equal(t, OutcomeRetry, retry.Kind)
	assert.Equal(t, "broker session b1 not ready", retry.Reason)

	fatal := Fatalf("sender %q not trusted", "evil")
	assert.Equal(t, OutcomeFatal, fatal.Kind)
	assert.Contains(t, fatal.Reason, "evil")

	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "retry", OutcomeRetry.String())
	assert.Equal(t, "fatal", OutcomeFatal.String())
}

type captureSender struct {
	bodies   [][]byte
	groupIDs []string
	senders  []string
}

func (c *captureSender) Send(ctx context.Context, body []byte, groupID, senderID string) error {
	c.bodies = append(c.bodies, body)
	c.groupIDs = append(c.groupIDs, groupID)
	c.senders = append(c.senders, senderID)
	return nil
}

func TestQueuePublisherStampsSenderAndGroup(t *testing.T) {
	sender := &captureSender{}
	pub := NewQueuePublisher(sender, "controller-id")

	err := pub.Publish(context.Background(), &Event{
		GroupID: "has spaces here",
		Type:    EventScheduled,
	})
	require.NoError(t, err)
	require.Len(t, sender.bodies, 1)
	assert.Equal(t, "has_spaces_here", sender.groupIDs[0])
	assert.Equal(t, "controller-id", sender.senders[0])

	decoded, err := Unmarshal(sender.bodies[0])
	require.NoError(t, err)
	assert.Equal(t, EventScheduled, decoded.Type)
}

func TestBuildersCarrySessionGroup(t *testing.T) {
	tests := []struct {
		name  string
		event *Event
		typ   EventType
	}{
		{"validate creation", NewValidateSessionCreation("s1", "alice"), EventValidateSessionCreation},
		{"validate deletion", NewValidateSessionDeletion("s1", "alice"), EventValidateSessionDeletion},
		{"scheduled resume", NewScheduledResume("s1", "alice"), EventSessionScheduledResume},
		{"scheduled stop", NewScheduledStop("s1", "alice"), EventSessionScheduledStop},
		{"terminate", NewSessionTerminate("s1", "alice"), EventSessionTerminate},
		{"enforce", NewPermissionsEnforce("s1", "alice"), EventSessionPermissionsEnforce},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, "s1", tt.event.GroupID)
			assert.Equal(t, tt.typ, tt.event.Type)
			assert.Equal(t, "s1", tt.event.DetailString("session_id"))
			assert.Equal(t, "alice", tt.event.DetailString("owner"))
		})
	}
}
