package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveDelete(t *testing.T) {
	q := NewMemQueue(time.Minute)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, []byte(`{"a":1}`), "g1", "sender"))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	msgs, err := q.Receive(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte(`{"a":1}`), msgs[0].Body)
	assert.Equal(t, "g1", msgs[0].GroupID)
	assert.Equal(t, "sender", msgs[0].SenderID)
	assert.Equal(t, 1, msgs[0].ReceiveCount)
	assert.True(t, msgs[0].ValidChecksum())

	// In-flight messages still count toward depth until deleted
	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	require.NoError(t, q.Delete(ctx, msgs[0].ReceiptHandle))

	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestDepthIncludesPendingAndInFlight(t *testing.T) {
	q := NewMemQueue(time.Minute)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, []byte("a"), "g1", "s"))
	require.NoError(t, q.Send(ctx, []byte("b"), "g1", "s"))
	require.NoError(t, q.Send(ctx, []byte("c"), "g2", "s"))

	msgs, err := q.Receive(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	// Two in flight, one pending behind its group.
	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
}

func TestFIFOWithinGroup(t *testing.T) {
	q := NewMemQueue(time.Minute)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, []byte("first"), "g1", "s"))
	require.NoError(t, q.Send(ctx, []byte("second"), "g1", "s"))
	require.NoError(t, q.Send(ctx, []byte("third"), "g1", "s"))

	var received []string
	for i := 0; i < 3; i++ {
		msgs, err := q.Receive(ctx, 10, time.Second)
		require.NoError(t, err)
		require.Len(t, msgs, 1, "one in-flight message per group at a time")
		received = append(received, string(msgs[0].Body))
		require.NoError(t, q.Delete(ctx, msgs[0].ReceiptHandle))
	}
	assert.Equal(t, []string{"first", "second", "third"}, received)
}

func TestGroupBlockedWhileInFlight(t *testing.T) {
	q := NewMemQueue(time.Minute)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, []byte("g1-a"), "g1", "s"))
	require.NoError(t, q.Send(ctx, []byte("g1-b"), "g1", "s"))
	require.NoError(t, q.Send(ctx, []byte("g2-a"), "g2", "s"))

	msgs, err := q.Receive(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	bodies := map[string]bool{}
	for _, m := range msgs {
		bodies[string(m.Body)] = true
	}
	assert.True(t, bodies["g1-a"])
	assert.True(t, bodies["g2-a"])
	assert.False(t, bodies["g1-b"], "second g1 message must wait for the first")

	// g1-b stays hidden until g1-a is deleted
	more, err := q.Receive(ctx, 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, more)

	for _, m := range msgs {
		if string(m.Body) == "g1-a" {
			require.NoError(t, q.Delete(ctx, m.ReceiptHandle))
		}
	}

	more, err = q.Receive(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, more, 1)
	assert.Equal(t, "g1-b", string(more[0].Body))
}

func TestVisibilityTimeoutRedelivery(t *testing.T) {
	q := NewMemQueue(50 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, []byte("retry-me"), "g1", "s"))

	msgs, err := q.Receive(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].ReceiveCount)

	// Not deleted: after the visibility timeout the message comes back.
	msgs, err = q.Receive(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "retry-me", string(msgs[0].Body))
	assert.Equal(t, 2, msgs[0].ReceiveCount)

	require.NoError(t, q.Delete(ctx, msgs[0].ReceiptHandle))
}

func TestRedeliveryPreservesOrder(t *testing.T) {
	q := NewMemQueue(50 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, []byte("a"), "g1", "s"))
	require.NoError(t, q.Send(ctx, []byte("b"), "g1", "s"))

	msgs, err := q.Receive(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", string(msgs[0].Body))

	// Let it expire; "a" must be redelivered before "b".
	msgs, err = q.Receive(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", string(msgs[0].Body))
}

func TestDeleteExpiredReceiptIsNoop(t *testing.T) {
	q := NewMemQueue(30 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, []byte("x"), "g1", "s"))
	msgs, err := q.Receive(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	stale := msgs[0].ReceiptHandle

	// Expire and redeliver
	msgs, err = q.Receive(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	// Deleting with the stale receipt must not remove the redelivered copy
	require.NoError(t, q.Delete(ctx, stale))
	require.NoError(t, q.Delete(ctx, msgs[0].ReceiptHandle))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestReceiveWaitExpires(t *testing.T) {
	q := NewMemQueue(time.Minute)
	ctx := context.Background()

	start := time.Now()
	msgs, err := q.Receive(ctx, 10, 80*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestReceiveWakesOnSend(t *testing.T) {
	q := NewMemQueue(time.Minute)
	ctx := context.Background()

	go func() {
		time.Sleep(30 * time.Millisecond)
		q.Send(ctx, []byte("late"), "g1", "s")
	}()

	msgs, err := q.Receive(ctx, 10, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "late", string(msgs[0].Body))
}

func TestChecksum(t *testing.T) {
	body := []byte(`{"event_type":"SCHEDULED_EVENT"}`)
	assert.Equal(t, Checksum(body), Checksum(body))
	assert.NotEqual(t, Checksum(body), Checksum([]byte("tampered")))

	msg := &Message{Body: []byte("payload"), BodyMD5: Checksum([]byte("payload"))}
	assert.True(t, msg.ValidChecksum())
	msg.Body = []byte("tampered")
	assert.False(t, msg.ValidChecksum())
}
