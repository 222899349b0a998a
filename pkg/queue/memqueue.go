package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemQueue is an in-process FIFO queue used for single-node deployments
// and tests. It honors the full Queue contract: per-group ordering, one
// in-flight message per group, and visibility-timeout redelivery.
type MemQueue struct {
	mu         sync.Mutex
	pending    map[string][]*memMessage // per-group FIFO
	groupOrder []string                 // groups in arrival order of their oldest message
	inflight   map[string]*inflightMsg  // receipt handle -> delivery
	visibility time.Duration
	notify     chan struct{}
}

type memMessage struct {
	id           string
	body         []byte
	md5          string
	groupID      string
	senderID     string
	receiveCount int
}

type inflightMsg struct {
	msg      *memMessage
	deadline time.Time
}

// NewMemQueue creates an empty queue. Messages received but not deleted
// within the visibility timeout return to the head of their group.
func NewMemQueue(visibility time.Duration) *MemQueue {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &MemQueue{
		pending:    make(map[string][]*memMessage),
		inflight:   make(map[string]*inflightMsg),
		visibility: visibility,
		notify:     make(chan struct{}),
	}
}

// Send enqueues a message on the given ordering group.
func (q *MemQueue) Send(ctx context.Context, body []byte, groupID, senderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)

	msg := &memMessage{
		id:       uuid.New().String(),
		body:     bodyCopy,
		md5:      Checksum(bodyCopy),
		groupID:  groupID,
		senderID: senderID,
	}

	q.mu.Lock()
	q.enqueueLocked(msg, false)
	q.wakeLocked()
	q.mu.Unlock()
	return nil
}

// Receive returns up to max messages, long-polling up to wait. At most
// one message per group is returned, and a group with an in-flight
// message is skipped entirely.
func (q *MemQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]*Message, error) {
	if max < 1 {
		max = 1
	}
	deadline := time.Now().Add(wait)

	for {
		q.mu.Lock()
		q.reapExpiredLocked()
		batch := q.collectLocked(max)
		notify := q.notify
		q.mu.Unlock()

		if len(batch) > 0 {
			return batch, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		// Wake early on new messages, and periodically to reap
		// expired visibility timeouts.
		poll := 100 * time.Millisecond
		if remaining < poll {
			poll = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notify:
		case <-time.After(poll):
		}
	}
}

// Delete removes a delivered message by receipt handle. Unknown handles
// (already expired and redelivered) are ignored.
func (q *MemQueue) Delete(ctx context.Context, receiptHandle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	delete(q.inflight, receiptHandle)
	q.wakeLocked()
	q.mu.Unlock()
	return nil
}

// Depth returns the number of queued messages, in-flight deliveries
// included, so pool scaling sees the work being processed as well as
// the work waiting.
func (q *MemQueue) Depth(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reapExpiredLocked()
	n := len(q.inflight)
	for _, msgs := range q.pending {
		n += len(msgs)
	}
	return n, nil
}

// enqueueLocked appends (or, for redeliveries, prepends) a message to
// its group's FIFO.
func (q *MemQueue) enqueueLocked(msg *memMessage, front bool) {
	if _, ok := q.pending[msg.groupID]; !ok {
		q.groupOrder = append(q.groupOrder, msg.groupID)
	}
	if front {
		q.pending[msg.groupID] = append([]*memMessage{msg}, q.pending[msg.groupID]...)
	} else {
		q.pending[msg.groupID] = append(q.pending[msg.groupID], msg)
	}
}

// collectLocked pops the head of each deliverable group, up to max.
func (q *MemQueue) collectLocked(max int) []*Message {
	blocked := make(map[string]bool)
	for _, in := range q.inflight {
		blocked[in.msg.groupID] = true
	}

	var batch []*Message
	now := time.Now()
	remainingGroups := q.groupOrder[:0]
	for _, groupID := range q.groupOrder {
		msgs := q.pending[groupID]
		if len(msgs) == 0 {
			delete(q.pending, groupID)
			continue
		}
		if len(batch) >= max || blocked[groupID] {
			remainingGroups = append(remainingGroups, groupID)
			continue
		}

		msg := msgs[0]
		rest := msgs[1:]
		if len(rest) == 0 {
			delete(q.pending, groupID)
		} else {
			q.pending[groupID] = rest
			remainingGroups = append(remainingGroups, groupID)
		}

		msg.receiveCount++
		receipt := uuid.New().String()
		q.inflight[receipt] = &inflightMsg{msg: msg, deadline: now.Add(q.visibility)}
		blocked[groupID] = true

		batch = append(batch, &Message{
			MessageID:     msg.id,
			ReceiptHandle: receipt,
			Body:          msg.body,
			BodyMD5:       msg.md5,
			GroupID:       msg.groupID,
			SenderID:      msg.senderID,
			ReceiveCount:  msg.receiveCount,
		})
	}
	q.groupOrder = remainingGroups
	return batch
}

// reapExpiredLocked returns timed-out in-flight messages to the head of
// their groups so ordering holds across redelivery.
func (q *MemQueue) reapExpiredLocked() {
	now := time.Now()
	for receipt, in := range q.inflight {
		if now.After(in.deadline) {
			delete(q.inflight, receipt)
			q.enqueueLocked(in.msg, true)
		}
	}
}

func (q *MemQueue) wakeLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}
