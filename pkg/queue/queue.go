package queue

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Message is one received queue message. ReceiptHandle identifies this
// particular delivery; it is what Delete consumes. BodyMD5 is the hex
// MD5 of the body computed by the queue at send time, so consumers can
// detect corruption in transit.
type Message struct {
	MessageID     string
	ReceiptHandle string
	Body          []byte
	BodyMD5       string
	GroupID       string
	SenderID      string
	ReceiveCount  int
}

// ValidChecksum reports whether the body matches the queue-computed MD5.
func (m *Message) ValidChecksum() bool {
	return Checksum(m.Body) == m.BodyMD5
}

// Checksum returns the hex MD5 of a message body.
func Checksum(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

// Queue is a FIFO message queue with per-group ordering. Within one
// group id, messages are delivered in send order and at most one message
// is in flight at a time; separate groups move independently. Delivery
// is at-least-once: a received message that is not deleted before its
// visibility timeout lapses is delivered again.
type Queue interface {
	// Send enqueues a message on the given ordering group.
	Send(ctx context.Context, body []byte, groupID, senderID string) error

	// Receive returns up to max messages, long-polling up to wait. It
	// returns early as soon as at least one message is available, and
	// returns an empty batch (no error) when the wait lapses.
	Receive(ctx context.Context, max int, wait time.Duration) ([]*Message, error)

	// Delete removes a delivered message by receipt handle. Deleting an
	// expired receipt is not an error; the redelivered copy owns the
	// message now.
	Delete(ctx context.Context, receiptHandle string) error

	// Depth returns the approximate number of visible messages.
	Depth(ctx context.Context) (int, error)
}
