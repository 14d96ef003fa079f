package chatlink

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"
)

// QueuedMessage is one outbound payload waiting for a live socket.
type QueuedMessage struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// outboundQueue buffers payloads that could not be sent immediately. It has
// no upper bound; callers that care can watch Snapshot().MessageQueue and
// call ClearMessageQueue.
//
// The queue is not goroutine-safe: every access goes through the owning
// connection manager, which serializes all events under its mutex.
type outboundQueue struct {
	items []QueuedMessage
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{}
}

// enqueue appends payload to the tail with a fresh ID.
func (q *outboundQueue) enqueue(payload json.RawMessage) QueuedMessage {
	msg := QueuedMessage{
		ID:         generateUUID(),
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
	q.items = append(q.items, msg)
	return msg
}

// flush sends every queued message head-to-tail and clears the queue.
// Messages enqueued while the flush is in progress (by a re-entrant sendFn)
// are kept for the next flush, never interleaved into this one.
//
// On a send error the failed message and everything behind it are put back
// at the head of the queue, ahead of any mid-flush enqueues, and the error
// is returned for the caller to fold into its close handling.
func (q *outboundQueue) flush(sendFn func(QueuedMessage) error) error {
	pending := q.items
	q.items = nil

	for i, msg := range pending {
		if err := sendFn(msg); err != nil {
			q.items = append(pending[i:], q.items...)
			return fmt.Errorf("flush %s: %w", msg.ID, err)
		}
	}
	return nil
}

// clear drops all queued messages without sending them.
func (q *outboundQueue) clear() {
	q.items = nil
}

func (q *outboundQueue) len() int {
	return len(q.items)
}

// snapshot returns a copy of the queue contents in order.
func (q *outboundQueue) snapshot() []QueuedMessage {
	out := make([]QueuedMessage, len(q.items))
	copy(out, q.items)
	return out
}

// generateUUID returns a random v4 UUID.
func generateUUID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().UnixMilli())
	}
	b[6] = (b[6] & 0x0f) | 0x40 // Version 4
	b[8] = (b[8] & 0x3f) | 0x80 // Variant 10
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
