package chatlink

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Wire Types
// ============================================================================

// Frame is the inbound wire envelope: one JSON message unit off the socket.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message is one chat message within a thread.
type Message struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp string          `json:"timestamp"`
}

// ThreadState is the per-thread message log. Messages are kept in arrival
// order of accepted writes, newest last; IDs are unique within a thread.
type ThreadState struct {
	ThreadID     string    `json:"threadId"`
	Messages     []Message `json:"messages"`
	LastActivity time.Time `json:"lastActivity"`
	IsActive     bool      `json:"isActive"`
}

// clone returns a deep copy safe to hand out of the client.
func (t *ThreadState) clone() ThreadState {
	out := *t
	out.Messages = make([]Message, len(t.Messages))
	copy(out.Messages, t.Messages)
	return out
}

// ThreadStatePatch is the shallow merge applied by Client.UpdateThreadState.
// Nil fields are left untouched; a non-nil Messages replaces the whole log.
type ThreadStatePatch struct {
	Messages     []Message
	LastActivity *time.Time
	IsActive     *bool
}

type threadSwitchPayload struct {
	ThreadID string    `json:"threadId"`
	Messages []Message `json:"messages"`
}

type messagePayload struct {
	ThreadID  string          `json:"threadId"`
	MessageID string          `json:"messageId"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp string          `json:"timestamp"`
}

// ============================================================================
// Thread Store
// ============================================================================

// threadStore holds every ThreadState the client has seen. Threads are
// created lazily and never destroyed here; cleanup belongs to the caller.
//
// Like outboundQueue, the store is serialized by the connection manager's
// mutex rather than its own.
type threadStore struct {
	threads map[string]*ThreadState
}

func newThreadStore() *threadStore {
	return &threadStore{threads: make(map[string]*ThreadState)}
}

func (s *threadStore) get(threadID string) *ThreadState {
	return s.threads[threadID]
}

// ensure returns the thread for threadID, creating an empty active one if it
// does not exist yet.
func (s *threadStore) ensure(threadID string) *ThreadState {
	if t, ok := s.threads[threadID]; ok {
		return t
	}
	t := &ThreadState{ThreadID: threadID}
	s.threads[threadID] = t
	s.activate(threadID)
	return t
}

// activate marks threadID active and deactivates every other thread. At most
// one thread is active at any time.
func (s *threadStore) activate(threadID string) {
	for id, t := range s.threads {
		t.IsActive = id == threadID
	}
}

// upsertMessage applies one accepted message write to a thread: a message
// whose ID is already present is replaced in place, keeping the position of
// its first arrival; a new ID is appended. LastActivity is bumped either way.
func (s *threadStore) upsertMessage(threadID string, msg Message, now time.Time) {
	t := s.ensure(threadID)
	t.LastActivity = now
	for i := range t.Messages {
		if t.Messages[i].ID == msg.ID {
			t.Messages[i] = msg
			return
		}
	}
	t.Messages = append(t.Messages, msg)
}

func (s *threadStore) snapshot() map[string]ThreadState {
	out := make(map[string]ThreadState, len(s.threads))
	for id, t := range s.threads {
		out[id] = t.clone()
	}
	return out
}

// ============================================================================
// Inbound Reducer
// ============================================================================

// frameEffect describes what a reduced frame did, so the connection manager
// can notify handlers after releasing its lock.
type frameEffect struct {
	kind     string // "message" or "thread_switch"
	threadID string
	message  Message
}

// reduceFrame applies one inbound frame to the thread set. Malformed JSON
// and unrecognized frame types are ignored no-ops: the second return is
// false and no state changes.
func (s *threadStore) reduceFrame(data []byte, now time.Time) (frameEffect, bool) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return frameEffect{}, false
	}

	switch frame.Type {
	case "thread_switch":
		var p threadSwitchPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.ThreadID == "" {
			return frameEffect{}, false
		}
		msgs := make([]Message, len(p.Messages))
		copy(msgs, p.Messages)
		s.threads[p.ThreadID] = &ThreadState{
			ThreadID:     p.ThreadID,
			Messages:     msgs,
			LastActivity: now,
		}
		s.activate(p.ThreadID)
		return frameEffect{kind: "thread_switch", threadID: p.ThreadID}, true

	case "message":
		var p messagePayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.ThreadID == "" || p.MessageID == "" {
			return frameEffect{}, false
		}
		msg := Message{
			ID:        p.MessageID,
			Role:      p.Role,
			Content:   p.Content,
			Timestamp: p.Timestamp,
		}
		s.upsertMessage(p.ThreadID, msg, now)
		return frameEffect{kind: "message", threadID: p.ThreadID, message: msg}, true
	}

	// Unknown frame types are a forward-compatible no-op.
	return frameEffect{}, false
}
