package chatlink

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSendErrors(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, d)

	t.Run("non-serializable payload", func(t *testing.T) {
		if err := c.Send(make(chan int)); err == nil {
			t.Error("expected a marshal error")
		}
		if got := len(c.Snapshot().MessageQueue); got != 0 {
			t.Errorf("rejected payload must not be queued, len=%d", got)
		}
	})

	t.Run("transport down is not an error", func(t *testing.T) {
		if err := c.Send("queued while down"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if got := len(c.Snapshot().MessageQueue); got != 1 {
			t.Errorf("payload should be queued, len=%d", got)
		}
	})
}

func TestClearMessageQueue(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, d)

	c.Send("one")
	c.Send("two")
	c.ClearMessageQueue()
	if got := len(c.Snapshot().MessageQueue); got != 0 {
		t.Errorf("queue not cleared, len=%d", got)
	}

	c.Connect()
	waitState(t, c, StateConnected)
	if got := d.sock(1).sentPayloads(); len(got) != 0 {
		t.Errorf("cleared messages were flushed: %v", got)
	}
}

func TestUpdateThreadState(t *testing.T) {
	boolPtr := func(b bool) *bool { return &b }

	t.Run("creates a missing thread inactive", func(t *testing.T) {
		c := newTestClient(t, &fakeDialer{})
		c.UpdateThreadState("t1", ThreadStatePatch{})
		th, ok := c.GetThreadState("t1")
		if !ok {
			t.Fatal("thread not created")
		}
		if th.IsActive {
			t.Error("patched-in thread must not steal the active slot")
		}
	})

	t.Run("activating deactivates the rest", func(t *testing.T) {
		c := newTestClient(t, &fakeDialer{})
		c.UpdateThreadState("t1", ThreadStatePatch{IsActive: boolPtr(true)})
		c.UpdateThreadState("t2", ThreadStatePatch{IsActive: boolPtr(true)})

		if th, _ := c.GetThreadState("t1"); th.IsActive {
			t.Error("t1 should be deactivated")
		}
		if th, _ := c.GetThreadState("t2"); !th.IsActive {
			t.Error("t2 should be active")
		}
	})

	t.Run("deactivating touches only the target", func(t *testing.T) {
		c := newTestClient(t, &fakeDialer{})
		c.UpdateThreadState("t1", ThreadStatePatch{IsActive: boolPtr(true)})
		c.UpdateThreadState("t2", ThreadStatePatch{})
		c.UpdateThreadState("t2", ThreadStatePatch{IsActive: boolPtr(false)})

		if th, _ := c.GetThreadState("t1"); !th.IsActive {
			t.Error("t1 should stay active")
		}
	})

	t.Run("merges only the provided fields", func(t *testing.T) {
		c := newTestClient(t, &fakeDialer{})
		at := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
		c.UpdateThreadState("t1", ThreadStatePatch{
			Messages:     []Message{{ID: "m1", Role: "user", Content: json.RawMessage(`"hi"`)}},
			LastActivity: &at,
			IsActive:     boolPtr(true),
		})

		c.UpdateThreadState("t1", ThreadStatePatch{
			Messages: []Message{
				{ID: "m1", Role: "user", Content: json.RawMessage(`"hi"`)},
				{ID: "m2", Role: "assistant", Content: json.RawMessage(`"hello"`)},
			},
		})

		th, _ := c.GetThreadState("t1")
		if len(th.Messages) != 2 {
			t.Errorf("messages not replaced, len=%d", len(th.Messages))
		}
		if !th.LastActivity.Equal(at) {
			t.Errorf("lastActivity changed: %s", th.LastActivity)
		}
		if !th.IsActive {
			t.Error("isActive changed")
		}
	})
}

func TestGetThreadState(t *testing.T) {
	c := newTestClient(t, &fakeDialer{})

	t.Run("unknown thread", func(t *testing.T) {
		if _, ok := c.GetThreadState("nope"); ok {
			t.Error("expected ok=false for an unseen thread")
		}
	})

	t.Run("returns a copy", func(t *testing.T) {
		c.UpdateThreadState("t1", ThreadStatePatch{
			Messages: []Message{{ID: "m1", Role: "user", Content: json.RawMessage(`"hi"`)}},
		})
		th, _ := c.GetThreadState("t1")
		th.Messages[0].ID = "mutated"
		th.Messages = append(th.Messages, Message{ID: "extra"})

		again, _ := c.GetThreadState("t1")
		if len(again.Messages) != 1 || again.Messages[0].ID != "m1" {
			t.Errorf("internal state leaked through the copy: %+v", again.Messages)
		}
	})
}

func TestSnapshot(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(t, d)

	snap := c.Snapshot()
	if snap.Status != StateDisconnected || snap.ReconnectAttempts != 0 {
		t.Errorf("fresh client snapshot: %+v", snap)
	}
	if !snap.LastConnectionTime.IsZero() {
		t.Error("lastConnectionTime set before any connection")
	}

	c.Send("pending")
	c.UpdateThreadState("t1", ThreadStatePatch{})

	snap = c.Snapshot()
	if len(snap.MessageQueue) != 1 {
		t.Errorf("queue missing from snapshot: %+v", snap.MessageQueue)
	}
	if _, ok := snap.Threads["t1"]; !ok {
		t.Errorf("thread missing from snapshot: %v", snap.Threads)
	}

	c.Connect()
	waitState(t, c, StateConnected)
	if got := c.Snapshot().LastConnectionTime; got.IsZero() {
		t.Error("lastConnectionTime not recorded on connect")
	}
}
