package chatlink

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// connManager owns the physical socket and the connection state machine.
//
// Every socket callback, timer fire, and facade call funnels into handler
// methods serialized by mu, so transitions never interleave. Each dial bumps
// a generation counter; events stamped with a superseded generation are
// dropped, which keeps stale sockets and stale timers from re-triggering
// transitions after a reconnect or teardown.
//
// Emissions are enqueued on the dispatcher while mu is still held, so
// handlers observe transitions in the order they happened.
type connManager struct {
	opts *Options
	url  string
	dial Dialer
	disp *dispatcher

	mu              sync.Mutex
	state           ConnState
	attempts        int
	lastConnectedAt time.Time
	sock            Socket
	gen             int
	retry           *time.Timer
	closed          bool

	backoff *backoff
	queue   *outboundQueue
	threads *threadStore
}

func newConnManager(opts *Options, disp *dispatcher) *connManager {
	return &connManager{
		opts:    opts,
		url:     wsURL(opts.BaseURL, opts.Token),
		dial:    opts.Dialer,
		disp:    disp,
		state:   StateDisconnected,
		backoff: newBackoff(opts.BaseInterval, opts.MaxInterval),
		queue:   newOutboundQueue(),
		threads: newThreadStore(),
	}
}

// connect starts the machine. A no-op when already connecting or connected.
func (m *connManager) connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state == StateConnecting || m.state == StateConnected {
		return
	}
	m.beginConnectLocked()
}

// reconnect forces a fresh connection from any state: the pending retry
// timer is cancelled, the attempt counter resets, and any live socket is
// replaced.
func (m *connManager) reconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.attempts = 0
	if m.sock != nil {
		old := m.sock
		m.sock = nil
		go old.Close(CloseNormal, "reconnect")
	}
	m.beginConnectLocked()
}

// beginConnectLocked transitions to connecting and dials on a new goroutine.
// Caller holds mu.
func (m *connManager) beginConnectLocked() {
	m.cancelRetryLocked()
	m.gen++
	m.state = StateConnecting
	m.disp.emitStateChange(StateConnecting)
	go m.dialSocket(m.gen)
}

func (m *connManager) cancelRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func (m *connManager) dialSocket(gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DialTimeout)
	defer cancel()

	events := SocketEvents{
		OnMessage: func(data []byte) { m.handleMessage(gen, data) },
		OnClose:   func(code int, reason string) { m.handleClose(gen, code, reason) },
		// Transport errors never transition state on their own; the close
		// that follows them is the sole trigger for reconnection.
		OnError: func(err error) {},
	}

	sock, err := m.dial(ctx, m.url, events)
	if err != nil {
		// A failed dial produced no socket and therefore no close event;
		// treat it as an abnormal close so it consumes a reconnect attempt.
		m.handleClose(gen, -1, "dial: "+err.Error())
		return
	}
	m.handleOpen(gen, sock)
}

// handleOpen is the open-event transition: connecting → connected. The
// outbound queue is flushed in FIFO order before any new send can observe
// the connected state.
func (m *connManager) handleOpen(gen int, sock Socket) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		sock.Close(CloseNormal, "stale connection")
		return
	}
	m.sock = sock
	m.state = StateConnected
	m.attempts = 0
	m.lastConnectedAt = time.Now()
	m.disp.emitStateChange(StateConnected)

	flushErr := m.queue.flush(func(msg QueuedMessage) error {
		return sock.Send(context.Background(), msg.Payload)
	})
	m.mu.Unlock()

	if flushErr != nil {
		m.handleClose(gen, -1, flushErr.Error())
	}
}

// handleClose is the close-event transition. A normal close code or an
// exhausted attempt budget lands in disconnected; anything else schedules a
// retry after the backoff delay and moves to reconnecting.
func (m *connManager) handleClose(gen int, code int, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen {
		return
	}
	m.gen++ // the socket is dead; drop any further events from it
	m.sock = nil
	m.cancelRetryLocked()

	if code == CloseNormal || m.attempts >= m.opts.MaxReconnectAttempts {
		m.state = StateDisconnected
		m.disp.emitStateChange(StateDisconnected)
		return
	}

	delay := m.backoff.delayFor(m.attempts)
	m.attempts++
	m.state = StateReconnecting
	m.disp.emitStateChange(StateReconnecting)
	m.disp.emitReconnecting(m.attempts, delay)

	timerGen := m.gen
	m.retry = time.AfterFunc(delay, func() { m.handleRetryTimer(timerGen) })
}

// handleRetryTimer is the timer-fire transition: reconnecting → connecting.
func (m *connManager) handleRetryTimer(gen int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen || m.state != StateReconnecting {
		return
	}
	m.beginConnectLocked()
}

// handleMessage feeds one inbound frame through the reducer. Malformed and
// unknown frames change nothing.
func (m *connManager) handleMessage(gen int, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen {
		return
	}
	effect, ok := m.threads.reduceFrame(data, time.Now())
	if !ok {
		return
	}
	switch effect.kind {
	case "message":
		m.disp.emitMessage(effect.threadID, effect.message)
	case "thread_switch":
		m.disp.emitThreadSwitch(effect.threadID)
	}
}

// send delivers payload immediately on a live socket, or queues it for the
// next flush. A send failure re-queues the payload and folds the failure
// into the close path, so no outbound message is ever dropped.
func (m *connManager) send(payload json.RawMessage) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.state == StateConnected && m.sock != nil {
		sock, gen := m.sock, m.gen
		err := sock.Send(context.Background(), payload)
		if err == nil {
			m.mu.Unlock()
			return
		}
		m.queue.enqueue(payload)
		m.mu.Unlock()
		m.handleClose(gen, -1, "send: "+err.Error())
		return
	}
	m.queue.enqueue(payload)
	m.mu.Unlock()
}

func (m *connManager) clearQueue() {
	m.mu.Lock()
	m.queue.clear()
	m.mu.Unlock()
}

func (m *connManager) getThread(threadID string) (ThreadState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.threads.get(threadID)
	if t == nil {
		return ThreadState{}, false
	}
	return t.clone(), true
}

// updateThread shallow-merges patch into the thread, creating an inactive
// empty thread when it does not exist yet.
func (m *connManager) updateThread(threadID string, patch ThreadStatePatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.threads.get(threadID)
	if t == nil {
		t = &ThreadState{ThreadID: threadID}
		m.threads.threads[threadID] = t
	}
	if patch.Messages != nil {
		msgs := make([]Message, len(patch.Messages))
		copy(msgs, patch.Messages)
		t.Messages = msgs
	}
	if patch.LastActivity != nil {
		t.LastActivity = *patch.LastActivity
	}
	if patch.IsActive != nil {
		if *patch.IsActive {
			m.threads.activate(threadID)
		} else {
			t.IsActive = false
		}
	}
}

// applyHistory merges one backfilled message through the same dedup/append
// path live frames take.
func (m *connManager) applyHistory(threadID string, msg Message) {
	m.mu.Lock()
	m.threads.upsertMessage(threadID, msg, time.Now())
	m.mu.Unlock()
}

func (m *connManager) snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Status:             m.state,
		ReconnectAttempts:  m.attempts,
		LastConnectionTime: m.lastConnectedAt,
		MessageQueue:       m.queue.snapshot(),
		Threads:            m.threads.snapshot(),
	}
}

// close tears the client down: the retry timer is cancelled and the socket
// is closed with the normal code so no further reconnect is attempted.
func (m *connManager) close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancelRetryLocked()
	m.gen++
	sock := m.sock
	m.sock = nil
	m.state = StateDisconnected
	m.disp.emitStateChange(StateDisconnected)
	m.mu.Unlock()

	if sock != nil {
		sock.Close(CloseNormal, "client shutdown")
	}
}
