package chatlink

import (
	"sync"
	"time"
)

// dispatcher fans client events out to registered handlers.
//
// Emissions are queued in transition order (the connection manager enqueues
// them while it still holds its mutex) and delivered one at a time on a
// single dispatch goroutine, so handlers observe the same sequence the state
// machine produced and are free to call back into the client.
type dispatcher struct {
	mu             sync.RWMutex
	onStateChange  []func(ConnState)
	onMessage      []func(threadID string, msg Message)
	onThreadSwitch []func(threadID string)
	onReconnecting []func(attempt int, delay time.Duration)

	emitMu   sync.Mutex
	emitCond *sync.Cond
	pending  []func()
	stopped  bool
}

func newDispatcher() *dispatcher {
	d := &dispatcher{}
	d.emitCond = sync.NewCond(&d.emitMu)
	go d.run()
	return d
}

// stop lets the dispatch goroutine drain pending emissions and exit.
func (d *dispatcher) stop() {
	d.emitMu.Lock()
	d.stopped = true
	d.emitCond.Signal()
	d.emitMu.Unlock()
}

// enqueue appends one emission. It never blocks, so it is safe to call while
// holding the connection manager's mutex.
func (d *dispatcher) enqueue(fn func()) {
	d.emitMu.Lock()
	if d.stopped {
		d.emitMu.Unlock()
		return
	}
	d.pending = append(d.pending, fn)
	d.emitCond.Signal()
	d.emitMu.Unlock()
}

func (d *dispatcher) run() {
	for {
		d.emitMu.Lock()
		for len(d.pending) == 0 && !d.stopped {
			d.emitCond.Wait()
		}
		if len(d.pending) == 0 {
			d.emitMu.Unlock()
			return
		}
		fn := d.pending[0]
		d.pending = d.pending[1:]
		d.emitMu.Unlock()
		fn()
	}
}

func (d *dispatcher) addStateChange(h func(ConnState)) {
	d.mu.Lock()
	d.onStateChange = append(d.onStateChange, h)
	d.mu.Unlock()
}

func (d *dispatcher) addMessage(h func(string, Message)) {
	d.mu.Lock()
	d.onMessage = append(d.onMessage, h)
	d.mu.Unlock()
}

func (d *dispatcher) addThreadSwitch(h func(string)) {
	d.mu.Lock()
	d.onThreadSwitch = append(d.onThreadSwitch, h)
	d.mu.Unlock()
}

func (d *dispatcher) addReconnecting(h func(int, time.Duration)) {
	d.mu.Lock()
	d.onReconnecting = append(d.onReconnecting, h)
	d.mu.Unlock()
}

func (d *dispatcher) emitStateChange(state ConnState) {
	d.mu.RLock()
	handlers := append([]func(ConnState){}, d.onStateChange...)
	d.mu.RUnlock()
	d.enqueue(func() {
		for _, h := range handlers {
			safeCall(func() { h(state) })
		}
	})
}

func (d *dispatcher) emitMessage(threadID string, msg Message) {
	d.mu.RLock()
	handlers := append([]func(string, Message){}, d.onMessage...)
	d.mu.RUnlock()
	d.enqueue(func() {
		for _, h := range handlers {
			safeCall(func() { h(threadID, msg) })
		}
	})
}

func (d *dispatcher) emitThreadSwitch(threadID string) {
	d.mu.RLock()
	handlers := append([]func(string){}, d.onThreadSwitch...)
	d.mu.RUnlock()
	d.enqueue(func() {
		for _, h := range handlers {
			safeCall(func() { h(threadID) })
		}
	})
}

func (d *dispatcher) emitReconnecting(attempt int, delay time.Duration) {
	d.mu.RLock()
	handlers := append([]func(int, time.Duration){}, d.onReconnecting...)
	d.mu.RUnlock()
	d.enqueue(func() {
		for _, h := range handlers {
			safeCall(func() { h(attempt, delay) })
		}
	})
}

func safeCall(fn func()) {
	defer func() { recover() }() // swallow panics in user callbacks
	fn()
}
