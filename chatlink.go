// Package chatlink maintains a single logical chat connection over a
// WebSocket that may physically reconnect many times.
//
// The client owns a four-state connection machine (disconnected, connecting,
// connected, reconnecting) with exponential-backoff retries, an outbound
// queue that is flushed in order on every successful (re)connection, and a
// per-thread message log that deduplicates inbound frames so a reconnect can
// never duplicate or reorder what the UI shows.
//
// Example:
//
//	client := chatlink.NewClient("https://chat.example.com",
//		chatlink.WithToken(token),
//		chatlink.WithMaxReconnectAttempts(5),
//	)
//	client.OnMessage(func(threadID string, msg chatlink.Message) { render(msg) })
//	client.Connect()
//	defer client.Close()
//
//	client.Send(map[string]string{"type": "message", "content": "hello"})
//
// All failure is expressed as state: transient drops show up as the
// reconnecting status, exhausted retries as disconnected, and none of the
// facade methods return transport errors.
package chatlink

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	DefaultBaseInterval         = 1 * time.Second
	DefaultMaxInterval          = 30 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultDialTimeout          = 15 * time.Second
)

// Options configures a Client.
type Options struct {
	// BaseURL is the http(s) origin of the chat service. The websocket
	// endpoint and the history REST endpoint are derived from it.
	BaseURL string

	// Token is the opaque bearer token supplied at socket construction.
	// The client never interprets or refreshes it.
	Token string

	BaseInterval         time.Duration
	MaxInterval          time.Duration
	MaxReconnectAttempts int
	DialTimeout          time.Duration

	// Dialer creates the physical socket. Defaults to the websocket dialer;
	// tests inject fakes here.
	Dialer Dialer

	// HTTPClient is used for history backfill requests.
	HTTPClient *http.Client
}

func (o *Options) defaults() {
	if o.BaseInterval == 0 {
		o.BaseInterval = DefaultBaseInterval
	}
	if o.MaxInterval == 0 {
		o.MaxInterval = DefaultMaxInterval
	}
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.Dialer == nil {
		o.Dialer = dialWebsocket
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
}

// Option customizes client construction.
type Option func(*Options)

func WithToken(token string) Option {
	return func(o *Options) { o.Token = token }
}

func WithBackoff(base, max time.Duration) Option {
	return func(o *Options) { o.BaseInterval, o.MaxInterval = base, max }
}

func WithMaxReconnectAttempts(n int) Option {
	return func(o *Options) { o.MaxReconnectAttempts = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *Options) { o.DialTimeout = d }
}

func WithDialer(d Dialer) Option {
	return func(o *Options) { o.Dialer = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *Options) { o.HTTPClient = hc }
}

// Client is the public surface exposed to the UI layer. All methods are safe
// for concurrent use and none of them block on the network except
// FetchThreadHistory.
type Client struct {
	opts *Options
	disp *dispatcher
	cm   *connManager
}

// NewClient creates a client for the chat service at baseURL. The connection
// is not established until Connect is called.
func NewClient(baseURL string, opts ...Option) *Client {
	o := &Options{BaseURL: baseURL}
	for _, opt := range opts {
		opt(o)
	}
	o.defaults()

	disp := newDispatcher()
	return &Client{
		opts: o,
		disp: disp,
		cm:   newConnManager(o, disp),
	}
}

// Connect starts the connection machine. It returns immediately; progress is
// observable through OnStateChange and Snapshot. Calling Connect while
// already connecting or connected is a no-op.
func (c *Client) Connect() {
	c.cm.connect()
}

// Close tears the client down: cancels any pending reconnect, closes the
// socket with the normal close code, and drains the dispatch queue. The
// client cannot be reused afterwards.
func (c *Client) Close() {
	c.cm.close()
	c.disp.stop()
}

// Send delivers payload over the live socket, or queues it for the next
// successful connection when the socket is down. The only error it can
// return is a non-serializable payload; transport failures surface
// asynchronously as state changes, never here.
func (c *Client) Send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	c.cm.send(data)
	return nil
}

// Reconnect forces a fresh connection from any state, cancelling a pending
// retry and resetting the attempt counter. It is the manual override for
// observed staleness and the only way out of the disconnected state once
// retries are exhausted.
func (c *Client) Reconnect() {
	c.cm.reconnect()
}

// ClearMessageQueue drops every queued outbound message without sending.
func (c *Client) ClearMessageQueue() {
	c.cm.clearQueue()
}

// GetThreadState returns a copy of the thread's state, or false when the
// thread has never been seen.
func (c *Client) GetThreadState(threadID string) (ThreadState, bool) {
	return c.cm.getThread(threadID)
}

// UpdateThreadState shallow-merges patch into the thread's state.
func (c *Client) UpdateThreadState(threadID string, patch ThreadStatePatch) {
	c.cm.updateThread(threadID, patch)
}

// Snapshot returns a read-only view of the connection and thread state.
func (c *Client) Snapshot() Snapshot {
	return c.cm.snapshot()
}

// OnStateChange registers a handler for connection state transitions.
func (c *Client) OnStateChange(h func(ConnState)) {
	c.disp.addStateChange(h)
}

// OnMessage registers a handler for accepted inbound message frames.
func (c *Client) OnMessage(h func(threadID string, msg Message)) {
	c.disp.addMessage(h)
}

// OnThreadSwitch registers a handler for thread_switch frames.
func (c *Client) OnThreadSwitch(h func(threadID string)) {
	c.disp.addThreadSwitch(h)
}

// OnReconnecting registers a handler fired when a retry is scheduled.
func (c *Client) OnReconnecting(h func(attempt int, delay time.Duration)) {
	c.disp.addReconnecting(h)
}
