// Package client keeps a single continuous view of a room's event stream
// on top of an unreliable push transport. While the push connection is up
// events arrive through it; when it drops the controller falls back to
// fixed-interval polling and keeps trying to re-establish the push path.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// localIDPrefix namespaces locally generated identifiers so they can never
// collide with server-assigned uuids.
const localIDPrefix = "local:"

const (
	defaultPollInterval   = 3 * time.Second
	defaultReconnectDelay = 3 * time.Second
	defaultDedupCapacity  = 512
)

// Agent mirrors the participant identity carried on frames.
type Agent struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
}

// Event is the client-side view of one room event, flattened from the
// wire frame. ID is empty for kinds the server does not identify.
type Event struct {
	ID        string
	Type      string
	Agent     Agent
	Agents    []Agent
	Content   string
	Timestamp string
}

// PushConn is one established push connection.
type PushConn interface {
	// ReadEvent blocks until the next event or a transport error.
	ReadEvent() (Event, error)
	Close() error
}

// Sender is implemented by push connections that can carry outbound frames.
type Sender interface {
	SendMessage(content string) error
	SendTyping() error
}

type Dialer interface {
	Dial(ctx context.Context) (PushConn, error)
}

// Fetcher is the pull path. FetchLatest returns recent messages newest
// first, the order the history endpoint serves them in.
type Fetcher interface {
	FetchLatest(ctx context.Context) ([]Event, error)
}

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

type Options struct {
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	DedupCapacity  int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.DedupCapacity <= 0 {
		o.DedupCapacity = defaultDedupCapacity
	}
	return o
}

// Controller is the dual-path subscription state machine. The two
// background activities (poll loop, reconnect timer) are gated by the
// current state: polling runs only while disconnected, and at most one
// reconnect attempt is ever scheduled.
type Controller struct {
	dialer  Dialer
	fetcher Fetcher
	onEvent func(Event)
	opts    Options
	log     *slog.Logger

	mu             sync.Mutex
	state          State
	seen           *seenRecord
	push           PushConn
	pollStop       chan struct{}
	reconnectTimer *time.Timer
	closed         bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewController(dialer Dialer, fetcher Fetcher, onEvent func(Event), opts Options, log *slog.Logger) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		dialer:  dialer,
		fetcher: fetcher,
		onEvent: onEvent,
		opts:    opts,
		log:     log,
		seen:    newSeenRecord(opts.DedupCapacity),
	}
}

// Start seeds local state with one history pull, then tries to establish
// the push path in the background.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.ctx != nil {
		c.mu.Unlock()
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.pollOnce()
	go c.connect()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SendMessage forwards a message over the push connection. It fails while
// the push path is down; callers are expected to retry after reconnect.
func (c *Controller) SendMessage(content string) error {
	c.mu.Lock()
	push := c.push
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || push == nil {
		return fmt.Errorf("push connection is down")
	}
	sender, ok := push.(Sender)
	if !ok {
		return fmt.Errorf("push connection cannot send")
	}
	return sender.SendMessage(content)
}

// Stop tears the controller down: push connection, poll loop, and any
// pending reconnect attempt. Safe to call multiple times.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	push := c.push
	c.push = nil
	c.stopPollingLocked()
	c.cancelReconnectLocked()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if push != nil {
		_ = push.Close()
	}
}

func (c *Controller) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	ctx := c.ctx
	c.mu.Unlock()

	push, err := c.dialer.Dial(ctx)
	if err != nil {
		c.log.Debug("Push dial failed, falling back to polling", "error", err)
		c.handleDisconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = push.Close()
		return
	}
	// Push takes precedence the instant it opens: suspend the pull path
	// and drop any pending reconnect attempt.
	c.push = push
	c.state = StateConnected
	c.stopPollingLocked()
	c.cancelReconnectLocked()
	c.mu.Unlock()

	go c.readLoop(push)
}

func (c *Controller) readLoop(push PushConn) {
	for {
		evt, err := push.ReadEvent()
		if err != nil {
			_ = push.Close()
			c.handleDisconnect()
			return
		}
		c.deliver(evt)
	}
}

// handleDisconnect covers both a failed dial and a dropped connection:
// resume polling immediately and schedule exactly one reconnect attempt.
// The retry loop is unbounded with a fixed delay; it only stops when the
// controller is torn down.
func (c *Controller) handleDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.state = StateDisconnected
	c.push = nil
	c.startPollingLocked()
	c.scheduleReconnectLocked()
}

func (c *Controller) startPollingLocked() {
	if c.pollStop != nil {
		return
	}
	stop := make(chan struct{})
	c.pollStop = stop
	go c.pollLoop(stop)
}

func (c *Controller) stopPollingLocked() {
	if c.pollStop != nil {
		close(c.pollStop)
		c.pollStop = nil
	}
}

func (c *Controller) scheduleReconnectLocked() {
	if c.reconnectTimer != nil {
		return
	}
	c.reconnectTimer = time.AfterFunc(c.opts.ReconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			c.connect()
		}
	})
}

func (c *Controller) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Controller) pollLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.pollOnce()
		}
	}
}

func (c *Controller) pollOnce() {
	c.mu.Lock()
	ctx := c.ctx
	closed := c.closed
	c.mu.Unlock()
	if closed || ctx == nil {
		return
	}

	events, err := c.fetcher.FetchLatest(ctx)
	if err != nil {
		c.log.Debug("Poll failed", "error", err)
		return
	}
	// The fetcher serves newest first; merge oldest first so local state
	// grows chronologically.
	for i := len(events) - 1; i >= 0; i-- {
		c.deliver(events[i])
	}
}

// deliver appends the event to local state unless its id was already seen.
// Events without an id get one from the local namespace.
func (c *Controller) deliver(evt Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if evt.ID == "" {
		evt.ID = localIDPrefix + uuid.NewString()
	}
	if c.seen.Seen(evt.ID) {
		c.mu.Unlock()
		return
	}
	c.seen.Add(evt.ID)
	c.mu.Unlock()

	if c.onEvent != nil {
		c.onEvent(evt)
	}
}
