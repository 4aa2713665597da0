// Package relay maintains the websocket link to the mesh overlay service.
//
// A Channel is fed the same sampled frames as the feedback pipeline but is
// otherwise independent of it. Send only enqueues: every frame goes through a
// bounded drop-oldest queue that a writer goroutine drains onto the socket,
// so a slow or disconnected relay never blocks the caller. Frames queued
// while disconnected are replayed in order after the next successful
// connection and registration. Reconnects follow a BackoffPolicy; once the
// policy is exhausted the channel enters StateFailed and stops dialing, while
// Send keeps accepting frames without error.
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/AltairaLabs/barre/runtime/logger"
	"github.com/AltairaLabs/barre/runtime/media"
	"github.com/AltairaLabs/barre/runtime/types"
)

// Errors returned by Channel.
var (
	ErrRelayExhausted = errors.New("relay: reconnect attempts exhausted")
	ErrAlreadyRunning = errors.New("relay: channel already running")
)

// State is the connection state of a Channel.
type State string

// Channel states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// Channel defaults.
const (
	DefaultQueueSize    = 50
	DefaultResultBuffer = 16
	DefaultRegisterWait = 500 * time.Millisecond
)

// Result is a validated overlay image received from the relay service.
type Result struct {
	ImageB64   string
	SocketID   string
	ReceivedAt time.Time
}

// Image decodes the overlay payload.
func (r Result) Image() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.ImageB64)
}

// Observer receives relay activity, typically for metrics.
type Observer interface {
	FrameSent()
	FrameQueued()
	FrameDropped()
	StateChanged(State)
}

// Config configures a Channel.
type Config struct {
	URL     string
	UserID  string
	Headers http.Header

	QueueSize    int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Backoff      BackoffPolicy

	// ReplayRate paces queue replay in frames per second; zero is unlimited.
	ReplayRate  float64
	ReplayBurst int

	// RegisterWait is how long to wait for the server's connected event
	// before writing frames. Without one the client-generated socket id is
	// used.
	RegisterWait time.Duration

	ResultBuffer int
}

// Option configures a Channel.
type Option func(*Channel)

// WithObserver registers an activity observer.
func WithObserver(o Observer) Option {
	return func(c *Channel) { c.observer = o }
}

// WithStateHandler registers fn to be called on every state transition.
func WithStateHandler(fn func(State)) Option {
	return func(c *Channel) { c.onState = fn }
}

// Channel is a reconnecting relay connection with an outbound frame queue.
type Channel struct {
	cfg      Config
	policy   BackoffPolicy
	limiter  *rate.Limiter
	observer Observer
	onState  func(State)
	results  chan Result
	wake     chan struct{}

	mu       sync.Mutex
	state    State
	conn     *Conn
	socketID string
	assigned chan struct{}
	queue    *Queue[types.Frame]
	running  bool
}

// NewChannel creates a disconnected channel. Call Run to connect.
func NewChannel(cfg Config, opts ...Option) *Channel {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = DefaultResultBuffer
	}
	if cfg.RegisterWait <= 0 {
		cfg.RegisterWait = DefaultRegisterWait
	}
	limit := rate.Inf
	if cfg.ReplayRate > 0 {
		limit = rate.Limit(cfg.ReplayRate)
		if cfg.ReplayBurst <= 0 {
			cfg.ReplayBurst = 1
		}
	}
	c := &Channel{
		cfg:     cfg,
		policy:  cfg.Backoff.withDefaults(),
		limiter: rate.NewLimiter(limit, cfg.ReplayBurst),
		results: make(chan Result, cfg.ResultBuffer),
		wake:    make(chan struct{}, 1),
		state:   StateDisconnected,
		queue:   NewQueue[types.Frame](cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SocketID returns the identity of the current or last connection.
func (c *Channel) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

// Pending returns the number of frames not yet written to the relay.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// Dropped returns how many queued frames were evicted on overflow.
func (c *Channel) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Dropped()
}

// Results returns validated overlay images. Results are dropped when the
// buffer is full.
func (c *Channel) Results() <-chan Result {
	return c.results
}

// Send queues f for the writer and returns without touching the socket. It
// never fails; when the queue is full the oldest frame is dropped.
func (c *Channel) Send(f types.Frame) {
	c.mu.Lock()
	held := c.state != StateConnected
	if c.queue.Push(f) {
		logger.Debug("Relay queue full, dropped oldest frame", "dropped_total", c.queue.Dropped())
		if c.observer != nil {
			c.observer.FrameDropped()
		}
	}
	c.mu.Unlock()

	if held && c.observer != nil {
		c.observer.FrameQueued()
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Channel) writeFrame(conn *Conn, f types.Frame, socketID string) error {
	data, err := Encode(EventSendFrame, SendFramePayload{
		UserID:    c.cfg.UserID,
		ImageData: f.Base64(),
		SocketID:  socketID,
		Seq:       f.Seq,
	})
	if err != nil {
		return err
	}
	if err := conn.WriteRaw(data); err != nil {
		return err
	}
	if c.observer != nil {
		c.observer.FrameSent()
	}
	return nil
}

// Run connects and keeps the channel connected until ctx is done or the
// backoff policy is exhausted, in which case it returns ErrRelayExhausted.
func (c *Channel) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	failures := 0
	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return nil
		}
		c.setState(StateConnecting)

		conn := NewConn(ConnConfig{
			URL:         c.cfg.URL,
			Headers:     c.cfg.Headers,
			DialTimeout: c.cfg.DialTimeout,
			WriteWait:   c.cfg.WriteTimeout,
		})
		if err := conn.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return nil
			}
			failures++
			if c.policy.Exhausted(failures) {
				c.setState(StateFailed)
				logger.Error("Relay reconnect attempts exhausted", "attempts", failures, "error", err)
				return ErrRelayExhausted
			}
			c.setState(StateDisconnected)
			delay := c.policy.Delay(failures)
			logger.Warn("Relay connection attempt failed", "attempt", failures,
				"max_attempts", c.policy.MaxAttempts, "retry_in", delay, "error", err)
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}

		failures = 0
		err := c.serve(ctx, conn)
		_ = conn.Close()
		c.mu.Lock()
		changed := c.detachLocked(conn)
		c.mu.Unlock()
		if changed {
			c.notifyState(StateDisconnected)
		}
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return nil
		}
		logger.Warn("Relay connection lost", "error", err)
		if !sleep(ctx, c.policy.Delay(1)) {
			c.setState(StateDisconnected)
			return nil
		}
	}
}

// serve registers on conn, waits briefly for the server-assigned socket id
// and then writes queued frames until the connection ends. The client-side
// uuid is only a fallback identity for servers that never send connected.
func (c *Channel) serve(ctx context.Context, conn *Conn) error {
	assigned := make(chan struct{})
	c.mu.Lock()
	c.socketID = uuid.NewString()
	c.assigned = assigned
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.assigned = nil
		c.mu.Unlock()
	}()

	reg, err := Encode(EventRegister, RegisterPayload{UserID: c.cfg.UserID})
	if err != nil {
		return err
	}
	if err := conn.WriteRaw(reg); err != nil {
		return err
	}

	readDone := make(chan struct{})
	var readErr error
	go func() {
		readErr = c.readLoop(ctx, conn)
		close(readDone)
	}()

	err = c.awaitSocketID(ctx, assigned, readDone)
	if err == nil {
		err = c.writeLoop(ctx, conn, readDone)
	}
	_ = conn.Close()
	<-readDone
	if err == nil {
		err = readErr
	}
	return err
}

func (c *Channel) awaitSocketID(ctx context.Context, assigned, readDone <-chan struct{}) error {
	t := time.NewTimer(c.cfg.RegisterWait)
	defer t.Stop()
	select {
	case <-assigned:
	case <-t.C:
		logger.Debug("Relay sent no socket id, using client id", "socket_id", c.SocketID())
	case <-readDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// writeLoop drains the queue onto conn in order. The backlog present at
// connect time is paced by the replay limiter; once it is empty the channel
// is marked connected and later frames are written as they are queued. A
// failed write puts the unsent frames back at the front of the queue.
func (c *Channel) writeLoop(ctx context.Context, conn *Conn, readDone <-chan struct{}) error {
	connected := false
	for {
		c.mu.Lock()
		pending := c.queue.Drain()
		sid := c.socketID
		if len(pending) == 0 && !connected {
			c.conn = conn
			c.state = StateConnected
			connected = true
			c.mu.Unlock()
			c.notifyState(StateConnected)
			logger.Info("Relay connected", "socket_id", sid)
		} else {
			c.mu.Unlock()
		}

		if len(pending) > 0 && !connected {
			logger.Debug("Replaying queued frames", "count", len(pending), "socket_id", sid)
		}
		for i, f := range pending {
			var err error
			if !connected {
				err = c.limiter.Wait(ctx)
			}
			if err == nil {
				err = c.writeFrame(conn, f, sid)
			}
			if err != nil {
				c.mu.Lock()
				c.queue.Requeue(pending[i:])
				c.mu.Unlock()
				return err
			}
		}
		if len(pending) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-readDone:
			return nil
		case <-c.wake:
		}
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *Conn) error {
	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("relay closed the connection")
			}
			return err
		}
		c.handleMessage(data)
	}
}

func (c *Channel) handleMessage(data []byte) {
	env, err := Decode(data)
	if err != nil {
		logger.Warn("Discarding relay message", "error", err)
		return
	}

	switch env.Event {
	case EventConnected:
		var p ConnectedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.SocketID == "" {
			logger.Warn("Discarding malformed connected event")
			return
		}
		c.mu.Lock()
		c.socketID = p.SocketID
		if c.assigned != nil {
			close(c.assigned)
			c.assigned = nil
		}
		c.mu.Unlock()
		logger.Debug("Relay assigned socket id", "socket_id", p.SocketID)

	case EventMeshResult:
		var p MeshResultPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || !media.IsBase64(p.ImageB64) {
			logger.Warn("Discarding malformed mesh result", "bytes", len(env.Data))
			return
		}
		res := Result{ImageB64: p.ImageB64, SocketID: c.SocketID(), ReceivedAt: time.Now()}
		select {
		case c.results <- res:
		default:
			logger.Warn("Relay result buffer full, dropping mesh result")
		}

	default:
		logger.Debug("Ignoring relay event", "event", env.Event)
	}
}

// detachLocked forgets conn if it is the active connection.
func (c *Channel) detachLocked(conn *Conn) bool {
	if c.conn != conn {
		return false
	}
	c.conn = nil
	c.state = StateDisconnected
	return true
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.notifyState(s)
}

func (c *Channel) notifyState(s State) {
	if c.observer != nil {
		c.observer.StateChanged(s)
	}
	if c.onState != nil {
		c.onState(s)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
