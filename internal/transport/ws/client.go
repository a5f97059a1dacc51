package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/xipher-messenger/chatcore/internal/metrics"
	"github.com/xipher-messenger/chatcore/internal/proto"
)

// State is the lifecycle of the realtime channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

var (
	errAuthTimeout  = errors.New("auth timeout")
	errAuthRejected = errors.New("auth rejected")
	errQueueFull    = errors.New("outbound queue full")
)

// Options configures the realtime client.
type Options struct {
	URL           string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	PingInterval  time.Duration
	AuthTimeout   time.Duration
	QueueSize     int
	MaxFrameBytes int64
}

// Client keeps one authenticated WebSocket open for the current token.
// Inbound frames are delivered raw on Frames; outbound frames are queued
// until the server confirms authentication and then written in order.
type Client struct {
	opts    Options
	log     *zerolog.Logger
	metrics *metrics.Metrics

	frames   chan []byte
	outbound chan []byte

	mu     sync.Mutex
	token  string
	cancel context.CancelFunc
	done   chan struct{}
	state  State
}

// NewClient builds a disconnected client.
func NewClient(opts Options, logger *zerolog.Logger, m *metrics.Metrics) *Client {
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 10 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = 1 << 20
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		opts:     opts,
		log:      logger,
		metrics:  m,
		frames:   make(chan []byte, 64),
		outbound: make(chan []byte, opts.QueueSize),
	}
}

// Frames delivers every inbound frame, auth frames included.
func (c *Client) Frames() <-chan []byte {
	return c.frames
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect (re)starts the session loop for token. Calling it again with the
// same token while running is a no-op; a new token replaces the session.
func (c *Client) Connect(token string) {
	c.mu.Lock()
	if c.cancel != nil && c.token == token {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.token = token
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(ctx, token)
	}()
}

// Disconnect stops the session loop and drops queued frames.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.stopLocked()
	c.token = ""
	c.mu.Unlock()
	c.drain()
}

// Send queues a frame. It never blocks: when the queue is full the frame
// is dropped, which only affects best-effort typing and receipt signals.
func (c *Client) Send(v any) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.outbound <- data:
		return nil
	default:
		return errQueueFull
	}
}

func (c *Client) stopLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()
	<-done
	c.mu.Lock()
}

func (c *Client) drain() {
	for {
		select {
		case <-c.outbound:
		default:
			return
		}
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.metrics.Authenticated(s == StateAuthenticated)
}

func (c *Client) run(ctx context.Context, token string) {
	defer c.setState(StateDisconnected)

	attempts := 0
	for {
		authed, err := c.session(ctx, token)
		if ctx.Err() != nil {
			return
		}
		if authed {
			attempts = 0
		}
		delay := Backoff(c.opts.ReconnectBase, c.opts.ReconnectMax, attempts)
		attempts++
		c.metrics.Reconnect()
		c.log.Warn().Err(err).Dur("retry_in", delay).Int("attempt", attempts).Msg("realtime channel lost")

		c.setState(StateDisconnected)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// Backoff returns min(max, base*2^min(attempts,5)).
func Backoff(base, max time.Duration, attempts int) time.Duration {
	if attempts > 5 {
		attempts = 5
	}
	if attempts < 0 {
		attempts = 0
	}
	d := base * time.Duration(1<<uint(attempts))
	if d > max {
		return max
	}
	return d
}

// session runs one connection until it fails. It reports whether the
// server accepted the token, which resets the backoff.
func (c *Client) session(parent context.Context, token string) (bool, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	c.setState(StateConnecting)
	dialCtx, dialCancel := context.WithTimeout(ctx, c.opts.AuthTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.opts.URL, nil)
	dialCancel()
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(c.opts.MaxFrameBytes)

	c.setState(StateAuthenticating)
	if err := wsjson.Write(ctx, conn, proto.AuthFrame{Type: proto.TypeAuth, Token: token}); err != nil {
		return false, fmt.Errorf("write auth: %w", err)
	}

	authed := make(chan struct{})
	errCh := make(chan error, 3)
	go func() {
		errCh <- c.readLoop(ctx, conn, authed)
	}()

	timer := time.NewTimer(c.opts.AuthTimeout)
	select {
	case <-authed:
		timer.Stop()
	case <-timer.C:
		return false, errAuthTimeout
	case err := <-errCh:
		timer.Stop()
		return false, err
	case <-ctx.Done():
		timer.Stop()
		return false, ctx.Err()
	}

	c.setState(StateAuthenticated)
	c.log.Info().Str("url", c.opts.URL).Msg("realtime channel authenticated")

	go func() {
		errCh <- c.writeLoop(ctx, conn)
	}()
	go func() {
		errCh <- c.pingLoop(ctx, conn)
	}()

	err = <-errCh
	cancel()

	status := websocket.StatusNormalClosure
	reason := "closing"
	if s := websocket.CloseStatus(err); s != -1 {
		status = s
	}
	if parent.Err() == nil && status == websocket.StatusNormalClosure && err != nil {
		reason = err.Error()
	}
	_ = conn.Close(status, reason)
	return true, err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, authed chan<- struct{}) error {
	var once sync.Once
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		switch proto.PeekType(data) {
		case proto.TypeAuthSuccess:
			once.Do(func() { close(authed) })
		case proto.TypeAuthError:
			c.forward(ctx, data)
			return errAuthRejected
		}
		c.forward(ctx, data)
	}
}

func (c *Client) forward(ctx context.Context, data []byte) {
	select {
	case c.frames <- data:
	case <-ctx.Done():
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-c.outbound:
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				c.log.Warn().Err(err).Msg("write realtime frame")
				return err
			}
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.opts.PingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
