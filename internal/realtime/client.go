package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vendorlane/pulse/internal/backoff"
	"github.com/vendorlane/pulse/pkg/models"
)

// State is the client connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

var (
	ErrNotConnected   = errors.New("realtime: not connected")
	ErrAlreadyStarted = errors.New("realtime: client already started")
	ErrClosed         = errors.New("realtime: client closed")
)

// Handlers receives events from the connection. Handlers run on the client's
// read goroutine and must not block.
type Handlers struct {
	OnStateChange         func(State)
	OnConnectionAck       func(ConnectionAckPayload)
	OnMessageReceived     func(models.Message)
	OnConversationUpdated func(models.Conversation)
	OnMessageFlagged      func(models.Message)

	// OnFrame receives frames no dedicated handler covers.
	OnFrame func(Frame)
}

// ClientOptions configures a Client. URL is required; everything else has
// defaults.
type ClientOptions struct {
	// URL is the websocket endpoint, e.g. "ws://host:8080/ws".
	URL string

	// Token is appended as a query parameter for the handshake, since
	// browser websockets cannot set headers.
	Token string

	Dialer *websocket.Dialer
	Logger *slog.Logger

	// HeartbeatInterval is how often the client pings the server.
	HeartbeatInterval time.Duration

	// PongTimeoutIntervals is the number of missed intervals after which
	// the connection is presumed dead and torn down for a reconnect.
	PongTimeoutIntervals int

	// Reconnect paces reconnection attempts. The zero value means a fixed
	// 3 second delay.
	Reconnect backoff.Policy

	// MaxAttempts bounds consecutive failed attempts; zero retries forever.
	MaxAttempts int

	Handlers Handlers
}

// Client maintains a persistent websocket connection to the hub. It
// reconnects on failure and replays its subscription set before any other
// outbound frame, so a reconnect is transparent to subscribers.
type Client struct {
	opts   ClientOptions
	dialer *websocket.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	subs    map[string]struct{}
	started bool
	cancel  context.CancelFunc

	outbox   chan []byte
	lastPong atomic.Int64
	done     chan struct{}
}

// NewClient builds a client. It does not connect; call Connect.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("realtime: url is required")
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.PongTimeoutIntervals <= 0 {
		opts.PongTimeoutIntervals = 3
	}
	if opts.Reconnect.Initial <= 0 {
		opts.Reconnect = backoff.Fixed(3 * time.Second)
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:   opts,
		dialer: dialer,
		logger: logger,
		state:  StateDisconnected,
		subs:   make(map[string]struct{}),
		outbox: make(chan []byte, 64),
		done:   make(chan struct{}),
	}, nil
}

// Connect starts the connection loop. It returns immediately; observe
// progress through OnStateChange. Cancelling ctx or calling Close stops
// the client for good.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

// Close stops the client and waits for the connection loop to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil
	}
	cancel()
	<-c.done
	return nil
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe adds a conversation to the subscription set. The set survives
// reconnects; the frame is sent now only when connected.
func (c *Client) Subscribe(conversationID string) error {
	if conversationID == "" {
		return errors.New("realtime: conversation id is required")
	}
	c.mu.Lock()
	c.subs[conversationID] = struct{}{}
	connected := c.state == StateConnected
	c.mu.Unlock()

	if connected {
		return c.enqueueFrame(FrameSubscribe, SubscribePayload{ConversationID: conversationID})
	}
	return nil
}

// Unsubscribe removes a conversation from the subscription set.
func (c *Client) Unsubscribe(conversationID string) error {
	c.mu.Lock()
	_, had := c.subs[conversationID]
	delete(c.subs, conversationID)
	connected := c.state == StateConnected
	c.mu.Unlock()

	if had && connected {
		return c.enqueueFrame(FrameUnsubscribe, SubscribePayload{ConversationID: conversationID})
	}
	return nil
}

// Subscriptions returns the current subscription set, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for id := range c.subs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SendChatMessage posts a message to a conversation. Fails when disconnected;
// callers decide whether to retry after the next reconnect.
func (c *Client) SendChatMessage(conversationID, content string) error {
	return c.Send(FrameChatMessage, ChatMessagePayload{
		ConversationID: conversationID,
		Content:        content,
	})
}

// FlagMessage flags a message for moderation.
func (c *Client) FlagMessage(conversationID, messageID, reason string) error {
	return c.Send(FrameFlagMessage, FlagMessagePayload{
		ConversationID: conversationID,
		MessageID:      messageID,
		Reason:         reason,
	})
}

// Send queues an arbitrary frame for delivery on the live connection.
func (c *Client) Send(frameType string, payload any) error {
	c.mu.Lock()
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected {
		c.logger.Warn("send while disconnected", "frame", frameType)
		return ErrNotConnected
	}
	return c.enqueueFrame(frameType, payload)
}

func (c *Client) enqueueFrame(frameType string, payload any) error {
	data, err := EncodeFrame(frameType, payload)
	if err != nil {
		return err
	}
	select {
	case c.outbox <- data:
		return nil
	default:
		return errors.New("realtime: send buffer full")
	}
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()
	if changed && c.opts.Handlers.OnStateChange != nil {
		c.opts.Handlers.OnStateChange(state)
	}
}

func (c *Client) dialURL() string {
	if c.opts.Token == "" {
		return c.opts.URL
	}
	sep := "?"
	for _, r := range c.opts.URL {
		if r == '?' {
			sep = "&"
			break
		}
	}
	return c.opts.URL + sep + "token=" + c.opts.Token
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateDisconnected)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting)
		conn, resp, err := c.dialer.DialContext(ctx, c.dialURL(), nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			c.setState(StateDisconnected)
			attempt++
			c.logger.Warn("realtime dial failed", "attempt", attempt, "error", err)
			if c.opts.MaxAttempts > 0 && attempt >= c.opts.MaxAttempts {
				c.logger.Error("realtime giving up", "attempts", attempt)
				return
			}
			if backoff.Sleep(ctx, c.opts.Reconnect, attempt) != nil {
				return
			}
			continue
		}

		attempt = 0
		c.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		c.setState(StateDisconnected)
		c.logger.Info("realtime connection lost, reconnecting")
		attempt++
		if c.opts.MaxAttempts > 0 && attempt >= c.opts.MaxAttempts {
			return
		}
		if backoff.Sleep(ctx, c.opts.Reconnect, attempt) != nil {
			return
		}
	}
}

// serve drives one live connection until it dies. The subscription set is
// replayed before anything else goes out, so server-side fan-out state is
// rebuilt before new traffic can race it.
func (c *Client) serve(parent context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer conn.Close()

	c.drainOutbox()
	for _, conversationID := range c.Subscriptions() {
		data, err := EncodeFrame(FrameSubscribe, SubscribePayload{ConversationID: conversationID})
		if err != nil {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	c.lastPong.Store(time.Now().UnixNano())
	c.setState(StateConnected)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writePump(ctx, conn)
	}()

	c.readPump(conn)
	cancel()
	<-writeDone
}

// drainOutbox discards frames queued for a previous connection; the replay
// of the subscription set supersedes them.
func (c *Client) drainOutbox() {
	for {
		select {
		case <-c.outbox:
		default:
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	pongWait := c.opts.HeartbeatInterval * time.Duration(c.opts.PongTimeoutIntervals)
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			if time.Since(time.Unix(0, c.lastPong.Load())) > pongWait {
				c.logger.Warn("realtime liveness timeout, dropping connection")
				_ = conn.Close()
				return
			}
			data, err := EncodeFrame(FramePing, nil)
			if err != nil {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case data := <-c.outbox:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			c.logger.Warn("realtime received malformed frame", "error", err)
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame *Frame) {
	h := c.opts.Handlers
	switch frame.Type {
	case FramePong:
		c.lastPong.Store(time.Now().UnixNano())
	case FrameConnectionAck:
		var payload ConnectionAckPayload
		if err := json.Unmarshal(frame.Payload, &payload); err == nil && h.OnConnectionAck != nil {
			h.OnConnectionAck(payload)
		}
	case FrameMessageReceived:
		var msg models.Message
		if err := json.Unmarshal(frame.Payload, &msg); err == nil && h.OnMessageReceived != nil {
			h.OnMessageReceived(msg)
		}
	case FrameConversationUpdated:
		var conv models.Conversation
		if err := json.Unmarshal(frame.Payload, &conv); err == nil && h.OnConversationUpdated != nil {
			h.OnConversationUpdated(conv)
		}
	case FrameMessageFlagged:
		var msg models.Message
		if err := json.Unmarshal(frame.Payload, &msg); err == nil && h.OnMessageFlagged != nil {
			h.OnMessageFlagged(msg)
		}
	default:
		if h.OnFrame != nil {
			h.OnFrame(*frame)
		}
	}
}
