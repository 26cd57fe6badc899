package adafri

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Realtime is the part of the connection manager the stores depend on.
// Room commands are fire-and-forget; an error only means the frame was not sent.
type Realtime interface {
	SetCurrentWorkspace(ctx context.Context, workspaceID string) error
	LeaveWorkspace(ctx context.Context, workspaceID string) error
	JoinChannel(ctx context.Context, workspaceID, channelID string) error
	LeaveChannel(ctx context.Context, workspaceID, channelID string) error
	JoinDirectMessage(ctx context.Context, workspaceID, directMessageID string) error
	LeaveDirectMessage(ctx context.Context, workspaceID, directMessageID string) error
	JoinThread(ctx context.Context, workspaceID, messageID string) error
	LeaveThread(ctx context.Context, workspaceID, messageID string) error
	SendTypingStart(ctx context.Context, scope TypingScope) error
	SendTypingStop(ctx context.Context, scope TypingScope) error
	On(event EventType, handler EventHandler)
	Off(event EventType)
}

// EventHandler receives decoded events on the connection's read goroutine,
// in arrival order.
type EventHandler func(Event)

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the connection manager.
type RealtimeConfig struct {
	// Path is appended to the API origin to build the socket URL.
	Path                 string
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	ReadLimit            int64
	// HTTPClient is used for the handshake. It must not set Timeout.
	HTTPClient *http.Client
}

func (c *RealtimeConfig) defaults() {
	if c.Path == "" {
		c.Path = "/ws"
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = 1 << 20
	}
}

// RealtimeState represents the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

// RoomKind is a realtime subscription axis.
type RoomKind string

const (
	RoomWorkspace     RoomKind = "workspace"
	RoomChannel       RoomKind = "channel"
	RoomDirectMessage RoomKind = "direct_message"
	RoomThread        RoomKind = "thread"
)

// Room is one subscription scope on the socket.
type Room struct {
	Kind        RoomKind
	WorkspaceID string
	ID          string
}

func (r Room) payload() map[string]string {
	p := map[string]string{"workspaceId": r.WorkspaceID}
	switch r.Kind {
	case RoomChannel:
		p["channelId"] = r.ID
	case RoomDirectMessage:
		p["directMessageId"] = r.ID
	case RoomThread:
		p["messageId"] = r.ID
	}
	return p
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	mu          sync.Mutex
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxAttempts < 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.mu.Lock()
	r.connectedAt = time.Now()
	r.mu.Unlock()
}

func (r *reconnector) nextDelay() (int, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return r.attempt, delay
}

func (r *reconnector) reset() {
	r.mu.Lock()
	r.attempt = 0
	r.connectedAt = time.Time{}
	r.mu.Unlock()
}

// ============================================================================
// Connection
// ============================================================================

// Connection owns the single realtime socket and the set of joined rooms.
// Room membership is remembered while disconnected and replayed on connect.
type Connection struct {
	baseURL string
	config  *RealtimeConfig
	log     *zap.Logger
	recon   *reconnector

	mu               sync.Mutex
	conn             *websocket.Conn
	state            RealtimeState
	intentionalClose bool
	// session counts Disconnect calls; a dial started in an earlier
	// session must not install its socket.
	session          uint64
	cancelFn         context.CancelFunc
	token            string
	workspaceID      string
	rooms            []Room

	hmu           sync.RWMutex
	handlers      map[EventType]EventHandler
	onReconnected []func()
}

var _ Realtime = (*Connection)(nil)

// errDialAborted is returned by a dial that completed after Disconnect.
var errDialAborted = errors.New("disconnected during dial")

// NewConnection creates a disconnected manager for the API at baseURL.
func NewConnection(baseURL string, config *RealtimeConfig, log *zap.Logger) *Connection {
	var cfg RealtimeConfig
	if config != nil {
		cfg = *config
	}
	cfg.defaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Connection{
		baseURL:  baseURL,
		config:   &cfg,
		log:      log.Named("realtime"),
		recon:    newReconnector(&cfg),
		state:    StateDisconnected,
		handlers: make(map[EventType]EventHandler),
	}
}

// On registers the handler for event, replacing any previous one.
func (c *Connection) On(event EventType, handler EventHandler) {
	c.hmu.Lock()
	c.handlers[event] = handler
	c.hmu.Unlock()
}

// Off removes the handler for event.
func (c *Connection) Off(event EventType) {
	c.hmu.Lock()
	delete(c.handlers, event)
	c.hmu.Unlock()
}

// OnReconnected registers a hook run after an automatic reconnect. Messages
// sent while the socket was down are not backfilled; hooks should re-fetch.
func (c *Connection) OnReconnected(h func()) {
	c.hmu.Lock()
	c.onReconnected = append(c.onReconnected, h)
	c.hmu.Unlock()
}

// State returns the current connection state.
func (c *Connection) State() RealtimeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Rooms returns the rooms currently joined, in join order.
func (c *Connection) Rooms() []Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Room(nil), c.rooms...)
}

// CurrentWorkspace returns the workspace whose room is joined, or "".
func (c *Connection) CurrentWorkspace() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workspaceID
}

func (c *Connection) socketURL(token string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = c.config.Path
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// Connect establishes the authenticated socket. It is a no-op while already
// connected or connecting. A failed dial is not retried.
func (c *Connection) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.intentionalClose = false
	c.token = token
	session := c.session
	c.mu.Unlock()

	if err := c.dial(ctx, token, session); err != nil {
		c.mu.Lock()
		if c.session == session {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// dial opens a socket and installs it unless Disconnect ran since session
// was read, in which case the new socket is closed and errDialAborted returned.
func (c *Connection) dial(ctx context.Context, token string, session uint64) error {
	wsURL, err := c.socketURL(token)
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: c.config.HTTPClient,
		HTTPHeader: http.Header{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(c.config.ReadLimit)

	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.intentionalClose || c.session != session {
		c.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
		return errDialAborted
	}
	c.conn = conn
	c.state = StateConnected
	c.cancelFn = cancel
	rooms := append([]Room(nil), c.rooms...)
	c.mu.Unlock()
	c.recon.markConnected()

	// Rooms joined before the socket came up, or before a reconnect.
	for _, r := range rooms {
		if err := c.sendCommand(ctx, "join_"+string(r.Kind), r.payload()); err != nil {
			c.log.Debug("rejoin failed", zap.String("room", string(r.Kind)), zap.String("id", r.ID), zap.Error(err))
		}
	}

	go c.readLoop(loopCtx, conn)
	go c.heartbeatLoop(loopCtx, conn)

	c.log.Info("connected", zap.Int("rooms", len(rooms)))
	return nil
}

// Disconnect closes the socket. It is safe to call when not connected.
// Joined rooms are forgotten.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	c.intentionalClose = true
	c.session++
	conn := c.conn
	cancel := c.cancelFn
	c.conn = nil
	c.cancelFn = nil
	c.state = StateDisconnected
	c.rooms = nil
	c.workspaceID = ""
	c.mu.Unlock()
	c.recon.reset()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	if cancel != nil {
		cancel()
	}
	if err != nil {
		return fmt.Errorf("websocket close: %w", err)
	}
	return nil
}

// ── Rooms ────────────────────────────────────────────────

// SetCurrentWorkspace joins the workspace room, leaving any other workspace room first.
func (c *Connection) SetCurrentWorkspace(ctx context.Context, workspaceID string) error {
	c.mu.Lock()
	prev := c.workspaceID
	c.workspaceID = workspaceID
	c.mu.Unlock()

	if prev == workspaceID {
		return nil
	}
	if prev != "" {
		if err := c.leave(ctx, Room{Kind: RoomWorkspace, WorkspaceID: prev, ID: prev}); err != nil {
			c.log.Debug("leave workspace", zap.String("workspace_id", prev), zap.Error(err))
		}
	}
	return c.join(ctx, Room{Kind: RoomWorkspace, WorkspaceID: workspaceID, ID: workspaceID})
}

func (c *Connection) LeaveWorkspace(ctx context.Context, workspaceID string) error {
	c.mu.Lock()
	if c.workspaceID == workspaceID {
		c.workspaceID = ""
	}
	c.mu.Unlock()
	return c.leave(ctx, Room{Kind: RoomWorkspace, WorkspaceID: workspaceID, ID: workspaceID})
}

func (c *Connection) JoinChannel(ctx context.Context, workspaceID, channelID string) error {
	return c.join(ctx, Room{Kind: RoomChannel, WorkspaceID: workspaceID, ID: channelID})
}

func (c *Connection) LeaveChannel(ctx context.Context, workspaceID, channelID string) error {
	return c.leave(ctx, Room{Kind: RoomChannel, WorkspaceID: workspaceID, ID: channelID})
}

func (c *Connection) JoinDirectMessage(ctx context.Context, workspaceID, directMessageID string) error {
	return c.join(ctx, Room{Kind: RoomDirectMessage, WorkspaceID: workspaceID, ID: directMessageID})
}

func (c *Connection) LeaveDirectMessage(ctx context.Context, workspaceID, directMessageID string) error {
	return c.leave(ctx, Room{Kind: RoomDirectMessage, WorkspaceID: workspaceID, ID: directMessageID})
}

func (c *Connection) JoinThread(ctx context.Context, workspaceID, messageID string) error {
	return c.join(ctx, Room{Kind: RoomThread, WorkspaceID: workspaceID, ID: messageID})
}

func (c *Connection) LeaveThread(ctx context.Context, workspaceID, messageID string) error {
	return c.leave(ctx, Room{Kind: RoomThread, WorkspaceID: workspaceID, ID: messageID})
}

func (c *Connection) join(ctx context.Context, r Room) error {
	c.mu.Lock()
	found := false
	for _, existing := range c.rooms {
		if existing == r {
			found = true
			break
		}
	}
	if !found {
		c.rooms = append(c.rooms, r)
	}
	c.mu.Unlock()
	return c.sendCommand(ctx, "join_"+string(r.Kind), r.payload())
}

func (c *Connection) leave(ctx context.Context, r Room) error {
	c.mu.Lock()
	for i, existing := range c.rooms {
		if existing == r {
			c.rooms = append(c.rooms[:i], c.rooms[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	return c.sendCommand(ctx, "leave_"+string(r.Kind), r.payload())
}

// ── Typing ───────────────────────────────────────────────

func (c *Connection) SendTypingStart(ctx context.Context, scope TypingScope) error {
	return c.sendCommand(ctx, "typing_start", scope.payload())
}

func (c *Connection) SendTypingStop(ctx context.Context, scope TypingScope) error {
	return c.sendCommand(ctx, "typing_stop", scope.payload())
}

// ── Wire ─────────────────────────────────────────────────

func (c *Connection) sendCommand(ctx context.Context, verb string, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if err := wsjson.Write(ctx, conn, &command{Type: verb, Payload: payload, RequestID: uuid.NewString()}); err != nil {
		return fmt.Errorf("write %s: %w", verb, err)
	}
	return nil
}

func (c *Connection) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			intentional := c.intentionalClose
			session := c.session
			current := c.conn == conn
			if current {
				c.conn = nil
				c.state = StateDisconnected
			}
			c.mu.Unlock()
			if intentional || !current {
				return
			}

			c.log.Warn("connection lost", zap.Error(err))
			if c.config.AutoReconnect {
				go c.reconnectLoop(session)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Debug("dropping malformed frame", zap.Error(err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Connection) dispatch(env Envelope) {
	ev, err := DecodeEvent(env)
	if err != nil {
		c.log.Debug("dropping event", zap.String("event", env.Type), zap.Error(err))
		return
	}
	c.hmu.RLock()
	h := c.handlers[ev.Type()]
	c.hmu.RUnlock()
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("event handler panicked", zap.String("event", env.Type), zap.Any("panic", r))
		}
	}()
	h(ev)
}

func (c *Connection) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				c.log.Warn("heartbeat failed", zap.Error(err))
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

func (c *Connection) reconnectLoop(session uint64) {
	for c.recon.shouldReconnect() {
		attempt, delay := c.recon.nextDelay()
		c.mu.Lock()
		if c.intentionalClose || c.session != session {
			c.mu.Unlock()
			return
		}
		c.state = StateReconnecting
		token := c.token
		c.mu.Unlock()

		c.log.Info("reconnecting", zap.Int("attempt", attempt), zap.Duration("delay", delay))
		time.Sleep(delay)

		c.mu.Lock()
		if c.intentionalClose || c.session != session {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := c.dial(ctx, token, session)
		cancel()
		if errors.Is(err, errDialAborted) {
			c.log.Debug("reconnect abandoned after disconnect")
			return
		}
		if err == nil {
			c.hmu.RLock()
			hooks := append([]func(){}, c.onReconnected...)
			c.hmu.RUnlock()
			for _, h := range hooks {
				h()
			}
			return
		}
		c.log.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
	}

	c.mu.Lock()
	if c.session == session {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
}

// IsConnected reports whether the socket is up.
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

