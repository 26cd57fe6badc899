package adafri

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Session wires the REST client, the realtime connection and the stores for
// one signed-in user. All state is dropped on Logout.
type Session struct {
	Client     *Client
	Conn       *Connection
	Workspaces *WorkspaceStore
	Channels   *ChannelStore
	Messages   *MessageStore
	Typing     *TypingTracker

	log    *zap.Logger
	userID string
}

type sessionConfig struct {
	log            *zap.Logger
	metrics        *Metrics
	realtime       *RealtimeConfig
	userID         string
	typingTTL      time.Duration
	typingThrottle time.Duration
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

func WithSessionLogger(log *zap.Logger) SessionOption {
	return func(c *sessionConfig) { c.log = log }
}

func WithSessionMetrics(m *Metrics) SessionOption {
	return func(c *sessionConfig) { c.metrics = m }
}

func WithRealtimeConfig(cfg *RealtimeConfig) SessionOption {
	return func(c *sessionConfig) { c.realtime = cfg }
}

// WithCurrentUserID sets the signed-in user instead of reading it from the token.
func WithCurrentUserID(id string) SessionOption {
	return func(c *sessionConfig) { c.userID = id }
}

// WithTypingTTL expires typing entries not refreshed within d.
func WithTypingTTL(d time.Duration) SessionOption {
	return func(c *sessionConfig) { c.typingTTL = d }
}

func WithSessionTypingThrottle(d time.Duration) SessionOption {
	return func(c *sessionConfig) { c.typingThrottle = d }
}

// NewSession builds the connection and stores on top of client.
func NewSession(client *Client, opts ...SessionOption) *Session {
	cfg := &sessionConfig{typingThrottle: DefaultTypingThrottle}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.log == nil {
		cfg.log = zap.NewNop()
	}

	conn := NewConnection(client.BaseURL(), cfg.realtime, cfg.log)
	typing := NewTypingTracker(cfg.typingTTL)
	storeOpts := []StoreOption{
		WithStoreLogger(cfg.log),
		WithStoreMetrics(cfg.metrics),
		WithTypingThrottle(cfg.typingThrottle),
	}

	workspaces := NewWorkspaceStore(client.Workspaces, conn, storeOpts...)
	channels := NewChannelStore(client.Channels, conn, workspaces, storeOpts...)
	messages := NewMessageStore(client.Messages, conn, channels, typing, storeOpts...)

	return &Session{
		Client:     client,
		Conn:       conn,
		Workspaces: workspaces,
		Channels:   channels,
		Messages:   messages,
		Typing:     typing,
		log:        cfg.log.Named("session"),
		userID:     cfg.userID,
	}
}

// Login stores the token, resolves the current user and connects the socket.
// A connect failure is returned but leaves the REST side of the session usable.
func (s *Session) Login(ctx context.Context, token string) error {
	s.Client.SetToken(token)

	userID := s.userID
	if userID == "" {
		id, err := UserIDFromToken(token)
		if err != nil {
			s.log.Warn("cannot resolve user from token; own messages will not be deduplicated", zap.Error(err))
		}
		userID = id
	}
	s.Messages.SetCurrentUser(userID)
	s.Messages.SetupSocketListeners()

	if err := s.Conn.Connect(ctx, token); err != nil {
		s.log.Warn("realtime connect failed", zap.Error(err))
		return fmt.Errorf("connect realtime: %w", err)
	}
	s.log.Info("logged in", zap.String("user_id", userID))
	return nil
}

// Logout leaves every room, drops all cached state and closes the socket.
func (s *Session) Logout(ctx context.Context) error {
	s.Messages.TeardownSocketListeners()
	s.Messages.SetActiveThread(ctx, "", "")
	s.Channels.ClearSelection(ctx)
	s.Workspaces.ClearSelection(ctx)

	s.Messages.ClearMessages()
	s.Messages.SetCurrentUser("")
	s.Channels.Reset()
	s.Workspaces.Reset()

	err := multierr.Combine(ctx.Err(), s.Conn.Disconnect())
	s.Client.SetToken("")
	s.log.Info("logged out")
	return err
}

// CurrentUserID returns the id used for sender-echo suppression.
func (s *Session) CurrentUserID() string {
	return s.Messages.CurrentUserID()
}

var errNoUserClaim = errors.New("token has no user id claim")

// UserIDFromToken reads the user id from a JWT without verifying it; the
// server verifies the token on every request.
func UserIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	for _, key := range []string{"id", "userId", "user_id", "sub"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", errNoUserClaim
}
