package adafri

import (
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNoConversationSelected is returned by sends and typing signals when
	// neither a channel nor a direct message is selected.
	ErrNoConversationSelected = errors.New("no conversation selected")

	// ErrNotConnected is returned by realtime commands issued without a live socket.
	ErrNotConnected = errors.New("not connected")
)

// OperationState is the lifecycle of one keyed store operation.
type OperationState string

const (
	StateIdle      OperationState = "idle"
	StateLoading   OperationState = "loading"
	StateSucceeded OperationState = "succeeded"
	StateFailed    OperationState = "failed"
)

// OperationStatus is the status of a single operation key.
type OperationStatus struct {
	State OperationState
	Err   string
}

// statusBoard tracks loading and error state per operation key so that
// concurrent operations on different conversations do not clobber each other.
type statusBoard struct {
	mu       sync.RWMutex
	ops      map[string]OperationStatus
	inflight int
	lastErr  string
	metrics  *Metrics
	log      *zap.Logger
}

func (b *statusBoard) begin(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ops == nil {
		b.ops = make(map[string]OperationStatus)
	}
	if b.ops[key].State != StateLoading {
		b.inflight++
	}
	b.ops[key] = OperationStatus{State: StateLoading}
	b.lastErr = ""
}

// finish records the outcome of key and returns the user-facing error string,
// or "" on success.
func (b *statusBoard) finish(key string, err error, fallback string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ops == nil {
		b.ops = make(map[string]OperationStatus)
	}
	if b.ops[key].State == StateLoading && b.inflight > 0 {
		b.inflight--
	}
	op := operationName(key)
	if err == nil {
		b.ops[key] = OperationStatus{State: StateSucceeded}
		b.metrics.observeOperation(op, "success")
		return ""
	}
	msg := errorMessage(err, fallback)
	if b.log != nil {
		b.log.Warn("operation failed", zap.String("operation", key), zap.Error(err))
	}
	b.ops[key] = OperationStatus{State: StateFailed, Err: msg}
	b.lastErr = msg
	b.metrics.observeOperation(op, "error")
	return msg
}

// track runs fn as operation key and returns its error unchanged.
func (b *statusBoard) track(key, fallback string, fn func() error) error {
	b.begin(key)
	err := fn()
	b.finish(key, err, fallback)
	return err
}

// Status returns the status of one operation key.
func (b *statusBoard) Status(key string) OperationStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.ops[key]; ok {
		return s
	}
	return OperationStatus{State: StateIdle}
}

// IsLoading reports whether any operation of the store is in flight.
func (b *statusBoard) IsLoading() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.inflight > 0
}

// LastError returns the most recent failure message, cleared when a new operation starts.
func (b *statusBoard) LastError() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastErr
}

func (b *statusBoard) reset() {
	b.mu.Lock()
	b.ops = make(map[string]OperationStatus)
	b.inflight = 0
	b.lastErr = ""
	b.mu.Unlock()
}

// opKey joins an operation name with its scoping ids.
func opKey(op string, parts ...string) string {
	if len(parts) == 0 {
		return op
	}
	return op + ":" + strings.Join(parts, ":")
}

func operationName(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

// errorMessage extracts the API-provided message, falling back to a generic one.
func errorMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, ErrNoConversationSelected) {
		return "No channel or direct message selected"
	}
	return fallback
}

// ============================================================================
// Store options
// ============================================================================

type storeConfig struct {
	log            *zap.Logger
	metrics        *Metrics
	typingThrottle time.Duration
}

// StoreOption configures a store.
type StoreOption func(*storeConfig)

// WithStoreLogger sets the logger used by a store.
func WithStoreLogger(log *zap.Logger) StoreOption {
	return func(c *storeConfig) { c.log = log }
}

// WithStoreMetrics records operation outcomes and realtime events on m.
func WithStoreMetrics(m *Metrics) StoreOption {
	return func(c *storeConfig) { c.metrics = m }
}

// WithTypingThrottle limits outbound typing_start signals to one per d per
// conversation. Zero disables throttling.
func WithTypingThrottle(d time.Duration) StoreOption {
	return func(c *storeConfig) { c.typingThrottle = d }
}

func newStoreConfig(name string, opts []StoreOption) *storeConfig {
	cfg := &storeConfig{typingThrottle: DefaultTypingThrottle}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.log == nil {
		cfg.log = zap.NewNop()
	}
	cfg.log = cfg.log.Named(name)
	return cfg
}

func (b *statusBoard) configure(c *storeConfig) {
	b.metrics = c.metrics
	b.log = c.log
}
