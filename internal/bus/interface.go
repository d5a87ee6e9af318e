package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Notification kinds.
const (
	KindInfo    = "info"
	KindSuccess = "success"
	KindError   = "error"
	KindAuth    = "auth"
)

// Case change actions.
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionArchived = "archived"
	ActionDeleted  = "deleted"
	ActionAttached = "attached"
)

// Notification is a transient, operator-facing message.
type Notification struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Source    string `json:"source,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// CaseChange announces a mutation made by one console so others can refetch.
type CaseChange struct {
	CaseID    string            `json:"case_id"`
	Action    string            `json:"action"`
	Actor     string            `json:"actor"`
	Origin    string            `json:"origin"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Bus defines the interface for message bus implementations
type Bus interface {
	// Notify publishes a notification to the notifications stream
	Notify(ctx context.Context, n Notification) error

	// PublishCaseChange publishes a case mutation to the changes stream
	PublishCaseChange(ctx context.Context, c CaseChange) error

	// ReadNotifications reads from the notifications stream until ctx is done
	ReadNotifications(ctx context.Context, group, consumer string, handler func(ctx context.Context, n Notification) error) error

	// ReadCaseChanges reads from the changes stream until ctx is done
	ReadCaseChanges(ctx context.Context, group, consumer string, handler func(ctx context.Context, c CaseChange) error) error

	// GetStats returns basic statistics about the bus
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// HealthCheck performs a health check on the bus connection
	HealthCheck(ctx context.Context) error

	// Close closes the bus connection
	Close() error
}

// NewBus creates a new bus instance based on the Redis URL
// If redisURL is empty or unreachable, returns a NullBus
func NewBus(redisURL string, logger *zap.Logger) Bus {
	if logger == nil {
		logger = zap.NewNop()
	}

	if redisURL == "" {
		return NewNullBus(logger)
	}

	redisBus, err := NewRedisBus(redisURL, logger)
	if err == nil {
		return redisBus
	}

	logger.Warn("redis unavailable, notifications stay local", zap.Error(err))
	return NewNullBus(logger)
}

// Tee delivers every notification to local listeners before publishing it.
type Tee struct {
	Bus

	mu        sync.RWMutex
	listeners []func(Notification)
}

// NewTee wraps b.
func NewTee(b Bus) *Tee {
	return &Tee{Bus: b}
}

// Listen registers fn for every notification passed to Notify.
func (t *Tee) Listen(fn func(Notification)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Notify hands n to local listeners, then to the wrapped bus.
func (t *Tee) Notify(ctx context.Context, n Notification) error {
	t.mu.RLock()
	listeners := append([]func(Notification){}, t.listeners...)
	t.mu.RUnlock()
	for _, fn := range listeners {
		fn(n)
	}
	return t.Bus.Notify(ctx, n)
}
