package bus

import (
	"context"

	"go.uber.org/zap"
)

// NullBus is a no-op implementation of the bus interface for when Redis is disabled
type NullBus struct {
	logger *zap.Logger
}

// NewNullBus creates a new null bus instance
func NewNullBus(logger *zap.Logger) *NullBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NullBus{logger: logger}
}

// Close is a no-op for null bus
func (nb *NullBus) Close() error {
	return nil
}

// Notify logs the notification but doesn't publish it
func (nb *NullBus) Notify(ctx context.Context, n Notification) error {
	nb.logger.Debug("notification (redis disabled)", zap.String("kind", n.Kind), zap.String("message", n.Message))
	return nil
}

// PublishCaseChange logs the change but doesn't publish it
func (nb *NullBus) PublishCaseChange(ctx context.Context, c CaseChange) error {
	nb.logger.Debug("case change (redis disabled)", zap.String("case_id", c.CaseID), zap.String("action", c.Action))
	return nil
}

// ReadNotifications blocks until ctx is cancelled
func (nb *NullBus) ReadNotifications(ctx context.Context, group, consumer string, handler func(ctx context.Context, n Notification) error) error {
	<-ctx.Done()
	return ctx.Err()
}

// ReadCaseChanges blocks until ctx is cancelled
func (nb *NullBus) ReadCaseChanges(ctx context.Context, group, consumer string, handler func(ctx context.Context, c CaseChange) error) error {
	<-ctx.Done()
	return ctx.Err()
}

// GetStats returns empty stats for null bus
func (nb *NullBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"type":   "null",
		"status": "disabled",
	}, nil
}

// HealthCheck always returns nil for null bus
func (nb *NullBus) HealthCheck(ctx context.Context) error {
	return nil
}
