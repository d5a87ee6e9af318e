package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Stream names.
const (
	StreamNotifications = "case-notifications"
	StreamCaseChanges   = "case-changes"
)

// Consumer group start positions.
const (
	// StartOldest delivers every entry still in the stream.
	StartOldest = "0"
	// StartNew delivers only entries added after the group is created.
	StartNew = "$"
)

// RedisBus provides Redis Streams-based messaging between consoles
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger

	// retryDelay is the pause after a failed read
	retryDelay time.Duration
}

// StreamMessage represents a message in a Redis Stream
type StreamMessage struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// StreamHandler is a function that processes stream messages
type StreamHandler func(ctx context.Context, message StreamMessage) error

// NewRedisBus creates a new Redis bus instance
func NewRedisBus(redisURL string, logger *zap.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &RedisBus{
		client:     client,
		logger:     logger.With(zap.String("component", "redis_bus")),
		retryDelay: 5 * time.Second,
	}, nil
}

// Close closes the Redis connection
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// Notify publishes a notification to the notifications stream
func (rb *RedisBus) Notify(ctx context.Context, n Notification) error {
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().Unix()
	}
	fields := map[string]interface{}{
		"kind":      n.Kind,
		"message":   n.Message,
		"source":    n.Source,
		"timestamp": n.Timestamp,
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamNotifications,
		Values: fields,
	})
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	rb.logger.Debug("published notification", zap.String("kind", n.Kind), zap.String("id", result.Val()))
	return nil
}

// PublishCaseChange publishes a case mutation to the changes stream
func (rb *RedisBus) PublishCaseChange(ctx context.Context, c CaseChange) error {
	if c.Timestamp == 0 {
		c.Timestamp = time.Now().Unix()
	}
	fieldsJSON, err := json.Marshal(c.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal change fields: %w", err)
	}

	values := map[string]interface{}{
		"case_id":   c.CaseID,
		"action":    c.Action,
		"actor":     c.Actor,
		"origin":    c.Origin,
		"fields":    string(fieldsJSON),
		"timestamp": c.Timestamp,
	}

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamCaseChanges,
		Values: values,
	})
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish case change: %w", err)
	}

	rb.logger.Debug("published case change",
		zap.String("case_id", c.CaseID), zap.String("action", c.Action))
	return nil
}

// CreateConsumerGroup creates a consumer group for a stream if it doesn't
// exist. start is StartOldest or StartNew; an existing group keeps its position.
func (rb *RedisBus) CreateConsumerGroup(ctx context.Context, stream, group, start string) error {
	// Try to create the consumer group, ignore error if it already exists
	if err := rb.client.XGroupCreateMkStream(ctx, stream, group, start).Err(); err != nil {
		if !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group %s for stream %s: %w", group, stream, err)
		}
	}

	rb.logger.Debug("consumer group ready", zap.String("stream", stream), zap.String("group", group))
	return nil
}

// DestroyConsumerGroup removes group and its pending entries from stream.
func (rb *RedisBus) DestroyConsumerGroup(ctx context.Context, stream, group string) error {
	if err := rb.client.XGroupDestroy(ctx, stream, group).Err(); err != nil {
		return fmt.Errorf("failed to destroy consumer group %s for stream %s: %w", group, stream, err)
	}
	return nil
}

// ReadStream reads messages from a stream using consumer groups, creating
// the group at start when it does not exist yet.
func (rb *RedisBus) ReadStream(ctx context.Context, stream, group, consumer, start string, handler StreamHandler) error {
	// Ensure consumer group exists
	if err := rb.CreateConsumerGroup(ctx, stream, group, start); err != nil {
		return err
	}

	rb.logger.Info("starting stream reader",
		zap.String("stream", stream), zap.String("group", group), zap.String("consumer", consumer))

	for {
		if err := ctx.Err(); err != nil {
			rb.logger.Info("stream reader stopping", zap.String("stream", stream))
			return err
		}

		result := rb.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    time.Second,
		})

		if err := result.Err(); err != nil {
			if errors.Is(err, redis.Nil) {
				// No messages available, continue
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			rb.logger.Warn("error reading stream", zap.String("stream", stream), zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(rb.retryDelay):
			}
			continue
		}

		for _, st := range result.Val() {
			for _, message := range st.Messages {
				streamMsg := StreamMessage{
					ID:     message.ID,
					Fields: make(map[string]string, len(message.Values)),
				}

				// Convert fields to string map
				for key, value := range message.Values {
					if strValue, ok := value.(string); ok {
						streamMsg.Fields[key] = strValue
					}
				}

				if err := handler(ctx, streamMsg); err != nil {
					rb.logger.Warn("error processing message", zap.String("id", message.ID), zap.Error(err))
					continue
				}

				if err := rb.client.XAck(ctx, st.Stream, group, message.ID).Err(); err != nil {
					rb.logger.Warn("error acknowledging message", zap.String("id", message.ID), zap.Error(err))
				}
			}
		}
	}
}

// ReadNotifications reads from the notifications stream
func (rb *RedisBus) ReadNotifications(ctx context.Context, group, consumer string, handler func(ctx context.Context, n Notification) error) error {
	return rb.ReadStream(ctx, StreamNotifications, group, consumer, StartOldest, func(ctx context.Context, message StreamMessage) error {
		n := Notification{
			Kind:    message.Fields["kind"],
			Message: message.Fields["message"],
			Source:  message.Fields["source"],
		}
		if ts, err := parseTimestamp(message.Fields["timestamp"]); err == nil {
			n.Timestamp = ts
		}
		return handler(ctx, n)
	})
}

// ReadCaseChanges reads from the case changes stream. A new group starts at
// the end of the stream and never sees earlier changes.
func (rb *RedisBus) ReadCaseChanges(ctx context.Context, group, consumer string, handler func(ctx context.Context, c CaseChange) error) error {
	return rb.ReadStream(ctx, StreamCaseChanges, group, consumer, StartNew, func(ctx context.Context, message StreamMessage) error {
		c := CaseChange{
			CaseID: message.Fields["case_id"],
			Action: message.Fields["action"],
			Actor:  message.Fields["actor"],
			Origin: message.Fields["origin"],
		}
		if raw := message.Fields["fields"]; raw != "" && raw != "null" {
			var fields map[string]string
			if err := json.Unmarshal([]byte(raw), &fields); err == nil {
				c.Fields = fields
			}
		}
		if ts, err := parseTimestamp(message.Fields["timestamp"]); err == nil {
			c.Timestamp = ts
		}
		return handler(ctx, c)
	})
}

// CleanupOldMessages trims a stream to at most maxLen entries
func (rb *RedisBus) CleanupOldMessages(ctx context.Context, stream string, maxLen int64) error {
	if err := rb.client.XTrimMaxLen(ctx, stream, maxLen).Err(); err != nil {
		return fmt.Errorf("failed to trim stream %s: %w", stream, err)
	}
	return nil
}

// parseTimestamp parses a timestamp string to unix seconds
func parseTimestamp(timestamp string) (int64, error) {
	if timestamp == "" {
		return time.Now().Unix(), nil
	}

	// Try numeric epoch (seconds or milliseconds)
	if n, err := strconv.ParseInt(timestamp, 10, 64); err == nil {
		// 13+ digits are milliseconds
		if n > 1_000_000_000_000 {
			return n / 1000, nil
		}
		return n, nil
	}

	if ts, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		return ts.Unix(), nil
	}

	return time.Now().Unix(), fmt.Errorf("unable to parse timestamp: %s", timestamp)
}

// HealthCheck performs a health check on the Redis connection
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}

// GetStats returns stream lengths
func (rb *RedisBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"type": "redis"}
	for _, stream := range []string{StreamNotifications, StreamCaseChanges} {
		n, err := rb.client.XLen(ctx, stream).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get length of %s: %w", stream, err)
		}
		stats[stream] = n
	}
	return stats, nil
}
