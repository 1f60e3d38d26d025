// Package notify is the boundary to the notification system. The protocol
// only publishes fire-and-forget events; delivery and storage belong to an
// external collaborator (see cmd/worker for the drain).
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event types published by the protocol.
const (
	TypeManualRequest  = "manual_request"
	TypeRequestDecided = "manual_request_decided"
)

// Event is a single notification to be delivered to a recipient.
type Event struct {
	Type      string    `json:"type"`
	Recipient string    `json:"recipient"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	RefID     string    `json:"refId,omitempty"`
	RefType   string    `json:"refType,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sink accepts events for asynchronous delivery.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

// Publish pushes an event through a sink, swallowing and logging any failure.
// Notification loss never fails the operation that produced the event.
func Publish(ctx context.Context, sink Sink, evt Event) {
	if sink == nil {
		return
	}
	if err := sink.Publish(ctx, evt); err != nil {
		log.Printf("notify: publish %s to %s failed: %v", evt.Type, evt.Recipient, err)
	}
}

// RedisSink queues events on a Redis list for cmd/worker to drain.
type RedisSink struct {
	client *redis.Client
	key    string
}

// NewRedisSink builds a sink using LPUSH/BRPOP semantics.
func NewRedisSink(client *redis.Client, key string) *RedisSink {
	if key == "" {
		key = "rollcall:notifications"
	}
	return &RedisSink{client: client, key: key}
}

// Publish enqueues an event.
func (s *RedisSink) Publish(ctx context.Context, evt Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.client.LPush(ctx, s.key, b).Err()
}

// Consume streams queued events until the context is cancelled.
func (s *RedisSink) Consume(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			res, err := s.client.BRPop(ctx, 5*time.Second, s.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				var evt Event
				if err := json.Unmarshal([]byte(res[1]), &evt); err == nil {
					out <- evt
				}
			}
		}
	}()
	return out, nil
}

// LogSink writes events to the process log; used when Redis is not configured.
type LogSink struct{}

// Publish logs the event.
func (LogSink) Publish(_ context.Context, evt Event) error {
	log.Printf("notify: %s -> %s: %s", evt.Type, evt.Recipient, evt.Title)
	return nil
}
