package notify

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisClientForTest(t *testing.T) *redis.Client {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return client
}

func TestRedisSinkRoundTrip(t *testing.T) {
	client := newRedisClientForTest(t)
	sink := NewRedisSink(client, "test:notifications")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	want := Event{
		Type:      TypeManualRequest,
		Recipient: "lect-1",
		Title:     "New Manual Attendance Request",
		Body:      "U2020/0001 requested manual attendance for Week 3",
		RefID:     "req-1",
		RefType:   "ManualRequest",
		CreatedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	if err := sink.Publish(ctx, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	events, err := sink.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	select {
	case got := <-events:
		if got != want {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishSwallowsFailures(t *testing.T) {
	client := newRedisClientForTest(t)
	client.Close() // force publish errors

	sink := NewRedisSink(client, "test:notifications")
	// Must not panic or propagate.
	Publish(context.Background(), sink, Event{Type: TypeRequestDecided, Recipient: "U2020/0001"})
}

func TestPublishNilSink(t *testing.T) {
	Publish(context.Background(), nil, Event{})
}

func TestLogSink(t *testing.T) {
	if err := (LogSink{}).Publish(context.Background(), Event{Type: TypeManualRequest, Recipient: "lect-1"}); err != nil {
		t.Fatalf("LogSink.Publish: %v", err)
	}
}
