package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rollcall/internal/config"
	"rollcall/internal/notify"
	"rollcall/internal/store"
)

// Worker drains queued notification events and hands them to the delivery
// system. Delivery itself (push, email, in-app storage) lives outside this
// service; the drain logs each event it forwards.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	sink := notify.NewRedisSink(redisClient.Client, "rollcall:notifications")

	events, err := sink.Consume(ctx)
	if err != nil {
		log.Fatalf("notification consume init failed: %v", err)
	}

	log.Println("worker started, waiting for notifications...")
	for evt := range events {
		log.Printf("deliver %s to %s: %s", evt.Type, evt.Recipient, evt.Title)
	}

	log.Println("worker stopped")
}
