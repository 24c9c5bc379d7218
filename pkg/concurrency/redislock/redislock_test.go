package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// TestLockerIntegration requires a running Redis; skips otherwise.
func TestLockerIntegration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	defer client.Close()

	l := New(client, "redislock-test:", time.Second)
	key := "rx-1"

	unlock, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		unlock2, err := l.Lock(context.Background(), key)
		if err != nil {
			return
		}
		unlock2()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while first still held")
	case <-time.After(100 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second Lock never acquired after unlock")
	}
}

// TestLockerTimesOutWhenContended confirms Lock respects ctx cancellation
// rather than polling forever.
func TestLockerTimesOutWhenContended(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	defer client.Close()

	l := New(client, "redislock-test:", time.Second)
	key := "rx-timeout"

	unlock, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	timeoutCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(timeoutCtx, key)
	if err == nil {
		t.Fatal("expected Lock to fail under ctx deadline while contended")
	}
}
