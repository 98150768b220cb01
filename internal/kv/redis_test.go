package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestClient(t *testing.T) *Client {
	t.Helper()
	s := miniredis.RunT(t)
	client, err := NewClient("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create kv client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGetSet(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	_, found, err := client.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if found {
		t.Error("missing key reported as found")
	}

	if err := client.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, found, err := client.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if value != "v" {
		t.Errorf("got %q, want v", value)
	}
}

func TestRPushLRange(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	if err := client.RPush(ctx, "list", "a"); err != nil {
		t.Fatalf("rpush: %v", err)
	}
	if err := client.RPush(ctx, "list", "b", "c"); err != nil {
		t.Fatalf("rpush: %v", err)
	}

	values, err := client.LRange(ctx, "list")
	if err != nil {
		t.Fatalf("lrange: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(values) != len(want) {
		t.Fatalf("got %v, want %v", values, want)
	}
	for i := range want {
		if values[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, values[i], want[i])
		}
	}
}

func TestPublishSubscribe(t *testing.T) {
	client := setupTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, stop, err := client.Subscribe(ctx, "chan")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	if err := client.Publish(ctx, "chan", "hello"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case payload := <-messages:
		if payload != "hello" {
			t.Errorf("got %q, want hello", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}
