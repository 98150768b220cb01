package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"typetalk/api/internal/kv"
)

func testEvent(commentID, text string) Event {
	return Event{
		Question: EventRef{ID: "q1", Text: "what type am I"},
		Comment:  EventRef{ID: commentID, Text: text},
		Time:     time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC),
	}
}

func setupTestKV(t *testing.T) *kv.Client {
	t.Helper()
	s := miniredis.RunT(t)
	client, err := kv.NewClient("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create kv client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNotifySequentialOrder(t *testing.T) {
	for _, legacy := range []bool{false, true} {
		name := "atomic"
		if legacy {
			name = "legacy"
		}
		t.Run(name, func(t *testing.T) {
			relay := NewRelay(setupTestKV(t), legacy, nil)
			ctx := context.Background()

			if err := relay.Notify(ctx, "author1", testEvent("c1", "first")); err != nil {
				t.Fatalf("notify E1: %v", err)
			}
			events, err := relay.Pending(ctx, "author1")
			if err != nil {
				t.Fatalf("pending after E1: %v", err)
			}
			if len(events) != 1 || events[0].Comment.ID != "c1" {
				t.Fatalf("after E1 got %v, want [c1]", events)
			}

			if err := relay.Notify(ctx, "author1", testEvent("c2", "second")); err != nil {
				t.Fatalf("notify E2: %v", err)
			}
			events, err = relay.Pending(ctx, "author1")
			if err != nil {
				t.Fatalf("pending after E2: %v", err)
			}
			if len(events) != 2 || events[0].Comment.ID != "c1" || events[1].Comment.ID != "c2" {
				t.Fatalf("after E2 got %v, want [c1 c2] in order", events)
			}
		})
	}
}

func TestPendingEmptyForUnknownRecipient(t *testing.T) {
	relay := NewRelay(setupTestKV(t), false, nil)
	events, err := relay.Pending(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %v, want empty", events)
	}
}

func TestLegacyMalformedStateDiscarded(t *testing.T) {
	client := setupTestKV(t)
	relay := NewRelay(client, true, nil)
	ctx := context.Background()

	if err := client.Set(ctx, Key("author1"), "{not an array"); err != nil {
		t.Fatalf("seed malformed state: %v", err)
	}

	events, err := relay.Pending(ctx, "author1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("malformed state surfaced %v, want empty", events)
	}

	// The next notification restarts the list instead of failing.
	if err := relay.Notify(ctx, "author1", testEvent("c1", "fresh")); err != nil {
		t.Fatalf("notify over malformed state: %v", err)
	}
	events, err = relay.Pending(ctx, "author1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(events) != 1 || events[0].Comment.ID != "c1" {
		t.Errorf("got %v, want [c1]", events)
	}
}

func TestSubscribeDeliversPublishedEvent(t *testing.T) {
	relay := NewRelay(setupTestKV(t), false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, stop, err := relay.Subscribe(ctx, "author1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	if err := relay.Notify(ctx, "author1", testEvent("c1", "live")); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case event := <-events:
		if event.Comment.ID != "c1" {
			t.Errorf("got %v, want c1", event.Comment.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

// gateKV holds the first N readers at a barrier until all of them arrive,
// forcing the read-before-either-write interleaving. Later reads pass through.
type gateKV struct {
	mu      sync.Mutex
	data    map[string]string
	lists   map[string][]string
	barrier *sync.WaitGroup
	gated   int
}

func newGateKV(readers int) *gateKV {
	barrier := &sync.WaitGroup{}
	barrier.Add(readers)
	return &gateKV{
		data:    make(map[string]string),
		lists:   make(map[string][]string),
		barrier: barrier,
		gated:   readers,
	}
}

func (g *gateKV) Get(_ context.Context, key string) (string, bool, error) {
	g.mu.Lock()
	value, ok := g.data[key]
	gated := g.gated > 0
	if gated {
		g.gated--
	}
	g.mu.Unlock()
	if gated {
		g.barrier.Done()
		g.barrier.Wait()
	}
	return value, ok, nil
}

func (g *gateKV) Set(_ context.Context, key, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.data[key] = value
	return nil
}

func (g *gateKV) RPush(_ context.Context, key string, values ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lists[key] = append(g.lists[key], values...)
	return nil
}

func (g *gateKV) LRange(_ context.Context, key string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.lists[key]...), nil
}

func (g *gateKV) Publish(context.Context, string, string) error { return nil }

func (g *gateKV) Subscribe(context.Context, string) (<-chan string, func(), error) {
	ch := make(chan string)
	close(ch)
	return ch, func() {}, nil
}

// TestLegacyAppendLosesConcurrentUpdate pins down the historical hazard: two
// notifications that both read the stored list before either writes it back
// leave only one of them stored. Regression guard, not a correctness goal.
func TestLegacyAppendLosesConcurrentUpdate(t *testing.T) {
	gate := newGateKV(2)
	relay := NewRelay(gate, true, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"c1", "c2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := relay.Notify(ctx, "author1", testEvent(id, id)); err != nil {
				t.Errorf("notify %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	events, err := relay.Pending(ctx, "author1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("stored %d events, want exactly 1 (the lost update)", len(events))
	}
	if id := events[0].Comment.ID; id != "c1" && id != "c2" {
		t.Errorf("surviving event %q, want c1 or c2", id)
	}
}

// TestAtomicAppendKeepsConcurrentUpdates shows the default mode does not lose
// events under the same contention.
func TestAtomicAppendKeepsConcurrentUpdates(t *testing.T) {
	gate := newGateKV(2)
	relay := NewRelay(gate, false, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"c1", "c2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := relay.Notify(ctx, "author1", testEvent(id, id)); err != nil {
				t.Errorf("notify %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	events, err := relay.Pending(ctx, "author1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("stored %d events, want both", len(events))
	}
}
