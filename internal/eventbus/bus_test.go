package eventbus

import (
	"testing"
	"time"
)

type event struct {
	Seq int
}

// TestBasicPublishSubscribe verifies channel delivery.
func TestBasicPublishSubscribe(t *testing.T) {
	bus := New[event]()
	defer bus.Close()

	ch := make(chan event, 10)
	if err := bus.Subscribe("recorder", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	bus.Publish(event{Seq: 1})

	select {
	case got := <-ch:
		if got.Seq != 1 {
			t.Errorf("Expected seq 1, got %d", got.Seq)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

// TestNonBlockingPublish verifies Publish never blocks on a full subscriber.
func TestNonBlockingPublish(t *testing.T) {
	bus := New[event]()
	defer bus.Close()

	ch := make(chan event, 1)
	bus.Subscribe("slow", ch)

	done := make(chan bool)
	go func() {
		bus.Publish(event{Seq: 1}) // fills the buffer
		bus.Publish(event{Seq: 2}) // must drop, not block
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked (should be non-blocking)")
	}

	got := <-ch
	if got.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", got.Seq)
	}

	stats := bus.Stats()
	sub := stats.Subscribers["slow"]
	if sub.Sent != 1 {
		t.Errorf("Expected 1 sent, got %d", sub.Sent)
	}
	if sub.Dropped != 1 {
		t.Errorf("Expected 1 dropped, got %d", sub.Dropped)
	}
}

// TestLatestSubscriber verifies latest-only semantics.
func TestLatestSubscriber(t *testing.T) {
	bus := New[event]()
	defer bus.Close()

	recv, err := bus.SubscribeLatest("prompt")
	if err != nil {
		t.Fatalf("SubscribeLatest failed: %v", err)
	}

	if _, ok := recv.TryReceive(); ok {
		t.Error("TryReceive returned event before any publish")
	}

	bus.Publish(event{Seq: 1})
	bus.Publish(event{Seq: 2})
	bus.Publish(event{Seq: 3})

	got, ok := recv.TryReceive()
	if !ok {
		t.Fatal("TryReceive returned nothing after publishes")
	}
	if got.Seq != 3 {
		t.Errorf("Expected latest seq 3, got %d", got.Seq)
	}

	// Same event is not handed out twice.
	if _, ok := recv.TryReceive(); ok {
		t.Error("TryReceive handed out the same event twice")
	}
}

// TestDuplicateSubscriber verifies id uniqueness across both modes.
func TestDuplicateSubscriber(t *testing.T) {
	bus := New[event]()
	defer bus.Close()

	ch := make(chan event, 1)
	if err := bus.Subscribe("x", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := bus.Subscribe("x", ch); err != ErrSubscriberExists {
		t.Errorf("duplicate Subscribe = %v, want ErrSubscriberExists", err)
	}
	if _, err := bus.SubscribeLatest("x"); err != ErrSubscriberExists {
		t.Errorf("duplicate SubscribeLatest = %v, want ErrSubscriberExists", err)
	}
}

// TestClosedBus verifies operations after Close.
func TestClosedBus(t *testing.T) {
	bus := New[event]()
	bus.Close()
	bus.Close() // idempotent

	if err := bus.Subscribe("late", make(chan event, 1)); err != ErrBusClosed {
		t.Errorf("Subscribe after Close = %v, want ErrBusClosed", err)
	}
	bus.Publish(event{Seq: 1}) // no-op, must not panic

	if got := bus.Stats().Published; got != 0 {
		t.Errorf("Published after Close = %d, want 0", got)
	}
}
