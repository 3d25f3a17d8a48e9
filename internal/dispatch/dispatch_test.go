package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"
)

// collectHandler records notifications in arrival order.
type collectHandler struct {
	mu   sync.Mutex
	seen []Notification
}

func (h *collectHandler) Handle(_ context.Context, n Notification) {
	h.mu.Lock()
	h.seen = append(h.seen, n)
	h.mu.Unlock()
}

func (h *collectHandler) snapshot() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Notification, len(h.seen))
	copy(out, h.seen)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestDeliveryPreservesOrder(t *testing.T) {
	handler := &collectHandler{}
	d := New(handler, 64)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	for i := 0; i < 20; i++ {
		on := i%2 == 0
		if !d.Enqueue(CapabilityChanged{DeviceID: "d1", Value: on}) {
			t.Fatalf("Enqueue %d rejected", i)
		}
	}

	waitFor(t, time.Second, func() bool { return len(handler.snapshot()) == 20 })

	for i, n := range handler.snapshot() {
		cc, ok := n.(CapabilityChanged)
		if !ok {
			t.Fatalf("notification %d is %T", i, n)
		}
		if cc.Value != (i%2 == 0) {
			t.Errorf("notification %d out of order: value=%v", i, cc.Value)
		}
	}
}

func TestQueueFullDrops(t *testing.T) {
	// No consumer running: the queue fills up and Enqueue must not block.
	d := New(&collectHandler{}, 2)

	if !d.Enqueue(DeviceCreated{DeviceID: "a"}) {
		t.Fatal("first enqueue rejected")
	}
	if !d.Enqueue(DeviceCreated{DeviceID: "b"}) {
		t.Fatal("second enqueue rejected")
	}
	if d.Enqueue(DeviceCreated{DeviceID: "c"}) {
		t.Error("expected third enqueue to be dropped")
	}
	if d.Dropped() != 1 {
		t.Errorf("Dropped = %d, expected 1", d.Dropped())
	}
	if d.QueueDepth() != 2 {
		t.Errorf("QueueDepth = %d, expected 2", d.QueueDepth())
	}
}

func TestPanicDoesNotKillConsumer(t *testing.T) {
	var mu sync.Mutex
	var delivered []string

	handler := HandlerFunc(func(_ context.Context, n Notification) {
		cc := n.(CapabilityChanged)
		if cc.DeviceID == "boom" {
			panic("handler exploded")
		}
		mu.Lock()
		delivered = append(delivered, cc.DeviceID)
		mu.Unlock()
	})

	d := New(handler, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Enqueue(CapabilityChanged{DeviceID: "ok-1"})
	d.Enqueue(CapabilityChanged{DeviceID: "boom"})
	d.Enqueue(CapabilityChanged{DeviceID: "ok-2"})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if delivered[0] != "ok-1" || delivered[1] != "ok-2" {
		t.Errorf("delivered = %v", delivered)
	}
}

func TestStopViaContext(t *testing.T) {
	d := New(&collectHandler{}, 8)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	cancel()

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not exit after cancel")
	}
}
