package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestEnqueueRejectsUnknownTask(t *testing.T) {
	bus := NewBus(zap.NewNop(), BusConfig{})
	err := bus.Enqueue(context.Background(), "nope", Payload{})
	if !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
}

func TestEnqueueAfterDrain(t *testing.T) {
	bus := NewBus(zap.NewNop(), BusConfig{})
	bus.Register("task", func(context.Context, Payload) error { return nil })
	bus.Drain()

	err := bus.Enqueue(context.Background(), "task", Payload{})
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestBusDispatchesToHandler(t *testing.T) {
	bus := NewBus(zap.NewNop(), BusConfig{Buffer: 8})

	var mu sync.Mutex
	var got []Payload
	done := make(chan struct{})
	bus.Register("task", func(_ context.Context, payload Payload) error {
		mu.Lock()
		got = append(got, payload)
		count := len(got)
		mu.Unlock()
		if count == 3 {
			close(done)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx, 2)

	for i := int64(0); i < 3; i++ {
		if err := bus.Enqueue(ctx, "task", Payload{JobID: 1, Offset: i * 50}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not receive all messages")
	}

	mu.Lock()
	defer mu.Unlock()
	offsets := map[int64]bool{}
	for _, payload := range got {
		offsets[payload.Offset] = true
	}
	if !offsets[0] || !offsets[50] || !offsets[100] {
		t.Fatalf("unexpected payload offsets: %+v", got)
	}
}

func TestHandlerErrorDoesNotStopWorkers(t *testing.T) {
	bus := NewBus(zap.NewNop(), BusConfig{Buffer: 8})

	done := make(chan struct{})
	bus.Register("fails", func(context.Context, Payload) error { return errors.New("boom") })
	bus.Register("succeeds", func(context.Context, Payload) error {
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx, 1)

	if err := bus.Enqueue(ctx, "fails", Payload{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := bus.Enqueue(ctx, "succeeds", Payload{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker died after a failing task")
	}
}
