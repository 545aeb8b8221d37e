package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jfilter/timetiles-sub015/internal/observability/metrics"
)

// Bus is a channel-backed Queue with a fixed worker pool.
type Bus struct {
	log     *zap.Logger
	ch      chan Message
	timeout time.Duration
	metrics *metrics.QueueMetrics

	mu       sync.RWMutex
	handlers map[string]Handler
	closed   bool

	wg sync.WaitGroup
}

type BusConfig struct {
	Buffer      int
	Workers     int
	TaskTimeout time.Duration
	Metrics     *metrics.QueueMetrics
}

func (c BusConfig) withDefaults() BusConfig {
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 5 * time.Minute
	}
	return c
}

func NewBus(log *zap.Logger, cfg BusConfig) *Bus {
	cfg = cfg.withDefaults()
	return &Bus{
		log:      log.Named("queue"),
		ch:       make(chan Message, cfg.Buffer),
		timeout:  cfg.TaskTimeout,
		metrics:  cfg.Metrics,
		handlers: make(map[string]Handler),
	}
}

// Register installs the handler for a task name. Later registrations for the
// same task replace earlier ones.
func (b *Bus) Register(task string, handler Handler) {
	b.mu.Lock()
	b.handlers[task] = handler
	b.mu.Unlock()
}

// Enqueue submits a task invocation. Unknown tasks are rejected at enqueue
// time so a typo never sits silently in the buffer.
func (b *Bus) Enqueue(ctx context.Context, task string, payload Payload) error {
	b.mu.RLock()
	_, known := b.handlers[task]
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrQueueClosed
	}
	if !known {
		return ErrUnknownTask
	}

	msg := Message{ID: uuid.New(), Task: task, Payload: payload}
	select {
	case b.ch <- msg:
		b.metrics.IncEnqueued(task)
		b.metrics.SetDepth(len(b.ch))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (b *Bus) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.work(ctx, i)
	}
}

// Drain marks the bus closed and waits for in-flight work to finish.
func (b *Bus) Drain() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bus) work(ctx context.Context, id int) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.ch:
			b.dispatch(ctx, msg)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, msg Message) {
	b.mu.RLock()
	handler := b.handlers[msg.Task]
	b.mu.RUnlock()
	if handler == nil {
		b.log.Error("no handler for task", zap.String("task", msg.Task))
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	b.metrics.SetDepth(len(b.ch))
	started := time.Now()
	err := handler(taskCtx, msg.Payload)
	b.metrics.ObserveTask(msg.Task, time.Since(started), err)
	if err != nil {
		b.log.Warn("task failed",
			zap.String("task", msg.Task),
			zap.String("message_id", msg.ID.String()),
			zap.String("job_id", msg.Payload.JobID.String()),
			zap.Duration("duration", time.Since(started)),
			zap.Error(err))
		return
	}
	b.log.Debug("task completed",
		zap.String("task", msg.Task),
		zap.String("job_id", msg.Payload.JobID.String()),
		zap.Duration("duration", time.Since(started)))
}
