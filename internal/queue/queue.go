// Package queue is the in-process job queue the pipeline stages run on.
//
// Stages never block inside a handler waiting for another stage; each handler
// performs one bounded unit of work and either re-enqueues itself or hands
// control back to the transition orchestrator.
package queue

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// Payload is the input every stage task receives. Offset is only meaningful
// for batch-resumable tasks.
type Payload struct {
	JobID  snowflake.ID `json:"job_id"`
	Offset int64        `json:"offset"`
}

// Message is one enqueued task invocation.
type Message struct {
	ID      uuid.UUID
	Task    string
	Payload Payload
}

// Handler executes one task invocation.
type Handler func(ctx context.Context, payload Payload) error

// Queue enqueues tasks fire-and-forget.
type Queue interface {
	Enqueue(ctx context.Context, task string, payload Payload) error
}

// Registry maps task names to handlers. Registration happens during fx
// startup, before the workers begin pulling messages.
type Registry interface {
	Register(task string, handler Handler)
}

var (
	ErrUnknownTask = errors.New("queue: unknown task")
	ErrQueueClosed = errors.New("queue: closed")
)
