// Package queue dispatches analysis runs to background workers.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrFull is returned by Enqueue when the in-process buffer is full.
	ErrFull = eris.New("queue: buffer full")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = eris.New("queue: closed")
)

// Task asks a worker to analyze one assessment.
type Task struct {
	AssessmentID string    `json:"assessment_id"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	Source       string    `json:"source,omitempty"`
}

// Handler processes a single task.
type Handler func(ctx context.Context, t Task) error

// ErrorHook observes a failed task.
type ErrorHook func(t Task, err error)

// Queue hands tasks from intake to workers.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
	// Consume runs workers until ctx is cancelled or the queue is closed.
	// Cancelling ctx stops intake of new tasks; handlers already running
	// keep their context for the queue's drain period.
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// DefaultDrain is how long in-flight handlers may run after Consume's
// context is cancelled.
const DefaultDrain = 30 * time.Second

// NewTask builds a task for an assessment.
func NewTask(assessmentID, source string) Task {
	return Task{AssessmentID: assessmentID, EnqueuedAt: time.Now().UTC(), Source: source}
}

// safeHandle runs h and converts a panic into an error so one task cannot
// take a worker down.
func safeHandle(ctx context.Context, h Handler, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.New(fmt.Sprintf("queue: handler panic: %v", r))
		}
	}()
	return h(ctx, t)
}

// drainContext returns a context for handlers that outlives ctx by grace.
// The returned cancel must be called once the workers have returned.
func drainContext(ctx context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	hctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		select {
		case <-hctx.Done():
			return
		case <-ctx.Done():
		}
		t := time.NewTimer(grace)
		defer t.Stop()
		select {
		case <-t.C:
			zap.L().Warn("queue: drain period elapsed, cancelling in-flight tasks", zap.Duration("grace", grace))
			cancel()
		case <-hctx.Done():
		}
	}()
	return hctx, cancel
}

func reportFailure(hook ErrorHook, driver string, t Task, err error) {
	zap.L().Error("queue: task failed",
		zap.String("driver", driver),
		zap.String("assessment_id", t.AssessmentID),
		zap.Error(err),
	)
	if hook != nil {
		hook(t, err)
	}
}
