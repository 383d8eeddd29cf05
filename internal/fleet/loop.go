// ABOUTME: Single-threaded cooperative event loop that serializes all fleet mutations.
// ABOUTME: Commands, session events and async completions are posted and run in order.

package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrLoopStopped is returned when work is posted to a loop that has exited.
var ErrLoopStopped = errors.New("control loop stopped")

// DefaultQueueSize is the posted-work buffer used when none is given.
const DefaultQueueSize = 256

// Loop runs posted functions one at a time on a single goroutine.
type Loop struct {
	queue    chan func()
	stopped  chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// NewLoop creates a Loop with room for size pending functions.
func NewLoop(size int, logger *slog.Logger) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		queue:   make(chan func(), size),
		stopped: make(chan struct{}),
		logger:  logger.With("component", "loop"),
	}
}

// Post enqueues fn. It blocks while the queue is full and returns false if
// the loop has stopped. Never call Post from inside a posted function with a
// full queue; post from a goroutine instead.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}

	select {
	case l.queue <- fn:
		return true
	case <-l.stopped:
		return false
	}
}

// Do posts fn and waits until it has run.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrLoopStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrLoopStopped
	}
}

// Run executes posted functions until ctx is cancelled. Functions still
// queued when ctx ends are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.stopped) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.queue:
			l.call(fn)
		}
	}
}

// Stopped is closed once Run has returned.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}

func (l *Loop) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("recovered panic in control loop",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
