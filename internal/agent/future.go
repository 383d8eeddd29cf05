// ABOUTME: Future carries the eventual result of an asynchronous agent action.
// ABOUTME: Actions run on their own goroutine; callers wait or select on Done.

package agent

import "context"

// Future is the pending result of an action started with Go.
type Future struct {
	done chan struct{}
	err  error
}

// Go runs fn on a new goroutine and returns its Future.
func Go(ctx context.Context, fn func(ctx context.Context) error) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.err = fn(ctx)
	}()
	return f
}

// Resolved returns a Future that is already complete with err.
func Resolved(err error) *Future {
	f := &Future{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// Done is closed when the action finishes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the action's error. It is only meaningful after Done closes.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the action finishes or ctx ends.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
