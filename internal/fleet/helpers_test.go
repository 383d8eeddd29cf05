// ABOUTME: Shared helpers for fleet tests.
// ABOUTME: Provides a running loop, a recording reporter and an in-memory journal.

package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/2389/coven-fleet/internal/journal"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	loop, _ := startStoppableLoop(t)
	return loop
}

// startStoppableLoop also returns a func that stops the loop and waits for it.
func startStoppableLoop(t *testing.T) (*Loop, func()) {
	t.Helper()
	loop := NewLoop(0, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	stop := func() {
		cancel()
		<-loop.Stopped()
	}
	t.Cleanup(stop)
	return loop, stop
}

type recordingReporter struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingReporter) add(level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, level+": "+fmt.Sprintf(format, args...))
}

func (r *recordingReporter) Info(format string, args ...any)    { r.add("info", format, args...) }
func (r *recordingReporter) Success(format string, args ...any) { r.add("success", format, args...) }
func (r *recordingReporter) Error(format string, args ...any)   { r.add("error", format, args...) }

func (r *recordingReporter) contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range r.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

type memoryJournal struct {
	mu     sync.Mutex
	events []journal.Event
}

func (m *memoryJournal) Record(_ context.Context, e *journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *memoryJournal) kinds(agentID int) []journal.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kinds []journal.Kind
	for _, e := range m.events {
		if e.AgentID == agentID {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}
