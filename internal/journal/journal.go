// ABOUTME: Journal event types and the Recorder interface used by the fleet
// ABOUTME: Defines event kinds, list filters, and the no-op recorder

package journal

import (
	"context"
	"time"
)

// Kind classifies a journal event.
type Kind string

const (
	KindSpawnAttempt  Kind = "spawn_attempt"
	KindConnected     Kind = "connected"
	KindConnectFailed Kind = "connect_failed"
	KindDisconnected  Kind = "disconnected"
	KindSessionError  Kind = "session_error"
	KindCommand       Kind = "command"
)

// FleetWide is the AgentID of events not tied to one agent.
const FleetWide = -1

// Event is one journal entry.
type Event struct {
	ID        string    // UUID v4, generated if empty
	RunID     string    // process run that produced the event
	AgentID   int       // spawn index, or FleetWide
	Kind      Kind      // what happened
	Detail    string    // free-form context (command line, error text)
	CreatedAt time.Time // generated if zero
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	RunID   string
	AgentID *int
	Kind    Kind
	Limit   int // default 100, max 1000
}

// Recorder accepts journal events.
type Recorder interface {
	Record(ctx context.Context, e *Event) error
}

// Nop is a Recorder that discards events.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, *Event) error { return nil }
