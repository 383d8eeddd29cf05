// ABOUTME: Tests for the agent registry.
// ABOUTME: Validates registration, idempotent removal, lookup, and ordered snapshots.

package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
)

func newTestHandle(id int) *Handle {
	return NewHandle(id, fmt.Sprintf("TestBot_%d", id), slog.Default())
}

// TestManagerRegister tests agent registration.
func TestManagerRegister(t *testing.T) {
	t.Run("registers agent successfully", func(t *testing.T) {
		manager := NewManager(slog.Default())

		if err := manager.Register(newTestHandle(0)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		agents := manager.ListAgents()
		if len(agents) != 1 {
			t.Fatalf("expected 1 agent, got %d", len(agents))
		}
		if agents[0].ID != 0 {
			t.Errorf("expected agent 0, got %d", agents[0].ID)
		}
		if agents[0].Name != "TestBot_0" {
			t.Errorf("expected 'TestBot_0', got '%s'", agents[0].Name)
		}
	})

	t.Run("returns error for duplicate agent ID", func(t *testing.T) {
		manager := NewManager(slog.Default())
		first := newTestHandle(3)
		second := NewHandle(3, "Impostor", slog.Default())

		if err := manager.Register(first); err != nil {
			t.Fatalf("unexpected error on first register: %v", err)
		}

		err := manager.Register(second)
		if err != ErrAgentAlreadyRegistered {
			t.Errorf("expected ErrAgentAlreadyRegistered, got %v", err)
		}

		got, _ := manager.GetAgent(3)
		if got != first {
			t.Error("duplicate registration replaced the original agent")
		}
		if manager.Len() != 1 {
			t.Errorf("expected 1 agent, got %d", manager.Len())
		}
	})
}

// TestManagerUnregister tests agent removal.
func TestManagerUnregister(t *testing.T) {
	t.Run("removes registered agent", func(t *testing.T) {
		manager := NewManager(slog.Default())
		_ = manager.Register(newTestHandle(1))

		if !manager.Unregister(1) {
			t.Error("expected Unregister to report removal")
		}
		if _, ok := manager.GetAgent(1); ok {
			t.Error("agent still present after Unregister")
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		manager := NewManager(slog.Default())
		_ = manager.Register(newTestHandle(1))

		manager.Unregister(1)
		if manager.Unregister(1) {
			t.Error("second Unregister reported a removal")
		}
		if manager.Unregister(42) {
			t.Error("Unregister of unknown ID reported a removal")
		}
		if manager.Len() != 0 {
			t.Errorf("expected empty manager, got %d", manager.Len())
		}
	})

	t.Run("id can be looked up as not found afterwards", func(t *testing.T) {
		manager := NewManager(slog.Default())
		_ = manager.Register(newTestHandle(2))
		manager.Unregister(2)

		if _, ok := manager.GetAgent(2); ok {
			t.Error("expected not found")
		}
	})
}

// TestManagerListAgents tests ordered snapshots.
func TestManagerListAgents(t *testing.T) {
	t.Run("orders by ascending id regardless of registration order", func(t *testing.T) {
		manager := NewManager(slog.Default())
		for _, id := range []int{4, 0, 2, 1, 3} {
			if err := manager.Register(newTestHandle(id)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		ids := manager.IDs()
		want := []int{0, 1, 2, 3, 4}
		if fmt.Sprint(ids) != fmt.Sprint(want) {
			t.Errorf("expected %v, got %v", want, ids)
		}
	})

	t.Run("snapshot is unaffected by later mutation", func(t *testing.T) {
		manager := NewManager(slog.Default())
		_ = manager.Register(newTestHandle(0))
		_ = manager.Register(newTestHandle(1))

		snapshot := manager.ListAgents()
		manager.Unregister(0)
		_ = manager.Register(newTestHandle(5))

		if len(snapshot) != 2 || snapshot[0].ID != 0 || snapshot[1].ID != 1 {
			t.Errorf("snapshot changed: %v", snapshot)
		}
	})

	t.Run("empty manager lists nothing", func(t *testing.T) {
		manager := NewManager(nil)
		if agents := manager.ListAgents(); len(agents) != 0 {
			t.Errorf("expected no agents, got %d", len(agents))
		}
	})
}

// TestManagerConcurrentAccess exercises the registry from many goroutines.
func TestManagerConcurrentAccess(t *testing.T) {
	manager := NewManager(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(id int) {
			defer wg.Done()
			_ = manager.Register(newTestHandle(id))
		}(i)
		go func(id int) {
			defer wg.Done()
			manager.Unregister(id)
		}(i)
		go func() {
			defer wg.Done()
			agents := manager.ListAgents()
			for j := 1; j < len(agents); j++ {
				if agents[j-1].ID >= agents[j].ID {
					t.Errorf("snapshot out of order at %d", j)
				}
			}
		}()
	}
	wg.Wait()

	for _, agent := range manager.ListAgents() {
		if got, ok := manager.GetAgent(agent.ID); !ok || got != agent {
			t.Errorf("agent %d inconsistent", agent.ID)
		}
	}
}

// TestManagerLookup tests lookups that report absent agents as errors.
func TestManagerLookup(t *testing.T) {
	manager := NewManager(slog.Default())
	agent := newTestHandle(4)
	if err := manager.Register(agent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := manager.Lookup(4)
	if err != nil || got != agent {
		t.Fatalf("Lookup(4) = %v, %v", got, err)
	}

	_, err = manager.Lookup(5)
	if !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}

	manager.Unregister(4)
	if _, err := manager.Lookup(4); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound after unregister, got %v", err)
	}
}
