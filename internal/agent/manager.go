// ABOUTME: Registry of live fleet agents keyed by their spawn index.
// ABOUTME: Agents are added once connected and removed when their session ends.

package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrAgentAlreadyRegistered indicates an agent with the same ID is already registered.
var ErrAgentAlreadyRegistered = errors.New("agent already registered")

// ErrAgentNotFound indicates the specified agent was not found.
var ErrAgentNotFound = errors.New("agent not found")

// Manager tracks every live agent.
type Manager struct {
	agents map[int]*Handle
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewManager creates a new Manager instance.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		agents: make(map[int]*Handle),
		logger: logger.With("component", "agents"),
	}
}

// Register adds an agent. Returns ErrAgentAlreadyRegistered if its ID is
// taken; the existing agent is kept.
func (m *Manager) Register(agent *Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.agents[agent.ID]; exists {
		return ErrAgentAlreadyRegistered
	}

	m.agents[agent.ID] = agent
	m.logger.Info("=== AGENT CONNECTED ===",
		"agent_id", agent.ID,
		"name", agent.Name,
		"total_agents", len(m.agents),
	)
	return nil
}

// Unregister removes an agent. Removing an absent ID is a no-op; the return
// value reports whether anything was removed.
func (m *Manager) Unregister(agentID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, exists := m.agents[agentID]
	if !exists {
		return false
	}
	delete(m.agents, agentID)
	m.logger.Info("=== AGENT DISCONNECTED ===",
		"agent_id", agentID,
		"name", agent.Name,
		"total_agents", len(m.agents),
	)
	return true
}

// GetAgent retrieves a specific agent by ID.
func (m *Manager) GetAgent(id int) (*Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agent, ok := m.agents[id]
	return agent, ok
}

// Lookup is GetAgent for callers that report errors. An absent ID yields an
// error wrapping ErrAgentNotFound.
func (m *Manager) Lookup(id int) (*Handle, error) {
	agent, ok := m.GetAgent(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrAgentNotFound, id)
	}
	return agent, nil
}

// ListAgents returns a snapshot of all agents in ascending ID order.
// Later registrations and removals do not affect the returned slice.
func (m *Manager) ListAgents() []*Handle {
	m.mu.RLock()
	agents := make([]*Handle, 0, len(m.agents))
	for _, agent := range m.agents {
		agents = append(agents, agent)
	}
	m.mu.RUnlock()

	sort.Slice(agents, func(i, j int) bool {
		return agents[i].ID < agents[j].ID
	})
	return agents
}

// IDs returns the registered IDs in ascending order.
func (m *Manager) IDs() []int {
	agents := m.ListAgents()
	ids := make([]int, len(agents))
	for i, agent := range agents {
		ids[i] = agent.ID
	}
	return ids
}

// Len returns the number of registered agents.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}
