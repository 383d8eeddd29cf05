// Package agent holds the fleet's agents and the registry that tracks them.
//
// # Overview
//
// An agent is one game session driven by the fleet. The package has three
// parts:
//
//   - Handle: wraps one session.Session and exposes its capabilities
//   - Manager: the registry of live Handles keyed by spawn index
//   - Future: the pending result of an asynchronous capability
//
// # Manager
//
//	mgr := agent.NewManager(logger)
//
// Key operations:
//
//   - Register(h): add a connected agent (ErrAgentAlreadyRegistered on clash)
//   - Unregister(id): remove an agent; absent IDs are a no-op
//   - GetAgent(id): O(1) lookup
//   - Lookup(id): GetAgent returning an ErrAgentNotFound error when absent
//   - ListAgents(): snapshot ordered by ascending ID
//
// Agents enter the Manager once their session has spawned and bootstrapped,
// and leave it when the session reports it disconnected or failed. A
// disconnected agent is never visible to new commands.
//
// # Handle
//
// A Handle carries the agent's lifecycle Status (connecting, active,
// disconnected, errored), its current movement goal and the item last
// equipped to its hand. Capabilities that touch only local state or send a
// single fire-and-forget frame (Chat, SetControl, Look, Use, Stop, Equip's
// inventory check) return an error directly. Capabilities that must query
// the world first (Follow, Attack, Dig, Place, Craft) and Disconnect return a
// Future at once; the query and the action both run inside it, and a missing
// player, entity, block or recipe resolves the Future with ErrPlayerNotFound,
// ErrNoEntity, ErrNoBlock or ErrRecipeNotFound.
//
// # Thread Safety
//
// Manager and Handle are safe for concurrent use. The fleet still mutates
// them only from its control loop, which gives commands and session events a
// single total order.
package agent
