// Package session defines the collaborator interfaces the fleet core consumes.
//
// # Overview
//
// The fleet never speaks the game protocol itself. A Client opens a Session
// for one username; the Session reports lifecycle Events and exposes the
// capabilities an agent needs (chat, movement controls, inventory, world
// queries, digging, placing, equipping, crafting). Movement goals go through
// the Session's Pathfinder and recipe lookups through its RecipeResolver.
//
// # Events
//
// Every Session delivers its lifecycle on Events():
//
//   - EventConnected: the agent spawned in the world (may repeat on respawn)
//   - EventFailed: a session-level fault with a Reason
//   - EventDisconnected: the session ended; the channel closes afterwards
//
// # Blocking
//
// Chat, SetControl, Look, ActivateItem and Attack only enqueue work and return
// immediately. Lookups take a context and return ErrNotFound when nothing
// matches. Dig, PlaceBlock, Equip, Craft and End block until the underlying
// action finishes, so callers run them off the control loop.
//
// # Testing
//
// MockClient and MockSession record every call and let tests script lookups,
// failures and lifecycle events.
package session
