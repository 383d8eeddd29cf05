// Package dispatch parses operator console lines and runs them against the
// fleet.
//
// Parse is pure: it turns a line into one of the Command structs (Say, Exit,
// List, Jump, Follow, Stop, Teleport, Pos, Dig, Place, Equip, Inv, Look,
// Craft, Use, Attack, Help) or returns a *UsageError or ErrUnknownCommand.
// Dispatcher.Execute then switches over the concrete type, so adding a verb
// means adding a struct and a case.
//
// A numeric first argument to say selects the sending agent only when more
// text follows it; "say 5" broadcasts "5".
//
// Capabilities that query the world (follow, attack, dig, place, craft) and
// the long-running ones (equip, exit) return an agent.Future, so Dispatch
// never waits on the network. Every future goes through the same sink, which
// waits off the control loop and posts the result back onto it: a lookup
// miss prints the verb's not-found message, any other failure prints
// "<Action> error: <err>".
package dispatch
