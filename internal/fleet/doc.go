// Package fleet runs the control loop and the staggered spawn scheduler.
//
// # Control Loop
//
// Loop is the single control thread of the process. Console commands, spawn
// attempts, session events, timer callbacks and the completions of
// asynchronous agent actions are all posted to it as functions and run one
// at a time in the order they were posted:
//
//	loop := fleet.NewLoop(256, logger)
//	go loop.Run(ctx)
//	loop.Post(func() { ... })         // fire and forget
//	err := loop.Do(ctx, func() { ... }) // wait for completion
//
// Because nothing mutates the agent registry outside the loop, commands
// observe a consistent fleet without any further coordination. A panic in a
// posted function is recovered and logged so one bad command cannot stop the
// fleet.
//
// # Spawner
//
// Spawner creates Count agents, the i-th at i*Delay after Start, each with
// ID i and username UsernamePrefix+i. Connections are opened off the loop;
// their outcomes and every later session event come back through it:
//
//	connect ok  -> pump session events into the loop
//	connected   -> bootstrap (auth chat, movement profile), mark active, register
//	failed      -> report, mark errored, unregister, end session
//	disconnected-> mark disconnected, unregister
//	connect err -> report; the slot is abandoned, the rest of the fleet continues
//
// Shutdown stops unfired spawn timers, ends every live session and waits for
// them to close.
package fleet
