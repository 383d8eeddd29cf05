// Package bridge implements session.Client over a websocket to an external
// bridge process that owns the real game connections.
//
// # Protocol
//
// Each agent opens its own websocket and exchanges JSON frames:
//
//	-> {"type":"connect","params":{"host":...,"port":...,"username":...,"version":...}}
//	-> {"type":"chat","text":"..."}
//	-> {"type":"request","request_id":"<uuid>","op":"dig","args":{...}}
//	-> {"type":"end","reason":"..."}
//	<- {"type":"event","event":"spawn|end|error","reason":"..."}
//	<- {"type":"state","state":{"position":...,"yaw":...,"pitch":...,"items":[...]}}
//	<- {"type":"response","request_id":"<uuid>","result":{...},"error":"","not_found":false}
//
// Requests that expect a reply carry a request id and wait up to the
// configured request timeout. Fire-and-forget operations (controls, look,
// goals) omit the id. Position and inventory are served from the last state
// frame.
//
// All frames for one agent go through a single writer goroutine. Chat frames
// are paced with a token bucket so a server's spam filter does not kick the
// fleet; pacing never reorders frames.
//
// When a secret is configured the dial carries an HS256 bearer token whose
// subject is the agent's username (see package auth).
package bridge
