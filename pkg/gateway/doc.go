// Package gateway exposes the research orchestrator over HTTP and websocket.
//
// Routes:
//
//	POST /research                 {"query", "profile"} -> {"result", "session_id", "attempts", "profile"}
//	GET  /research/stream          websocket; first frame is the request, then events, then a result or error frame
//	GET  /sessions/:id/checkpoints checkpoint history of one attempt
//	GET  /healthz
//	GET  /metrics
//
// Failures are returned as {"detail": reason}: 400 for an empty query or unknown
// profile, 429 when a client exceeds its rate limit, 502 when the model's payload
// does not match the profile contract and 500 otherwise.
package gateway
