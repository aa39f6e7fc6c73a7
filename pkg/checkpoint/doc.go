// Package checkpoint persists per-session conversation snapshots.
//
// Invariants:
//   - Session ids are path-safe and never shared between attempts.
//   - Create starts a session with an empty history; Save only appends to an existing session.
//   - Readers receive deep copies; stored history is never mutated in place.
//   - No cross-session locking; isolation comes from distinct keys.
//   - Memory and sqlite retain at most MaxSessions sessions, evicting the oldest; redis expires by TTL.
//
// Usage:
//
//	store, _ := checkpoint.Open(ctx, checkpoint.Config{Backend: "sqlite"})
//	id := checkpoint.NewSessionID()
//	_ = store.Create(ctx, id)
//	_ = store.Save(ctx, checkpoint.Checkpoint{SessionID: id, Step: 1, Node: "planner", Messages: msgs})
//	latest, _ := store.Latest(ctx, id)
//	_ = latest
package checkpoint
