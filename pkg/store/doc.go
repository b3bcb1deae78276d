// Package store provides the durable key/value storage that mirrors the
// authenticated session across process restarts.
//
// Invariants:
// - Values are opaque strings; the session package owns their encoding.
// - Get reports absence with ok=false and a nil error.
// - Delete of a missing key is not an error.
//
// Backends: file (default), sqlite, redis and an in-memory store for tests.
//
// Usage:
//
//	st, _ := store.New(ctx, store.Options{Backend: store.BackendFile, Path: "/tmp/hwdesk/session.json"})
//	_ = st.Set(ctx, store.KeyToken, "abc")
//	token, ok, _ := st.Get(ctx, store.KeyToken)
//	_, _ = token, ok
package store
