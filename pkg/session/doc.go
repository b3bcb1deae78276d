// Package session owns the client's authentication state: the bearer token,
// the user profile and the token's expiry.
//
// Invariants:
// - One Manager per client instance; it is the only writer of the persistent store.
// - Token != "" means authenticated.
// - A new token is always stamped with IssuedAt=now and ExpiresAt=now+TTL.
// - Malformed persisted data never surfaces as an error; it is discarded, logged and counted.
// - Clear and Expire are idempotent.
//
// Usage:
//
//	mgr := session.NewManager(st, session.Options{TTL: 24 * time.Hour})
//	mgr.Restore(ctx)
//	mgr.SetSession(ctx, session.Patch{Token: session.String("abc"), Username: session.String("2022001")})
//	if mgr.IsExpired() {
//		mgr.Expire(ctx, session.ReasonExpired)
//	}
package session
