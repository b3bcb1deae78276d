// Package api is the typed homework client: login, profile, classes,
// assignments and submissions. Calls that need a session check its expiry
// locally first and return *session.AuthExpiredError instead of sending a
// stale token.
package api
