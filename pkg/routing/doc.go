// Package routing gates navigation on the session state.
//
// The Guard is a decision function over the current session and the target
// route's metadata. In order, it:
//
//  1. rehydrates the session when the store holds a token the memory does not,
//     redirecting to login if the stored data was unreadable;
//  2. clears an expired session, redirecting to login when the target needs auth;
//  3. sends authenticated users away from guest-only routes;
//  4. sends unauthenticated users to login from protected routes;
//  5. otherwise allows the navigation.
//
// The Navigator owns the current location and subscribes to gateway
// authentication failures and session force-logouts.
package routing
