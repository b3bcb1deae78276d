// Package mockserver is an in-memory homework backend speaking the same
// JSON envelope contract as the real service. It issues HS256 tokens,
// answers with envelope code 401 for missing or invalid tokens and serves
// seeded users, classes, assignments and submissions.
//
// It backs the client's integration tests and the `hwdesk mock-server`
// command used for local development.
package mockserver
