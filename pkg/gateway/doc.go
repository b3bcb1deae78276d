// Package gateway is the authorized request pipeline every remote call goes
// through.
//
// Invariants:
// - The bearer token is read from Credentials at send time; no token, no header.
// - Every response is classified into exactly one outcome: success, BusinessError,
// AuthRejectedError or TransportError.
// - An authentication failure clears the session before the error is returned
// and is published to AuthFailure subscribers; navigation policy lives elsewhere.
// - Requests are bounded by a timeout (default 5s).
//
// Usage:
//
//	gw, _ := gateway.New(gateway.Config{BaseURL: "http://localhost:9024"}, sessions)
//	resp, err := gw.Get(ctx, "/class/joined", nil)
//	var classes []Class
//	_ = resp.Decode(&classes)
package gateway
