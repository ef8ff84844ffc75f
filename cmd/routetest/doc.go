// Package main runs a smoke test against the portal SPA's client-side routes.
//
// Each route is fetched once (with retries on transport errors and 5xx) and
// checked for the expected status and an HTML body. Every request is
// recorded as a span in a single trace, which can be written out with
// --trace-out. The exit status is non-zero when any route fails.
//
// Usage:
//
//	./routetest --base-url http://localhost:5173
//	./routetest -r routes.yaml --json --trace-out trace.json
package main
