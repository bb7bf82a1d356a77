// Package handlers contains HTTP handler interfaces and middleware shared by
// the REST API server.
//
// The package is deliberately small: the actual endpoint handlers live next to
// the Server in the parent package, while this package holds the pieces that
// are reusable and independently testable:
//
//   - HealthChecker and CompositeHealthChecker: aggregated health probes for
//     the database and cache, run concurrently with per-check timeouts.
//   - APIKeyAuth: bcrypt-hashed API key authentication for write endpoints.
//   - Generic middleware: request timeouts, security headers, body size
//     limits, and a middleware chain builder.
package handlers
