// Package main provides the entry point for admin-sidecar.
//
// admin-sidecar launches a single monitored service and serves a small
// administrative HTTP surface next to it: token issuance, a Prometheus
// text report about both processes, and two placeholder admin routes.
//
// Usage:
//
//	admin-sidecar [--config FILE] [--log-level L] [--log-format F] <port> <service-path> [service-args...]
//
// JWT_SECRET must be set. AUTH_USERNAME and AUTH_PASSWORD configure the
// only credentials accepted by POST /auth/token.
package main
