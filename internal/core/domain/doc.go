// Package domain defines the core domain models for the admin sidecar.
//
// This package contains the process-lifetime state shared between the
// supervisor, the metrics collector and the request server:
//
//   - SupervisedProcess: the monitored service launched at startup
//   - ServerClock: the instant the sidecar started
//   - Runtime: an immutable bundle of both, built once before serving
//
// It also defines the structured error taxonomy (DomainError) used across
// packages. Domain types have no dependencies on infrastructure.
package domain
