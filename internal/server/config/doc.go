// Package config provides the admin sidecar configuration.
//
// This package defines the configuration structure and its validation:
//
//   - spec.go: SidecarConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (port range, secret presence, log settings)
//   - sanitize.go: Log sanitization (hide sensitive values)
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: files, environment variables, and flags.
package config
