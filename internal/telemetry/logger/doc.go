// Package logger provides structured logging for the admin sidecar.
//
//   - logger.go: log/slog handler construction and the process-wide level
//   - context.go: context-aware logging with request IDs
//   - redact.go: sensitive data redaction
//
// Components receive a *slog.Logger. The level is shared by every logger
// built here and can be changed at runtime with SetLevel.
package logger
