package config

import "strings"

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *SidecarConfig) *SidecarConfig {
	sanitized := *cfg

	if sanitized.Auth.Secret != "" {
		sanitized.Auth.Secret = maskSecret(sanitized.Auth.Secret)
	}
	if sanitized.Auth.Password != "" {
		sanitized.Auth.Password = maskSecret(sanitized.Auth.Password)
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
