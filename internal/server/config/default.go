package config

import "time"

// Default configuration values.
const (
	DefaultMaxRequestBytes = 64 * 1024

	DefaultIssuer   = "my-admin-server"
	DefaultTokenTTL = time.Hour
	DefaultGated    = true

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default sidecar configuration.
func Default() *SidecarConfig {
	return &SidecarConfig{
		Server: ServerSection{
			MaxRequestBytes: DefaultMaxRequestBytes,
		},
		Auth: AuthSection{
			Issuer:   DefaultIssuer,
			TokenTTL: DefaultTokenTTL,
			Gated:    DefaultGated,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// DefaultMap returns the defaults keyed by their dotted koanf paths, for
// loading underneath every other source.
func DefaultMap() map[string]any {
	return map[string]any{
		"server.max_request_bytes": DefaultMaxRequestBytes,
		"auth.issuer":              DefaultIssuer,
		"auth.token_ttl":           DefaultTokenTTL.String(),
		"auth.gated":               DefaultGated,
		"auth.issue_rate_limit":    0,
		"log.level":                DefaultLogLevel,
		"log.format":               DefaultLogFormat,
	}
}
