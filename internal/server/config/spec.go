package config

import "time"

// SidecarConfig is the root configuration for admin-sidecar.
type SidecarConfig struct {
	Server ServerSection `koanf:"server"`
	Auth   AuthSection   `koanf:"auth"`
	Log    LogSection    `koanf:"log"`
}

// ServerSection configures the admin listener.
type ServerSection struct {
	// Port is the TCP port bound on all interfaces.
	Port int `koanf:"port"`

	// MaxRequestBytes caps the size of a single request.
	MaxRequestBytes int `koanf:"max_request_bytes"`
}

// AuthSection configures token issuance and verification.
type AuthSection struct {
	// Secret is the HMAC signing key. Bound to JWT_SECRET.
	Secret string `koanf:"secret"`

	// Username and Password are the accepted credentials.
	// Bound to AUTH_USERNAME and AUTH_PASSWORD.
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// PasswordHash is an argon2id PHC string replacing Password.
	// Bound to AUTH_PASSWORD_HASH.
	PasswordHash string `koanf:"password_hash"`

	// Issuer is the iss and aud claim of issued tokens.
	Issuer string `koanf:"issuer"`

	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration `koanf:"token_ttl"`

	// Gated requires a valid bearer token on /metrics, /logs/tail
	// and /admin/rebuild.
	Gated bool `koanf:"gated"`

	// IssueRateLimit caps /auth/token attempts per client per second.
	// 0 disables the limit.
	IssueRateLimit int `koanf:"issue_rate_limit"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
