package config

import (
	"fmt"
	"strings"

	"github.com/yndnr/admin-sidecar/internal/core/domain"
	"github.com/yndnr/admin-sidecar/internal/telemetry/logger"
)

// Verify validates the configuration.
func Verify(cfg *SidecarConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyAuth(&cfg.Auth); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return domain.ErrInvalidConfig.WithDetails(fmt.Sprintf("server.port %d out of range 1-65535", cfg.Port))
	}
	if cfg.MaxRequestBytes <= 0 {
		return domain.ErrInvalidConfig.WithDetails("server.max_request_bytes must be positive")
	}
	return nil
}

func verifyAuth(cfg *AuthSection) error {
	if cfg.Secret == "" {
		return domain.ErrSecretMissing.WithDetails("set JWT_SECRET")
	}
	if cfg.TokenTTL < 0 {
		return domain.ErrInvalidConfig.WithDetails("auth.token_ttl must not be negative")
	}
	if cfg.IssueRateLimit < 0 {
		return domain.ErrInvalidConfig.WithDetails("auth.issue_rate_limit must not be negative")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return domain.ErrInvalidConfig.WithCause(err)
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json", "text", "console":
		return nil
	default:
		return domain.ErrInvalidConfig.WithDetails(fmt.Sprintf("unknown log.format %q", cfg.Format))
	}
}
