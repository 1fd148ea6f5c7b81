package service

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/admin-sidecar/internal/core/domain"
	"github.com/yndnr/admin-sidecar/pkg/token"
)

const (
	// DefaultIssuer is the iss and aud claim of issued tokens.
	DefaultIssuer = "my-admin-server"

	// DefaultTokenTTL is the lifetime of an issued token.
	DefaultTokenTTL = time.Hour
)

// Credentials is the body of a token issuance request.
// A nil field means the field was absent.
type Credentials struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

// AuthServiceConfig holds configuration for AuthService.
type AuthServiceConfig struct {
	// Secret is the HMAC key shared by Issue and Verify. Required.
	Secret []byte

	// Username and Password are the only accepted credentials.
	// Issuance always fails while the username or both password
	// settings are empty.
	Username string
	Password string

	// PasswordHash is an argon2id PHC string. When set it is used
	// instead of Password.
	PasswordHash string

	// Issuer is used for both the iss and aud claims (default: "my-admin-server").
	Issuer string

	// TokenTTL is the lifetime of issued tokens (default: 1h).
	TokenTTL time.Duration

	// IssueRateLimit caps issuance attempts per client IP per second (0 = unlimited).
	IssueRateLimit int
}

// AuthServiceOption configures an AuthService.
type AuthServiceOption func(*AuthService)

// WithClock sets the clock used for iat/exp and expiry checks.
func WithClock(now func() time.Time) AuthServiceOption {
	return func(s *AuthService) {
		s.now = now
	}
}

// AuthService issues and verifies bearer tokens.
//
// The configuration is fixed at construction time; the service is safe for
// concurrent use.
type AuthService struct {
	secret    []byte
	username  []byte
	password  []byte
	pwHash    *PasswordHash
	issuer    string
	ttl       time.Duration
	rateLimit int

	rateLimiters *RateLimiterRegistry
	now          func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg AuthServiceConfig, opts ...AuthServiceOption) (*AuthService, error) {
	if len(cfg.Secret) == 0 {
		return nil, domain.ErrSecretMissing
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.IssueRateLimit < 0 {
		return nil, domain.ErrInvalidConfig.WithDetails("issue rate limit must not be negative")
	}

	var pwHash *PasswordHash
	if cfg.PasswordHash != "" {
		h, err := ParsePasswordHash(cfg.PasswordHash)
		if err != nil {
			return nil, err
		}
		pwHash = h
	}

	s := &AuthService{
		secret:       bytes.Clone(cfg.Secret),
		username:     []byte(cfg.Username),
		password:     []byte(cfg.Password),
		pwHash:       pwHash,
		issuer:       cfg.Issuer,
		ttl:          cfg.TokenTTL,
		rateLimit:    cfg.IssueRateLimit,
		rateLimiters: NewRateLimiterRegistry(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue checks the credentials and returns a signed token for the user.
//
// Errors:
//   - domain.ErrRateLimited when clientIP exceeded the issuance rate
//   - domain.ErrUnauthorized on a missing field or credential mismatch
func (s *AuthService) Issue(ctx context.Context, creds Credentials, clientIP string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if s.rateLimit > 0 {
		if !s.rateLimiters.GetOrCreate(clientIP, s.rateLimit).Allow() {
			return "", domain.ErrRateLimited
		}
	}

	if creds.Username == nil || creds.Password == nil {
		return "", domain.ErrUnauthorized.WithDetails("missing credentials")
	}
	if len(s.username) == 0 || (len(s.password) == 0 && s.pwHash == nil) {
		return "", domain.ErrUnauthorized.WithDetails("issuance credentials not configured")
	}

	// Evaluate both comparisons so timing does not reveal which field differs.
	userOK := subtle.ConstantTimeCompare([]byte(*creds.Username), s.username)
	if s.checkPassword(*creds.Password)&userOK != 1 {
		return "", domain.ErrUnauthorized
	}

	iat := s.now().Unix()
	return token.Sign(token.Claims{
		Issuer:   s.issuer,
		Audience: s.issuer,
		Subject:  *creds.Username,
		IssuedAt: iat,
		Expires:  iat + int64(s.ttl/time.Second),
	}, s.secret)
}

// checkPassword returns 1 when password matches the configured one.
func (s *AuthService) checkPassword(password string) int {
	if s.pwHash != nil {
		if s.pwHash.Matches(password) {
			return 1
		}
		return 0
	}
	return subtle.ConstantTimeCompare([]byte(password), s.password)
}

// Verify reports whether tok carries a valid signature and has not expired.
//
// The signature is checked before the payload is looked at. A payload that
// does not decode to a JSON object, or lacks an integer exp claim, is
// accepted: expiry is only enforced when it can be read.
func (s *AuthService) Verify(tok string) bool {
	parts, err := token.Split(tok)
	if err != nil {
		return false
	}
	if err := token.CheckSignature(parts, s.secret); err != nil {
		return false
	}

	exp, ok := expiry(parts.Payload)
	if !ok {
		return true
	}
	return s.now().Unix() <= exp
}

// expiry extracts the exp claim of an encoded payload.
func expiry(payloadB64 string) (int64, bool) {
	payload, err := token.Decode(payloadB64)
	if err != nil {
		return 0, false
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var claims map[string]any
	if err := dec.Decode(&claims); err != nil {
		return 0, false
	}

	n, ok := claims["exp"].(json.Number)
	if !ok {
		return 0, false
	}
	exp, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return exp, true
}

// ============================================================================
// RateLimiterRegistry - Rate Limiter Management
// ============================================================================

// RateLimiterRegistry manages rate limiters keyed by client address.
type RateLimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiterRegistry creates a new RateLimiterRegistry.
func NewRateLimiterRegistry() *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
	}
}

// GetOrCreate retrieves an existing rate limiter or creates a new one.
func (r *RateLimiterRegistry) GetOrCreate(key string, rateLimit int) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[key]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := r.limiters[key]; exists {
		return limiter
	}

	// rateLimit events per second, burst = rateLimit
	limiter = rate.NewLimiter(rate.Limit(rateLimit), rateLimit)
	r.limiters[key] = limiter

	return limiter
}
