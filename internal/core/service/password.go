package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/yndnr/admin-sidecar/internal/core/domain"
)

// Argon2id parameters used by HashPassword.
const (
	// Argon2Memory is the memory parameter in KiB (16 MiB).
	Argon2Memory uint32 = 16384

	// Argon2Time is the iteration count.
	Argon2Time uint32 = 2

	// Argon2Parallelism is the parallelism factor.
	Argon2Parallelism uint8 = 2

	// Argon2KeyLen is the output hash length in bytes.
	Argon2KeyLen uint32 = 32

	// Argon2SaltLen is the salt length in bytes.
	Argon2SaltLen = 16
)

// PasswordHash is a parsed argon2id hash in PHC string format:
// $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>
type PasswordHash struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	Salt        []byte
	Key         []byte
}

// HashPassword returns the argon2id PHC string of password under a fresh
// random salt.
func HashPassword(password string) (string, error) {
	salt := make([]byte, Argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	h := PasswordHash{
		Memory:      Argon2Memory,
		Time:        Argon2Time,
		Parallelism: Argon2Parallelism,
		Salt:        salt,
	}
	h.Key = h.derive(password, Argon2KeyLen)
	return h.String(), nil
}

// ParsePasswordHash parses an argon2id PHC string.
func ParsePasswordHash(s string) (*PasswordHash, error) {
	invalid := func(reason string) error {
		return domain.ErrInvalidConfig.WithDetails("password hash: " + reason)
	}

	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, invalid("not a PHC string")
	}
	if parts[1] != "argon2id" {
		return nil, invalid(fmt.Sprintf("unsupported algorithm %q", parts[1]))
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, invalid("unsupported version")
	}

	var h PasswordHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.Memory, &h.Time, &h.Parallelism); err != nil {
		return nil, invalid("bad parameters")
	}
	if h.Memory == 0 || h.Time == 0 || h.Parallelism == 0 {
		return nil, invalid("bad parameters")
	}

	var err error
	if h.Salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(h.Salt) == 0 {
		return nil, invalid("bad salt")
	}
	if h.Key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(h.Key) == 0 {
		return nil, invalid("bad key")
	}
	return &h, nil
}

// Matches reports whether password hashes to h, in constant time.
func (h *PasswordHash) Matches(password string) bool {
	computed := h.derive(password, uint32(len(h.Key)))
	return subtle.ConstantTimeCompare(computed, h.Key) == 1
}

// String encodes h in PHC string format.
func (h *PasswordHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.Memory, h.Time, h.Parallelism,
		base64.RawStdEncoding.EncodeToString(h.Salt),
		base64.RawStdEncoding.EncodeToString(h.Key))
}

func (h *PasswordHash) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), h.Salt, h.Time, h.Memory, h.Parallelism, keyLen)
}
