package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"strings"
)

// Header is the fixed JOSE header of every issued token.
const Header = `{"alg":"HS256","typ":"JWT"}`

// segmentCount is the number of dot-separated parts in a token.
const segmentCount = 3

var (
	// ErrMalformed is returned when a token does not have exactly three non-empty segments.
	ErrMalformed = errors.New("token: malformed")

	// ErrSignature is returned when the signature segment does not match.
	ErrSignature = errors.New("token: signature mismatch")
)

// Claims is the payload carried by a token.
type Claims struct {
	Issuer   string `json:"iss"`
	Audience string `json:"aud"`
	Subject  string `json:"sub"`
	IssuedAt int64  `json:"iat"`
	Expires  int64  `json:"exp"`
}

// Parts holds the three encoded segments of a token.
type Parts struct {
	Header    string
	Payload   string
	Signature string
}

// SigningInput returns "header.payload".
func (p Parts) SigningInput() string {
	return p.Header + "." + p.Payload
}

// String reassembles the token.
func (p Parts) String() string {
	return p.Header + "." + p.Payload + "." + p.Signature
}

// Sign builds a signed token for the given claims.
func Sign(claims Claims, secret []byte) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	p := Parts{
		Header:  Encode([]byte(Header)),
		Payload: Encode(payload),
	}
	p.Signature = Signature(p.SigningInput(), secret)
	return p.String(), nil
}

// Signature returns the Base64 RawURL encoded HMAC-SHA256 of input.
func Signature(input string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(input))
	return Encode(mac.Sum(nil))
}

// Split splits a token into its segments.
// Exactly three non-empty segments are required.
func Split(tok string) (Parts, error) {
	segs := strings.Split(tok, ".")
	if len(segs) != segmentCount {
		return Parts{}, ErrMalformed
	}
	for _, s := range segs {
		if s == "" {
			return Parts{}, ErrMalformed
		}
	}
	return Parts{Header: segs[0], Payload: segs[1], Signature: segs[2]}, nil
}

// CheckSignature recomputes the signature over header.payload and compares it
// byte for byte with the supplied signature segment.
func CheckSignature(p Parts, secret []byte) error {
	expected := Signature(p.SigningInput(), secret)
	if !hmac.Equal([]byte(expected), []byte(p.Signature)) {
		return ErrSignature
	}
	return nil
}
