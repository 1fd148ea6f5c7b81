package token

import (
	"encoding/base64"
	"strings"
)

// Encode returns the Base64 RawURL encoding of data (no '=' padding).
func Encode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode decodes a Base64 URL encoded string.
//
// Trailing '=' padding is tolerated so that segments produced by padded
// encoders still decode.
func Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
