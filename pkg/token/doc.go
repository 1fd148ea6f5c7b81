// Package token provides the bearer token wire format used by the admin sidecar.
//
// Token Format:
//
//   - Three dot-separated segments: header, payload, signature
//   - Each segment is Base64 RawURL encoded (no padding)
//   - Header is the fixed JSON object {"alg":"HS256","typ":"JWT"}
//   - Signature is HMAC-SHA256 over "header.payload" with a shared secret
//
// The format is byte-compatible with HS256 JSON Web Tokens so that external
// verifiers holding the same secret accept tokens issued here.
//
// Security:
//
//   - Signatures are compared with hmac.Equal over the encoded text
//   - Tokens are never stored; validity is recomputed from the token bytes
package token
