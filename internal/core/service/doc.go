// Package service provides the domain services of the admin sidecar.
//
// AuthService issues HMAC-SHA256 signed bearer tokens against a single
// configured credential pair and verifies tokens presented on gated routes.
// Tokens are stateless: validity is recomputed from the token bytes and the
// shared secret on every request, and a token is only ever invalidated by
// its exp claim elapsing.
//
// Issuance can optionally be rate limited per client IP.
package service
