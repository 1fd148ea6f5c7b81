// Package adminserver provides the admin control-plane server of the sidecar.
//
// The server speaks a minimal HTTP/1.1 subset directly over TCP: one request
// per connection, headers read up to the blank line, and a complete response
// with Content-Length followed by close. Each accepted connection is handled
// on its own goroutine, and the acceptor never waits for them.
//
// A failed accept never stops the server and there is no limit on retries.
// The acceptor does sleep between consecutive failures, starting at 5ms and
// doubling up to 1s, so that descriptor exhaustion (EMFILE, ENFILE) does not
// spin a core while connections drain. The delay resets after the next
// successful accept.
//
// Routes:
//   - GET  /metrics        Prometheus text exposition (gated)
//   - GET  /logs/tail      log tail placeholder (gated)
//   - POST /admin/rebuild  rebuild trigger placeholder (gated)
//   - POST /auth/token     bearer token issuance
//
// Gated routes require "Authorization: Bearer <token>" unless gating is
// disabled in the configuration. Unknown paths answer 404 and methods other
// than GET and POST answer 405, independently of any token.
package adminserver
