package adminserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/admin-sidecar/internal/core/domain"
	"github.com/yndnr/admin-sidecar/internal/core/service"
	"github.com/yndnr/admin-sidecar/internal/telemetry/logger"
	"github.com/yndnr/admin-sidecar/internal/telemetry/metric"
)

var uptimeLine = regexp.MustCompile(`(?m)^admin_service_uptime_seconds \d+$`)

type testEnv struct {
	addr string
	srv  *Server
	auth *service.AuthService
	reg  *metric.Registry
}

func newTestEnv(t *testing.T, mutate ...func(*Config, *service.AuthServiceConfig)) *testEnv {
	t.Helper()

	cfg := DefaultConfig()
	authCfg := service.AuthServiceConfig{
		Secret:   []byte("test-secret"),
		Username: "admin",
		Password: "secret",
	}
	for _, m := range mutate {
		m(cfg, &authCfg)
	}

	auth, err := service.NewAuthService(authCfg)
	if err != nil {
		t.Fatalf("NewAuthService() error = %v", err)
	}

	started := time.Now()
	rt := domain.NewRuntime(
		domain.SupervisedProcess{PID: os.Getpid(), Path: "self", LaunchedAt: started},
		domain.ServerClock{StartedAt: started},
	)
	collector, err := metric.NewProcessCollector(rt, metric.WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("NewProcessCollector() error = %v", err)
	}
	reg := metric.NewRegistry(collector)
	cfg.MetricsContentType = metric.ContentType

	env := &testEnv{
		srv:  New(cfg, auth, reg, logger.Discard()),
		auth: auth,
		reg:  reg,
	}
	env.start(t)
	return env
}

func (e *testEnv) start(t *testing.T) {
	t.Helper()
	if err := e.srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	e.addr = e.srv.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve() error = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve() did not return after cancel")
		}
	})
}

// send writes raw and returns everything the server sent before closing.
func (e *testEnv) send(t *testing.T, raw string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", e.addr, time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, raw); err != nil && !isReset(err) {
		t.Fatalf("Write() error = %v", err)
	}
	out, err := io.ReadAll(conn)
	if err != nil && !isReset(err) {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return string(out)
}

// do sends raw and parses the response.
func (e *testEnv) do(t *testing.T, raw string) (*http.Response, string) {
	t.Helper()
	out := e.send(t, raw)
	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(out)), nil)
	if err != nil {
		t.Fatalf("ReadResponse(%q) error = %v", out, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	tok, err := e.auth.Issue(context.Background(), service.Credentials{Username: ptr("admin"), Password: ptr("secret")}, "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return tok
}

// isReset reports whether err comes from the server closing a connection
// that still had unread input.
func isReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}

func ptr(s string) *string { return &s }

func postToken(body string) string {
	return fmt.Sprintf("POST /auth/token HTTP/1.1\r\nHost: localhost\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
}

func get(path, tok string) string {
	req := "GET " + path + " HTTP/1.1\r\nHost: localhost\r\n"
	if tok != "" {
		req += "Authorization: Bearer " + tok + "\r\n"
	}
	return req + "\r\n"
}

func TestServer_IssueToken_WrongPassword(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, postToken(`{"username":"admin","password":"wrong"}`))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if body != "" {
		t.Errorf("body = %q, want empty", body)
	}
	if resp.ContentLength != 0 {
		t.Errorf("Content-Length = %d, want 0", resp.ContentLength)
	}
}

func TestServer_IssueToken_BadBodies(t *testing.T) {
	env := newTestEnv(t)

	bodies := []string{
		``,
		`not json`,
		`{"username":"admin"}`,
		`{"username":1,"password":"secret"}`,
		`{"username":"admin","password":"secret"} trailing`,
		`null`,
	}
	for _, b := range bodies {
		resp, _ := env.do(t, postToken(b))
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("body %q: status = %d, want 401", b, resp.StatusCode)
		}
	}
}

func TestServer_IssueToken_ThenMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, postToken(`{"username":"admin","password":"secret"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	m := regexp.MustCompile(`^\{"token":"([A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+)"\}$`).FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("token body = %q", body)
	}

	resp, body = env.do(t, get("/metrics", m[1]))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", resp.StatusCode)
	}
	if !uptimeLine.MatchString(body) {
		t.Errorf("metrics body missing uptime line:\n%s", body)
	}
	if !strings.Contains(body, "monitored_service_pid ") {
		t.Errorf("metrics body missing pid line:\n%s", body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestServer_GatedRoutes(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t)

	tests := []struct {
		name   string
		raw    string
		status int
		body   string
	}{
		{"metrics without token", get("/metrics", ""), 401, ""},
		{"metrics with garbage token", get("/metrics", "a.b.c"), 401, ""},
		{"metrics with empty token", "GET /metrics HTTP/1.1\r\nAuthorization: Bearer \r\n\r\n", 401, ""},
		{"lowercase header", "GET /metrics HTTP/1.1\r\nauthorization: Bearer " + tok + "\r\n\r\n", 401, ""},
		{"logs without token", get("/logs/tail", ""), 401, ""},
		{"logs with token", get("/logs/tail", tok), 200, "Hello Logs"},
		{"rebuild without token", "POST /admin/rebuild HTTP/1.1\r\n\r\n", 401, ""},
		{"rebuild with token", "POST /admin/rebuild HTTP/1.1\r\nAuthorization: Bearer " + tok + "\r\n\r\n", 200, "Rebuild Done"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.raw)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if body != tt.body {
				t.Errorf("body = %q, want %q", body, tt.body)
			}
		})
	}
}

func TestServer_ExpiredToken(t *testing.T) {
	env := newTestEnv(t, func(_ *Config, a *service.AuthServiceConfig) {
		a.TokenTTL = time.Second
	})
	tok := env.token(t)

	time.Sleep(2100 * time.Millisecond)

	resp, _ := env.do(t, get("/metrics", tok))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for expired token", resp.StatusCode)
	}
}

func TestServer_RoutingMisses(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t)

	tests := []struct {
		name   string
		raw    string
		status int
		body   string
	}{
		{"unknown path without token", get("/unknown/path", ""), 404, "File Not Found"},
		{"unknown path with token", get("/unknown/path", tok), 404, "File Not Found"},
		{"unknown path with bad token", get("/unknown/path", "x.y.z"), 404, "File Not Found"},
		{"POST to GET route", "POST /metrics HTTP/1.1\r\n\r\n", 404, "File Not Found"},
		{"GET to POST route", get("/auth/token", ""), 404, "File Not Found"},
		{"query string is part of the path", get("/metrics?x=1", tok), 404, "File Not Found"},
		{"DELETE metrics", "DELETE /metrics HTTP/1.1\r\n\r\n", 405, ""},
		{"PUT with token", "PUT /admin/rebuild HTTP/1.1\r\nAuthorization: Bearer " + tok + "\r\n\r\n", 405, ""},
		{"lowercase method", "get /metrics HTTP/1.1\r\n\r\n", 405, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.raw)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if body != tt.body {
				t.Errorf("body = %q, want %q", body, tt.body)
			}
		})
	}
}

func TestServer_UngatedConfig(t *testing.T) {
	env := newTestEnv(t, func(c *Config, _ *service.AuthServiceConfig) {
		c.Gated = false
	})

	resp, body := env.do(t, get("/metrics", ""))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !uptimeLine.MatchString(body) {
		t.Errorf("metrics body missing uptime line:\n%s", body)
	}
}

func TestServer_ResponseHeaders(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, get("/logs/tail", env.token(t)))
	if got := resp.Header.Get("Connection"); got != "close" {
		t.Errorf("Connection = %q, want close", got)
	}
	if got := resp.Header.Get("Content-Length"); got != "10" {
		t.Errorf("Content-Length = %q, want 10", got)
	}
	id := resp.Header.Get("X-Request-ID")
	if _, err := ulid.Parse(id); err != nil {
		t.Errorf("X-Request-ID %q is not a ULID: %v", id, err)
	}
	if resp.Proto != "HTTP/1.1" {
		t.Errorf("Proto = %q", resp.Proto)
	}
}

func TestServer_MalformedRequestLine(t *testing.T) {
	env := newTestEnv(t)

	for _, raw := range []string{"GARBAGE\r\n\r\n", "\r\n\r\n", "GET\r\n/metrics HTTP/1.1\r\n\r\n"} {
		if out := env.send(t, raw); out != "" {
			t.Errorf("request %q got response %q, want connection closed without response", raw, out)
		}
	}
}

func TestServer_PeerClosesWithoutTerminator(t *testing.T) {
	env := newTestEnv(t)

	conn, err := net.Dial("tcp", env.addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	// Request line only, then half-close: the server parses what it has.
	if _, err := io.WriteString(conn, "DELETE /x HTTP/1.1\r\n"); err != nil {
		t.Fatal(err)
	}
	if err := conn.(*net.TCPConn).CloseWrite(); err != nil {
		t.Fatal(err)
	}
	out, _ := io.ReadAll(conn)
	if !strings.HasPrefix(string(out), "HTTP/1.1 405 ") {
		t.Errorf("response = %q, want 405", out)
	}
}

func TestServer_RequestTooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *Config, _ *service.AuthServiceConfig) {
		c.MaxRequestBytes = 128
	})

	raw := "GET /metrics HTTP/1.1\r\nX-Pad: " + strings.Repeat("a", 512) + "\r\n\r\n"
	if out := env.send(t, raw); out != "" {
		t.Errorf("oversized request got response %q", out)
	}

	// The server keeps serving.
	resp, _ := env.do(t, "DELETE /metrics HTTP/1.1\r\n\r\n")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestServer_IssueRateLimited(t *testing.T) {
	env := newTestEnv(t, func(_ *Config, a *service.AuthServiceConfig) {
		a.IssueRateLimit = 1
	})

	resp, _ := env.do(t, postToken(`{"username":"admin","password":"wrong"}`))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("first status = %d, want 401", resp.StatusCode)
	}
	resp, body := env.do(t, postToken(`{"username":"admin","password":"secret"}`))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", resp.StatusCode)
	}
	if body != "" {
		t.Errorf("body = %q, want empty", body)
	}
}

func TestServer_ConcurrentMetrics(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", env.addr, 2*time.Second)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

			if _, err := io.WriteString(conn, get("/metrics", tok)); err != nil {
				errs <- err
				return
			}
			resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				errs <- err
				return
			}
			if resp.StatusCode != http.StatusOK {
				errs <- fmt.Errorf("status %d", resp.StatusCode)
				return
			}
			if !uptimeLine.Match(body) {
				errs <- errors.New("uptime line missing")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestServer_RequestCounter(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, get("/unknown", ""))
	env.do(t, "DELETE /metrics HTTP/1.1\r\n\r\n")
	env.do(t, get("/metrics", ""))

	_, body := env.do(t, get("/metrics", env.token(t)))
	for _, want := range []string{
		`admin_http_requests_total{code="404",route="not_found"} 1`,
		`admin_http_requests_total{code="405",route="method_not_allowed"} 1`,
		`admin_http_requests_total{code="401",route="/metrics"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics body missing %q:\n%s", want, body)
		}
	}
}

// panicMetrics panics while rendering and records observed requests.
type panicMetrics struct {
	mu       sync.Mutex
	observed []string
}

func (*panicMetrics) Render(io.Writer) error { panic("render exploded") }

func (m *panicMetrics) ObserveRequest(route string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed = append(m.observed, fmt.Sprintf("%s %d", route, code))
}

func TestServer_PanicRecovered(t *testing.T) {
	auth, err := service.NewAuthService(service.AuthServiceConfig{Secret: []byte("s")})
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.Gated = false
	metrics := &panicMetrics{}
	env := &testEnv{srv: New(cfg, auth, metrics, logger.Discard()), auth: auth}
	env.start(t)

	resp, _ := env.do(t, get("/metrics", ""))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	metrics.mu.Lock()
	observed := append([]string(nil), metrics.observed...)
	metrics.mu.Unlock()
	if len(observed) != 1 || observed[0] != "/metrics 500" {
		t.Errorf("observed = %v, want [/metrics 500]", observed)
	}

	resp, body := env.do(t, get("/logs/tail", ""))
	if resp.StatusCode != http.StatusOK || body != "Hello Logs" {
		t.Errorf("server unusable after panic: %d %q", resp.StatusCode, body)
	}
}

func TestServer_ServeBeforeListen(t *testing.T) {
	srv := New(nil, nil, nil, logger.Discard())
	if err := srv.Serve(context.Background()); err == nil {
		t.Error("Serve() before Listen() should fail")
	}
	if srv.Addr() != nil {
		t.Error("Addr() before Listen() should be nil")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Listen() error = %v", err)
	}
}

func TestServer_CloseStopsServe(t *testing.T) {
	srv := New(nil, nil, nil, logger.Discard())
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after Close()")
	}
}

// flakyListener fails Accept a fixed number of times before handing out
// queued connections.
type flakyListener struct {
	failures int
	conns    chan net.Conn
	closed   chan struct{}
	once     sync.Once
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.failures > 0 {
		l.failures--
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: syscall.EMFILE}
	}
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *flakyListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *flakyListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestServer_AcceptErrorKeepsServing(t *testing.T) {
	ln := &flakyListener{failures: 3, conns: make(chan net.Conn, 1), closed: make(chan struct{})}
	srv := New(nil, nil, nil, logger.Discard())
	srv.mu.Lock()
	srv.ln = ln
	srv.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()

	client, server := net.Pipe()
	ln.conns <- server

	_ = client.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.WriteString(client, "GET /nope HTTP/1.1\r\n\r\n"); err != nil {
		t.Fatalf("write error = %v", err)
	}
	out, err := io.ReadAll(client)
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	if !strings.HasPrefix(string(out), "HTTP/1.1 404 ") {
		t.Errorf("response = %q, want 404 after accept errors", out)
	}

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after Close()")
	}
}
