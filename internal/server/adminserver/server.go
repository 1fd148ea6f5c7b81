package adminserver

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/admin-sidecar/internal/core/domain"
	"github.com/yndnr/admin-sidecar/internal/core/service"
	"github.com/yndnr/admin-sidecar/internal/telemetry/logger"
)

// Authenticator issues and verifies bearer tokens.
type Authenticator interface {
	Issue(ctx context.Context, creds service.Credentials, clientIP string) (string, error)
	Verify(token string) bool
}

// Metrics renders the metrics report and counts answered requests.
type Metrics interface {
	Render(w io.Writer) error
	ObserveRequest(route string, code int)
}

// Config holds the admin server configuration.
type Config struct {
	// MaxRequestBytes bounds the bytes buffered per request (default: 64 KiB).
	// Larger requests are dropped without a response.
	MaxRequestBytes int
	// Gated requires a bearer token on /metrics, /logs/tail and /admin/rebuild.
	Gated bool
	// MetricsContentType is the Content-Type of /metrics responses.
	MetricsContentType string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRequestBytes:    DefaultMaxRequestBytes,
		Gated:              true,
		MetricsContentType: "text/plain; version=0.0.4; charset=utf-8",
	}
}

// Server is the admin control-plane server.
type Server struct {
	cfg     *Config
	auth    Authenticator
	metrics Metrics
	logger  *slog.Logger
	router  *Router
	handler HandlerFunc

	metricsContentType string

	mu      sync.Mutex
	ln      net.Listener
	running atomic.Bool
}

// New creates a new admin server.
func New(cfg *Config, auth Authenticator, metrics Metrics, log *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg:                cfg,
		auth:               auth,
		metrics:            metrics,
		logger:             log,
		metricsContentType: cfg.MetricsContentType,
	}
	if s.metricsContentType == "" {
		s.metricsContentType = DefaultConfig().MetricsContentType
	}

	s.router = NewRouter()
	s.router.Handle(http.MethodGet, "/metrics", true, s.handleMetrics)
	s.router.Handle(http.MethodGet, "/logs/tail", true, s.handleLogsTail)
	s.router.Handle(http.MethodPost, "/admin/rebuild", true, s.handleRebuild)
	s.router.Handle(http.MethodPost, "/auth/token", false, s.handleIssueToken)

	s.handler = Chain(s.dispatch, Audit(metrics, s.routeLabel), Recover())
	return s
}

// Listen binds the server to addr ("host:port", or ":port" for all interfaces).
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("admin server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until the listener is closed or ctx is done.
// Connections already accepted are not waited for.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("adminserver: Serve called before Listen")
	}

	s.running.Store(true)
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	return s.acceptLoop(ctx, ln)
}

// Close stops accepting connections. In-flight connections are left alone.
func (s *Server) Close() error {
	s.running.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Accept failures such as EMFILE are transient; keep serving.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(2*backoff, time.Second)
			}
			s.logger.Debug("accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		go s.serveConn(ctx, c)
	}
}

func (s *Server) serveConn(ctx context.Context, c net.Conn) {
	defer c.Close()

	requestID := newRequestID()
	ctx = logger.WithRequestID(logger.WithLogger(ctx, s.logger), requestID)

	req, err := ReadRequest(c, s.cfg.MaxRequestBytes)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRequestTooLarge):
			logger.L(ctx).Warn("request too large", "remote", c.RemoteAddr().String(), "limit", s.cfg.MaxRequestBytes)
		default:
			logger.L(ctx).Debug("request dropped", "remote", c.RemoteAddr().String(), "error", err)
		}
		return
	}
	req.ClientIP = clientIP(c.RemoteAddr())

	resp := s.handler(ctx, req)
	if err := resp.Encode(c, requestID); err != nil {
		logger.L(ctx).Debug("write response failed", "error", err)
	}
}

// dispatch routes the request, then applies the auth gate.
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	route, status, ok := s.router.Lookup(req.Method, req.Path)
	if !ok {
		if status == http.StatusNotFound {
			return textResponse(status, notFoundBody)
		}
		return newResponse(status)
	}

	if route.Gated && s.cfg.Gated {
		tok, found := req.BearerToken()
		if !found || !s.auth.Verify(tok) {
			return newResponse(http.StatusUnauthorized)
		}
	}
	return route.Handler(ctx, req)
}

// routeLabel bounds the metric label cardinality to the route table.
func (s *Server) routeLabel(req *Request) string {
	_, status, ok := s.router.Lookup(req.Method, req.Path)
	switch {
	case ok:
		return req.Path
	case status == http.StatusMethodNotAllowed:
		return routeMethodNotAllowed
	default:
		return routeNotFound
	}
}

func newRequestID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return ""
	}
	return id.String()
}

func clientIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
