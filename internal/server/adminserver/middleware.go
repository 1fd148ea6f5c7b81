package adminserver

import (
	"context"
	"net/http"
	"time"

	"github.com/yndnr/admin-sidecar/internal/telemetry/logger"
)

// Recover recovers from handler panics and answers 500.
func Recover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (resp *Response) {
			defer func() {
				if err := recover(); err != nil {
					logger.L(ctx).Error("panic recovered",
						"error", err,
						"method", req.Method,
						"path", req.Path,
					)
					resp = newResponse(http.StatusInternalServerError)
				}
			}()

			return next(ctx, req)
		}
	}
}

// Audit logs and counts every answered request. label maps a request to its
// metric route label.
func Audit(metrics Metrics, label func(*Request) string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) *Response {
			start := time.Now()
			resp := next(ctx, req)

			if metrics != nil {
				metrics.ObserveRequest(label(req), resp.Status)
			}

			attrs := []any{
				"method", req.Method,
				"path", req.Path,
				"status", resp.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", req.ClientIP,
			}

			l := logger.L(ctx)
			switch {
			case resp.Status >= 500:
				l.Error("request completed with error", attrs...)
			case resp.Status >= 400:
				l.Warn("request completed with client error", attrs...)
			default:
				l.Info("request completed", attrs...)
			}
			return resp
		}
	}
}
