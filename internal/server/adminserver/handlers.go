package adminserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yndnr/admin-sidecar/internal/core/domain"
	"github.com/yndnr/admin-sidecar/internal/core/service"
	"github.com/yndnr/admin-sidecar/internal/telemetry/logger"
)

const (
	logsTailBody = "Hello Logs"
	rebuildBody  = "Rebuild Done"
	notFoundBody = "File Not Found"
)

// tokenResponse is the body of a successful issuance.
type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleMetrics(ctx context.Context, _ *Request) *Response {
	var buf bytes.Buffer
	if err := s.metrics.Render(&buf); err != nil {
		// Whatever was gathered is still served.
		logger.L(ctx).Warn("metrics collection incomplete", "error", err)
	}
	return &Response{
		Status:      http.StatusOK,
		ContentType: s.metricsContentType,
		Body:        buf.Bytes(),
	}
}

func (s *Server) handleLogsTail(context.Context, *Request) *Response {
	return textResponse(http.StatusOK, logsTailBody)
}

func (s *Server) handleRebuild(ctx context.Context, _ *Request) *Response {
	logger.L(ctx).Info("rebuild requested")
	return textResponse(http.StatusOK, rebuildBody)
}

func (s *Server) handleIssueToken(ctx context.Context, req *Request) *Response {
	var creds service.Credentials
	if err := json.Unmarshal(req.Body, &creds); err != nil {
		logger.L(ctx).Debug("token request body rejected", "error", err)
		return newResponse(http.StatusUnauthorized)
	}

	tok, err := s.auth.Issue(ctx, creds, req.ClientIP)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			logger.L(ctx).Warn("token issuance rate limited", "client_ip", req.ClientIP)
			return newResponse(http.StatusTooManyRequests)
		}
		logger.L(ctx).Info("token issuance denied", "client_ip", req.ClientIP, "reason", domain.GetErrorCode(err))
		return newResponse(http.StatusUnauthorized)
	}

	body, err := json.Marshal(tokenResponse{Token: tok})
	if err != nil {
		return newResponse(http.StatusInternalServerError)
	}
	return &Response{
		Status:      http.StatusOK,
		ContentType: contentTypeJSON,
		Body:        body,
	}
}
