// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api exposes the enforcement ledger over HTTP
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultListenAddress = ":8080"
	DefaultRateLimit     = 20
	DefaultRateBurst     = 40
)

type ServerConfig struct {
	PromRegistry  prometheus.Registerer
	Tokens        *TokenManager
	ListenAddress string
	// RateLimit is the sustained requests per second allowed per client.
	// A negative value disables limiting.
	RateLimit float64
	RateBurst int
}

// Server is the REST API server
type Server struct {
	config     ServerConfig
	logger     *slog.Logger
	ledger     Ledger
	dashboard  Dashboard
	limiter    *clientLimiter
	metrics    apiMetrics
	httpServer *http.Server
	mu         sync.Mutex
}

// New creates a server. Write endpoints reject every request when no token
// manager is configured.
func New(
	cfg ServerConfig,
	ls Ledger,
	dashboard Dashboard,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.New(
			slog.NewJSONHandler(io.Discard, nil),
		)
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = DefaultRateBurst
	}
	s := &Server{
		config:    cfg,
		logger:    logger,
		ledger:    ls,
		dashboard: dashboard,
	}
	if cfg.RateLimit > 0 {
		s.limiter = newClientLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	if cfg.PromRegistry != nil {
		s.metrics.init(cfg.PromRegistry)
	}
	return s
}

// Handler returns the complete HTTP handler including middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/statistics", s.handleStatistics)
	mux.HandleFunc("GET /api/v1/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/v1/offenses", s.handleOffenseCatalog)
	mux.HandleFunc("GET /api/v1/offenses/{code}", s.handleGetOffense)
	mux.HandleFunc("GET /api/v1/officers/{principal}", s.handleGetOfficer)
	mux.HandleFunc("GET /api/v1/roles/{role}/{principal}", s.handleHasRole)
	mux.HandleFunc("GET /api/v1/violations/{id}", s.handleGetViolation)
	mux.HandleFunc("GET /api/v1/violations/{id}/appeal", s.handleGetAppeal)
	mux.HandleFunc(
		"GET /api/v1/vehicles/{vehicle}/violations",
		s.handleVehicleViolations,
	)
	mux.HandleFunc("GET /api/v1/refunds/{principal}", s.handlePendingRefund)
	mux.HandleFunc("GET /api/v1/audit", s.handleAuditEntries)
	mux.HandleFunc("GET /api/v1/audit/verify", s.handleVerifyAudit)

	mux.Handle("PUT /api/v1/roles/{role}/{principal}", s.authenticated(s.handleGrantRole))
	mux.Handle("DELETE /api/v1/roles/{role}/{principal}", s.authenticated(s.handleRevokeRole))
	mux.Handle("POST /api/v1/officers", s.authenticated(s.handleRegisterOfficer))
	mux.Handle("DELETE /api/v1/officers/{principal}", s.authenticated(s.handleDeactivateOfficer))
	mux.Handle("PUT /api/v1/offenses/{code}", s.authenticated(s.handleUpdateOffense))
	mux.Handle("POST /api/v1/violations", s.authenticated(s.handleLogViolation))
	mux.Handle("POST /api/v1/violations/{id}/payment", s.authenticated(s.handlePayFine))
	mux.Handle("POST /api/v1/violations/{id}/appeal", s.authenticated(s.handleSubmitAppeal))
	mux.Handle(
		"POST /api/v1/violations/{id}/appeal/resolution",
		s.authenticated(s.handleResolveAppeal),
	)
	mux.Handle("POST /api/v1/refunds/claim", s.authenticated(s.handleClaimRefund))
	mux.Handle("POST /api/v1/treasury/withdrawals", s.authenticated(s.handleWithdraw))
	mux.Handle("POST /api/v1/upgrade", s.authenticated(s.handleAuthorizeUpgrade))
	mux.Handle("POST /api/v1/pause", s.authenticated(s.handlePause))
	mux.Handle("POST /api/v1/unpause", s.authenticated(s.handleUnpause))

	return s.withRequestID(s.rateLimited(mux))
}

// Start starts the HTTP server in a background goroutine. The server shuts
// down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	s.httpServer = server
	s.mu.Unlock()

	if err := s.startServer(server); err != nil {
		s.mu.Lock()
		s.httpServer = nil
		s.mu.Unlock()
		return err
	}
	s.logger.Info(
		"API listener started on " + s.config.ListenAddress,
	)

	go func() {
		<-ctx.Done()
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			30*time.Second,
		)
		defer cancel()
		//nolint:contextcheck
		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Error(
				"failed to shutdown API server on context cancellation",
				"error", err,
			)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	if srv != nil {
		s.logger.Debug("shutting down API server")
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown API server: %w", err)
		}
	}
	return nil
}

// startServer binds the listening socket first so port conflicts are
// reported to the caller, then serves in a background goroutine
func (s *Server) startServer(server *http.Server) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(
				"API server error",
				"error", err,
			)
		}
	}()
	return nil
}
