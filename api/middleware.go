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

package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/TechTribalist/Traffic/ledger"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	requestIDHeader = "X-Request-Id"
	// Idle client limiters are pruned once this many are tracked
	maxTrackedClients = 4096
	clientIdleTimeout = 10 * time.Minute
)

type requestIDKey struct{}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestID tags each request with an ID, echoing a well-formed
// incoming one, and logs the outcome
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(
			rec,
			r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID)),
		)
		s.metrics.observe(r.Method, rec.status)
		s.logger.Debug(
			"request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter holds a token bucket per client address
type clientLimiter struct {
	clients map[string]*clientEntry
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	return &clientLimiter{
		clients: make(map[string]*clientEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (l *clientLimiter) allow(client string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.pruneLocked(now)
		}
		entry = &clientEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *clientLimiter) pruneLocked(now time.Time) {
	for client, entry := range l.clients {
		if now.Sub(entry.lastSeen) > clientIdleTimeout {
			delete(l.clients, client)
		}
	}
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientAddress(r), time.Now()) {
			w.Header().Set("Retry-After", strconv.Itoa(1))
			writeError(
				w,
				http.StatusTooManyRequests,
				"rate_limited",
				"too many requests",
			)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type authedHandlerFunc func(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
)

// authenticated resolves the caller principal from the bearer token
func (s *Server) authenticated(next authedHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.Tokens == nil {
			writeError(
				w,
				http.StatusUnauthorized,
				"unauthenticated",
				"write access is not configured",
			)
			return
		}
		token, err := bearerToken(r.Header.Get("Authorization"))
		if err == nil {
			var caller ledger.Principal
			caller, err = s.config.Tokens.Verify(token)
			if err == nil {
				next(w, r, caller)
				return
			}
		}
		s.logger.Debug(
			"rejected credentials",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		w.Header().Set("WWW-Authenticate", `Bearer realm="traffic"`)
		writeError(
			w,
			http.StatusUnauthorized,
			"unauthenticated",
			err.Error(),
		)
	})
}
