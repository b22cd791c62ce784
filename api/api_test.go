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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TechTribalist/Traffic/ledger"
	"github.com/TechTribalist/Traffic/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	server *Server
	ls     *ledger.Ledger
	tokens *TokenManager
}

func newTestServer(t *testing.T, cfg ServerConfig) *testServer {
	t.Helper()
	ls, err := ledger.New(ledger.LedgerConfig{
		Payout:         ledger.NewLoggingPayout(nil),
		BootstrapAdmin: "admin",
	})
	require.NoError(t, err)
	tokens, err := NewTokenManager([]byte(testSecret))
	require.NoError(t, err)
	cfg.Tokens = tokens
	if cfg.RateLimit == 0 {
		cfg.RateLimit = -1
	}
	dash := report.NewDashboard(report.DashboardConfig{Source: ls})
	return &testServer{
		server: New(cfg, ls, dash, nil),
		ls:     ls,
		tokens: tokens,
	}
}

// do sends a request as caller. An empty caller sends no credentials.
func (ts *testServer) do(
	t *testing.T,
	method string,
	path string,
	caller ledger.Principal,
	body any,
) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if caller != "" {
		token, err := ts.tokens.Issue(caller, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var ret T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ret))
	return ret
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decodeResponse[HealthResponse](t, rec)
	assert.True(t, resp.IsHealthy)
	assert.False(t, resp.Paused)
	assert.NotZero(t, resp.AuditSeq)
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "7b0d0f3e-3f35-4a43-9d7b-5b2b8a0d7f11")
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(
		t,
		"7b0d0f3e-3f35-4a43-9d7b-5b2b8a0d7f11",
		rec.Header().Get(requestIDHeader),
	)

	// Malformed IDs are replaced
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid\nx")
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, "not-a-uuid\nx", rec.Header().Get(requestIDHeader))
}

func TestWriteRequiresToken(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})
	rec := ts.do(t, http.MethodPost, "/api/v1/pause", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decodeResponse[ErrorResponse](t, rec).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pause", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := NewTokenManager([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	forged, err := other.Issue("admin", time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/pause", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, ts.ls.Paused())
}

func TestTokenManager(t *testing.T) {
	_, err := NewTokenManager([]byte("short"))
	require.Error(t, err)

	m, err := NewTokenManager([]byte(testSecret))
	require.NoError(t, err)
	token, err := m.Issue("officer-1", time.Hour)
	require.NoError(t, err)
	principal, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, ledger.Principal("officer-1"), principal)

	issued := time.Now()
	m.clock = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = m.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Issue("", time.Hour)
	require.Error(t, err)
	_, err = bearerToken("Basic abc")
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestEnforcementFlow(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})

	rec := ts.do(t, http.MethodPost, "/api/v1/officers", "admin", RegisterOfficerRequest{
		Principal: "officer-1",
		Name:      "Jane Doe",
		Badge:     "B-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, decodeResponse[OfficerResponse](t, rec).Active)

	rec = ts.do(t, http.MethodPost, "/api/v1/violations", "officer-1", LogViolationRequest{
		VehicleID:        "ABC 123",
		OffenseCode:      4,
		EvidenceRef:      "ipfs://evidence",
		ResponsibleParty: "driver-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeResponse[LogViolationResponse](t, rec).ID
	assert.Equal(t, "/api/v1/violations/"+id, rec.Header().Get("Location"))

	rec = ts.do(t, http.MethodGet, "/api/v1/violations/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	violation := decodeResponse[ViolationResponse](t, rec)
	assert.Equal(t, "unpaid", violation.Status)
	assert.Equal(t, Units(10_000_000_000), violation.Fine.Units)
	assert.Equal(t, "10000.00", violation.Fine.Amount)

	rec = ts.do(
		t,
		http.MethodPost,
		"/api/v1/violations/"+id+"/payment",
		"driver-1",
		map[string]string{"payment": "10000500000"},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	change := decodeResponse[PayFineResponse](t, rec).Change
	assert.Equal(t, Units(500_000), change.Units)
	assert.Equal(t, "0.50", change.Amount)

	rec = ts.do(t, http.MethodPost, "/api/v1/violations/"+id+"/appeal", "driver-1", SubmitAppealRequest{
		Reason: "I was not driving",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = ts.do(
		t,
		http.MethodPost,
		"/api/v1/violations/"+id+"/appeal/resolution",
		"admin",
		ResolveAppealRequest{Approve: true, Resolution: "plate misread"},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "refunded", decodeResponse[ViolationResponse](t, rec).Status)

	rec = ts.do(t, http.MethodGet, "/api/v1/refunds/driver-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Units(10_000_000_000), decodeResponse[RefundResponse](t, rec).Pending.Units)

	rec = ts.do(t, http.MethodPost, "/api/v1/refunds/claim", "driver-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, Units(10_000_000_000), decodeResponse[ClaimRefundResponse](t, rec).Claimed.Units)

	rec = ts.do(t, http.MethodPost, "/api/v1/refunds/claim", "driver-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/violations/"+id+"/appeal", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	appeal := decodeResponse[AppealResponse](t, rec)
	assert.True(t, appeal.Approved)
	require.NotNil(t, appeal.ResolvedAt)

	rec = ts.do(t, http.MethodGet, "/api/v1/vehicles/ABC%20123/violations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))
	assert.Len(t, decodeResponse[[]ViolationResponse](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/v1/dashboard", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/audit/verify", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse[VerifyResponse](t, rec).Valid)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, ServerConfig{})
	unknownID := ledger.ViolationID{1}.String()

	testDefs := []struct {
		method string
		path   string
		caller ledger.Principal
		body   any
		status int
		kind   string
	}{
		{http.MethodPost, "/api/v1/pause", "mallory", nil, http.StatusForbidden, "unauthorized"},
		{http.MethodGet, "/api/v1/violations/" + unknownID, "", nil, http.StatusNotFound, "not_found"},
		{http.MethodGet, "/api/v1/violations/xyz", "", nil, http.StatusBadRequest, "invalid_input"},
		{http.MethodGet, "/api/v1/offenses/70000", "", nil, http.StatusBadRequest, "bad_request"},
		{http.MethodGet, "/api/v1/offenses/99", "", nil, http.StatusNotFound, "not_found"},
		{http.MethodGet, "/api/v1/officers/nobody", "", nil, http.StatusNotFound, "not_found"},
		{http.MethodGet, "/api/v1/roles/wizard/admin", "", nil, http.StatusBadRequest, "invalid_input"},
		{
			http.MethodPost, "/api/v1/treasury/withdrawals", "admin",
			map[string]any{"recipient": "city", "amount": 5},
			http.StatusConflict, "invalid_state",
		},
		{
			http.MethodPost, "/api/v1/officers", "admin",
			map[string]any{"principal": "x", "unknown": true},
			http.StatusBadRequest, "bad_request",
		},
		{http.MethodPost, "/api/v1/pause", "admin", nil, http.StatusNoContent, ""},
		{http.MethodPost, "/api/v1/pause", "admin", nil, http.StatusConflict, "invalid_state"},
		{http.MethodPost, "/api/v1/refunds/claim", "driver-1", nil, http.StatusServiceUnavailable, "paused"},
	}
	for idx, testDef := range testDefs {
		rec := ts.do(t, testDef.method, testDef.path, testDef.caller, testDef.body)
		require.Equal(t, testDef.status, rec.Code, "case %d: %s", idx, rec.Body.String())
		if testDef.kind != "" {
			assert.Equal(t, testDef.kind, decodeResponse[ErrorResponse](t, rec).Error, "case %d", idx)
		}
	}
}

func TestStatusForError(t *testing.T) {
	testDefs := []struct {
		err    error
		status int
	}{
		{ledger.ErrUnauthorized, http.StatusForbidden},
		{ledger.ErrNotFound, http.StatusNotFound},
		{ledger.ErrInvalidInput, http.StatusBadRequest},
		{ledger.ErrInvalidState, http.StatusConflict},
		{ledger.ErrReentrantCall, http.StatusConflict},
		{ledger.ErrInsufficientFunds, http.StatusConflict},
		{ledger.ErrRateLimited, http.StatusTooManyRequests},
		{ledger.ErrPaused, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: custody", ledger.ErrTransferFailed), http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, testDef := range testDefs {
		assert.Equal(t, testDef.status, statusForError(testDef.err), testDef.err.Error())
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, ServerConfig{RateLimit: 0.001, RateBurst: 2})
	for range 2 {
		rec := ts.do(t, http.MethodGet, "/health", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Other clients have their own bucket
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnits(t *testing.T) {
	var u Units
	require.NoError(t, json.Unmarshal([]byte(`"18446744073709551615"`), &u))
	assert.Equal(t, Units(^uint64(0)), u)
	require.NoError(t, json.Unmarshal([]byte(`42`), &u))
	assert.Equal(t, Units(42), u)
	require.Error(t, json.Unmarshal([]byte(`-1`), &u))
	require.Error(t, json.Unmarshal([]byte(`""`), &u))

	data, err := json.Marshal(newMoney(1_234_567))
	require.NoError(t, err)
	assert.JSONEq(t, `{"units":"1234567","amount":"1.23"}`, string(data))
}

func TestStartStop(t *testing.T) {
	ts := newTestServer(t, ServerConfig{ListenAddress: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ts.server.Start(ctx))
	require.Error(t, ts.server.Start(ctx))
	require.NoError(t, ts.server.Stop(context.Background()))
	require.NoError(t, ts.server.Stop(context.Background()))
}
