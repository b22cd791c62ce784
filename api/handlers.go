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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/TechTribalist/Traffic/ledger"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 100
	maxBodyBytes     = 64 << 10
)

var errBadRequest = errors.New("bad request")

// writeJSON writes a JSON response with the given status code
func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(
	w http.ResponseWriter,
	status int,
	errStr string,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      errStr,
		Message:    message,
		RequestID:  w.Header().Get(requestIDHeader),
	})
}

// statusForError maps ledger error classes to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ledger.ErrPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeLedgerError(
	w http.ResponseWriter,
	r *http.Request,
	err error,
) {
	status := statusForError(err)
	kind := ledger.ErrorKind(err)
	if errors.Is(err, errBadRequest) {
		kind = "bad_request"
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error(
			"request failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		message = "internal error"
	}
	writeError(w, status, kind, message)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %w", errBadRequest, err)
	}
	return nil
}

func pathViolationID(r *http.Request) (ledger.ViolationID, error) {
	return ledger.ParseViolationID(r.PathValue("id"))
}

func pathRole(r *http.Request) (ledger.Role, error) {
	return ledger.ParseRole(r.PathValue("role"))
}

func pathOffenseCode(r *http.Request) (uint16, error) {
	code, err := strconv.ParseUint(r.PathValue("code"), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: offense code: %w", errBadRequest, err)
	}
	return uint16(code), nil
}

// queryUint parses an optional unsigned query parameter
func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", errBadRequest, name, err)
	}
	return v, nil
}

// pageLimit parses the limit parameter and clamps it to MaxPageLimit
func pageLimit(r *http.Request) (int, error) {
	limit, err := queryUint(r, "limit", DefaultPageLimit)
	if err != nil {
		return 0, err
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return int(limit), nil //nolint:gosec
}

func (s *Server) handleHealth(
	w http.ResponseWriter,
	_ *http.Request,
) {
	seq, head := s.ledger.AuditHead()
	writeJSON(w, http.StatusOK, HealthResponse{
		IsHealthy: true,
		Paused:    s.ledger.Paused(),
		AuditSeq:  seq,
		AuditHead: head.String(),
	})
}

func (s *Server) handleStatus(
	w http.ResponseWriter,
	_ *http.Request,
) {
	resp := StatusResponse{Paused: s.ledger.Paused()}
	if upgrade, ok := s.ledger.AuthorizedUpgrade(); ok {
		resp.Upgrade = &UpgradeResponse{
			Target:       upgrade.Target,
			AuthorizedBy: upgrade.AuthorizedBy.String(),
			AuthorizedAt: upgrade.AuthorizedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatistics(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, newStatisticsResponse(s.ledger.Statistics()))
}

func (s *Server) handleDashboard(
	w http.ResponseWriter,
	_ *http.Request,
) {
	if s.dashboard == nil {
		writeError(
			w,
			http.StatusNotFound,
			"not_found",
			"dashboard is not enabled",
		)
		return
	}
	writeJSON(w, http.StatusOK, newDashboardResponse(s.dashboard.Summary()))
}

func (s *Server) handleOffenseCatalog(
	w http.ResponseWriter,
	_ *http.Request,
) {
	catalog := s.ledger.OffenseCatalog()
	resp := make([]OffenseResponse, 0, len(catalog))
	for _, offense := range catalog {
		resp = append(resp, newOffenseResponse(offense))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetOffense(
	w http.ResponseWriter,
	r *http.Request,
) {
	code, err := pathOffenseCode(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	offense, err := s.ledger.GetOffense(code)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOffenseResponse(offense))
}

func (s *Server) handleGetOfficer(
	w http.ResponseWriter,
	r *http.Request,
) {
	officer, err := s.ledger.GetOfficer(ledger.Principal(r.PathValue("principal")))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOfficerResponse(officer))
}

func (s *Server) handleHasRole(
	w http.ResponseWriter,
	r *http.Request,
) {
	role, err := pathRole(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	principal := ledger.Principal(r.PathValue("principal"))
	writeJSON(w, http.StatusOK, RoleResponse{
		Role:      role.String(),
		Principal: principal.String(),
		HasRole:   s.ledger.HasRole(role, principal),
	})
}

func (s *Server) handleGetViolation(
	w http.ResponseWriter,
	r *http.Request,
) {
	id, err := pathViolationID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	violation, err := s.ledger.GetViolation(id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newViolationResponse(violation))
}

func (s *Server) handleGetAppeal(
	w http.ResponseWriter,
	r *http.Request,
) {
	id, err := pathViolationID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	appeal, err := s.ledger.GetAppeal(id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppealResponse(appeal))
}

// handleVehicleViolations returns one page of a vehicle's violations in
// issuance order. The total count is returned in X-Total-Count.
func (s *Server) handleVehicleViolations(
	w http.ResponseWriter,
	r *http.Request,
) {
	offset, err := queryUint(r, "offset", 0)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	limit, err := pageLimit(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	vehicle := r.PathValue("vehicle")
	total := len(s.ledger.GetVehicleViolations(vehicle, 0, 0))
	ids := s.ledger.GetVehicleViolations(vehicle, uint(offset), uint(limit))
	resp := make([]ViolationResponse, 0, len(ids))
	for _, id := range ids {
		violation, err := s.ledger.GetViolation(id)
		if err != nil {
			s.writeLedgerError(w, r, err)
			return
		}
		resp = append(resp, newViolationResponse(violation))
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePendingRefund(
	w http.ResponseWriter,
	r *http.Request,
) {
	principal := ledger.Principal(r.PathValue("principal"))
	writeJSON(w, http.StatusOK, RefundResponse{
		Principal: principal.String(),
		Pending:   newMoney(s.ledger.PendingRefund(principal)),
	})
}

func (s *Server) handleAuditEntries(
	w http.ResponseWriter,
	r *http.Request,
) {
	from, err := queryUint(r, "from", 1)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	limit, err := pageLimit(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	seq, _ := s.ledger.AuditHead()
	writeJSON(w, http.StatusOK, AuditPageResponse{
		Entries: s.ledger.AuditEntries(from, limit),
		HeadSeq: seq,
	})
}

func (s *Server) handleVerifyAudit(
	w http.ResponseWriter,
	_ *http.Request,
) {
	seq, head := s.ledger.AuditHead()
	resp := VerifyResponse{
		Valid:    true,
		HeadSeq:  seq,
		HeadHash: head.String(),
	}
	if err := s.ledger.VerifyAuditLog(); err != nil {
		s.logger.Error("audit verification failed", "error", err)
		resp.Valid = false
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGrantRole(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
) {
	role, err := pathRole(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	principal := ledger.Principal(r.PathValue("principal"))
	if err := s.ledger.GrantRole(r.Context(), caller, role, principal); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevokeRole(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
) {
	role, err := pathRole(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	principal := ledger.Principal(r.PathValue("principal"))
	if err := s.ledger.RevokeRole(r.Context(), caller, role, principal); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegisterOfficer(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
) {
	var req RegisterOfficerRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	principal := ledger.Principal(req.Principal)
	if err := s.ledger.RegisterOfficer(
		r.Context(),
		caller,
		principal,
		req.Name,
		req.Badge,
	); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	officer, err := s.ledger.GetOfficer(principal)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOfficerResponse(officer))
}

func (s *Server) handleDeactivateOfficer(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
) {
	principal := ledger.Principal(r.PathValue("principal"))
	if err := s.ledger.DeactivateOfficer(r.Context(), caller, principal); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateOffense(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
) {
	code, err := pathOffenseCode(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	var req UpdateOffenseRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if err := s.ledger.UpdateOffense(
		r.Context(),
		caller,
		code,
		req.Name,
		req.Amount,
		req.Active,
	); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	offense, err := s.ledger.GetOffense(code)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOffenseResponse(offense))
}

func (s *Server) handleLogViolation(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
) {
	var req LogViolationRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	id, err := s.ledger.LogViolation(
		r.Context(),
		caller,
		req.VehicleID,
		req.OffenseCode,
		req.EvidenceRef,
		ledger.Principal(req.ResponsibleParty),
	)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/violations/"+id.String())
	writeJSON(w, http.StatusCreated, LogViolationResponse{ID: id.String()})
}

func (s *Server) handlePayFine(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
) {
	id, err := pathViolationID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	var req PayFineRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	change, err := s.ledger.PayFine(r.Context(), caller, id, uint64(req.Payment))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PayFineResponse{Change: newMoney(change)})
}

func (s *Server) handleSubmitAppeal(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
) {
	id, err := pathViolationID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	var req SubmitAppealRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if err := s.ledger.SubmitAppeal(r.Context(), caller, id, req.Reason); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleResolveAppeal(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
) {
	id, err := pathViolationID(r)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	var req ResolveAppealRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if err := s.ledger.ResolveAppeal(
		r.Context(),
		caller,
		id,
		req.Approve,
		req.Resolution,
	); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	violation, err := s.ledger.GetViolation(id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newViolationResponse(violation))
}

func (s *Server) handleClaimRefund(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
) {
	amount, err := s.ledger.ClaimRefund(r.Context(), caller)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimRefundResponse{Claimed: newMoney(amount)})
}

func (s *Server) handleWithdraw(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
) {
	var req WithdrawRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if err := s.ledger.WithdrawFunds(
		r.Context(),
		caller,
		ledger.Principal(req.Recipient),
		uint64(req.Amount),
	); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatisticsResponse(s.ledger.Statistics()))
}

func (s *Server) handleAuthorizeUpgrade(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
) {
	var req UpgradeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if err := s.ledger.AuthorizeUpgrade(r.Context(), caller, req.Target); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
) {
	if err := s.ledger.Pause(r.Context(), caller); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnpause(
	w http.ResponseWriter,
	r *http.Request,
	caller ledger.Principal,
) {
	if err := s.ledger.Unpause(r.Context(), caller); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
