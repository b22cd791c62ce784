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
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"time"

	"github.com/TechTribalist/Traffic/ledger"
	"github.com/TechTribalist/Traffic/report"
	"github.com/shopspring/decimal"
)

// currencyExponent is the decimal exponent of one ledger unit
const currencyExponent = -6

// Units is an amount in ledger units. It is encoded as a decimal string so
// values above 2^53 survive JSON clients, and decodes from a string or a
// bare integer.
type Units uint64

func (u Units) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(u), 10))
}

func (u *Units) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 {
		return errors.New("empty amount")
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return err
	}
	*u = Units(v)
	return nil
}

// Money pairs exact ledger units with a currency rendering
type Money struct {
	Units  Units  `json:"units"`
	Amount string `json:"amount"`
}

func newMoney(units uint64) Money {
	value := decimal.NewFromBigInt(
		new(big.Int).SetUint64(units),
		currencyExponent,
	)
	return Money{
		Units:  Units(units),
		Amount: value.StringFixed(2),
	}
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RequestID  string `json:"requestId,omitempty"`
	StatusCode int    `json:"status_code"`
}

type HealthResponse struct {
	AuditHead string `json:"auditHead"`
	AuditSeq  uint64 `json:"auditSeq"`
	IsHealthy bool   `json:"is_healthy"`
	Paused    bool   `json:"paused"`
}

type StatusResponse struct {
	Upgrade *UpgradeResponse `json:"upgrade,omitempty"`
	Paused  bool             `json:"paused"`
}

type UpgradeResponse struct {
	AuthorizedAt time.Time `json:"authorizedAt"`
	Target       string    `json:"target"`
	AuthorizedBy string    `json:"authorizedBy"`
}

type StatisticsResponse struct {
	TotalViolations    uint64 `json:"totalViolations"`
	TotalFinesPaid     Money  `json:"totalFinesPaid"`
	TotalFinesRefunded Money  `json:"totalFinesRefunded"`
	TotalWithdrawn     Money  `json:"totalWithdrawn"`
	Available          Money  `json:"available"`
	Shortfall          Money  `json:"shortfall"`
}

func newStatisticsResponse(s ledger.Statistics) StatisticsResponse {
	return StatisticsResponse{
		TotalViolations:    s.TotalViolations,
		TotalFinesPaid:     newMoney(s.TotalFinesPaid),
		TotalFinesRefunded: newMoney(s.TotalFinesRefunded),
		TotalWithdrawn:     newMoney(s.TotalWithdrawn),
		Available:          newMoney(s.Available()),
		Shortfall:          newMoney(s.Shortfall()),
	}
}

type DashboardResponse struct {
	report.Summary
	FinesCollected Money `json:"finesCollected"`
	RefundsQueued  Money `json:"refundsQueued"`
	RefundsClaimed Money `json:"refundsClaimed"`
	Withdrawn      Money `json:"withdrawn"`
}

func newDashboardResponse(s report.Summary) DashboardResponse {
	return DashboardResponse{
		Summary:        s,
		FinesCollected: newMoney(s.FinesCollected),
		RefundsQueued:  newMoney(s.RefundsQueued),
		RefundsClaimed: newMoney(s.RefundsClaimed),
		Withdrawn:      newMoney(s.Withdrawn),
	}
}

type OffenseResponse struct {
	Name   string `json:"name"`
	Fine   Money  `json:"fine"`
	Code   uint16 `json:"code"`
	Active bool   `json:"active"`
}

func newOffenseResponse(o ledger.Offense) OffenseResponse {
	// Catalog amounts are whole currency units, validated to fit on update
	return OffenseResponse{
		Code:   o.Code,
		Name:   o.Name,
		Fine:   newMoney(o.Amount * ledger.UnitsPerCurrencyUnit),
		Active: o.Active,
	}
}

type OfficerResponse struct {
	RegisteredAt  time.Time `json:"registeredAt"`
	Principal     string    `json:"principal"`
	Name          string    `json:"name"`
	Badge         string    `json:"badge"`
	IssuedToday   uint32    `json:"issuedToday"`
	LastIssuedDay int64     `json:"lastIssuedDay"`
	Active        bool      `json:"active"`
}

func newOfficerResponse(o ledger.Officer) OfficerResponse {
	return OfficerResponse{
		Principal:     o.Principal.String(),
		Name:          o.Name,
		Badge:         o.Badge,
		RegisteredAt:  o.RegisteredAt,
		IssuedToday:   o.IssuedToday,
		LastIssuedDay: o.LastIssuedDay,
		Active:        o.Active,
	}
}

type ViolationResponse struct {
	IssuedAt         time.Time `json:"issuedAt"`
	ID               string    `json:"id"`
	VehicleID        string    `json:"vehicleId"`
	Officer          string    `json:"officer"`
	EvidenceRef      string    `json:"evidenceRef"`
	ResponsibleParty string    `json:"responsibleParty"`
	PaidBy           string    `json:"paidBy,omitempty"`
	Status           string    `json:"status"`
	Fine             Money     `json:"fine"`
	Paid             Money     `json:"paid"`
	Seq              uint64    `json:"seq"`
	OffenseCode      uint16    `json:"offenseCode"`
}

func newViolationResponse(v ledger.Violation) ViolationResponse {
	return ViolationResponse{
		ID:               v.ID.String(),
		Seq:              v.Seq,
		VehicleID:        v.VehicleID,
		Officer:          v.Officer.String(),
		OffenseCode:      v.OffenseCode,
		EvidenceRef:      v.EvidenceRef,
		IssuedAt:         v.IssuedAt,
		ResponsibleParty: v.ResponsibleParty.String(),
		PaidBy:           v.PaidBy.String(),
		Status:           v.Status.String(),
		Fine:             newMoney(v.FineAmount),
		Paid:             newMoney(v.PaidAmount),
	}
}

type AppealResponse struct {
	SubmittedAt     time.Time  `json:"submittedAt"`
	LastSubmittedAt time.Time  `json:"lastSubmittedAt"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	ViolationID     string     `json:"violationId"`
	Appellant       string     `json:"appellant"`
	Reason          string     `json:"reason"`
	Resolution      string     `json:"resolution,omitempty"`
	ResolvedBy      string     `json:"resolvedBy,omitempty"`
	Submissions     uint32     `json:"submissions"`
	Resolved        bool       `json:"resolved"`
	Approved        bool       `json:"approved"`
}

func newAppealResponse(a ledger.Appeal) AppealResponse {
	ret := AppealResponse{
		ViolationID:     a.ViolationID.String(),
		Appellant:       a.Appellant.String(),
		Reason:          a.Reason,
		Resolution:      a.Resolution,
		ResolvedBy:      a.ResolvedBy.String(),
		SubmittedAt:     a.SubmittedAt,
		LastSubmittedAt: a.LastSubmittedAt,
		Submissions:     a.Submissions,
		Resolved:        a.Resolved,
		Approved:        a.Approved,
	}
	if !a.ResolvedAt.IsZero() {
		resolvedAt := a.ResolvedAt
		ret.ResolvedAt = &resolvedAt
	}
	return ret
}

type RefundResponse struct {
	Principal string `json:"principal"`
	Pending   Money  `json:"pending"`
}

type RoleResponse struct {
	Role      string `json:"role"`
	Principal string `json:"principal"`
	HasRole   bool   `json:"hasRole"`
}

type AuditPageResponse struct {
	Entries []ledger.AuditEntry `json:"entries"`
	HeadSeq uint64              `json:"headSeq"`
}

type VerifyResponse struct {
	Error    string `json:"error,omitempty"`
	HeadHash string `json:"headHash"`
	HeadSeq  uint64 `json:"headSeq"`
	Valid    bool   `json:"valid"`
}

type RegisterOfficerRequest struct {
	Principal string `json:"principal"`
	Name      string `json:"name"`
	Badge     string `json:"badge"`
}

type UpdateOffenseRequest struct {
	Name   string `json:"name"`
	Amount uint64 `json:"amount"`
	Active bool   `json:"active"`
}

type LogViolationRequest struct {
	VehicleID        string `json:"vehicleId"`
	EvidenceRef      string `json:"evidenceRef"`
	ResponsibleParty string `json:"responsibleParty"`
	OffenseCode      uint16 `json:"offenseCode"`
}

type LogViolationResponse struct {
	ID string `json:"id"`
}

type PayFineRequest struct {
	Payment Units `json:"payment"`
}

type PayFineResponse struct {
	Change Money `json:"change"`
}

type SubmitAppealRequest struct {
	Reason string `json:"reason"`
}

type ResolveAppealRequest struct {
	Resolution string `json:"resolution"`
	Approve    bool   `json:"approve"`
}

type ClaimRefundResponse struct {
	Claimed Money `json:"claimed"`
}

type WithdrawRequest struct {
	Recipient string `json:"recipient"`
	Amount    Units  `json:"amount"`
}

type UpgradeRequest struct {
	Target string `json:"target"`
}
