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

	"github.com/TechTribalist/Traffic/ledger"
	"github.com/TechTribalist/Traffic/report"
)

// Ledger is the subset of the enforcement ledger served by the API. It is
// satisfied by *ledger.Ledger.
type Ledger interface {
	GrantRole(ctx context.Context, caller ledger.Principal, role ledger.Role, principal ledger.Principal) error
	RevokeRole(ctx context.Context, caller ledger.Principal, role ledger.Role, principal ledger.Principal) error
	RegisterOfficer(ctx context.Context, caller ledger.Principal, principal ledger.Principal, name string, badge string) error
	DeactivateOfficer(ctx context.Context, caller ledger.Principal, principal ledger.Principal) error
	UpdateOffense(ctx context.Context, caller ledger.Principal, code uint16, name string, amount uint64, active bool) error
	LogViolation(
		ctx context.Context,
		caller ledger.Principal,
		vehicleID string,
		offenseCode uint16,
		evidenceRef string,
		responsibleParty ledger.Principal,
	) (ledger.ViolationID, error)
	PayFine(ctx context.Context, caller ledger.Principal, id ledger.ViolationID, payment uint64) (uint64, error)
	SubmitAppeal(ctx context.Context, caller ledger.Principal, id ledger.ViolationID, reason string) error
	ResolveAppeal(ctx context.Context, caller ledger.Principal, id ledger.ViolationID, approve bool, resolution string) error
	ClaimRefund(ctx context.Context, caller ledger.Principal) (uint64, error)
	WithdrawFunds(ctx context.Context, caller ledger.Principal, recipient ledger.Principal, amount uint64) error
	AuthorizeUpgrade(ctx context.Context, caller ledger.Principal, target string) error
	Pause(ctx context.Context, caller ledger.Principal) error
	Unpause(ctx context.Context, caller ledger.Principal) error

	HasRole(role ledger.Role, p ledger.Principal) bool
	GetOfficer(p ledger.Principal) (ledger.Officer, error)
	GetOffense(code uint16) (ledger.Offense, error)
	OffenseCatalog() []ledger.Offense
	GetViolation(id ledger.ViolationID) (ledger.Violation, error)
	GetVehicleViolations(vehicleID string, offset uint, limit uint) []ledger.ViolationID
	GetAppeal(id ledger.ViolationID) (ledger.Appeal, error)
	PendingRefund(p ledger.Principal) uint64
	Statistics() ledger.Statistics
	Paused() bool
	AuthorizedUpgrade() (ledger.Upgrade, bool)
	AuditEntries(from uint64, limit int) []ledger.AuditEntry
	AuditHead() (uint64, ledger.AuditHash)
	VerifyAuditLog() error
}

// Dashboard provides the audit-derived summary. It is satisfied by
// *report.Dashboard.
type Dashboard interface {
	Summary() report.Summary
}
