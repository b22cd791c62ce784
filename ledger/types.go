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

package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Principal is an authenticated identity as presented by the hosting runtime
type Principal string

func (p Principal) IsZero() bool {
	return strings.TrimSpace(string(p)) == ""
}

func (p Principal) String() string {
	return string(p)
}

type Role uint8

const (
	RoleAdmin Role = iota + 1
	RoleOfficerManager
	RoleOfficer
	RoleJudge
	RoleTreasury
	RoleUpgrader
)

// AllRoles lists every role in declaration order. The bootstrap principal
// receives all of them.
var AllRoles = []Role{
	RoleAdmin,
	RoleOfficerManager,
	RoleOfficer,
	RoleJudge,
	RoleTreasury,
	RoleUpgrader,
}

var roleNames = map[Role]string{
	RoleAdmin:          "admin",
	RoleOfficerManager: "officer_manager",
	RoleOfficer:        "officer",
	RoleJudge:          "judge",
	RoleTreasury:       "treasury",
	RoleUpgrader:       "upgrader",
}

func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("unknown role: %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(data []byte) error {
	tmpRole, err := ParseRole(string(data))
	if err != nil {
		return err
	}
	*r = tmpRole
	return nil
}

// ParseRole returns the role matching the given name
func ParseRole(name string) (Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for role, roleName := range roleNames {
		if roleName == name {
			return role, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, name)
}

type ViolationStatus uint8

const (
	StatusUnpaid ViolationStatus = iota
	StatusPaid
	StatusAppealed
	StatusWaived
	StatusRejected
	StatusRefunded
)

var statusNames = []string{
	StatusUnpaid:   "unpaid",
	StatusPaid:     "paid",
	StatusAppealed: "appealed",
	StatusWaived:   "waived",
	StatusRejected: "rejected",
	StatusRefunded: "refunded",
}

func (s ViolationStatus) Valid() bool {
	return int(s) < len(statusNames)
}

func (s ViolationStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", uint8(s))
	}
	return statusNames[s]
}

func (s ViolationStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown violation status: %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *ViolationStatus) UnmarshalText(data []byte) error {
	for idx, name := range statusNames {
		if name == string(data) {
			*s = ViolationStatus(idx) //nolint:gosec
			return nil
		}
	}
	return fmt.Errorf("unknown violation status: %q", string(data))
}

// ViolationID is the content-derived identifier of a violation
type ViolationID [32]byte

func (id ViolationID) IsZero() bool {
	return id == ViolationID{}
}

func (id ViolationID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ViolationID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ViolationID) UnmarshalText(data []byte) error {
	tmpId, err := ParseViolationID(string(data))
	if err != nil {
		return err
	}
	*id = tmpId
	return nil
}

// ParseViolationID decodes a hex violation identifier, with or without a 0x prefix
func ParseViolationID(s string) (ViolationID, error) {
	var ret ViolationID
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != hex.EncodedLen(len(ret)) {
		return ret, fmt.Errorf(
			"%w: violation id must be %d hex characters",
			ErrInvalidInput,
			hex.EncodedLen(len(ret)),
		)
	}
	if _, err := hex.Decode(ret[:], []byte(s)); err != nil {
		return ret, fmt.Errorf("%w: violation id: %w", ErrInvalidInput, err)
	}
	return ret, nil
}

// Officer is a registered enforcement principal. Records are never deleted.
// Active is derived from current Officer role membership and is not stored.
type Officer struct {
	RegisteredAt  time.Time `json:"registeredAt"`
	Principal     Principal `json:"principal"`
	Name          string    `json:"name"`
	Badge         string    `json:"badge"`
	LastIssuedDay int64     `json:"lastIssuedDay"`
	IssuedToday   uint32    `json:"issuedToday"`
	Active        bool      `json:"active"`
}

// Offense is a catalog entry. Amount is in whole currency units.
type Offense struct {
	Name   string `json:"name"`
	Amount uint64 `json:"amount"`
	Code   uint16 `json:"code"`
	Active bool   `json:"active"`
}

type Violation struct {
	IssuedAt         time.Time       `json:"issuedAt"`
	VehicleID        string          `json:"vehicleId"`
	Officer          Principal       `json:"officer"`
	EvidenceRef      string          `json:"evidenceRef"`
	ResponsibleParty Principal       `json:"responsibleParty"`
	PaidBy           Principal       `json:"paidBy,omitempty"`
	Seq              uint64          `json:"seq"`
	FineAmount       uint64          `json:"fineAmount"`
	PaidAmount       uint64          `json:"paidAmount"`
	ID               ViolationID     `json:"id"`
	OffenseCode      uint16          `json:"offenseCode"`
	Status           ViolationStatus `json:"status"`
}

// Appeal is the single appeal slot attached to a violation. The slot is
// reused on resubmission.
type Appeal struct {
	SubmittedAt     time.Time   `json:"submittedAt"`
	ResolvedAt      time.Time   `json:"resolvedAt"`
	LastSubmittedAt time.Time   `json:"lastSubmittedAt"`
	Appellant       Principal   `json:"appellant"`
	Reason          string      `json:"reason"`
	Resolution      string      `json:"resolution"`
	ResolvedBy      Principal   `json:"resolvedBy,omitempty"`
	Submissions     uint32      `json:"submissions"`
	ViolationID     ViolationID `json:"violationId"`
	Resolved        bool        `json:"resolved"`
	Approved        bool        `json:"approved"`
}

// Statistics holds aggregate counters, all in ledger units except
// TotalViolations
type Statistics struct {
	TotalViolations    uint64 `json:"totalViolations"`
	TotalFinesPaid     uint64 `json:"totalFinesPaid"`
	TotalFinesRefunded uint64 `json:"totalFinesRefunded"`
	TotalWithdrawn     uint64 `json:"totalWithdrawn"`
}

// Available returns the custody balance not reserved for refunds or
// already withdrawn. It is zero while there is a shortfall.
func (s Statistics) Available() uint64 {
	if s.TotalFinesRefunded >= s.TotalFinesPaid {
		return 0
	}
	rest := s.TotalFinesPaid - s.TotalFinesRefunded
	if s.TotalWithdrawn >= rest {
		return 0
	}
	return rest - s.TotalWithdrawn
}

// Shortfall returns how much refunds and withdrawals together exceed the
// fines collected. It becomes nonzero when an appeal is approved after the
// fine it refunds was already withdrawn.
func (s Statistics) Shortfall() uint64 {
	if s.TotalFinesRefunded >= s.TotalFinesPaid {
		return s.TotalFinesRefunded - s.TotalFinesPaid + s.TotalWithdrawn
	}
	rest := s.TotalFinesPaid - s.TotalFinesRefunded
	if s.TotalWithdrawn <= rest {
		return 0
	}
	return s.TotalWithdrawn - rest
}

// Upgrade records the most recent logic upgrade authorization
type Upgrade struct {
	AuthorizedAt time.Time `json:"authorizedAt"`
	Target       string    `json:"target"`
	AuthorizedBy Principal `json:"authorizedBy"`
}
