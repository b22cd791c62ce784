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
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/TechTribalist/Traffic/database/models"
	"github.com/TechTribalist/Traffic/database/types"
)

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// changeSet collects the rows touched by the transaction
func (t *txn) changeSet() (*models.ChangeSet, error) {
	s := t.state()
	cs := &models.ChangeSet{}
	for key, granted := range t.dirty.roles {
		row := models.RoleGrant{
			Role:      uint8(key.role),
			Principal: string(key.principal),
		}
		if granted {
			cs.GrantedRoles = append(cs.GrantedRoles, row)
		} else {
			cs.RevokedRoles = append(cs.RevokedRoles, row)
		}
	}
	for p := range t.dirty.officers {
		cs.Officers = append(cs.Officers, officerModel(s.officers[p]))
	}
	for code := range t.dirty.offenses {
		cs.Offenses = append(cs.Offenses, offenseModel(s.offenses[code]))
	}
	for id := range t.dirty.violations {
		cs.Violations = append(cs.Violations, violationModel(s.violations[id]))
	}
	for id := range t.dirty.appeals {
		cs.Appeals = append(cs.Appeals, appealModel(s.appeals[id]))
	}
	for p := range t.dirty.refunds {
		cs.Refunds = append(cs.Refunds, models.PendingRefund{
			Principal: string(p),
			Amount:    types.Uint64(s.refunds[p]),
		})
	}
	if t.dirty.meta {
		meta := metaModel(s)
		cs.Meta = &meta
	}
	for _, entry := range t.entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("encode audit entry %d: %w", entry.Seq, err)
		}
		cs.Journal = append(cs.Journal, models.JournalRecord{
			Seq:   entry.Seq,
			Value: data,
		})
	}
	return cs, nil
}

func officerModel(o Officer) models.Officer {
	return models.Officer{
		Principal:     string(o.Principal),
		Name:          o.Name,
		Badge:         o.Badge,
		RegisteredAt:  toUnixNano(o.RegisteredAt),
		LastIssuedDay: o.LastIssuedDay,
		IssuedToday:   o.IssuedToday,
	}
}

func offenseModel(o Offense) models.Offense {
	return models.Offense{
		Code:   o.Code,
		Name:   o.Name,
		Amount: types.Uint64(o.Amount),
		Active: o.Active,
	}
}

func violationModel(v Violation) models.Violation {
	return models.Violation{
		ID:               slices.Clone(v.ID[:]),
		Seq:              v.Seq,
		VehicleID:        v.VehicleID,
		Officer:          string(v.Officer),
		OffenseCode:      v.OffenseCode,
		EvidenceRef:      v.EvidenceRef,
		IssuedAt:         toUnixNano(v.IssuedAt),
		FineAmount:       types.Uint64(v.FineAmount),
		Status:           uint8(v.Status),
		ResponsibleParty: string(v.ResponsibleParty),
		PaidAmount:       types.Uint64(v.PaidAmount),
		PaidBy:           string(v.PaidBy),
	}
}

func appealModel(a Appeal) models.Appeal {
	return models.Appeal{
		ViolationID:     slices.Clone(a.ViolationID[:]),
		Appellant:       string(a.Appellant),
		Reason:          a.Reason,
		Resolution:      a.Resolution,
		ResolvedBy:      string(a.ResolvedBy),
		SubmittedAt:     toUnixNano(a.SubmittedAt),
		ResolvedAt:      toUnixNano(a.ResolvedAt),
		LastSubmittedAt: toUnixNano(a.LastSubmittedAt),
		Submissions:     a.Submissions,
		Resolved:        a.Resolved,
		Approved:        a.Approved,
	}
}

func metaModel(s *state) models.LedgerMeta {
	return models.LedgerMeta{
		ID:                  models.LedgerMetaRowId,
		TotalViolations:     types.Uint64(s.stats.TotalViolations),
		TotalFinesPaid:      types.Uint64(s.stats.TotalFinesPaid),
		TotalFinesRefunded:  types.Uint64(s.stats.TotalFinesRefunded),
		TotalWithdrawn:      types.Uint64(s.stats.TotalWithdrawn),
		ViolationSeq:        s.violationSeq,
		Paused:              s.paused,
		UpgradeTarget:       s.upgrade.Target,
		UpgradeAuthorizedBy: string(s.upgrade.AuthorizedBy),
		UpgradeAuthorizedAt: toUnixNano(s.upgrade.AuthorizedAt),
		AuditSeq:            s.auditSeq,
		AuditHead:           slices.Clone(s.auditHead[:]),
	}
}

func violationIDFromBytes(data []byte) (ViolationID, error) {
	var id ViolationID
	if len(data) != len(id) {
		return id, fmt.Errorf("violation id has %d bytes, expected %d", len(data), len(id))
	}
	copy(id[:], data)
	return id, nil
}

// load rebuilds the state from the database. It returns false when the
// database has never been initialized.
func (ls *Ledger) load() (bool, error) {
	snapshot, err := ls.config.Database.LoadSnapshot()
	if err != nil {
		return false, err
	}
	if snapshot.Meta == nil {
		if len(snapshot.Journal) > 0 {
			return false, errors.New("audit journal present without ledger metadata")
		}
		return false, nil
	}
	s := newState()
	for _, grant := range snapshot.Roles {
		role := Role(grant.Role)
		if !role.Valid() {
			return false, fmt.Errorf("unknown role %d in role grants", grant.Role)
		}
		s.roles[role][Principal(grant.Principal)] = struct{}{}
	}
	for _, o := range snapshot.Officers {
		s.officers[Principal(o.Principal)] = Officer{
			Principal:     Principal(o.Principal),
			Name:          o.Name,
			Badge:         o.Badge,
			RegisteredAt:  fromUnixNano(o.RegisteredAt),
			LastIssuedDay: o.LastIssuedDay,
			IssuedToday:   o.IssuedToday,
		}
	}
	for _, o := range snapshot.Offenses {
		s.offenses[o.Code] = Offense{
			Code:   o.Code,
			Name:   o.Name,
			Amount: uint64(o.Amount),
			Active: o.Active,
		}
	}
	// Snapshot violations are ordered by sequence, which keeps the vehicle
	// index in issuance order
	for _, v := range snapshot.Violations {
		id, err := violationIDFromBytes(v.ID)
		if err != nil {
			return false, err
		}
		status := ViolationStatus(v.Status)
		if !status.Valid() {
			return false, fmt.Errorf("violation %s has unknown status %d", id, v.Status)
		}
		s.violations[id] = Violation{
			ID:               id,
			Seq:              v.Seq,
			VehicleID:        v.VehicleID,
			Officer:          Principal(v.Officer),
			OffenseCode:      v.OffenseCode,
			EvidenceRef:      v.EvidenceRef,
			IssuedAt:         fromUnixNano(v.IssuedAt),
			FineAmount:       uint64(v.FineAmount),
			Status:           status,
			ResponsibleParty: Principal(v.ResponsibleParty),
			PaidAmount:       uint64(v.PaidAmount),
			PaidBy:           Principal(v.PaidBy),
		}
		s.vehicles[v.VehicleID] = append(s.vehicles[v.VehicleID], id)
	}
	for _, a := range snapshot.Appeals {
		id, err := violationIDFromBytes(a.ViolationID)
		if err != nil {
			return false, err
		}
		s.appeals[id] = Appeal{
			ViolationID:     id,
			Appellant:       Principal(a.Appellant),
			Reason:          a.Reason,
			Resolution:      a.Resolution,
			ResolvedBy:      Principal(a.ResolvedBy),
			SubmittedAt:     fromUnixNano(a.SubmittedAt),
			ResolvedAt:      fromUnixNano(a.ResolvedAt),
			LastSubmittedAt: fromUnixNano(a.LastSubmittedAt),
			Submissions:     a.Submissions,
			Resolved:        a.Resolved,
			Approved:        a.Approved,
		}
	}
	for _, r := range snapshot.Refunds {
		if r.Amount > 0 {
			s.refunds[Principal(r.Principal)] = uint64(r.Amount)
		}
	}
	meta := snapshot.Meta
	s.stats = Statistics{
		TotalViolations:    uint64(meta.TotalViolations),
		TotalFinesPaid:     uint64(meta.TotalFinesPaid),
		TotalFinesRefunded: uint64(meta.TotalFinesRefunded),
		TotalWithdrawn:     uint64(meta.TotalWithdrawn),
	}
	s.violationSeq = meta.ViolationSeq
	s.paused = meta.Paused
	s.upgrade = Upgrade{
		Target:       meta.UpgradeTarget,
		AuthorizedBy: Principal(meta.UpgradeAuthorizedBy),
		AuthorizedAt: fromUnixNano(meta.UpgradeAuthorizedAt),
	}
	s.auditSeq = meta.AuditSeq
	if len(meta.AuditHead) != len(s.auditHead) {
		return false, fmt.Errorf("audit head has %d bytes", len(meta.AuditHead))
	}
	copy(s.auditHead[:], meta.AuditHead)

	journal := make([]AuditEntry, 0, len(snapshot.Journal))
	for _, record := range snapshot.Journal {
		var entry AuditEntry
		if err := json.Unmarshal(record.Value, &entry); err != nil {
			return false, fmt.Errorf("decode audit record %d: %w", record.Seq, err)
		}
		if entry.Seq != record.Seq {
			return false, AuditChainError{
				Seq:    record.Seq,
				Reason: fmt.Sprintf("record holds entry with seq %d", entry.Seq),
			}
		}
		journal = append(journal, entry)
	}
	if err := verifyJournal(journal, s.auditSeq, s.auditHead); err != nil {
		return false, err
	}
	ls.state = s
	ls.journal = journal
	return true, nil
}
