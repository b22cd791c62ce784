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
	"context"
	"fmt"
	"strconv"
)

// LogViolation records a new violation issued by the calling officer and
// returns its identifier
func (ls *Ledger) LogViolation(
	ctx context.Context,
	caller Principal,
	vehicleID string,
	offenseCode uint16,
	evidenceRef string,
	responsibleParty Principal,
) (ViolationID, error) {
	var ret ViolationID
	err := ls.mutate(
		ctx,
		caller,
		"log_violation",
		mutateOpts{role: RoleOfficer},
		func(t *txn) error {
			s := t.state()
			officer, ok := s.officers[caller]
			if !ok {
				return fmt.Errorf(
					"%w: %s has no officer record",
					ErrUnauthorized,
					caller,
				)
			}
			// Counters reset on the first issuance of a new day
			day := dayOf(t.now)
			issued := officer.IssuedToday
			if officer.LastIssuedDay != day {
				issued = 0
			}
			if issued+1 > DailyViolationLimit {
				return fmt.Errorf(
					"%w: %d violations issued today",
					ErrRateLimited,
					issued,
				)
			}
			if err := validateText("vehicle id", vehicleID, MaxVehicleIDLen); err != nil {
				return err
			}
			if err := validateText("evidence reference", evidenceRef, MaxEvidenceRefLen); err != nil {
				return err
			}
			if err := validatePrincipal(responsibleParty); err != nil {
				return err
			}
			offense, ok := s.offenses[offenseCode]
			if !ok || !offense.Active {
				return fmt.Errorf(
					"%w: offense code %d is unknown or inactive",
					ErrInvalidInput,
					offenseCode,
				)
			}
			fine, err := fineUnits(offense.Amount)
			if err != nil {
				return err
			}
			id := computeViolationID(vehicleID, caller, t.now.Unix(), offenseCode)
			if _, exists := s.violations[id]; exists {
				return fmt.Errorf(
					"%w: violation %s already exists",
					ErrInvalidState,
					id,
				)
			}
			violation := Violation{
				ID:               id,
				Seq:              s.violationSeq + 1,
				VehicleID:        vehicleID,
				Officer:          caller,
				OffenseCode:      offenseCode,
				EvidenceRef:      evidenceRef,
				IssuedAt:         t.now,
				FineAmount:       fine,
				Status:           StatusUnpaid,
				ResponsibleParty: responsibleParty,
			}
			t.putViolation(violation)
			officer.LastIssuedDay = day
			officer.IssuedToday = issued + 1
			t.putOfficer(officer)
			t.updateMeta(func(s *state) {
				s.violationSeq = violation.Seq
				s.stats.TotalViolations++
			})
			if err := t.emit(
				AuditViolationLogged,
				id.String(),
				map[string]string{
					"vehicle":     vehicleID,
					"offense":     offenseSubject(offenseCode),
					"fine":        strconv.FormatUint(fine, 10),
					"issuer":      caller.String(),
					"responsible": responsibleParty.String(),
				},
			); err != nil {
				return err
			}
			ret = id
			t.afterCommit(func() {
				ls.config.Logger.Info(
					"violation logged",
					"id", id,
					"vehicle", vehicleID,
					"offense", offenseCode,
					"officer", caller,
				)
			})
			return nil
		},
	)
	if err != nil {
		return ViolationID{}, err
	}
	return ret, nil
}

// PayFine settles an unpaid or rejected violation. Any amount above the fine
// is returned to the caller in the same operation, and the returned change
// is the amount sent back.
func (ls *Ledger) PayFine(
	ctx context.Context,
	caller Principal,
	id ViolationID,
	payment uint64,
) (uint64, error) {
	var change uint64
	err := ls.mutate(
		ctx,
		caller,
		"pay_fine",
		mutateOpts{},
		func(t *txn) error {
			s := t.state()
			violation, ok := s.violations[id]
			if !ok {
				return fmt.Errorf("%w: violation %s", ErrNotFound, id)
			}
			if violation.Status != StatusUnpaid &&
				violation.Status != StatusRejected {
				return fmt.Errorf(
					"%w: violation %s is %s",
					ErrInvalidState,
					id,
					violation.Status,
				)
			}
			if payment < violation.FineAmount {
				return fmt.Errorf(
					"%w: payment %d is below fine %d",
					ErrInvalidInput,
					payment,
					violation.FineAmount,
				)
			}
			totalPaid, err := addUnits(s.stats.TotalFinesPaid, violation.FineAmount)
			if err != nil {
				return err
			}
			prevStatus := violation.Status
			violation.Status = StatusPaid
			violation.PaidAmount = violation.FineAmount
			violation.PaidBy = caller
			t.putViolation(violation)
			t.updateMeta(func(s *state) {
				s.stats.TotalFinesPaid = totalPaid
			})
			change = payment - violation.FineAmount
			if err := t.emit(
				AuditFinePaid,
				id.String(),
				map[string]string{
					"amount":   strconv.FormatUint(violation.FineAmount, 10),
					"change":   strconv.FormatUint(change, 10),
					"previous": prevStatus.String(),
				},
			); err != nil {
				return err
			}
			if change > 0 {
				t.transfer(caller, change)
			}
			return nil
		},
	)
	if err != nil {
		return 0, err
	}
	return change, nil
}
