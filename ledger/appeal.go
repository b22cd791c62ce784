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
	"time"
)

// SubmitAppeal disputes a violation on behalf of its responsible party.
// Once an appeal on a violation has been resolved, no further appeal is
// accepted for it.
func (ls *Ledger) SubmitAppeal(
	ctx context.Context,
	caller Principal,
	id ViolationID,
	reason string,
) error {
	return ls.mutate(
		ctx,
		caller,
		"submit_appeal",
		mutateOpts{},
		func(t *txn) error {
			s := t.state()
			violation, ok := s.violations[id]
			if !ok {
				return fmt.Errorf("%w: violation %s", ErrNotFound, id)
			}
			if violation.ResponsibleParty != caller {
				return fmt.Errorf(
					"%w: only the responsible party may appeal",
					ErrUnauthorized,
				)
			}
			if violation.Status != StatusUnpaid &&
				violation.Status != StatusPaid {
				return fmt.Errorf(
					"%w: violation %s is %s",
					ErrInvalidState,
					id,
					violation.Status,
				)
			}
			if err := validateText("appeal reason", reason, MaxAppealReasonLen); err != nil {
				return err
			}
			appeal, exists := s.appeals[id]
			if exists && appeal.Resolved {
				return fmt.Errorf(
					"%w: appeal for violation %s was already resolved",
					ErrInvalidState,
					id,
				)
			}
			appeal.ViolationID = id
			appeal.Appellant = caller
			appeal.Reason = reason
			appeal.SubmittedAt = t.now
			appeal.Resolved = false
			appeal.Approved = false
			appeal.Resolution = ""
			appeal.ResolvedBy = ""
			appeal.ResolvedAt = time.Time{}
			appeal.Submissions++
			appeal.LastSubmittedAt = t.now
			t.putAppeal(appeal)
			violation.Status = StatusAppealed
			t.putViolation(violation)
			return t.emit(
				AuditAppealSubmitted,
				id.String(),
				map[string]string{
					"submissions": strconv.FormatUint(uint64(appeal.Submissions), 10),
				},
			)
		},
	)
}

// ResolveAppeal decides a pending appeal. An approved appeal on a paid
// violation queues a refund for the original payer.
func (ls *Ledger) ResolveAppeal(
	ctx context.Context,
	caller Principal,
	id ViolationID,
	approve bool,
	resolution string,
) error {
	return ls.mutate(
		ctx,
		caller,
		"resolve_appeal",
		mutateOpts{role: RoleJudge},
		func(t *txn) error {
			s := t.state()
			violation, ok := s.violations[id]
			if !ok {
				return fmt.Errorf("%w: violation %s", ErrNotFound, id)
			}
			if violation.Status != StatusAppealed {
				return fmt.Errorf(
					"%w: violation %s is %s",
					ErrInvalidState,
					id,
					violation.Status,
				)
			}
			appeal, ok := s.appeals[id]
			if !ok || appeal.Resolved {
				return fmt.Errorf(
					"%w: no pending appeal for violation %s",
					ErrInvalidState,
					id,
				)
			}
			if err := validateOptionalText("resolution", resolution, MaxResolutionLen); err != nil {
				return err
			}
			paid := violation.PaidAmount
			switch {
			case approve && paid > 0:
				violation.Status = StatusRefunded
			case approve:
				violation.Status = StatusWaived
			case paid > 0:
				violation.Status = StatusPaid
			default:
				violation.Status = StatusRejected
			}
			var refundBalance, totalRefunded uint64
			if violation.Status == StatusRefunded {
				var err error
				refundBalance, err = addUnits(s.refunds[violation.PaidBy], paid)
				if err != nil {
					return err
				}
				totalRefunded, err = addUnits(s.stats.TotalFinesRefunded, paid)
				if err != nil {
					return err
				}
			}
			appeal.Resolved = true
			appeal.Approved = approve
			appeal.Resolution = resolution
			appeal.ResolvedBy = caller
			appeal.ResolvedAt = t.now
			t.putAppeal(appeal)
			t.putViolation(violation)
			if err := t.emit(
				AuditAppealResolved,
				id.String(),
				map[string]string{
					"approved": strconv.FormatBool(approve),
					"outcome":  violation.Status.String(),
				},
			); err != nil {
				return err
			}
			if violation.Status != StatusRefunded {
				return nil
			}
			t.setRefund(violation.PaidBy, refundBalance)
			t.updateMeta(func(s *state) {
				s.stats.TotalFinesRefunded = totalRefunded
			})
			// The refund is owed even when its fine was already withdrawn
			if shortfall := t.state().stats.Shortfall(); shortfall > 0 {
				t.afterCommit(func() {
					ls.config.Logger.Warn(
						"refund queued beyond custody balance",
						"violation", id,
						"beneficiary", violation.PaidBy,
						"shortfall", shortfall,
					)
				})
			}
			return t.emit(
				AuditRefundQueued,
				id.String(),
				map[string]string{
					"beneficiary": violation.PaidBy.String(),
					"amount":      strconv.FormatUint(paid, 10),
				},
			)
		},
	)
}

// ClaimRefund pays out the caller's whole pending refund balance and
// returns the amount transferred
func (ls *Ledger) ClaimRefund(
	ctx context.Context,
	caller Principal,
) (uint64, error) {
	var amount uint64
	err := ls.mutate(
		ctx,
		caller,
		"claim_refund",
		mutateOpts{},
		func(t *txn) error {
			balance := t.state().refunds[caller]
			if balance == 0 {
				return fmt.Errorf("%w: no pending refund", ErrInvalidInput)
			}
			// Balance is cleared before the transfer is attempted
			t.setRefund(caller, 0)
			if err := t.emit(
				AuditRefundClaimed,
				caller.String(),
				map[string]string{"amount": strconv.FormatUint(balance, 10)},
			); err != nil {
				return err
			}
			t.transfer(caller, balance)
			amount = balance
			return nil
		},
	)
	if err != nil {
		return 0, err
	}
	return amount, nil
}
