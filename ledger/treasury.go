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

// WithdrawFunds moves collected fines out of ledger custody. Amounts owed
// to the refund queue cannot be withdrawn.
func (ls *Ledger) WithdrawFunds(
	ctx context.Context,
	caller Principal,
	recipient Principal,
	amount uint64,
) error {
	return ls.mutate(
		ctx,
		caller,
		"withdraw_funds",
		mutateOpts{role: RoleTreasury},
		func(t *txn) error {
			if err := validatePrincipal(recipient); err != nil {
				return err
			}
			if amount == 0 {
				return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
			}
			s := t.state()
			if available := s.stats.Available(); amount > available {
				return fmt.Errorf(
					"%w: requested %d, available %d",
					ErrInsufficientFunds,
					amount,
					available,
				)
			}
			t.updateMeta(func(s *state) {
				s.stats.TotalWithdrawn += amount
			})
			if err := t.emit(
				AuditFundsWithdrawn,
				recipient.String(),
				map[string]string{"amount": strconv.FormatUint(amount, 10)},
			); err != nil {
				return err
			}
			t.transfer(recipient, amount)
			return nil
		},
	)
}

// AuthorizeUpgrade records an opaque logic upgrade target
func (ls *Ledger) AuthorizeUpgrade(
	ctx context.Context,
	caller Principal,
	target string,
) error {
	return ls.mutate(
		ctx,
		caller,
		"authorize_upgrade",
		mutateOpts{role: RoleUpgrader},
		func(t *txn) error {
			if err := validateText("upgrade target", target, MaxUpgradeLen); err != nil {
				return err
			}
			t.updateMeta(func(s *state) {
				s.upgrade = Upgrade{
					Target:       target,
					AuthorizedBy: t.caller,
					AuthorizedAt: t.now,
				}
			})
			return t.emit(AuditUpgradeAuthorized, target, nil)
		},
	)
}

// Pause halts every mutating operation except Unpause
func (ls *Ledger) Pause(ctx context.Context, caller Principal) error {
	return ls.mutate(
		ctx,
		caller,
		"pause",
		mutateOpts{role: RoleAdmin, whilePaused: true},
		func(t *txn) error {
			if t.state().paused {
				return fmt.Errorf("%w: already paused", ErrInvalidState)
			}
			t.updateMeta(func(s *state) {
				s.paused = true
			})
			if err := t.emit(AuditPaused, "", nil); err != nil {
				return err
			}
			t.afterCommit(func() {
				ls.config.Logger.Warn("ledger paused", "by", caller)
			})
			return nil
		},
	)
}

func (ls *Ledger) Unpause(ctx context.Context, caller Principal) error {
	return ls.mutate(
		ctx,
		caller,
		"unpause",
		mutateOpts{role: RoleAdmin, whilePaused: true},
		func(t *txn) error {
			if !t.state().paused {
				return fmt.Errorf("%w: not paused", ErrInvalidState)
			}
			t.updateMeta(func(s *state) {
				s.paused = false
			})
			if err := t.emit(AuditUnpaused, "", nil); err != nil {
				return err
			}
			t.afterCommit(func() {
				ls.config.Logger.Info("ledger unpaused", "by", caller)
			})
			return nil
		},
	)
}
