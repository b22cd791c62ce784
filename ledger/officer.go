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
)

// RegisterOfficer creates an officer record and grants the officer role. A
// known but inactive officer is reactivated, keeping the original
// registration time and issuance counters.
func (ls *Ledger) RegisterOfficer(
	ctx context.Context,
	caller Principal,
	principal Principal,
	name string,
	badge string,
) error {
	return ls.mutate(
		ctx,
		caller,
		"register_officer",
		mutateOpts{role: RoleOfficerManager},
		func(t *txn) error {
			if err := validatePrincipal(principal); err != nil {
				return err
			}
			if err := validateText("officer name", name, MaxOfficerNameLen); err != nil {
				return err
			}
			if err := validateText("badge", badge, MaxBadgeLen); err != nil {
				return err
			}
			s := t.state()
			if s.isActiveOfficer(principal) {
				return fmt.Errorf(
					"%w: officer %s is already active",
					ErrInvalidState,
					principal,
				)
			}
			attrs := map[string]string{"name": name, "badge": badge}
			eventType := AuditOfficerRegistered
			officer, known := s.officers[principal]
			if known {
				eventType = AuditOfficerReactivated
			} else {
				officer = Officer{
					Principal:    principal,
					RegisteredAt: t.now,
				}
			}
			officer.Name = name
			officer.Badge = badge
			t.putOfficer(officer)
			if err := t.emit(eventType, principal.String(), attrs); err != nil {
				return err
			}
			if err := ls.grantRole(t, RoleOfficer, principal); err != nil {
				return err
			}
			t.afterCommit(func() {
				ls.config.Logger.Info(
					"officer registered",
					"officer", principal,
					"badge", badge,
					"reactivated", known,
				)
			})
			return nil
		},
	)
}

// DeactivateOfficer revokes the officer role. The record is retained.
func (ls *Ledger) DeactivateOfficer(
	ctx context.Context,
	caller Principal,
	principal Principal,
) error {
	return ls.mutate(
		ctx,
		caller,
		"deactivate_officer",
		mutateOpts{role: RoleOfficerManager},
		func(t *txn) error {
			s := t.state()
			if _, ok := s.officers[principal]; !ok {
				return fmt.Errorf("%w: officer %s", ErrNotFound, principal)
			}
			if !s.isActiveOfficer(principal) {
				return fmt.Errorf(
					"%w: officer %s is not active",
					ErrInvalidState,
					principal,
				)
			}
			if err := ls.revokeRole(t, RoleOfficer, principal); err != nil {
				return err
			}
			return t.emit(AuditOfficerDeactivated, principal.String(), nil)
		},
	)
}
