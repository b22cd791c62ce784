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

// GrantRole gives a role to a principal. Granting a role the principal
// already holds succeeds without an audit entry.
func (ls *Ledger) GrantRole(
	ctx context.Context,
	caller Principal,
	role Role,
	principal Principal,
) error {
	return ls.mutate(
		ctx,
		caller,
		"grant_role",
		mutateOpts{role: RoleAdmin},
		func(t *txn) error {
			if err := validateRoleTarget(role, principal); err != nil {
				return err
			}
			return ls.grantRole(t, role, principal)
		},
	)
}

// RevokeRole removes a role from a principal. Revoking a role the principal
// does not hold succeeds without an audit entry. Revoking the officer role
// makes the officer inactive.
func (ls *Ledger) RevokeRole(
	ctx context.Context,
	caller Principal,
	role Role,
	principal Principal,
) error {
	return ls.mutate(
		ctx,
		caller,
		"revoke_role",
		mutateOpts{role: RoleAdmin},
		func(t *txn) error {
			if err := validateRoleTarget(role, principal); err != nil {
				return err
			}
			return ls.revokeRole(t, role, principal)
		},
	)
}

func validateRoleTarget(role Role, principal Principal) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %d", ErrInvalidInput, role)
	}
	return validatePrincipal(principal)
}

func (ls *Ledger) grantRole(t *txn, role Role, principal Principal) error {
	if t.state().hasRole(role, principal) {
		return nil
	}
	t.setRole(role, principal, true)
	return t.emit(
		AuditRoleGranted,
		principal.String(),
		map[string]string{"role": role.String()},
	)
}

func (ls *Ledger) revokeRole(t *txn, role Role, principal Principal) error {
	if !t.state().hasRole(role, principal) {
		return nil
	}
	t.setRole(role, principal, false)
	return t.emit(
		AuditRoleRevoked,
		principal.String(),
		map[string]string{"role": role.String()},
	)
}
