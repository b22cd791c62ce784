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

package ledger_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/TechTribalist/Traffic/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresPayoutAndAdmin(t *testing.T) {
	_, err := ledger.New(ledger.LedgerConfig{BootstrapAdmin: testAdmin})
	require.Error(t, err)
	_, err = ledger.New(ledger.LedgerConfig{
		Payout: ledger.NewLoggingPayout(nil),
	})
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestBootstrap(t *testing.T) {
	ls, err := ledger.New(ledger.LedgerConfig{
		Payout:         ledger.NewLoggingPayout(nil),
		BootstrapAdmin: testAdmin,
	})
	require.NoError(t, err)
	for _, role := range ledger.AllRoles {
		assert.True(t, ls.HasRole(role, testAdmin), "admin should hold %s", role)
	}
	catalog := ls.OffenseCatalog()
	require.Len(t, catalog, len(ledger.DefaultOffenses()))
	assert.Equal(t, ledger.DefaultOffenses(), catalog)
	_, err = ls.GetOffense(0)
	require.ErrorIs(t, err, ledger.ErrNotFound)
	seq, _ := ls.AuditHead()
	assert.Equal(t, uint64(len(catalog)+len(ledger.AllRoles)), seq)
	require.NoError(t, ls.VerifyAuditLog())
	assert.False(t, ls.Paused())
	assert.Equal(t, ledger.Statistics{}, ls.Statistics())
}

func TestHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ls := env.ls

	officer, err := ls.GetOfficer(testOfficer)
	require.NoError(t, err)
	assert.Equal(t, "B-1", officer.Badge)
	assert.True(t, officer.Active)

	id := env.logViolation(t, "ABC 123", 4)
	fine := 10_000 * ledger.UnitsPerCurrencyUnit
	v, err := ls.GetViolation(id)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusUnpaid, v.Status)
	assert.Equal(t, fine, v.FineAmount)
	assert.Equal(t, testDriver, v.ResponsibleParty)
	assert.Equal(t, []ledger.ViolationID{id}, ls.GetVehicleViolations("ABC 123", 0, 0))

	change, err := ls.PayFine(ctx, testDriver, id, fine)
	require.NoError(t, err)
	assert.Zero(t, change)
	assert.Equal(t, ledger.StatusPaid, env.status(t, id))
	assert.Equal(t, fine, ls.Statistics().TotalFinesPaid)

	require.NoError(t, ls.SubmitAppeal(ctx, testDriver, id, "I was not driving"))
	assert.Equal(t, ledger.StatusAppealed, env.status(t, id))

	require.NoError(t, ls.ResolveAppeal(ctx, testJudge, id, true, "camera misread plate"))
	assert.Equal(t, ledger.StatusRefunded, env.status(t, id))
	assert.Equal(t, fine, ls.PendingRefund(testDriver))
	assert.Equal(t, fine, ls.Statistics().TotalFinesRefunded)

	claimed, err := ls.ClaimRefund(ctx, testDriver)
	require.NoError(t, err)
	assert.Equal(t, fine, claimed)
	assert.Zero(t, ls.PendingRefund(testDriver))
	assert.Equal(
		t,
		[]payment{{to: testDriver, amount: fine}},
		env.payout.Transfers(),
	)

	_, err = ls.ClaimRefund(ctx, testDriver)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	assert.Len(t, env.payout.Transfers(), 1)

	appeal, err := ls.GetAppeal(id)
	require.NoError(t, err)
	assert.True(t, appeal.Resolved)
	assert.True(t, appeal.Approved)
	assert.Equal(t, testJudge, appeal.ResolvedBy)
	require.NoError(t, ls.VerifyAuditLog())
}

func TestRoleGating(t *testing.T) {
	ctx := context.Background()
	setup := func(t *testing.T) (*testEnv, ledger.ViolationID) {
		env := newTestEnv(t)
		id := env.logViolation(t, "GATE 1", 1)
		_, err := env.ls.PayFine(ctx, testDriver, id, fineFor(t, env.ls, 1))
		require.NoError(t, err)
		require.NoError(t, env.ls.SubmitAppeal(ctx, testDriver, id, "wrong car"))
		return env, id
	}
	testDefs := []struct {
		name string
		call func(ls *ledger.Ledger, id ledger.ViolationID) error
	}{
		{
			name: "GrantRole",
			call: func(ls *ledger.Ledger, _ ledger.ViolationID) error {
				return ls.GrantRole(ctx, testMallory, ledger.RoleJudge, testMallory)
			},
		},
		{
			name: "RevokeRole",
			call: func(ls *ledger.Ledger, _ ledger.ViolationID) error {
				return ls.RevokeRole(ctx, testMallory, ledger.RoleJudge, testJudge)
			},
		},
		{
			name: "RegisterOfficer",
			call: func(ls *ledger.Ledger, _ ledger.ViolationID) error {
				return ls.RegisterOfficer(ctx, testMallory, testMallory, "Mal", "X-9")
			},
		},
		{
			name: "DeactivateOfficer",
			call: func(ls *ledger.Ledger, _ ledger.ViolationID) error {
				return ls.DeactivateOfficer(ctx, testMallory, testOfficer)
			},
		},
		{
			name: "UpdateOffense",
			call: func(ls *ledger.Ledger, _ ledger.ViolationID) error {
				return ls.UpdateOffense(ctx, testMallory, 1, "Speeding", 1, true)
			},
		},
		{
			name: "LogViolation",
			call: func(ls *ledger.Ledger, _ ledger.ViolationID) error {
				_, err := ls.LogViolation(ctx, testMallory, "XYZ", 1, "ev", testDriver)
				return err
			},
		},
		{
			name: "LogViolationWithoutOfficerRecord",
			call: func(ls *ledger.Ledger, _ ledger.ViolationID) error {
				// The bootstrap admin holds the officer role but was never registered
				_, err := ls.LogViolation(ctx, testAdmin, "XYZ", 1, "ev", testDriver)
				return err
			},
		},
		{
			name: "SubmitAppealByOtherParty",
			call: func(ls *ledger.Ledger, id ledger.ViolationID) error {
				return ls.SubmitAppeal(ctx, testMallory, id, "not mine")
			},
		},
		{
			name: "ResolveAppeal",
			call: func(ls *ledger.Ledger, id ledger.ViolationID) error {
				return ls.ResolveAppeal(ctx, testMallory, id, true, "")
			},
		},
		{
			name: "WithdrawFunds",
			call: func(ls *ledger.Ledger, _ ledger.ViolationID) error {
				return ls.WithdrawFunds(ctx, testMallory, testMallory, 1)
			},
		},
		{
			name: "AuthorizeUpgrade",
			call: func(ls *ledger.Ledger, _ ledger.ViolationID) error {
				return ls.AuthorizeUpgrade(ctx, testMallory, "v2")
			},
		},
		{
			name: "Pause",
			call: func(ls *ledger.Ledger, _ ledger.ViolationID) error {
				return ls.Pause(ctx, testMallory)
			},
		},
		{
			name: "Unpause",
			call: func(ls *ledger.Ledger, _ ledger.ViolationID) error {
				return ls.Unpause(ctx, testMallory)
			},
		},
		{
			name: "AnonymousPayFine",
			call: func(ls *ledger.Ledger, id ledger.ViolationID) error {
				_, err := ls.PayFine(ctx, "", id, 1)
				return err
			},
		},
		{
			name: "AnonymousClaimRefund",
			call: func(ls *ledger.Ledger, _ ledger.ViolationID) error {
				_, err := ls.ClaimRefund(ctx, " ")
				return err
			},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			env, id := setup(t)
			before := viewOf(env.ls)
			transfers := len(env.payout.Transfers())
			err := testDef.call(env.ls, id)
			require.ErrorIs(t, err, ledger.ErrUnauthorized)
			assert.Equal(t, "unauthorized", ledger.ErrorKind(err))
			assert.Equal(t, before, viewOf(env.ls))
			assert.Len(t, env.payout.Transfers(), transfers)
		})
	}
}

func TestRoleGrantRevoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ls := env.ls

	seq, _ := ls.AuditHead()
	// Re-granting a held role is a silent no-op
	require.NoError(t, ls.GrantRole(ctx, testAdmin, ledger.RoleJudge, testJudge))
	after, _ := ls.AuditHead()
	assert.Equal(t, seq, after)

	require.NoError(t, ls.RevokeRole(ctx, testAdmin, ledger.RoleJudge, testJudge))
	assert.False(t, ls.HasRole(ledger.RoleJudge, testJudge))
	require.NoError(t, ls.RevokeRole(ctx, testAdmin, ledger.RoleJudge, testJudge))

	err := ls.GrantRole(ctx, testAdmin, ledger.Role(99), testJudge)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	err = ls.GrantRole(ctx, testAdmin, ledger.RoleJudge, "")
	require.ErrorIs(t, err, ledger.ErrInvalidInput)

	entries := ls.AuditEntries(seq+1, 0)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.AuditRoleRevoked, entries[0].Type)
	assert.Equal(t, testJudge.String(), entries[0].Subject)
	assert.Equal(t, "judge", entries[0].Attrs["role"])
}

func TestOfficerLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ls := env.ls

	err := ls.RegisterOfficer(ctx, testAdmin, testOfficer, "Jane Doe", "B-1")
	require.ErrorIs(t, err, ledger.ErrInvalidState)
	err = ls.RegisterOfficer(ctx, testAdmin, "officer-2", "", "B-2")
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	err = ls.DeactivateOfficer(ctx, testAdmin, "officer-2")
	require.ErrorIs(t, err, ledger.ErrNotFound)

	env.logViolation(t, "OFF 1", 1)
	require.NoError(t, ls.DeactivateOfficer(ctx, testAdmin, testOfficer))
	assert.False(t, ls.IsActiveOfficer(testOfficer))
	assert.False(t, ls.HasRole(ledger.RoleOfficer, testOfficer))
	err = ls.DeactivateOfficer(ctx, testAdmin, testOfficer)
	require.ErrorIs(t, err, ledger.ErrInvalidState)
	_, err = ls.LogViolation(ctx, testOfficer, "OFF 2", 1, "ev", testDriver)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	// Reactivation keeps the original registration and counters
	before, err := ls.GetOfficer(testOfficer)
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
	require.NoError(t, ls.RegisterOfficer(ctx, testAdmin, testOfficer, "Jane Roe", "B-7"))
	officer, err := ls.GetOfficer(testOfficer)
	require.NoError(t, err)
	assert.True(t, officer.Active)
	assert.Equal(t, "Jane Roe", officer.Name)
	assert.Equal(t, "B-7", officer.Badge)
	assert.Equal(t, before.RegisteredAt, officer.RegisteredAt)
	assert.Equal(t, uint32(1), officer.IssuedToday)

	// Revoking the role directly also deactivates the officer
	require.NoError(t, ls.RevokeRole(ctx, testAdmin, ledger.RoleOfficer, testOfficer))
	assert.False(t, ls.IsActiveOfficer(testOfficer))
}

func TestUpdateOffense(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ls := env.ls

	id := env.logViolation(t, "FINE 1", 1)
	require.NoError(t, ls.UpdateOffense(ctx, testAdmin, 1, "Speeding", 2500, true))
	v, err := ls.GetViolation(id)
	require.NoError(t, err)
	// Existing violations keep their issued fine
	assert.Equal(t, 1000*ledger.UnitsPerCurrencyUnit, v.FineAmount)
	assert.Equal(t, 2500*ledger.UnitsPerCurrencyUnit, fineFor(t, ls, 1))

	require.NoError(t, ls.UpdateOffense(ctx, testAdmin, 99, "Noise", 50, true))
	env.logViolation(t, "FINE 2", 99)

	require.NoError(t, ls.UpdateOffense(ctx, testAdmin, 99, "Noise", 50, false))
	_, err = ls.LogViolation(ctx, testOfficer, "FINE 3", 99, "ev", testDriver)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)

	testDefs := []struct {
		name   string
		code   uint16
		amount uint64
	}{
		{name: "", code: 1, amount: 1},
		{name: "Zero code", code: 0, amount: 1},
		{name: "Zero amount", code: 1, amount: 0},
		{name: "Overflow", code: 1, amount: ^uint64(0) / 1000},
	}
	for _, testDef := range testDefs {
		err := ls.UpdateOffense(ctx, testAdmin, testDef.code, testDef.name, testDef.amount, true)
		require.ErrorIs(t, err, ledger.ErrInvalidInput, "case %q", testDef.name)
	}
}

func TestLogViolationValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ls := env.ls

	_, err := ls.LogViolation(ctx, testOfficer, "", 1, "ev", testDriver)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = ls.LogViolation(ctx, testOfficer, strings.Repeat("A", 33), 1, "ev", testDriver)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = ls.LogViolation(ctx, testOfficer, "ABC", 1, "", testDriver)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = ls.LogViolation(ctx, testOfficer, "ABC", 1, "ev", "")
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	_, err = ls.LogViolation(ctx, testOfficer, "ABC", 404, "ev", testDriver)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)

	// Same officer, vehicle, offense and second yields the same identifier
	_, err = ls.LogViolation(ctx, testOfficer, "ABC", 1, "ev", testDriver)
	require.NoError(t, err)
	_, err = ls.LogViolation(ctx, testOfficer, "ABC", 1, "ev", testDriver)
	require.ErrorIs(t, err, ledger.ErrInvalidState)
	assert.Equal(t, uint64(1), ls.Statistics().TotalViolations)
}

func TestVehicleViolationsPaging(t *testing.T) {
	env := newTestEnv(t)
	var ids []ledger.ViolationID
	for range 5 {
		ids = append(ids, env.logViolation(t, "PAGE 1", 1))
	}
	env.logViolation(t, "OTHER", 1)
	ls := env.ls
	assert.Equal(t, ids, ls.GetVehicleViolations("PAGE 1", 0, 0))
	assert.Equal(t, ids[1:3], ls.GetVehicleViolations("PAGE 1", 1, 2))
	assert.Equal(t, ids[4:], ls.GetVehicleViolations("PAGE 1", 4, 10))
	assert.Empty(t, ls.GetVehicleViolations("PAGE 1", 5, 10))
	assert.Empty(t, ls.GetVehicleViolations("UNKNOWN", 0, 10))
}

func TestUpgradeAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, ok := env.ls.AuthorizedUpgrade()
	assert.False(t, ok)
	err := env.ls.AuthorizeUpgrade(ctx, testAdmin, "")
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	require.NoError(t, env.ls.AuthorizeUpgrade(ctx, testAdmin, "sha256:abcd"))
	upgrade, ok := env.ls.AuthorizedUpgrade()
	require.True(t, ok)
	assert.Equal(t, "sha256:abcd", upgrade.Target)
	assert.Equal(t, testAdmin, upgrade.AuthorizedBy)
	assert.Equal(t, testStart, upgrade.AuthorizedAt)
}
