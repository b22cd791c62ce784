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
	"sync"
	"testing"
	"time"

	"github.com/TechTribalist/Traffic/ledger"
	"github.com/stretchr/testify/require"
)

const (
	testAdmin   ledger.Principal = "admin"
	testOfficer ledger.Principal = "officer-1"
	testJudge   ledger.Principal = "judge-1"
	testDriver  ledger.Principal = "driver-1"
	testMallory ledger.Principal = "mallory"
)

var testStart = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

type testClock struct {
	now time.Time
	mu  sync.Mutex
}

func newTestClock() *testClock {
	return &testClock{now: testStart}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type payment struct {
	to     ledger.Principal
	amount uint64
}

// recordingPayout captures transfers and optionally fails them
type recordingPayout struct {
	err       error
	hook      func(ctx context.Context, to ledger.Principal, amount uint64)
	transfers []payment
	mu        sync.Mutex
}

func (p *recordingPayout) Transfer(
	ctx context.Context,
	to ledger.Principal,
	amount uint64,
) error {
	if p.hook != nil {
		p.hook(ctx, to, amount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.transfers = append(p.transfers, payment{to: to, amount: amount})
	return nil
}

func (p *recordingPayout) Transfers() []payment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]payment(nil), p.transfers...)
}

func (p *recordingPayout) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type testEnv struct {
	ls     *ledger.Ledger
	clock  *testClock
	payout *recordingPayout
}

// newTestEnv returns a ledger with a registered officer and a judge
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:  newTestClock(),
		payout: &recordingPayout{},
	}
	ls, err := ledger.New(ledger.LedgerConfig{
		Payout:         env.payout,
		Clock:          env.clock.Now,
		BootstrapAdmin: testAdmin,
	})
	require.NoError(t, err)
	env.ls = ls
	ctx := context.Background()
	require.NoError(
		t,
		ls.RegisterOfficer(ctx, testAdmin, testOfficer, "Jane Doe", "B-1"),
	)
	require.NoError(t, ls.GrantRole(ctx, testAdmin, ledger.RoleJudge, testJudge))
	return env
}

// logViolation issues a violation and moves the clock forward so the next
// issuance gets a distinct identifier
func (e *testEnv) logViolation(
	t *testing.T,
	vehicle string,
	code uint16,
) ledger.ViolationID {
	t.Helper()
	id, err := e.ls.LogViolation(
		context.Background(),
		testOfficer,
		vehicle,
		code,
		"evidence://"+vehicle,
		testDriver,
	)
	require.NoError(t, err)
	e.clock.Advance(time.Second)
	return id
}

func (e *testEnv) status(t *testing.T, id ledger.ViolationID) ledger.ViolationStatus {
	t.Helper()
	v, err := e.ls.GetViolation(id)
	require.NoError(t, err)
	return v.Status
}

func fineFor(t *testing.T, ls *ledger.Ledger, code uint16) uint64 {
	t.Helper()
	offense, err := ls.GetOffense(code)
	require.NoError(t, err)
	return offense.Amount * ledger.UnitsPerCurrencyUnit
}

// ledgerView is every externally observable piece of state
type ledgerView struct {
	stats     ledger.Statistics
	officers  []ledger.Officer
	offenses  []ledger.Offense
	violation []ledger.Violation
	audit     []ledger.AuditEntry
	refunds   map[ledger.Principal]uint64
	upgrade   ledger.Upgrade
	auditSeq  uint64
	auditHead ledger.AuditHash
	paused    bool
}

func viewOf(ls *ledger.Ledger) ledgerView {
	seq, head := ls.AuditHead()
	upgrade, _ := ls.AuthorizedUpgrade()
	refunds := make(map[ledger.Principal]uint64)
	for _, p := range []ledger.Principal{testAdmin, testOfficer, testJudge, testDriver, testMallory} {
		refunds[p] = ls.PendingRefund(p)
	}
	return ledgerView{
		stats:     ls.Statistics(),
		officers:  ls.Officers(),
		offenses:  ls.OffenseCatalog(),
		violation: ls.Violations(),
		audit:     ls.AuditEntries(0, 0),
		refunds:   refunds,
		upgrade:   upgrade,
		auditSeq:  seq,
		auditHead: head,
		paused:    ls.Paused(),
	}
}
