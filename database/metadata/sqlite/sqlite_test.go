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

package sqlite

import (
	"testing"

	"github.com/TechTribalist/Traffic/database/models"
	"github.com/TechTribalist/Traffic/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *MetadataStoreSqlite {
	t.Helper()
	store, err := New()
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close() //nolint:errcheck
	})
	return store
}

func TestInMemoryStoresAreIsolated(t *testing.T) {
	a := setupTestDB(t)
	b := setupTestDB(t)
	txn := a.Transaction()
	require.NoError(t, a.ApplyChangeSet(&models.ChangeSet{
		Offenses: []models.Offense{{Code: 1, Name: "Speeding", Amount: 1000, Active: true}},
	}, txn))
	require.NoError(t, txn.Commit())
	snapA, err := a.LoadSnapshot()
	require.NoError(t, err)
	assert.Len(t, snapA.Offenses, 1)
	snapB, err := b.LoadSnapshot()
	require.NoError(t, err)
	assert.Empty(t, snapB.Offenses)
}

func TestApplyChangeSetRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	violationID := make([]byte, 32)
	violationID[0] = 0xab
	cs := &models.ChangeSet{
		Meta: &models.LedgerMeta{
			TotalViolations: 1,
			TotalFinesPaid:  types.Uint64(1 << 63),
			ViolationSeq:    1,
			AuditSeq:        3,
			AuditHead:       make([]byte, 32),
		},
		GrantedRoles: []models.RoleGrant{
			{Role: 1, Principal: "admin"},
			{Role: 3, Principal: "officer-1"},
		},
		Officers: []models.Officer{
			{Principal: "officer-1", Name: "Jane", Badge: "B-1", RegisteredAt: 10},
		},
		Violations: []models.Violation{
			{
				ID:               violationID,
				Seq:              1,
				VehicleID:        "ABC 123",
				Officer:          "officer-1",
				OffenseCode:      4,
				FineAmount:       10_000_000_000,
				ResponsibleParty: "driver",
			},
		},
		Appeals: []models.Appeal{
			{ViolationID: violationID, Appellant: "driver", Reason: "wrong plate", Submissions: 1},
		},
		Refunds: []models.PendingRefund{
			{Principal: "driver", Amount: 500},
		},
	}
	txn := store.Transaction()
	require.NoError(t, store.ApplyChangeSet(cs, txn))
	require.NoError(t, txn.Commit())

	snap, err := store.LoadSnapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.Meta)
	assert.Equal(t, types.Uint64(1<<63), snap.Meta.TotalFinesPaid)
	assert.Equal(t, uint64(3), snap.Meta.AuditSeq)
	assert.Len(t, snap.Roles, 2)
	require.Len(t, snap.Officers, 1)
	assert.Equal(t, "B-1", snap.Officers[0].Badge)
	require.Len(t, snap.Violations, 1)
	assert.Equal(t, violationID, snap.Violations[0].ID)
	assert.Equal(t, types.Uint64(10_000_000_000), snap.Violations[0].FineAmount)
	require.Len(t, snap.Appeals, 1)
	assert.Equal(t, "wrong plate", snap.Appeals[0].Reason)
	require.Len(t, snap.Refunds, 1)

	// Update existing rows, revoke a role and clear the refund
	txn = store.Transaction()
	require.NoError(t, store.ApplyChangeSet(&models.ChangeSet{
		RevokedRoles: []models.RoleGrant{{Role: 3, Principal: "officer-1"}},
		Violations: []models.Violation{
			{
				ID:               violationID,
				Seq:              1,
				VehicleID:        "ABC 123",
				Officer:          "officer-1",
				OffenseCode:      4,
				FineAmount:       10_000_000_000,
				PaidAmount:       10_000_000_000,
				PaidBy:           "driver",
				Status:           1,
				ResponsibleParty: "driver",
			},
		},
		Refunds: []models.PendingRefund{{Principal: "driver", Amount: 0}},
	}, txn))
	require.NoError(t, txn.Commit())

	snap, err = store.LoadSnapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Roles, 1)
	assert.Empty(t, snap.Refunds)
	require.Len(t, snap.Violations, 1)
	assert.Equal(t, uint8(1), snap.Violations[0].Status)
	assert.Equal(t, "driver", snap.Violations[0].PaidBy)
}

func TestGrantRoleTwiceIsIgnored(t *testing.T) {
	store := setupTestDB(t)
	for range 2 {
		txn := store.Transaction()
		require.NoError(t, store.ApplyChangeSet(&models.ChangeSet{
			GrantedRoles: []models.RoleGrant{{Role: 1, Principal: "admin"}},
		}, txn))
		require.NoError(t, txn.Commit())
	}
	snap, err := store.LoadSnapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Roles, 1)
}

func TestRollbackDiscardsChanges(t *testing.T) {
	store := setupTestDB(t)
	txn := store.Transaction()
	require.NoError(t, store.ApplyChangeSet(&models.ChangeSet{
		Offenses: []models.Offense{{Code: 2, Name: "Red light", Amount: 4000, Active: true}},
	}, txn))
	require.NoError(t, txn.Rollback())
	snap, err := store.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, snap.Meta)
	assert.Empty(t, snap.Offenses)
	// Finished transactions are rejected
	require.Error(t, store.ApplyChangeSet(&models.ChangeSet{
		Offenses: []models.Offense{{Code: 2}},
	}, txn))
}

func TestCommitTimestamp(t *testing.T) {
	store := setupTestDB(t)
	ts, err := store.GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)
	require.ErrorIs(t, store.SetCommitTimestamp(1, nil), types.ErrNilTxn)
	txn := store.Transaction()
	require.NoError(t, store.SetCommitTimestamp(12345, txn))
	require.NoError(t, txn.Commit())
	ts, err = store.GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(12345), ts)
}

func TestWrongTransactionType(t *testing.T) {
	a := setupTestDB(t)
	b := setupTestDB(t)
	txn := b.Transaction()
	defer txn.Rollback() //nolint:errcheck
	require.Error(t, a.SetCommitTimestamp(1, txn))
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	store, err := New(WithPromRegistry(reg))
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
