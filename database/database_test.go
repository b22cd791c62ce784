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

package database_test

import (
	"testing"

	"github.com/TechTribalist/Traffic/database"
	"github.com/TechTribalist/Traffic/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbConfig = &database.Config{
	Logger:       nil,
	PromRegistry: nil,
	DataDir:      "",
}

func journalChangeSet(seqs ...uint64) *models.ChangeSet {
	cs := &models.ChangeSet{
		Meta: &models.LedgerMeta{AuditSeq: seqs[len(seqs)-1]},
	}
	for _, seq := range seqs {
		cs.Journal = append(cs.Journal, models.JournalRecord{
			Seq:   seq,
			Value: []byte{byte(seq)},
		})
	}
	return cs
}

func TestApplyChangeSetAndLoad(t *testing.T) {
	db, err := database.New(dbConfig)
	require.NoError(t, err)
	defer db.Close()

	txn := db.Transaction(true)
	require.NoError(t, db.ApplyChangeSet(txn, journalChangeSet(1, 2, 3)))
	require.NoError(t, txn.Commit())

	snapshot, err := db.LoadSnapshot()
	require.NoError(t, err)
	require.NotNil(t, snapshot.Meta)
	assert.Equal(t, uint64(3), snapshot.Meta.AuditSeq)
	require.Len(t, snapshot.Journal, 3)
	assert.Equal(t, uint64(1), snapshot.Journal[0].Seq)
	assert.Equal(t, []byte{3}, snapshot.Journal[2].Value)

	page, err := db.JournalRecords(2, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(2), page[0].Seq)
}

func TestRollbackLeavesStoresUntouched(t *testing.T) {
	db, err := database.New(dbConfig)
	require.NoError(t, err)
	defer db.Close()

	txn := db.Transaction(true)
	require.NoError(t, db.ApplyChangeSet(txn, journalChangeSet(1)))
	txn.Release()

	snapshot, err := db.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, snapshot.Meta)
	assert.Empty(t, snapshot.Journal)
}

func TestTxnDo(t *testing.T) {
	db, err := database.New(dbConfig)
	require.NoError(t, err)
	defer db.Close()

	err = db.Transaction(true).Do(func(txn *database.Txn) error {
		return db.ApplyChangeSet(txn, journalChangeSet(1))
	})
	require.NoError(t, err)
	ts, err := db.Metadata().GetCommitTimestamp()
	require.NoError(t, err)
	assert.Positive(t, ts)
	blobTs, err := db.Blob().GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, ts, blobTs)
}

func TestCommitTimestampMismatch(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dir})
	require.NoError(t, err)
	require.NoError(t, db.Transaction(true).Do(func(txn *database.Txn) error {
		return db.ApplyChangeSet(txn, journalChangeSet(1))
	}))
	// Advance only the blob side
	blobTxn := db.Blob().NewTransaction(true)
	require.NoError(t, db.Blob().SetCommitTimestamp(1, blobTxn))
	require.NoError(t, blobTxn.Commit())
	require.NoError(t, db.Close())

	db, err = database.New(&database.Config{DataDir: dir})
	require.Error(t, err)
	var tsErr database.CommitTimestampError
	require.ErrorAs(t, err, &tsErr)
	assert.Equal(t, int64(1), tsErr.BlobTimestamp)
	require.NotNil(t, db)
	require.NoError(t, db.Close())
}

func TestUnknownBackend(t *testing.T) {
	_, err := database.New(&database.Config{MetadataBackend: "postgres"})
	require.Error(t, err)
}
