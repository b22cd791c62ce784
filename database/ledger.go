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

package database

import (
	"fmt"

	"github.com/TechTribalist/Traffic/database/models"
	"github.com/TechTribalist/Traffic/database/types"
)

// ApplyChangeSet stages a ledger change set in the transaction. Rows go to
// the metadata store and journal records go to the blob store.
func (d *Database) ApplyChangeSet(txn *Txn, cs *models.ChangeSet) error {
	if txn == nil {
		return types.ErrNilTxn
	}
	if cs == nil || cs.Empty() {
		return nil
	}
	if err := d.Metadata().ApplyChangeSet(cs, txn.Metadata()); err != nil {
		return err
	}
	for _, record := range cs.Journal {
		if err := d.Blob().Set(
			txn.Blob(),
			types.AuditBlobKey(record.Seq),
			record.Value,
		); err != nil {
			return fmt.Errorf("write audit record %d: %w", record.Seq, err)
		}
	}
	return nil
}

// LoadSnapshot returns the full persisted ledger state, including the audit
// journal in sequence order
func (d *Database) LoadSnapshot() (*models.Snapshot, error) {
	snapshot, err := d.Metadata().LoadSnapshot()
	if err != nil {
		return nil, err
	}
	journal, err := d.JournalRecords(1, 0)
	if err != nil {
		return nil, err
	}
	snapshot.Journal = journal
	return snapshot, nil
}

// JournalRecords returns up to limit journal records starting at fromSeq. A
// zero limit returns every remaining record.
func (d *Database) JournalRecords(
	fromSeq uint64,
	limit int,
) ([]models.JournalRecord, error) {
	txn := d.Blob().NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	prefix := []byte(types.AuditBlobKeyPrefix)
	iter := d.Blob().NewIterator(txn, types.BlobIteratorOptions{
		Prefix: prefix,
	})
	defer iter.Close()
	var ret []models.JournalRecord
	for iter.Seek(types.AuditBlobKey(fromSeq)); iter.ValidForPrefix(prefix); iter.Next() {
		if limit > 0 && len(ret) >= limit {
			break
		}
		item := iter.Item()
		seq, ok := types.AuditBlobKeySeq(item.Key())
		if !ok {
			return nil, fmt.Errorf("malformed audit key: %x", item.Key())
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, fmt.Errorf("read audit record %d: %w", seq, err)
		}
		ret = append(ret, models.JournalRecord{Seq: seq, Value: val})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}
