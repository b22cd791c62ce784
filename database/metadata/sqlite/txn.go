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
	"errors"

	"github.com/TechTribalist/Traffic/database/types"
	"gorm.io/gorm"
)

// sqliteTxn wraps a GORM transaction and implements types.Txn
type sqliteTxn struct {
	store    *MetadataStoreSqlite
	db       *gorm.DB
	finished bool
}

func (t *sqliteTxn) Commit() error {
	if t.finished {
		return nil
	}
	t.finished = true
	return t.db.Commit().Error
}

func (t *sqliteTxn) Rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true
	return t.db.Rollback().Error
}

// Transaction creates a new database transaction.
func (d *MetadataStoreSqlite) Transaction() types.Txn {
	return &sqliteTxn{store: d, db: d.DB().Begin()}
}

// resolveDB returns the GORM handle to use for the given transaction. A nil
// transaction means autocommit on the base handle.
func (d *MetadataStoreSqlite) resolveDB(txn types.Txn) (*gorm.DB, error) {
	if txn == nil {
		return d.DB(), nil
	}
	tmpTxn, ok := txn.(*sqliteTxn)
	if !ok {
		return nil, types.ErrTxnWrongType
	}
	if tmpTxn.store != d {
		return nil, errors.New("transaction from different store")
	}
	if tmpTxn.finished {
		return nil, errors.New("transaction already finished")
	}
	if tmpTxn.db.Error != nil {
		return nil, tmpTxn.db.Error
	}
	return tmpTxn.db, nil
}
