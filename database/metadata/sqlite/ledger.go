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
	"fmt"

	"github.com/TechTribalist/Traffic/database/models"
	"github.com/TechTribalist/Traffic/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApplyChangeSet writes every row in the change set using the provided
// transaction. Journal records are ignored here; they live in the blob store.
func (d *MetadataStoreSqlite) ApplyChangeSet(
	cs *models.ChangeSet,
	txn types.Txn,
) error {
	if cs == nil {
		return nil
	}
	db, err := d.resolveDB(txn)
	if err != nil {
		return err
	}
	if len(cs.GrantedRoles) > 0 {
		result := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&cs.GrantedRoles)
		if result.Error != nil {
			return fmt.Errorf("grant roles: %w", result.Error)
		}
	}
	for _, grant := range cs.RevokedRoles {
		result := db.Where(
			"role = ? AND principal = ?",
			grant.Role,
			grant.Principal,
		).Delete(&models.RoleGrant{})
		if result.Error != nil {
			return fmt.Errorf("revoke role: %w", result.Error)
		}
	}
	if err := upsert(db, cs.Officers); err != nil {
		return fmt.Errorf("save officers: %w", err)
	}
	if err := upsert(db, cs.Offenses); err != nil {
		return fmt.Errorf("save offenses: %w", err)
	}
	if err := upsert(db, cs.Violations); err != nil {
		return fmt.Errorf("save violations: %w", err)
	}
	if err := upsert(db, cs.Appeals); err != nil {
		return fmt.Errorf("save appeals: %w", err)
	}
	for _, refund := range cs.Refunds {
		if refund.Amount == 0 {
			result := db.Where("principal = ?", refund.Principal).
				Delete(&models.PendingRefund{})
			if result.Error != nil {
				return fmt.Errorf("delete pending refund: %w", result.Error)
			}
			continue
		}
		if err := upsert(db, []models.PendingRefund{refund}); err != nil {
			return fmt.Errorf("save pending refund: %w", err)
		}
	}
	if cs.Meta != nil {
		meta := *cs.Meta
		meta.ID = models.LedgerMetaRowId
		result := db.Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&meta)
		if result.Error != nil {
			return fmt.Errorf("save ledger meta: %w", result.Error)
		}
	}
	return nil
}

func upsert[T any](db *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
}

// LoadSnapshot reads every ledger table. The returned Meta is nil when the
// ledger has never been initialized.
func (d *MetadataStoreSqlite) LoadSnapshot() (*models.Snapshot, error) {
	db := d.DB()
	ret := &models.Snapshot{}
	var meta models.LedgerMeta
	result := db.First(&meta, models.LedgerMetaRowId)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("load ledger meta: %w", result.Error)
		}
	} else {
		ret.Meta = &meta
	}
	if result := db.Order("role, principal").Find(&ret.Roles); result.Error != nil {
		return nil, fmt.Errorf("load roles: %w", result.Error)
	}
	if result := db.Order("principal").Find(&ret.Officers); result.Error != nil {
		return nil, fmt.Errorf("load officers: %w", result.Error)
	}
	if result := db.Order("code").Find(&ret.Offenses); result.Error != nil {
		return nil, fmt.Errorf("load offenses: %w", result.Error)
	}
	if result := db.Order("seq").Find(&ret.Violations); result.Error != nil {
		return nil, fmt.Errorf("load violations: %w", result.Error)
	}
	if result := db.Find(&ret.Appeals); result.Error != nil {
		return nil, fmt.Errorf("load appeals: %w", result.Error)
	}
	if result := db.Order("principal").Find(&ret.Refunds); result.Error != nil {
		return nil, fmt.Errorf("load pending refunds: %w", result.Error)
	}
	return ret, nil
}
