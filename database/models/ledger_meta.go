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

package models

import "github.com/TechTribalist/Traffic/database/types"

const LedgerMetaRowId = 1

// LedgerMeta is the singleton row holding aggregate counters, global
// switches and the audit chain head
type LedgerMeta struct {
	UpgradeTarget       string `gorm:"size:128"`
	UpgradeAuthorizedBy string `gorm:"size:128"`
	AuditHead           []byte `gorm:"size:32"`
	ID                  uint   `gorm:"primarykey"`
	TotalViolations     types.Uint64
	TotalFinesPaid      types.Uint64
	TotalFinesRefunded  types.Uint64
	TotalWithdrawn      types.Uint64
	ViolationSeq        uint64
	AuditSeq            uint64
	UpgradeAuthorizedAt int64
	Paused              bool
}

func (LedgerMeta) TableName() string {
	return "ledger_meta"
}
