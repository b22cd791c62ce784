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

// MigrateModels contains a list of model objects that should have DB migrations applied
var MigrateModels = []any{
	&Appeal{},
	&LedgerMeta{},
	&Offense{},
	&Officer{},
	&PendingRefund{},
	&RoleGrant{},
	&Violation{},
}

// JournalRecord is one encoded audit entry destined for the blob store
type JournalRecord struct {
	Value []byte
	Seq   uint64
}

// ChangeSet holds every row written by a single ledger operation. It is
// applied inside one database transaction.
type ChangeSet struct {
	Meta         *LedgerMeta
	GrantedRoles []RoleGrant
	RevokedRoles []RoleGrant
	Officers     []Officer
	Offenses     []Offense
	Violations   []Violation
	Appeals      []Appeal
	Refunds      []PendingRefund
	Journal      []JournalRecord
}

// Empty reports whether the change set carries no writes
func (c *ChangeSet) Empty() bool {
	return c.Meta == nil &&
		len(c.GrantedRoles) == 0 &&
		len(c.RevokedRoles) == 0 &&
		len(c.Officers) == 0 &&
		len(c.Offenses) == 0 &&
		len(c.Violations) == 0 &&
		len(c.Appeals) == 0 &&
		len(c.Refunds) == 0 &&
		len(c.Journal) == 0
}

// Snapshot is the full persisted ledger state. Meta is nil for a fresh
// database.
type Snapshot struct {
	Meta       *LedgerMeta
	Roles      []RoleGrant
	Officers   []Officer
	Offenses   []Offense
	Violations []Violation
	Appeals    []Appeal
	Refunds    []PendingRefund
	Journal    []JournalRecord
}
