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

type Violation struct {
	ID               []byte `gorm:"primaryKey;size:32"`
	VehicleID        string `gorm:"index;size:32"`
	Officer          string `gorm:"index;size:128"`
	EvidenceRef      string `gorm:"size:128"`
	ResponsibleParty string `gorm:"index;size:128"`
	PaidBy           string `gorm:"size:128"`
	Seq              uint64 `gorm:"uniqueIndex"`
	IssuedAt         int64
	FineAmount       types.Uint64
	PaidAmount       types.Uint64
	OffenseCode      uint16
	Status           uint8 `gorm:"index"`
}

func (Violation) TableName() string {
	return "violation"
}

type Appeal struct {
	ViolationID     []byte `gorm:"primaryKey;size:32"`
	Appellant       string `gorm:"size:128"`
	Reason          string
	Resolution      string
	ResolvedBy      string `gorm:"size:128"`
	SubmittedAt     int64
	ResolvedAt      int64
	LastSubmittedAt int64
	Submissions     uint32
	Resolved        bool
	Approved        bool
}

func (Appeal) TableName() string {
	return "appeal"
}

// PendingRefund rows are removed once the balance is claimed
type PendingRefund struct {
	Principal string `gorm:"primaryKey;size:128"`
	Amount    types.Uint64
}

func (PendingRefund) TableName() string {
	return "pending_refund"
}
