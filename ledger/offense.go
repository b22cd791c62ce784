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

package ledger

import (
	"context"
	"fmt"
	"strconv"
)

// defaultOffenses is the catalog seeded when a ledger is first created.
// Amounts are in whole currency units.
var defaultOffenses = []Offense{
	{Code: 1, Name: "Speeding", Amount: 1000, Active: true},
	{Code: 2, Name: "Running a red light", Amount: 4000, Active: true},
	{Code: 3, Name: "Driving without a license", Amount: 2000, Active: true},
	{Code: 4, Name: "Drunk driving", Amount: 10000, Active: true},
	{Code: 5, Name: "Reckless driving", Amount: 5000, Active: true},
	{Code: 6, Name: "No helmet", Amount: 500, Active: true},
	{Code: 7, Name: "No seat belt", Amount: 500, Active: true},
	{Code: 8, Name: "Illegal parking", Amount: 500, Active: true},
	{Code: 9, Name: "Mobile phone use while driving", Amount: 1000, Active: true},
	{Code: 10, Name: "Driving against traffic", Amount: 1000, Active: true},
	{Code: 11, Name: "Unregistered vehicle", Amount: 2000, Active: true},
	{Code: 12, Name: "Expired vehicle tax", Amount: 1000, Active: true},
	{Code: 13, Name: "Overloaded vehicle", Amount: 5000, Active: true},
	{Code: 14, Name: "Illegal U-turn", Amount: 500, Active: true},
	{Code: 15, Name: "Failure to yield to pedestrians", Amount: 1000, Active: true},
}

// DefaultOffenses returns a copy of the seeded offense catalog
func DefaultOffenses() []Offense {
	ret := make([]Offense, len(defaultOffenses))
	copy(ret, defaultOffenses)
	return ret
}

func offenseSubject(code uint16) string {
	return strconv.FormatUint(uint64(code), 10)
}

func offenseAttrs(o Offense) map[string]string {
	return map[string]string{
		"name":   o.Name,
		"amount": strconv.FormatUint(o.Amount, 10),
		"active": strconv.FormatBool(o.Active),
	}
}

// UpdateOffense defines or redefines an offense code, including codes that
// were never seeded. Existing violations keep the fine computed at issuance.
func (ls *Ledger) UpdateOffense(
	ctx context.Context,
	caller Principal,
	code uint16,
	name string,
	amount uint64,
	active bool,
) error {
	return ls.mutate(
		ctx,
		caller,
		"update_offense",
		mutateOpts{role: RoleAdmin},
		func(t *txn) error {
			if code == 0 {
				return fmt.Errorf("%w: offense code must be positive", ErrInvalidInput)
			}
			if err := validateText("offense name", name, MaxOffenseNameLen); err != nil {
				return err
			}
			if _, err := fineUnits(amount); err != nil {
				return err
			}
			offense := Offense{
				Code:   code,
				Name:   name,
				Amount: amount,
				Active: active,
			}
			t.putOffense(offense)
			return t.emit(
				AuditOffenseUpdated,
				offenseSubject(code),
				offenseAttrs(offense),
			)
		},
	)
}
